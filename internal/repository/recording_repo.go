package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/screenrec/internal/models"
)

// recordingRepo implements RecordingRepository using GORM.
type recordingRepo struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *gorm.DB) RecordingRepository {
	return &recordingRepo{db: db}
}

// Create stores a new recording.
func (r *recordingRepo) Create(ctx context.Context, recording *models.Recording) error {
	if err := r.db.WithContext(ctx).Create(recording).Error; err != nil {
		return fmt.Errorf("creating recording: %w", err)
	}
	return nil
}

// GetByID retrieves a recording by ID.
func (r *recordingRepo) GetByID(ctx context.Context, id models.ULID) (*models.Recording, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByFilename retrieves a recording by filename.
func (r *recordingRepo) GetByFilename(ctx context.Context, filename string) (*models.Recording, error) {
	return r.first(ctx, "filename = ?", filename)
}

func (r *recordingRepo) first(ctx context.Context, query string, arg any) (*models.Recording, error) {
	var recording models.Recording
	if err := r.db.WithContext(ctx).Where(query, arg).First(&recording).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting recording: %w", err)
	}
	return &recording, nil
}

// List returns recordings, newest first.
func (r *recordingRepo) List(ctx context.Context, filter RecordingFilter) ([]*models.Recording, error) {
	query := r.db.WithContext(ctx).Order("saved_at DESC, id DESC")
	if filter.VideoCodec != "" {
		query = query.Where("video_codec = ?", filter.VideoCodec)
	}
	if filter.AudioCodec != "" {
		query = query.Where("audio_codec = ?", filter.AudioCodec)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var recordings []*models.Recording
	if err := query.Find(&recordings).Error; err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	return recordings, nil
}

// Delete removes a recording by ID.
func (r *recordingRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Recording{}).Error; err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	return nil
}
