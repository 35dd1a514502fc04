// Package repository defines data access interfaces for the recording
// catalog. All database access goes through these interfaces.
package repository

import (
	"context"

	"github.com/jmylchreest/screenrec/internal/models"
)

// RecordingFilter narrows a recording listing.
type RecordingFilter struct {
	// VideoCodec matches the video sample entry name, e.g. "avc1".
	VideoCodec string
	// AudioCodec matches the audio sample entry name, e.g. "mp4a".
	AudioCodec string
	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// RecordingRepository defines operations for recording persistence.
type RecordingRepository interface {
	// Create stores a new recording.
	Create(ctx context.Context, recording *models.Recording) error
	// GetByID retrieves a recording by ID. It returns nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.Recording, error)
	// GetByFilename retrieves a recording by filename. It returns nil when
	// not found.
	GetByFilename(ctx context.Context, filename string) (*models.Recording, error)
	// List returns recordings, newest first.
	List(ctx context.Context, filter RecordingFilter) ([]*models.Recording, error)
	// Delete removes a recording by ID.
	Delete(ctx context.Context, id models.ULID) error
}
