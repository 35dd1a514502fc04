package models

import (
	"time"

	"gorm.io/gorm"
)

// Recording is a finalized recording saved to the output directory.
type Recording struct {
	BaseModel

	// Filename is the name under the output directory.
	Filename string `gorm:"uniqueIndex;not null;size:255" json:"filename"`
	MimeType string `gorm:"size:50;not null" json:"mime_type"`
	Size     int64  `gorm:"not null" json:"size"`

	VideoCodec   string `gorm:"size:20" json:"video_codec"`
	AudioCodec   string `gorm:"size:20" json:"audio_codec,omitempty"`
	VideoSamples int    `json:"video_samples"`
	AudioSamples int    `json:"audio_samples"`
	Fragments    int    `json:"fragments"`

	// DurationMs is the length of the video track in milliseconds.
	DurationMs int64 `json:"duration_ms"`

	SavedAt time.Time `gorm:"not null;index" json:"saved_at"`
}

// TableName returns the table name for Recording.
func (Recording) TableName() string {
	return "recordings"
}

// Duration returns the video track length.
func (r *Recording) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// HasAudio reports whether the recording has an audio track.
func (r *Recording) HasAudio() bool {
	return r.AudioCodec != ""
}

// Validate checks the required fields.
func (r *Recording) Validate() error {
	if r.Filename == "" {
		return ErrValidation{Field: "filename", Message: "is required"}
	}
	if r.MimeType == "" {
		return ErrValidation{Field: "mime_type", Message: "is required"}
	}
	if r.Size <= 0 {
		return ErrValidation{Field: "size", Message: "must be positive"}
	}
	return nil
}

// BeforeCreate is a GORM hook that sets defaults and validates.
func (r *Recording) BeforeCreate(tx *gorm.DB) error {
	if err := r.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if r.SavedAt.IsZero() {
		r.SavedAt = time.Now()
	}
	return r.Validate()
}
