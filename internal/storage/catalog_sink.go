package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/screenrec/internal/container"
	"github.com/jmylchreest/screenrec/internal/models"
	"github.com/jmylchreest/screenrec/internal/repository"
)

// catalogTimeout bounds the catalog insert for one recording.
const catalogTimeout = 10 * time.Second

// CatalogSink saves recordings through a FileSink and records each saved file
// in the recording catalog. Catalog failures are logged; the file on disk
// is authoritative.
type CatalogSink struct {
	files  *FileSink
	repo   repository.RecordingRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewCatalogSink returns a sink cataloguing the recordings files saves.
func NewCatalogSink(files *FileSink, repo repository.RecordingRepository, logger *slog.Logger) *CatalogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogSink{
		files:  files,
		repo:   repo,
		now:    time.Now,
		logger: logger.With(slog.String("component", "catalog_sink")),
	}
}

// Save writes the recording, then adds it to the catalog.
func (s *CatalogSink) Save(data []byte, filename, mimeType string) error {
	name, err := s.files.Store(data, filename, mimeType)
	if err != nil {
		return err
	}

	rec := &models.Recording{
		Filename: name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		SavedAt:  s.now(),
	}

	info, err := container.Probe(data)
	if err != nil {
		s.logger.Warn("probing recording failed",
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
	} else {
		rec.VideoCodec = info.VideoCodec
		rec.AudioCodec = info.AudioCodec
		rec.VideoSamples = info.VideoSamples
		rec.AudioSamples = info.AudioSamples
		rec.Fragments = info.Fragments
		rec.DurationMs = info.Duration.Milliseconds()
		s.logger.Debug("recording probed",
			slog.String("filename", name),
			slog.String("video_codec", info.VideoCodec),
			slog.Bool("audio", info.HasAudio()),
			slog.Int("fragments", info.Fragments),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()

	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.Error("cataloguing recording failed",
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
		return nil
	}

	s.logger.Debug("recording catalogued",
		slog.String("filename", name),
		slog.String("id", rec.ID.String()),
		slog.Duration("duration", rec.Duration()),
	)
	return nil
}
