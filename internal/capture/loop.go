package capture

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jmylchreest/screenrec/internal/media"
	"github.com/jmylchreest/screenrec/internal/recorder"
)

// loop decides when recordings start and stop. Stream time is measured from
// the first video sample.
type loop struct {
	rec    *recorder.Recorder
	logger *slog.Logger

	startAfter  int64
	maxDuration int64
	segment     bool

	origin    int64
	hasOrigin bool
	started   int64
	done      bool
	saved     int
}

func newLoop(rec *recorder.Recorder, opts Options, logger *slog.Logger) *loop {
	return &loop{
		rec:         rec,
		logger:      logger,
		startAfter:  opts.StartAfter.Microseconds(),
		maxDuration: opts.MaxDuration.Microseconds(),
		segment:     opts.Segment,
	}
}

func (l *loop) handle(tp trackPacket) error {
	if tp.track == media.TrackAudio {
		if _, ok := tp.packet.(media.ConfigurationPacket); ok {
			l.logger.Debug("audio configuration packet ignored")
			return nil
		}
		return l.rec.SubmitAudioPacket(tp.packet)
	}

	if p, ok := tp.packet.(media.VideoPacket); ok {
		if err := l.schedule(p); err != nil {
			return err
		}
	}
	return l.rec.SubmitVideoPacket(tp.packet)
}

// schedule starts or stops a recording before p is submitted, so a recording
// stopped at a keyframe never contains it and the next one begins with it.
func (l *loop) schedule(p media.VideoPacket) error {
	if !l.hasOrigin {
		l.origin, l.hasOrigin = p.Timestamp, true
	}
	elapsed := p.Timestamp - l.origin

	if l.rec.Running() {
		if l.maxDuration <= 0 || !p.Keyframe || p.Timestamp-l.started < l.maxDuration {
			return nil
		}
		if err := l.stop(); err != nil {
			return err
		}
		if l.rec.Running() {
			return nil
		}
		if !l.segment {
			l.done = true
			return errDone
		}
	}

	if l.done || elapsed < l.startAfter {
		return nil
	}
	if err := l.rec.Start(); err != nil {
		return err
	}
	l.started = p.Timestamp
	l.logger.Debug("recording scheduled", slog.Duration("stream_time", l.elapsed(p.Timestamp)))
	return nil
}

func (l *loop) stop() error {
	err := l.rec.Stop()
	switch {
	case err == nil:
		l.saved++
		return nil
	case errors.Is(err, recorder.ErrFinalize):
		// The recording keeps running; try again at the next keyframe.
		l.logger.Warn("recording could not be finalized", slog.String("error", err.Error()))
		return nil
	default:
		return err
	}
}

// finish saves a recording still running at the end of input.
func (l *loop) finish() error {
	if !l.rec.Running() {
		return nil
	}
	if err := l.rec.Stop(); err != nil {
		l.rec.Abort()
		return err
	}
	l.saved++
	return nil
}

// elapsed converts a sample timestamp to stream time.
func (l *loop) elapsed(ts int64) time.Duration {
	return time.Duration(ts-l.origin) * time.Microsecond
}
