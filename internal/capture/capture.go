// Package capture drives a Recorder from scrcpy device streams. Readers for
// the video and audio streams run concurrently; a single loop feeds their
// packets to the Recorder and decides, from stream time, when recordings
// start and stop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/screenrec/internal/codec"
	"github.com/jmylchreest/screenrec/internal/media"
	"github.com/jmylchreest/screenrec/internal/recorder"
	"github.com/jmylchreest/screenrec/internal/scrcpy"
)

// packetQueueSize is the number of packets buffered between the readers and
// the recording loop.
const packetQueueSize = 64

// Options configures a capture run.
type Options struct {
	// Video is the scrcpy video stream. Required.
	Video io.Reader
	// Audio is the scrcpy audio stream. Nil records video only.
	Audio io.Reader
	// DeviceName reports that Video starts with the 64-byte device name.
	DeviceName bool

	// StartAfter delays the first recording by this much stream time.
	StartAfter time.Duration
	// MaxDuration stops a recording at the first keyframe after this much
	// stream time. Zero records until the streams end.
	MaxDuration time.Duration
	// Segment starts the next recording immediately when MaxDuration is
	// reached instead of ending the run.
	Segment bool

	Recorder recorder.Config
	Logger   *slog.Logger
}

// Result summarizes a finished run.
type Result struct {
	Device     string
	Video      media.VideoMetadata
	Audio      codec.Audio
	Recordings int
	Stats      recorder.Stats
}

type trackPacket struct {
	track  media.Track
	packet media.Packet
}

// errDone ends the readers once the last recording has been saved.
var errDone = errors.New("capture complete")

// Run reads the streams until they end, ctx is cancelled, or the last
// recording is complete. A recording still running when the input ends is
// finalized and saved.
func Run(ctx context.Context, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "capture"))

	var res Result
	if opts.DeviceName {
		name, err := scrcpy.ReadDeviceName(opts.Video)
		if err != nil {
			return res, err
		}
		res.Device = name
		logger.Info("device connected", slog.String("device", name))
	}

	meta, err := scrcpy.ReadVideoHeader(opts.Video)
	if err != nil {
		return res, err
	}
	res.Video = meta

	recCfg := opts.Recorder
	if recCfg.Logger == nil {
		recCfg.Logger = opts.Logger
	}
	rec := recorder.New(recCfg)
	if err := rec.SetVideoMetadata(meta); err != nil {
		return res, err
	}

	audio := opts.Audio
	if audio != nil {
		a, err := scrcpy.ReadAudioHeader(audio)
		switch {
		case errors.Is(err, scrcpy.ErrAudioDisabled), errors.Is(err, scrcpy.ErrAudioUnavailable):
			logger.Warn("recording without audio", slog.String("reason", err.Error()))
			audio = nil
		case err != nil:
			return res, err
		default:
			res.Audio = a
			if err := rec.SetAudioCodec(a); err != nil {
				return res, err
			}
		}
	}

	logger.Info("streams opened",
		slog.String("video_codec", meta.Codec.String()),
		slog.Int("width", meta.Width),
		slog.Int("height", meta.Height),
		slog.String("audio_codec", res.Audio.String()),
	)

	g, gctx := errgroup.WithContext(ctx)
	// Blocked reads only return once their input is closed.
	stopClosing := context.AfterFunc(gctx, func() {
		closeInput(opts.Video)
		closeInput(audio)
	})
	defer stopClosing()

	packets := make(chan trackPacket, packetQueueSize)

	readers, rctx := errgroup.WithContext(gctx)
	readers.Go(func() error {
		return readTrack(rctx, scrcpy.NewPacketReader(opts.Video, media.TrackVideo), packets)
	})
	if audio != nil {
		readers.Go(func() error {
			return readTrack(rctx, scrcpy.NewPacketReader(audio, media.TrackAudio), packets)
		})
	}
	g.Go(func() error {
		defer close(packets)
		return readers.Wait()
	})

	loop := newLoop(rec, opts, logger)
	g.Go(func() error {
		for tp := range packets {
			if err := loop.handle(tp); err != nil {
				return err
			}
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, errDone) || errors.Is(err, context.Canceled) {
		err = nil
	}

	if stopErr := loop.finish(); stopErr != nil && err == nil {
		err = stopErr
	}

	res.Recordings = loop.saved
	res.Stats = rec.Stats()
	logger.Info("capture finished",
		slog.Int("recordings", res.Recordings),
		slog.Any("stats", res.Stats),
	)
	return res, err
}

func closeInput(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

// readTrack sends the packets of one stream until it ends.
func readTrack(ctx context.Context, r *scrcpy.PacketReader, out chan<- trackPacket) error {
	for {
		pkt, err := r.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading %s stream: %w", r.Track(), err)
		}

		select {
		case out <- trackPacket{track: r.Track(), packet: pkt}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
