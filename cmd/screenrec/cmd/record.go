package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/screenrec/internal/capture"
	"github.com/jmylchreest/screenrec/internal/config"
	"github.com/jmylchreest/screenrec/internal/database"
	"github.com/jmylchreest/screenrec/internal/observability"
	"github.com/jmylchreest/screenrec/internal/recorder"
	"github.com/jmylchreest/screenrec/internal/repository"
	"github.com/jmylchreest/screenrec/internal/storage"
)

// dialTimeout bounds connecting to a tcp:// source.
const dialTimeout = 10 * time.Second

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a device stream",
	Long: `Record scrcpy video and audio streams into MP4 files.

A source is a file path, "-" for standard input, or tcp://host:port.
Recording runs until the streams end, --max-duration of stream time has
been recorded, or the process is interrupted. With --segment a new file is
started every --max-duration instead.`,
	Example: `  adb forward tcp:27183 localabstract:scrcpy
  screenrec record --video tcp://127.0.0.1:27183 --device-meta --max-duration 10m`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().String("video", "", "video stream source (required)")
	recordCmd.Flags().String("audio", "", "audio stream source")
	recordCmd.Flags().Bool("device-meta", false, "video stream starts with the 64-byte device name")
	recordCmd.Flags().String("output-dir", "", "directory for finished recordings (overrides recording.output_dir)")
	recordCmd.Flags().String("start-after", "", "stream time to skip before recording, e.g. 5s")
	recordCmd.Flags().String("max-duration", "", "stream time per recording, e.g. 10m")
	recordCmd.Flags().Bool("segment", false, "start a new recording every --max-duration")
	_ = recordCmd.MarkFlagRequired("video")
}

func runRecord(cmd *cobra.Command, _ []string) error {
	recCfg, err := recordingConfig(cmd, cfg.Recording)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sandbox, err := storage.NewSandbox(recCfg.OutputDir)
	if err != nil {
		return fmt.Errorf("preparing output directory: %w", err)
	}

	if recCfg.MinFreeSpace > 0 {
		free, err := sandbox.CheckFreeSpace(ctx, uint64(recCfg.MinFreeSpace.Bytes()))
		switch {
		case errors.Is(err, storage.ErrLowDiskSpace):
			logger.Warn("output directory is low on space",
				slog.String("free", humanize.IBytes(free)),
				slog.String("min_free_space", recCfg.MinFreeSpace.String()),
			)
		case err != nil:
			logger.Debug("disk space check unavailable", slog.String("error", err.Error()))
		}
	}

	var sink recorder.Sink = storage.NewFileSink(sandbox, logger)
	if cfg.Catalog.Enabled {
		db, err := database.New(ctx, cfg.Catalog.Database, logger)
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer db.Close()
		sink = storage.NewCatalogSink(
			storage.NewFileSink(sandbox, logger),
			repository.NewRecordingRepository(db.DB),
			logger,
		)
	}

	videoSrc, _ := cmd.Flags().GetString("video")
	audioSrc, _ := cmd.Flags().GetString("audio")
	deviceMeta, _ := cmd.Flags().GetBool("device-meta")

	video, err := openSource(ctx, videoSrc)
	if err != nil {
		return err
	}
	defer video.Close()

	opts := capture.Options{
		Video:       video,
		DeviceName:  deviceMeta,
		StartAfter:  recCfg.StartAfter.Duration(),
		MaxDuration: recCfg.MaxDuration.Duration(),
		Segment:     recCfg.Segment,
		Recorder: recorder.Config{
			Sink:           sink,
			VideoTimescale: recCfg.VideoTimescale,
			ReplayWarnSize: int(recCfg.ReplayWarnSize.Bytes()),
			Logger:         logger,
		},
		Logger: logger,
	}
	if audioSrc != "" {
		audio, err := openSource(ctx, audioSrc)
		if err != nil {
			return err
		}
		defer audio.Close()
		opts.Audio = audio
	}

	logger.Info("recording",
		slog.String("video", videoSrc),
		slog.String("audio", audioSrc),
		slog.String("output_dir", sandbox.BaseDir()),
	)

	var runErr error
	done := observability.TimedOperationWithError(ctx, logger, "record", &runErr)
	res, runErr := capture.Run(ctx, opts)
	done()
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d recording(s) saved to %s\n", res.Recordings, sandbox.BaseDir())
	return nil
}

// recordingConfig applies the record flags on top of the configured values.
func recordingConfig(cmd *cobra.Command, rc config.RecordingConfig) (config.RecordingConfig, error) {
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		rc.OutputDir, _ = flags.GetString("output-dir")
	}
	for name, target := range map[string]*config.Duration{
		"start-after":  &rc.StartAfter,
		"max-duration": &rc.MaxDuration,
	} {
		if !flags.Changed(name) {
			continue
		}
		value, _ := flags.GetString(name)
		d, err := config.ParseDuration(value)
		if err != nil {
			return rc, fmt.Errorf("--%s: %w", name, err)
		}
		*target = d
	}
	if flags.Changed("segment") {
		rc.Segment, _ = flags.GetBool("segment")
	}

	validated := config.Config{Recording: rc, Logging: cfg.Logging}
	if err := validated.Validate(); err != nil {
		return rc, err
	}
	return rc, nil
}

// openSource opens a file, standard input ("-"), or a tcp://host:port stream.
func openSource(ctx context.Context, src string) (io.ReadCloser, error) {
	switch {
	case src == "-":
		return os.Stdin, nil
	case strings.HasPrefix(src, "tcp://"):
		dialer := net.Dialer{Timeout: dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", strings.TrimPrefix(src, "tcp://"))
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", src, err)
		}
		return conn, nil
	default:
		f, err := os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", src, err)
		}
		return f, nil
	}
}
