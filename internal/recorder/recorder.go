// Package recorder turns a live stream of video and audio packets into
// finalized recordings. Recording can start at any point of the stream: the
// packets received since the last video keyframe are replayed into the new
// recording so it can begin with a decodable picture.
package recorder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/screenrec/internal/annexb"
	"github.com/jmylchreest/screenrec/internal/codec"
	"github.com/jmylchreest/screenrec/internal/codecconfig"
	"github.com/jmylchreest/screenrec/internal/container"
	"github.com/jmylchreest/screenrec/internal/media"
	"github.com/jmylchreest/screenrec/internal/paramset"
	"github.com/jmylchreest/screenrec/internal/replay"
)

// Audio track format handed to the container writer.
const (
	AudioSampleRate   = 48000
	AudioChannelCount = 2
	RawAudioBitDepth  = 16
)

// ContainerWriter receives the samples of one recording.
type ContainerWriter interface {
	// AppendVideoSample appends a video sample. The first sample and the
	// first one after every change of decoder configuration carry the
	// current configuration record in description, which is nil while no
	// record is known.
	AppendVideoSample(data []byte, kind container.SampleKind, timestamp int64, description []byte) error
	// AppendAudioSample appends an audio frame.
	AppendAudioSample(data []byte, timestamp int64) error
	// Finalize returns the complete file.
	Finalize() ([]byte, error)
}

// WriterFactory creates the writer of a new recording.
type WriterFactory func(opts container.Options) (ContainerWriter, error)

// Sink persists finalized recordings.
type Sink interface {
	Save(data []byte, filename, mimeType string) error
}

// NewContainerWriter is the WriterFactory producing fragmented MP4.
func NewContainerWriter(opts container.Options) (ContainerWriter, error) {
	w, err := container.NewWriter(opts)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// FileName returns the name a recording finalized at t is saved under.
func FileName(t time.Time) string {
	return "Recording " + t.Local().Format("2006-01-02 15-04-05") + container.Extension
}

// Config configures a Recorder.
type Config struct {
	// Writers creates container writers. Defaults to NewContainerWriter.
	Writers WriterFactory
	// Sink receives finalized recordings. Required.
	Sink Sink
	// VideoTimescale is passed to the container writer.
	VideoTimescale uint32
	// ReplayWarnSize logs a warning once per group of pictures when the
	// replay buffer grows beyond this many bytes. Zero disables the warning.
	ReplayWarnSize int
	// Now returns the current time. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// session is the state of one recording. It exists only while recording.
type session struct {
	id            ulid.ULID
	writer        ContainerWriter
	startedAt     time.Time
	configEmitted bool
	hasBaseline   bool
	baseline      int64
}

// Recorder is the recording state machine. It is Idle until Start and
// Recording until Stop, and can be reused for any number of recordings.
//
// Recorder is not safe for concurrent use; callers must serialize calls.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	video       *media.VideoMetadata
	audio       *codec.AudioDescriptor
	description []byte

	buffer       *replay.Buffer
	bufferWarned bool

	session *session
	stats   Stats
}

// New creates an idle Recorder.
func New(cfg Config) *Recorder {
	if cfg.Writers == nil {
		cfg.Writers = NewContainerWriter
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "recorder")),
		buffer: replay.New(),
	}
}

// Running reports whether a recording is in progress.
func (r *Recorder) Running() bool {
	return r.session != nil
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() Stats {
	s := r.stats
	s.BufferedPackets = r.buffer.Len()
	s.BufferedBytes = r.buffer.Size()
	return s
}

// SetVideoMetadata sets the video stream description used by the next
// recording.
func (r *Recorder) SetVideoMetadata(m media.VideoMetadata) error {
	if r.Running() {
		return ErrRecordingActive
	}
	r.video = &m
	r.logger.Debug("video metadata set",
		slog.String("codec", m.Codec.String()),
		slog.Int("width", m.Width),
		slog.Int("height", m.Height),
	)
	return nil
}

// SetAudioCodec sets the audio codec of the next recording. An empty codec
// makes recordings video-only.
func (r *Recorder) SetAudioCodec(a codec.Audio) error {
	if r.Running() {
		return ErrRecordingActive
	}
	if a == "" {
		r.audio = nil
		return nil
	}
	d := codec.DescribeAudio(a)
	r.audio = &d
	r.logger.Debug("audio codec set", slog.String("codec", a.String()))
	return nil
}

// SubmitVideoPacket handles a configuration or video packet.
func (r *Recorder) SubmitVideoPacket(p media.Packet) error {
	switch v := p.(type) {
	case media.ConfigurationPacket:
		r.handleConfiguration(v.Data)
		return nil
	case media.VideoPacket:
		return r.handleVideo(v)
	default:
		return fmt.Errorf("%w: %T on video", ErrUnexpectedPacket, p)
	}
}

// SubmitAudioPacket handles an audio packet.
func (r *Recorder) SubmitAudioPacket(p media.Packet) error {
	v, ok := p.(media.AudioPacket)
	if !ok {
		return fmt.Errorf("%w: %T on audio", ErrUnexpectedPacket, p)
	}
	return r.handleAudio(v)
}

// Start begins a recording and replays the buffered packets into it.
func (r *Recorder) Start() error {
	if r.Running() {
		return ErrAlreadyRecording
	}
	if r.video == nil {
		return ErrConfigurationMissing
	}

	opts := container.Options{
		VideoCodec:     r.video.Codec.ContainerName(),
		Width:          r.video.Width,
		Height:         r.video.Height,
		VideoTimescale: r.cfg.VideoTimescale,
		Logger:         r.logger,
	}
	if r.audio != nil {
		opts.Audio = &container.AudioOptions{
			Codec:        r.audio.ContainerName,
			SampleRate:   AudioSampleRate,
			ChannelCount: AudioChannelCount,
		}
		if r.audio.Codec == codec.AudioRaw {
			opts.Audio.BitDepth = RawAudioBitDepth
		}
	}

	w, err := r.cfg.Writers(opts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriterConstruction, err)
	}

	r.session = &session{
		id:        ulid.Make(),
		writer:    w,
		startedAt: r.cfg.Now(),
	}

	entries := r.buffer.Entries()
	for _, e := range entries {
		var err error
		switch p := e.Packet.(type) {
		case media.VideoPacket:
			err = r.appendVideo(p)
		case media.AudioPacket:
			err = r.appendAudio(p)
		}
		if err != nil {
			r.session = nil
			return fmt.Errorf("%w: %w", ErrReplay, err)
		}
	}
	r.stats.ReplayedPackets += uint64(len(entries))

	r.logger.Info("recording started",
		slog.String("session_id", r.session.id.String()),
		slog.String("video_codec", opts.VideoCodec),
		slog.Bool("audio", opts.Audio != nil),
		slog.Int("replayed_packets", len(entries)),
	)
	return nil
}

// Stop finalizes the recording and hands it to the sink. Stop is a no-op
// when idle. If the writer cannot finalize, the recording keeps running.
func (r *Recorder) Stop() error {
	s := r.session
	if s == nil {
		return nil
	}

	data, err := s.writer.Finalize()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFinalize, err)
	}

	finishedAt := r.cfg.Now()
	r.session = nil
	r.buffer.Clear()
	r.bufferWarned = false
	r.stats.CompletedSessions++

	name := FileName(finishedAt)
	logger := r.logger.With(
		slog.String("session_id", s.id.String()),
		slog.String("filename", name),
	)
	if err := r.cfg.Sink.Save(data, name, container.MimeType); err != nil {
		logger.Error("saving recording failed", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	logger.Info("recording saved",
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", finishedAt.Sub(s.startedAt)),
	)
	return nil
}

// Abort discards the current recording without finalizing it.
func (r *Recorder) Abort() {
	if r.session == nil {
		return
	}
	r.logger.Warn("recording discarded", slog.String("session_id", r.session.id.String()))
	r.session = nil
	r.buffer.Clear()
	r.bufferWarned = false
}

// handleConfiguration replaces the decoder configuration record. Failures
// are logged and counted, and the previous record is kept.
func (r *Recorder) handleConfiguration(data []byte) ConfigStatus {
	if r.video == nil {
		return r.absorb(ConfigNoMetadata, ErrConfigurationMissing)
	}

	var record []byte
	switch r.video.Codec {
	case codec.VideoH264:
		sets, err := paramset.LocateH264(data)
		if err != nil {
			return r.absorb(ConfigInvalid, err)
		}
		if record, err = codecconfig.BuildAVC(sets.SPS, sets.PPS); err != nil {
			return r.absorb(ConfigBuildFailed, err)
		}
	case codec.VideoH265:
		sets, err := paramset.LocateH265(data)
		if err != nil {
			return r.absorb(ConfigInvalid, err)
		}
		if record, err = codecconfig.BuildHEVC(sets); err != nil {
			return r.absorb(ConfigBuildFailed, err)
		}
	default:
		record = make([]byte, len(data))
		copy(record, data)
	}

	r.description = record
	if r.session != nil {
		r.session.configEmitted = false
	}
	r.stats.ConfigUpdates++
	r.logger.Debug("decoder configuration updated",
		slog.String("codec", r.video.Codec.String()),
		slog.Int("size", len(record)),
	)
	return ConfigApplied
}

func (r *Recorder) absorb(status ConfigStatus, err error) ConfigStatus {
	r.stats.AbsorbedConfigErrors++
	r.logger.Warn("configuration packet dropped",
		slog.String("status", status.String()),
		slog.String("error", err.Error()),
	)
	return status
}

func (r *Recorder) handleVideo(p media.VideoPacket) error {
	r.stats.VideoPackets++
	r.buffer.Push(media.TrackVideo, p)
	r.checkBufferSize(p.Keyframe)

	if r.session == nil {
		return nil
	}
	return r.appendVideo(p)
}

func (r *Recorder) handleAudio(p media.AudioPacket) error {
	r.stats.AudioPackets++
	r.buffer.Push(media.TrackAudio, p)

	if r.session == nil {
		return nil
	}
	return r.appendAudio(p)
}

// appendVideo forwards a video packet to the writer. The first packet
// forwarded in a session sets the timestamp baseline.
func (r *Recorder) appendVideo(p media.VideoPacket) error {
	s := r.session
	if !s.hasBaseline {
		s.baseline = p.Timestamp
		s.hasBaseline = true
	}

	data := p.Data
	if r.video.Codec.UsesAnnexB() {
		framed, err := annexb.FrameAnnexB(p.Data)
		if err != nil {
			return fmt.Errorf("framing video sample: %w", err)
		}
		data = framed
	}

	kind := container.SampleDelta
	if p.Keyframe {
		kind = container.SampleKey
	}

	var description []byte
	if !s.configEmitted {
		description = r.description
	}

	if err := s.writer.AppendVideoSample(data, kind, p.Timestamp-s.baseline, description); err != nil {
		return fmt.Errorf("appending video sample: %w", err)
	}
	s.configEmitted = true
	r.stats.ForwardedVideo++
	return nil
}

// appendAudio forwards an audio packet to the writer. Audio is only
// forwarded once video has set the baseline, and never before it.
func (r *Recorder) appendAudio(p media.AudioPacket) error {
	s := r.session
	if r.audio == nil || !s.hasBaseline {
		r.stats.DroppedAudio++
		return nil
	}
	ts := p.Timestamp - s.baseline
	if ts < 0 {
		r.stats.DroppedAudio++
		return nil
	}

	if err := s.writer.AppendAudioSample(p.Data, ts); err != nil {
		return fmt.Errorf("appending audio sample: %w", err)
	}
	r.stats.ForwardedAudio++
	return nil
}

func (r *Recorder) checkBufferSize(keyframe bool) {
	if keyframe {
		r.bufferWarned = false
	}
	if r.cfg.ReplayWarnSize <= 0 || r.bufferWarned || r.buffer.Size() <= r.cfg.ReplayWarnSize {
		return
	}
	r.bufferWarned = true
	r.logger.Warn("replay buffer exceeds warning size, keyframes may be infrequent",
		slog.Int("buffered_bytes", r.buffer.Size()),
		slog.Int("buffered_packets", r.buffer.Len()),
		slog.Int("warn_size", r.cfg.ReplayWarnSize),
	)
}
