// Package container writes recordings as fragmented MP4 and inspects the
// files it produced.
package container

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/av1"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/jmylchreest/screenrec/internal/annexb"
	"github.com/jmylchreest/screenrec/internal/codec"
	"github.com/jmylchreest/screenrec/internal/codecconfig"
)

// Output format of a finalized recording.
const (
	MimeType  = "video/mp4"
	Extension = ".mp4"
)

// Default timescales.
const (
	DefaultVideoTimescale = 90000
	DefaultFrameRate      = 60
	microsecondsPerSecond = 1_000_000
)

const (
	videoTrackID = 1
	audioTrackID = 2
)

// Errors returned by the writer.
var (
	ErrUnsupportedCodec = errors.New("unsupported codec")
	ErrNoVideo          = errors.New("no decodable video samples written")
	ErrFinalized        = errors.New("writer already finalized")
	ErrNoAudioTrack     = errors.New("writer has no audio track")
)

// SampleKind tells whether a video sample can be decoded on its own.
type SampleKind int

// SampleKind constants.
const (
	SampleDelta SampleKind = iota
	SampleKey
)

// String returns the kind name.
func (k SampleKind) String() string {
	if k == SampleKey {
		return "key"
	}
	return "delta"
}

// AudioOptions describes the audio track of a recording.
type AudioOptions struct {
	// Codec is the sample entry name: ipcm, mp4a or Opus.
	Codec        string
	SampleRate   int
	ChannelCount int
	// BitDepth is only meaningful for ipcm.
	BitDepth int
}

// Options configures a Writer.
type Options struct {
	// VideoCodec is the sample entry name: avc1, hvc1 or av01.
	VideoCodec     string
	// Width and Height are the advertised stream size. They are not
	// written: the sample entry takes its dimensions from the parameter sets
	// of the decoder configuration, and a mismatch is logged.
	Width          int
	Height         int
	VideoTimescale uint32
	// Audio is nil for video-only recordings.
	Audio  *AudioOptions
	Logger *slog.Logger
}

// pendingSample is a sample waiting for the timestamp of its successor.
type pendingSample struct {
	ticks   int64
	payload []byte
	sync    bool
}

// track accumulates the samples of one track.
type track struct {
	id        int
	timescale uint32
	codec     mp4.Codec

	started  bool
	baseTime uint64
	pending  *pendingSample
	samples  []*fmp4.Sample
	lastDur  uint32
	duration uint64
}

func (t *track) ticks(us int64) int64 {
	return us * int64(t.timescale) / microsecondsPerSecond
}

// push queues a sample and completes the previous one. fallback is used
// when the timestamps do not advance.
func (t *track) push(s *pendingSample, fallback uint32) {
	if !t.started {
		t.started = true
		if s.ticks > 0 {
			t.baseTime = uint64(s.ticks)
		}
	}
	t.advance(s.ticks, fallback)
	t.pending = s
}

// advance completes the pending sample, if any, using the timestamp of the
// sample that follows it.
func (t *track) advance(ticks int64, fallback uint32) {
	if t.pending == nil {
		return
	}
	dur := fallback
	if d := ticks - t.pending.ticks; d > 0 {
		dur = uint32(d)
	}
	t.complete(dur)
}

func (t *track) complete(dur uint32) {
	t.samples = append(t.samples, &fmp4.Sample{
		Duration:        dur,
		IsNonSyncSample: !t.pending.sync,
		Payload:         t.pending.payload,
	})
	t.lastDur = dur
	t.pending = nil
}

// take removes the completed samples for a fragment and returns the base
// time of the first one.
func (t *track) take() (uint64, []*fmp4.Sample) {
	base := t.baseTime + t.duration
	samples := t.samples
	for _, s := range samples {
		t.duration += uint64(s.Duration)
	}
	t.samples = nil
	return base, samples
}

// Writer assembles a fragmented MP4 file in memory. One fragment is emitted
// per video group of pictures. Writer is not safe for concurrent use.
type Writer struct {
	opts   Options
	logger *slog.Logger

	video *track
	audio *track

	description     []byte
	nextDescription []byte
	fragments       seekablebuffer.Buffer
	sequence        uint32
	finalized       bool
	videoFrames     int
	skippedVideo    int
}

// NewWriter creates a writer for the given tracks.
func NewWriter(opts Options) (*Writer, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid video size %dx%d", opts.Width, opts.Height)
	}
	switch opts.VideoCodec {
	case codec.ContainerAVC, codec.ContainerHEVC, codec.ContainerAV1:
	default:
		return nil, fmt.Errorf("%w: video %q", ErrUnsupportedCodec, opts.VideoCodec)
	}
	if opts.VideoTimescale == 0 {
		opts.VideoTimescale = DefaultVideoTimescale
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{
		opts:     opts,
		logger:   logger,
		video:    &track{id: videoTrackID, timescale: opts.VideoTimescale},
		sequence: 1,
	}

	if opts.Audio != nil {
		audioCodec, err := audioCodecFor(*opts.Audio)
		if err != nil {
			return nil, err
		}
		w.audio = &track{
			id:        audioTrackID,
			timescale: uint32(opts.Audio.SampleRate),
			codec:     audioCodec,
		}
	}

	return w, nil
}

func audioCodecFor(a AudioOptions) (mp4.Codec, error) {
	if a.SampleRate <= 0 || a.ChannelCount <= 0 {
		return nil, fmt.Errorf("invalid audio format %d Hz, %d channels", a.SampleRate, a.ChannelCount)
	}
	switch a.Codec {
	case codec.ContainerAAC:
		return &mp4.CodecMPEG4Audio{
			Config: mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   a.SampleRate,
				ChannelCount: a.ChannelCount,
			},
		}, nil
	case codec.ContainerOpus:
		return &mp4.CodecOpus{ChannelCount: a.ChannelCount}, nil
	case codec.ContainerLPCM:
		if a.BitDepth != 16 && a.BitDepth != 24 && a.BitDepth != 32 {
			return nil, fmt.Errorf("%w: pcm bit depth %d", ErrUnsupportedCodec, a.BitDepth)
		}
		return &mp4.CodecLPCM{
			LittleEndian: true,
			BitDepth:     a.BitDepth,
			SampleRate:   a.SampleRate,
			ChannelCount: a.ChannelCount,
		}, nil
	default:
		return nil, fmt.Errorf("%w: audio %q", ErrUnsupportedCodec, a.Codec)
	}
}

// AppendVideoSample appends one encoded video sample. For avc1 and hvc1 the
// data must already be length-prefixed. timestamp is in microseconds
// relative to the start of the recording. description carries the decoder
// configuration whenever it changes.
//
// The file begins at the first keyframe appended once a description is
// known; earlier samples are skipped. A description that changes later is
// applied at the next keyframe by sending its parameter sets in-band.
func (w *Writer) AppendVideoSample(data []byte, kind SampleKind, timestamp int64, description []byte) error {
	if w.finalized {
		return ErrFinalized
	}

	if description != nil && !bytes.Equal(description, w.description) {
		w.nextDescription = description
	}

	if w.video.codec == nil {
		if kind != SampleKey || w.nextDescription == nil {
			w.skippedVideo++
			return nil
		}
		c, err := videoCodecFor(w.opts.VideoCodec, w.nextDescription)
		if err != nil {
			w.nextDescription = nil
			return fmt.Errorf("building %s sample entry: %w", w.opts.VideoCodec, err)
		}
		w.video.codec = c
		w.description, w.nextDescription = w.nextDescription, nil
		w.checkVideoSize(c)
		if w.skippedVideo > 0 {
			w.logger.Debug("video samples before the first keyframe skipped",
				slog.Int("skipped", w.skippedVideo),
			)
		}
	} else if w.nextDescription != nil && kind == SampleKey {
		inBand, err := inBandParameterSets(w.opts.VideoCodec, w.nextDescription)
		if err != nil {
			w.nextDescription = nil
			return fmt.Errorf("applying %s decoder configuration: %w", w.opts.VideoCodec, err)
		}
		data = append(inBand, data...)
		w.logger.Info("decoder configuration changed, parameter sets sent in-band",
			slog.String("codec", w.opts.VideoCodec),
			slog.Int("previous_size", len(w.description)),
			slog.Int("new_size", len(w.nextDescription)),
		)
		w.description, w.nextDescription = w.nextDescription, nil
	}

	ticks := w.video.ticks(timestamp)
	if kind == SampleKey {
		w.video.advance(ticks, w.defaultVideoDuration())
		if len(w.video.samples) > 0 {
			if err := w.flush(); err != nil {
				return err
			}
		}
	}

	payload := make([]byte, len(data))
	copy(payload, data)
	w.video.push(&pendingSample{
		ticks:   ticks,
		payload: payload,
		sync:    kind == SampleKey,
	}, w.defaultVideoDuration())
	w.videoFrames++
	return nil
}

// AppendAudioSample appends one encoded audio frame. timestamp is in
// microseconds relative to the start of the recording.
func (w *Writer) AppendAudioSample(data []byte, timestamp int64) error {
	if w.finalized {
		return ErrFinalized
	}
	if w.audio == nil {
		return ErrNoAudioTrack
	}
	if w.video.codec == nil {
		// Audio starts with the video track.
		return nil
	}

	payload := make([]byte, len(data))
	copy(payload, data)
	w.audio.push(&pendingSample{
		ticks:   w.audio.ticks(timestamp),
		payload: payload,
		sync:    true,
	}, w.audioFrameDuration(w.audio.pendingSize()))
	return nil
}

func (t *track) pendingSize() int {
	if t.pending == nil {
		return 0
	}
	return len(t.pending.payload)
}

// Finalize completes the last fragment and returns the whole file. The
// writer cannot be used afterwards.
func (w *Writer) Finalize() ([]byte, error) {
	if w.finalized {
		return nil, ErrFinalized
	}
	if w.video.codec == nil {
		return nil, ErrNoVideo
	}

	if w.video.pending != nil {
		dur := w.video.lastDur
		if dur == 0 {
			dur = w.defaultVideoDuration()
		}
		w.video.complete(dur)
	}
	if w.audio != nil && w.audio.pending != nil {
		w.audio.complete(w.audioFrameDuration(len(w.audio.pending.payload)))
	}
	if err := w.flush(); err != nil {
		return nil, err
	}

	init := fmp4.Init{
		Tracks: []*fmp4.InitTrack{{
			ID:        w.video.id,
			TimeScale: w.video.timescale,
			Codec:     w.video.codec,
		}},
	}
	if w.audio != nil {
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        w.audio.id,
			TimeScale: w.audio.timescale,
			Codec:     w.audio.codec,
		})
	}

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return nil, fmt.Errorf("marshaling init segment: %w", err)
	}

	w.finalized = true
	out := make([]byte, 0, len(buf.Bytes())+len(w.fragments.Bytes()))
	out = append(out, buf.Bytes()...)
	out = append(out, w.fragments.Bytes()...)

	w.logger.Debug("recording finalized",
		slog.Int("bytes", len(out)),
		slog.Int("video_samples", w.videoFrames),
		slog.Int("skipped_video_samples", w.skippedVideo),
		slog.Uint64("fragments", uint64(w.sequence-1)),
	)
	return out, nil
}

// flush writes the completed samples of both tracks as one fragment.
func (w *Writer) flush() error {
	part := fmp4.Part{SequenceNumber: w.sequence}

	if len(w.video.samples) > 0 {
		base, samples := w.video.take()
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID:       w.video.id,
			BaseTime: base,
			Samples:  samples,
		})
	}
	if w.audio != nil && len(w.audio.samples) > 0 {
		base, samples := w.audio.take()
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID:       w.audio.id,
			BaseTime: base,
			Samples:  samples,
		})
	}
	if len(part.Tracks) == 0 {
		return nil
	}

	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return fmt.Errorf("marshaling fragment %d: %w", w.sequence, err)
	}
	if _, err := w.fragments.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing fragment %d: %w", w.sequence, err)
	}
	w.sequence++
	return nil
}

func (w *Writer) defaultVideoDuration() uint32 {
	if w.video.lastDur > 0 {
		return w.video.lastDur
	}
	return w.video.timescale / DefaultFrameRate
}

// audioFrameDuration returns the duration in samples of an audio frame of
// the given payload size.
func (w *Writer) audioFrameDuration(size int) uint32 {
	switch w.opts.Audio.Codec {
	case codec.ContainerAAC:
		return 1024
	case codec.ContainerOpus:
		return uint32(w.opts.Audio.SampleRate / 50)
	default:
		frame := w.opts.Audio.ChannelCount * w.opts.Audio.BitDepth / 8
		if frame == 0 {
			return 0
		}
		return uint32(size / frame)
	}
}

// videoCodecFor builds the video sample entry from a decoder configuration.
func videoCodecFor(name string, description []byte) (mp4.Codec, error) {
	switch name {
	case codec.ContainerAVC:
		sps, pps, err := codecconfig.ParseAVC(description)
		if err != nil {
			return nil, err
		}
		return &mp4.CodecH264{SPS: sps, PPS: pps}, nil

	case codec.ContainerHEVC:
		vps, sps, pps, err := codecconfig.ParseHEVC(description)
		if err != nil {
			return nil, err
		}
		return &mp4.CodecH265{VPS: vps, SPS: sps, PPS: pps}, nil

	case codec.ContainerAV1:
		seq, err := av1SequenceHeader(description)
		if err != nil {
			return nil, err
		}
		return &mp4.CodecAV1{SequenceHeader: seq}, nil

	default:
		return nil, fmt.Errorf("%w: video %q", ErrUnsupportedCodec, name)
	}
}

// checkVideoSize warns when the parameter sets describe a picture size other
// than the advertised one.
func (w *Writer) checkVideoSize(c mp4.Codec) {
	var width, height int
	switch c := c.(type) {
	case *mp4.CodecH264:
		var sps h264.SPS
		if err := sps.Unmarshal(c.SPS); err != nil {
			return
		}
		width, height = sps.Width(), sps.Height()
	case *mp4.CodecH265:
		var sps h265.SPS
		if err := sps.Unmarshal(c.SPS); err != nil {
			return
		}
		width, height = sps.Width(), sps.Height()
	default:
		return
	}

	if width != w.opts.Width || height != w.opts.Height {
		w.logger.Warn("video size differs from the decoder configuration",
			slog.Int("width", w.opts.Width),
			slog.Int("height", w.opts.Height),
			slog.Int("sps_width", width),
			slog.Int("sps_height", height),
		)
	}
}

// inBandParameterSets returns the parameter sets of a decoder configuration
// framed as sample data, to be placed before a keyframe.
func inBandParameterSets(name string, description []byte) ([]byte, error) {
	switch name {
	case codec.ContainerAVC:
		sps, pps, err := codecconfig.ParseAVC(description)
		if err != nil {
			return nil, err
		}
		return annexb.Frame([][]byte{sps, pps}), nil

	case codec.ContainerHEVC:
		vps, sps, pps, err := codecconfig.ParseHEVC(description)
		if err != nil {
			return nil, err
		}
		return annexb.Frame([][]byte{vps, sps, pps}), nil

	case codec.ContainerAV1:
		seq, err := av1SequenceHeader(description)
		if err != nil {
			return nil, err
		}
		return av1.Bitstream{seq}.Marshal()

	default:
		return nil, fmt.Errorf("%w: video %q", ErrUnsupportedCodec, name)
	}
}

// av1SequenceHeader extracts the sequence header OBU from an av1C record or
// from a bare sequence of OBUs.
func av1SequenceHeader(description []byte) ([]byte, error) {
	obus := description
	// av1C starts with marker 1 and version 1.
	if len(description) >= 4 && description[0] == 0x81 {
		obus = description[4:]
	}

	var bs av1.Bitstream
	if err := bs.Unmarshal(obus); err != nil {
		return nil, fmt.Errorf("parsing AV1 configuration OBUs: %w", err)
	}
	for _, obu := range bs {
		if len(obu) == 0 {
			continue
		}
		if av1.OBUType((obu[0]>>3)&0x0F) == av1.OBUTypeSequenceHeader {
			return obu, nil
		}
	}
	return nil, errors.New("no AV1 sequence header in configuration")
}
