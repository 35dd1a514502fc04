package container

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/screenrec/internal/annexb"
	"github.com/jmylchreest/screenrec/internal/codec"
	"github.com/jmylchreest/screenrec/internal/codecconfig"
)

var testSPS = []byte{
	0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
	0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
	0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
	0x20,
}

var testPPS = []byte{0x68, 0xce, 0x3c, 0x80}

func testAVCRecord(t *testing.T) []byte {
	t.Helper()
	record, err := codecconfig.BuildAVC(testSPS, testPPS)
	require.NoError(t, err)
	return record
}

func testFrame(nalType byte) []byte {
	return annexb.Frame([][]byte{{nalType, 0x88, 0x84, 0x00, 0x33}})
}

func newTestWriter(t *testing.T, audio *AudioOptions) *Writer {
	t.Helper()
	w, err := NewWriter(Options{
		VideoCodec: codec.ContainerAVC,
		Width:      1920,
		Height:     1080,
		Audio:      audio,
	})
	require.NoError(t, err)
	return w
}

func TestWriterH264WithAudio(t *testing.T) {
	w := newTestWriter(t, &AudioOptions{
		Codec:        codec.ContainerAAC,
		SampleRate:   48000,
		ChannelCount: 2,
	})
	record := testAVCRecord(t)

	require.NoError(t, w.AppendVideoSample(testFrame(0x65), SampleKey, 0, record))
	require.NoError(t, w.AppendAudioSample([]byte{0x21, 0x10, 0x04}, 0))
	require.NoError(t, w.AppendVideoSample(testFrame(0x41), SampleDelta, 16667, nil))
	require.NoError(t, w.AppendAudioSample([]byte{0x21, 0x10, 0x05}, 21333))
	require.NoError(t, w.AppendVideoSample(testFrame(0x41), SampleDelta, 33333, nil))
	require.NoError(t, w.AppendVideoSample(testFrame(0x65), SampleKey, 50000, nil))
	require.NoError(t, w.AppendAudioSample([]byte{0x21, 0x10, 0x06}, 42666))
	require.NoError(t, w.AppendVideoSample(testFrame(0x41), SampleDelta, 66667, nil))

	data, err := w.Finalize()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	info, err := Probe(data)
	require.NoError(t, err)
	assert.Equal(t, codec.ContainerAVC, info.VideoCodec)
	assert.Equal(t, codec.ContainerAAC, info.AudioCodec)
	assert.True(t, info.HasAudio())
	assert.Equal(t, 5, info.VideoSamples)
	assert.Equal(t, 3, info.AudioSamples)
	assert.Equal(t, 2, info.Fragments)
	assert.Equal(t, time.Duration(7500)*time.Second/90000, info.Duration)
}

func TestWriterVideoOnly(t *testing.T) {
	w := newTestWriter(t, nil)

	require.NoError(t, w.AppendVideoSample(testFrame(0x65), SampleKey, 0, testAVCRecord(t)))
	data, err := w.Finalize()
	require.NoError(t, err)

	info, err := Probe(data)
	require.NoError(t, err)
	assert.False(t, info.HasAudio())
	assert.Equal(t, 1, info.VideoSamples)
	assert.Equal(t, 1, info.Fragments)
	assert.Equal(t, time.Second/DefaultFrameRate, info.Duration)

	assert.ErrorIs(t, w.AppendAudioSample([]byte{1}, 0), ErrFinalized)
}

func readParts(t *testing.T, data []byte) fmp4.Parts {
	t.Helper()
	var parts fmp4.Parts
	require.NoError(t, parts.Unmarshal(data))
	return parts
}

func TestWriterSendsChangedDescriptionInBand(t *testing.T) {
	w := newTestWriter(t, nil)
	otherPPS := []byte{0x68, 0xce, 0x3c, 0x81}
	changed, err := codecconfig.BuildAVC(testSPS, otherPPS)
	require.NoError(t, err)

	require.NoError(t, w.AppendVideoSample(testFrame(0x65), SampleKey, 0, testAVCRecord(t)))
	require.NoError(t, w.AppendVideoSample(testFrame(0x41), SampleDelta, 16667, changed))
	require.NoError(t, w.AppendVideoSample(testFrame(0x65), SampleKey, 33333, nil))
	require.NoError(t, w.AppendVideoSample(testFrame(0x65), SampleKey, 50000, changed))
	data, err := w.Finalize()
	require.NoError(t, err)

	parts := readParts(t, data)
	require.Len(t, parts, 3)

	delta := parts[0].Tracks[0].Samples[1].Payload
	assert.Equal(t, testFrame(0x41), delta, "parameter sets wait for a keyframe")

	key := parts[1].Tracks[0].Samples[0].Payload
	inBand := annexb.Frame([][]byte{testSPS, otherPPS})
	assert.Equal(t, append(inBand, testFrame(0x65)...), key)

	assert.Equal(t, testFrame(0x65), parts[2].Tracks[0].Samples[0].Payload)
}

func TestWriterSkipsUntilDecodableKeyframe(t *testing.T) {
	w := newTestWriter(t, &AudioOptions{
		Codec:        codec.ContainerOpus,
		SampleRate:   48000,
		ChannelCount: 2,
	})

	require.NoError(t, w.AppendVideoSample(testFrame(0x41), SampleDelta, 0, testAVCRecord(t)))
	require.NoError(t, w.AppendAudioSample([]byte{0xfc, 0xff}, 5000))
	require.NoError(t, w.AppendVideoSample(testFrame(0x41), SampleDelta, 16667, nil))
	require.NoError(t, w.AppendVideoSample(testFrame(0x65), SampleKey, 33333, nil))
	require.NoError(t, w.AppendAudioSample([]byte{0xfc, 0xfe}, 35000))
	require.NoError(t, w.AppendVideoSample(testFrame(0x41), SampleDelta, 50000, nil))

	data, err := w.Finalize()
	require.NoError(t, err)

	info, err := Probe(data)
	require.NoError(t, err)
	assert.Equal(t, 2, info.VideoSamples)
	assert.Equal(t, 1, info.AudioSamples)
	assert.Equal(t, 2, w.skippedVideo)

	parts := readParts(t, data)
	require.NotEmpty(t, parts)
	assert.Equal(t, uint64(33333*90000/1_000_000), parts[0].Tracks[0].BaseTime)
	assert.False(t, parts[0].Tracks[0].Samples[0].IsNonSyncSample)
}

func TestWriterWarnsOnVideoSizeMismatch(t *testing.T) {
	var logs bytes.Buffer
	w, err := NewWriter(Options{
		VideoCodec: codec.ContainerAVC,
		Width:      640,
		Height:     480,
		Logger:     slog.New(slog.NewTextHandler(&logs, nil)),
	})
	require.NoError(t, err)

	require.NoError(t, w.AppendVideoSample(testFrame(0x65), SampleKey, 0, testAVCRecord(t)))
	assert.Contains(t, logs.String(), "video size differs from the decoder configuration")
	assert.Contains(t, logs.String(), "width=640")

	_, err = w.Finalize()
	require.NoError(t, err)
}

func TestWriterErrors(t *testing.T) {
	t.Run("never described", func(t *testing.T) {
		w := newTestWriter(t, nil)
		require.NoError(t, w.AppendVideoSample(testFrame(0x65), SampleKey, 0, nil))
		_, err := w.Finalize()
		assert.ErrorIs(t, err, ErrNoVideo)
	})

	t.Run("invalid description", func(t *testing.T) {
		w := newTestWriter(t, nil)
		err := w.AppendVideoSample(testFrame(0x65), SampleKey, 0, []byte{0x02})
		assert.ErrorIs(t, err, codecconfig.ErrInvalidRecord)
	})

	t.Run("no video", func(t *testing.T) {
		w := newTestWriter(t, nil)
		_, err := w.Finalize()
		assert.ErrorIs(t, err, ErrNoVideo)
	})

	t.Run("no audio track", func(t *testing.T) {
		w := newTestWriter(t, nil)
		assert.ErrorIs(t, w.AppendAudioSample([]byte{1}, 0), ErrNoAudioTrack)
	})

	t.Run("finalize twice", func(t *testing.T) {
		w := newTestWriter(t, nil)
		require.NoError(t, w.AppendVideoSample(testFrame(0x65), SampleKey, 0, testAVCRecord(t)))
		_, err := w.Finalize()
		require.NoError(t, err)
		_, err = w.Finalize()
		assert.ErrorIs(t, err, ErrFinalized)
	})
}

func TestNewWriterValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{
			name: "unknown video codec",
			opts: Options{VideoCodec: "vp08", Width: 640, Height: 480},
			want: ErrUnsupportedCodec,
		},
		{
			name: "unknown audio codec",
			opts: Options{
				VideoCodec: codec.ContainerHEVC, Width: 640, Height: 480,
				Audio: &AudioOptions{Codec: "mp3", SampleRate: 48000, ChannelCount: 2},
			},
			want: ErrUnsupportedCodec,
		},
		{
			name: "pcm without bit depth",
			opts: Options{
				VideoCodec: codec.ContainerAV1, Width: 640, Height: 480,
				Audio: &AudioOptions{Codec: codec.ContainerLPCM, SampleRate: 48000, ChannelCount: 2},
			},
			want: ErrUnsupportedCodec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWriter(tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := NewWriter(Options{VideoCodec: codec.ContainerAVC})
	assert.Error(t, err)
}

func TestAudioFrameDuration(t *testing.T) {
	tests := []struct {
		codec    string
		size     int
		expected uint32
	}{
		{codec.ContainerAAC, 300, 1024},
		{codec.ContainerOpus, 120, 960},
		{codec.ContainerLPCM, 3840, 960},
	}

	for _, tt := range tests {
		t.Run(tt.codec, func(t *testing.T) {
			w := newTestWriter(t, &AudioOptions{
				Codec:        tt.codec,
				SampleRate:   48000,
				ChannelCount: 2,
				BitDepth:     16,
			})
			assert.Equal(t, tt.expected, w.audioFrameDuration(tt.size))
		})
	}
}

func TestSampleKindString(t *testing.T) {
	assert.Equal(t, "key", SampleKey.String())
	assert.Equal(t, "delta", SampleDelta.String())
}
