package container

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/jmylchreest/screenrec/internal/codec"
)

// Info summarizes a fragmented MP4 recording.
type Info struct {
	VideoCodec   string
	AudioCodec   string
	VideoSamples int
	AudioSamples int
	Fragments    int
	Duration     time.Duration
}

// HasAudio reports whether the recording has an audio track.
func (i Info) HasAudio() bool {
	return i.AudioCodec != ""
}

// Probe reads the tracks, fragment count and video duration of a recording.
func Probe(data []byte) (Info, error) {
	var init fmp4.Init
	if err := init.Unmarshal(bytes.NewReader(data)); err != nil {
		return Info{}, fmt.Errorf("parsing init segment: %w", err)
	}

	var info Info
	var videoID, audioID int
	var videoTimescale uint32
	for _, t := range init.Tracks {
		switch t.Codec.(type) {
		case *mp4.CodecH264:
			info.VideoCodec, videoID, videoTimescale = codec.ContainerAVC, t.ID, t.TimeScale
		case *mp4.CodecH265:
			info.VideoCodec, videoID, videoTimescale = codec.ContainerHEVC, t.ID, t.TimeScale
		case *mp4.CodecAV1:
			info.VideoCodec, videoID, videoTimescale = codec.ContainerAV1, t.ID, t.TimeScale
		case *mp4.CodecMPEG4Audio:
			info.AudioCodec, audioID = codec.ContainerAAC, t.ID
		case *mp4.CodecOpus:
			info.AudioCodec, audioID = codec.ContainerOpus, t.ID
		case *mp4.CodecLPCM:
			info.AudioCodec, audioID = codec.ContainerLPCM, t.ID
		}
	}
	if videoID == 0 {
		return Info{}, ErrNoVideo
	}

	var parts fmp4.Parts
	if err := parts.Unmarshal(data); err != nil {
		return Info{}, fmt.Errorf("parsing fragments: %w", err)
	}
	info.Fragments = len(parts)

	var first, end uint64
	seen := false
	for _, part := range parts {
		for _, t := range part.Tracks {
			switch t.ID {
			case videoID:
				if !seen {
					first, seen = t.BaseTime, true
				}
				pos := t.BaseTime
				for _, s := range t.Samples {
					pos += uint64(s.Duration)
				}
				end = max(end, pos)
				info.VideoSamples += len(t.Samples)
			case audioID:
				info.AudioSamples += len(t.Samples)
			}
		}
	}

	if seen && videoTimescale > 0 {
		ticks := end - first
		info.Duration = time.Duration(ticks) * time.Second / time.Duration(videoTimescale)
	}
	return info, nil
}
