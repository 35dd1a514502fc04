// Package codec provides the codec identifiers understood by screenrec and
// their fixed mapping to the sample entry names of the recorded container.
package codec

import "strings"

// Video represents a video codec.
type Video string

// Video codec constants.
const (
	VideoH264 Video = "h264" // H.264/AVC
	VideoH265 Video = "h265" // H.265/HEVC
	VideoAV1  Video = "av1"  // AV1
)

// Audio represents an audio codec.
type Audio string

// Audio codec constants.
const (
	AudioRaw  Audio = "raw"  // 16-bit little-endian PCM
	AudioAAC  Audio = "aac"  // AAC-LC, raw access units
	AudioOpus Audio = "opus" // Opus packets
)

// Container sample entry names. These are defined by ISO/IEC 14496-12 and its
// codec bindings and must not be changed.
const (
	ContainerAVC  = "avc1"
	ContainerHEVC = "hvc1"
	ContainerAV1  = "av01"
	ContainerLPCM = "ipcm"
	ContainerAAC  = "mp4a"
	ContainerOpus = "Opus"
)

// String returns the string representation of the video codec.
func (v Video) String() string {
	return string(v)
}

// String returns the string representation of the audio codec.
func (a Audio) String() string {
	return string(a)
}

// ContainerName returns the container sample entry name for the codec,
// or an empty string for an unknown codec.
func (v Video) ContainerName() string {
	switch v {
	case VideoH264:
		return ContainerAVC
	case VideoH265:
		return ContainerHEVC
	case VideoAV1:
		return ContainerAV1
	default:
		return ""
	}
}

// ContainerName returns the container sample entry name for the codec,
// or an empty string for an unknown codec.
func (a Audio) ContainerName() string {
	switch a {
	case AudioRaw:
		return ContainerLPCM
	case AudioAAC:
		return ContainerAAC
	case AudioOpus:
		return ContainerOpus
	default:
		return ""
	}
}

// UsesAnnexB reports whether access units of the codec arrive as Annex-B
// byte streams and must be converted to length-prefixed samples.
func (v Video) UsesAnnexB() bool {
	return v == VideoH264 || v == VideoH265
}

// AudioDescriptor identifies the audio track of a recording.
type AudioDescriptor struct {
	Codec         Audio
	ContainerName string
}

// DescribeAudio returns the descriptor for an audio codec.
func DescribeAudio(a Audio) AudioDescriptor {
	return AudioDescriptor{Codec: a, ContainerName: a.ContainerName()}
}

// videoAliases maps accepted spellings to canonical video codecs.
var videoAliases = map[string]Video{
	"h264": VideoH264,
	"avc":  VideoH264,
	"avc1": VideoH264,
	"h265": VideoH265,
	"hevc": VideoH265,
	"hvc1": VideoH265,
	"hev1": VideoH265,
	"av1":  VideoAV1,
	"av01": VideoAV1,
}

// audioAliases maps accepted spellings to canonical audio codecs.
var audioAliases = map[string]Audio{
	"raw":  AudioRaw,
	"pcm":  AudioRaw,
	"ipcm": AudioRaw,
	"aac":  AudioAAC,
	"mp4a": AudioAAC,
	"opus": AudioOpus,
}

// ParseVideo parses a video codec name or alias.
func ParseVideo(s string) (Video, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	v, ok := videoAliases[s]
	return v, ok
}

// ParseAudio parses an audio codec name or alias.
func ParseAudio(s string) (Audio, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	a, ok := audioAliases[s]
	return a, ok
}
