// Package media defines the packets flowing from a mirroring source into the
// recorder.
package media

import "github.com/jmylchreest/screenrec/internal/codec"

// Track identifies the elementary stream a packet belongs to.
type Track int

// Track constants.
const (
	TrackVideo Track = iota
	TrackAudio
)

// String returns the track name.
func (t Track) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Packet is one inbound unit of a stream. The concrete type is one of
// ConfigurationPacket, VideoPacket or AudioPacket.
type Packet interface {
	// Payload returns the raw bytes carried by the packet.
	Payload() []byte
	isPacket()
}

// ConfigurationPacket carries out-of-band codec configuration. For H.264 and
// H.265 it holds Annex-B parameter sets, for AV1 the codec configuration
// payload.
type ConfigurationPacket struct {
	Data []byte
}

// VideoPacket carries one compressed video access unit.
type VideoPacket struct {
	Data      []byte
	Timestamp int64
	Keyframe  bool
}

// AudioPacket carries one compressed audio frame.
type AudioPacket struct {
	Data      []byte
	Timestamp int64
}

func (p ConfigurationPacket) Payload() []byte { return p.Data }
func (p VideoPacket) Payload() []byte         { return p.Data }
func (p AudioPacket) Payload() []byte         { return p.Data }

func (ConfigurationPacket) isPacket() {}
func (VideoPacket) isPacket()         {}
func (AudioPacket) isPacket()         {}

// DataPacket is a packet that carries media samples rather than configuration.
type DataPacket interface {
	Packet
	// Time returns the stream timestamp of the packet.
	Time() int64
}

func (p VideoPacket) Time() int64 { return p.Timestamp }
func (p AudioPacket) Time() int64 { return p.Timestamp }

// VideoMetadata describes the video stream. It is supplied once before a
// recording starts.
type VideoMetadata struct {
	Codec  codec.Video
	Width  int
	Height int
}

// Valid reports whether the metadata names a known codec and a positive size.
func (m VideoMetadata) Valid() bool {
	return m.Codec.ContainerName() != "" && m.Width > 0 && m.Height > 0
}
