// Package scrcpy decodes the device stream framing used by scrcpy servers.
//
// A video stream starts with a 12-byte header (codec id, width, height) and an
// audio stream with a 4-byte codec id. Both are followed by packets, each a
// 12-byte header and a payload:
//
//	u64 pts_and_flags  bit 63 config, bit 62 keyframe, bits 0-61 PTS in µs
//	u32 size
//	u8  payload[size]
package scrcpy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/jmylchreest/screenrec/internal/codec"
	"github.com/jmylchreest/screenrec/internal/media"
)

// Codec ids sent in stream headers.
const (
	CodecIDH264 uint32 = 0x68323634 // "h264"
	CodecIDH265 uint32 = 0x68323635 // "h265"
	CodecIDAV1  uint32 = 0x00617631 // "av1"
	CodecIDRaw  uint32 = 0x00726177 // "raw"
	CodecIDAAC  uint32 = 0x00616163 // "aac"
	CodecIDOpus uint32 = 0x6f707573 // "opus"

	// audioDisabled and audioError replace the audio codec id when the
	// device does not capture audio.
	audioDisabled uint32 = 0
	audioError    uint32 = 1
)

const (
	flagConfig   uint64 = 1 << 63
	flagKeyframe uint64 = 1 << 62
	ptsMask             = flagKeyframe - 1

	// DeviceNameLength is the size of the optional device name header.
	DeviceNameLength = 64

	// MaxPacketSize bounds the payload size accepted from the stream.
	MaxPacketSize = 64 << 20

	packetHeaderSize = 12
)

// Errors returned while decoding a stream.
var (
	ErrUnknownCodec     = errors.New("unknown codec id")
	ErrAudioDisabled    = errors.New("audio disabled by device")
	ErrAudioUnavailable = errors.New("audio capture failed on device")
	ErrPacketTooLarge   = errors.New("packet exceeds maximum size")
	ErrInvalidVideoSize = errors.New("invalid video size")
)

var videoCodecs = map[uint32]codec.Video{
	CodecIDH264: codec.VideoH264,
	CodecIDH265: codec.VideoH265,
	CodecIDAV1:  codec.VideoAV1,
}

var audioCodecs = map[uint32]codec.Audio{
	CodecIDRaw:  codec.AudioRaw,
	CodecIDAAC:  codec.AudioAAC,
	CodecIDOpus: codec.AudioOpus,
}

// ReadDeviceName reads the NUL-padded device name some servers send before
// the first stream header.
func ReadDeviceName(r io.Reader) (string, error) {
	buf := make([]byte, DeviceNameLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("reading device name: %w", err)
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// ReadVideoHeader reads the video stream header.
func ReadVideoHeader(r io.Reader) (media.VideoMetadata, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return media.VideoMetadata{}, fmt.Errorf("reading video header: %w", err)
	}

	id := binary.BigEndian.Uint32(hdr[0:4])
	c, ok := videoCodecs[id]
	if !ok {
		return media.VideoMetadata{}, fmt.Errorf("%w: video 0x%08x", ErrUnknownCodec, id)
	}
	meta := media.VideoMetadata{
		Codec:  c,
		Width:  int(binary.BigEndian.Uint32(hdr[4:8])),
		Height: int(binary.BigEndian.Uint32(hdr[8:12])),
	}
	if !meta.Valid() {
		return media.VideoMetadata{}, fmt.Errorf("%w: %dx%d", ErrInvalidVideoSize, meta.Width, meta.Height)
	}
	return meta, nil
}

// ReadAudioHeader reads the audio stream header. ErrAudioDisabled and
// ErrAudioUnavailable mean the stream carries no packets.
func ReadAudioHeader(r io.Reader) (codec.Audio, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", fmt.Errorf("reading audio header: %w", err)
	}

	id := binary.BigEndian.Uint32(hdr[:])
	switch id {
	case audioDisabled:
		return "", ErrAudioDisabled
	case audioError:
		return "", ErrAudioUnavailable
	}
	c, ok := audioCodecs[id]
	if !ok {
		return "", fmt.Errorf("%w: audio 0x%08x", ErrUnknownCodec, id)
	}
	return c, nil
}

// PacketReader reads the packets of one track.
type PacketReader struct {
	r     *bufio.Reader
	track media.Track
	hdr   [packetHeaderSize]byte
}

// NewPacketReader returns a reader of track packets. The stream header must
// already have been consumed from r.
func NewPacketReader(r io.Reader, track media.Track) *PacketReader {
	return &PacketReader{
		r:     bufio.NewReaderSize(r, 64*1024),
		track: track,
	}
}

// Track returns the track the reader decodes.
func (p *PacketReader) Track() media.Track {
	return p.track
}

// ReadPacket returns the next packet. It returns io.EOF at a clean end of
// stream and io.ErrUnexpectedEOF when the stream ends inside a packet.
func (p *PacketReader) ReadPacket() (media.Packet, error) {
	if _, err := io.ReadFull(p.r, p.hdr[:]); err != nil {
		return nil, err
	}

	ptsFlags := binary.BigEndian.Uint64(p.hdr[0:8])
	size := binary.BigEndian.Uint32(p.hdr[8:12])
	if size > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(p.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading %s payload: %w", p.track, err)
	}

	if ptsFlags&flagConfig != 0 {
		return media.ConfigurationPacket{Data: payload}, nil
	}

	ts := int64(ptsFlags & ptsMask)
	if p.track == media.TrackAudio {
		return media.AudioPacket{Data: payload, Timestamp: ts}, nil
	}
	return media.VideoPacket{
		Data:      payload,
		Timestamp: ts,
		Keyframe:  ptsFlags&flagKeyframe != 0,
	}, nil
}
