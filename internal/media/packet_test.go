package media

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/screenrec/internal/codec"
)

func TestPacketVariants(t *testing.T) {
	packets := []Packet{
		ConfigurationPacket{Data: []byte{1}},
		VideoPacket{Data: []byte{2}, Timestamp: 10, Keyframe: true},
		AudioPacket{Data: []byte{3}, Timestamp: 20},
	}

	var kinds []string
	for _, p := range packets {
		switch v := p.(type) {
		case ConfigurationPacket:
			kinds = append(kinds, "config")
		case VideoPacket:
			kinds = append(kinds, "video")
			assert.True(t, v.Keyframe)
		case AudioPacket:
			kinds = append(kinds, "audio")
		}
	}
	assert.Equal(t, []string{"config", "video", "audio"}, kinds)
	assert.Equal(t, []byte{2}, packets[1].Payload())

	data, ok := packets[2].(DataPacket)
	assert.True(t, ok)
	assert.Equal(t, int64(20), data.Time())

	_, ok = packets[0].(DataPacket)
	assert.False(t, ok)
}

func TestTrackString(t *testing.T) {
	assert.Equal(t, "video", TrackVideo.String())
	assert.Equal(t, "audio", TrackAudio.String())
	assert.Equal(t, "unknown", Track(7).String())
}

func TestVideoMetadataValid(t *testing.T) {
	assert.True(t, VideoMetadata{Codec: codec.VideoH264, Width: 1080, Height: 2400}.Valid())
	assert.False(t, VideoMetadata{Codec: codec.VideoH264}.Valid())
	assert.False(t, VideoMetadata{Codec: "vp8", Width: 1, Height: 1}.Valid())
}
