package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/screenrec/internal/media"
)

func video(ts int64, key bool) media.VideoPacket {
	return media.VideoPacket{Data: []byte{byte(ts)}, Timestamp: ts, Keyframe: key}
}

func timestamps(b *Buffer) []int64 {
	var out []int64
	for _, e := range b.Entries() {
		out = append(out, e.Packet.Time())
	}
	return out
}

func TestBufferKeyframeTruncates(t *testing.T) {
	b := New()
	b.Push(media.TrackVideo, video(1, false))
	b.Push(media.TrackVideo, video(2, false))
	b.Push(media.TrackVideo, video(3, true))
	b.Push(media.TrackVideo, video(4, false))

	assert.Equal(t, []int64{3, 4}, timestamps(b))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 2, b.Size())
}

func TestBufferKeepsAudioOrder(t *testing.T) {
	b := New()
	b.Push(media.TrackAudio, media.AudioPacket{Data: []byte{1, 2}, Timestamp: 5})
	b.Push(media.TrackVideo, video(10, true))
	b.Push(media.TrackAudio, media.AudioPacket{Data: []byte{1, 2, 3}, Timestamp: 12})
	b.Push(media.TrackVideo, video(20, false))

	entries := b.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, media.TrackVideo, entries[0].Track)
	assert.Equal(t, media.TrackAudio, entries[1].Track)
	assert.Equal(t, media.TrackVideo, entries[2].Track)
	assert.Equal(t, 5, b.Size())
}

func TestBufferClear(t *testing.T) {
	b := New()
	b.Push(media.TrackVideo, video(1, true))
	b.Clear()

	assert.Zero(t, b.Len())
	assert.Zero(t, b.Size())
	assert.Empty(t, b.Entries())

	b.Push(media.TrackVideo, video(2, false))
	assert.Equal(t, []int64{2}, timestamps(b))
}
