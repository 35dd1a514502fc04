// Package replay retains the data packets received since the last video
// keyframe so a recording started mid-stream can begin from a decodable
// point.
package replay

import "github.com/jmylchreest/screenrec/internal/media"

// Entry is one buffered data packet and the track it arrived on.
type Entry struct {
	Track  media.Track
	Packet media.DataPacket
}

// Buffer holds the packets of the current group of pictures in arrival
// order. It has no upper bound. Buffer is not safe for concurrent use.
type Buffer struct {
	entries []Entry
	size    int
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Push appends a data packet. A video keyframe empties the buffer first so
// the buffer always starts at the most recent keyframe.
func (b *Buffer) Push(track media.Track, pkt media.DataPacket) {
	if v, ok := pkt.(media.VideoPacket); ok && track == media.TrackVideo && v.Keyframe {
		b.Clear()
	}
	b.entries = append(b.entries, Entry{Track: track, Packet: pkt})
	b.size += len(pkt.Payload())
}

// Entries returns the buffered entries in arrival order. The returned slice
// must not be modified.
func (b *Buffer) Entries() []Entry {
	return b.entries
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Size returns the total payload size of the buffered entries in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Clear drops every entry.
func (b *Buffer) Clear() {
	clear(b.entries)
	b.entries = b.entries[:0]
	b.size = 0
}
