package recorder

import "log/slog"

// ConfigStatus is the outcome of handling a configuration packet.
type ConfigStatus int

// ConfigStatus constants.
const (
	// ConfigApplied means the decoder configuration was replaced.
	ConfigApplied ConfigStatus = iota
	// ConfigNoMetadata means the packet arrived before the video codec was
	// known.
	ConfigNoMetadata
	// ConfigInvalid means the parameter sets could not be located or parsed.
	ConfigInvalid
	// ConfigBuildFailed means the parameter sets could not be encoded into a
	// decoder configuration record.
	ConfigBuildFailed
)

// String returns the status name.
func (s ConfigStatus) String() string {
	switch s {
	case ConfigApplied:
		return "applied"
	case ConfigNoMetadata:
		return "no_metadata"
	case ConfigInvalid:
		return "invalid"
	case ConfigBuildFailed:
		return "build_failed"
	default:
		return "unknown"
	}
}

// Stats holds the counters of a Recorder. Counters accumulate across
// recording sessions.
type Stats struct {
	VideoPackets         uint64
	AudioPackets         uint64
	ConfigUpdates        uint64
	AbsorbedConfigErrors uint64
	ForwardedVideo       uint64
	ForwardedAudio       uint64
	ReplayedPackets      uint64
	DroppedAudio         uint64
	CompletedSessions    uint64

	// BufferedPackets and BufferedBytes describe the replay buffer at the
	// time Stats was called.
	BufferedPackets int
	BufferedBytes   int
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("video_packets", s.VideoPackets),
		slog.Uint64("audio_packets", s.AudioPackets),
		slog.Uint64("config_updates", s.ConfigUpdates),
		slog.Uint64("absorbed_config_errors", s.AbsorbedConfigErrors),
		slog.Uint64("forwarded_video", s.ForwardedVideo),
		slog.Uint64("forwarded_audio", s.ForwardedAudio),
		slog.Uint64("replayed_packets", s.ReplayedPackets),
		slog.Uint64("dropped_audio", s.DroppedAudio),
		slog.Uint64("completed_sessions", s.CompletedSessions),
		slog.Int("buffered_packets", s.BufferedPackets),
		slog.Int("buffered_bytes", s.BufferedBytes),
	)
}
