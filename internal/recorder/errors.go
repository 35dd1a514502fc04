package recorder

import "errors"

// Sentinel errors returned by the Recorder.
var (
	// ErrConfigurationMissing is returned by Start when no video metadata has
	// been supplied.
	ErrConfigurationMissing = errors.New("video metadata not configured")

	// ErrRecordingActive is returned when stream metadata is changed while
	// a recording is in progress.
	ErrRecordingActive = errors.New("recording in progress")

	// ErrAlreadyRecording is returned by Start while a recording is running.
	ErrAlreadyRecording = errors.New("already recording")

	// ErrWriterConstruction wraps failures of the writer factory.
	ErrWriterConstruction = errors.New("creating container writer")

	// ErrReplay wraps failures while replaying buffered packets on Start.
	ErrReplay = errors.New("replaying buffered packets")

	// ErrFinalize wraps failures of the container writer on Stop.
	ErrFinalize = errors.New("finalizing recording")

	// ErrPersist wraps failures of the sink on Stop.
	ErrPersist = errors.New("saving recording")

	// ErrUnexpectedPacket is returned when a packet is submitted on the
	// wrong track.
	ErrUnexpectedPacket = errors.New("unexpected packet type for track")
)
