// Package paramset locates parameter set NAL units in codec configuration
// packets and extracts the fields needed to describe them in a container.
package paramset

import (
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/jmylchreest/screenrec/internal/annexb"
)

// Errors returned by the locators.
var (
	ErrMissingVPS     = errors.New("no VPS in configuration")
	ErrMissingSPS     = errors.New("no SPS in configuration")
	ErrMissingPPS     = errors.New("no PPS in configuration")
	ErrMalformed      = errors.New("malformed parameter set")
	errGolombOverflow = errors.New("exp-golomb code exceeds 32 bits")
)

// H264 holds the parameter sets of an H.264 stream.
type H264 struct {
	SPS []byte
	PPS []byte
}

// LocateH264 returns the first SPS and PPS of an Annex-B configuration
// packet.
func LocateH264(config []byte) (H264, error) {
	units, err := annexb.Split(config)
	if err != nil {
		return H264{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var out H264
	for _, nalu := range units {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS:
			if out.SPS == nil {
				out.SPS = nalu
			}
		case h264.NALUTypePPS:
			if out.PPS == nil {
				out.PPS = nalu
			}
		}
	}

	if out.SPS == nil {
		return H264{}, ErrMissingSPS
	}
	if out.PPS == nil {
		return H264{}, ErrMissingPPS
	}
	return out, nil
}
