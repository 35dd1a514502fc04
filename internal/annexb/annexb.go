// Package annexb converts between Annex-B byte streams and the 4-byte
// length-prefixed sample framing used by ISO-BMFF containers.
package annexb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// LengthSize is the size of the big-endian length prefix written before each
// NAL unit of a sample.
const LengthSize = 4

// ErrTruncated is returned when a length-prefixed buffer ends inside a unit.
var ErrTruncated = errors.New("length-prefixed buffer truncated")

// Split splits an Annex-B byte stream into NAL units without start codes.
// Both 3 and 4 byte start codes are recognized. An empty stream yields no
// units.
func Split(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var au h264.AnnexB
	if err := au.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("parsing annex-b stream: %w", err)
	}
	return au, nil
}

// Frame writes each unit prefixed by its length as a 4-byte big-endian
// integer. The output length is the sum of len(unit)+4 over all units.
func Frame(units [][]byte) []byte {
	// AVCC.Marshal never fails.
	out, _ := h264.AVCC(units).Marshal()
	return out
}

// FrameAnnexB converts an Annex-B access unit into length-prefixed sample
// bytes.
func FrameAnnexB(data []byte) ([]byte, error) {
	units, err := Split(data)
	if err != nil {
		return nil, err
	}
	return Frame(units), nil
}

// SplitLengthPrefixed reverses Frame, returning the units of a sample.
// Unlike h264.AVCC.Unmarshal it keeps empty units, accepts an empty sample
// and puts no limit on the number of units.
func SplitLengthPrefixed(data []byte) ([][]byte, error) {
	var units [][]byte
	for pos := 0; pos < len(data); {
		if len(data)-pos < LengthSize {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrTruncated, len(data)-pos)
		}
		n := int(binary.BigEndian.Uint32(data[pos:]))
		pos += LengthSize
		if n > len(data)-pos {
			return nil, fmt.Errorf("%w: unit of %d bytes, %d remaining", ErrTruncated, n, len(data)-pos)
		}
		units = append(units, data[pos:pos+n])
		pos += n
	}
	return units, nil
}
