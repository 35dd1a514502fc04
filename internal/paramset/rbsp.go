package paramset

import (
	"bytes"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/icza/bitio"
)

// rbspReader reads fields of a parameter set payload after emulation
// prevention bytes have been removed.
type rbspReader struct {
	br *bitio.Reader
}

func newRBSPReader(payload []byte) *rbspReader {
	rbsp := h264.EmulationPreventionRemove(payload)
	return &rbspReader{br: bitio.NewReader(bytes.NewReader(rbsp))}
}

func (r *rbspReader) bits(n uint8) (uint64, error) {
	return r.br.ReadBits(n)
}

func (r *rbspReader) skip(n int) error {
	for n > 0 {
		chunk := n
		if chunk > 64 {
			chunk = 64
		}
		if _, err := r.br.ReadBits(uint8(chunk)); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func (r *rbspReader) flag() (bool, error) {
	v, err := r.br.ReadBits(1)
	return v == 1, err
}

// ue reads an unsigned exp-Golomb code.
func (r *rbspReader) ue() (uint32, error) {
	leadingZeroBits := uint8(0)
	for {
		b, err := r.br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if b != 0 {
			break
		}
		leadingZeroBits++
		if leadingZeroBits > 31 {
			return 0, errGolombOverflow
		}
	}

	if leadingZeroBits == 0 {
		return 0, nil
	}
	v, err := r.br.ReadBits(leadingZeroBits)
	if err != nil {
		return 0, err
	}
	return uint32((uint64(1)<<leadingZeroBits)-1) + uint32(v), nil
}

// se reads a signed exp-Golomb code.
func (r *rbspReader) se() (int32, error) {
	v, err := r.ue()
	if err != nil {
		return 0, err
	}
	if v&1 != 0 {
		return int32((v + 1) / 2), nil
	}
	return -int32(v / 2), nil
}

func (r *rbspReader) skipUE(n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.ue(); err != nil {
			return err
		}
	}
	return nil
}
