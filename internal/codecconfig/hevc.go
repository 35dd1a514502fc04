package codecconfig

import (
	"encoding/binary"
	"fmt"
)

// HEVC NAL unit types of the parameter sets.
const (
	NALTypeVPS uint8 = 32
	NALTypeSPS uint8 = 33
	NALTypePPS uint8 = 34
)

// hevcHeaderSize is the fixed part of an hvcC record before the NAL arrays.
const hevcHeaderSize = 23

// NALUnit is a raw parameter set NAL unit and its type.
type NALUnit struct {
	Type uint8
	Data []byte
}

// ProfileTierLevel holds the general profile, tier and level fields of the
// VPS along with its temporal sub-layer structure.
type ProfileTierLevel struct {
	ProfileSpace         uint8
	TierFlag             uint8
	ProfileIDC           uint8
	ProfileCompatibility [4]byte
	ConstraintFlags      [6]byte
	LevelIDC             uint8
	MaxSubLayersMinus1   uint8
	TemporalIDNesting    bool
}

// SequenceFormat holds the SPS fields copied into the record.
type SequenceFormat struct {
	ChromaFormatIDC           uint8
	BitDepthLumaMinus8        uint8
	BitDepthChromaMinus8      uint8
	MinSpatialSegmentationIDC uint16
}

// HEVCParameterSets is the input of BuildHEVC.
type HEVCParameterSets struct {
	VPS      NALUnit
	SPS      NALUnit
	PPS      NALUnit
	PTL      ProfileTierLevel
	Sequence SequenceFormat
}

// BuildHEVC builds an HEVCDecoderConfigurationRecord holding exactly one VPS,
// SPS and PPS, with 4-byte sample lengths.
func BuildHEVC(p HEVCParameterSets) ([]byte, error) {
	sets := []struct {
		name string
		nal  NALUnit
	}{
		{"VPS", p.VPS},
		{"SPS", p.SPS},
		{"PPS", p.PPS},
	}
	size := hevcHeaderSize
	for _, s := range sets {
		if len(s.nal.Data) == 0 {
			return nil, fmt.Errorf("%s: %w", s.name, ErrEmptyParameterSet)
		}
		if len(s.nal.Data) > maxParameterSetSize {
			return nil, fmt.Errorf("%s: %w", s.name, ErrParameterSetTooLarge)
		}
		size += 5 + len(s.nal.Data)
	}

	ptl := p.PTL
	seq := p.Sequence

	var nesting uint8
	if ptl.TemporalIDNesting {
		nesting = 1
	}

	out := make([]byte, 0, size)
	out = append(out,
		1,
		(ptl.ProfileSpace&0x03)<<6|(ptl.TierFlag&0x01)<<5|ptl.ProfileIDC&0x1F,
	)
	out = append(out, ptl.ProfileCompatibility[:]...)
	out = append(out, ptl.ConstraintFlags[:]...)
	out = append(out,
		ptl.LevelIDC,
		0xF0|uint8(seq.MinSpatialSegmentationIDC>>8)&0x0F,
		uint8(seq.MinSpatialSegmentationIDC),
		0xFC, // parallelismType unknown
		0xFC|seq.ChromaFormatIDC&0x03,
		0xF8|seq.BitDepthLumaMinus8&0x07,
		0xF8|seq.BitDepthChromaMinus8&0x07,
		0, 0, // avgFrameRate
		(ptl.MaxSubLayersMinus1+1)<<3|nesting<<2|3,
		uint8(len(sets)),
	)

	for _, s := range sets {
		out = append(out, s.nal.Type, 0x00, 0x01)
		out = binary.BigEndian.AppendUint16(out, uint16(len(s.nal.Data)))
		out = append(out, s.nal.Data...)
	}
	return out, nil
}

// ParseHEVC returns the first VPS, SPS and PPS stored in an hvcC record.
func ParseHEVC(record []byte) (vps, sps, pps []byte, err error) {
	if len(record) < hevcHeaderSize || record[0] != 1 {
		return nil, nil, nil, ErrInvalidRecord
	}

	numArrays := int(record[hevcHeaderSize-1])
	pos := hevcHeaderSize
	for i := 0; i < numArrays; i++ {
		if pos+3 > len(record) {
			return nil, nil, nil, fmt.Errorf("%w: truncated array header", ErrInvalidRecord)
		}
		nalType := record[pos] & 0x3F
		count := int(binary.BigEndian.Uint16(record[pos+1:]))
		pos += 3

		for j := 0; j < count; j++ {
			var nal []byte
			nal, pos, err = readSizedNAL(record, pos)
			if err != nil {
				return nil, nil, nil, err
			}
			switch {
			case nalType == NALTypeVPS && vps == nil:
				vps = nal
			case nalType == NALTypeSPS && sps == nil:
				sps = nal
			case nalType == NALTypePPS && pps == nil:
				pps = nal
			}
		}
	}

	if vps == nil || sps == nil || pps == nil {
		return nil, nil, nil, fmt.Errorf("%w: VPS, SPS or PPS missing", ErrInvalidRecord)
	}
	return vps, sps, pps, nil
}
