// Package codecconfig builds and reads the decoder configuration records
// (avcC and hvcC) stored in the sample entries of a recording.
package codecconfig

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// maxParameterSetSize is the largest parameter set a record can describe,
// bounded by its 16-bit length field.
const maxParameterSetSize = 0xFFFF

// Errors returned by the builders and readers.
var (
	ErrEmptyParameterSet    = errors.New("parameter set is empty")
	ErrParameterSetTooLarge = errors.New("parameter set exceeds 65535 bytes")
	ErrSPSTooShort          = errors.New("SPS shorter than 4 bytes")
	ErrInvalidRecord        = errors.New("invalid decoder configuration record")
)

// BuildAVC builds an AVCDecoderConfigurationRecord from one SPS and one PPS
// NAL unit, header byte included.
//
// Layout: version 1, the profile, compatibility and level bytes copied from
// the SPS, 0xFF (4-byte lengths), 0xE1 (one SPS), then the SPS and the single
// PPS each preceded by its 16-bit length.
func BuildAVC(sps, pps []byte) ([]byte, error) {
	if len(sps) == 0 {
		return nil, fmt.Errorf("SPS: %w", ErrEmptyParameterSet)
	}
	if len(pps) == 0 {
		return nil, fmt.Errorf("PPS: %w", ErrEmptyParameterSet)
	}
	if len(sps) < 4 {
		return nil, ErrSPSTooShort
	}
	if len(sps) > maxParameterSetSize {
		return nil, fmt.Errorf("SPS: %w", ErrParameterSetTooLarge)
	}
	if len(pps) > maxParameterSetSize {
		return nil, fmt.Errorf("PPS: %w", ErrParameterSetTooLarge)
	}

	out := make([]byte, 0, 11+len(sps)+len(pps))
	out = append(out,
		1,
		sps[1], // profile_idc
		sps[2], // constraint flags
		sps[3], // level_idc
		0xFF,
		0xE1,
	)
	out = binary.BigEndian.AppendUint16(out, uint16(len(sps)))
	out = append(out, sps...)
	out = append(out, 1)
	out = binary.BigEndian.AppendUint16(out, uint16(len(pps)))
	out = append(out, pps...)
	return out, nil
}

// ParseAVC returns the first SPS and PPS stored in an avcC record.
func ParseAVC(record []byte) (sps, pps []byte, err error) {
	if len(record) < 7 || record[0] != 1 {
		return nil, nil, ErrInvalidRecord
	}

	pos := 5
	numSPS := int(record[pos] & 0x1F)
	pos++
	for i := 0; i < numSPS; i++ {
		var nal []byte
		nal, pos, err = readSizedNAL(record, pos)
		if err != nil {
			return nil, nil, err
		}
		if sps == nil {
			sps = nal
		}
	}

	if pos >= len(record) {
		return nil, nil, fmt.Errorf("%w: missing PPS count", ErrInvalidRecord)
	}
	numPPS := int(record[pos])
	pos++
	for i := 0; i < numPPS; i++ {
		var nal []byte
		nal, pos, err = readSizedNAL(record, pos)
		if err != nil {
			return nil, nil, err
		}
		if pps == nil {
			pps = nal
		}
	}

	if sps == nil || pps == nil {
		return nil, nil, fmt.Errorf("%w: SPS or PPS missing", ErrInvalidRecord)
	}
	return sps, pps, nil
}

func readSizedNAL(buf []byte, pos int) ([]byte, int, error) {
	if pos+2 > len(buf) {
		return nil, pos, fmt.Errorf("%w: truncated length", ErrInvalidRecord)
	}
	n := int(binary.BigEndian.Uint16(buf[pos:]))
	pos += 2
	if pos+n > len(buf) {
		return nil, pos, fmt.Errorf("%w: truncated parameter set", ErrInvalidRecord)
	}
	return buf[pos : pos+n], pos + n, nil
}
