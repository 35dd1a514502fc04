package codecconfig

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAVC(t *testing.T) {
	sps := []byte{0x67, 0x64, 0x00, 0x1F, 0xAC, 0xD9, 0x40}
	pps := []byte{0x68, 0xEB, 0xE3, 0xCB}

	record, err := BuildAVC(sps, pps)
	require.NoError(t, err)

	assert.Len(t, record, 11+len(sps)+len(pps))
	assert.Equal(t, []byte{0x01, 0x64, 0x00, 0x1F, 0xFF, 0xE1, 0x00, 0x07}, record[:8])
	assert.Equal(t, sps, record[8:15])
	assert.Equal(t, []byte{0x01, 0x00, 0x04}, record[15:18])
	assert.Equal(t, pps, record[18:])

	gotSPS, gotPPS, err := ParseAVC(record)
	require.NoError(t, err)
	assert.Equal(t, sps, gotSPS)
	assert.Equal(t, pps, gotPPS)
}

func TestBuildAVCErrors(t *testing.T) {
	pps := []byte{0x68, 0xEB}
	big := bytes.Repeat([]byte{0x67}, 70000)

	tests := []struct {
		name string
		sps  []byte
		pps  []byte
		want error
	}{
		{"empty SPS", nil, pps, ErrEmptyParameterSet},
		{"empty PPS", []byte{0x67, 0x42, 0x00, 0x1E}, nil, ErrEmptyParameterSet},
		{"short SPS", []byte{0x67, 0x42}, pps, ErrSPSTooShort},
		{"oversized SPS", big, pps, ErrParameterSetTooLarge},
		{"oversized PPS", []byte{0x67, 0x42, 0x00, 0x1E}, big, ErrParameterSetTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildAVC(tt.sps, tt.pps)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseAVCInvalid(t *testing.T) {
	_, _, err := ParseAVC([]byte{0x01, 0x64})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, _, err = ParseAVC([]byte{0x01, 0x64, 0x00, 0x1F, 0xFF, 0xE1, 0x00, 0x09, 0x67})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func testHEVCParameterSets() HEVCParameterSets {
	return HEVCParameterSets{
		VPS: NALUnit{Type: NALTypeVPS, Data: make([]byte, 10)},
		SPS: NALUnit{Type: NALTypeSPS, Data: make([]byte, 20)},
		PPS: NALUnit{Type: NALTypePPS, Data: make([]byte, 5)},
		PTL: ProfileTierLevel{
			ProfileSpace:         0,
			TierFlag:             1,
			ProfileIDC:           1,
			ProfileCompatibility: [4]byte{0x60, 0x00, 0x00, 0x00},
			ConstraintFlags:      [6]byte{0x90, 0x00, 0x00, 0x00, 0x00, 0x00},
			LevelIDC:             123,
			MaxSubLayersMinus1:   0,
			TemporalIDNesting:    true,
		},
		Sequence: SequenceFormat{
			ChromaFormatIDC:           1,
			BitDepthLumaMinus8:        2,
			BitDepthChromaMinus8:      2,
			MinSpatialSegmentationIDC: 0x123,
		},
	}
}

func TestBuildHEVC(t *testing.T) {
	p := testHEVCParameterSets()

	record, err := BuildHEVC(p)
	require.NoError(t, err)
	require.Len(t, record, 23+15+10+20+5)

	assert.Equal(t, byte(0x01), record[0])
	assert.Equal(t, byte(0x21), record[1])
	assert.Equal(t, []byte{0x60, 0x00, 0x00, 0x00}, record[2:6])
	assert.Equal(t, []byte{0x90, 0x00, 0x00, 0x00, 0x00, 0x00}, record[6:12])
	assert.Equal(t, byte(123), record[12])
	assert.Equal(t, byte(0xF1), record[13])
	assert.Equal(t, byte(0x23), record[14])
	assert.Equal(t, byte(0xFC), record[15])
	assert.Equal(t, byte(0xFD), record[16])
	assert.Equal(t, byte(0xFA), record[17])
	assert.Equal(t, byte(0xFA), record[18])
	assert.Equal(t, []byte{0, 0}, record[19:21])
	assert.Equal(t, byte(0x0F), record[21])
	assert.Equal(t, byte(3), record[22])

	assert.Equal(t, []byte{32, 0x00, 0x01, 0x00, 10}, record[23:28])
	assert.Equal(t, byte(33), record[23+5+10])
	assert.Equal(t, byte(34), record[23+5+10+5+20])

	vps, sps, pps, err := ParseHEVC(record)
	require.NoError(t, err)
	assert.Equal(t, p.VPS.Data, vps)
	assert.Equal(t, p.SPS.Data, sps)
	assert.Equal(t, p.PPS.Data, pps)
}

func TestBuildHEVCMultipleTemporalLayers(t *testing.T) {
	p := testHEVCParameterSets()
	p.PTL.MaxSubLayersMinus1 = 2
	p.PTL.TemporalIDNesting = false

	record, err := BuildHEVC(p)
	require.NoError(t, err)
	assert.Equal(t, byte(3<<3|3), record[21])
}

func TestBuildHEVCErrors(t *testing.T) {
	p := testHEVCParameterSets()
	p.PPS.Data = nil
	_, err := BuildHEVC(p)
	assert.ErrorIs(t, err, ErrEmptyParameterSet)

	p = testHEVCParameterSets()
	p.SPS.Data = make([]byte, 65536)
	_, err = BuildHEVC(p)
	assert.ErrorIs(t, err, ErrParameterSetTooLarge)
}

func TestParseHEVCInvalid(t *testing.T) {
	_, _, _, err := ParseHEVC(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	record, err := BuildHEVC(testHEVCParameterSets())
	require.NoError(t, err)
	_, _, _, err = ParseHEVC(record[:30])
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
