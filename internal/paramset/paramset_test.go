package paramset

import (
	"bytes"
	"testing"

	"github.com/icza/bitio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/screenrec/internal/codecconfig"
)

// nalWriter builds parameter set payloads bit by bit.
type nalWriter struct {
	buf bytes.Buffer
	w   *bitio.Writer
}

func newNALWriter() *nalWriter {
	n := &nalWriter{}
	n.w = bitio.NewWriter(&n.buf)
	return n
}

func (n *nalWriter) bits(v uint64, count uint8) *nalWriter {
	if err := n.w.WriteBits(v, count); err != nil {
		panic(err)
	}
	return n
}

func (n *nalWriter) ue(v uint32) *nalWriter {
	code := uint64(v) + 1
	length := uint8(0)
	for c := code; c > 1; c >>= 1 {
		length++
	}
	n.bits(0, length)
	return n.bits(code, length+1)
}

// finish writes the rbsp trailing bits and inserts emulation prevention
// bytes after the given NAL header.
func (n *nalWriter) finish(header ...byte) []byte {
	n.bits(1, 1)
	if err := n.w.Close(); err != nil {
		panic(err)
	}

	out := append([]byte{}, header...)
	zeros := 0
	for _, b := range n.buf.Bytes() {
		if zeros >= 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

func (n *nalWriter) profileTierLevel() *nalWriter {
	n.bits(0, 2) // general_profile_space
	n.bits(0, 1) // general_tier_flag
	n.bits(1, 5) // general_profile_idc
	n.bits(0x60000000, 32)
	n.bits(0x900000000000, 48)
	return n.bits(93, 8) // general_level_idc
}

func testVPS() []byte {
	n := newNALWriter()
	n.bits(0, 4).bits(1, 1).bits(1, 1).bits(0, 6)
	n.bits(0, 3) // vps_max_sub_layers_minus1
	n.bits(1, 1) // vps_temporal_id_nesting_flag
	n.bits(0xFFFF, 16)
	return n.profileTierLevel().finish(0x40, 0x01)
}

func testSPSHead(n *nalWriter) *nalWriter {
	n.bits(0, 4).bits(0, 3).bits(1, 1)
	n.profileTierLevel()
	n.ue(0)        // sps_seq_parameter_set_id
	n.ue(1)        // chroma_format_idc
	n.ue(1280)     // pic_width_in_luma_samples
	n.ue(720)      // pic_height_in_luma_samples
	n.bits(0, 1)   // conformance_window_flag
	n.ue(2)        // bit_depth_luma_minus8
	return n.ue(2) // bit_depth_chroma_minus8
}

func testSPSWithVUI() []byte {
	n := testSPSHead(newNALWriter())
	n.ue(4)      // log2_max_pic_order_cnt_lsb_minus4
	n.bits(1, 1) // sps_sub_layer_ordering_info_present_flag
	n.ue(4).ue(2).ue(0)
	n.ue(0).ue(3).ue(0).ue(3).ue(0).ue(0)
	n.bits(0, 1) // scaling_list_enabled_flag
	n.bits(0, 1) // amp_enabled_flag
	n.bits(1, 1) // sample_adaptive_offset_enabled_flag
	n.bits(0, 1) // pcm_enabled_flag
	n.ue(2)      // num_short_term_ref_pic_sets

	// st_ref_pic_set(0): one negative picture
	n.ue(1).ue(0).ue(0).bits(1, 1)
	// st_ref_pic_set(1): predicted from set 0
	n.bits(1, 1).bits(0, 1).ue(0)
	n.bits(1, 1)
	n.bits(0, 1).bits(1, 1)

	n.bits(0, 1) // long_term_ref_pics_present_flag
	n.bits(1, 1) // sps_temporal_mvp_enabled_flag
	n.bits(1, 1) // strong_intra_smoothing_enabled_flag
	n.bits(1, 1) // vui_parameters_present_flag

	n.bits(0, 1) // aspect_ratio_info_present_flag
	n.bits(0, 1) // overscan_info_present_flag
	n.bits(1, 1) // video_signal_type_present_flag
	n.bits(5, 3).bits(0, 1)
	n.bits(1, 1).bits(0x010101, 24)
	n.bits(0, 1) // chroma_loc_info_present_flag
	n.bits(0, 3)
	n.bits(0, 1) // default_display_window_flag
	n.bits(1, 1) // vui_timing_info_present_flag
	n.bits(1001, 32).bits(60000, 32)
	n.bits(0, 1) // vui_poc_proportional_to_timing_flag
	n.bits(1, 1) // vui_hrd_parameters_present_flag

	// hrd_parameters with a single NAL HRD
	n.bits(1, 1).bits(0, 1)
	n.bits(0, 1) // sub_pic_hrd_params_present_flag
	n.bits(0, 8).bits(0, 15)
	n.bits(1, 1) // fixed_pic_rate_general_flag
	n.ue(0)      // elemental_duration_in_tc_minus1
	n.ue(0)      // cpb_cnt_minus1
	n.ue(1000).ue(2000).bits(0, 1)

	n.bits(1, 1) // bitstream_restriction_flag
	n.bits(0, 3)
	n.ue(5) // min_spatial_segmentation_idc
	n.ue(2).ue(1).ue(15).ue(15)

	return n.finish(0x42, 0x01)
}

func testSPSWithoutVUI() []byte {
	return testSPSHead(newNALWriter()).finish(0x42, 0x01)
}

func annexB(units ...[]byte) []byte {
	var out []byte
	for _, u := range units {
		out = append(out, 0, 0, 0, 1)
		out = append(out, u...)
	}
	return out
}

func TestLocateH264(t *testing.T) {
	sps := []byte{0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02}
	pps := []byte{0x68, 0xcb, 0x83, 0xcb, 0x20}

	got, err := LocateH264(annexB([]byte{0x09, 0xf0}, sps, pps, []byte{0x68, 0x01}))
	require.NoError(t, err)
	assert.Equal(t, sps, got.SPS)
	assert.Equal(t, pps, got.PPS)
}

func TestLocateH264Missing(t *testing.T) {
	sps := []byte{0x67, 0x42, 0xc0, 0x28}
	pps := []byte{0x68, 0xcb}

	_, err := LocateH264(annexB(pps))
	assert.ErrorIs(t, err, ErrMissingSPS)

	_, err = LocateH264(annexB(sps))
	assert.ErrorIs(t, err, ErrMissingPPS)
}

func TestLocateH265(t *testing.T) {
	vps := testVPS()
	sps := testSPSWithVUI()
	pps := []byte{0x44, 0x01, 0xc1, 0x72, 0xb4, 0x62, 0x40}

	got, err := LocateH265(annexB(vps, sps, pps))
	require.NoError(t, err)

	assert.Equal(t, codecconfig.NALUnit{Type: codecconfig.NALTypeVPS, Data: vps}, got.VPS)
	assert.Equal(t, codecconfig.NALUnit{Type: codecconfig.NALTypeSPS, Data: sps}, got.SPS)
	assert.Equal(t, codecconfig.NALUnit{Type: codecconfig.NALTypePPS, Data: pps}, got.PPS)

	assert.Equal(t, codecconfig.ProfileTierLevel{
		ProfileSpace:         0,
		TierFlag:             0,
		ProfileIDC:           1,
		ProfileCompatibility: [4]byte{0x60, 0, 0, 0},
		ConstraintFlags:      [6]byte{0x90, 0, 0, 0, 0, 0},
		LevelIDC:             93,
		MaxSubLayersMinus1:   0,
		TemporalIDNesting:    true,
	}, got.PTL)

	assert.Equal(t, codecconfig.SequenceFormat{
		ChromaFormatIDC:           1,
		BitDepthLumaMinus8:        2,
		BitDepthChromaMinus8:      2,
		MinSpatialSegmentationIDC: 5,
	}, got.Sequence)

	record, err := codecconfig.BuildHEVC(got)
	require.NoError(t, err)
	assert.Len(t, record, 23+15+len(vps)+len(sps)+len(pps))
}

func TestLocateH265WithoutVUI(t *testing.T) {
	pps := []byte{0x44, 0x01, 0xc1}

	got, err := LocateH265(annexB(testVPS(), testSPSWithoutVUI(), pps))
	require.NoError(t, err)
	assert.Equal(t, uint16(0), got.Sequence.MinSpatialSegmentationIDC)
	assert.Equal(t, uint8(2), got.Sequence.BitDepthLumaMinus8)
}

func TestLocateH265Missing(t *testing.T) {
	pps := []byte{0x44, 0x01, 0xc1}

	_, err := LocateH265(annexB(testSPSWithoutVUI(), pps))
	assert.ErrorIs(t, err, ErrMissingVPS)

	_, err = LocateH265(annexB(testVPS(), pps))
	assert.ErrorIs(t, err, ErrMissingSPS)

	_, err = LocateH265(annexB(testVPS(), testSPSWithoutVUI()))
	assert.ErrorIs(t, err, ErrMissingPPS)
}

func TestLocateH265TruncatedVPS(t *testing.T) {
	_, err := LocateH265(annexB([]byte{0x40, 0x01, 0x0c}, testSPSWithoutVUI(), []byte{0x44, 0x01, 0xc1}))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestExpGolomb(t *testing.T) {
	n := newNALWriter().ue(0).ue(1).ue(2).ue(255).ue(3).ue(4)
	r := newRBSPReader(n.finish())

	for _, want := range []uint32{0, 1, 2, 255} {
		got, err := r.ue()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	s, err := r.se()
	require.NoError(t, err)
	assert.Equal(t, int32(2), s)
	s, err = r.se()
	require.NoError(t, err)
	assert.Equal(t, int32(-2), s)
}
