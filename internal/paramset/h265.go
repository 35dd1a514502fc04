package paramset

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"

	"github.com/jmylchreest/screenrec/internal/annexb"
	"github.com/jmylchreest/screenrec/internal/codecconfig"
)

// LocateH265 returns the first VPS, SPS and PPS of an Annex-B configuration
// packet together with the VPS and SPS fields an hvcC record needs.
func LocateH265(config []byte) (codecconfig.HEVCParameterSets, error) {
	units, err := annexb.Split(config)
	if err != nil {
		return codecconfig.HEVCParameterSets{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var vps, sps, pps []byte
	for _, nalu := range units {
		if len(nalu) < 2 {
			continue
		}
		switch h265.NALUType((nalu[0] >> 1) & 0x3F) {
		case h265.NALUType_VPS_NUT:
			if vps == nil {
				vps = nalu
			}
		case h265.NALUType_SPS_NUT:
			if sps == nil {
				sps = nalu
			}
		case h265.NALUType_PPS_NUT:
			if pps == nil {
				pps = nalu
			}
		}
	}

	switch {
	case vps == nil:
		return codecconfig.HEVCParameterSets{}, ErrMissingVPS
	case sps == nil:
		return codecconfig.HEVCParameterSets{}, ErrMissingSPS
	case pps == nil:
		return codecconfig.HEVCParameterSets{}, ErrMissingPPS
	}

	ptl, err := parseVPS(vps)
	if err != nil {
		return codecconfig.HEVCParameterSets{}, fmt.Errorf("%w: VPS: %w", ErrMalformed, err)
	}
	seq, err := parseSPS(sps)
	if err != nil {
		return codecconfig.HEVCParameterSets{}, fmt.Errorf("%w: SPS: %w", ErrMalformed, err)
	}

	return codecconfig.HEVCParameterSets{
		VPS:      codecconfig.NALUnit{Type: codecconfig.NALTypeVPS, Data: vps},
		SPS:      codecconfig.NALUnit{Type: codecconfig.NALTypeSPS, Data: sps},
		PPS:      codecconfig.NALUnit{Type: codecconfig.NALTypePPS, Data: pps},
		PTL:      ptl,
		Sequence: seq,
	}, nil
}

// parseVPS reads the general profile_tier_level of a VPS.
func parseVPS(nalu []byte) (codecconfig.ProfileTierLevel, error) {
	var ptl codecconfig.ProfileTierLevel
	r := newRBSPReader(nalu[2:])

	// vps_video_parameter_set_id, vps_base_layer_internal_flag,
	// vps_base_layer_available_flag, vps_max_layers_minus1
	if err := r.skip(4 + 1 + 1 + 6); err != nil {
		return ptl, err
	}
	maxSubLayersMinus1, err := r.bits(3)
	if err != nil {
		return ptl, err
	}
	nesting, err := r.flag()
	if err != nil {
		return ptl, err
	}
	// vps_reserved_0xffff_16bits
	if err := r.skip(16); err != nil {
		return ptl, err
	}

	ptl.MaxSubLayersMinus1 = uint8(maxSubLayersMinus1)
	ptl.TemporalIDNesting = nesting
	if err := readProfileTierLevel(r, &ptl); err != nil {
		return ptl, err
	}
	return ptl, nil
}

// readProfileTierLevel reads profile_tier_level(1, maxSubLayersMinus1).
func readProfileTierLevel(r *rbspReader, ptl *codecconfig.ProfileTierLevel) error {
	v, err := r.bits(8)
	if err != nil {
		return err
	}
	ptl.ProfileSpace = uint8(v >> 6)
	ptl.TierFlag = uint8(v>>5) & 0x01
	ptl.ProfileIDC = uint8(v) & 0x1F

	for i := range ptl.ProfileCompatibility {
		if v, err = r.bits(8); err != nil {
			return err
		}
		ptl.ProfileCompatibility[i] = uint8(v)
	}
	for i := range ptl.ConstraintFlags {
		if v, err = r.bits(8); err != nil {
			return err
		}
		ptl.ConstraintFlags[i] = uint8(v)
	}
	if v, err = r.bits(8); err != nil {
		return err
	}
	ptl.LevelIDC = uint8(v)

	return skipSubLayerPTL(r, int(ptl.MaxSubLayersMinus1))
}

func skipSubLayerPTL(r *rbspReader, maxSubLayersMinus1 int) error {
	profilePresent := make([]bool, maxSubLayersMinus1)
	levelPresent := make([]bool, maxSubLayersMinus1)
	for i := 0; i < maxSubLayersMinus1; i++ {
		var err error
		if profilePresent[i], err = r.flag(); err != nil {
			return err
		}
		if levelPresent[i], err = r.flag(); err != nil {
			return err
		}
	}
	if maxSubLayersMinus1 > 0 {
		// reserved_zero_2bits
		if err := r.skip(2 * (8 - maxSubLayersMinus1)); err != nil {
			return err
		}
	}
	for i := 0; i < maxSubLayersMinus1; i++ {
		if profilePresent[i] {
			if err := r.skip(88); err != nil {
				return err
			}
		}
		if levelPresent[i] {
			if err := r.skip(8); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseSPS reads the chroma format and bit depths of an SPS. The
// min_spatial_segmentation_idc of the VUI is read when the rest of the SPS
// parses, and left at 0 otherwise.
func parseSPS(nalu []byte) (codecconfig.SequenceFormat, error) {
	var seq codecconfig.SequenceFormat
	r := newRBSPReader(nalu[2:])

	// sps_video_parameter_set_id
	if err := r.skip(4); err != nil {
		return seq, err
	}
	maxSubLayersMinus1, err := r.bits(3)
	if err != nil {
		return seq, err
	}
	// sps_temporal_id_nesting_flag
	if err := r.skip(1); err != nil {
		return seq, err
	}
	ptl := codecconfig.ProfileTierLevel{MaxSubLayersMinus1: uint8(maxSubLayersMinus1)}
	if err := readProfileTierLevel(r, &ptl); err != nil {
		return seq, err
	}

	// sps_seq_parameter_set_id
	if _, err := r.ue(); err != nil {
		return seq, err
	}
	chroma, err := r.ue()
	if err != nil {
		return seq, err
	}
	if chroma > 3 {
		return seq, fmt.Errorf("chroma_format_idc %d out of range", chroma)
	}
	seq.ChromaFormatIDC = uint8(chroma)
	if chroma == 3 {
		// separate_colour_plane_flag
		if err := r.skip(1); err != nil {
			return seq, err
		}
	}

	// pic_width_in_luma_samples, pic_height_in_luma_samples
	if err := r.skipUE(2); err != nil {
		return seq, err
	}
	conformanceWindow, err := r.flag()
	if err != nil {
		return seq, err
	}
	if conformanceWindow {
		if err := r.skipUE(4); err != nil {
			return seq, err
		}
	}

	luma, err := r.ue()
	if err != nil {
		return seq, err
	}
	chromaDepth, err := r.ue()
	if err != nil {
		return seq, err
	}
	if luma > 7 || chromaDepth > 7 {
		return seq, fmt.Errorf("bit depth out of range (luma %d, chroma %d)", luma+8, chromaDepth+8)
	}
	seq.BitDepthLumaMinus8 = uint8(luma)
	seq.BitDepthChromaMinus8 = uint8(chromaDepth)

	if idc, err := readMinSpatialSegmentation(r, int(maxSubLayersMinus1)); err == nil {
		seq.MinSpatialSegmentationIDC = idc
	}
	return seq, nil
}

// readMinSpatialSegmentation continues an SPS after the bit depths up to the
// bitstream restriction fields of the VUI.
func readMinSpatialSegmentation(r *rbspReader, maxSubLayersMinus1 int) (uint16, error) {
	log2MaxPocLsbMinus4, err := r.ue()
	if err != nil {
		return 0, err
	}
	orderingInfoPresent, err := r.flag()
	if err != nil {
		return 0, err
	}
	start := maxSubLayersMinus1
	if orderingInfoPresent {
		start = 0
	}
	// sps_max_dec_pic_buffering_minus1, sps_max_num_reorder_pics,
	// sps_max_latency_increase_plus1
	if err := r.skipUE(3 * (maxSubLayersMinus1 - start + 1)); err != nil {
		return 0, err
	}

	// coding and transform block sizes, transform hierarchy depths
	if err := r.skipUE(6); err != nil {
		return 0, err
	}

	scalingListEnabled, err := r.flag()
	if err != nil {
		return 0, err
	}
	if scalingListEnabled {
		present, err := r.flag()
		if err != nil {
			return 0, err
		}
		if present {
			if err := skipScalingListData(r); err != nil {
				return 0, err
			}
		}
	}

	// amp_enabled_flag, sample_adaptive_offset_enabled_flag
	if err := r.skip(2); err != nil {
		return 0, err
	}
	pcmEnabled, err := r.flag()
	if err != nil {
		return 0, err
	}
	if pcmEnabled {
		// pcm sample bit depths
		if err := r.skip(8); err != nil {
			return 0, err
		}
		if err := r.skipUE(2); err != nil {
			return 0, err
		}
		// pcm_loop_filter_disabled_flag
		if err := r.skip(1); err != nil {
			return 0, err
		}
	}

	numShortTermRefPicSets, err := r.ue()
	if err != nil {
		return 0, err
	}
	if numShortTermRefPicSets > 64 {
		return 0, fmt.Errorf("num_short_term_ref_pic_sets %d out of range", numShortTermRefPicSets)
	}
	numDeltaPocs := make([]int, numShortTermRefPicSets)
	for i := 0; i < int(numShortTermRefPicSets); i++ {
		if numDeltaPocs[i], err = readShortTermRefPicSet(r, i, numDeltaPocs); err != nil {
			return 0, err
		}
	}

	longTermPresent, err := r.flag()
	if err != nil {
		return 0, err
	}
	if longTermPresent {
		n, err := r.ue()
		if err != nil {
			return 0, err
		}
		for i := uint32(0); i < n; i++ {
			// lt_ref_pic_poc_lsb_sps, used_by_curr_pic_lt_sps_flag
			if err := r.skip(int(log2MaxPocLsbMinus4) + 4 + 1); err != nil {
				return 0, err
			}
		}
	}

	// sps_temporal_mvp_enabled_flag, strong_intra_smoothing_enabled_flag
	if err := r.skip(2); err != nil {
		return 0, err
	}
	vuiPresent, err := r.flag()
	if err != nil || !vuiPresent {
		return 0, err
	}
	return readVUIMinSpatialSegmentation(r, maxSubLayersMinus1)
}

func skipScalingListData(r *rbspReader) error {
	for sizeID := 0; sizeID < 4; sizeID++ {
		step := 1
		if sizeID == 3 {
			step = 3
		}
		for matrixID := 0; matrixID < 6; matrixID += step {
			predMode, err := r.flag()
			if err != nil {
				return err
			}
			if !predMode {
				// scaling_list_pred_matrix_id_delta
				if _, err := r.ue(); err != nil {
					return err
				}
				continue
			}
			coefNum := 1 << (4 + (sizeID << 1))
			if coefNum > 64 {
				coefNum = 64
			}
			if sizeID > 1 {
				// scaling_list_dc_coef_minus8
				if _, err := r.se(); err != nil {
					return err
				}
			}
			for i := 0; i < coefNum; i++ {
				if _, err := r.se(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// readShortTermRefPicSet skips st_ref_pic_set(idx) and returns its
// NumDeltaPocs.
func readShortTermRefPicSet(r *rbspReader, idx int, numDeltaPocs []int) (int, error) {
	interPrediction := false
	if idx != 0 {
		var err error
		if interPrediction, err = r.flag(); err != nil {
			return 0, err
		}
	}

	if interPrediction {
		// delta_rps_sign
		if err := r.skip(1); err != nil {
			return 0, err
		}
		// abs_delta_rps_minus1
		if _, err := r.ue(); err != nil {
			return 0, err
		}
		count := 0
		for j := 0; j <= numDeltaPocs[idx-1]; j++ {
			used, err := r.flag()
			if err != nil {
				return 0, err
			}
			useDelta := true
			if !used {
				if useDelta, err = r.flag(); err != nil {
					return 0, err
				}
			}
			if used || useDelta {
				count++
			}
		}
		return count, nil
	}

	negative, err := r.ue()
	if err != nil {
		return 0, err
	}
	positive, err := r.ue()
	if err != nil {
		return 0, err
	}
	if negative > 16 || positive > 16 {
		return 0, fmt.Errorf("short term ref pic set too large")
	}
	for i := uint32(0); i < negative+positive; i++ {
		// delta_poc_minus1, used_by_curr_pic_flag
		if _, err := r.ue(); err != nil {
			return 0, err
		}
		if err := r.skip(1); err != nil {
			return 0, err
		}
	}
	return int(negative + positive), nil
}

func readVUIMinSpatialSegmentation(r *rbspReader, maxSubLayersMinus1 int) (uint16, error) {
	aspectRatioPresent, err := r.flag()
	if err != nil {
		return 0, err
	}
	if aspectRatioPresent {
		idc, err := r.bits(8)
		if err != nil {
			return 0, err
		}
		if idc == 255 {
			// sar_width, sar_height
			if err := r.skip(32); err != nil {
				return 0, err
			}
		}
	}

	overscanPresent, err := r.flag()
	if err != nil {
		return 0, err
	}
	if overscanPresent {
		if err := r.skip(1); err != nil {
			return 0, err
		}
	}

	videoSignalPresent, err := r.flag()
	if err != nil {
		return 0, err
	}
	if videoSignalPresent {
		// video_format, video_full_range_flag
		if err := r.skip(4); err != nil {
			return 0, err
		}
		colourPresent, err := r.flag()
		if err != nil {
			return 0, err
		}
		if colourPresent {
			if err := r.skip(24); err != nil {
				return 0, err
			}
		}
	}

	chromaLocPresent, err := r.flag()
	if err != nil {
		return 0, err
	}
	if chromaLocPresent {
		if err := r.skipUE(2); err != nil {
			return 0, err
		}
	}

	// neutral_chroma_indication_flag, field_seq_flag,
	// frame_field_info_present_flag
	if err := r.skip(3); err != nil {
		return 0, err
	}
	displayWindow, err := r.flag()
	if err != nil {
		return 0, err
	}
	if displayWindow {
		if err := r.skipUE(4); err != nil {
			return 0, err
		}
	}

	timingPresent, err := r.flag()
	if err != nil {
		return 0, err
	}
	if timingPresent {
		// vui_num_units_in_tick, vui_time_scale
		if err := r.skip(64); err != nil {
			return 0, err
		}
		pocProportional, err := r.flag()
		if err != nil {
			return 0, err
		}
		if pocProportional {
			if _, err := r.ue(); err != nil {
				return 0, err
			}
		}
		hrdPresent, err := r.flag()
		if err != nil {
			return 0, err
		}
		if hrdPresent {
			if err := skipHRD(r, maxSubLayersMinus1); err != nil {
				return 0, err
			}
		}
	}

	restriction, err := r.flag()
	if err != nil || !restriction {
		return 0, err
	}
	// tiles_fixed_structure_flag, motion_vectors_over_pic_boundaries_flag,
	// restricted_ref_pic_lists_flag
	if err := r.skip(3); err != nil {
		return 0, err
	}
	idc, err := r.ue()
	if err != nil {
		return 0, err
	}
	if idc > 4095 {
		return 0, fmt.Errorf("min_spatial_segmentation_idc %d out of range", idc)
	}
	return uint16(idc), nil
}

// skipHRD skips hrd_parameters(1, maxSubLayersMinus1).
func skipHRD(r *rbspReader, maxSubLayersMinus1 int) error {
	nalHRD, err := r.flag()
	if err != nil {
		return err
	}
	vclHRD, err := r.flag()
	if err != nil {
		return err
	}

	subPicParams := false
	if nalHRD || vclHRD {
		if subPicParams, err = r.flag(); err != nil {
			return err
		}
		if subPicParams {
			// tick_divisor_minus2, du_cpb_removal_delay_increment_length_minus1,
			// sub_pic_cpb_params_in_pic_timing_sei_flag,
			// dpb_output_delay_du_length_minus1
			if err := r.skip(8 + 5 + 1 + 5); err != nil {
				return err
			}
		}
		// bit_rate_scale, cpb_size_scale
		if err := r.skip(8); err != nil {
			return err
		}
		if subPicParams {
			if err := r.skip(4); err != nil {
				return err
			}
		}
		// initial_cpb_removal_delay_length_minus1,
		// au_cpb_removal_delay_length_minus1, dpb_output_delay_length_minus1
		if err := r.skip(15); err != nil {
			return err
		}
	}

	for i := 0; i <= maxSubLayersMinus1; i++ {
		fixedGeneral, err := r.flag()
		if err != nil {
			return err
		}
		fixedWithinCVS := true
		if !fixedGeneral {
			if fixedWithinCVS, err = r.flag(); err != nil {
				return err
			}
		}
		lowDelay := false
		if fixedWithinCVS {
			// elemental_duration_in_tc_minus1
			if _, err := r.ue(); err != nil {
				return err
			}
		} else if lowDelay, err = r.flag(); err != nil {
			return err
		}
		cpbCnt := uint32(1)
		if !lowDelay {
			n, err := r.ue()
			if err != nil {
				return err
			}
			if n > 31 {
				return fmt.Errorf("cpb_cnt_minus1 %d out of range", n)
			}
			cpbCnt = n + 1
		}

		for _, present := range []bool{nalHRD, vclHRD} {
			if !present {
				continue
			}
			for j := uint32(0); j < cpbCnt; j++ {
				fields := 2
				if subPicParams {
					fields = 4
				}
				if err := r.skipUE(fields); err != nil {
					return err
				}
				// cbr_flag
				if err := r.skip(1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
