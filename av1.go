package goavif

import (
	"context"
	"fmt"
)

// AV1Decoder decodes one AV1 still frame (the payload of one image item).
// Implementations need not be safe for concurrent use; the decoder asks its
// factory for one instance per worker.
type AV1Decoder interface {
	DecodeFrame(ctx context.Context, data []byte) (*Picture, error)
	Close() error
}

// AV1DecoderFactory creates AV1 decoder instances.
type AV1DecoderFactory func() (AV1Decoder, error)

// SequenceColor is the colour description of an AV1 sequence header.
type SequenceColor struct {
	BitDepth    int
	Subsampling Subsampling
	Primaries   uint8
	Transfer    uint8
	Matrix      uint8
	FullRange   bool
}

// SequenceHeader holds the fields of an AV1 sequence header OBU that matter
// for still images.
type SequenceHeader struct {
	Profile        uint8
	StillPicture   bool
	ReducedStill   bool
	MaxFrameWidth  int
	MaxFrameHeight int
	FilmGrain      bool
	Color          SequenceColor
}

const obuSequenceHeader = 1

// FindSequenceHeader scans a low-overhead AV1 bitstream (OBUs with size
// fields) and parses the first sequence header it contains.
func FindSequenceHeader(data []byte) (*SequenceHeader, error) {
	for len(data) > 0 {
		h := data[0]
		if h>>7 != 0 {
			return nil, fmt.Errorf("obu forbidden bit set")
		}
		typ := (h >> 3) & 0xf
		hasExt := h>>2&1 == 1
		hasSize := h>>1&1 == 1
		off := 1
		if hasExt {
			off++
		}
		if !hasSize {
			return nil, fmt.Errorf("obu without size field")
		}
		if off > len(data) {
			return nil, fmt.Errorf("truncated obu header")
		}
		size, n, err := readLEB128(data[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if uint64(len(data)-off) < size {
			return nil, fmt.Errorf("obu of %d bytes exceeds buffer", size)
		}
		payload := data[off : off+int(size)]
		if typ == obuSequenceHeader {
			return ParseSequenceHeader(payload)
		}
		data = data[off+int(size):]
	}
	return nil, fmt.Errorf("no sequence header obu")
}

func readLEB128(b []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < 8; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("truncated leb128")
		}
		v |= uint64(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("leb128 longer than 8 bytes")
}

// bitReader reads MSB-first bit fields. The first overrun is kept in err and
// every later read returns zero, so callers check err once at the end.
type bitReader struct {
	data []byte
	pos  int // in bits
	err  error
}

func (r *bitReader) f(n int) uint32 {
	if r.err != nil {
		return 0
	}
	if r.pos+n > len(r.data)*8 {
		r.err = fmt.Errorf("sequence header truncated at bit %d", r.pos)
		return 0
	}
	var v uint32
	for i := 0; i < n; i++ {
		b := r.data[r.pos>>3] >> (7 - uint(r.pos&7)) & 1
		v = v<<1 | uint32(b)
		r.pos++
	}
	return v
}

func (r *bitReader) flag() bool {
	return r.f(1) == 1
}

// uvlc reads the AV1 variable length code.
func (r *bitReader) uvlc() uint32 {
	leading := 0
	for !r.flag() {
		if r.err != nil {
			return 0
		}
		leading++
	}
	if leading >= 32 {
		return 1<<32 - 1
	}
	return r.f(leading) + (1 << leading) - 1
}

// ParseSequenceHeader parses a sequence_header_obu payload.
func ParseSequenceHeader(payload []byte) (*SequenceHeader, error) {
	r := &bitReader{data: payload}
	sh := &SequenceHeader{}
	sh.parse(r)
	if r.err != nil {
		return nil, r.err
	}
	return sh, nil
}

func (sh *SequenceHeader) parse(r *bitReader) {
	f := r.f
	sh.Profile = uint8(f(3))
	sh.StillPicture = r.flag()
	sh.ReducedStill = r.flag()
	if sh.ReducedStill {
		f(5) // seq_level_idx[0]
	} else {
		decoderModel := false
		bufferDelayLen := 0
		if r.flag() { // timing_info_present_flag
			f(32) // num_units_in_display_tick
			f(32) // time_scale
			if r.flag() { // equal_picture_interval
				r.uvlc() // num_ticks_per_picture_minus_1
			}
			decoderModel = r.flag()
			if decoderModel {
				bufferDelayLen = int(f(5)) + 1
				f(32) // num_units_in_decoding_tick
				f(5)  // buffer_removal_time_length_minus_1
				f(5)  // frame_presentation_time_length_minus_1
			}
		}
		initialDisplayDelay := r.flag()
		ops := int(f(5)) + 1
		for i := 0; i < ops && r.err == nil; i++ {
			f(12) // operating_point_idc
			if f(5) > 7 { // seq_level_idx
				f(1) // seq_tier
			}
			if decoderModel && r.flag() {
				f(bufferDelayLen) // decoder_buffer_delay
				f(bufferDelayLen) // encoder_buffer_delay
				f(1)              // low_delay_mode_flag
			}
			if initialDisplayDelay && r.flag() {
				f(4)
			}
		}
	}

	wBits := int(f(4)) + 1
	hBits := int(f(4)) + 1
	sh.MaxFrameWidth = int(f(wBits)) + 1
	sh.MaxFrameHeight = int(f(hBits)) + 1

	if !sh.ReducedStill && r.flag() { // frame_id_numbers_present_flag
		f(4)
		f(3)
	}
	f(1) // use_128x128_superblock
	f(1) // enable_filter_intra
	f(1) // enable_intra_edge_filter
	if !sh.ReducedStill {
		f(1) // enable_interintra_compound
		f(1) // enable_masked_compound
		f(1) // enable_warped_motion
		f(1) // enable_dual_filter
		orderHint := r.flag()
		if orderHint {
			f(1) // enable_jnt_comp
			f(1) // enable_ref_frame_mvs
		}
		forceScreenContent := uint32(2)
		if f(1) == 0 { // seq_choose_screen_content_tools
			forceScreenContent = f(1)
		}
		if forceScreenContent > 0 && f(1) == 0 { // seq_choose_integer_mv
			f(1) // seq_force_integer_mv
		}
		if orderHint {
			f(3) // order_hint_bits_minus_1
		}
	}
	f(1) // enable_superres
	f(1) // enable_cdef
	f(1) // enable_restoration
	sh.parseColorConfig(r)
	sh.FilmGrain = r.flag()
}

func (sh *SequenceHeader) parseColorConfig(r *bitReader) {
	f := r.f
	c := &sh.Color
	high := f(1) == 1
	c.BitDepth = 8
	if sh.Profile == 2 && high {
		c.BitDepth = 10
		if f(1) == 1 {
			c.BitDepth = 12
		}
	} else if high {
		c.BitDepth = 10
	}

	mono := false
	if sh.Profile != 1 {
		mono = f(1) == 1
	}
	c.Primaries, c.Transfer, c.Matrix = cicpPrimariesUnspecified, cicpTransferUnspecified, cicpMatrixUnspecified
	if f(1) == 1 { // color_description_present_flag
		c.Primaries = uint8(f(8))
		c.Transfer = uint8(f(8))
		c.Matrix = uint8(f(8))
	}

	if mono {
		c.FullRange = f(1) == 1
		c.Subsampling = SubsamplingMonochrome
		return
	}
	if c.Primaries == cicpPrimariesBT709 && c.Transfer == cicpTransferSRGB && c.Matrix == cicpMatrixIdentity {
		c.FullRange = true
		c.Subsampling = Subsampling444
		f(1) // separate_uv_delta_q
		return
	}

	c.FullRange = f(1) == 1
	sx, sy := uint32(1), uint32(1)
	switch sh.Profile {
	case 0:
	case 1:
		sx, sy = 0, 0
	default:
		if c.BitDepth == 12 {
			sx = f(1)
			sy = 0
			if sx == 1 {
				sy = f(1)
			}
		} else {
			sx, sy = 1, 0
		}
	}
	switch {
	case sx == 1 && sy == 1:
		c.Subsampling = Subsampling420
		f(2) // chroma_sample_position
	case sx == 1:
		c.Subsampling = Subsampling422
	default:
		c.Subsampling = Subsampling444
	}
	f(1) // separate_uv_delta_q
}

// Dav1dConfig configures NewDav1dDecoder.
type Dav1dConfig struct {
	// Threads is dav1d's worker thread count. Zero lets dav1d decide.
	Threads int
	// ApplyGrain enables film grain synthesis.
	ApplyGrain bool
	// FrameSizeLimit rejects frames with more pixels. Zero means no limit.
	FrameSizeLimit uint32
	// LibraryPath overrides the libdav1d search.
	LibraryPath string
}
