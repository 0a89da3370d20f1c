package testavif

// BitWriter writes MSB-first bit fields.
type BitWriter struct {
	buf  []byte
	bits int
}

// Put writes the low n bits of v.
func (w *BitWriter) Put(n int, v uint32) {
	for i := n - 1; i >= 0; i-- {
		if w.bits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 == 1 {
			w.buf[len(w.buf)-1] |= 0x80 >> uint(w.bits%8)
		}
		w.bits++
	}
}

// Flag writes one bit.
func (w *BitWriter) Flag(b bool) {
	if b {
		w.Put(1, 1)
	} else {
		w.Put(1, 0)
	}
}

// Trailing writes AV1 trailing bits and returns the bytes.
func (w *BitWriter) Trailing() []byte {
	w.Put(1, 1)
	for w.bits%8 != 0 {
		w.Put(1, 0)
	}
	return w.buf
}

// Sequence describes a sequence header to synthesise.
type Sequence struct {
	Profile       uint8
	Reduced       bool
	Timing        bool
	Width, Height uint32
	BitDepth      int
	Mono          bool

	// Subsampling for profile 2 at 12 bits.
	SubX, SubY bool

	// Describe writes colour description code points.
	Describe                    bool
	Primaries, Transfer, Matrix uint8
	FullRange                   bool
	FilmGrain                   bool
}

// Payload returns the sequence_header_obu payload.
func (s Sequence) Payload() []byte {
	w := &BitWriter{}
	w.Put(3, uint32(s.Profile))
	w.Flag(true) // still_picture
	w.Flag(s.Reduced)
	if s.Reduced {
		w.Put(5, 0)
	} else {
		w.Flag(s.Timing)
		if s.Timing {
			w.Put(32, 1)
			w.Put(32, 25)
			w.Flag(true) // equal_picture_interval
			w.Put(1, 1)  // uvlc(0)
			w.Flag(false)
		}
		w.Flag(false) // initial_display_delay_present_flag
		w.Put(5, 0)   // one operating point
		w.Put(12, 0)
		w.Put(5, 8) // seq_level_idx 8 carries a tier bit
		w.Put(1, 0)
	}
	w.Put(4, 15)
	w.Put(4, 15)
	w.Put(16, s.Width-1)
	w.Put(16, s.Height-1)
	if !s.Reduced {
		w.Flag(false) // frame_id_numbers_present_flag
	}
	w.Put(3, 0) // 128x128 sb, filter intra, intra edge
	if !s.Reduced {
		w.Put(4, 0)   // interintra, masked, warped, dual filter
		w.Flag(false) // enable_order_hint
		w.Flag(true)  // seq_choose_screen_content_tools
		w.Flag(true)  // seq_choose_integer_mv
	}
	w.Put(3, 0) // superres, cdef, restoration

	high := s.BitDepth > 8
	w.Flag(high)
	if s.Profile == 2 && high {
		w.Flag(s.BitDepth == 12)
	}
	if s.Profile != 1 {
		w.Flag(s.Mono)
	}
	w.Flag(s.Describe)
	if s.Describe {
		w.Put(8, uint32(s.Primaries))
		w.Put(8, uint32(s.Transfer))
		w.Put(8, uint32(s.Matrix))
	}
	switch {
	case s.Mono:
		w.Flag(s.FullRange)
	case s.Describe && s.Primaries == 1 && s.Transfer == 13 && s.Matrix == 0:
		w.Flag(false) // separate_uv_delta_q
	default:
		w.Flag(s.FullRange)
		sx, sy := true, true
		switch s.Profile {
		case 1:
			sx, sy = false, false
		case 2:
			if s.BitDepth == 12 {
				w.Flag(s.SubX)
				sx, sy = s.SubX, false
				if s.SubX {
					w.Flag(s.SubY)
					sy = s.SubY
				}
			} else {
				sx, sy = true, false
			}
		}
		if sx && sy {
			w.Put(2, 0)
		}
		w.Flag(false) // separate_uv_delta_q
	}
	w.Flag(s.FilmGrain)
	return w.Trailing()
}

// OBU wraps a payload in an OBU header with a size field.
func OBU(typ uint8, payload []byte) []byte {
	out := []byte{typ<<3 | 1<<1}
	n := len(payload)
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n > 0 {
			out = append(out, b|0x80)
			continue
		}
		out = append(out, b)
		break
	}
	return append(out, payload...)
}

// OBU type codes.
const (
	OBUSequenceHeader    = 1
	OBUTemporalDelimiter = 2
	OBUFrame             = 6
)

// Bitstream returns a temporal delimiter, the sequence header and a frame
// OBU holding opaque bytes.
func (s Sequence) Bitstream(frame []byte) []byte {
	return cat(OBU(OBUTemporalDelimiter, nil), OBU(OBUSequenceHeader, s.Payload()), OBU(OBUFrame, frame))
}
