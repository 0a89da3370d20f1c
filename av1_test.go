package goavif

import (
	"testing"

	"github.com/tingold/goavif/internal/testavif"
)

func TestParseSequenceHeader(t *testing.T) {
	cases := []struct {
		name string
		seq  testavif.Sequence
		want SequenceColor
	}{
		{
			name: "reduced 8-bit 4:2:0",
			seq:  testavif.Sequence{Reduced: true, Width: 64, Height: 48, BitDepth: 8, Describe: true, Primaries: 1, Transfer: 13, Matrix: 1},
			want: SequenceColor{BitDepth: 8, Subsampling: Subsampling420, Primaries: 1, Transfer: 13, Matrix: 1},
		},
		{
			name: "timing info, 10-bit full range",
			seq:  testavif.Sequence{Timing: true, Width: 1920, Height: 1080, BitDepth: 10, Describe: true, Primaries: 9, Transfer: 16, Matrix: 9, FullRange: true},
			want: SequenceColor{BitDepth: 10, Subsampling: Subsampling420, Primaries: 9, Transfer: 16, Matrix: 9, FullRange: true},
		},
		{
			name: "monochrome",
			seq:  testavif.Sequence{Reduced: true, Width: 8, Height: 8, BitDepth: 8, Mono: true, FullRange: true},
			want: SequenceColor{BitDepth: 8, Subsampling: SubsamplingMonochrome, Primaries: 2, Transfer: 2, Matrix: 2, FullRange: true},
		},
		{
			name: "profile 1 4:4:4",
			seq:  testavif.Sequence{Profile: 1, Width: 16, Height: 16, BitDepth: 10},
			want: SequenceColor{BitDepth: 10, Subsampling: Subsampling444, Primaries: 2, Transfer: 2, Matrix: 2},
		},
		{
			name: "profile 2 12-bit 4:2:2",
			seq:  testavif.Sequence{Profile: 2, Width: 16, Height: 16, BitDepth: 12, SubX: true},
			want: SequenceColor{BitDepth: 12, Subsampling: Subsampling422, Primaries: 2, Transfer: 2, Matrix: 2},
		},
		{
			name: "profile 2 12-bit 4:2:0",
			seq:  testavif.Sequence{Profile: 2, Width: 16, Height: 16, BitDepth: 12, SubX: true, SubY: true},
			want: SequenceColor{BitDepth: 12, Subsampling: Subsampling420, Primaries: 2, Transfer: 2, Matrix: 2},
		},
		{
			name: "profile 2 10-bit is 4:2:2",
			seq:  testavif.Sequence{Profile: 2, Width: 16, Height: 16, BitDepth: 10},
			want: SequenceColor{BitDepth: 10, Subsampling: Subsampling422, Primaries: 2, Transfer: 2, Matrix: 2},
		},
		{
			name: "sRGB identity",
			seq:  testavif.Sequence{Profile: 1, Width: 16, Height: 16, BitDepth: 8, Describe: true, Primaries: 1, Transfer: 13, Matrix: 0},
			want: SequenceColor{BitDepth: 8, Subsampling: Subsampling444, Primaries: 1, Transfer: 13, Matrix: 0, FullRange: true},
		},
	}
	for _, tc := range cases {
		sh, err := ParseSequenceHeader(tc.seq.Payload())
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if sh.Color != tc.want {
			t.Errorf("%s: color %+v, want %+v", tc.name, sh.Color, tc.want)
		}
		if sh.MaxFrameWidth != int(tc.seq.Width) || sh.MaxFrameHeight != int(tc.seq.Height) {
			t.Errorf("%s: frame size %dx%d", tc.name, sh.MaxFrameWidth, sh.MaxFrameHeight)
		}
		if !sh.StillPicture || sh.ReducedStill != tc.seq.Reduced || sh.Profile != tc.seq.Profile {
			t.Errorf("%s: header flags %+v", tc.name, sh)
		}
	}
}

func TestParseSequenceHeaderFilmGrain(t *testing.T) {
	seq := testavif.Sequence{Width: 32, Height: 32, BitDepth: 8, FilmGrain: true}
	sh, err := ParseSequenceHeader(seq.Payload())
	if err != nil {
		t.Fatalf("ParseSequenceHeader: %v", err)
	}
	if !sh.FilmGrain {
		t.Error("film grain flag not read")
	}
}

func TestParseSequenceHeaderTruncated(t *testing.T) {
	payload := testavif.Sequence{Timing: true, Width: 64, Height: 64, BitDepth: 8}.Payload()
	for _, n := range []int{0, 1, 5, len(payload) / 2} {
		if _, err := ParseSequenceHeader(payload[:n]); err == nil {
			t.Errorf("%d bytes: expected an error", n)
		}
	}
}

func TestFindSequenceHeader(t *testing.T) {
	seq := testavif.Sequence{Reduced: true, Width: 10, Height: 20, BitDepth: 10, Describe: true, Primaries: 9, Transfer: 16, Matrix: 9}
	sh, err := FindSequenceHeader(seq.Bitstream([]byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("FindSequenceHeader: %v", err)
	}
	if sh.MaxFrameWidth != 10 || sh.Color.BitDepth != 10 || sh.Color.Matrix != 9 {
		t.Errorf("got %+v", sh)
	}

	noHeader := append(testavif.OBU(testavif.OBUTemporalDelimiter, nil), testavif.OBU(testavif.OBUFrame, []byte{0})...)
	if _, err := FindSequenceHeader(noHeader); err == nil {
		t.Error("expected an error without a sequence header")
	}
	if _, err := FindSequenceHeader([]byte{testavif.OBUSequenceHeader << 3}); err == nil {
		t.Error("expected an error for an OBU without a size field")
	}
	if _, err := FindSequenceHeader([]byte{0x80}); err == nil {
		t.Error("expected an error for the forbidden bit")
	}
	if _, err := FindSequenceHeader([]byte{testavif.OBUSequenceHeader<<3 | 2, 10, 0}); err == nil {
		t.Error("expected an error for an OBU larger than the buffer")
	}
}

func TestReadLEB128(t *testing.T) {
	v, n, err := readLEB128([]byte{0x96, 0x01, 0xff})
	if err != nil || v != 150 || n != 2 {
		t.Errorf("got %d, %d, %v; want 150, 2", v, n, err)
	}
	if _, _, err := readLEB128([]byte{0x80}); err == nil {
		t.Error("expected an error for a truncated value")
	}
	long := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	if _, _, err := readLEB128(long); err == nil {
		t.Error("expected an error for more than 8 bytes")
	}
}

func TestBitReaderUVLC(t *testing.T) {
	w := &testavif.BitWriter{}
	w.Put(7, 0x0a) // 000 1 010
	w.Put(1, 1)    // zero
	r := &bitReader{data: w.Trailing()}
	if v := r.uvlc(); r.err != nil || v != 9 {
		t.Errorf("uvlc = %d, %v; want 9", v, r.err)
	}
	if v := r.uvlc(); r.err != nil || v != 0 {
		t.Errorf("uvlc = %d, %v; want 0", v, r.err)
	}
}

func TestBitReaderStickyError(t *testing.T) {
	r := &bitReader{data: []byte{0xff}}
	if v := r.f(4); v != 0xf || r.err != nil {
		t.Fatalf("f(4) = %x, %v", v, r.err)
	}
	if v := r.f(8); v != 0 || r.err == nil {
		t.Fatalf("f(8) past the end = %x, %v; want 0 and an error", v, r.err)
	}
	first := r.err
	// Later reads fit in the remaining bits but still fail.
	if v := r.f(1); v != 0 || r.err != first {
		t.Errorf("read after error = %x, %v", v, r.err)
	}

	zeros := &bitReader{data: make([]byte, 2)}
	if v := zeros.uvlc(); v != 0 || zeros.err == nil {
		t.Errorf("uvlc over zero bits = %d, %v; want an error", v, zeros.err)
	}
}
