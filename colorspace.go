package goavif

import "fmt"

// Matrix selects the YUV to RGB matrix coefficients.
type Matrix int

const (
	MatrixBT601 Matrix = iota
	MatrixBT709
	MatrixBT2020
	MatrixIdentity
)

func (m Matrix) String() string {
	switch m {
	case MatrixBT601:
		return "BT.601"
	case MatrixBT709:
		return "BT.709"
	case MatrixBT2020:
		return "BT.2020"
	case MatrixIdentity:
		return "Identity"
	default:
		return fmt.Sprintf("Matrix(%d)", int(m))
	}
}

// Range is the quantisation range of the YUV samples.
type Range int

const (
	RangeLimited Range = iota
	RangeFull
)

func (r Range) String() string {
	if r == RangeFull {
		return "full"
	}
	return "limited"
}

// Subsampling is the chroma layout of a picture.
type Subsampling int

const (
	Subsampling420 Subsampling = iota
	Subsampling422
	Subsampling444
	SubsamplingMonochrome
)

func (s Subsampling) String() string {
	switch s {
	case Subsampling420:
		return "4:2:0"
	case Subsampling422:
		return "4:2:2"
	case Subsampling444:
		return "4:4:4"
	case SubsamplingMonochrome:
		return "4:0:0"
	default:
		return fmt.Sprintf("Subsampling(%d)", int(s))
	}
}

// shift returns the horizontal and vertical chroma shifts.
func (s Subsampling) shift() (sx, sy int) {
	switch s {
	case Subsampling420:
		return 1, 1
	case Subsampling422:
		return 1, 0
	default:
		return 0, 0
	}
}

// ChromaSize returns the chroma plane dimensions for a luma plane of w×h.
func (s Subsampling) ChromaSize(w, h int) Size {
	if s == SubsamplingMonochrome {
		return Size{}
	}
	sx, sy := s.shift()
	return Size{Width: (w + sx) >> sx, Height: (h + sy) >> sy}
}

// ColorSpace carries everything the converter needs to know about the
// encoding of a picture.
type ColorSpace struct {
	Matrix      Matrix
	Range       Range
	Subsampling Subsampling
}

// CICP matrix coefficient code points (ISO/IEC 23091-2).
const (
	cicpMatrixIdentity       = 0
	cicpMatrixBT709          = 1
	cicpMatrixUnspecified    = 2
	cicpMatrixBT470BG        = 5
	cicpMatrixBT601          = 6
	cicpMatrixBT2020NCL      = 9
	cicpMatrixBT2020CL       = 10
	cicpPrimariesBT709       = 1
	cicpTransferSRGB         = 13
	cicpPrimariesUnspecified = 2
	cicpTransferUnspecified  = 2
)

// MatrixFromCICP maps a CICP matrix_coefficients value onto the supported set.
// Unspecified is treated as BT.601, matching common decoder behaviour.
func MatrixFromCICP(mc uint8) (Matrix, error) {
	switch mc {
	case cicpMatrixIdentity:
		return MatrixIdentity, nil
	case cicpMatrixBT709:
		return MatrixBT709, nil
	case cicpMatrixUnspecified, cicpMatrixBT470BG, cicpMatrixBT601:
		return MatrixBT601, nil
	case cicpMatrixBT2020NCL, cicpMatrixBT2020CL:
		return MatrixBT2020, nil
	default:
		return 0, fmt.Errorf("%w: CICP matrix_coefficients %d", ErrUnsupportedMatrix, mc)
	}
}

// kr, kb for each supported matrix.
func (m Matrix) coefficients() (kr, kb float64, err error) {
	switch m {
	case MatrixBT601:
		return 0.299, 0.114, nil
	case MatrixBT709:
		return 0.2126, 0.0722, nil
	case MatrixBT2020:
		return 0.2627, 0.0593, nil
	default:
		return 0, 0, fmt.Errorf("%w: %v has no kr/kb", ErrUnsupportedMatrix, m)
	}
}

// yuvCoefficients are the chroma multipliers derived from kr and kb.
type yuvCoefficients struct {
	vr, ug, vg, ub float64
}

func deriveCoefficients(m Matrix) (yuvCoefficients, error) {
	kr, kb, err := m.coefficients()
	if err != nil {
		return yuvCoefficients{}, err
	}
	kg := 1 - kr - kb
	return yuvCoefficients{
		vr: 2 * (1 - kr),
		ug: -2 * kb * (1 - kb) / kg,
		vg: -2 * kr * (1 - kr) / kg,
		ub: 2 * (1 - kb),
	}, nil
}

// rangeParams describes how to normalise samples of a given depth.
type rangeParams struct {
	max     float64
	mid     float64
	yOffset float64
	yScale  float64
	uvScale float64
	maxInt  int
	midInt  int
	yOffInt int
}

func newRangeParams(r Range, depth int) rangeParams {
	maxInt := (1 << depth) - 1
	p := rangeParams{
		max:    float64(maxInt),
		mid:    float64(int(1) << (depth - 1)),
		maxInt: maxInt,
		midInt: 1 << (depth - 1),
	}
	if r == RangeFull {
		p.yScale = p.max
		p.uvScale = p.max
		return p
	}
	shift := depth - 8
	p.yOffInt = 16 << shift
	p.yOffset = float64(p.yOffInt)
	p.yScale = float64(int(219) << shift)
	p.uvScale = float64(int(224) << shift)
	return p
}

func validDepth(depth int) bool {
	switch depth {
	case 8, 10, 12, 16:
		return true
	}
	return false
}
