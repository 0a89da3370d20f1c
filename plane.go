package goavif

import "fmt"

// Sample is the element type of a decoded plane: 8-bit data uses uint8,
// anything deeper uses uint16 holding values at native depth.
type Sample interface {
	uint8 | uint16
}

// Plane is a read-only view of one channel of a decoded picture.
//
// Height is the number of rows that are actually addressable, which can be
// smaller than the height reported by the producer of the buffer.
type Plane[T Sample] struct {
	Pix            []T
	Width          int
	Height         int
	Stride         int
	BitDepth       int
	ReportedHeight int
}

// NewPlane wraps pix as a plane. The addressable height is derived from
// len(pix)/stride and never exceeds it, whatever reportedHeight says.
func NewPlane[T Sample](pix []T, width, reportedHeight, stride, bitDepth int) (Plane[T], error) {
	if width <= 0 || reportedHeight <= 0 {
		return Plane[T]{}, fmt.Errorf("%w: invalid plane dimensions %dx%d", ErrPlaneSizeMismatch, width, reportedHeight)
	}
	if stride < width {
		return Plane[T]{}, fmt.Errorf("%w: stride %d smaller than width %d", ErrPlaneSizeMismatch, stride, width)
	}
	rows := len(pix) / stride
	height := reportedHeight
	if height > rows {
		height = rows
	}
	if height == 0 {
		return Plane[T]{}, fmt.Errorf("%w: plane buffer of %d samples holds no full row of width %d", ErrPlaneSizeMismatch, len(pix), width)
	}
	return Plane[T]{
		Pix:            pix,
		Width:          width,
		Height:         height,
		Stride:         stride,
		BitDepth:       bitDepth,
		ReportedHeight: reportedHeight,
	}, nil
}

// Truncated reports whether the producer claimed more rows than the buffer holds.
func (p Plane[T]) Truncated() bool {
	return p.ReportedHeight > p.Height
}

// Row returns the Width samples of row y.
func (p Plane[T]) Row(y int) []T {
	off := y * p.Stride
	return p.Pix[off : off+p.Width]
}

// At returns the sample at (x, y) without bounds checks beyond the slice's own.
func (p Plane[T]) At(x, y int) T {
	return p.Pix[y*p.Stride+x]
}

// Size returns the addressable dimensions.
func (p Plane[T]) Size() Size {
	return Size{Width: p.Width, Height: p.Height}
}

// Picture is one AV1 frame as produced by an AV1Decoder, at the decoder's
// coded dimensions. BitDepth 8 uses Planes8, everything else Planes16.
// Monochrome pictures only populate the first plane.
type Picture struct {
	BitDepth    int
	Subsampling Subsampling
	Planes8     [3]Plane[uint8]
	Planes16    [3]Plane[uint16]

	// Color is the colour description from the sequence header, if the
	// decoder exposes one.
	Color *SequenceColor
}

// Width returns the luma width.
func (p *Picture) Width() int {
	if p.BitDepth == 8 {
		return p.Planes8[0].Width
	}
	return p.Planes16[0].Width
}

// Height returns the addressable luma height.
func (p *Picture) Height() int {
	if p.BitDepth == 8 {
		return p.Planes8[0].Height
	}
	return p.Planes16[0].Height
}
