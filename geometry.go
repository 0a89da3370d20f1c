package goavif

import "fmt"

// Rectangle represents a rectangle in pixel space
type Rectangle struct {
	X      int // X coordinate of top-left corner
	Y      int // Y coordinate of top-left corner
	Width  int // Width in pixels
	Height int // Height in pixels
}

func (r Rectangle) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Empty reports whether the rectangle contains no pixels.
func (r Rectangle) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Intersect returns the overlap of r and s, or an empty rectangle.
func (r Rectangle) Intersect(s Rectangle) Rectangle {
	x0 := max(r.X, s.X)
	y0 := max(r.Y, s.Y)
	x1 := min(r.X+r.Width, s.X+s.Width)
	y1 := min(r.Y+r.Height, s.Y+s.Height)
	if x0 >= x1 || y0 >= y1 {
		return Rectangle{}
	}
	return Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Contains reports whether s lies entirely inside r.
func (r Rectangle) Contains(s Rectangle) bool {
	return s.X >= r.X && s.Y >= r.Y &&
		s.X+s.Width <= r.X+r.Width && s.Y+s.Height <= r.Y+r.Height
}

// Fraction is a signed rational as stored in 'clap'.
type Fraction struct {
	N int32
	D uint32
}

func (f Fraction) valid() bool { return f.D != 0 }

// CleanAperture is the 'clap' property.
type CleanAperture struct {
	Width, Height                    Fraction
	HorizontalOffset, VerticalOffset Fraction
}

// Rect converts the clean aperture into a crop rectangle for an image of
// w×h pixels. The aperture centre is offset from the image centre, and all
// edges must land on whole pixels inside the image.
func (c CleanAperture) Rect(w, h int) (Rectangle, error) {
	if !c.Width.valid() || !c.Height.valid() || !c.HorizontalOffset.valid() || !c.VerticalOffset.valid() {
		return Rectangle{}, fmt.Errorf("clean aperture has a zero denominator")
	}
	if c.Width.N <= 0 || c.Height.N <= 0 {
		return Rectangle{}, fmt.Errorf("clean aperture has a non-positive size")
	}
	left, err := apertureEdge(c.Width, c.HorizontalOffset, w)
	if err != nil {
		return Rectangle{}, fmt.Errorf("horizontal: %w", err)
	}
	top, err := apertureEdge(c.Height, c.VerticalOffset, h)
	if err != nil {
		return Rectangle{}, fmt.Errorf("vertical: %w", err)
	}
	if c.Width.N%int32(c.Width.D) != 0 || c.Height.N%int32(c.Height.D) != 0 {
		return Rectangle{}, fmt.Errorf("clean aperture size is not integral")
	}
	r := Rectangle{
		X:      left,
		Y:      top,
		Width:  int(c.Width.N / int32(c.Width.D)),
		Height: int(c.Height.N / int32(c.Height.D)),
	}
	if !(Rectangle{Width: w, Height: h}).Contains(r) {
		return Rectangle{}, fmt.Errorf("clean aperture %v exceeds %dx%d image", r, w, h)
	}
	return r, nil
}

// apertureEdge returns the first pixel covered by an aperture of the given
// size whose centre sits at off pixels from the image centre:
// edge = off + (full-1)/2 - (size-1)/2.
func apertureEdge(size, off Fraction, full int) (int, error) {
	d := int64(size.D) * int64(off.D)
	num := int64(off.N)*int64(size.D)*2 +
		int64(full-1)*d -
		(int64(size.N)*int64(off.D) - d)
	den := 2 * d
	if num%den != 0 {
		return 0, fmt.Errorf("edge is not on a pixel boundary")
	}
	return int(num / den), nil
}
