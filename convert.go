package goavif

import (
	"errors"
	"fmt"
	"math"
)

// ConvertOptions tune one colour conversion.
type ConvertOptions struct {
	Precision Precision

	// AlphaRange is the quantisation range of the alpha plane. Alpha is
	// always emitted at full range.
	AlphaRange Range

	// PremultipliedAlpha undoes premultiplication after conversion.
	PremultipliedAlpha bool
}

// ConvertPicture converts a decoded colour picture and an optional decoded
// alpha picture into an Image at the picture's coded dimensions.
func ConvertPicture(color, alpha *Picture, cs ColorSpace, opts ConvertOptions) (*Image, error) {
	if color == nil {
		return nil, errors.New("nil picture")
	}
	if alpha != nil && alpha.BitDepth != color.BitDepth {
		return nil, unsupported("alpha bit depth %d differs from colour bit depth %d", alpha.BitDepth, color.BitDepth)
	}
	if color.BitDepth == 8 {
		var a *Plane[uint8]
		if alpha != nil {
			a = &alpha.Planes8[0]
		}
		return Convert(color.Planes8[0], color.Planes8[1], color.Planes8[2], a, cs, opts)
	}
	var a *Plane[uint16]
	if alpha != nil {
		a = &alpha.Planes16[0]
	}
	return Convert(color.Planes16[0], color.Planes16[1], color.Planes16[2], a, cs, opts)
}

// Convert maps YUV planes to interleaved RGB(A), or to gray for monochrome
// input without alpha. The output has the luma plane's addressable
// dimensions and bit depth. Plane geometry is validated before any pixel is
// written. Convert has no shared state and is safe for concurrent use.
func Convert[T Sample](y, u, v Plane[T], alpha *Plane[T], cs ColorSpace, opts ConvertOptions) (*Image, error) {
	if err := validatePlanes(y, u, v, alpha, cs); err != nil {
		return nil, err
	}

	channels := 3
	switch {
	case alpha != nil:
		channels = 4
	case cs.Subsampling == SubsamplingMonochrome:
		channels = 1
	}

	var zero T
	_, wide := any(zero).(uint16)
	img := &Image{
		Layout:   layoutFor(channels, wide),
		Width:    y.Width,
		Height:   y.Height,
		BitDepth: y.BitDepth,
	}
	out := make([]T, y.Width*y.Height*channels)

	job := &conversion[T]{
		y:        y,
		u:        u,
		v:        v,
		cs:       cs,
		rp:       newRangeParams(cs.Range, y.BitDepth),
		channels: channels,
		out:      out,
	}

	var err error
	switch p := opts.Precision.resolve(); p {
	case PrecisionFloat:
		err = job.runFloat()
	case PrecisionFixed:
		err = job.runFixed()
	case PrecisionApprox:
		err = job.runApprox()
	default:
		err = fmt.Errorf("unknown precision %v", p)
	}
	if err != nil {
		return nil, err
	}

	if alpha != nil {
		applyAlpha(out, *alpha, channels, opts.AlphaRange, opts.PremultipliedAlpha)
	}

	switch pix := any(out).(type) {
	case []uint8:
		img.Pix8 = pix
	case []uint16:
		img.Pix16 = pix
	}
	return img, nil
}

func validatePlanes[T Sample](y, u, v Plane[T], alpha *Plane[T], cs ColorSpace) error {
	if !validDepth(y.BitDepth) {
		return fmt.Errorf("%w: %d", ErrUnsupportedDepth, y.BitDepth)
	}
	var zero T
	if _, narrow := any(zero).(uint8); narrow && y.BitDepth != 8 {
		return fmt.Errorf("%w: %d-bit samples in an 8-bit plane", ErrUnsupportedDepth, y.BitDepth)
	}
	if y.Width <= 0 || y.Height <= 0 || y.Stride < y.Width || y.Stride*y.Height > len(y.Pix) {
		return &PlaneSizeError{Plane: "Y", Expected: Size{Width: y.Width, Height: y.Height}, Actual: Size{Width: y.Width, Height: len(y.Pix) / max(y.Stride, 1)}}
	}

	switch cs.Matrix {
	case MatrixBT601, MatrixBT709, MatrixBT2020, MatrixIdentity:
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedMatrix, cs.Matrix)
	}

	switch cs.Subsampling {
	case Subsampling420, Subsampling422, Subsampling444:
		want := cs.Subsampling.ChromaSize(y.Width, y.Height)
		for _, p := range []struct {
			name  string
			plane Plane[T]
		}{{"U", u}, {"V", v}} {
			if err := checkPlane(p.name, p.plane, want); err != nil {
				return err
			}
			if p.plane.BitDepth != y.BitDepth {
				return fmt.Errorf("%w: %s plane is %d-bit, luma is %d-bit", ErrUnsupportedDepth, p.name, p.plane.BitDepth, y.BitDepth)
			}
		}
	case SubsamplingMonochrome:
	default:
		return unsupported("chroma subsampling %v", cs.Subsampling)
	}

	if alpha != nil {
		if err := checkPlane("alpha", *alpha, y.Size()); err != nil {
			return err
		}
		if alpha.BitDepth != y.BitDepth {
			return unsupported("alpha bit depth %d differs from colour bit depth %d", alpha.BitDepth, y.BitDepth)
		}
	}
	return nil
}

func checkPlane[T Sample](name string, p Plane[T], want Size) error {
	if p.Width != want.Width || p.Height != want.Height {
		return &PlaneSizeError{Plane: name, Expected: want, Actual: p.Size()}
	}
	if p.Stride < p.Width || p.Stride*p.Height > len(p.Pix) {
		return &PlaneSizeError{Plane: name, Expected: want, Actual: Size{Width: p.Width, Height: len(p.Pix) / max(p.Stride, 1)}}
	}
	return nil
}

// conversion holds the validated inputs of one Convert call.
type conversion[T Sample] struct {
	y, u, v  Plane[T]
	cs       ColorSpace
	rp       rangeParams
	channels int
	out      []T
}

func (c *conversion[T]) put(dst []T, x int, r, g, b T) {
	i := x * c.channels
	if c.channels == 1 {
		dst[i] = g
		return
	}
	dst[i] = r
	dst[i+1] = g
	dst[i+2] = b
}

// quantize clamps v into [0, max] and rounds half away from zero.
func quantize(v, max float64) int {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= max {
		return int(max)
	}
	return int(math.Round(v))
}

// runFloat is the reference implementation.
func (c *conversion[T]) runFloat() error {
	w, h := c.y.Width, c.y.Height
	rp := c.rp
	mono := c.cs.Subsampling == SubsamplingMonochrome
	identity := c.cs.Matrix == MatrixIdentity

	var co yuvCoefficients
	if !mono && !identity {
		var err error
		if co, err = deriveCoefficients(c.cs.Matrix); err != nil {
			return err
		}
	}

	luma := func(s T) float64 {
		return (float64(s) - rp.yOffset) / rp.yScale
	}

	if mono {
		for row := 0; row < h; row++ {
			src := c.y.Row(row)
			dst := c.out[row*w*c.channels : (row+1)*w*c.channels]
			for x := 0; x < w; x++ {
				g := T(quantize(luma(src[x])*rp.max, rp.max))
				c.put(dst, x, g, g, g)
			}
		}
		return nil
	}

	sx, sy := c.cs.Subsampling.shift()
	xt := chromaTaps(w, c.u.Width, sx)
	yt := chromaTaps(h, c.u.Height, sy)

	for row := 0; row < h; row++ {
		src := c.y.Row(row)
		ty := yt[row]
		u0, u1 := c.u.Row(ty.i0), c.u.Row(ty.i1)
		v0, v1 := c.v.Row(ty.i0), c.v.Row(ty.i1)
		dst := c.out[row*w*c.channels : (row+1)*w*c.channels]
		for x := 0; x < w; x++ {
			tx := xt[x]
			uu := bilinear(u0, u1, tx, ty)
			vv := bilinear(v0, v1, tx, ty)
			yn := luma(src[x])

			var r, g, b float64
			if identity {
				g = yn
				b = (uu - rp.yOffset) / rp.yScale
				r = (vv - rp.yOffset) / rp.yScale
			} else {
				uc := (uu - rp.mid) / rp.uvScale
				vc := (vv - rp.mid) / rp.uvScale
				r = yn + co.vr*vc
				g = yn + co.ug*uc + co.vg*vc
				b = yn + co.ub*uc
			}
			c.put(dst, x,
				T(quantize(r*rp.max, rp.max)),
				T(quantize(g*rp.max, rp.max)),
				T(quantize(b*rp.max, rp.max)))
		}
	}
	return nil
}
