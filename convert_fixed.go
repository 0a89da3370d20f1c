package goavif

import "math"

// coeffBits is the fractional precision of the fixed-point coefficients.
// Chroma is interpolated with Q16 weights, so products carry 36 fractional bits.
const (
	coeffBits   = 20
	productBits = coeffBits + 16
)

type fixedCoefficients struct {
	ky             int64
	vr, ug, vg, ub int64
	yOff, mid      int64 // Q16
	max            int64
}

func newFixedCoefficients(m Matrix, rp rangeParams, needChroma bool) (fixedCoefficients, error) {
	scale := func(f float64) int64 {
		return int64(math.Round(f * (1 << coeffBits)))
	}
	k := fixedCoefficients{
		ky:   scale(rp.max / rp.yScale),
		yOff: int64(rp.yOffInt) << 16,
		mid:  int64(rp.midInt) << 16,
		max:  int64(rp.maxInt),
	}
	if !needChroma || m == MatrixIdentity {
		return k, nil
	}
	co, err := deriveCoefficients(m)
	if err != nil {
		return k, err
	}
	gain := rp.max / rp.uvScale
	k.vr = scale(co.vr * gain)
	k.ug = scale(co.ug * gain)
	k.vg = scale(co.vg * gain)
	k.ub = scale(co.ub * gain)
	return k, nil
}

// clampFixed rounds a Q36 value to an integer and clamps it to [0, max].
func (k *fixedCoefficients) clampFixed(acc int64) int64 {
	v := (acc + 1<<(productBits-1)) >> productBits
	if v < 0 {
		return 0
	}
	if v > k.max {
		return k.max
	}
	return v
}

// runFixed mirrors runFloat in integer arithmetic.
func (c *conversion[T]) runFixed() error {
	w, h := c.y.Width, c.y.Height
	mono := c.cs.Subsampling == SubsamplingMonochrome
	identity := c.cs.Matrix == MatrixIdentity

	k, err := newFixedCoefficients(c.cs.Matrix, c.rp, !mono)
	if err != nil {
		return err
	}

	if mono {
		for row := 0; row < h; row++ {
			src := c.y.Row(row)
			dst := c.out[row*w*c.channels : (row+1)*w*c.channels]
			for x := 0; x < w; x++ {
				g := T(k.clampFixed(k.ky * (int64(src[x])<<16 - k.yOff)))
				c.put(dst, x, g, g, g)
			}
		}
		return nil
	}

	sx, sy := c.cs.Subsampling.shift()
	xt := fixedTaps(chromaTaps(w, c.u.Width, sx))
	yt := fixedTaps(chromaTaps(h, c.u.Height, sy))

	for row := 0; row < h; row++ {
		src := c.y.Row(row)
		ty := yt[row]
		u0, u1 := c.u.Row(ty.i0), c.u.Row(ty.i1)
		v0, v1 := c.v.Row(ty.i0), c.v.Row(ty.i1)
		dst := c.out[row*w*c.channels : (row+1)*w*c.channels]
		for x := 0; x < w; x++ {
			tx := xt[x]
			// Q32 interpolation rounded back to Q16.
			uu := (bilinearFixed(u0, u1, tx, ty) + 1<<15) >> 16
			vv := (bilinearFixed(v0, v1, tx, ty) + 1<<15) >> 16
			yy := k.ky * (int64(src[x])<<16 - k.yOff)

			var r, g, b int64
			if identity {
				g = yy
				b = k.ky * (uu - k.yOff)
				r = k.ky * (vv - k.yOff)
			} else {
				uc := uu - k.mid
				vc := vv - k.mid
				r = yy + k.vr*vc
				g = yy + k.ug*uc + k.vg*vc
				b = yy + k.ub*uc
			}
			c.put(dst, x, T(k.clampFixed(r)), T(k.clampFixed(g)), T(k.clampFixed(b)))
		}
	}
	return nil
}
