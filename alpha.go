package goavif

// applyAlpha writes the alpha plane into the fourth channel of out,
// expanding limited-range alpha to full range, and undoes premultiplication
// when requested.
func applyAlpha[T Sample](out []T, alpha Plane[T], channels int, r Range, premultiplied bool) {
	if channels != 4 {
		return
	}
	rp := newRangeParams(r, alpha.BitDepth)
	maxv := rp.maxInt
	w := alpha.Width
	for row := 0; row < alpha.Height; row++ {
		src := alpha.Row(row)
		dst := out[row*w*4 : (row+1)*w*4]
		for x := 0; x < w; x++ {
			a := int(src[x])
			if r == RangeLimited {
				a = limitedToFull(a, rp)
			}
			i := x * 4
			dst[i+3] = T(a)
			if premultiplied && a != 0 && a != maxv {
				dst[i] = T(unpremultiply(int(dst[i]), a, maxv))
				dst[i+1] = T(unpremultiply(int(dst[i+1]), a, maxv))
				dst[i+2] = T(unpremultiply(int(dst[i+2]), a, maxv))
			}
		}
	}
}

// limitedToFull expands a limited-range luma-style sample to full range with
// rounding.
func limitedToFull(v int, rp rangeParams) int {
	scale := int(rp.yScale)
	v -= rp.yOffInt
	if v <= 0 {
		return 0
	}
	v = (v*rp.maxInt + scale/2) / scale
	if v > rp.maxInt {
		return rp.maxInt
	}
	return v
}

// unpremultiply divides a premultiplied colour sample by alpha, rounding to
// nearest. a must be in (0, maxv).
func unpremultiply(c, a, maxv int) int {
	v := (c*maxv + a/2) / a
	if v > maxv {
		return maxv
	}
	return v
}
