package goavif

import "math"

// chromaTap tells a luma coordinate which two chroma samples to blend along
// one axis and with what weights. w0+w1 == 1 and both are non-negative.
type chromaTap struct {
	i0, i1 int
	w0, w1 float64
}

// chromaTaps computes the taps for n luma positions over a chroma axis of
// length cn. shift is 0 when the axis is not subsampled.
//
// The fractional chroma position is x*0.5-0.5. It is clamped into
// [0, cn-1] before the floor is taken so that edge pixels never end up with a
// negative weight.
func chromaTaps(n, cn, shift int) []chromaTap {
	taps := make([]chromaTap, n)
	if shift == 0 {
		for x := range taps {
			taps[x] = chromaTap{i0: x, i1: x, w0: 1}
		}
		return taps
	}
	last := float64(cn - 1)
	for x := range taps {
		pos := float64(x)*0.5 - 0.5
		if pos < 0 {
			pos = 0
		} else if pos > last {
			pos = last
		}
		i0 := int(math.Floor(pos))
		frac := pos - float64(i0)
		i1 := i0 + 1
		if i1 > cn-1 {
			i1 = cn - 1
		}
		taps[x] = chromaTap{i0: i0, i1: i1, w0: 1 - frac, w1: frac}
	}
	return taps
}

// fixedTap is chromaTap with Q16 weights.
type fixedTap struct {
	i0, i1 int
	w0, w1 int64
}

const fixedOne = 1 << 16

func fixedTaps(taps []chromaTap) []fixedTap {
	out := make([]fixedTap, len(taps))
	for i, t := range taps {
		w1 := int64(math.Round(t.w1 * fixedOne))
		out[i] = fixedTap{i0: t.i0, i1: t.i1, w0: fixedOne - w1, w1: w1}
	}
	return out
}

// bilinear blends four chroma samples. rowA/rowB are the two chroma rows
// selected by the vertical tap.
func bilinear[T Sample](rowA, rowB []T, tx, ty chromaTap) float64 {
	top := tx.w0*float64(rowA[tx.i0]) + tx.w1*float64(rowA[tx.i1])
	bottom := tx.w0*float64(rowB[tx.i0]) + tx.w1*float64(rowB[tx.i1])
	return ty.w0*top + ty.w1*bottom
}

// bilinearFixed is bilinear in Q32 (Q16 weights squared).
func bilinearFixed[T Sample](rowA, rowB []T, tx, ty fixedTap) int64 {
	top := tx.w0*int64(rowA[tx.i0]) + tx.w1*int64(rowA[tx.i1])
	bottom := tx.w0*int64(rowB[tx.i0]) + tx.w1*int64(rowB[tx.i1])
	return ty.w0*top + ty.w1*bottom
}
