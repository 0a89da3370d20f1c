package goavif

import "fmt"

// libyuvConstants are libyuv's 6-bit YuvConstants. Both ranges share the
// limited-range luma gain, as libyuv's I601/H709 tables do.
type libyuvConstants struct {
	yg             int32
	ub, ug, vg, vr int32
	bb, bg, br     int32
}

const libyuvYGB = -1160 // 1.164 * 64 * -16 + 64/2

var (
	libyuvBT709 = libyuvConstants{
		yg: 18997, // 1.164 * 64 * 256 * 256 / 257
		ub: -128,
		ug: 14,
		vg: 34,
		vr: -115,
		bb: -128*128 + libyuvYGB,
		bg: 14*128 + 34*128 + libyuvYGB,
		br: -115*128 + libyuvYGB,
	}
	libyuvBT601 = libyuvConstants{
		yg: 18997,
		ub: -132,
		ug: 52,
		vg: 104,
		vr: -102,
		bb: -132*128 + libyuvYGB,
		bg: 52*128 + 104*128 + libyuvYGB,
		br: -102*128 + libyuvYGB,
	}
	libyuvBT2020 = libyuvConstants{
		yg: 19003, // 1.164384 * 64 * 256 * 256 / 257
		ub: -137,
		ug: 12,
		vg: 42,
		vr: -107,
		bb: -137*128 + libyuvYGB,
		bg: 12*128 + 42*128 + libyuvYGB,
		br: -107*128 + libyuvYGB,
	}
)

func libyuvConstantsFor(m Matrix) (*libyuvConstants, error) {
	switch m {
	case MatrixBT709:
		return &libyuvBT709, nil
	case MatrixBT601:
		return &libyuvBT601, nil
	case MatrixBT2020:
		return &libyuvBT2020, nil
	default:
		return nil, fmt.Errorf("%w: %v is not available in approximate mode", ErrUnsupportedMatrix, m)
	}
}

func clampTo(v, hi int32) int32 {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

// pixel converts one YUV triple at the given depth. Luma is widened to 16
// bits and chroma narrowed to 8 bits, as libyuv's 10/12-bit rows do; the
// 14-bit intermediate is shifted down to the output depth.
func (k *libyuvConstants) pixel(y, u, v int32, depth int) (r, g, b int32) {
	y16 := uint32(y) << (16 - depth)
	if depth == 8 {
		y16 = uint32(y) * 0x0101
	}
	y1 := int32((y16 * uint32(k.yg)) >> 16)
	u = clampTo(u>>(depth-8), 255)
	v = clampTo(v>>(depth-8), 255)

	shift := 14 - depth
	hi := int32(1)<<depth - 1
	b = clampTo((-(u*k.ub)+y1+k.bb)>>shift, hi)
	g = clampTo((-(u*k.ug+v*k.vg)+y1+k.bg)>>shift, hi)
	r = clampTo((-(v*k.vr)+y1+k.br)>>shift, hi)
	return r, g, b
}

// runApprox is the libyuv-compatible fast path: nearest chroma sample, 6-bit
// coefficients. It is only reachable through PrecisionApprox.
func (c *conversion[T]) runApprox() error {
	depth := c.y.BitDepth
	if depth > 12 {
		return fmt.Errorf("%w: approximate mode supports up to 12 bits, got %d", ErrUnsupportedDepth, depth)
	}
	mono := c.cs.Subsampling == SubsamplingMonochrome
	k, err := libyuvConstantsFor(c.cs.Matrix)
	if err != nil && !mono {
		return err
	}
	if mono {
		k = &libyuvBT601
	}

	neutral := int32(128) << (depth - 8)
	w, h := c.y.Width, c.y.Height
	sx, sy := c.cs.Subsampling.shift()
	for row := 0; row < h; row++ {
		src := c.y.Row(row)
		dst := c.out[row*w*c.channels : (row+1)*w*c.channels]
		var uRow, vRow []T
		if !mono {
			uRow = c.u.Row(row >> sy)
			vRow = c.v.Row(row >> sy)
		}
		for x := 0; x < w; x++ {
			u, v := neutral, neutral
			if !mono {
				u = int32(uRow[x>>sx])
				v = int32(vRow[x>>sx])
			}
			r, g, b := k.pixel(int32(src[x]), u, v, depth)
			c.put(dst, x, T(r), T(g), T(b))
		}
	}
	return nil
}
