package goavif

import (
	"fmt"
	"image"
)

// Layout identifies the pixel format of an Image.
type Layout int

const (
	LayoutGray8 Layout = iota
	LayoutGray16
	LayoutRGB8
	LayoutRGB16
	LayoutRGBA8
	LayoutRGBA16
)

func (l Layout) String() string {
	switch l {
	case LayoutGray8:
		return "Gray8"
	case LayoutGray16:
		return "Gray16"
	case LayoutRGB8:
		return "RGB8"
	case LayoutRGB16:
		return "RGB16"
	case LayoutRGBA8:
		return "RGBA8"
	case LayoutRGBA16:
		return "RGBA16"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Channels returns the number of interleaved samples per pixel.
func (l Layout) Channels() int {
	switch l {
	case LayoutGray8, LayoutGray16:
		return 1
	case LayoutRGB8, LayoutRGB16:
		return 3
	default:
		return 4
	}
}

// Is16 reports whether the layout stores uint16 samples.
func (l Layout) Is16() bool {
	return l == LayoutGray16 || l == LayoutRGB16 || l == LayoutRGBA16
}

// HasAlpha reports whether the layout carries an alpha channel.
func (l Layout) HasAlpha() bool {
	return l == LayoutRGBA8 || l == LayoutRGBA16
}

func layoutFor(channels int, wide bool) Layout {
	var l Layout
	switch channels {
	case 1:
		l = LayoutGray8
	case 3:
		l = LayoutRGB8
	default:
		l = LayoutRGBA8
	}
	if wide {
		l++
	}
	return l
}

// Image is a decoded picture. Exactly one of Pix8 and Pix16 is non-nil,
// chosen by Layout. Samples are interleaved and rows are tightly packed.
// 16-bit layouts keep samples at BitDepth (10-bit data stays below 1024).
type Image struct {
	Layout   Layout
	Width    int
	Height   int
	BitDepth int
	Pix8     []uint8
	Pix16    []uint16

	// Info is set on images returned by Decoder.
	Info *Info
}

func newImage(layout Layout, width, height, depth int) *Image {
	img := &Image{Layout: layout, Width: width, Height: height, BitDepth: depth}
	n := width * height * layout.Channels()
	if layout.Is16() {
		img.Pix16 = make([]uint16, n)
	} else {
		img.Pix8 = make([]uint8, n)
	}
	return img
}

// RowLen returns the number of samples in one row.
func (m *Image) RowLen() int {
	return m.Width * m.Layout.Channels()
}

// Bounds returns the image rectangle anchored at the origin.
func (m *Image) Bounds() Rectangle {
	return Rectangle{X: 0, Y: 0, Width: m.Width, Height: m.Height}
}

// ToImage converts to the closest standard library image type. Samples
// deeper than 8 bits are scaled to the full 16-bit range.
func (m *Image) ToImage() image.Image {
	r := image.Rect(0, 0, m.Width, m.Height)
	switch m.Layout {
	case LayoutGray8:
		out := image.NewGray(r)
		copy(out.Pix, m.Pix8)
		return out
	case LayoutRGB8:
		out := image.NewNRGBA(r)
		for i, j := 0, 0; i < len(m.Pix8); i, j = i+3, j+4 {
			out.Pix[j] = m.Pix8[i]
			out.Pix[j+1] = m.Pix8[i+1]
			out.Pix[j+2] = m.Pix8[i+2]
			out.Pix[j+3] = 0xff
		}
		return out
	case LayoutRGBA8:
		out := image.NewNRGBA(r)
		copy(out.Pix, m.Pix8)
		return out
	case LayoutGray16:
		out := image.NewGray16(r)
		for i, v := range m.Pix16 {
			putUint16(out.Pix[2*i:], scaleTo16(v, m.BitDepth))
		}
		return out
	case LayoutRGB16:
		out := image.NewNRGBA64(r)
		for i, j := 0, 0; i < len(m.Pix16); i, j = i+3, j+8 {
			putUint16(out.Pix[j:], scaleTo16(m.Pix16[i], m.BitDepth))
			putUint16(out.Pix[j+2:], scaleTo16(m.Pix16[i+1], m.BitDepth))
			putUint16(out.Pix[j+4:], scaleTo16(m.Pix16[i+2], m.BitDepth))
			putUint16(out.Pix[j+6:], 0xffff)
		}
		return out
	default:
		out := image.NewNRGBA64(r)
		for i, v := range m.Pix16 {
			putUint16(out.Pix[2*i:], scaleTo16(v, m.BitDepth))
		}
		return out
	}
}

// scaleTo16 widens an n-bit sample to 16 bits by bit replication.
func scaleTo16(v uint16, depth int) uint16 {
	if depth >= 16 {
		return v
	}
	shift := 16 - depth
	return v<<shift | v>>(depth-shift)
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
