package goavif

import "fmt"

// Crop returns the top-left width×height region of img. The result owns its
// pixels. When img already has the requested size it is returned as is.
// Asking for more pixels than img holds is an error: nothing is padded or
// extrapolated.
func Crop(img *Image, width, height int) (*Image, error) {
	if img == nil {
		return nil, fmt.Errorf("crop of nil image")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid crop size %dx%d", width, height)
	}
	if width > img.Width || height > img.Height {
		return nil, fmt.Errorf("%w: display size %dx%d exceeds decoded size %dx%d",
			ErrPlaneSizeMismatch, width, height, img.Width, img.Height)
	}
	if width == img.Width && height == img.Height {
		return img, nil
	}
	return subImage(img, Rectangle{Width: width, Height: height}), nil
}

// subImage copies rect out of img into a new image. rect must lie inside img.
func subImage(img *Image, rect Rectangle) *Image {
	out := newImage(img.Layout, rect.Width, rect.Height, img.BitDepth)
	out.Info = img.Info
	ch := img.Layout.Channels()
	srcStride := img.Width * ch
	dstStride := rect.Width * ch
	for row := 0; row < rect.Height; row++ {
		src := (rect.Y+row)*srcStride + rect.X*ch
		dst := row * dstStride
		if img.Layout.Is16() {
			copy(out.Pix16[dst:dst+dstStride], img.Pix16[src:src+dstStride])
		} else {
			copy(out.Pix8[dst:dst+dstStride], img.Pix8[src:src+dstStride])
		}
	}
	return out
}
