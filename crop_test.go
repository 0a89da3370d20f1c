package goavif

import (
	"errors"
	"testing"
)

func TestCropTopLeft(t *testing.T) {
	// A decoder handing back a 1x128 buffer for a 1x1 image.
	img := newImage(LayoutGray8, 1, 128, 8)
	for i := range img.Pix8 {
		img.Pix8[i] = uint8(i + 7)
	}
	out, err := Crop(img, 1, 1)
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	if out.Width != 1 || out.Height != 1 || len(out.Pix8) != 1 || out.Pix8[0] != 7 {
		t.Errorf("got %dx%d %v", out.Width, out.Height, out.Pix8)
	}

	rgb := newImage(LayoutRGB16, 4, 3, 10)
	for i := range rgb.Pix16 {
		rgb.Pix16[i] = uint16(i)
	}
	out, err = Crop(rgb, 2, 2)
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	want := []uint16{0, 1, 2, 3, 4, 5, 12, 13, 14, 15, 16, 17}
	for i := range want {
		if out.Pix16[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, out.Pix16[i], want[i])
		}
	}
	if out.BitDepth != 10 || out.Layout != LayoutRGB16 {
		t.Errorf("crop changed format to %v/%d", out.Layout, out.BitDepth)
	}
}

func TestCropIdentity(t *testing.T) {
	img := newImage(LayoutRGBA8, 3, 2, 8)
	out, err := Crop(img, 3, 2)
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	if out != img {
		t.Error("crop to the same size should return the input")
	}
}

func TestCropErrors(t *testing.T) {
	img := newImage(LayoutRGB8, 3, 2, 8)
	if _, err := Crop(img, 4, 2); !errors.Is(err, ErrPlaneSizeMismatch) {
		t.Errorf("wider: expected ErrPlaneSizeMismatch, got %v", err)
	}
	if _, err := Crop(img, 3, 3); !errors.Is(err, ErrPlaneSizeMismatch) {
		t.Errorf("taller: expected ErrPlaneSizeMismatch, got %v", err)
	}
	if _, err := Crop(img, 0, 1); err == nil {
		t.Error("expected an error for a zero width")
	}
	if _, err := Crop(nil, 1, 1); err == nil {
		t.Error("expected an error for a nil image")
	}
}
