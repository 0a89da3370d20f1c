package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/png"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/tingold/goavif"
	"golang.org/x/image/tiff"
)

// Output formats.
const (
	formatPNG     = "png"
	formatTIFF    = "tiff"
	formatRaw     = "raw"
	formatRawZstd = "raw.zst"
)

// formatFor picks the output format from the file extension.
func formatFor(path string) (string, error) {
	p := strings.ToLower(path)
	switch {
	case strings.HasSuffix(p, ".png"):
		return formatPNG, nil
	case strings.HasSuffix(p, ".tif"), strings.HasSuffix(p, ".tiff"):
		return formatTIFF, nil
	case strings.HasSuffix(p, ".raw.zst"):
		return formatRawZstd, nil
	case strings.HasSuffix(p, ".raw"):
		return formatRaw, nil
	}
	return "", fmt.Errorf("cannot infer output format from %q", path)
}

func writeImage(w io.Writer, img *goavif.Image, format string) error {
	switch format {
	case formatPNG:
		if err := png.Encode(w, img.ToImage()); err != nil {
			return fmt.Errorf("failed to encode PNG: %w", err)
		}
		return nil
	case formatTIFF:
		if err := tiff.Encode(w, img.ToImage(), &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
			return fmt.Errorf("failed to encode TIFF: %w", err)
		}
		return nil
	case formatRaw:
		return writeRaw(w, img)
	case formatRawZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return fmt.Errorf("zstd encode: %w", err)
		}
		if err := writeRaw(enc, img); err != nil {
			enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("zstd encode: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

// writeRaw writes interleaved samples at native depth with no header: one
// byte per sample for 8-bit layouts, little-endian uint16 otherwise.
func writeRaw(w io.Writer, img *goavif.Image) error {
	bw := bufio.NewWriter(w)
	if img.Layout.Is16() {
		var b [2]byte
		for _, v := range img.Pix16 {
			binary.LittleEndian.PutUint16(b[:], v)
			if _, err := bw.Write(b[:]); err != nil {
				return err
			}
		}
	} else if _, err := bw.Write(img.Pix8); err != nil {
		return err
	}
	return bw.Flush()
}
