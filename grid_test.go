package goavif

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/tingold/goavif/internal/testavif"
)

func TestCanvasSize(t *testing.T) {
	cases := []struct {
		name  string
		cfg   GridConfig
		tileW int
		tileH int
		want  Size
	}{
		{"five rows inferred", GridConfig{Rows: 5, Columns: 1}, 1024, 154, Size{Width: 1024, Height: 770}},
		{"two rows one column", GridConfig{Rows: 2, Columns: 1}, 300, 200, Size{Width: 300, Height: 400}},
		{"declared", GridConfig{Rows: 2, Columns: 2, OutputWidth: 500, OutputHeight: 300}, 256, 256, Size{Width: 500, Height: 300}},
		{"height inferred", GridConfig{Rows: 3, Columns: 2, OutputWidth: 100}, 64, 32, Size{Width: 100, Height: 96}},
	}
	for _, tc := range cases {
		if got := CanvasSize(tc.cfg, tc.tileW, tc.tileH); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseGridConfig(t *testing.T) {
	cfg, err := ParseGridConfig(testavif.GridPayload(2, 3, 100, 50))
	if err != nil {
		t.Fatalf("ParseGridConfig: %v", err)
	}
	if cfg != (GridConfig{Rows: 2, Columns: 3, OutputWidth: 100, OutputHeight: 50}) {
		t.Errorf("16-bit fields: %+v", cfg)
	}

	cfg, err = ParseGridConfig(testavif.GridPayload32(4, 1, 70000, 3))
	if err != nil {
		t.Fatalf("ParseGridConfig: %v", err)
	}
	if cfg != (GridConfig{Rows: 4, Columns: 1, OutputWidth: 70000, OutputHeight: 3}) {
		t.Errorf("32-bit fields: %+v", cfg)
	}

	if _, err := ParseGridConfig([]byte{1, 0, 0, 0, 0, 1, 0, 1}); !errors.Is(err, ErrUnsupportedFeature) {
		t.Errorf("version 1: expected ErrUnsupportedFeature, got %v", err)
	}
	if _, err := ParseGridConfig([]byte{0, 0, 0}); !errors.Is(err, ErrContainer) {
		t.Errorf("short payload: expected ErrContainer, got %v", err)
	}
	if _, err := ParseGridConfig([]byte{0, 1, 0, 0, 0, 0, 0, 1}); !errors.Is(err, ErrContainer) {
		t.Errorf("short 32-bit payload: expected ErrContainer, got %v", err)
	}
}

// solidTile returns a w×h RGB8 image filled with v.
func solidTile(w, h int, v uint8) *Image {
	img := newImage(LayoutRGB8, w, h, 8)
	for i := range img.Pix8 {
		img.Pix8[i] = v
	}
	return img
}

func pixel8(img *Image, x, y int) uint8 {
	return img.Pix8[(y*img.Width+x)*img.Layout.Channels()]
}

func TestAssemblePlacesAndClips(t *testing.T) {
	// Tiles are passed out of raster order; position comes from Row/Col.
	tiles := []Tile{
		{TileDescriptor{Width: 2, Height: 2, Row: 1, Col: 1}, solidTile(2, 2, 4)},
		{TileDescriptor{Width: 2, Height: 2, Row: 0, Col: 0}, solidTile(2, 2, 1)},
		{TileDescriptor{Width: 2, Height: 2, Row: 1, Col: 0}, solidTile(2, 2, 3)},
		{TileDescriptor{Width: 2, Height: 2, Row: 0, Col: 1}, solidTile(3, 3, 2)},
	}
	img, err := Assemble(tiles, GridConfig{Rows: 2, Columns: 2, OutputWidth: 3, OutputHeight: 3})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if img.Width != 3 || img.Height != 3 || img.Layout != LayoutRGB8 {
		t.Fatalf("canvas %v %dx%d", img.Layout, img.Width, img.Height)
	}
	want := [3][3]uint8{
		{1, 1, 2},
		{1, 1, 2},
		{3, 3, 4},
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if got := pixel8(img, x, y); got != want[y][x] {
				t.Errorf("(%d,%d) = %d, want %d", x, y, got, want[y][x])
			}
		}
	}
}

func TestAssembleInferredCanvas(t *testing.T) {
	var tiles []Tile
	for r := 0; r < 5; r++ {
		tiles = append(tiles, Tile{TileDescriptor{Width: 4, Height: 3, Row: r}, solidTile(4, 3, uint8(r+1))})
	}
	img, err := Assemble(tiles, GridConfig{Rows: 5, Columns: 1})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if img.Width != 4 || img.Height != 15 {
		t.Fatalf("canvas %dx%d, want 4x15", img.Width, img.Height)
	}
	for r := 0; r < 5; r++ {
		if got := pixel8(img, 3, r*3+2); got != uint8(r+1) {
			t.Errorf("row band %d = %d", r, got)
		}
	}
}

func TestAssembleErrors(t *testing.T) {
	tile := func(row, col, w, h int) Tile {
		return Tile{TileDescriptor{Width: w, Height: h, Row: row, Col: col}, solidTile(w, h, 0)}
	}
	grid := GridConfig{Rows: 1, Columns: 2}

	cases := []struct {
		name  string
		tiles []Tile
		cfg   GridConfig
		want  error
	}{
		{"count", []Tile{tile(0, 0, 2, 2)}, grid, ErrTileCountMismatch},
		{"size", []Tile{tile(0, 0, 2, 2), tile(0, 1, 3, 2)}, grid, ErrTileGeometry},
		{"position", []Tile{tile(0, 0, 2, 2), tile(1, 0, 2, 2)}, grid, ErrTileGeometry},
		{"duplicate", []Tile{tile(0, 0, 2, 2), tile(0, 0, 2, 2)}, grid, ErrTileGeometry},
		{"canvas too large", []Tile{tile(0, 0, 2, 2), tile(0, 1, 2, 2)}, GridConfig{Rows: 1, Columns: 2, OutputWidth: 5, OutputHeight: 2}, ErrTileGeometry},
		{"empty grid", nil, GridConfig{}, ErrTileGeometry},
	}
	for _, tc := range cases {
		if _, err := Assemble(tc.tiles, tc.cfg); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	small := tile(0, 1, 2, 2)
	small.Image = solidTile(1, 2, 0)
	if _, err := Assemble([]Tile{tile(0, 0, 2, 2), small}, grid); !errors.Is(err, ErrTileGeometry) {
		t.Errorf("undersized tile image: got %v", err)
	}

	deep := tile(0, 1, 2, 2)
	deep.Image = newImage(LayoutRGB16, 2, 2, 10)
	if _, err := Assemble([]Tile{tile(0, 0, 2, 2), deep}, grid); !errors.Is(err, ErrTileGeometry) {
		t.Errorf("mixed layouts: got %v", err)
	}
}

func TestAssembleContextMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	const n, tw, th = 4, 5, 3
	var tiles []Tile
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			img := newImage(LayoutRGBA16, tw, th, 12)
			for i := range img.Pix16 {
				img.Pix16[i] = uint16(rng.Intn(4096))
			}
			tiles = append(tiles, Tile{TileDescriptor{Width: tw, Height: th, Row: r, Col: c}, img})
		}
	}
	cfg := GridConfig{Rows: n, Columns: n, OutputWidth: n*tw - 2, OutputHeight: n*th - 1}

	seq, err := Assemble(tiles, cfg)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	par, err := AssembleContext(context.Background(), tiles, cfg, 4)
	if err != nil {
		t.Fatalf("AssembleContext: %v", err)
	}
	if len(seq.Pix16) != len(par.Pix16) {
		t.Fatalf("sizes differ: %d vs %d", len(seq.Pix16), len(par.Pix16))
	}
	for i := range seq.Pix16 {
		if seq.Pix16[i] != par.Pix16[i] {
			t.Fatalf("sample %d differs", i)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := AssembleContext(ctx, tiles, cfg, 4); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
