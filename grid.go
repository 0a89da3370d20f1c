package goavif

import (
	"context"
	"encoding/binary"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// GridConfig is the body of a 'grid' derived image item. A zero output size
// means the canvas is inferred from the tile size.
type GridConfig struct {
	Rows         int
	Columns      int
	OutputWidth  int
	OutputHeight int
}

// ParseGridConfig parses the payload of a 'grid' item.
func ParseGridConfig(data []byte) (GridConfig, error) {
	if len(data) < 8 {
		return GridConfig{}, containerErr("grid", "payload of %d bytes is too short", len(data))
	}
	if data[0] != 0 {
		return GridConfig{}, unsupported("grid version %d", data[0])
	}
	flags := data[1]
	cfg := GridConfig{
		Rows:    int(data[2]) + 1,
		Columns: int(data[3]) + 1,
	}
	if flags&1 != 0 {
		if len(data) < 12 {
			return GridConfig{}, containerErr("grid", "payload of %d bytes is too short for 32-bit fields", len(data))
		}
		cfg.OutputWidth = int(binary.BigEndian.Uint32(data[4:8]))
		cfg.OutputHeight = int(binary.BigEndian.Uint32(data[8:12]))
	} else {
		cfg.OutputWidth = int(binary.BigEndian.Uint16(data[4:6]))
		cfg.OutputHeight = int(binary.BigEndian.Uint16(data[6:8]))
	}
	return cfg, nil
}

// CanvasSize returns the declared output size, or tile size times grid size
// for any dimension declared as zero.
func CanvasSize(cfg GridConfig, tileWidth, tileHeight int) Size {
	s := Size{Width: cfg.OutputWidth, Height: cfg.OutputHeight}
	if s.Width == 0 {
		s.Width = tileWidth * cfg.Columns
	}
	if s.Height == 0 {
		s.Height = tileHeight * cfg.Rows
	}
	return s
}

// TileDescriptor positions one tile inside the grid.
type TileDescriptor struct {
	Width  int
	Height int
	Row    int
	Col    int
}

// Tile is a converted tile and its position. Image may be larger than the
// descriptor when the AV1 picture carries padding; the excess is ignored.
type Tile struct {
	TileDescriptor
	Image *Image
}

// placement is the clipped copy for one tile, computed before any write.
type placement struct {
	tile int
	src  Rectangle // inside the tile image
	dst  Rectangle // inside the canvas
}

// gridPlan is everything Assemble needs after validation.
type gridPlan struct {
	canvas     Size
	layout     Layout
	depth      int
	placements []placement
}

func planGrid(tiles []Tile, cfg GridConfig) (*gridPlan, error) {
	if cfg.Rows <= 0 || cfg.Columns <= 0 {
		return nil, fmt.Errorf("%w: grid of %dx%d", ErrTileGeometry, cfg.Rows, cfg.Columns)
	}
	if len(tiles) != cfg.Rows*cfg.Columns {
		return nil, fmt.Errorf("%w: got %d tiles for a %dx%d grid", ErrTileCountMismatch, len(tiles), cfg.Rows, cfg.Columns)
	}

	first := tiles[0]
	if first.Image == nil {
		return nil, fmt.Errorf("%w: tile 0 has no image", ErrTileGeometry)
	}
	tw, th := first.Width, first.Height
	if tw <= 0 || th <= 0 {
		return nil, fmt.Errorf("%w: tile size %dx%d", ErrTileGeometry, tw, th)
	}

	canvas := CanvasSize(cfg, tw, th)
	if canvas.Width > tw*cfg.Columns || canvas.Height > th*cfg.Rows {
		return nil, fmt.Errorf("%w: canvas %v is larger than %dx%d tiles of %dx%d",
			ErrTileGeometry, canvas, cfg.Columns, cfg.Rows, tw, th)
	}
	bounds := Rectangle{Width: canvas.Width, Height: canvas.Height}

	plan := &gridPlan{
		canvas:     canvas,
		layout:     first.Image.Layout,
		depth:      first.Image.BitDepth,
		placements: make([]placement, 0, len(tiles)),
	}
	seen := make([]bool, len(tiles))
	for i, t := range tiles {
		switch {
		case t.Image == nil:
			return nil, fmt.Errorf("%w: tile %d has no image", ErrTileGeometry, i)
		case t.Width != tw || t.Height != th:
			return nil, fmt.Errorf("%w: tile %d is %dx%d, expected %dx%d", ErrTileGeometry, i, t.Width, t.Height, tw, th)
		case t.Row < 0 || t.Row >= cfg.Rows || t.Col < 0 || t.Col >= cfg.Columns:
			return nil, fmt.Errorf("%w: tile %d at (%d,%d) is outside the %dx%d grid", ErrTileGeometry, i, t.Row, t.Col, cfg.Rows, cfg.Columns)
		case t.Image.Layout != plan.layout || t.Image.BitDepth != plan.depth:
			return nil, fmt.Errorf("%w: tile %d is %v/%d-bit, tile 0 is %v/%d-bit",
				ErrTileGeometry, i, t.Image.Layout, t.Image.BitDepth, plan.layout, plan.depth)
		case t.Image.Width < tw || t.Image.Height < th:
			return nil, fmt.Errorf("%w: tile %d image is %dx%d, smaller than its %dx%d cell",
				ErrTileGeometry, i, t.Image.Width, t.Image.Height, tw, th)
		}
		cell := t.Row*cfg.Columns + t.Col
		if seen[cell] {
			return nil, fmt.Errorf("%w: two tiles at (%d,%d)", ErrTileGeometry, t.Row, t.Col)
		}
		seen[cell] = true

		dst := Rectangle{X: t.Col * tw, Y: t.Row * th, Width: tw, Height: th}.Intersect(bounds)
		if dst.Empty() {
			continue
		}
		plan.placements = append(plan.placements, placement{
			tile: i,
			src:  Rectangle{Width: dst.Width, Height: dst.Height},
			dst:  dst,
		})
	}
	return plan, nil
}

// Assemble composes converted tiles into one image. Tiles are placed at
// (Col*Width, Row*Height) in the order given and clipped to the canvas.
func Assemble(tiles []Tile, cfg GridConfig) (*Image, error) {
	return AssembleContext(context.Background(), tiles, cfg, 1)
}

// AssembleContext is Assemble with up to workers tiles copied concurrently.
// Every placement is computed before the first write, and tiles write
// disjoint rectangles, so the canvas needs no locking.
func AssembleContext(ctx context.Context, tiles []Tile, cfg GridConfig, workers int) (*Image, error) {
	plan, err := planGrid(tiles, cfg)
	if err != nil {
		return nil, err
	}
	canvas := newImage(plan.layout, plan.canvas.Width, plan.canvas.Height, plan.depth)

	if workers <= 1 || len(plan.placements) <= 1 {
		for _, p := range plan.placements {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			copyTileToCanvas(tiles[p.tile].Image, canvas, p)
		}
		return canvas, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range plan.placements {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			copyTileToCanvas(tiles[p.tile].Image, canvas, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return canvas, nil
}

// copyTileToCanvas copies one clipped tile region row by row.
func copyTileToCanvas(tile, canvas *Image, p placement) {
	ch := canvas.Layout.Channels()
	srcStride := tile.Width * ch
	dstStride := canvas.Width * ch
	n := p.dst.Width * ch
	for row := 0; row < p.dst.Height; row++ {
		src := (p.src.Y+row)*srcStride + p.src.X*ch
		dst := (p.dst.Y+row)*dstStride + p.dst.X*ch
		if canvas.Layout.Is16() {
			copy(canvas.Pix16[dst:dst+n], tile.Pix16[src:src+n])
		} else {
			copy(canvas.Pix8[dst:dst+n], tile.Pix8[src:src+n])
		}
	}
}
