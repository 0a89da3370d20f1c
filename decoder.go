package goavif

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// Decoder turns AVIF files into Images. A Decoder is safe for concurrent
// use; every call gets its own AV1 decoder instances.
type Decoder struct {
	cfg Config
}

// NewDecoder returns a Decoder with DefaultConfig modified by opts.
func NewDecoder(opts ...Option) *Decoder {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Decoder{cfg: cfg}
}

// Config returns the decoder's configuration.
func (d *Decoder) Config() Config {
	return d.cfg
}

// DecodeBytes decodes an AVIF file held in memory with the default
// configuration.
func DecodeBytes(data []byte) (*Image, error) {
	return NewDecoder().Decode(context.Background(), data)
}

// Decode decodes an AVIF file held in memory.
func (d *Decoder) Decode(ctx context.Context, data []byte) (*Image, error) {
	return d.DecodeReader(ctx, bytes.NewReader(data))
}

// DecodeReader decodes the AVIF file read from r. Only 'ftyp', 'meta' and
// the extents of the items being decoded are read.
func (d *Decoder) DecodeReader(ctx context.Context, r io.ReadSeeker) (*Image, error) {
	start := time.Now()
	c, err := ParseContainer(r)
	if err != nil {
		return nil, stageError(StageParse, 0, -1, err)
	}
	info, err := buildInfo(c)
	if err != nil {
		return nil, stageError(StageParse, c.PrimaryID, -1, err)
	}
	d.cfg.Logger.Debug("parsed container",
		"primary", info.PrimaryItem,
		"size", Size{Width: info.Width, Height: info.Height},
		"depth", info.BitDepth,
		"tiles", len(info.TileItems),
		"alpha", info.HasAlpha,
		"elapsed", time.Since(start))
	return d.decodeContainer(ctx, c, info)
}

func (d *Decoder) factory() AV1DecoderFactory {
	if d.cfg.NewAV1Decoder != nil {
		return d.cfg.NewAV1Decoder
	}
	cfg := Dav1dConfig{Threads: 1, ApplyGrain: d.cfg.ApplyGrain}
	if d.cfg.MaxPixels > 0 && d.cfg.MaxPixels <= math.MaxUint32 {
		cfg.FrameSizeLimit = uint32(d.cfg.MaxPixels)
	}
	return func() (AV1Decoder, error) {
		return NewDav1dDecoder(cfg)
	}
}

// decodePlan is the validated work for one decode call.
type decodePlan struct {
	info       *Info
	cs         ColorSpace
	alphaRange Range
	premult    bool
	grid       bool
	tiles      []*tileWork
}

func (d *Decoder) plan(c *Container, info *Info) (*decodePlan, error) {
	primary := info.PrimaryItem
	if d.cfg.MaxPixels > 0 && int64(info.Width)*int64(info.Height) > d.cfg.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d is more than %d pixels", ErrImageTooLarge, info.Width, info.Height, d.cfg.MaxPixels)
	}
	cs, err := info.ColorSpace()
	if err != nil {
		return nil, err
	}
	p := &decodePlan{info: info, cs: cs, alphaRange: RangeFull, grid: info.Grid != nil}

	colorIDs := []uint32{primary}
	if p.grid {
		colorIDs = info.TileItems
		if n := info.Grid.Rows * info.Grid.Columns; len(colorIDs) != n {
			return nil, fmt.Errorf("%w: %d 'dimg' tiles for a %dx%d grid", ErrTileCountMismatch, len(colorIDs), info.Grid.Rows, info.Grid.Columns)
		}
	}

	var alphaIDs []uint32
	if info.HasAlpha && !d.cfg.IgnoreAlpha {
		alphaIDs, err = alphaItems(c, info)
		if err != nil {
			return nil, err
		}
		p.premult = info.PremultipliedAlpha
		if first := c.Item(alphaIDs[0]); first != nil {
			if av1c := first.AV1Config(); av1c != nil && len(av1c.ConfigOBUs) > 0 {
				if seq, err := FindSequenceHeader(av1c.ConfigOBUs); err == nil && !seq.Color.FullRange {
					p.alphaRange = RangeLimited
				}
			}
		}
	}

	for i, id := range colorIDs {
		it := c.Item(id)
		if err := it.checkEssential(); err != nil {
			p.release()
			return nil, err
		}
		tw := getTileWork()
		tw.index = i
		tw.colorID = id
		if alphaIDs != nil {
			tw.alphaID = alphaIDs[i]
		}
		if p.grid {
			ispe := it.Spatial()
			if ispe == nil {
				putTileWork(tw)
				p.release()
				return nil, containerErr("ispe", "grid tile %d has no spatial extents", id)
			}
			tw.desc = TileDescriptor{
				Width:  int(ispe.Width),
				Height: int(ispe.Height),
				Row:    i / info.Grid.Columns,
				Col:    i % info.Grid.Columns,
			}
		}
		p.tiles = append(p.tiles, tw)
	}
	return p, nil
}

// alphaItems returns the alpha items matching the colour items one to one.
func alphaItems(c *Container, info *Info) ([]uint32, error) {
	alpha := c.Item(info.AlphaItem)
	if err := alpha.checkEssential(); err != nil {
		return nil, err
	}
	switch {
	case info.Grid == nil && alpha.Type == "av01":
		return []uint32{alpha.ID}, nil
	case info.Grid != nil && alpha.Type == "grid":
		data, err := c.ItemData(alpha.ID)
		if err != nil {
			return nil, err
		}
		cfg, err := ParseGridConfig(data)
		PutBuffer(data)
		if err != nil {
			return nil, err
		}
		ids := c.References(alpha.ID, "dimg")
		if cfg.Rows != info.Grid.Rows || cfg.Columns != info.Grid.Columns || len(ids) != len(info.TileItems) {
			return nil, unsupported("alpha grid %dx%d with %d tiles does not match colour grid %dx%d",
				cfg.Rows, cfg.Columns, len(ids), info.Grid.Rows, info.Grid.Columns)
		}
		for _, id := range ids {
			if t := c.Item(id); t == nil || t.Type != "av01" {
				return nil, unsupported("alpha grid tile %d is not an AV1 item", id)
			}
		}
		return ids, nil
	default:
		return nil, unsupported("alpha item of type '%s' for primary of type '%s'", alpha.Type, c.Primary().Type)
	}
}

func (p *decodePlan) release() {
	for _, tw := range p.tiles {
		putTileWork(tw)
	}
	p.tiles = nil
}

func (p *decodePlan) tileIndex(tw *tileWork) int {
	if p.grid {
		return tw.index
	}
	return -1
}

func (d *Decoder) decodeContainer(ctx context.Context, c *Container, info *Info) (*Image, error) {
	p, err := d.plan(c, info)
	if err != nil {
		return nil, stageError(StagePlan, info.PrimaryItem, -1, err)
	}
	defer p.release()

	// Phase 1: read all item payloads sequentially (I/O bound)
	start := time.Now()
	for _, tw := range p.tiles {
		if tw.colorData, err = c.ItemData(tw.colorID); err != nil {
			return nil, stageError(StageParse, tw.colorID, p.tileIndex(tw), err)
		}
		if tw.alphaID != 0 {
			if tw.alphaData, err = c.ItemData(tw.alphaID); err != nil {
				return nil, stageError(StageParse, tw.alphaID, p.tileIndex(tw), err)
			}
		}
	}
	d.cfg.Logger.Debug("read item payloads", "items", len(p.tiles), "elapsed", time.Since(start))

	// Phase 2: decode and convert tiles in parallel (CPU bound)
	start = time.Now()
	if err := d.decodeTiles(ctx, p); err != nil {
		return nil, err
	}
	d.cfg.Logger.Debug("decoded tiles", "tiles", len(p.tiles), "workers", d.workers(len(p.tiles)), "elapsed", time.Since(start))

	img := p.tiles[0].image
	if p.grid {
		start = time.Now()
		tiles := make([]Tile, len(p.tiles))
		for i, tw := range p.tiles {
			tiles[i] = Tile{TileDescriptor: tw.desc, Image: tw.image}
		}
		img, err = AssembleContext(ctx, tiles, *info.Grid, d.cfg.Workers)
		if err != nil {
			return nil, stageError(StageAssemble, info.PrimaryItem, -1, err)
		}
		d.cfg.Logger.Debug("assembled grid", "canvas", img.Bounds(), "elapsed", time.Since(start))
	}

	img, err = Crop(img, info.Width, info.Height)
	if err != nil {
		return nil, stageError(StageCrop, info.PrimaryItem, -1, err)
	}
	img.Info = info
	return img, nil
}

func (d *Decoder) workers(tiles int) int {
	n := d.cfg.Workers
	if n > tiles {
		n = tiles
	}
	if n < 1 {
		n = 1
	}
	return n
}

// decodeTiles runs the worker pool. Each worker owns one AV1 decoder and
// checks for cancellation before every tile.
func (d *Decoder) decodeTiles(ctx context.Context, p *decodePlan) error {
	newDecoder := d.factory()
	work := make(chan *tileWork, len(p.tiles))
	for _, tw := range p.tiles {
		work <- tw
	}
	close(work)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers(len(p.tiles)); i++ {
		g.Go(func() error {
			dec, err := newDecoder()
			if err != nil {
				return stageError(StageDecode, p.info.PrimaryItem, -1, decoderErr(err))
			}
			defer dec.Close()
			for tw := range work {
				if err := gctx.Err(); err != nil {
					return stageError(StageDecode, tw.colorID, p.tileIndex(tw), err)
				}
				if err := d.decodeTile(gctx, dec, p, tw); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Decoder) decodeTile(ctx context.Context, dec AV1Decoder, p *decodePlan, tw *tileWork) error {
	tile := p.tileIndex(tw)
	color, err := dec.DecodeFrame(ctx, tw.colorData)
	if err != nil {
		return stageError(StageDecode, tw.colorID, tile, decoderErr(err))
	}
	defer color.Release()
	PutBuffer(tw.colorData)
	tw.colorData = nil

	var alpha *Picture
	alphaRange := p.alphaRange
	if tw.alphaData != nil {
		alpha, err = dec.DecodeFrame(ctx, tw.alphaData)
		if err != nil {
			return stageError(StageDecode, tw.alphaID, tile, decoderErr(err))
		}
		defer alpha.Release()
		sc := alpha.Color
		if sc == nil {
			if seq, err := FindSequenceHeader(tw.alphaData); err == nil {
				sc = &seq.Color
			}
		}
		if sc != nil {
			alphaRange = RangeLimited
			if sc.FullRange {
				alphaRange = RangeFull
			}
		}
		PutBuffer(tw.alphaData)
		tw.alphaData = nil
	}

	cs := p.cs
	cs.Subsampling = color.Subsampling
	tw.image, err = ConvertPicture(color, alpha, cs, ConvertOptions{
		Precision:          d.cfg.Precision,
		AlphaRange:         alphaRange,
		PremultipliedAlpha: p.premult,
	})
	if err != nil {
		return stageError(StageConvert, tw.colorID, tile, err)
	}
	return nil
}

// decoderErr makes sure AV1 decoder errors match ErrDecoderFailure, leaving
// cancellation errors alone.
func decoderErr(err error) error {
	if errors.Is(err, ErrDecoderFailure) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDecoderFailure, err)
}
