package goavif

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/tingold/goavif/internal/testavif"
)

// Benchmark data generation helpers

type benchPlanes8 struct {
	y, u, v Plane[uint8]
}

type benchPlanes16 struct {
	y, u, v Plane[uint16]
}

// generate420 creates random 4:2:0 planes for benchmarking
func generate420(b *testing.B, w, h int) benchPlanes8 {
	rng := rand.New(rand.NewSource(1))
	cw, ch := (w+1)/2, (h+1)/2
	return benchPlanes8{
		y: plane8(b, w, h, random8(rng)),
		u: plane8(b, cw, ch, random8(rng)),
		v: plane8(b, cw, ch, random8(rng)),
	}
}

func generate420x16(b *testing.B, w, h, depth int) benchPlanes16 {
	rng := rand.New(rand.NewSource(1))
	cw, ch := (w+1)/2, (h+1)/2
	return benchPlanes16{
		y: plane16(b, w, h, depth, random16(rng, depth)),
		u: plane16(b, cw, ch, depth, random16(rng, depth)),
		v: plane16(b, cw, ch, depth, random16(rng, depth)),
	}
}

var benchColorSpace = ColorSpace{Matrix: MatrixBT709, Range: RangeLimited, Subsampling: Subsampling420}

// =============================================================================
// Benchmarks for YUV to RGB conversion
// =============================================================================

func BenchmarkConvert420_8bit_Float(b *testing.B) {
	benchmarkConvert8(b, 512, 512, PrecisionFloat)
}

func BenchmarkConvert420_8bit_Fixed(b *testing.B) {
	benchmarkConvert8(b, 512, 512, PrecisionFixed)
}

func BenchmarkConvert420_8bit_Approx(b *testing.B) {
	benchmarkConvert8(b, 512, 512, PrecisionApprox)
}

func BenchmarkConvert420_8bit_Small(b *testing.B) {
	benchmarkConvert8(b, 64, 64, PrecisionFloat)
}

func BenchmarkConvert420_10bit_Float(b *testing.B) {
	benchmarkConvert16(b, 512, 512, 10, PrecisionFloat)
}

func BenchmarkConvert420_10bit_Fixed(b *testing.B) {
	benchmarkConvert16(b, 512, 512, 10, PrecisionFixed)
}

func benchmarkConvert8(b *testing.B, w, h int, p Precision) {
	planes := generate420(b, w, h)
	opts := ConvertOptions{Precision: p}

	b.SetBytes(int64(w * h * 3))
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := Convert(planes.y, planes.u, planes.v, nil, benchColorSpace, opts); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkConvert16(b *testing.B, w, h, depth int, p Precision) {
	planes := generate420x16(b, w, h, depth)
	opts := ConvertOptions{Precision: p}

	b.SetBytes(int64(w * h * 6))
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := Convert(planes.y, planes.u, planes.v, nil, benchColorSpace, opts); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConvertWithAlpha(b *testing.B) {
	planes := generate420(b, 512, 512)
	alpha := plane8(b, 512, 512, constant8(200))
	opts := ConvertOptions{Precision: PrecisionFloat, AlphaRange: RangeFull, PremultipliedAlpha: true}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := Convert(planes.y, planes.u, planes.v, &alpha, benchColorSpace, opts); err != nil {
			b.Fatal(err)
		}
	}
}

// =============================================================================
// Benchmarks for grid assembly
// =============================================================================

func benchTiles(rows, cols, size int) ([]Tile, GridConfig) {
	tiles := make([]Tile, 0, rows*cols)
	for i := 0; i < rows*cols; i++ {
		tiles = append(tiles, Tile{
			TileDescriptor: TileDescriptor{Width: size, Height: size, Row: i / cols, Col: i % cols},
			Image:          solidTile(size, size, uint8(i)),
		})
	}
	return tiles, GridConfig{Rows: rows, Columns: cols}
}

func BenchmarkAssembleSequential(b *testing.B) {
	tiles, cfg := benchTiles(4, 4, 256)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := Assemble(tiles, cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssembleParallel(b *testing.B) {
	tiles, cfg := benchTiles(4, 4, 256)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := AssembleContext(ctx, tiles, cfg, 4); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCrop(b *testing.B) {
	img := solidTile(1024, 1024, 7)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := Crop(img, 1000, 1000); err != nil {
			b.Fatal(err)
		}
	}
}

// =============================================================================
// Benchmarks for container parsing
// =============================================================================

func benchGridFile(rows, cols int) []byte {
	f := testavif.File{Primary: 1}
	f.Items = append(f.Items, testavif.Item{
		ID:     1,
		Type:   "grid",
		Data:   testavif.GridPayload(rows, cols, 0, 0),
		InIdat: true,
		Props:  []testavif.Prop{{Box: testavif.Ispe(uint32(cols*512), uint32(rows*512))}},
	})
	ref := testavif.Ref{Type: "dimg", From: 1}
	for i := 0; i < rows*cols; i++ {
		id := uint32(10 + i)
		f.Items = append(f.Items, av01Item(id, make([]byte, 4096), baseProps(512, 512)...))
		ref.To = append(ref.To, id)
	}
	f.Refs = []testavif.Ref{ref}
	return f.Bytes()
}

func BenchmarkParseContainer_Grid(b *testing.B) {
	data := benchGridFile(8, 8)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := ParseContainer(bytes.NewReader(data)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkInspect_Grid(b *testing.B) {
	data := benchGridFile(8, 8)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := Inspect(bytes.NewReader(data)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkItemData(b *testing.B) {
	c, err := ParseContainer(bytes.NewReader(benchGridFile(2, 2)))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		data, err := c.ItemData(10)
		if err != nil {
			b.Fatal(err)
		}
		PutBuffer(data)
	}
}

// =============================================================================
// Benchmarks for byte buffer operations
// =============================================================================

func BenchmarkByteBufferAlloc(b *testing.B) {
	size := 512 * 512 // 8-bit luma plane of a typical tile

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		buf := make([]byte, size)
		_ = buf
	}
}

func BenchmarkByteBufferPooled(b *testing.B) {
	size := 512 * 512

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		buf := GetBuffer(size)
		_ = buf
		PutBuffer(buf)
	}
}

func BenchmarkUint16SliceAlloc(b *testing.B) {
	size := 512 * 512

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		buf := make([]uint16, size)
		_ = buf
	}
}

func BenchmarkUint16SlicePooled(b *testing.B) {
	size := 512 * 512

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		buf := GetUint16Slice(size)
		_ = buf
		PutUint16Slice(buf)
	}
}
