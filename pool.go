package goavif

import (
	"sync"
)

// Buffer pools for reducing GC pressure in hot paths

// byteSlicePool pools byte slices of various sizes
type byteSlicePool struct {
	// Small buffers (up to 64KB) - typical for small tile bitstreams
	small sync.Pool
	// Medium buffers (up to 256KB) - typical for 512x512 tile bitstreams
	medium sync.Pool
	// Large buffers (up to 1MB) - 8-bit planes of 1024x1024 tiles
	large sync.Pool
	// XLarge buffers (up to 4MB) - full-size single-item planes
	xlarge sync.Pool
}

const (
	smallBufferSize  = 64 * 1024       // 64KB
	mediumBufferSize = 256 * 1024      // 256KB
	largeBufferSize  = 1024 * 1024     // 1MB
	xlargeBufferSize = 4 * 1024 * 1024 // 4MB
)

func newBytePool(size int) sync.Pool {
	return sync.Pool{
		New: func() interface{} {
			buf := make([]byte, size)
			return &buf
		},
	}
}

var bufferPool = &byteSlicePool{
	small:  newBytePool(smallBufferSize),
	medium: newBytePool(mediumBufferSize),
	large:  newBytePool(largeBufferSize),
	xlarge: newBytePool(xlargeBufferSize),
}

// GetBuffer returns a byte slice of at least the requested size from the pool.
// The returned slice may have a larger capacity than requested.
// Call PutBuffer when done to return it to the pool.
func GetBuffer(size int) []byte {
	if size <= smallBufferSize {
		bufPtr := bufferPool.small.Get().(*[]byte)
		return (*bufPtr)[:size]
	}
	if size <= mediumBufferSize {
		bufPtr := bufferPool.medium.Get().(*[]byte)
		return (*bufPtr)[:size]
	}
	if size <= largeBufferSize {
		bufPtr := bufferPool.large.Get().(*[]byte)
		return (*bufPtr)[:size]
	}
	if size <= xlargeBufferSize {
		bufPtr := bufferPool.xlarge.Get().(*[]byte)
		return (*bufPtr)[:size]
	}
	// For very large buffers, allocate directly
	return make([]byte, size)
}

// PutBuffer returns a buffer to the pool.
// The buffer should not be used after calling this function.
func PutBuffer(buf []byte) {
	c := cap(buf)
	if c == 0 {
		return
	}

	// Reset slice to full capacity for reuse
	buf = buf[:c]

	switch c {
	case smallBufferSize:
		bufferPool.small.Put(&buf)
	case mediumBufferSize:
		bufferPool.medium.Put(&buf)
	case largeBufferSize:
		bufferPool.large.Put(&buf)
	case xlargeBufferSize:
		bufferPool.xlarge.Put(&buf)
	}
	// Don't pool non-standard sizes or very large buffers
}

// uint16SlicePool pools sample slices for high bit depth planes
type uint16SlicePool struct {
	tile512  sync.Pool // one 512x512 plane
	tile1024 sync.Pool // one 1024x1024 plane
}

const (
	tile512Samples  = 512 * 512
	tile1024Samples = 1024 * 1024
)

var uint16Pool = &uint16SlicePool{
	tile512: sync.Pool{
		New: func() interface{} {
			buf := make([]uint16, tile512Samples)
			return &buf
		},
	},
	tile1024: sync.Pool{
		New: func() interface{} {
			buf := make([]uint16, tile1024Samples)
			return &buf
		},
	},
}

// GetUint16Slice returns a uint16 slice of at least the requested size
func GetUint16Slice(size int) []uint16 {
	if size <= tile512Samples {
		bufPtr := uint16Pool.tile512.Get().(*[]uint16)
		return (*bufPtr)[:size]
	}
	if size <= tile1024Samples {
		bufPtr := uint16Pool.tile1024.Get().(*[]uint16)
		return (*bufPtr)[:size]
	}
	// For larger slices, allocate directly
	return make([]uint16, size)
}

// PutUint16Slice returns a uint16 slice to the pool
func PutUint16Slice(buf []uint16) {
	c := cap(buf)
	if c == 0 {
		return
	}

	buf = buf[:c]

	switch c {
	case tile512Samples:
		uint16Pool.tile512.Put(&buf)
	case tile1024Samples:
		uint16Pool.tile1024.Put(&buf)
	}
}

// Release returns the picture's plane buffers to the pools. The picture
// must not be used afterwards.
func (p *Picture) Release() {
	if p == nil {
		return
	}
	for i := range p.Planes8 {
		PutBuffer(p.Planes8[i].Pix)
		p.Planes8[i] = Plane[uint8]{}
	}
	for i := range p.Planes16 {
		PutUint16Slice(p.Planes16[i].Pix)
		p.Planes16[i] = Plane[uint16]{}
	}
}

// tileWork is the per-tile state carried through the decode worker pool.
type tileWork struct {
	index     int
	desc      TileDescriptor
	colorID   uint32
	alphaID   uint32
	colorData []byte
	alphaData []byte
	image     *Image
	err       error
}

var tileWorkPool = sync.Pool{
	New: func() interface{} {
		return &tileWork{}
	},
}

// getTileWork returns a zeroed tileWork from the pool
func getTileWork() *tileWork {
	tw := tileWorkPool.Get().(*tileWork)
	*tw = tileWork{}
	return tw
}

// putTileWork releases the item payload buffers and returns tw to the pool
func putTileWork(tw *tileWork) {
	if tw == nil {
		return
	}
	if tw.colorData != nil {
		PutBuffer(tw.colorData)
	}
	if tw.alphaData != nil {
		PutBuffer(tw.alphaData)
	}
	*tw = tileWork{}
	tileWorkPool.Put(tw)
}
