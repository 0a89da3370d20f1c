//go:build darwin || linux

package goavif

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	dav1dOnce    sync.Once
	dav1dHandle  uintptr
	dav1dInitErr error
)

// libdav1d function pointers
var (
	dav1dVersion         func() string
	dav1dDefaultSettings func(s *dav1dSettings)
	dav1dOpen            func(ctx *uintptr, s *dav1dSettings) int32
	dav1dClose           func(ctx *uintptr)
	dav1dFlush           func(ctx uintptr)
	dav1dDataCreate      func(data *dav1dData, sz uintptr) unsafe.Pointer
	dav1dDataUnref       func(data *dav1dData)
	dav1dSendData        func(ctx uintptr, data *dav1dData) int32
	dav1dGetPicture      func(ctx uintptr, pic *dav1dPicture) int32
	dav1dPictureUnref    func(pic *dav1dPicture)
)

// Leading fields of Dav1dSettings; the tail is left to dav1d_default_settings.
type dav1dSettings struct {
	nThreads       int32
	maxFrameDelay  int32
	applyGrain     int32
	operatingPoint int32
	allLayers      int32
	frameSizeLimit uint32
	_              [232]byte
}

type dav1dData struct {
	data unsafe.Pointer
	sz   uintptr
	ref  unsafe.Pointer
	m    [48]byte // Dav1dDataProps
}

// Leading fields of Dav1dPicture.
type dav1dPicture struct {
	seqHdr   unsafe.Pointer
	frameHdr unsafe.Pointer
	data     [3]unsafe.Pointer
	stride   [2]int
	w        int32
	h        int32
	layout   int32
	bpc      int32
	_        [512]byte
}

// Dav1dPixelLayout
const (
	dav1dLayoutI400 = 0
	dav1dLayoutI420 = 1
	dav1dLayoutI422 = 2
	dav1dLayoutI444 = 3
)

var dav1dEAGAIN = -int32(syscall.EAGAIN)

func loadDav1d(path string) error {
	dav1dOnce.Do(func() {
		dav1dInitErr = loadDav1dLib(path)
	})
	return dav1dInitErr
}

func loadDav1dLib(path string) error {
	paths := dav1dLibPaths(path)

	var lastErr error
	for _, p := range paths {
		handle, err := purego.Dlopen(p, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		dav1dHandle = handle
		purego.RegisterLibFunc(&dav1dVersion, handle, "dav1d_version")
		purego.RegisterLibFunc(&dav1dDefaultSettings, handle, "dav1d_default_settings")
		purego.RegisterLibFunc(&dav1dOpen, handle, "dav1d_open")
		purego.RegisterLibFunc(&dav1dClose, handle, "dav1d_close")
		purego.RegisterLibFunc(&dav1dFlush, handle, "dav1d_flush")
		purego.RegisterLibFunc(&dav1dDataCreate, handle, "dav1d_data_create")
		purego.RegisterLibFunc(&dav1dDataUnref, handle, "dav1d_data_unref")
		purego.RegisterLibFunc(&dav1dSendData, handle, "dav1d_send_data")
		purego.RegisterLibFunc(&dav1dGetPicture, handle, "dav1d_get_picture")
		purego.RegisterLibFunc(&dav1dPictureUnref, handle, "dav1d_picture_unref")
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libdav1d: %w", lastErr)
	}
	return errors.New("libdav1d not found in any standard location")
}

func dav1dLibPaths(override string) []string {
	var paths []string
	if override != "" {
		paths = append(paths, override)
	}
	if env := os.Getenv("GOAVIF_DAV1D_PATH"); env != "" {
		paths = append(paths, env)
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			"libdav1d.dylib",
			"libdav1d.7.dylib",
			"/opt/homebrew/lib/libdav1d.dylib",
			"/usr/local/lib/libdav1d.dylib",
		)
	case "linux":
		paths = append(paths,
			"libdav1d.so.7",
			"libdav1d.so.6",
			"libdav1d.so",
			"/usr/local/lib/libdav1d.so",
		)
		if exe, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(exe), "libdav1d.so"))
		}
	}
	return paths
}

// Dav1dAvailable reports whether libdav1d could be loaded.
func Dav1dAvailable() bool {
	return loadDav1d("") == nil
}

// Dav1dVersion returns the loaded libdav1d version string.
func Dav1dVersion() (string, error) {
	if err := loadDav1d(""); err != nil {
		return "", err
	}
	return dav1dVersion(), nil
}

// Dav1dDecoder is an AV1Decoder backed by libdav1d, loaded at runtime
// without cgo. It is not safe for concurrent use.
type Dav1dDecoder struct {
	ctx uintptr
}

// NewDav1dDecoder opens a dav1d context.
func NewDav1dDecoder(cfg Dav1dConfig) (AV1Decoder, error) {
	if err := loadDav1d(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoderFailure, err)
	}

	var s dav1dSettings
	dav1dDefaultSettings(&s)
	s.nThreads = int32(cfg.Threads)
	s.maxFrameDelay = 1
	s.applyGrain = 0
	if cfg.ApplyGrain {
		s.applyGrain = 1
	}
	s.allLayers = 0
	s.frameSizeLimit = cfg.FrameSizeLimit

	d := &Dav1dDecoder{}
	if res := dav1dOpen(&d.ctx, &s); res < 0 {
		return nil, fmt.Errorf("%w: dav1d_open returned %d", ErrDecoderFailure, res)
	}
	return d, nil
}

// DecodeFrame decodes the first frame of one item's AV1 bitstream.
func (d *Dav1dDecoder) DecodeFrame(ctx context.Context, data []byte) (*Picture, error) {
	if d.ctx == 0 {
		return nil, fmt.Errorf("%w: decoder is closed", ErrDecoderFailure)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty bitstream", ErrDecoderFailure)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer dav1dFlush(d.ctx)

	var in dav1dData
	buf := dav1dDataCreate(&in, uintptr(len(data)))
	if buf == nil {
		return nil, fmt.Errorf("%w: dav1d_data_create failed for %d bytes", ErrDecoderFailure, len(data))
	}
	copy(unsafe.Slice((*byte)(buf), len(data)), data)
	defer dav1dDataUnref(&in)

	var pic dav1dPicture
	got := false
	for !got {
		if in.sz > 0 {
			if res := dav1dSendData(d.ctx, &in); res < 0 && res != dav1dEAGAIN {
				return nil, fmt.Errorf("%w: dav1d_send_data returned %d", ErrDecoderFailure, res)
			}
		}
		res := dav1dGetPicture(d.ctx, &pic)
		switch {
		case res == 0:
			got = true
		case res == dav1dEAGAIN && in.sz > 0:
		case res == dav1dEAGAIN:
			return nil, fmt.Errorf("%w: bitstream holds no frame", ErrDecoderFailure)
		default:
			return nil, fmt.Errorf("%w: dav1d_get_picture returned %d", ErrDecoderFailure, res)
		}
	}
	defer dav1dPictureUnref(&pic)

	out, err := copyDav1dPicture(&pic)
	runtime.KeepAlive(&in)
	return out, err
}

// copyDav1dPicture copies the planes out of dav1d-owned memory into pooled
// buffers, tightly packed.
func copyDav1dPicture(pic *dav1dPicture) (*Picture, error) {
	w, h := int(pic.w), int(pic.h)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: picture of %dx%d", ErrDecoderFailure, w, h)
	}
	out := &Picture{BitDepth: int(pic.bpc)}
	switch pic.layout {
	case dav1dLayoutI400:
		out.Subsampling = SubsamplingMonochrome
	case dav1dLayoutI420:
		out.Subsampling = Subsampling420
	case dav1dLayoutI422:
		out.Subsampling = Subsampling422
	case dav1dLayoutI444:
		out.Subsampling = Subsampling444
	default:
		return nil, fmt.Errorf("%w: unknown pixel layout %d", ErrDecoderFailure, pic.layout)
	}

	planes := 3
	if out.Subsampling == SubsamplingMonochrome {
		planes = 1
	}
	for i := 0; i < planes; i++ {
		pw, ph := w, h
		stride := pic.stride[0]
		if i > 0 {
			cs := out.Subsampling.ChromaSize(w, h)
			pw, ph = cs.Width, cs.Height
			stride = pic.stride[1]
		}
		if pic.data[i] == nil {
			out.Release()
			return nil, fmt.Errorf("%w: plane %d has no data", ErrDecoderFailure, i)
		}
		if out.BitDepth == 8 {
			pix := GetBuffer(pw * ph)
			for y := 0; y < ph; y++ {
				row := unsafe.Slice((*byte)(unsafe.Add(pic.data[i], y*stride)), pw)
				copy(pix[y*pw:(y+1)*pw], row)
			}
			p, err := NewPlane(pix, pw, ph, pw, 8)
			if err != nil {
				PutBuffer(pix)
				out.Release()
				return nil, err
			}
			out.Planes8[i] = p
		} else {
			pix := GetUint16Slice(pw * ph)
			for y := 0; y < ph; y++ {
				row := unsafe.Slice((*uint16)(unsafe.Add(pic.data[i], y*stride)), pw)
				copy(pix[y*pw:(y+1)*pw], row)
			}
			p, err := NewPlane(pix, pw, ph, pw, out.BitDepth)
			if err != nil {
				PutUint16Slice(pix)
				out.Release()
				return nil, err
			}
			out.Planes16[i] = p
		}
	}
	return out, nil
}

// Close releases the dav1d context.
func (d *Dav1dDecoder) Close() error {
	if d.ctx != 0 {
		dav1dClose(&d.ctx)
		d.ctx = 0
	}
	return nil
}
