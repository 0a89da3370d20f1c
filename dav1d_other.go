//go:build !(darwin || linux)

package goavif

import (
	"fmt"
	"runtime"
)

// Dav1dAvailable reports whether libdav1d could be loaded.
func Dav1dAvailable() bool { return false }

// Dav1dVersion returns the loaded libdav1d version string.
func Dav1dVersion() (string, error) {
	return "", fmt.Errorf("%w: libdav1d is not supported on %s", ErrDecoderFailure, runtime.GOOS)
}

// NewDav1dDecoder is only available on darwin and linux. Use
// WithAV1Decoder to plug in another implementation.
func NewDav1dDecoder(cfg Dav1dConfig) (AV1Decoder, error) {
	return nil, fmt.Errorf("%w: libdav1d is not supported on %s", ErrDecoderFailure, runtime.GOOS)
}
