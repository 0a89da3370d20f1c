package goavif

import (
	"fmt"
	"os"
	"strconv"
)

// Precision selects the arithmetic used by the colour converter.
type Precision int

const (
	// PrecisionFloat is the float64 reference path and the default.
	PrecisionFloat Precision = iota
	// PrecisionFixed uses Q20 coefficients and Q16 interpolation weights.
	// It stays within one code value of PrecisionFloat.
	PrecisionFixed
	// PrecisionApprox reproduces libyuv's 6-bit integer conversion with
	// nearest-neighbour chroma. 8-bit BT.601/BT.709 only.
	PrecisionApprox
	// PrecisionFast selects the fastest exact path, currently
	// PrecisionFixed. GOAVIF_NO_FIXED=1 falls back to PrecisionFloat.
	PrecisionFast
)

func (p Precision) String() string {
	switch p {
	case PrecisionFloat:
		return "float"
	case PrecisionFixed:
		return "fixed"
	case PrecisionApprox:
		return "approx"
	case PrecisionFast:
		return "fast"
	default:
		return fmt.Sprintf("Precision(%d)", int(p))
	}
}

// ParsePrecision parses the String form of a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "float", "":
		return PrecisionFloat, nil
	case "fixed":
		return PrecisionFixed, nil
	case "approx", "libyuv":
		return PrecisionApprox, nil
	case "fast", "auto":
		return PrecisionFast, nil
	}
	return 0, fmt.Errorf("unknown precision %q", s)
}

// fastPrecision is resolved once at start-up.
var fastPrecision = fastestPrecision()

// noFixedEnv reports whether GOAVIF_NO_FIXED disables the fixed-point path.
func noFixedEnv() bool {
	v, ok := os.LookupEnv("GOAVIF_NO_FIXED")
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}

func fastestPrecision() Precision {
	if noFixedEnv() {
		return PrecisionFloat
	}
	return PrecisionFixed
}

func (p Precision) resolve() Precision {
	if p == PrecisionFast {
		return fastPrecision
	}
	return p
}
