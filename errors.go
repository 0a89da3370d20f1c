package goavif

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by this package matches exactly one
// of these through errors.Is.
var (
	ErrContainer          = errors.New("avif container error")
	ErrUnsupportedFeature = errors.New("unsupported feature")
	ErrPlaneSizeMismatch  = errors.New("plane size mismatch")
	ErrTileCountMismatch  = errors.New("tile count mismatch")
	ErrTileGeometry       = errors.New("inconsistent tile geometry")
	ErrUnsupportedDepth   = errors.New("unsupported bit depth")
	ErrUnsupportedMatrix  = errors.New("unsupported matrix coefficients")
	ErrDecoderFailure     = errors.New("av1 decoder failure")
	ErrImageTooLarge      = errors.New("image exceeds size limit")
)

// Stage identifies where in the decode pipeline an error occurred.
type Stage int

const (
	StageParse Stage = iota
	StagePlan
	StageDecode
	StageConvert
	StageAssemble
	StageCrop
)

func (s Stage) String() string {
	switch s {
	case StageParse:
		return "parse"
	case StagePlan:
		return "plan"
	case StageDecode:
		return "decode"
	case StageConvert:
		return "convert"
	case StageAssemble:
		return "assemble"
	case StageCrop:
		return "crop"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// DecodeError is the single error type returned by Decoder.Decode.
// Tile is -1 when the failure is not tied to a grid cell.
type DecodeError struct {
	Stage Stage
	Item  uint32
	Tile  int
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Tile >= 0 {
		return fmt.Sprintf("avif %s failed (item %d, tile %d): %v", e.Stage, e.Item, e.Tile, e.Err)
	}
	return fmt.Sprintf("avif %s failed (item %d): %v", e.Stage, e.Item, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func stageError(stage Stage, item uint32, tile int, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Stage: stage, Item: item, Tile: tile, Err: err}
}

// Size is a width/height pair used in error reports.
type Size struct {
	Width, Height int
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// PlaneSizeError reports a plane whose dimensions disagree with the
// subsampling implied by the luma plane.
type PlaneSizeError struct {
	Plane    string
	Expected Size
	Actual   Size
}

func (e *PlaneSizeError) Error() string {
	return fmt.Sprintf("plane size mismatch: %s plane is %s, expected %s", e.Plane, e.Actual, e.Expected)
}

func (e *PlaneSizeError) Is(target error) bool { return target == ErrPlaneSizeMismatch }

// ContainerError describes a malformed or unsupported ISOBMFF structure.
type ContainerError struct {
	Box string
	Msg string
	Err error
}

func (e *ContainerError) Error() string {
	msg := e.Msg
	if e.Box != "" {
		msg = fmt.Sprintf("box '%s': %s", e.Box, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrContainer, msg, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrContainer, msg)
}

func (e *ContainerError) Is(target error) bool { return target == ErrContainer }

func (e *ContainerError) Unwrap() error { return e.Err }

func containerErr(box, format string, args ...interface{}) error {
	return &ContainerError{Box: box, Msg: fmt.Sprintf(format, args...)}
}

func unsupported(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFeature, fmt.Sprintf(format, args...))
}
