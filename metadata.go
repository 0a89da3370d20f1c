package goavif

import (
	"fmt"
	"io"
	"math"
)

// Where the colour description in Info came from.
const (
	ColorSourceNCLX     = "nclx"
	ColorSourceSequence = "sequence"
	ColorSourceDefault  = "default"
)

// Info is the metadata of an AVIF file. Transforms (rotation, mirror, clean
// aperture) are reported here and never applied to the pixels.
type Info struct {
	MajorBrand  string
	PrimaryItem uint32

	Width       int
	Height      int
	BitDepth    int
	Subsampling Subsampling

	// CICP code points and range after resolution (see ColorSource).
	ColorPrimaries          uint8
	TransferCharacteristics uint8
	MatrixCoefficients      uint8
	Range                   Range
	ColorSource             string
	ICCProfile              []byte

	HasAlpha           bool
	PremultipliedAlpha bool
	AlphaItem          uint32

	// Rotation is anti-clockwise in degrees. MirrorAxis is -1 when absent.
	Rotation      int
	MirrorAxis    int
	CleanAperture *CleanAperture
	PixelAspect   *PixelAspectRatio
	ContentLight  *ContentLightLevel

	HasExif    bool
	HasXMP     bool
	HasGainMap bool

	// Grid is nil for single-item images.
	Grid      *GridConfig
	TileItems []uint32
}

// ColorSpace returns the conversion parameters described by the info.
func (info *Info) ColorSpace() (ColorSpace, error) {
	m, err := MatrixFromCICP(info.MatrixCoefficients)
	if err != nil {
		return ColorSpace{}, err
	}
	return ColorSpace{Matrix: m, Range: info.Range, Subsampling: info.Subsampling}, nil
}

// Inspect parses the container and returns its metadata without decoding
// any AV1 data.
func Inspect(r io.ReadSeeker) (*Info, error) {
	c, err := ParseContainer(r)
	if err != nil {
		return nil, err
	}
	return buildInfo(c)
}

// codedItem returns the item that carries the AV1 configuration for the
// primary image: the primary itself, or the first grid tile.
func codedItem(c *Container, info *Info) *Item {
	if len(info.TileItems) > 0 {
		return c.Item(info.TileItems[0])
	}
	return c.Primary()
}

func buildInfo(c *Container) (*Info, error) {
	primary := c.Primary()
	info := &Info{
		MajorBrand:  c.MajorBrand,
		PrimaryItem: primary.ID,
		MirrorAxis:  -1,
	}

	switch primary.Type {
	case "av01":
	case "grid":
		data, err := c.ItemData(primary.ID)
		if err != nil {
			return nil, err
		}
		cfg, err := ParseGridConfig(data)
		PutBuffer(data)
		if err != nil {
			return nil, err
		}
		info.Grid = &cfg
		info.TileItems = c.References(primary.ID, "dimg")
		if len(info.TileItems) == 0 {
			return nil, containerErr("iref", "grid item %d has no 'dimg' tiles", primary.ID)
		}
		for _, id := range info.TileItems {
			t := c.Item(id)
			if t == nil {
				return nil, containerErr("iref", "grid tile %d is not declared", id)
			}
			if t.Type != "av01" {
				return nil, unsupported("grid tile %d of type '%s'", id, t.Type)
			}
		}
	default:
		return nil, unsupported("primary item of type '%s'", primary.Type)
	}

	if err := primary.checkEssential(); err != nil {
		return nil, err
	}

	coded := codedItem(c, info)
	ispe := primary.Spatial()
	if ispe == nil {
		ispe = coded.Spatial()
	}
	if ispe == nil {
		return nil, containerErr("ispe", "item %d has no spatial extents", primary.ID)
	}
	info.Width, info.Height = int(ispe.Width), int(ispe.Height)
	if info.Width == 0 || info.Height == 0 {
		return nil, containerErr("ispe", "item %d has zero size %dx%d", primary.ID, info.Width, info.Height)
	}

	av1c := coded.AV1Config()
	if av1c == nil {
		return nil, containerErr("av1C", "item %d has no AV1 configuration", coded.ID)
	}
	info.BitDepth = av1c.BitDepth()
	info.Subsampling = av1c.Subsampling()

	if err := resolveColor(c, info, primary, coded); err != nil {
		return nil, err
	}

	if p, ok := primary.Property("irot").(*ImageRotation); ok {
		info.Rotation = p.Angle
	}
	if p, ok := primary.Property("imir").(*ImageMirror); ok {
		info.MirrorAxis = int(p.Axis)
	}
	info.CleanAperture, _ = primary.Property("clap").(*CleanAperture)
	info.PixelAspect, _ = primary.Property("pasp").(*PixelAspectRatio)
	info.ContentLight, _ = primary.Property("clli").(*ContentLightLevel)

	if alpha := c.AlphaFor(primary.ID); alpha != nil {
		info.HasAlpha = true
		info.AlphaItem = alpha.ID
		info.PremultipliedAlpha = c.Premultiplied(primary.ID, alpha.ID)
	}

	for _, it := range c.Items() {
		switch {
		case it.Type == "tmap":
			info.HasGainMap = true
		case it.Type == "Exif" && describes(c, it.ID, primary.ID):
			info.HasExif = true
		case it.Type == "mime" && it.ContentType == "application/rdf+xml" && describes(c, it.ID, primary.ID):
			info.HasXMP = true
		}
	}
	return info, nil
}

func describes(c *Container, from, to uint32) bool {
	for _, id := range c.References(from, "cdsc") {
		if id == to {
			return true
		}
	}
	return false
}

// resolveColor fills the CICP fields: an nclx 'colr' wins, then the AV1
// sequence header (from av1C or the bitstream), then BT.601 limited range.
func resolveColor(c *Container, info *Info, primary, coded *Item) error {
	info.ICCProfile = primary.ICC()
	if info.ICCProfile == nil {
		info.ICCProfile = coded.ICC()
	}

	nclx := primary.NCLX()
	if nclx == nil {
		nclx = coded.NCLX()
	}
	if nclx != nil {
		if nclx.Matrix > math.MaxUint8 {
			return fmt.Errorf("%w: CICP matrix_coefficients %d", ErrUnsupportedMatrix, nclx.Matrix)
		}
		if nclx.Primaries > math.MaxUint8 || nclx.Transfer > math.MaxUint8 {
			return unsupported("CICP colour primaries %d, transfer characteristics %d", nclx.Primaries, nclx.Transfer)
		}
		info.ColorPrimaries = uint8(nclx.Primaries)
		info.TransferCharacteristics = uint8(nclx.Transfer)
		info.MatrixCoefficients = uint8(nclx.Matrix)
		info.Range = RangeLimited
		if nclx.FullRange {
			info.Range = RangeFull
		}
		info.ColorSource = ColorSourceNCLX
		return nil
	}

	var seq *SequenceHeader
	if av1c := coded.AV1Config(); av1c != nil && len(av1c.ConfigOBUs) > 0 {
		seq, _ = FindSequenceHeader(av1c.ConfigOBUs)
	}
	if seq == nil {
		data, err := c.ItemData(coded.ID)
		if err != nil {
			return fmt.Errorf("failed to read item %d for its sequence header: %w", coded.ID, err)
		}
		seq, _ = FindSequenceHeader(data)
		PutBuffer(data)
	}
	if seq != nil {
		info.applySequenceColor(&seq.Color)
		return nil
	}

	info.ColorPrimaries = cicpPrimariesUnspecified
	info.TransferCharacteristics = cicpTransferUnspecified
	info.MatrixCoefficients = cicpMatrixBT601
	info.Range = RangeLimited
	info.ColorSource = ColorSourceDefault
	return nil
}

func (info *Info) applySequenceColor(sc *SequenceColor) {
	info.ColorPrimaries = sc.Primaries
	info.TransferCharacteristics = sc.Transfer
	info.MatrixCoefficients = sc.Matrix
	info.Range = RangeLimited
	if sc.FullRange {
		info.Range = RangeFull
	}
	info.ColorSource = ColorSourceSequence
}
