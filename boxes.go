package goavif

import (
	"bytes"
	"encoding/binary"
)

// bytesReader is a helper to read big-endian fields from a box payload
type bytesReader struct {
	data   []byte
	offset int
	box    string
}

func newBytesReader(box string, data []byte) *bytesReader {
	return &bytesReader{data: data, box: box}
}

func (br *bytesReader) remaining() int {
	return len(br.data) - br.offset
}

func (br *bytesReader) need(n int) error {
	if n < 0 || br.remaining() < n {
		return containerErr(br.box, "truncated: need %d bytes at offset %d, have %d", n, br.offset, br.remaining())
	}
	return nil
}

func (br *bytesReader) u8() (uint8, error) {
	if err := br.need(1); err != nil {
		return 0, err
	}
	v := br.data[br.offset]
	br.offset++
	return v, nil
}

func (br *bytesReader) u16() (uint16, error) {
	if err := br.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(br.data[br.offset:])
	br.offset += 2
	return v, nil
}

func (br *bytesReader) u32() (uint32, error) {
	if err := br.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(br.data[br.offset:])
	br.offset += 4
	return v, nil
}

func (br *bytesReader) u64() (uint64, error) {
	if err := br.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(br.data[br.offset:])
	br.offset += 8
	return v, nil
}

// uN reads an unsigned field of n bytes, where n is one of 0, 4 or 8 as used
// by 'iloc'.
func (br *bytesReader) uN(n int) (uint64, error) {
	switch n {
	case 0:
		return 0, nil
	case 4:
		v, err := br.u32()
		return uint64(v), err
	case 8:
		return br.u64()
	default:
		return 0, containerErr(br.box, "invalid field size %d", n)
	}
}

// uItemID reads a 16-bit item id for version 0 boxes and a 32-bit id otherwise.
func (br *bytesReader) uItemID(wide bool) (uint32, error) {
	if wide {
		return br.u32()
	}
	v, err := br.u16()
	return uint32(v), err
}

func (br *bytesReader) fourCC() (string, error) {
	b, err := br.bytes(4)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (br *bytesReader) bytes(n int) ([]byte, error) {
	if err := br.need(n); err != nil {
		return nil, err
	}
	b := br.data[br.offset : br.offset+n]
	br.offset += n
	return b, nil
}

func (br *bytesReader) rest() []byte {
	b := br.data[br.offset:]
	br.offset = len(br.data)
	return b
}

// cstring reads a NUL-terminated string. A missing terminator at the end of
// the payload is tolerated.
func (br *bytesReader) cstring() string {
	rest := br.data[br.offset:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		br.offset += i + 1
		return string(rest[:i])
	}
	br.offset = len(br.data)
	return string(rest)
}

func (br *bytesReader) fullBoxHeader() (version uint8, flags uint32, err error) {
	v, err := br.u32()
	if err != nil {
		return 0, 0, err
	}
	return uint8(v >> 24), v & 0xffffff, nil
}

// child reads the next box header and returns the box type and a reader
// over its payload.
func (br *bytesReader) child() (string, *bytesReader, error) {
	start := br.offset
	size32, err := br.u32()
	if err != nil {
		return "", nil, err
	}
	typ, err := br.fourCC()
	if err != nil {
		return "", nil, err
	}
	size := uint64(size32)
	switch size32 {
	case 1:
		if size, err = br.u64(); err != nil {
			return "", nil, err
		}
	case 0:
		size = uint64(len(br.data) - start)
	}
	header := br.offset - start
	if size < uint64(header) || size > uint64(len(br.data)-start) {
		return "", nil, containerErr(typ, "box size %d exceeds parent '%s'", size, br.box)
	}
	payload := br.data[br.offset : start+int(size)]
	br.offset = start + int(size)
	return typ, newBytesReader(typ, payload), nil
}

// Property is an item property from 'ipco'.
type Property interface {
	PropertyType() string
}

// ImageSpatialExtents is 'ispe'.
type ImageSpatialExtents struct {
	Width, Height uint32
}

// PixelInformation is 'pixi'.
type PixelInformation struct {
	BitsPerChannel []uint8
}

// AV1Config is the AV1CodecConfigurationRecord carried in 'av1C'.
type AV1Config struct {
	SeqProfile           uint8
	SeqLevelIdx0         uint8
	SeqTier0             uint8
	HighBitDepth         bool
	TwelveBit            bool
	Monochrome           bool
	SubsamplingX         uint8
	SubsamplingY         uint8
	ChromaSamplePosition uint8
	ConfigOBUs           []byte
}

// BitDepth returns the sample depth signalled by the record.
func (c *AV1Config) BitDepth() int {
	switch {
	case c.TwelveBit:
		return 12
	case c.HighBitDepth:
		return 10
	default:
		return 8
	}
}

// Subsampling returns the chroma layout signalled by the record.
func (c *AV1Config) Subsampling() Subsampling {
	switch {
	case c.Monochrome:
		return SubsamplingMonochrome
	case c.SubsamplingX == 1 && c.SubsamplingY == 1:
		return Subsampling420
	case c.SubsamplingX == 1:
		return Subsampling422
	default:
		return Subsampling444
	}
}

// ColourInformation is 'colr'. nclx boxes fill the CICP fields, ICC boxes
// ('prof', 'rICC') fill ICC.
type ColourInformation struct {
	ColourType string
	Primaries  uint16
	Transfer   uint16
	Matrix     uint16
	FullRange  bool
	ICC        []byte
}

// ImageRotation is 'irot': anti-clockwise rotation in multiples of 90°.
type ImageRotation struct {
	Angle int
}

// ImageMirror is 'imir'. Axis 0 mirrors about a vertical axis, 1 about a
// horizontal axis.
type ImageMirror struct {
	Axis uint8
}

// PixelAspectRatio is 'pasp'.
type PixelAspectRatio struct {
	HSpacing, VSpacing uint32
}

// ContentLightLevel is 'clli'.
type ContentLightLevel struct {
	MaxCLL, MaxPALL uint16
}

// AuxiliaryType is 'auxC'.
type AuxiliaryType struct {
	URN     string
	Subtype []byte
}

type unknownProperty struct {
	typ string
}

func (*ImageSpatialExtents) PropertyType() string { return "ispe" }
func (*PixelInformation) PropertyType() string { return "pixi" }
func (*AV1Config) PropertyType() string { return "av1C" }
func (*ColourInformation) PropertyType() string { return "colr" }
func (*CleanAperture) PropertyType() string { return "clap" }
func (*ImageRotation) PropertyType() string { return "irot" }
func (*ImageMirror) PropertyType() string { return "imir" }
func (*PixelAspectRatio) PropertyType() string { return "pasp" }
func (*ContentLightLevel) PropertyType() string { return "clli" }
func (*AuxiliaryType) PropertyType() string { return "auxC" }
func (p *unknownProperty) PropertyType() string { return p.typ }

// parseProperty decodes one 'ipco' child. Unrecognised types are kept as
// placeholders so that 'ipma' indices stay aligned.
func parseProperty(typ string, br *bytesReader) (Property, error) {
	switch typ {
	case "ispe":
		if _, _, err := br.fullBoxHeader(); err != nil {
			return nil, err
		}
		w, err := br.u32()
		if err != nil {
			return nil, err
		}
		h, err := br.u32()
		if err != nil {
			return nil, err
		}
		return &ImageSpatialExtents{Width: w, Height: h}, nil

	case "pixi":
		if _, _, err := br.fullBoxHeader(); err != nil {
			return nil, err
		}
		n, err := br.u8()
		if err != nil {
			return nil, err
		}
		bits, err := br.bytes(int(n))
		if err != nil {
			return nil, err
		}
		return &PixelInformation{BitsPerChannel: append([]uint8(nil), bits...)}, nil

	case "av1C":
		return parseAV1Config(br)

	case "colr":
		return parseColour(br)

	case "clap":
		var v [8]uint32
		for i := range v {
			x, err := br.u32()
			if err != nil {
				return nil, err
			}
			v[i] = x
		}
		return &CleanAperture{
			Width:            Fraction{N: int32(v[0]), D: v[1]},
			Height:           Fraction{N: int32(v[2]), D: v[3]},
			HorizontalOffset: Fraction{N: int32(v[4]), D: v[5]},
			VerticalOffset:   Fraction{N: int32(v[6]), D: v[7]},
		}, nil

	case "irot":
		b, err := br.u8()
		if err != nil {
			return nil, err
		}
		return &ImageRotation{Angle: int(b&0x3) * 90}, nil

	case "imir":
		b, err := br.u8()
		if err != nil {
			return nil, err
		}
		return &ImageMirror{Axis: b & 0x1}, nil

	case "pasp":
		h, err := br.u32()
		if err != nil {
			return nil, err
		}
		v, err := br.u32()
		if err != nil {
			return nil, err
		}
		return &PixelAspectRatio{HSpacing: h, VSpacing: v}, nil

	case "clli":
		cll, err := br.u16()
		if err != nil {
			return nil, err
		}
		pall, err := br.u16()
		if err != nil {
			return nil, err
		}
		return &ContentLightLevel{MaxCLL: cll, MaxPALL: pall}, nil

	case "auxC":
		if _, _, err := br.fullBoxHeader(); err != nil {
			return nil, err
		}
		urn := br.cstring()
		return &AuxiliaryType{URN: urn, Subtype: append([]byte(nil), br.rest()...)}, nil
	}
	return &unknownProperty{typ: typ}, nil
}

func parseAV1Config(br *bytesReader) (*AV1Config, error) {
	hdr, err := br.bytes(4)
	if err != nil {
		return nil, err
	}
	if hdr[0]>>7 != 1 {
		return nil, containerErr("av1C", "marker bit is not set")
	}
	if v := hdr[0] & 0x7f; v != 1 {
		return nil, containerErr("av1C", "unsupported version %d", v)
	}
	return &AV1Config{
		SeqProfile:           hdr[1] >> 5,
		SeqLevelIdx0:         hdr[1] & 0x1f,
		SeqTier0:             hdr[2] >> 7,
		HighBitDepth:         hdr[2]>>6&1 == 1,
		TwelveBit:            hdr[2]>>5&1 == 1,
		Monochrome:           hdr[2]>>4&1 == 1,
		SubsamplingX:         hdr[2] >> 3 & 1,
		SubsamplingY:         hdr[2] >> 2 & 1,
		ChromaSamplePosition: hdr[2] & 0x3,
		ConfigOBUs:           append([]byte(nil), br.rest()...),
	}, nil
}

func parseColour(br *bytesReader) (*ColourInformation, error) {
	typ, err := br.fourCC()
	if err != nil {
		return nil, err
	}
	c := &ColourInformation{ColourType: typ}
	switch typ {
	case "nclx":
		if c.Primaries, err = br.u16(); err != nil {
			return nil, err
		}
		if c.Transfer, err = br.u16(); err != nil {
			return nil, err
		}
		if c.Matrix, err = br.u16(); err != nil {
			return nil, err
		}
		b, err := br.u8()
		if err != nil {
			return nil, err
		}
		c.FullRange = b>>7 == 1
	case "prof", "rICC":
		c.ICC = append([]byte(nil), br.rest()...)
	}
	return c, nil
}
