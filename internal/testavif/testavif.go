// Package testavif builds small synthetic AVIF containers and AV1 sequence
// headers for tests. Item payloads are opaque; nothing here encodes pixels.
package testavif

import (
	"encoding/binary"
)

// Box wraps payload in an ISOBMFF box header.
func Box(typ string, payload ...[]byte) []byte {
	n := 8
	for _, p := range payload {
		n += len(p)
	}
	out := make([]byte, 8, n)
	binary.BigEndian.PutUint32(out, uint32(n))
	copy(out[4:], typ)
	for _, p := range payload {
		out = append(out, p...)
	}
	return out
}

// FullBox wraps payload in a box with a version and flags word.
func FullBox(typ string, version uint8, flags uint32, payload ...[]byte) []byte {
	vf := u32(uint32(version)<<24 | flags&0xffffff)
	return Box(typ, append([][]byte{vf}, payload...)...)
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Ispe builds an 'ispe' property.
func Ispe(w, h uint32) []byte {
	return FullBox("ispe", 0, 0, u32(w), u32(h))
}

// Pixi builds a 'pixi' property.
func Pixi(bits ...uint8) []byte {
	return FullBox("pixi", 0, 0, []byte{uint8(len(bits))}, bits)
}

// Av1C builds an 'av1C' property. Depth 12 implies profile 2.
func Av1C(depth int, mono bool, sx, sy uint8, configOBUs []byte) []byte {
	profile := uint8(0)
	switch {
	case depth == 12:
		profile = 2
	case sx == 0 && sy == 0 && !mono:
		profile = 1
	}
	b2 := sx<<3 | sy<<2
	if depth > 8 {
		b2 |= 1 << 6
	}
	if depth == 12 {
		b2 |= 1 << 5
	}
	if mono {
		b2 |= 1 << 4
	}
	return Box("av1C", []byte{0x81, profile << 5, b2, 0}, configOBUs)
}

// Nclx builds an nclx 'colr' property.
func Nclx(primaries, transfer, matrix uint16, full bool) []byte {
	r := byte(0)
	if full {
		r = 0x80
	}
	return Box("colr", []byte("nclx"), u16(primaries), u16(transfer), u16(matrix), []byte{r})
}

// ICC builds a 'prof' 'colr' property.
func ICC(profile []byte) []byte {
	return Box("colr", []byte("prof"), profile)
}

// AuxC builds an 'auxC' property.
func AuxC(urn string) []byte {
	return FullBox("auxC", 0, 0, []byte(urn), []byte{0})
}

// AlphaURN is the MIAF alpha auxiliary type.
const AlphaURN = "urn:mpeg:mpegB:cicp:systems:auxiliary:alpha"

// Irot builds an 'irot' property.
func Irot(angle int) []byte {
	return Box("irot", []byte{byte(angle/90) & 3})
}

// Imir builds an 'imir' property.
func Imir(axis uint8) []byte {
	return Box("imir", []byte{axis & 1})
}

// Clap builds a 'clap' property from numerator/denominator pairs.
func Clap(wN, wD, hN, hD uint32, hOffN int32, hOffD uint32, vOffN int32, vOffD uint32) []byte {
	return Box("clap", u32(wN), u32(wD), u32(hN), u32(hD), u32(uint32(hOffN)), u32(hOffD), u32(uint32(vOffN)), u32(vOffD))
}

// Pasp builds a 'pasp' property.
func Pasp(h, v uint32) []byte {
	return Box("pasp", u32(h), u32(v))
}

// Clli builds a 'clli' property.
func Clli(maxCLL, maxPALL uint16) []byte {
	return Box("clli", u16(maxCLL), u16(maxPALL))
}

// GridPayload builds the body of a 'grid' item with 16-bit output fields.
func GridPayload(rows, cols int, w, h uint16) []byte {
	return cat([]byte{0, 0, uint8(rows - 1), uint8(cols - 1)}, u16(w), u16(h))
}

// GridPayload32 builds the body of a 'grid' item with 32-bit output fields.
func GridPayload32(rows, cols int, w, h uint32) []byte {
	return cat([]byte{0, 1, uint8(rows - 1), uint8(cols - 1)}, u32(w), u32(h))
}

// Prop is a property association for one item.
type Prop struct {
	Box       []byte
	Essential bool
}

// Item is one image item.
type Item struct {
	ID          uint32
	Type        string
	Name        string
	ContentType string
	Hidden      bool
	Data        []byte
	Props       []Prop

	// InIdat stores Data in 'idat' (construction method 1).
	InIdat bool

	// Split stores Data as two extents.
	Split bool
}

// Ref is one 'iref' entry.
type Ref struct {
	Type string
	From uint32
	To   []uint32
}

// File describes a whole AVIF.
type File struct {
	MajorBrand string
	Compatible []string
	Handler    string
	Primary    uint32
	Items      []Item
	Refs       []Ref

	// Extra top-level boxes written between 'meta' and 'mdat'.
	Extra [][]byte

	// Iloc replaces the generated 'iloc' box when set.
	Iloc []byte
}

// Bytes serialises the file. Payloads not in 'idat' go in one trailing
// 'mdat'; 'iloc' uses absolute file offsets.
func (f File) Bytes() []byte {
	major := f.MajorBrand
	if major == "" {
		major = "avif"
	}
	compat := f.Compatible
	if compat == nil {
		compat = []string{"avif", "mif1", "miaf"}
	}
	ftypPayload := cat([]byte(major), u32(0))
	for _, b := range compat {
		ftypPayload = append(ftypPayload, b...)
	}
	ftyp := Box("ftyp", ftypPayload)

	// Lay out once to learn where mdat starts, then again with real offsets.
	meta := f.meta(0)
	head := len(ftyp) + len(meta)
	for _, e := range f.Extra {
		head += len(e)
	}
	meta = f.meta(uint32(head + 8))

	var mdat []byte
	for _, it := range f.Items {
		if !it.InIdat {
			mdat = append(mdat, it.Data...)
		}
	}
	out := cat(ftyp, meta)
	for _, e := range f.Extra {
		out = append(out, e...)
	}
	return append(out, Box("mdat", mdat)...)
}

func (f File) meta(mdatStart uint32) []byte {
	handler := f.Handler
	if handler == "" {
		handler = "pict"
	}
	hdlr := FullBox("hdlr", 0, 0, u32(0), []byte(handler), make([]byte, 12), []byte{0})
	pitm := FullBox("pitm", 0, 0, u16(uint16(f.Primary)))

	// iloc version 1: 4-byte offsets and lengths, no base offset or index.
	iloc := cat([]byte{0x44, 0x00}, u16(uint16(len(f.Items))))
	var idat []byte
	off := mdatStart
	for _, it := range f.Items {
		method := uint16(0)
		base := off
		if it.InIdat {
			method = 1
			base = uint32(len(idat))
			idat = append(idat, it.Data...)
		} else {
			off += uint32(len(it.Data))
		}
		iloc = append(iloc, cat(u16(uint16(it.ID)), u16(method), u16(0))...)
		n := len(it.Data)
		if it.Split && n > 1 {
			half := uint32(n / 2)
			iloc = append(iloc, cat(u16(2), u32(base), u32(half), u32(base+half), u32(uint32(n)-half))...)
		} else {
			iloc = append(iloc, cat(u16(1), u32(base), u32(uint32(n)))...)
		}
	}
	ilocBox := FullBox("iloc", 1, 0, iloc)
	if f.Iloc != nil {
		ilocBox = f.Iloc
	}

	var infes []byte
	for _, it := range f.Items {
		flags := uint32(0)
		if it.Hidden {
			flags = 1
		}
		body := cat(u16(uint16(it.ID)), u16(0), []byte(it.Type), []byte(it.Name), []byte{0})
		if it.Type == "mime" {
			body = cat(body, []byte(it.ContentType), []byte{0})
		}
		infes = append(infes, FullBox("infe", 2, flags, body)...)
	}
	iinf := FullBox("iinf", 0, 0, u16(uint16(len(f.Items))), infes)

	var irefs []byte
	for _, r := range f.Refs {
		body := cat(u16(uint16(r.From)), u16(uint16(len(r.To))))
		for _, to := range r.To {
			body = append(body, u16(uint16(to))...)
		}
		irefs = append(irefs, Box(r.Type, body)...)
	}

	var ipco, ipma []byte
	index := 0
	entries := 0
	for _, it := range f.Items {
		if len(it.Props) == 0 {
			continue
		}
		entries++
		ipma = append(ipma, u16(uint16(it.ID))...)
		ipma = append(ipma, uint8(len(it.Props)))
		for _, p := range it.Props {
			ipco = append(ipco, p.Box...)
			index++
			v := uint8(index)
			if p.Essential {
				v |= 0x80
			}
			ipma = append(ipma, v)
		}
	}
	iprp := Box("iprp", Box("ipco", ipco), FullBox("ipma", 0, 0, u32(uint32(entries)), ipma))

	parts := [][]byte{hdlr, pitm, ilocBox, iinf}
	if len(irefs) > 0 {
		parts = append(parts, FullBox("iref", 0, 0, irefs))
	}
	parts = append(parts, iprp)
	if len(idat) > 0 {
		parts = append(parts, Box("idat", idat))
	}
	return FullBox("meta", 0, 0, parts...)
}
