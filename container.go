package goavif

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// maxMetaSize bounds the 'meta' box, which is read into memory whole.
	maxMetaSize = 64 * 1024 * 1024
	// maxItemSize bounds a single item payload.
	maxItemSize = 1 << 30
)

// Alpha auxiliary type URNs (MIAF and HEVC flavours).
const (
	alphaURN     = "urn:mpeg:mpegB:cicp:systems:auxiliary:alpha"
	alphaURNHEVC = "urn:mpeg:hevc:2015:auxid:1"
)

type extent struct {
	offset uint64
	length uint64
}

// PropertyAssociation links an item to one of the container's properties.
type PropertyAssociation struct {
	Property  Property
	Essential bool
}

// Item is one entry of the container's item table.
type Item struct {
	ID          uint32
	Type        string
	Name        string
	ContentType string
	Hidden      bool

	Properties []PropertyAssociation

	construction uint16
	baseOffset   uint64
	extents      []extent
	located      bool
}

// Property returns the first associated property of the given type, or nil.
func (it *Item) Property(typ string) Property {
	for _, a := range it.Properties {
		if a.Property.PropertyType() == typ {
			return a.Property
		}
	}
	return nil
}

// Spatial returns the item's 'ispe', or nil.
func (it *Item) Spatial() *ImageSpatialExtents {
	p, _ := it.Property("ispe").(*ImageSpatialExtents)
	return p
}

// AV1Config returns the item's 'av1C', or nil.
func (it *Item) AV1Config() *AV1Config {
	p, _ := it.Property("av1C").(*AV1Config)
	return p
}

// NCLX returns the item's nclx 'colr', or nil.
func (it *Item) NCLX() *ColourInformation {
	for _, a := range it.Properties {
		if c, ok := a.Property.(*ColourInformation); ok && c.ColourType == "nclx" {
			return c
		}
	}
	return nil
}

// ICC returns the item's ICC profile, or nil.
func (it *Item) ICC() []byte {
	for _, a := range it.Properties {
		if c, ok := a.Property.(*ColourInformation); ok && c.ICC != nil {
			return c.ICC
		}
	}
	return nil
}

// IsAlpha reports whether the item carries an alpha auxiliary type.
func (it *Item) IsAlpha() bool {
	aux, _ := it.Property("auxC").(*AuxiliaryType)
	return aux != nil && (aux.URN == alphaURN || aux.URN == alphaURNHEVC)
}

// checkEssential fails if an essential property is one this package cannot
// interpret.
func (it *Item) checkEssential() error {
	for _, a := range it.Properties {
		if _, unknown := a.Property.(*unknownProperty); unknown && a.Essential {
			return unsupported("item %d has essential property '%s'", it.ID, a.Property.PropertyType())
		}
	}
	return nil
}

type reference struct {
	typ  string
	from uint32
	to   []uint32
}

// Container is a parsed AVIF (HEIF) file. Item payloads stay in the
// underlying reader until ItemData is called.
type Container struct {
	r io.ReadSeeker

	MajorBrand       string
	CompatibleBrands []string
	PrimaryID        uint32
	HasMovie         bool

	items     map[uint32]*Item
	itemOrder []uint32
	refs      []reference
	idat      []byte
}

// ParseContainer walks the top-level boxes of r, reading 'ftyp' and 'meta'
// and skipping everything else (including 'mdat') by seeking.
func ParseContainer(r io.ReadSeeker) (*Container, error) {
	c := &Container{r: r, items: make(map[uint32]*Item)}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to start: %w", err)
	}

	var pos int64
	sawFtyp, sawMeta := false, false
	header := make([]byte, 16)
	for {
		if _, err := io.ReadFull(r, header[:8]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &ContainerError{Msg: "failed to read box header", Err: err}
		}
		size := uint64(binary.BigEndian.Uint32(header[0:4]))
		typ := string(header[4:8])
		headerLen := int64(8)
		switch size {
		case 1:
			if _, err := io.ReadFull(r, header[8:16]); err != nil {
				return nil, &ContainerError{Box: typ, Msg: "failed to read largesize", Err: err}
			}
			size = binary.BigEndian.Uint64(header[8:16])
			headerLen = 16
		case 0:
			end, err := r.Seek(0, io.SeekEnd)
			if err != nil {
				return nil, fmt.Errorf("failed to find end of file: %w", err)
			}
			size = uint64(end - pos)
			if _, err := r.Seek(pos+headerLen, io.SeekStart); err != nil {
				return nil, fmt.Errorf("failed to seek: %w", err)
			}
		}
		if size < uint64(headerLen) {
			return nil, containerErr(typ, "invalid box size %d", size)
		}

		if !sawFtyp && typ != "ftyp" {
			return nil, containerErr(typ, "file does not start with 'ftyp'")
		}

		switch typ {
		case "ftyp", "meta":
			if size > maxMetaSize {
				return nil, containerErr(typ, "box of %d bytes is too large", size)
			}
			payload := make([]byte, size-uint64(headerLen))
			if _, err := io.ReadFull(r, payload); err != nil {
				return nil, &ContainerError{Box: typ, Msg: "failed to read payload", Err: err}
			}
			br := newBytesReader(typ, payload)
			if typ == "ftyp" {
				if err := c.parseFtyp(br); err != nil {
					return nil, err
				}
				sawFtyp = true
			} else {
				if sawMeta {
					return nil, containerErr("meta", "duplicate top-level box")
				}
				if err := c.parseMeta(br); err != nil {
					return nil, err
				}
				sawMeta = true
			}
		case "moov":
			c.HasMovie = true
		}

		pos += int64(size)
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek past '%s': %w", typ, err)
		}
	}

	if !sawFtyp {
		return nil, containerErr("ftyp", "missing")
	}
	if !sawMeta {
		if c.HasMovie {
			return nil, unsupported("image sequence without a still image item")
		}
		return nil, containerErr("meta", "missing")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) parseFtyp(br *bytesReader) error {
	major, err := br.fourCC()
	if err != nil {
		return err
	}
	if _, err := br.u32(); err != nil {
		return err
	}
	c.MajorBrand = major
	for br.remaining() >= 4 {
		b, _ := br.fourCC()
		c.CompatibleBrands = append(c.CompatibleBrands, b)
	}
	for _, b := range append([]string{major}, c.CompatibleBrands...) {
		switch b {
		case "avif", "avis", "mif1", "msf1":
			return nil
		}
	}
	return containerErr("ftyp", "no AVIF compatible brand (major '%s')", major)
}

func (c *Container) parseMeta(br *bytesReader) error {
	if _, _, err := br.fullBoxHeader(); err != nil {
		return err
	}
	var (
		sawHdlr bool
		props   []Property
		assoc   []ipmaEntry
	)
	for br.remaining() > 0 {
		typ, child, err := br.child()
		if err != nil {
			return err
		}
		switch typ {
		case "hdlr":
			if err := parseHdlr(child); err != nil {
				return err
			}
			sawHdlr = true
		case "pitm":
			v, _, err := child.fullBoxHeader()
			if err != nil {
				return err
			}
			if c.PrimaryID, err = child.uItemID(v > 0); err != nil {
				return err
			}
		case "iloc":
			if err := c.parseIloc(child); err != nil {
				return err
			}
		case "iinf":
			if err := c.parseIinf(child); err != nil {
				return err
			}
		case "iref":
			if err := c.parseIref(child); err != nil {
				return err
			}
		case "iprp":
			if props, assoc, err = parseIprp(child); err != nil {
				return err
			}
		case "idat":
			c.idat = append([]byte(nil), child.rest()...)
		}
	}
	if !sawHdlr {
		return containerErr("hdlr", "missing from 'meta'")
	}

	for _, e := range assoc {
		it := c.items[e.itemID]
		if it == nil {
			continue
		}
		for _, a := range e.associations {
			if a.index == 0 {
				continue
			}
			if int(a.index) > len(props) {
				return containerErr("ipma", "item %d references property %d of %d", e.itemID, a.index, len(props))
			}
			it.Properties = append(it.Properties, PropertyAssociation{Property: props[a.index-1], Essential: a.essential})
		}
	}
	return nil
}

func parseHdlr(br *bytesReader) error {
	if _, _, err := br.fullBoxHeader(); err != nil {
		return err
	}
	if _, err := br.u32(); err != nil {
		return err
	}
	handler, err := br.fourCC()
	if err != nil {
		return err
	}
	if handler != "pict" {
		return containerErr("hdlr", "handler '%s' is not 'pict'", handler)
	}
	return nil
}

func (c *Container) item(id uint32) *Item {
	it := c.items[id]
	if it == nil {
		it = &Item{ID: id}
		c.items[id] = it
		c.itemOrder = append(c.itemOrder, id)
	}
	return it
}

func (c *Container) parseIloc(br *bytesReader) error {
	version, _, err := br.fullBoxHeader()
	if err != nil {
		return err
	}
	if version > 2 {
		return containerErr("iloc", "unsupported version %d", version)
	}
	b, err := br.u8()
	if err != nil {
		return err
	}
	offsetSize, lengthSize := int(b>>4), int(b&0xf)
	if b, err = br.u8(); err != nil {
		return err
	}
	baseOffsetSize, indexSize := int(b>>4), 0
	if version > 0 {
		indexSize = int(b & 0xf)
	}

	var count uint32
	if version < 2 {
		v, err := br.u16()
		if err != nil {
			return err
		}
		count = uint32(v)
	} else if count, err = br.u32(); err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		id, err := br.uItemID(version == 2)
		if err != nil {
			return err
		}
		it := c.item(id)
		if it.located {
			return containerErr("iloc", "item %d located twice", id)
		}
		it.located = true
		if version > 0 {
			v, err := br.u16()
			if err != nil {
				return err
			}
			it.construction = v & 0xf
		}
		if _, err := br.u16(); err != nil { // data_reference_index
			return err
		}
		if it.baseOffset, err = br.uN(baseOffsetSize); err != nil {
			return err
		}
		n, err := br.u16()
		if err != nil {
			return err
		}
		for j := 0; j < int(n); j++ {
			if indexSize > 0 {
				if _, err := br.uN(indexSize); err != nil {
					return err
				}
			}
			var e extent
			if e.offset, err = br.uN(offsetSize); err != nil {
				return err
			}
			if e.length, err = br.uN(lengthSize); err != nil {
				return err
			}
			it.extents = append(it.extents, e)
		}
	}
	return nil
}

func (c *Container) parseIinf(br *bytesReader) error {
	version, _, err := br.fullBoxHeader()
	if err != nil {
		return err
	}
	var count uint32
	if version == 0 {
		v, err := br.u16()
		if err != nil {
			return err
		}
		count = uint32(v)
	} else if count, err = br.u32(); err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		typ, child, err := br.child()
		if err != nil {
			return err
		}
		if typ != "infe" {
			return containerErr("iinf", "unexpected child '%s'", typ)
		}
		if err := c.parseInfe(child); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) parseInfe(br *bytesReader) error {
	version, flags, err := br.fullBoxHeader()
	if err != nil {
		return err
	}
	if version < 2 {
		return unsupported("'infe' version %d", version)
	}
	id, err := br.uItemID(version > 2)
	if err != nil {
		return err
	}
	if _, err := br.u16(); err != nil { // item_protection_index
		return err
	}
	typ, err := br.fourCC()
	if err != nil {
		return err
	}
	it := c.item(id)
	if it.Type != "" {
		return containerErr("infe", "item %d declared twice", id)
	}
	it.Type = typ
	it.Name = br.cstring()
	if typ == "mime" {
		it.ContentType = br.cstring()
	}
	it.Hidden = flags&1 == 1
	return nil
}

func (c *Container) parseIref(br *bytesReader) error {
	version, _, err := br.fullBoxHeader()
	if err != nil {
		return err
	}
	for br.remaining() > 0 {
		typ, child, err := br.child()
		if err != nil {
			return err
		}
		from, err := child.uItemID(version > 0)
		if err != nil {
			return err
		}
		n, err := child.u16()
		if err != nil {
			return err
		}
		ref := reference{typ: typ, from: from, to: make([]uint32, 0, n)}
		for i := 0; i < int(n); i++ {
			to, err := child.uItemID(version > 0)
			if err != nil {
				return err
			}
			ref.to = append(ref.to, to)
		}
		c.refs = append(c.refs, ref)
	}
	return nil
}

type ipmaAssociation struct {
	index     uint16
	essential bool
}

type ipmaEntry struct {
	itemID       uint32
	associations []ipmaAssociation
}

func parseIprp(br *bytesReader) ([]Property, []ipmaEntry, error) {
	var (
		props []Property
		assoc []ipmaEntry
	)
	for br.remaining() > 0 {
		typ, child, err := br.child()
		if err != nil {
			return nil, nil, err
		}
		switch typ {
		case "ipco":
			for child.remaining() > 0 {
				ptyp, pbox, err := child.child()
				if err != nil {
					return nil, nil, err
				}
				p, err := parseProperty(ptyp, pbox)
				if err != nil {
					return nil, nil, err
				}
				props = append(props, p)
			}
		case "ipma":
			entries, err := parseIpma(child)
			if err != nil {
				return nil, nil, err
			}
			assoc = append(assoc, entries...)
		}
	}
	return props, assoc, nil
}

func parseIpma(br *bytesReader) ([]ipmaEntry, error) {
	version, flags, err := br.fullBoxHeader()
	if err != nil {
		return nil, err
	}
	count, err := br.u32()
	if err != nil {
		return nil, err
	}
	if int64(count) > int64(br.remaining()) {
		return nil, containerErr("ipma", "entry count %d exceeds box size", count)
	}
	entries := make([]ipmaEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := br.uItemID(version > 0)
		if err != nil {
			return nil, err
		}
		n, err := br.u8()
		if err != nil {
			return nil, err
		}
		e := ipmaEntry{itemID: id}
		for j := 0; j < int(n); j++ {
			var a ipmaAssociation
			if flags&1 == 1 {
				v, err := br.u16()
				if err != nil {
					return nil, err
				}
				a = ipmaAssociation{index: v & 0x7fff, essential: v>>15 == 1}
			} else {
				v, err := br.u8()
				if err != nil {
					return nil, err
				}
				a = ipmaAssociation{index: uint16(v & 0x7f), essential: v>>7 == 1}
			}
			e.associations = append(e.associations, a)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *Container) validate() error {
	if c.PrimaryID == 0 {
		return containerErr("pitm", "missing primary item")
	}
	primary := c.items[c.PrimaryID]
	if primary == nil || primary.Type == "" {
		return containerErr("pitm", "primary item %d is not declared in 'iinf'", c.PrimaryID)
	}
	return nil
}

// Item returns the item with the given id, or nil.
func (c *Container) Item(id uint32) *Item {
	it := c.items[id]
	if it == nil || it.Type == "" {
		return nil
	}
	return it
}

// Primary returns the primary item.
func (c *Container) Primary() *Item {
	return c.items[c.PrimaryID]
}

// Items returns the declared items in file order.
func (c *Container) Items() []*Item {
	out := make([]*Item, 0, len(c.itemOrder))
	for _, id := range c.itemOrder {
		if it := c.Item(id); it != nil {
			out = append(out, it)
		}
	}
	return out
}

// References returns the targets of from's references of the given type, in
// the order stored in the file.
func (c *Container) References(from uint32, typ string) []uint32 {
	var out []uint32
	for _, r := range c.refs {
		if r.from == from && r.typ == typ {
			out = append(out, r.to...)
		}
	}
	return out
}

// ReferencedBy returns the items that reference to with the given type.
func (c *Container) ReferencedBy(to uint32, typ string) []uint32 {
	var out []uint32
	for _, r := range c.refs {
		if r.typ != typ {
			continue
		}
		for _, t := range r.to {
			if t == to {
				out = append(out, r.from)
				break
			}
		}
	}
	return out
}

// AlphaFor returns the alpha auxiliary item of id, or nil.
func (c *Container) AlphaFor(id uint32) *Item {
	for _, from := range c.ReferencedBy(id, "auxl") {
		if it := c.Item(from); it != nil && it.IsAlpha() {
			return it
		}
	}
	return nil
}

// Premultiplied reports whether colour item id references alpha item alphaID
// with 'prem'.
func (c *Container) Premultiplied(id, alphaID uint32) bool {
	for _, to := range c.References(id, "prem") {
		if to == alphaID {
			return true
		}
	}
	return false
}

// ItemSize returns the total payload size of an item.
func (c *Container) ItemSize(id uint32) (int, error) {
	it := c.Item(id)
	if it == nil {
		return 0, containerErr("iinf", "no item %d", id)
	}
	total, err := extentTotal(id, it.extents)
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// extentTotal sums extent lengths, rejecting payloads over maxItemSize
// before the sum can wrap.
func extentTotal(id uint32, extents []extent) (uint64, error) {
	var total uint64
	for _, e := range extents {
		if e.length > maxItemSize || total > maxItemSize-e.length {
			return 0, unsupported("item %d payload exceeds %d bytes", id, maxItemSize)
		}
		total += e.length
	}
	return total, nil
}

// ItemData reads an item's payload, concatenating its extents. The returned
// slice comes from GetBuffer; pass it to PutBuffer when done. ItemData is not
// safe for concurrent use because it moves the reader's position.
func (c *Container) ItemData(id uint32) ([]byte, error) {
	it := c.Item(id)
	if it == nil {
		return nil, containerErr("iinf", "no item %d", id)
	}
	if !it.located || len(it.extents) == 0 {
		return nil, containerErr("iloc", "item %d has no location", id)
	}
	if it.construction > 1 {
		return nil, unsupported("item %d uses construction method %d", id, it.construction)
	}

	// A zero length extent runs to the end of the file (or idat).
	extents := it.extents
	if len(extents) == 1 && extents[0].length == 0 {
		var end uint64
		if it.construction == 1 {
			end = uint64(len(c.idat))
		} else {
			e, err := c.r.Seek(0, io.SeekEnd)
			if err != nil {
				return nil, fmt.Errorf("failed to find end of file: %w", err)
			}
			end = uint64(e)
		}
		start := it.baseOffset + extents[0].offset
		if start < it.baseOffset || start > end {
			return nil, containerErr("iloc", "item %d starts past the end of its source", id)
		}
		extents = []extent{{offset: extents[0].offset, length: end - start}}
	}

	total, err := extentTotal(id, extents)
	if err != nil {
		return nil, err
	}

	buf := GetBuffer(int(total))
	n := 0
	for _, e := range extents {
		start := it.baseOffset + e.offset
		dst := buf[n : n+int(e.length)]
		if it.construction == 1 {
			if start < it.baseOffset || start > uint64(len(c.idat)) || e.length > uint64(len(c.idat))-start {
				PutBuffer(buf)
				return nil, containerErr("idat", "item %d extent exceeds 'idat'", id)
			}
			copy(dst, c.idat[start:start+e.length])
		} else {
			if start < it.baseOffset || start > math.MaxInt64 {
				PutBuffer(buf)
				return nil, containerErr("iloc", "item %d extent offset overflows", id)
			}
			if _, err := c.r.Seek(int64(start), io.SeekStart); err != nil {
				PutBuffer(buf)
				return nil, fmt.Errorf("failed to seek to item %d: %w", id, err)
			}
			if _, err := io.ReadFull(c.r, dst); err != nil {
				PutBuffer(buf)
				return nil, &ContainerError{Box: "iloc", Msg: fmt.Sprintf("failed to read item %d", id), Err: err}
			}
		}
		n += int(e.length)
	}
	return buf, nil
}
