package goavif

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tingold/goavif/internal/testavif"
)

func parseFile(t *testing.T, f testavif.File) (*Container, error) {
	t.Helper()
	return ParseContainer(bytes.NewReader(f.Bytes()))
}

func mustParse(t *testing.T, f testavif.File) *Container {
	t.Helper()
	c, err := parseFile(t, f)
	if err != nil {
		t.Fatalf("ParseContainer: %v", err)
	}
	return c
}

func av01Item(id uint32, data []byte, props ...testavif.Prop) testavif.Item {
	return testavif.Item{ID: id, Type: "av01", Data: data, Props: props}
}

func baseProps(w, h uint32) []testavif.Prop {
	return []testavif.Prop{
		{Box: testavif.Ispe(w, h)},
		{Box: testavif.Av1C(10, false, 1, 1, nil), Essential: true},
		{Box: testavif.Nclx(9, 16, 9, true)},
	}
}

func TestParseContainerSingleItem(t *testing.T) {
	payload := []byte{0x12, 0x00, 0xaa, 0xbb}
	c := mustParse(t, testavif.File{
		Primary: 1,
		Items:   []testavif.Item{av01Item(1, payload, baseProps(64, 48)...)},
	})

	if c.MajorBrand != "avif" || c.PrimaryID != 1 {
		t.Errorf("brand %q primary %d", c.MajorBrand, c.PrimaryID)
	}
	it := c.Primary()
	if it.Type != "av01" {
		t.Fatalf("primary type %q", it.Type)
	}
	if s := it.Spatial(); s == nil || s.Width != 64 || s.Height != 48 {
		t.Errorf("ispe = %+v", s)
	}
	av1c := it.AV1Config()
	if av1c == nil || av1c.BitDepth() != 10 || av1c.Subsampling() != Subsampling420 {
		t.Errorf("av1C = %+v", av1c)
	}
	if n := it.NCLX(); n == nil || n.Primaries != 9 || n.Matrix != 9 || !n.FullRange {
		t.Errorf("nclx = %+v", n)
	}
	if !it.Properties[1].Essential || it.Properties[0].Essential {
		t.Error("essential flags not carried over")
	}

	size, err := c.ItemSize(1)
	if err != nil || size != len(payload) {
		t.Errorf("ItemSize = %d, %v", size, err)
	}
	data, err := c.ItemData(1)
	if err != nil {
		t.Fatalf("ItemData: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("ItemData = %x, want %x", data, payload)
	}
	PutBuffer(data)

	if _, err := c.ItemData(9); !errors.Is(err, ErrContainer) {
		t.Errorf("missing item: expected ErrContainer, got %v", err)
	}
}

func TestParseContainerExtents(t *testing.T) {
	c := mustParse(t, testavif.File{
		Primary: 1,
		Items: []testavif.Item{
			{ID: 1, Type: "av01", Data: []byte{1, 2, 3, 4, 5, 6, 7}, Split: true, Props: baseProps(8, 8)},
			{ID: 2, Type: "av01", Data: []byte{9, 8, 7, 6, 5}, InIdat: true},
			{ID: 3, Type: "av01", Data: []byte{0x42, 0x43}},
		},
	})
	for id, want := range map[uint32][]byte{
		1: {1, 2, 3, 4, 5, 6, 7},
		2: {9, 8, 7, 6, 5},
		3: {0x42, 0x43},
	} {
		data, err := c.ItemData(id)
		if err != nil {
			t.Fatalf("item %d: %v", id, err)
		}
		if !bytes.Equal(data, want) {
			t.Errorf("item %d = %x, want %x", id, data, want)
		}
		PutBuffer(data)
	}
	if n := len(c.Items()); n != 3 {
		t.Errorf("Items() returned %d items", n)
	}
}

func TestParseContainerReferences(t *testing.T) {
	alphaProps := []testavif.Prop{
		{Box: testavif.Ispe(8, 8)},
		{Box: testavif.Av1C(8, true, 1, 1, nil)},
		{Box: testavif.AuxC(testavif.AlphaURN)},
	}
	c := mustParse(t, testavif.File{
		Primary: 1,
		Items: []testavif.Item{
			av01Item(1, []byte{1}, baseProps(8, 8)...),
			{ID: 2, Type: "av01", Data: []byte{2}, Hidden: true, Props: alphaProps},
		},
		Refs: []testavif.Ref{
			{Type: "auxl", From: 2, To: []uint32{1}},
			{Type: "prem", From: 1, To: []uint32{2}},
		},
	})

	alpha := c.AlphaFor(1)
	if alpha == nil || alpha.ID != 2 || !alpha.IsAlpha() || !alpha.Hidden {
		t.Fatalf("AlphaFor(1) = %+v", alpha)
	}
	if !c.Premultiplied(1, 2) {
		t.Error("prem reference not found")
	}
	if got := c.ReferencedBy(1, "auxl"); len(got) != 1 || got[0] != 2 {
		t.Errorf("ReferencedBy = %v", got)
	}
	if c.AlphaFor(2) != nil {
		t.Error("alpha item has an alpha of its own")
	}
}

func TestParseContainerErrors(t *testing.T) {
	good := func() testavif.File {
		return testavif.File{Primary: 1, Items: []testavif.Item{av01Item(1, []byte{1}, baseProps(8, 8)...)}}
	}

	cases := map[string]func(*testavif.File){
		"foreign brand": func(f *testavif.File) {
			f.MajorBrand = "heic"
			f.Compatible = []string{"heic", "heix"}
		},
		"wrong handler":      func(f *testavif.File) { f.Handler = "vide" },
		"no primary":         func(f *testavif.File) { f.Primary = 0 },
		"undeclared primary": func(f *testavif.File) { f.Primary = 7 },
		"bad box size":       func(f *testavif.File) { f.Extra = [][]byte{{0, 0, 0, 4}} },
	}
	for name, mutate := range cases {
		f := good()
		mutate(&f)
		if _, err := parseFile(t, f); !errors.Is(err, ErrContainer) {
			t.Errorf("%s: expected ErrContainer, got %v", name, err)
		}
	}

	data := good().Bytes()
	if _, err := ParseContainer(bytes.NewReader(data[:40])); !errors.Is(err, ErrContainer) {
		t.Errorf("truncated: expected ErrContainer, got %v", err)
	}
	if _, err := ParseContainer(bytes.NewReader(nil)); !errors.Is(err, ErrContainer) {
		t.Errorf("empty: expected ErrContainer, got %v", err)
	}
	notFtyp := append(testavif.Box("free", []byte{0}), data...)
	if _, err := ParseContainer(bytes.NewReader(notFtyp)); !errors.Is(err, ErrContainer) {
		t.Errorf("leading box: expected ErrContainer, got %v", err)
	}

	sequence := append(testavif.Box("ftyp", []byte("avis"), make([]byte, 4), []byte("avis")), testavif.Box("moov")...)
	if _, err := ParseContainer(bytes.NewReader(sequence)); !errors.Is(err, ErrUnsupportedFeature) {
		t.Errorf("sequence only: expected ErrUnsupportedFeature, got %v", err)
	}
}

func TestParseContainerCompatibleBrand(t *testing.T) {
	c := mustParse(t, testavif.File{
		MajorBrand: "mif1",
		Compatible: []string{"miaf", "MA1B"},
		Primary:    1,
		Items:      []testavif.Item{av01Item(1, []byte{1}, baseProps(8, 8)...)},
	})
	if c.MajorBrand != "mif1" || len(c.CompatibleBrands) != 2 {
		t.Errorf("brands %q %v", c.MajorBrand, c.CompatibleBrands)
	}
}

func TestEssentialUnknownProperty(t *testing.T) {
	props := append(baseProps(8, 8), testavif.Prop{Box: testavif.Box("zzzz", []byte{1}), Essential: true})
	c := mustParse(t, testavif.File{Primary: 1, Items: []testavif.Item{av01Item(1, []byte{1}, props...)}})
	if err := c.Primary().checkEssential(); !errors.Is(err, ErrUnsupportedFeature) {
		t.Errorf("expected ErrUnsupportedFeature, got %v", err)
	}
	if _, err := buildInfo(c); !errors.Is(err, ErrUnsupportedFeature) {
		t.Errorf("buildInfo: expected ErrUnsupportedFeature, got %v", err)
	}

	props = append(baseProps(8, 8), testavif.Prop{Box: testavif.Box("zzzz", []byte{1})})
	c = mustParse(t, testavif.File{Primary: 1, Items: []testavif.Item{av01Item(1, []byte{1}, props...)}})
	if _, err := buildInfo(c); err != nil {
		t.Errorf("non-essential unknown property rejected: %v", err)
	}
}

func TestItemDataMalformedExtents(t *testing.T) {
	// Version 0, 4-byte offsets, 8-byte lengths: two extents of 2^63 bytes
	// whose sum wraps to zero.
	huge := testavif.FullBox("iloc", 0, 0,
		[]byte{0x48, 0x00, 0, 1},
		[]byte{0, 1, 0, 0, 0, 2},
		[]byte{0, 0, 0, 0}, []byte{0x80, 0, 0, 0, 0, 0, 0, 0},
		[]byte{0, 0, 0, 0}, []byte{0x80, 0, 0, 0, 0, 0, 0, 0},
	)
	c := mustParse(t, testavif.File{
		Primary: 1,
		Items:   []testavif.Item{av01Item(1, []byte{1, 2, 3, 4}, baseProps(8, 8)...)},
		Iloc:    huge,
	})
	if _, err := c.ItemData(1); !errors.Is(err, ErrUnsupportedFeature) {
		t.Errorf("wrapping extents: expected ErrUnsupportedFeature, got %v", err)
	}
	if _, err := c.ItemSize(1); !errors.Is(err, ErrUnsupportedFeature) {
		t.Errorf("ItemSize: expected ErrUnsupportedFeature, got %v", err)
	}

	// Version 1, construction method 1 (idat), 8-byte offset near the top of
	// the range so that offset+length wraps past zero.
	wrap := testavif.FullBox("iloc", 1, 0,
		[]byte{0x84, 0x00, 0, 1},
		[]byte{0, 1, 0, 1, 0, 0, 0, 1},
		[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, []byte{0, 0, 0, 4},
	)
	c = mustParse(t, testavif.File{
		Primary: 1,
		Items:   []testavif.Item{{ID: 1, Type: "av01", Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}, InIdat: true, Props: baseProps(8, 8)}},
		Iloc:    wrap,
	})
	if _, err := c.ItemData(1); !errors.Is(err, ErrContainer) {
		t.Errorf("wrapping idat offset: expected ErrContainer, got %v", err)
	}

	// The same file without nclx makes Inspect read the payload for a
	// sequence header.
	noColr := testavif.File{
		Primary: 1,
		Items: []testavif.Item{av01Item(1, []byte{1, 2, 3, 4},
			testavif.Prop{Box: testavif.Ispe(8, 8)},
			testavif.Prop{Box: testavif.Av1C(8, false, 1, 1, nil)})},
		Iloc: huge,
	}
	if _, err := Inspect(bytes.NewReader(noColr.Bytes())); err == nil {
		t.Error("Inspect accepted wrapping extents")
	}
}
