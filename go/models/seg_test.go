package models

import (
	"testing"
)

func TestSelector(t *testing.T) {
	sel := Selector(0x2b)
	if sel.Index() != 5 || !sel.Local() || sel.RPL() != 3 {
		t.Fatalf("bad selector decode: %d %v %d", sel.Index(), sel.Local(), sel.RPL())
	}
	sel = Selector(0x08)
	if sel.Index() != 1 || sel.Local() || sel.RPL() != 0 {
		t.Fatalf("bad selector decode: %d %v %d", sel.Index(), sel.Local(), sel.RPL())
	}
}

func TestDescTable(t *testing.T) {
	dt := DescTable{Base: 0x800, Limit: 0x17}
	if dt.Entries() != 3 {
		t.Fatalf("limit 0x17 covers 3 slots, got %d", dt.Entries())
	}
	if !dt.Contains(Selector(0x08)) {
		t.Error("selector 0x08 should be inside limit 0x17")
	}
	if dt.Contains(Selector(0x18)) {
		t.Error("selector 0x18 should be outside limit 0x17")
	}
	// a ragged limit only covers whole slots
	dt.Limit = 0x1a
	if dt.Entries() != 3 {
		t.Fatalf("limit 0x1a covers 3 whole slots, got %d", dt.Entries())
	}
	if dt.Contains(Selector(0x18)) {
		t.Error("selector 0x18 needs bytes 0x18-0x1f, limit is 0x1a")
	}
}

func TestDescriptorEncode(t *testing.T) {
	// the canonical flat 4G segments
	flat := []struct {
		flags DescFlags
		want  SegmentDescriptor
	}{
		{DescPresent | DescCodeData | DescExecute | DescWrite | DescDB, 0x00cf9a000000ffff},
		{DescPresent | DescCodeData | DescWrite | DescDB, 0x00cf92000000ffff},
		{DescPresent | DescCodeData | DescExecute | DescWrite | DescDB | DescDPL(3), 0x00cffa000000ffff},
		{DescPresent | DescCodeData | DescWrite | DescDB | DescDPL(3), 0x00cff2000000ffff},
		{DescPresent | DescCodeData | DescExecute | DescWrite | DescLong, 0x00af9a000000ffff},
	}
	for i, f := range flat {
		d := NewSegmentDescriptor(0, 0xffffffff, f.flags)
		if d != f.want {
			t.Errorf("%d: packed %#016x, want %#016x", i, uint64(d), uint64(f.want))
		}
	}
}

func TestDescriptorFields(t *testing.T) {
	d := SegmentDescriptor(0x00cf9a000000ffff)
	if d.Base() != 0 || d.Limit() != 0xffffffff {
		t.Fatalf("bad base/limit: %#x %#x", d.Base(), d.Limit())
	}
	if !d.Present() || !d.CodeData() || !d.Executable() || d.DPL() != 0 {
		t.Fatal("flat code descriptor decoded wrong")
	}
	if !d.Readable() || d.Conforming() || d.Writable() {
		t.Fatal("flat code descriptor type bits decoded wrong")
	}
	if d.Typ() != 0xa {
		t.Fatalf("flat code type = %#x, want 0xa", d.Typ())
	}

	d = NewSegmentDescriptor(0xdeadb000, 0xfff, DescPresent|DescCodeData|DescWrite)
	if d.Base() != 0xdeadb000 {
		t.Fatalf("base = %#x, want 0xdeadb000", d.Base())
	}
	if d.Limit() != 0xfff {
		t.Fatalf("limit = %#x, want 0xfff", d.Limit())
	}
	if !d.Writable() || d.Executable() {
		t.Fatal("data descriptor type bits decoded wrong")
	}

	d = NewSegmentDescriptor(0, 0xfff, DescCodeData|DescExecute)
	if d.Present() {
		t.Fatal("descriptor without DescPresent decoded as present")
	}
}

func TestDescriptorString(t *testing.T) {
	if s := SegmentDescriptor(0).String(); s != "<null>" {
		t.Fatalf("null descriptor prints %q", s)
	}
}

func TestSegmentRoundTrip(t *testing.T) {
	descs := []SegmentDescriptor{
		0x00cf9a000000ffff,
		0x00cff2000000ffff,
		0x00af9a000000ffff,
		NewSegmentDescriptor(0xdeadb000, 0xfff, DescPresent|DescCodeData|DescWrite),
		NewSegmentDescriptor(0x1000, 0x67, DescPresent|DescFlags(9)<<8), // tss
	}
	for i, d := range descs {
		seg := SegmentFromDescriptor(d, Selector(0x08))
		if back := seg.Descriptor(); back != d {
			t.Errorf("%d: round trip %#016x -> %#016x", i, uint64(d), uint64(back))
		}
	}

	seg := SegmentFromDescriptor(NewSegmentDescriptor(0, 0xfff, DescCodeData), Selector(0x10))
	if seg.Unusable != 1 {
		t.Fatal("non-present descriptor should cache as unusable")
	}
}
