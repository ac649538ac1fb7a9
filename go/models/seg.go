package models

import (
	"fmt"
)

// DescSize is the width of one descriptor table slot in bytes.
// System descriptors wider than one slot are out of scope.
const DescSize = 8

// Selector references one descriptor within a table:
// index in the high 13 bits, table indicator bit, requested privilege level
// in the low two bits.
type Selector uint16

func (s Selector) Index() int {
	return int(s >> 3)
}

func (s Selector) Local() bool {
	return s&4 != 0
}

func (s Selector) RPL() int {
	return int(s & 3)
}

func (s Selector) String() string {
	return fmt.Sprintf("%#x", uint16(s))
}

// DescTable is a descriptor-table register image: the linear address of the
// first table slot plus the table's inclusive byte limit (size - 1).
// It describes the table without owning its memory.
type DescTable struct {
	Base  uint64
	Limit uint16
}

// number of whole descriptor slots covered by Limit
func (d DescTable) Entries() int {
	return (int(d.Limit) + 1) / DescSize
}

// reports whether the slot named by sel lies entirely inside the table
func (d DescTable) Contains(sel Selector) bool {
	return sel.Index()*DescSize+DescSize-1 <= int(d.Limit)
}

func (d DescTable) String() string {
	return fmt.Sprintf("base=%#x limit=%#x", d.Base, d.Limit)
}

// DescFlags holds a descriptor's access byte and attribute nibble, positioned
// as they appear in bits 8-23 of the descriptor's high dword.
type DescFlags uint32

const (
	DescAccessed   DescFlags = 1 << 8
	DescWrite      DescFlags = 1 << 9  // readable for code, writable for data
	DescExpandDown DescFlags = 1 << 10 // conforming for code, expand-down for data
	DescExecute    DescFlags = 1 << 11
	DescCodeData   DescFlags = 1 << 12 // clear means system descriptor
	DescPresent    DescFlags = 1 << 15
	DescAVL        DescFlags = 1 << 20
	DescLong       DescFlags = 1 << 21
	DescDB         DescFlags = 1 << 22
	DescGran4K     DescFlags = 1 << 23
)

// descriptor privilege level positioned for DescFlags
func DescDPL(ring int) DescFlags {
	return DescFlags(ring&3) << 13
}

// SegmentDescriptor is one raw 8-byte table entry. The walker treats entries
// as opaque bit patterns; these accessors are the separate decode step.
type SegmentDescriptor uint64

// NewSegmentDescriptor packs base, limit, and flags into a descriptor.
// A limit wider than 20 bits is converted to 4K granularity.
func NewSegmentDescriptor(base, limit uint32, flags DescFlags) SegmentDescriptor {
	if limit>>12 != 0 {
		limit >>= 12
		flags |= DescGran4K
	}
	lo := uint64(base<<16) | uint64(limit&0xffff)
	hi := uint64(base&0xff000000) | uint64(base>>16)&0xff |
		uint64(limit&0xf0000) | uint64(flags)
	return SegmentDescriptor(hi<<32 | lo)
}

func (d SegmentDescriptor) Base() uint64 {
	return (uint64(d)>>16)&0x00ffffff | (uint64(d)>>32)&0xff000000
}

// limit in bytes, expanded for 4K granularity
func (d SegmentDescriptor) Limit() uint64 {
	l := uint64(d)&0xffff | (uint64(d)>>32)&0xf0000
	if d.Flags()&DescGran4K != 0 {
		return l<<12 | 0xfff
	}
	return l
}

func (d SegmentDescriptor) Flags() DescFlags {
	return DescFlags((uint64(d) >> 32) & 0x00f0ff00)
}

// the 4-bit type field of the access byte
func (d SegmentDescriptor) Typ() uint8 {
	return uint8(uint64(d)>>40) & 0xf
}

func (d SegmentDescriptor) DPL() int {
	return int(uint64(d)>>45) & 3
}

func (d SegmentDescriptor) Present() bool {
	return d.Flags()&DescPresent != 0
}

// true for code/data descriptors, false for system descriptors
func (d SegmentDescriptor) CodeData() bool {
	return d.Flags()&DescCodeData != 0
}

func (d SegmentDescriptor) Executable() bool {
	return d.CodeData() && d.Flags()&DescExecute != 0
}

func (d SegmentDescriptor) Writable() bool {
	return d.CodeData() && d.Flags()&DescExecute == 0 && d.Flags()&DescWrite != 0
}

// readable applies to code descriptors only
func (d SegmentDescriptor) Readable() bool {
	return d.Executable() && d.Flags()&DescWrite != 0
}

func (d SegmentDescriptor) Conforming() bool {
	return d.Executable() && d.Flags()&DescExpandDown != 0
}

func (d SegmentDescriptor) String() string {
	if d == 0 {
		return "<null>"
	}
	kind := "system"
	if d.Executable() {
		kind = "code"
	} else if d.CodeData() {
		kind = "data"
	}
	p := ""
	if !d.Present() {
		p = " !present"
	}
	return fmt.Sprintf("%s base=%#x limit=%#x dpl=%d type=%#x%s",
		kind, d.Base(), d.Limit(), d.DPL(), d.Typ(), p)
}

// Segment is the decoded, register-cached view of a loaded descriptor.
type Segment struct {
	Base     uint64
	Limit    uint32
	Selector Selector
	Typ      uint8
	Present  uint8
	DPL      uint8
	DB       uint8
	S        uint8
	L        uint8
	G        uint8
	AVL      uint8
	Unusable uint8
}

func SegmentFromDescriptor(d SegmentDescriptor, sel Selector) Segment {
	flags := d.Flags()
	bit := func(f DescFlags) uint8 {
		if flags&f != 0 {
			return 1
		}
		return 0
	}
	s := Segment{
		Base:     d.Base(),
		Limit:    uint32(d.Limit()),
		Selector: sel,
		Typ:      d.Typ(),
		Present:  bit(DescPresent),
		DPL:      uint8(d.DPL()),
		DB:       bit(DescDB),
		S:        bit(DescCodeData),
		L:        bit(DescLong),
		G:        bit(DescGran4K),
		AVL:      bit(DescAVL),
	}
	if s.Present == 0 {
		s.Unusable = 1
	}
	return s
}

// Descriptor re-encodes the segment as a raw table entry. Unlike
// NewSegmentDescriptor it honors the segment's own granularity bit, so a
// decode/encode round trip is exact.
func (s Segment) Descriptor() SegmentDescriptor {
	limit := s.Limit
	flags := DescFlags(s.Typ&0xf)<<8 | DescDPL(int(s.DPL))
	if s.G != 0 {
		limit >>= 12
		flags |= DescGran4K
	}
	if s.S != 0 {
		flags |= DescCodeData
	}
	if s.Present != 0 {
		flags |= DescPresent
	}
	if s.AVL != 0 {
		flags |= DescAVL
	}
	if s.L != 0 {
		flags |= DescLong
	}
	if s.DB != 0 {
		flags |= DescDB
	}
	base := uint32(s.Base)
	lo := uint64(base<<16) | uint64(limit&0xffff)
	hi := uint64(base&0xff000000) | uint64(base>>16)&0xff |
		uint64(limit&0xf0000) | uint64(flags)
	return SegmentDescriptor(hi<<32 | lo)
}

func (s Segment) String() string {
	if s.Unusable != 0 {
		return fmt.Sprintf("%s <unusable>", s.Selector)
	}
	return fmt.Sprintf("%s base=%#x limit=%#x dpl=%d", s.Selector, s.Base, s.Limit, s.DPL)
}
