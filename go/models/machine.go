package models

import (
	"encoding/binary"

	"github.com/lunixbochs/segwalk/go/models/cpu"
)

// Machine is the explicit processor-state object the rest of segwalk works
// against. All segmentation state (descriptor-table registers, segment
// registers and their cached descriptors, privilege level) lives behind this
// interface so it can be built up, inspected, and faulted in tests.
type Machine interface {
	cpu.Cpu

	Arch() *Arch
	Bits() uint
	ByteOrder() binary.ByteOrder
	Config() *Config

	// mapping with a label, on top of cpu.Cpu's MemMapProt
	MemMap(addr, size uint64, prot int, desc string) (*cpu.Page, error)
	Mappings() cpu.Pages

	// protection-checked integer bus access (dispatches hooks)
	ReadUint(addr uint64, size int) (uint64, error)
	WriteUint(addr uint64, size int, val uint64) error

	RegDump() ([]RegVal, error)

	// descriptor-table register access (the sgdt/lgdt pair)
	DTableRead(reg int) (DescTable, error)
	DTableWrite(reg int, dt DescTable) error

	// validated segment register load; raises *Fault and halts on violation
	LoadSegment(reg int, sel Selector) error
	// cached descriptor state for a segment register
	Segment(reg int) (Segment, error)
	// unchecked segment register write, for state restore
	SetSegment(reg int, seg Segment) error
	// current privilege level, from the last code segment load
	CPL() int

	// a raised fault latches the machine until ClearFault
	Halted() bool
	Fault() *Fault
	ClearFault()

	// machine-level event hooks, used by the tracer
	HookMapAdd(mapCb MapCb, unmapCb UnmapCb, protCb ProtCb) *MapHook
	HookMapDel(hook *MapHook)
	HookSegAdd(dtCb DTableCb, segCb SegCb) *SegHook
	HookSegDel(hook *SegHook)

	StrucAt(addr uint64) *StrucStream
	Printf(format string, args ...interface{})
}
