package models

// Machine-level event callbacks. Memory access hooks live at the cpu layer;
// these cover the events only the machine can see.

type MapCb func(addr, size uint64, prot int, desc string)
type UnmapCb func(addr, size uint64)
type ProtCb func(addr, size uint64, prot int)

type MapHook struct {
	Map   MapCb
	Unmap UnmapCb
	Prot  ProtCb
}

// DTableCb observes descriptor-table register writes.
type DTableCb func(reg int, dt DescTable)

// SegCb observes segment register loads. fault is nil when the load
// succeeded; on a fault, seg holds the register's previous contents.
type SegCb func(reg int, sel Selector, seg Segment, fault *Fault)

type SegHook struct {
	DTable DTableCb
	Seg    SegCb
}
