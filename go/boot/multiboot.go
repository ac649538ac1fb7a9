package boot

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/models"
	"github.com/lunixbochs/segwalk/go/seg"
)

const (
	// magic a loader leaves in eax for the kernel entry point
	BootMagic = 0x2badb002
	// magic a kernel image carries in its header
	HeaderMagic = 0x1badb002

	FlagMem    = 1 << 0
	FlagMmap   = 1 << 6
	FlagLoader = 1 << 9

	MemAvailable = 1
	MemReserved  = 2

	// entry size as written in each mmap entry's Size field; the field
	// itself is not counted, so the stride is Size + 4
	mmapEntrySize = 20
)

// Info is the boot information structure a loader hands to the kernel,
// through the loader name field. Addresses inside it are 32-bit physical
// pointers into guest memory.
type Info struct {
	Flags          uint32
	MemLower       uint32
	MemUpper       uint32
	BootDevice     uint32
	Cmdline        uint32
	ModsCount      uint32
	ModsAddr       uint32
	Syms           [4]uint32
	MmapLength     uint32
	MmapAddr       uint32
	DrivesLength   uint32
	DrivesAddr     uint32
	ConfigTable    uint32
	BootLoaderName uint32
}

// MmapEntry describes one physical memory region.
type MmapEntry struct {
	Size uint32
	Addr uint64
	Len  uint64
	Type uint32
}

// ReadInfo unpacks the info structure at addr in guest memory.
func ReadInfo(m models.Machine, addr uint64) (*Info, error) {
	info := &Info{}
	if err := m.StrucAt(addr).Unpack(info); err != nil {
		return nil, errors.Wrapf(err, "info read at %#x failed", addr)
	}
	return info, nil
}

// WriteInfo packs the info structure at addr in guest memory.
func WriteInfo(m models.Machine, addr uint64, info *Info) error {
	err := m.StrucAt(addr).Pack(info)
	return errors.Wrapf(err, "info write at %#x failed", addr)
}

// ReadMmap unpacks the memory map the info structure points at. Entries
// are walked by their on-disk stride, Size + 4.
func (i *Info) ReadMmap(m models.Machine) ([]MmapEntry, error) {
	if i.Flags&FlagMmap == 0 {
		return nil, nil
	}
	var entries []MmapEntry
	addr := uint64(i.MmapAddr)
	end := addr + uint64(i.MmapLength)
	for addr < end {
		var e MmapEntry
		if err := m.StrucAt(addr).Unpack(&e); err != nil {
			return nil, errors.Wrapf(err, "mmap entry at %#x failed", addr)
		}
		if e.Size == 0 {
			return nil, errors.Errorf("bad mmap entry size at %#x", addr)
		}
		entries = append(entries, e)
		addr += uint64(e.Size) + 4
	}
	return entries, nil
}

// WriteMmap packs entries at addr and points the info structure at them.
func (i *Info) WriteMmap(m models.Machine, addr uint64, entries []MmapEntry) error {
	s := m.StrucAt(addr)
	for _, e := range entries {
		e.Size = mmapEntrySize
		if err := s.Pack(&e); err != nil {
			return errors.Wrapf(err, "mmap write at %#x failed", addr)
		}
	}
	i.MmapAddr = uint32(addr)
	i.MmapLength = uint32(len(entries) * (mmapEntrySize + 4))
	i.Flags |= FlagMmap
	return nil
}

// SetLoader writes name as a C string at addr and points the info
// structure at it.
func (i *Info) SetLoader(m models.Machine, addr uint64, name string) error {
	if err := m.MemWrite(addr, append([]byte(name), 0)); err != nil {
		return errors.Wrapf(err, "loader name write at %#x failed", addr)
	}
	i.BootLoaderName = uint32(addr)
	i.Flags |= FlagLoader
	return nil
}

// Loader reads back the loader name, if the info structure carries one.
func (i *Info) Loader(m models.Machine) (string, error) {
	if i.Flags&FlagLoader == 0 {
		return "", nil
	}
	return cstring(m, uint64(i.BootLoaderName))
}

// Describe reports the info structure and its memory map, one region per
// line, the way the old kernel dump did.
func (i *Info) Describe(m models.Machine, log seg.Logger) error {
	log.Printf("MBI flags : %#x\n", i.Flags)
	log.Printf("mmap length : %#x\n", i.MmapLength)
	log.Printf("mmap addr : %#x\n", i.MmapAddr)
	entries, err := i.ReadMmap(m)
	if err != nil {
		return err
	}
	for _, e := range entries {
		log.Printf("%-#10x - %-#11x (%d)\n", e.Addr, e.Addr+e.Len, e.Type)
	}
	return nil
}

func cstring(m models.Machine, addr uint64) (string, error) {
	var out []byte
	var buf [32]byte
	for {
		if err := m.MemReadInto(buf[:], addr); err != nil {
			return "", errors.Wrapf(err, "string read at %#x failed", addr)
		}
		if n := bytes.IndexByte(buf[:], 0); n >= 0 {
			return string(append(out, buf[:n]...)), nil
		}
		out = append(out, buf[:]...)
		addr += uint64(len(buf))
	}
}
