package boot

import (
	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/arch/x86"
	"github.com/lunixbochs/segwalk/go/models"
	"github.com/lunixbochs/segwalk/go/models/cpu"
	"github.com/lunixbochs/segwalk/go/seg"
)

// Options places the boot furniture in guest memory. Zero fields fall back
// to the machine's config, so Setup(m, Options{}) boots a default machine.
type Options struct {
	MemSize   uint64
	TableAddr uint64
	InfoAddr  uint64
	Stack     uint64
	Loader    string
}

func (o *Options) init(config *models.Config) {
	if o.MemSize == 0 {
		o.MemSize = config.MemSize
	}
	if o.TableAddr == 0 {
		o.TableAddr = config.TableAddr
	}
	if o.InfoAddr == 0 {
		o.InfoAddr = config.InfoAddr
	}
	if o.Stack == 0 {
		o.Stack = 0x9f000
	}
	if o.Loader == "" {
		o.Loader = "segwalk"
	}
}

// Setup boots the machine the way a multiboot loader leaves it for a
// 32-bit kernel: low and extended RAM mapped with the hole between them
// unmapped, the boot descriptor table installed and every segment register
// loaded from it, the info structure and memory map written, the loader
// magic in eax and the info pointer in ebx.
func Setup(m models.Machine, opts Options) (*Info, error) {
	if m.Arch().Name != "x86" {
		return nil, errors.Errorf("multiboot setup needs an x86 machine, not %s", m.Arch().Name)
	}
	opts.init(m.Config())
	if opts.MemSize <= 0x100000 {
		return nil, errors.Errorf("mem size too small: %#x", opts.MemSize)
	}

	prot := cpu.PROT_READ | cpu.PROT_WRITE
	if _, err := m.MemMap(0, 0xa0000, prot, "ram"); err != nil {
		return nil, err
	}
	if _, err := m.MemMap(0x100000, opts.MemSize-0x100000, prot, "ram"); err != nil {
		return nil, err
	}

	// tss image follows the table; only ss0 is populated
	tss := opts.TableAddr + 0x100
	if err := m.WriteUint(tss+8, 4, uint64(seg.SelKData)); err != nil {
		return nil, err
	}
	if err := seg.BootTable(uint32(tss)).Install(m, m.Arch().GDTR, opts.TableAddr); err != nil {
		return nil, err
	}

	info := &Info{
		Flags:    FlagMem,
		MemLower: 640,
		MemUpper: uint32((opts.MemSize - 0x100000) / 1024),
	}
	entries := []MmapEntry{
		{Addr: 0, Len: 0xa0000, Type: MemAvailable},
		{Addr: 0xa0000, Len: 0x60000, Type: MemReserved},
		{Addr: 0x100000, Len: opts.MemSize - 0x100000, Type: MemAvailable},
	}
	if err := info.WriteMmap(m, opts.InfoAddr+0x80, entries); err != nil {
		return nil, err
	}
	if err := info.SetLoader(m, opts.InfoAddr+0x100, opts.Loader); err != nil {
		return nil, err
	}
	if err := WriteInfo(m, opts.InfoAddr, info); err != nil {
		return nil, err
	}

	if err := seg.ReloadCS(m, seg.SelKCode); err != nil {
		return nil, err
	}
	if err := seg.ReloadDataSegments(m, seg.SelKData); err != nil {
		return nil, err
	}
	if err := m.LoadSegment(m.Arch().TR, seg.SelTSS); err != nil {
		return nil, err
	}

	if err := m.RegWrite(x86.EAX, BootMagic); err != nil {
		return nil, err
	}
	if err := m.RegWrite(x86.EBX, opts.InfoAddr); err != nil {
		return nil, err
	}
	if err := m.RegWrite(m.Arch().SP, opts.Stack); err != nil {
		return nil, err
	}
	return info, nil
}
