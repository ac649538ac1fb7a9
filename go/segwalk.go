package segwalk

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/arch"
	"github.com/lunixbochs/segwalk/go/models"
	"github.com/lunixbochs/segwalk/go/models/cpu"
)

// Machine is simulated processor state with no execution engine: a register
// file, paged memory, descriptor-table registers, and segment register
// caches. The privileged operations layered on it (DTableWrite, LoadSegment)
// behave like their instruction counterparts, including raising faults.
type Machine struct {
	*cpu.Hooks
	*cpu.Regs
	*cpu.Mem

	arch   *models.Arch
	config *models.Config
	bits   int
	Bsz    int
	order  binary.ByteOrder

	dtables map[int]models.DescTable
	segs    map[int]models.Segment
	cpl     int
	fault   *models.Fault

	mapHooks []*models.MapHook
	segHooks []*models.SegHook
}

func New(config *models.Config) (models.Machine, error) {
	config = config.Init()
	a, err := arch.GetArch(config.Arch)
	if err != nil {
		return nil, err
	}
	order := binary.ByteOrder(binary.LittleEndian)
	m := &Machine{
		Regs:    cpu.NewRegs(uint(a.Bits), a.RegEnums()),
		Mem:     cpu.NewMem(uint(a.Bits), order),
		arch:    a,
		config:  config,
		bits:    a.Bits,
		Bsz:     a.Bits / 8,
		order:   order,
		dtables: make(map[int]models.DescTable),
		segs:    make(map[int]models.Segment),
	}
	m.Hooks = cpu.NewHooks(m, m.Mem)
	// table registers come out of reset with base 0, limit 0xffff
	for _, dt := range a.DTables {
		m.dtables[dt.Enum] = models.DescTable{Base: 0, Limit: 0xffff}
	}
	for _, enum := range a.SRegs {
		m.segs[enum] = models.Segment{Unusable: 1}
	}
	return m, nil
}

func (m *Machine) Arch() *models.Arch {
	return m.arch
}

func (m *Machine) Bits() uint {
	return uint(m.bits)
}

func (m *Machine) ByteOrder() binary.ByteOrder {
	return m.order
}

func (m *Machine) Config() *models.Config {
	return m.config
}

func (m *Machine) MemMap(addr, size uint64, prot int, desc string) (*cpu.Page, error) {
	if err := m.Mem.MemMapProt(addr, size, prot); err != nil {
		return nil, errors.Wrap(err, "m.MemMap() failed")
	}
	page := m.Mem.Maps().Find(addr)
	page.Desc = desc
	for _, v := range m.mapHooks {
		v.Map(addr, size, prot, desc)
	}
	return page, nil
}

func (m *Machine) MemProt(addr, size uint64, prot int) error {
	err := m.Mem.MemProt(addr, size, prot)
	if err == nil {
		for _, v := range m.mapHooks {
			v.Prot(addr, size, prot)
		}
	}
	return errors.Wrap(err, "m.MemProt() failed")
}

func (m *Machine) MemUnmap(addr, size uint64) error {
	err := m.Mem.MemUnmap(addr, size)
	if err == nil {
		for _, v := range m.mapHooks {
			v.Unmap(addr, size)
		}
	}
	return errors.Wrap(err, "m.MemUnmap() failed")
}

func (m *Machine) Mappings() cpu.Pages {
	return m.Mem.Maps()
}

func (m *Machine) ReadUint(addr uint64, size int) (uint64, error) {
	val, err := m.Mem.ReadUint(addr, size, cpu.PROT_READ)
	return val, errors.Wrap(err, "m.ReadUint() failed")
}

func (m *Machine) WriteUint(addr uint64, size int, val uint64) error {
	err := m.Mem.WriteUint(addr, size, cpu.PROT_WRITE, val)
	return errors.Wrap(err, "m.WriteUint() failed")
}

func (m *Machine) RegDump() ([]models.RegVal, error) {
	return m.arch.RegDump(m.Regs)
}

func (m *Machine) DTableRead(reg int) (models.DescTable, error) {
	dt, ok := m.dtables[reg]
	if !ok {
		return dt, errors.Errorf("not a table register: %d", reg)
	}
	return dt, nil
}

func (m *Machine) DTableWrite(reg int, dt models.DescTable) error {
	if _, ok := m.dtables[reg]; !ok {
		return errors.Errorf("not a table register: %d", reg)
	}
	m.dtables[reg] = dt
	for _, v := range m.segHooks {
		if v.DTable != nil {
			v.DTable(reg, dt)
		}
	}
	return nil
}

func (m *Machine) StrucAt(addr uint64) *models.StrucStream {
	return &models.StrucStream{
		Stream: &models.MemIO{M: m, Addr: addr},
		Order:  m.order,
	}
}

func (m *Machine) Printf(format string, args ...interface{}) {
	fmt.Fprintf(m.config.Output, format, args...)
}

func (m *Machine) HookMapAdd(mapCb models.MapCb, unmap models.UnmapCb, prot models.ProtCb) *models.MapHook {
	hook := &models.MapHook{Map: mapCb, Unmap: unmap, Prot: prot}
	m.mapHooks = append(m.mapHooks, hook)
	return hook
}

func (m *Machine) HookMapDel(hook *models.MapHook) {
	tmp := make([]*models.MapHook, 0, len(m.mapHooks))
	for _, v := range m.mapHooks {
		if v != hook {
			tmp = append(tmp, v)
		}
	}
	m.mapHooks = tmp
}

func (m *Machine) HookSegAdd(dtCb models.DTableCb, segCb models.SegCb) *models.SegHook {
	hook := &models.SegHook{DTable: dtCb, Seg: segCb}
	m.segHooks = append(m.segHooks, hook)
	return hook
}

func (m *Machine) HookSegDel(hook *models.SegHook) {
	tmp := make([]*models.SegHook, 0, len(m.segHooks))
	for _, v := range m.segHooks {
		if v != hook {
			tmp = append(tmp, v)
		}
	}
	m.segHooks = tmp
}

// context wraps the register file's save format with the segmentation state
// held outside it
type context struct {
	regs    interface{}
	dtables map[int]models.DescTable
	segs    map[int]models.Segment
	cpl     int
	fault   *models.Fault
}

func (m *Machine) ContextSave(reuse interface{}) (interface{}, error) {
	ctx, _ := reuse.(*context)
	if ctx == nil {
		ctx = &context{
			dtables: make(map[int]models.DescTable),
			segs:    make(map[int]models.Segment),
		}
	}
	regs, err := m.Regs.ContextSave(ctx.regs)
	if err != nil {
		return nil, err
	}
	ctx.regs = regs
	for k, v := range m.dtables {
		ctx.dtables[k] = v
	}
	for k, v := range m.segs {
		ctx.segs[k] = v
	}
	ctx.cpl = m.cpl
	ctx.fault = m.fault
	return ctx, nil
}

func (m *Machine) ContextRestore(saved interface{}) error {
	ctx, ok := saved.(*context)
	if !ok {
		return errors.New("incorrect context type")
	}
	if err := m.Regs.ContextRestore(ctx.regs); err != nil {
		return err
	}
	for k, v := range ctx.dtables {
		m.dtables[k] = v
	}
	for k, v := range ctx.segs {
		m.segs[k] = v
	}
	m.cpl = ctx.cpl
	m.fault = ctx.fault
	return nil
}

func (m *Machine) Close() error {
	return nil
}
