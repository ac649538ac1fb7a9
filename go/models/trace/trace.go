package trace

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/models"
	"github.com/lunixbochs/segwalk/go/models/cpu"
)

// Trace subscribes to a machine's hooks and records everything it sees
// as a flat op stream. Attach emits the machine's current mappings,
// descriptor tables, and segment registers first, so a reader can
// reconstruct state without replaying from the very beginning.
type Trace struct {
	hooks   []cpu.Hook
	mapHook *models.MapHook
	segHook *models.SegHook

	m      models.Machine
	w      io.WriteCloser
	tf     *TraceWriter
	config *models.TraceConfig

	attached bool
}

func NewTrace(m models.Machine, config *models.TraceConfig) (*Trace, error) {
	t := &Trace{
		m:      m,
		config: config,
	}
	var err error
	t.w = config.TraceWriter
	if t.w == nil && config.Tracefile != "" {
		if t.w, err = os.Create(config.Tracefile); err != nil {
			return nil, errors.Wrapf(err, "failed to create tracefile '%s'", config.Tracefile)
		}
	}
	if t.w != nil {
		if t.tf, err = NewWriter(t.w, m); err != nil {
			return nil, errors.Wrap(err, "failed to create trace writer")
		}
	}
	return t, nil
}

func (t *Trace) hook(enum int, f interface{}, begin, end uint64) error {
	hh, err := t.m.HookAdd(enum, f, begin, end)
	if err != nil {
		return errors.Wrap(err, "m.HookAdd failed")
	}
	t.hooks = append(t.hooks, hh)
	return nil
}

func (t *Trace) Attach() error {
	if t.attached {
		return nil
	}
	t.attached = true

	// catch up on state that existed before the trace started
	for _, m := range t.m.Mappings() {
		t.Append(&OpMemMap{Addr: m.Addr, Size: m.Size, Prot: uint8(m.Prot), Desc: m.Desc})
	}
	arch := t.m.Arch()
	for _, dt := range arch.DTables {
		table, err := t.m.DTableRead(dt.Enum)
		if err != nil {
			return errors.Wrapf(err, "failed to read initial %s", dt.Name)
		}
		t.Append(&OpDTable{Reg: uint8(dt.Enum), Base: table.Base, Limit: table.Limit})
	}
	for _, enum := range arch.SRegs {
		seg, err := t.m.Segment(enum)
		if err != nil {
			return errors.Wrapf(err, "failed to read initial %s", arch.RegName(enum))
		}
		if seg.Unusable != 0 {
			continue
		}
		t.Append(&OpSegLoad{Reg: uint8(enum), Sel: uint16(seg.Selector), Desc: uint64(seg.Descriptor())})
	}

	if err := t.hook(cpu.HOOK_MEM_READ|cpu.HOOK_MEM_WRITE,
		func(_ cpu.Cpu, access int, addr uint64, size int, val int64) {
			if access == cpu.MEM_WRITE {
				t.Append(&OpMemWrite{Addr: addr, Size: uint8(size), Value: uint64(val)})
			} else {
				t.Append(&OpMemRead{Addr: addr, Size: uint8(size), Value: uint64(val)})
			}
		}, 1, 0); err != nil {
		return err
	}
	mapCb := func(addr, size uint64, prot int, desc string) {
		t.Append(&OpMemMap{Addr: addr, Size: size, Prot: uint8(prot), Desc: desc})
	}
	unmapCb := func(addr, size uint64) {
		t.Append(&OpMemUnmap{Addr: addr, Size: size})
	}
	protCb := func(addr, size uint64, prot int) {
		t.Append(&OpMemProt{Addr: addr, Size: size, Prot: uint8(prot)})
	}
	t.mapHook = t.m.HookMapAdd(mapCb, unmapCb, protCb)

	dtCb := func(reg int, dt models.DescTable) {
		t.Append(&OpDTable{Reg: uint8(reg), Base: dt.Base, Limit: dt.Limit})
	}
	segCb := func(reg int, sel models.Selector, seg models.Segment, fault *models.Fault) {
		if fault != nil {
			t.Append(&OpFault{Vector: uint8(fault.Vector), Sel: uint16(sel), Op: fault.Op})
		} else {
			t.Append(&OpSegLoad{Reg: uint8(reg), Sel: uint16(sel), Desc: uint64(seg.Descriptor())})
		}
	}
	t.segHook = t.m.HookSegAdd(dtCb, segCb)
	return nil
}

func (t *Trace) Detach() {
	if !t.attached {
		return
	}
	t.attached = false
	if t.tf != nil {
		t.tf.Close()
		t.tf = nil
	}

	for _, hh := range t.hooks {
		t.m.HookDel(hh)
	}
	t.hooks = nil
	if t.mapHook != nil {
		t.m.HookMapDel(t.mapHook)
		t.mapHook = nil
	}
	if t.segHook != nil {
		t.m.HookSegDel(t.segHook)
		t.segHook = nil
	}
}

func (t *Trace) Send(op models.Op) {
	for _, cb := range t.config.OpCallback {
		cb(op)
	}
}

func (t *Trace) Append(op models.Op) {
	t.Send(op)
	if t.tf != nil {
		t.tf.Pack(op)
	}
}
