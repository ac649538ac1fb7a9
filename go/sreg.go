package segwalk

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/models"
)

// segment register roles; protection checks differ per role
const (
	segCode = iota
	segStack
	segData
	segTask
	segLDT
)

func (m *Machine) segRole(reg int) int {
	switch reg {
	case m.arch.CS:
		return segCode
	case m.arch.SS:
		return segStack
	case m.arch.TR:
		return segTask
	case m.arch.LDTR:
		return segLDT
	}
	return segData
}

// raise latches the fault and tells any segment hooks about it.
// The machine refuses further loads until ClearFault.
func (m *Machine) raise(reg int, sel models.Selector, vector int, op string) error {
	f := &models.Fault{Vector: vector, Selector: sel, Op: op}
	m.fault = f
	m.dispatchSeg(reg, sel, m.segs[reg], f)
	return f
}

func (m *Machine) dispatchSeg(reg int, sel models.Selector, seg models.Segment, fault *models.Fault) {
	for _, v := range m.segHooks {
		if v.Seg != nil {
			v.Seg(reg, sel, seg, fault)
		}
	}
}

// LoadSegment loads a segment register through the full protection checks,
// the way mov/ljmp/ltr would. On success the register holds the selector and
// the segment cache holds the decoded descriptor. A protection violation
// raises a fault, which halts the machine and comes back as the error.
func (m *Machine) LoadSegment(reg int, sel models.Selector) error {
	if _, ok := m.segs[reg]; !ok {
		return errors.Errorf("not a segment register: %d", reg)
	}
	if m.fault != nil {
		return errors.Errorf("machine halted: %s", m.fault)
	}
	role := m.segRole(reg)
	if role == segLDT {
		return errors.New("ldt loads are not supported")
	}
	if sel.Local() {
		return m.raise(reg, sel, models.FAULT_GP, "no local descriptor table")
	}
	if sel.Index() == 0 {
		// a null selector unloads data segments and faults everything else
		if role != segData {
			return m.raise(reg, sel, models.FAULT_GP, "null selector")
		}
		seg := models.Segment{Selector: sel, Unusable: 1}
		m.segs[reg] = seg
		m.RegWrite(reg, uint64(sel))
		m.dispatchSeg(reg, sel, seg, nil)
		return nil
	}

	dt := m.dtables[m.arch.GDTR]
	if !dt.Contains(sel) {
		return m.raise(reg, sel, models.FAULT_GP,
			fmt.Sprintf("selector %s outside table limit %#x", sel, dt.Limit))
	}
	addr := dt.Base + uint64(sel.Index()*models.DescSize)
	raw, err := m.ReadUint(addr, models.DescSize)
	if err != nil {
		return m.raise(reg, sel, models.FAULT_GP,
			fmt.Sprintf("descriptor fetch at %#x failed", addr))
	}
	d := models.SegmentDescriptor(raw)
	if vector, op := m.check(role, sel, d); op != "" {
		return m.raise(reg, sel, vector, op)
	}

	seg := models.SegmentFromDescriptor(d, sel)
	m.segs[reg] = seg
	m.RegWrite(reg, uint64(sel))
	if reg == m.arch.CS {
		m.cpl = sel.RPL()
	}
	m.dispatchSeg(reg, sel, seg, nil)
	return nil
}

// check applies the protection rules for loading d into a register with
// the given role. An empty op string means the load is allowed.
// Presence is checked last, matching the hardware check order.
func (m *Machine) check(role int, sel models.Selector, d models.SegmentDescriptor) (int, string) {
	rpl, dpl := sel.RPL(), d.DPL()
	switch role {
	case segCode:
		if !d.Executable() {
			return models.FAULT_GP, fmt.Sprintf("descriptor is not executable: %s", d)
		}
		if d.Conforming() {
			if dpl > m.cpl {
				return models.FAULT_GP, fmt.Sprintf("conforming dpl %d above cpl %d", dpl, m.cpl)
			}
		} else if rpl != m.cpl || dpl != m.cpl {
			return models.FAULT_GP, fmt.Sprintf("rpl %d dpl %d do not match cpl %d", rpl, dpl, m.cpl)
		}
		if !d.Present() {
			return models.FAULT_NP, "descriptor not present"
		}
	case segStack:
		if !d.Writable() {
			return models.FAULT_GP, fmt.Sprintf("descriptor is not writable data: %s", d)
		}
		if rpl != m.cpl || dpl != m.cpl {
			return models.FAULT_GP, fmt.Sprintf("rpl %d dpl %d do not match cpl %d", rpl, dpl, m.cpl)
		}
		if !d.Present() {
			return models.FAULT_SS, "descriptor not present"
		}
	case segData:
		if !d.CodeData() {
			return models.FAULT_GP, fmt.Sprintf("descriptor is not code or data: %s", d)
		}
		if d.Executable() && !d.Readable() {
			return models.FAULT_GP, "code descriptor is execute-only"
		}
		// conforming code ignores privilege here
		if !d.Conforming() {
			if dpl < m.cpl || dpl < rpl {
				return models.FAULT_GP, fmt.Sprintf("dpl %d below cpl %d or rpl %d", dpl, m.cpl, rpl)
			}
		}
		if !d.Present() {
			return models.FAULT_NP, "descriptor not present"
		}
	case segTask:
		if d.CodeData() || d.Typ() != 1 && d.Typ() != 9 {
			return models.FAULT_GP, fmt.Sprintf("descriptor is not an available tss: %s", d)
		}
		if !d.Present() {
			return models.FAULT_NP, "tss not present"
		}
	}
	return 0, ""
}

func (m *Machine) Segment(reg int) (models.Segment, error) {
	seg, ok := m.segs[reg]
	if !ok {
		return seg, errors.Errorf("not a segment register: %d", reg)
	}
	return seg, nil
}

// SetSegment writes a segment register and its cache without any checks.
// Restore paths use it; normal loads go through LoadSegment.
func (m *Machine) SetSegment(reg int, seg models.Segment) error {
	if _, ok := m.segs[reg]; !ok {
		return errors.Errorf("not a segment register: %d", reg)
	}
	m.segs[reg] = seg
	if err := m.RegWrite(reg, uint64(seg.Selector)); err != nil {
		return err
	}
	if reg == m.arch.CS {
		m.cpl = seg.Selector.RPL()
	}
	return nil
}

func (m *Machine) CPL() int {
	return m.cpl
}

func (m *Machine) Halted() bool {
	return m.fault != nil
}

func (m *Machine) Fault() *models.Fault {
	return m.fault
}

func (m *Machine) ClearFault() {
	m.fault = nil
}
