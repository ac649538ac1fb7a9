package trace

import (
	"encoding/binary"

	"github.com/lunixbochs/segwalk/go/models"
	"github.com/lunixbochs/segwalk/go/models/cpu"
)

// Replay rebuilds machine state from a recorded op stream. Feeding the ops
// through in order leaves Mem, Tables, and Segs holding what the live
// machine held, so a front end can render values and decoded descriptors
// without re-running anything.
type Replay struct {
	Arch   *models.Arch
	Mem    *cpu.Mem
	Tables map[int]models.DescTable
	Segs   map[int]models.Segment
	Fault  *models.Fault

	callbacks []func(models.Op)
}

func NewReplay(arch *models.Arch, order binary.ByteOrder) *Replay {
	return &Replay{
		Arch:   arch,
		Mem:    cpu.NewMem(uint(arch.Bits), order),
		Tables: make(map[int]models.DescTable),
		Segs:   make(map[int]models.Segment),
	}
}

func (r *Replay) Listen(cb func(models.Op)) {
	r.callbacks = append(r.callbacks, cb)
}

// update() applies state change(s) from op to the Replay's internal state
func (r *Replay) update(op models.Op) {
	switch o := op.(type) {
	case *OpMemMap:
		r.Mem.MemMapProt(o.Addr, o.Size, int(o.Prot))
		if page := r.Mem.Maps().Find(o.Addr); page != nil {
			page.Desc = o.Desc
		}
	case *OpMemUnmap:
		r.Mem.MemUnmap(o.Addr, o.Size)
	case *OpMemProt:
		r.Mem.MemProt(o.Addr, o.Size, int(o.Prot))
	case *OpMemWrite:
		r.Mem.WriteUint(o.Addr, int(o.Size), 0, o.Value)
	case *OpDTable:
		r.Tables[int(o.Reg)] = models.DescTable{Base: o.Base, Limit: o.Limit}
	case *OpSegLoad:
		d := models.SegmentDescriptor(o.Desc)
		r.Segs[int(o.Reg)] = models.SegmentFromDescriptor(d, models.Selector(o.Sel))
	case *OpFault:
		r.Fault = &models.Fault{
			Vector:   int(o.Vector),
			Selector: models.Selector(o.Sel),
			Op:       o.Op,
		}
	}
}

// Feed applies one op, then hands it to any listeners.
func (r *Replay) Feed(op models.Op) {
	r.update(op)
	for _, cb := range r.callbacks {
		cb(op)
	}
}
