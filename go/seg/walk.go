package seg

import (
	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/models"
)

// Logger receives walk and probe output. models.Machine satisfies it;
// tests substitute a collector.
type Logger interface {
	Printf(format string, args ...interface{})
}

// WalkPolicy picks the loop bound used when walking a table.
type WalkPolicy int

const (
	// WalkRawLimit uses the register's raw limit value as the slot count:
	// limit steps of DescSize bytes each. The limit is an inclusive byte
	// bound, not a count, so this over-reads the table. It is the default
	// and matches the historical dump output exactly.
	WalkRawLimit WalkPolicy = iota
	// WalkEntryCount walks (limit+1)/DescSize steps, one per whole
	// descriptor slot the limit covers.
	WalkEntryCount
)

// Policy resolves a config name to a walk policy.
func Policy(name string) (WalkPolicy, error) {
	switch name {
	case "", "raw":
		return WalkRawLimit, nil
	case "entries":
		return WalkEntryCount, nil
	}
	return WalkRawLimit, errors.Errorf("unknown walk policy: %s", name)
}

// ReadTable snapshots a descriptor-table register. The snapshot holds the
// base and limit exactly as the register does, without touching the table's
// memory.
func ReadTable(m models.Machine, reg int) (models.DescTable, error) {
	return m.DTableRead(reg)
}

// TableReg resolves a table name ("gdt" or "idt") to the arch's table
// register enum.
func TableReg(a *models.Arch, name string) (int, error) {
	switch name {
	case "", "gdt", "gdtr":
		return a.GDTR, nil
	case "idt", "idtr":
		return a.IDTR, nil
	}
	return 0, errors.Errorf("unknown table: %s", name)
}

// Walker reports the raw contents of a descriptor table, one slot per step.
// Reads go through the machine's ordinary memory path, so hooks fire and a
// recording trace sees them; the walk itself mutates nothing.
type Walker struct {
	M      models.Machine
	Log    Logger
	Policy WalkPolicy
}

// Steps is the number of slots a walk of dt will touch under the policy.
func (w *Walker) Steps(dt models.DescTable) int {
	if w.Policy == WalkEntryCount {
		return dt.Entries()
	}
	return int(dt.Limit)
}

// Walk reports one "desc :" line per step, in table order. A read past
// mapped memory surfaces the memory error; earlier steps stand as reported.
func (w *Walker) Walk(dt models.DescTable) error {
	steps := w.Steps(dt)
	for i := 0; i < steps; i++ {
		raw, err := w.M.ReadUint(dt.Base+uint64(i*models.DescSize), models.DescSize)
		if err != nil {
			return errors.Wrapf(err, "walk step %d failed", i)
		}
		w.Log.Printf("desc : %#x\n", raw)
	}
	return nil
}

// Decode lists each whole descriptor in dt in decoded form. Unlike Walk it
// is always bounded by the entry count, never the raw limit.
func (w *Walker) Decode(dt models.DescTable) error {
	for i := 0; i < dt.Entries(); i++ {
		raw, err := w.M.ReadUint(dt.Base+uint64(i*models.DescSize), models.DescSize)
		if err != nil {
			return errors.Wrapf(err, "decode step %d failed", i)
		}
		d := models.SegmentDescriptor(raw)
		w.Log.Printf("entry base : %#x\n", d.Base())
		w.Log.Printf("entry limit : %#x\n", d.Limit())
	}
	return nil
}
