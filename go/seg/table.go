package seg

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/models"
)

// selectors fixed by the boot table layout
const (
	SelNull  models.Selector = 0x00
	SelKCode models.Selector = 0x08
	SelKData models.Selector = 0x10
	SelUCode models.Selector = 0x18 | 3
	SelUData models.Selector = 0x20 | 3
	SelTSS   models.Selector = 0x28
)

// Table accumulates descriptors in slot order, starting with the mandatory
// null slot.
type Table struct {
	descs []models.SegmentDescriptor
}

func NewTable() *Table {
	return &Table{descs: []models.SegmentDescriptor{0}}
}

// Add appends d and returns the selector referencing it.
func (t *Table) Add(d models.SegmentDescriptor, rpl int) models.Selector {
	t.descs = append(t.descs, d)
	return models.Selector((len(t.descs)-1)<<3 | rpl&3)
}

func (t *Table) Entries() int {
	return len(t.descs)
}

// Limit is the inclusive byte limit the installed table will have.
func (t *Table) Limit() uint16 {
	return uint16(len(t.descs)*models.DescSize - 1)
}

// Bytes encodes the table slots for guest memory.
func (t *Table) Bytes(order binary.ByteOrder) []byte {
	buf := make([]byte, len(t.descs)*models.DescSize)
	for i, d := range t.descs {
		order.PutUint64(buf[i*models.DescSize:], uint64(d))
	}
	return buf
}

// Install writes the table into guest memory at addr and points the table
// register at it. Writes go through the machine's ordinary memory path.
func (t *Table) Install(m models.Machine, reg int, addr uint64) error {
	for i, d := range t.descs {
		a := addr + uint64(i*models.DescSize)
		if err := m.WriteUint(a, models.DescSize, uint64(d)); err != nil {
			return errors.Wrapf(err, "table slot %d failed", i)
		}
	}
	return m.DTableWrite(reg, models.DescTable{Base: addr, Limit: t.Limit()})
}

// flat 4GB code/data descriptor flags
const (
	flatCode = models.DescPresent | models.DescCodeData | models.DescExecute |
		models.DescWrite | models.DescDB
	flatData = models.DescPresent | models.DescCodeData |
		models.DescWrite | models.DescDB
	tssAvail = models.DescPresent | models.DescExecute | models.DescAccessed
)

// BootTable builds the conventional boot-time table: null slot, flat kernel
// code and data, flat user code and data, and one available 32-bit TSS at
// tssBase. Slot selectors match the SelK/SelU constants.
func BootTable(tssBase uint32) *Table {
	t := NewTable()
	t.Add(models.NewSegmentDescriptor(0, 0xffffffff, flatCode), 0)
	t.Add(models.NewSegmentDescriptor(0, 0xffffffff, flatData), 0)
	t.Add(models.NewSegmentDescriptor(0, 0xffffffff, flatCode|models.DescDPL(3)), 3)
	t.Add(models.NewSegmentDescriptor(0, 0xffffffff, flatData|models.DescDPL(3)), 3)
	t.Add(models.NewSegmentDescriptor(tssBase, 0x67, tssAvail), 0)
	return t
}
