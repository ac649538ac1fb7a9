package trace

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/models"
)

var order = binary.LittleEndian

const (
	OP_NOP       = 0
	OP_MEM_READ  = 1
	OP_MEM_WRITE = 2
	OP_MEM_MAP   = 3
	OP_MEM_UNMAP = 4
	OP_MEM_PROT  = 5
	OP_DTABLE    = 6
	OP_SEG_LOAD  = 7
	OP_FAULT     = 8
)

func Unpack(r io.Reader) (models.Op, int, error) {
	var tmp [1]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return nil, 0, err
	}
	var op models.Op
	switch tmp[0] {
	case OP_NOP:
		op = &OpNop{}
	case OP_MEM_READ:
		op = &OpMemRead{}
	case OP_MEM_WRITE:
		op = &OpMemWrite{}
	case OP_MEM_MAP:
		op = &OpMemMap{}
	case OP_MEM_UNMAP:
		op = &OpMemUnmap{}
	case OP_MEM_PROT:
		op = &OpMemProt{}
	case OP_DTABLE:
		op = &OpDTable{}
	case OP_SEG_LOAD:
		op = &OpSegLoad{}
	case OP_FAULT:
		op = &OpFault{}
	default:
		return nil, 0, errors.Errorf("Unknown op: %d", tmp[0])
	}
	n, err := op.Unpack(r)
	return op, n + 1, err
}

type OpNop struct{}

func (o *OpNop) Sizeof() int   { return 1 }
func (o *OpNop) Pack(p []byte) { p[0] = OP_NOP }

func (o *OpNop) Unpack(r io.Reader) (int, error) { return 0, nil }

type OpMemRead struct {
	Addr  uint64
	Size  uint8
	Value uint64
}

func (o *OpMemRead) Sizeof() int { return 1 + 8 + 1 + 8 }
func (o *OpMemRead) Pack(p []byte) {
	p[0] = OP_MEM_READ
	order.PutUint64(p[1:], o.Addr)
	p[9] = o.Size
	order.PutUint64(p[10:], o.Value)
}

func (o *OpMemRead) Unpack(r io.Reader) (int, error) {
	var tmp [8 + 1 + 8]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint64(tmp[:])
		o.Size = tmp[8]
		o.Value = order.Uint64(tmp[9:])
	}
	return n, err
}

type OpMemWrite struct {
	Addr  uint64
	Size  uint8
	Value uint64
}

func (o *OpMemWrite) Sizeof() int { return 1 + 8 + 1 + 8 }
func (o *OpMemWrite) Pack(p []byte) {
	p[0] = OP_MEM_WRITE
	order.PutUint64(p[1:], o.Addr)
	p[9] = o.Size
	order.PutUint64(p[10:], o.Value)
}

func (o *OpMemWrite) Unpack(r io.Reader) (int, error) {
	var tmp [8 + 1 + 8]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint64(tmp[:])
		o.Size = tmp[8]
		o.Value = order.Uint64(tmp[9:])
	}
	return n, err
}

type OpMemMap struct {
	Addr uint64
	Size uint64
	Prot uint8
	Desc string
}

func (o *OpMemMap) Sizeof() int { return 1 + 8 + 8 + 1 + 2 + len([]byte(o.Desc)) }
func (o *OpMemMap) Pack(p []byte) {
	desc := []byte(o.Desc)
	p[0] = OP_MEM_MAP
	order.PutUint64(p[1:], o.Addr)
	order.PutUint64(p[9:], o.Size)
	p[17] = o.Prot
	order.PutUint16(p[18:], uint16(len(desc)))
	copy(p[20:], desc)
}

func (o *OpMemMap) Unpack(r io.Reader) (int, error) {
	var tmp [8 + 8 + 1 + 2]byte
	total, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint64(tmp[:])
		o.Size = order.Uint64(tmp[8:])
		o.Prot = tmp[16]
		dlen := order.Uint16(tmp[17:])
		buf := make([]byte, dlen)

		n, err := io.ReadFull(r, buf)
		total += n
		if err != nil {
			return total, err
		}
		o.Desc = string(buf)
	}
	return total, err
}

type OpMemUnmap struct {
	Addr uint64
	Size uint64
}

func (o *OpMemUnmap) Sizeof() int { return 1 + 8 + 8 }
func (o *OpMemUnmap) Pack(p []byte) {
	p[0] = OP_MEM_UNMAP
	order.PutUint64(p[1:], o.Addr)
	order.PutUint64(p[9:], o.Size)
}

func (o *OpMemUnmap) Unpack(r io.Reader) (int, error) {
	var tmp [8 + 8]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint64(tmp[:])
		o.Size = order.Uint64(tmp[8:])
	}
	return n, err
}

type OpMemProt struct {
	Addr uint64
	Size uint64
	Prot uint8
}

func (o *OpMemProt) Sizeof() int { return 1 + 8 + 8 + 1 }
func (o *OpMemProt) Pack(p []byte) {
	p[0] = OP_MEM_PROT
	order.PutUint64(p[1:], o.Addr)
	order.PutUint64(p[9:], o.Size)
	p[17] = o.Prot
}

func (o *OpMemProt) Unpack(r io.Reader) (int, error) {
	var tmp [8 + 8 + 1]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint64(tmp[:])
		o.Size = order.Uint64(tmp[8:])
		o.Prot = tmp[16]
	}
	return n, err
}

// OpDTable is a descriptor-table register write.
type OpDTable struct {
	Reg   uint8
	Base  uint64
	Limit uint16
}

func (o *OpDTable) Sizeof() int { return 1 + 1 + 8 + 2 }
func (o *OpDTable) Pack(p []byte) {
	p[0] = OP_DTABLE
	p[1] = o.Reg
	order.PutUint64(p[2:], o.Base)
	order.PutUint16(p[10:], o.Limit)
}

func (o *OpDTable) Unpack(r io.Reader) (int, error) {
	var tmp [1 + 8 + 2]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Reg = tmp[0]
		o.Base = order.Uint64(tmp[1:])
		o.Limit = order.Uint16(tmp[9:])
	}
	return n, err
}

// OpSegLoad is a successful segment register load, with the raw descriptor
// that was cached.
type OpSegLoad struct {
	Reg  uint8
	Sel  uint16
	Desc uint64
}

func (o *OpSegLoad) Sizeof() int { return 1 + 1 + 2 + 8 }
func (o *OpSegLoad) Pack(p []byte) {
	p[0] = OP_SEG_LOAD
	p[1] = o.Reg
	order.PutUint16(p[2:], o.Sel)
	order.PutUint64(p[4:], o.Desc)
}

func (o *OpSegLoad) Unpack(r io.Reader) (int, error) {
	var tmp [1 + 2 + 8]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Reg = tmp[0]
		o.Sel = order.Uint16(tmp[1:])
		o.Desc = order.Uint64(tmp[3:])
	}
	return n, err
}

// OpFault is a segment load or table walk that raised a fault and halted
// the machine.
type OpFault struct {
	Vector uint8
	Sel    uint16
	Op     string
}

func (o *OpFault) Sizeof() int { return 1 + 1 + 2 + 2 + len([]byte(o.Op)) }
func (o *OpFault) Pack(p []byte) {
	op := []byte(o.Op)
	p[0] = OP_FAULT
	p[1] = o.Vector
	order.PutUint16(p[2:], o.Sel)
	order.PutUint16(p[4:], uint16(len(op)))
	copy(p[6:], op)
}

func (o *OpFault) Unpack(r io.Reader) (int, error) {
	var tmp [1 + 2 + 2]byte
	total, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Vector = tmp[0]
		o.Sel = order.Uint16(tmp[1:])
		olen := order.Uint16(tmp[3:])
		buf := make([]byte, olen)

		n, err := io.ReadFull(r, buf)
		total += n
		if err != nil {
			return total, err
		}
		o.Op = string(buf)
	}
	return total, err
}
