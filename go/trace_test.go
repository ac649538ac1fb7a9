package segwalk

import (
	"bytes"
	"io"
	"testing"

	"github.com/lunixbochs/segwalk/go/arch/x86"
	"github.com/lunixbochs/segwalk/go/models"
	"github.com/lunixbochs/segwalk/go/models/cpu"
	"github.com/lunixbochs/segwalk/go/models/trace"
)

type bufCloser struct {
	bytes.Buffer
}

func (b *bufCloser) Close() error { return nil }

func TestTraceRoundTrip(t *testing.T) {
	m := mkMachine(t)
	var buf bufCloser
	var count int
	config := &models.TraceConfig{
		TraceWriter: &buf,
		OpCallback:  []func(models.Op){func(models.Op) { count++ }},
	}
	tr, err := trace.NewTrace(m, config)
	if err != nil {
		t.Fatal("NewTrace() failed:", err)
	}
	if err := tr.Attach(); err != nil {
		t.Fatal("Attach() failed:", err)
	}

	mkGdt(t, m, testGdt)
	if err := m.LoadSegment(x86.CS, 0x08); err != nil {
		t.Fatal("LoadSegment() failed:", err)
	}
	if err := m.LoadSegment(x86.DS, 0x40); err == nil {
		t.Fatal("execute-only load succeeded")
	}
	tr.Detach()

	expected := []models.Op{
		// initial state: table registers at reset, no mappings, no live segments
		&trace.OpDTable{Reg: uint8(x86.GDTR), Base: 0, Limit: 0xffff},
		&trace.OpDTable{Reg: uint8(x86.IDTR), Base: 0, Limit: 0xffff},
		&trace.OpMemMap{Addr: 0, Size: 0x2000, Prot: cpu.PROT_READ | cpu.PROT_WRITE, Desc: "gdt"},
	}
	for i, d := range testGdt {
		expected = append(expected, &trace.OpMemWrite{
			Addr:  0x800 + uint64(i*models.DescSize),
			Size:  models.DescSize,
			Value: uint64(d),
		})
	}
	expected = append(expected,
		&trace.OpDTable{Reg: uint8(x86.GDTR), Base: 0x800, Limit: 0x57},
		&trace.OpMemRead{Addr: 0x808, Size: 8, Value: uint64(kcode)},
		&trace.OpSegLoad{Reg: uint8(x86.CS), Sel: 0x08, Desc: uint64(kcode)},
		&trace.OpMemRead{Addr: 0x840, Size: 8, Value: uint64(xoCode)},
		&trace.OpFault{Vector: models.FAULT_GP, Sel: 0x40, Op: "code descriptor is execute-only"},
	)
	if count != len(expected) {
		t.Fatalf("op callback saw %d ops, expecting %d", count, len(expected))
	}

	r, err := trace.NewReader(io.NopCloser(bytes.NewReader(buf.Bytes())))
	if err != nil {
		t.Fatal("NewReader() failed:", err)
	}
	defer r.Close()
	if r.Header.Arch != "x86" || r.Arch.Name != "x86" {
		t.Fatalf("trace header names arch %q", r.Header.Arch)
	}
	for i := 0; ; i++ {
		op, err := r.Next()
		if err == io.EOF {
			if i != len(expected) {
				t.Fatalf("trace ended after %d ops, expecting %d", i, len(expected))
			}
			break
		}
		if err != nil {
			t.Fatal("Next() failed:", err)
		}
		if i >= len(expected) {
			t.Fatalf("trace has more than %d ops", len(expected))
		}
		got := make([]byte, op.Sizeof())
		op.Pack(got)
		want := make([]byte, expected[i].Sizeof())
		expected[i].Pack(want)
		if !bytes.Equal(got, want) {
			t.Fatalf("op %d is %x, expecting %x", i, got, want)
		}
	}
}

func TestReplayState(t *testing.T) {
	m := mkMachine(t)
	var buf bufCloser
	tr, err := trace.NewTrace(m, &models.TraceConfig{TraceWriter: &buf})
	if err != nil {
		t.Fatal("NewTrace() failed:", err)
	}
	if err := tr.Attach(); err != nil {
		t.Fatal("Attach() failed:", err)
	}
	mkGdt(t, m, testGdt)
	if err := m.LoadSegment(x86.CS, 0x08); err != nil {
		t.Fatal("LoadSegment() failed:", err)
	}
	if err := m.LoadSegment(x86.DS, 0x40); err == nil {
		t.Fatal("execute-only load succeeded")
	}
	tr.Detach()

	r, err := trace.NewReader(io.NopCloser(bytes.NewReader(buf.Bytes())))
	if err != nil {
		t.Fatal("NewReader() failed:", err)
	}
	defer r.Close()
	replay := trace.NewReplay(r.Arch, r.Header.Order)
	for {
		op, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal("Next() failed:", err)
		}
		replay.Feed(op)
	}

	if dt := replay.Tables[x86.GDTR]; dt.Base != 0x800 || dt.Limit != 0x57 {
		t.Fatalf("replayed gdtr is %s", dt)
	}
	if seg := replay.Segs[x86.CS]; seg.Selector != 0x08 || seg.Base != 0 || seg.Limit != 0xffffffff {
		t.Fatalf("replayed cs is %s", seg)
	}
	if replay.Fault == nil || replay.Fault.Vector != models.FAULT_GP {
		t.Fatalf("replayed fault is %v", replay.Fault)
	}
	if val, err := replay.Mem.ReadUint(0x808, 8, 0); err != nil || val != uint64(kcode) {
		t.Fatalf("replayed memory at 0x808 is %#x (%v)", val, err)
	}
}
