package trace

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/lunixbochs/segwalk/go/models"
)

// these OPs are ordered to be semi-valid, so not by number
var allOps = []models.Op{
	&OpNop{},
	&OpMemMap{0x1000, 0x1000, 7, ""},
	&OpMemMap{0x2000, 0x1000, 3, "gdt"},
	&OpMemProt{0x2000, 0x1000, 1},
	&OpDTable{23, 0x2000, 0x2f},
	&OpMemWrite{0x2000, 8, 0x00cf9a000000ffff},
	&OpMemRead{0x2008, 8, 0x00cf92000000ffff},
	&OpSegLoad{15, 0x08, 0x00cf9a000000ffff},
	&OpFault{13, 0x30, "selector 0x30 out of gdt bounds"},
	&OpMemUnmap{0x1000, 0x1000},
}

func TestOpRoundTrip(t *testing.T) {
	for _, op := range allOps {
		buf := make([]byte, op.Sizeof())
		op.Pack(buf)
		op2, n, err := Unpack(bytes.NewReader(buf))
		if err != nil {
			t.Fatal(err)
		}
		if n != len(buf) {
			t.Errorf("short unpack: %d != %d", n, len(buf))
		}

		buf2 := make([]byte, op2.Sizeof())
		op2.Pack(buf2)
		if !bytes.Equal(buf, buf2) {
			t.Errorf("encoded forms differ: %x != %x", buf, buf2)
		}
	}
}

func TestOpStream(t *testing.T) {
	var buf bytes.Buffer
	for _, op := range allOps {
		tmp := make([]byte, op.Sizeof())
		op.Pack(tmp)
		buf.Write(tmp)
	}
	r := bytes.NewReader(buf.Bytes())
	for i := 0; r.Len() > 0; i++ {
		op, _, err := Unpack(r)
		if err != nil {
			t.Fatal(err)
		}
		tmp := make([]byte, op.Sizeof())
		op.Pack(tmp)
		ref := make([]byte, allOps[i].Sizeof())
		allOps[i].Pack(ref)
		if !bytes.Equal(tmp, ref) {
			t.Errorf("op %d decoded wrong: %x != %x", i, tmp, ref)
		}
	}
}

func TestUnknownOp(t *testing.T) {
	if _, _, err := Unpack(bytes.NewReader([]byte{0xff})); err == nil {
		t.Fatal("expected error on unknown op")
	}
}

func BenchmarkPack(b *testing.B) {
	op := &OpMemRead{0x1000, 8, 0x00cf9a000000ffff}
	for i := 0; i < b.N; i++ {
		tmp := make([]byte, op.Sizeof())
		op.Pack(tmp)
	}
}

func BenchmarkUnpack(b *testing.B) {
	op := &OpMemRead{0x1000, 8, 0x00cf9a000000ffff}
	tmp := make([]byte, op.Sizeof())
	op.Pack(tmp)
	r := bytes.NewReader(tmp)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Seek(0, 0)
		if _, _, err := Unpack(r); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkJsonPack(b *testing.B) {
	op := &OpSegLoad{15, 0x08, 0x00cf9a000000ffff}
	if _, err := json.Marshal(op); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		op.MarshalJSON()
	}
}
