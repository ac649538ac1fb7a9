package cpu

import (
	"encoding/binary"
	"fmt"
	"github.com/pkg/errors"
	"testing"
)

func callAll(h *Hooks) {
	h.OnMem(MEM_WRITE, 0x1002, 4, -1)
	h.OnFault(MEM_WRITE_UNMAPPED, 0x1003, 8, -2)
}

func makeHooks() (*Mem, *Hooks) {
	mem := NewMem(64, binary.LittleEndian)
	return mem, NewHooks(nil, mem)
}

// this test ensures it's safe to dispatch all hooks while empty
func TestHooksEmpty(t *testing.T) {
	_, h := makeHooks()
	callAll(h)
}

// checks if two lists of strings are equal
func strseq(a []string, b []string) error {
	if len(a) != len(b) {
		return errors.Errorf("output list length mismatch")
	}
	for i, v := range a {
		if v != b[i] {
			return errors.Errorf("output list value mismatch: %s != %s", v, b[i])
		}
	}
	return nil
}

// generic hook tests
func TestHooks(t *testing.T) {
	_, h := makeHooks()
	compare := []string{
		"mem(16, 0x1002, 4, -0x1)", "fault(2, 0x1003, 8, -0x2)",
	}
	var results []string
	writeCb := func(_ Cpu, access int, addr uint64, size int, val int64) {
		results = append(results, fmt.Sprintf("mem(%d, %#x, %d, %#x)", access, addr, size, val))
	}
	faultCb := func(_ Cpu, access int, addr uint64, size int, val int64) bool {
		results = append(results, fmt.Sprintf("fault(%d, %#x, %d, %#x)", access, addr, size, val))
		return val == 42
	}
	var hooks []Hook
	addHooks := func(h *Hooks) {
		var hh Hook
		var err error
		if hh, err = h.HookAdd(HOOK_MEM_WRITE, writeCb, 1, 0); err != nil {
			t.Fatal(err)
		}
		hooks = append(hooks, hh)
		if hh, err = h.HookAdd(HOOK_MEM_ERR, faultCb, 1, 0); err != nil {
			t.Fatal(err)
		}
		hooks = append(hooks, hh)
	}
	removeHooks := func(h *Hooks) {
		for _, v := range hooks {
			if err := h.HookDel(v); err != nil {
				t.Fatal(err)
			}
		}
		hooks = nil
	}
	// test add, call
	addHooks(h)
	callAll(h)

	if err := strseq(results, compare); err != nil {
		t.Fatal(err)
	}
	results = nil

	// test remove, add, remove, add, call
	removeHooks(h)
	addHooks(h)
	removeHooks(h)
	addHooks(h)
	callAll(h)

	if err := strseq(results, compare); err != nil {
		t.Fatal(err)
	}
	results = nil

	// test remove, remove, add, add, call
	removeHooks(h)
	removeHooks(h)
	addHooks(h)
	addHooks(h)
	callAll(h)

	compare2 := make([]string, 0, len(compare)*2)
	for _, v := range compare {
		compare2 = append(append(compare2, v), v)
	}
	if err := strseq(results, compare2); err != nil {
		t.Fatal(err)
	}
	results = nil

	if h.OnFault(MEM_WRITE_UNMAPPED, 0, 0, 42) != true {
		t.Fatal("OnFault positive return does not seem to work")
	}
	if h.OnFault(MEM_WRITE_UNMAPPED, 0, 0, 0) != false {
		t.Fatal("OnFault negative return does not seem to work")
	}
}

// positive and negative tests for each hook type with start-end range enabled
func TestHookRange(t *testing.T) {
	_, h := makeHooks()
	// we should get 0x1000-0x1fff results, but not the 0x0 or 0x2000 results
	compare := []string{
		"mem(16, 0x1000, 8, 0x0)", "fault(2, 0x1000, 8, 0x0)",
		"mem(16, 0x1fff, 8, 0x0)",
	}
	var results []string
	writeCb := func(_ Cpu, access int, addr uint64, size int, val int64) {
		results = append(results, fmt.Sprintf("mem(%d, %#x, %d, %#x)", access, addr, size, val))
	}
	faultCb := func(_ Cpu, access int, addr uint64, size int, val int64) bool {
		results = append(results, fmt.Sprintf("fault(%d, %#x, %d, %#x)", access, addr, size, val))
		return false
	}
	if _, err := h.HookAdd(HOOK_MEM_WRITE, writeCb, 0x1000, 0x1fff); err != nil {
		t.Fatal(err)
	}
	if _, err := h.HookAdd(HOOK_MEM_ERR, faultCb, 0x1000, 0x1fff); err != nil {
		t.Fatal(err)
	}
	for addr := uint64(0); addr < 0x4000; addr += 0x1000 {
		h.OnMem(MEM_WRITE, addr, 8, 0)
		h.OnFault(MEM_WRITE_UNMAPPED, addr, 8, 0)
	}
	h.OnMem(MEM_WRITE, 0x1fff, 8, 0)
	if err := strseq(results, compare); err != nil {
		t.Fatal(err)
	}
	results = nil
}

// reads and writes through Mem should dispatch attached hooks, and read
// hooks should carry the value that was read
func TestHooksAttached(t *testing.T) {
	mem, h := makeHooks()
	if err := mem.MemMapProt(0x1000, 0x1000, PROT_READ|PROT_WRITE); err != nil {
		t.Fatal("failed to map memory:", err)
	}
	var results []string
	memCb := func(_ Cpu, access int, addr uint64, size int, val int64) {
		results = append(results, fmt.Sprintf("mem(%d, %#x, %d, %#x)", access, addr, size, val))
	}
	faultCb := func(_ Cpu, access int, addr uint64, size int, val int64) bool {
		results = append(results, fmt.Sprintf("fault(%d, %#x, %d)", access, addr, size))
		return false
	}
	if _, err := h.HookAdd(HOOK_MEM_READ|HOOK_MEM_WRITE, memCb, 1, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := h.HookAdd(HOOK_MEM_ERR, faultCb, 1, 0); err != nil {
		t.Fatal(err)
	}
	if err := mem.WriteUint(0x1000, 8, PROT_WRITE, 0x1122); err != nil {
		t.Fatal("hooked write failed:", err)
	}
	if _, err := mem.ReadUint(0x1000, 8, PROT_READ); err != nil {
		t.Fatal("hooked read failed:", err)
	}
	if _, err := mem.ReadUint(0x5000, 8, PROT_READ); err == nil {
		t.Fatal("unmapped read succeeded")
	}
	compare := []string{
		"mem(16, 0x1000, 8, 0x1122)",
		"mem(17, 0x1000, 8, 0x1122)",
		fmt.Sprintf("fault(%d, 0x5000, 8)", MEM_READ_UNMAPPED),
	}
	if err := strseq(results, compare); err != nil {
		t.Fatal(err)
	}
}

func BenchmarkHook(b *testing.B) {
	_, h := makeHooks()
	memCb := func(_ Cpu, access int, addr uint64, size int, val int64) {}
	if _, err := h.HookAdd(HOOK_MEM_READ, memCb, 0x1000, 0x1fff); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.OnMem(MEM_READ, 0x1000, 1, 0)
	}
}
