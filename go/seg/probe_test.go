package seg

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/models"
)

func TestProbe(t *testing.T) {
	m := mkMachine(t)
	mkBoot(t, m)
	log := &lines{}
	state, err := Probe(m, log, m.Config())
	if err != nil {
		t.Fatal("Probe() failed:", err)
	}
	if state != Reloaded {
		t.Fatalf("probe stopped at %s, expecting reloaded", state)
	}

	want := []string{"limit : 2f\n", "base : 800\n"}
	for _, d := range []models.SegmentDescriptor{0, kcode, kdata, ucode, udata, 0x890030000067} {
		want = append(want, fmt.Sprintf("desc : %#x\n", uint64(d)))
	}
	// the raw-limit policy runs past the table into zero fill
	for len(want) < 2+0x2f {
		want = append(want, "desc : 0x0\n")
	}
	if len(log.out) != len(want) {
		t.Fatalf("probe made %d reports, expecting %d", len(log.out), len(want))
	}
	for i, line := range log.out {
		if line != want[i] {
			t.Fatalf("line %d is %q, expecting %q", i, line, want[i])
		}
	}

	cs, err := m.RegRead(m.Arch().CS)
	if err != nil {
		t.Fatal("RegRead() failed:", err)
	}
	if cs != 0x08 {
		t.Fatalf("cs is %#x after probe, expecting 0x8", cs)
	}
}

func TestProbeEntryPolicy(t *testing.T) {
	m := mkMachine(t)
	mkBoot(t, m)
	log := &lines{}
	config := &models.Config{Walk: "entries", Sel: 0x08}
	state, err := Probe(m, log, config)
	if err != nil {
		t.Fatal("Probe() failed:", err)
	}
	if state != Reloaded {
		t.Fatalf("probe stopped at %s, expecting reloaded", state)
	}
	if len(log.out) != 2+6 {
		t.Fatalf("probe made %d reports, expecting %d", len(log.out), 2+6)
	}
}

func TestProbeDecode(t *testing.T) {
	m := mkMachine(t)
	mkBoot(t, m)
	log := &lines{}
	config := &models.Config{Walk: "entries", Decode: true, NoReload: true}
	state, err := Probe(m, log, config)
	if err != nil {
		t.Fatal("Probe() failed:", err)
	}
	if state != Reported {
		t.Fatalf("probe stopped at %s, expecting reported", state)
	}
	if len(log.out) != 2+6+12 {
		t.Fatalf("probe made %d reports, expecting %d", len(log.out), 2+6+12)
	}
	if log.out[8] != "entry base : 0x0\n" {
		t.Fatalf("first decode line is %q", log.out[8])
	}
	if log.out[19] != "entry limit : 0x67\n" {
		t.Fatalf("last decode line is %q", log.out[19])
	}
}

func TestProbeNoReload(t *testing.T) {
	m := mkMachine(t)
	mkBoot(t, m)
	log := &lines{}
	config := &models.Config{NoReload: true}
	state, err := Probe(m, log, config)
	if err != nil {
		t.Fatal("Probe() failed:", err)
	}
	if state != Reported {
		t.Fatalf("probe stopped at %s, expecting reported", state)
	}
	cs, err := m.RegRead(m.Arch().CS)
	if err != nil {
		t.Fatal("RegRead() failed:", err)
	}
	if cs != 0 {
		t.Fatalf("cs is %#x without a reload", cs)
	}
}

func TestProbeHalted(t *testing.T) {
	m := mkMachine(t)
	mkBoot(t, m)
	if err := ReloadCS(m, SelKData); err == nil {
		t.Fatal("expected fault")
	}
	log := &lines{}
	state, err := Probe(m, log, m.Config())
	if err == nil {
		t.Fatal("halted machine accepted a probe")
	}
	if state != Unread {
		t.Fatalf("probe reached %s on a halted machine", state)
	}
	if len(log.out) != 0 {
		t.Fatalf("halted probe still made %d reports", len(log.out))
	}
}

func TestProbeBadConfig(t *testing.T) {
	m := mkMachine(t)
	mkBoot(t, m)
	for _, config := range []*models.Config{
		{Table: "ldt"},
		{Walk: "bytes"},
	} {
		log := &lines{}
		state, err := Probe(m, log, config)
		if err == nil {
			t.Fatal("expected config error")
		}
		if state != Unread {
			t.Fatalf("probe reached %s on a bad config", state)
		}
		if _, ok := errors.Cause(err).(*models.Fault); ok {
			t.Fatalf("config error must not be a fault: %s", err)
		}
		if len(log.out) != 0 {
			t.Fatalf("failed probe still made %d reports", len(log.out))
		}
	}
}

func TestProbeUnmapped(t *testing.T) {
	m := mkMachine(t)
	if err := m.DTableWrite(m.Arch().GDTR, models.DescTable{Base: 0x100000, Limit: 7}); err != nil {
		t.Fatal("DTableWrite() failed:", err)
	}
	log := &lines{}
	state, err := Probe(m, log, m.Config())
	if err == nil {
		t.Fatal("expected walk error")
	}
	if state != Snapshotted {
		t.Fatalf("probe reached %s, expecting snapshotted", state)
	}
	// the limit and base lines land before the walk dies
	if len(log.out) != 2 {
		t.Fatalf("probe made %d reports, expecting 2", len(log.out))
	}
}

func TestProbeReloadFault(t *testing.T) {
	m := mkMachine(t)
	mkBoot(t, m)
	log := &lines{}
	config := &models.Config{Sel: uint16(SelKData)}
	state, err := Probe(m, log, config)
	if err == nil {
		t.Fatal("expected fault")
	}
	if state != Reported {
		t.Fatalf("probe reached %s, expecting reported", state)
	}
	f, ok := errors.Cause(err).(*models.Fault)
	if !ok {
		t.Fatalf("expected a fault, got: %s", err)
	}
	if f.Vector != models.FAULT_GP || f.Selector != SelKData {
		t.Fatalf("got %s", f)
	}
	if !m.Halted() {
		t.Fatal("fault did not halt the machine")
	}
	cs, err := m.RegRead(m.Arch().CS)
	if err != nil {
		t.Fatal("RegRead() failed:", err)
	}
	if cs != 0 {
		t.Fatalf("failed reload still wrote cs: %#x", cs)
	}
}

// probeEvents interleaves report lines and segment loads so the test can
// check their relative order
type probeEvents struct {
	events []string
}

func (p *probeEvents) Printf(format string, args ...interface{}) {
	p.events = append(p.events, "report")
}

func TestProbeOrder(t *testing.T) {
	m := mkMachine(t)
	mkBoot(t, m)
	ev := &probeEvents{}
	m.HookSegAdd(nil, func(reg int, sel models.Selector, seg models.Segment, fault *models.Fault) {
		ev.events = append(ev.events, fmt.Sprintf("reload %s", sel))
	})
	if _, err := Probe(m, ev, m.Config()); err != nil {
		t.Fatal("Probe() failed:", err)
	}
	if len(ev.events) != 2+0x2f+1 {
		t.Fatalf("saw %d events, expecting %d", len(ev.events), 2+0x2f+1)
	}
	last := ev.events[len(ev.events)-1]
	if last != "reload 0x8" {
		t.Fatalf("last event is %q, expecting the reload", last)
	}
	for i, e := range ev.events[:len(ev.events)-1] {
		if e != "report" {
			t.Fatalf("event %d is %q before the reload", i, e)
		}
	}
}
