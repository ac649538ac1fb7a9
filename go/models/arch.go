package models

import (
	"sort"
	"testing"

	"github.com/lunixbochs/fvbommel-util/sortorder"

	"github.com/lunixbochs/segwalk/go/models/cpu"
)

type Reg struct {
	Enum    int
	Name    string
	Default bool
}

type RegVal struct {
	Reg
	Val uint64
}

type regList []Reg

func (r regList) Len() int           { return len(r) }
func (r regList) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r regList) Less(i, j int) bool { return sortorder.NaturalLess(r[i].Name, r[j].Name) }

type regMap map[int]string

func (r regMap) Items() regList {
	ret := make(regList, 0, len(r))
	for e, n := range r {
		ret = append(ret, Reg{Enum: e, Name: n})
	}
	return ret
}

// the subset of a machine needed to dump registers
type RegReader interface {
	RegRead(enum int) (uint64, error)
}

type Arch struct {
	Name string
	Bits int

	PC int
	SP int

	// segment register roles, so validation can tell a code segment load
	// from a stack or data one without knowing the arch's enum values
	CS   int
	SS   int
	LDTR int
	TR   int
	// descriptor-table register roles
	GDTR int
	IDTR int

	// selector-holding segment registers, in hardware dump order
	SRegs []int
	// descriptor-table registers (not part of the ordinary register file)
	DTables []Reg

	Regs regMap
	// register names included in diffs and default dumps
	DefaultRegs []string

	// sorted for RegDump
	regList regList
}

// SmokeTest checks that an arch's role registers, segment registers, and
// table registers are wired consistently, and that a register file built
// from it works.
func (a *Arch) SmokeTest(t *testing.T) {
	for _, enum := range a.SRegs {
		if _, ok := a.Regs[enum]; !ok {
			t.Fatalf("%s: segment register %d missing from register file", a.Name, enum)
		}
	}
	for _, enum := range []int{a.PC, a.SP, a.CS, a.SS, a.LDTR, a.TR} {
		if _, ok := a.Regs[enum]; !ok {
			t.Fatalf("%s: role register %d missing from register file", a.Name, enum)
		}
	}
	if a.DTableName(a.GDTR) == "" || a.DTableName(a.IDTR) == "" {
		t.Fatal(a.Name + ": table registers missing names")
	}
	if _, ok := a.Regs[a.GDTR]; ok {
		t.Fatal(a.Name + ": table registers do not belong in the register file")
	}
	r := cpu.NewRegs(uint(a.Bits), a.RegEnums())
	if err := r.RegWrite(a.SP, 0x1000); err != nil {
		t.Fatal(err)
	}
	val, err := r.RegRead(a.SP)
	if err != nil {
		t.Fatal(err)
	}
	if val != 0x1000 {
		t.Fatal(a.Name + " failed to read/write stack pointer")
	}
}

// every ordinary register enum, for sizing a register file
func (a *Arch) RegEnums() []int {
	ret := make([]int, 0, len(a.Regs))
	for e := range a.Regs {
		ret = append(ret, e)
	}
	return ret
}

func (a *Arch) RegName(enum int) string {
	if name, ok := a.Regs[enum]; ok {
		return name
	}
	for _, r := range a.DTables {
		if r.Enum == enum {
			return r.Name
		}
	}
	return ""
}

func (a *Arch) DTableName(enum int) string {
	for _, r := range a.DTables {
		if r.Enum == enum {
			return r.Name
		}
	}
	return ""
}

func (a *Arch) sorted() regList {
	if a.regList == nil {
		rl := a.Regs.Items()
		defaults := make(map[string]bool, len(a.DefaultRegs))
		for _, name := range a.DefaultRegs {
			defaults[name] = true
		}
		for i := range rl {
			rl[i].Default = defaults[rl[i].Name]
		}
		sort.Sort(rl)
		a.regList = rl
	}
	return a.regList
}

func (a *Arch) RegDump(r RegReader) ([]RegVal, error) {
	rl := a.sorted()
	ret := make([]RegVal, len(rl))
	for i, reg := range rl {
		val, err := r.RegRead(reg.Enum)
		if err != nil {
			return nil, err
		}
		ret[i] = RegVal{reg, val}
	}
	return ret, nil
}
