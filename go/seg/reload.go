package seg

import (
	"github.com/lunixbochs/segwalk/go/models"
)

// ReloadCS reloads the code segment register through the machine's full
// protection checks. Success changes CS and nothing else; a violation comes
// back as a *models.Fault and halts the machine.
func ReloadCS(m models.Machine, sel models.Selector) error {
	return m.LoadSegment(m.Arch().CS, sel)
}

// ReloadDataSegments points every data segment register at sel, loading the
// stack segment last. CS and the system registers are left alone.
func ReloadDataSegments(m models.Machine, sel models.Selector) error {
	a := m.Arch()
	for _, reg := range a.SRegs {
		if reg == a.CS || reg == a.SS || reg == a.TR || reg == a.LDTR {
			continue
		}
		if err := m.LoadSegment(reg, sel); err != nil {
			return err
		}
	}
	return m.LoadSegment(a.SS, sel)
}
