package seg

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/models"
)

// ProbeState is how far a probe got before stopping.
type ProbeState int

const (
	Unread ProbeState = iota
	Snapshotted
	Reported
	Reloaded
)

func (s ProbeState) String() string {
	switch s {
	case Unread:
		return "unread"
	case Snapshotted:
		return "snapshotted"
	case Reported:
		return "reported"
	case Reloaded:
		return "reloaded"
	}
	return fmt.Sprintf("ProbeState(%d)", int(s))
}

// Probe runs the diagnostic sequence of the old dump tool: snapshot the
// table register, report its limit and base, walk the table, then reload CS.
// The reload runs strictly after all reporting and nothing is re-read
// afterwards. Probe returns the state it reached; config picks the table,
// the walk policy, the optional decoded listing, and the reload selector.
func Probe(m models.Machine, log Logger, config *models.Config) (ProbeState, error) {
	state := Unread
	if m.Halted() {
		return state, errors.Errorf("machine halted: %s", m.Fault())
	}
	reg, err := TableReg(m.Arch(), config.Table)
	if err != nil {
		return state, err
	}
	policy, err := Policy(config.Walk)
	if err != nil {
		return state, err
	}

	dt, err := ReadTable(m, reg)
	if err != nil {
		return state, err
	}
	state = Snapshotted

	log.Printf("limit : %x\n", dt.Limit)
	log.Printf("base : %x\n", dt.Base)
	w := &Walker{M: m, Log: log, Policy: policy}
	if err := w.Walk(dt); err != nil {
		return state, err
	}
	state = Reported
	if config.Decode {
		if err := w.Decode(dt); err != nil {
			return state, err
		}
	}

	if config.NoReload {
		return state, nil
	}
	if err := ReloadCS(m, models.Selector(config.Sel)); err != nil {
		return state, err
	}
	return Reloaded, nil
}
