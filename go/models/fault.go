package models

import "fmt"

// exception vectors raised by descriptor validation
const (
	FAULT_TS = 10 // invalid TSS
	FAULT_NP = 11 // segment not present
	FAULT_SS = 12 // stack-segment fault
	FAULT_GP = 13 // general protection fault
)

func FaultName(vector int) string {
	switch vector {
	case FAULT_TS:
		return "#TS"
	case FAULT_NP:
		return "#NP"
	case FAULT_SS:
		return "#SS"
	case FAULT_GP:
		return "#GP"
	}
	return fmt.Sprintf("#%d", vector)
}

// Fault is a processor exception raised during a privileged operation.
// Raising one halts the machine until ClearFault. Use errors.Cause and a
// type assertion to tell a fault apart from an ordinary error.
type Fault struct {
	Vector   int
	Selector Selector
	Op       string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s(%s) %s", FaultName(f.Vector), f.Selector, f.Op)
}
