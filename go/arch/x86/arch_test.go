package x86

import (
	"testing"
)

func TestX86(t *testing.T) { Arch.SmokeTest(t) }
