package x86_64

import (
	"testing"
)

func TestX86_64(t *testing.T) { Arch.SmokeTest(t) }
