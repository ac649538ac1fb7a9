package main

import (
	"github.com/lunixbochs/segwalk/go/cmd"

	_ "github.com/lunixbochs/segwalk/go/cmd/dump"
	_ "github.com/lunixbochs/segwalk/go/cmd/replay"
	_ "github.com/lunixbochs/segwalk/go/cmd/shell"
)

func main() { cmd.Main() }
