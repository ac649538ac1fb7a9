package main

import (
	"os"

	"github.com/lunixbochs/segwalk/go/cmd"
)

func main() {
	cmd.NewSegwalkCmd().Run(os.Args)
}
