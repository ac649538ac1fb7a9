package dump

import (
	"github.com/lunixbochs/segwalk/go/cmd"
)

func Main(args []string) {
	cmd.NewSegwalkCmd().Run(args)
}

func init() { cmd.Register("dump", "walk a descriptor table and reload cs", Main) }
