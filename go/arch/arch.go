package arch

import (
	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/arch/x86"
	"github.com/lunixbochs/segwalk/go/arch/x86_64"
	"github.com/lunixbochs/segwalk/go/models"
)

var archMap = map[string]*models.Arch{
	"x86":    x86.Arch,
	"x86_64": x86_64.Arch,
}

func GetArch(name string) (*models.Arch, error) {
	a, ok := archMap[name]
	if !ok {
		return nil, errors.Errorf("Arch '%s' not found.", name)
	}
	return a, nil
}
