package x86

import (
	"github.com/lunixbochs/segwalk/go/models"
)

var Arch = &models.Arch{
	Name: "x86",
	Bits: 32,

	PC:   EIP,
	SP:   ESP,
	CS:   CS,
	SS:   SS,
	LDTR: LDTR,
	TR:   TR,
	GDTR: GDTR,
	IDTR: IDTR,

	SRegs: []int{CS, DS, ES, FS, GS, SS, TR, LDTR},
	DTables: []models.Reg{
		{Enum: GDTR, Name: "gdtr"},
		{Enum: IDTR, Name: "idtr"},
	},

	Regs: map[int]string{
		EIP:    "eip",
		ESP:    "esp",
		EBP:    "ebp",
		EAX:    "eax",
		EBX:    "ebx",
		ECX:    "ecx",
		EDX:    "edx",
		ESI:    "esi",
		EDI:    "edi",
		EFLAGS: "eflags",

		CR0: "cr0",
		CR2: "cr2",
		CR3: "cr3",
		CR4: "cr4",

		CS:   "cs",
		DS:   "ds",
		ES:   "es",
		FS:   "fs",
		GS:   "gs",
		SS:   "ss",
		LDTR: "ldtr",
		TR:   "tr",
	},
	DefaultRegs: []string{
		"cs", "ds", "es", "fs", "gs", "ss",
		"eip", "esp", "eflags",
	},
}
