package x86_64

import (
	"github.com/lunixbochs/segwalk/go/models"
)

var Arch = &models.Arch{
	Name: "x86_64",
	Bits: 64,

	PC:   RIP,
	SP:   RSP,
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
		RIP:    "rip",
		RSP:    "rsp",
		RBP:    "rbp",
		RAX:    "rax",
		RBX:    "rbx",
		RCX:    "rcx",
		RDX:    "rdx",
		RSI:    "rsi",
		RDI:    "rdi",
		R8:     "r8",
		R9:     "r9",
		R10:    "r10",
		R11:    "r11",
		R12:    "r12",
		R13:    "r13",
		R14:    "r14",
		R15:    "r15",
		RFLAGS: "rflags",

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
		"rip", "rsp", "rflags",
	},
}
