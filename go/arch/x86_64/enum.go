package x86_64

// register enums, used as indices into the machine's register file
const (
	RAX = iota + 1
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RIP
	RFLAGS

	CR0
	CR2
	CR3
	CR4

	CS
	DS
	ES
	FS
	GS
	SS
	LDTR
	TR

	// table registers, held outside the register file
	GDTR
	IDTR
)
