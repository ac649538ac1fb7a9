package x86

// register enums, used as indices into the machine's register file
const (
	EAX = iota + 1
	EBX
	ECX
	EDX
	ESI
	EDI
	EBP
	ESP
	EIP
	EFLAGS

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
