package cpu

// hook types for Hooks.HookAdd()
const (
	// hook (before) each memory read/write
	HOOK_MEM_READ  = 1
	HOOK_MEM_WRITE = 2

	// hook all memory errors
	HOOK_MEM_ERR = 8
)

// these errors are used for HOOK_MEM_ERR and MemError.Enum
const (
	MEM_READ_UNMAPPED = iota + 1
	MEM_WRITE_UNMAPPED
	MEM_FETCH_UNMAPPED
	MEM_READ_PROT
	MEM_WRITE_PROT
	MEM_FETCH_PROT
)

// these constants are used for memory protections
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// these constants are used in a hook to specify the type of memory access
const (
	MEM_WRITE = 16
	MEM_READ  = 17
	MEM_FETCH = 18
)
