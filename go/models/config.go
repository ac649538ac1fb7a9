package models

import (
	"io"
	"os"
)

type Config struct {
	Arch    string
	Color   bool
	Verbose bool

	// which table register to walk, and how to interpret its limit
	Table string // "gdt" or "idt"
	Walk  string // "raw" or "entries"
	// list decoded descriptors after the raw walk
	Decode bool

	// code segment reload step
	NoReload bool
	Sel      uint16

	// binary trace recording
	Trace TraceConfig

	Output io.WriteCloser

	// boot layout
	MemSize   uint64
	TableAddr uint64
	InfoAddr  uint64
}

type TraceConfig struct {
	Tracefile   string
	TraceWriter io.WriteCloser

	// OpCallback receives each op as it is recorded
	OpCallback []func(Op)
}

func (c *Config) Init() *Config {
	if c.Arch == "" {
		c.Arch = "x86"
	}
	if c.Table == "" {
		c.Table = "gdt"
	}
	if c.Walk == "" {
		c.Walk = "raw"
	}
	if c.Sel == 0 {
		c.Sel = 0x08
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	if c.MemSize == 0 {
		c.MemSize = 0x400000
	}
	if c.TableAddr == 0 {
		c.TableAddr = 0x800
	}
	if c.InfoAddr == 0 {
		c.InfoAddr = 0x2000
	}
	return c
}
