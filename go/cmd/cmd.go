package cmd

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	segwalk "github.com/lunixbochs/segwalk/go"
	"github.com/lunixbochs/segwalk/go/boot"
	"github.com/lunixbochs/segwalk/go/models"
	"github.com/lunixbochs/segwalk/go/models/trace"
	"github.com/lunixbochs/segwalk/go/seg"
)

// SegwalkCmd wires flags into a config, boots a machine, and runs the probe.
// Subcommands hook the Setup*/RunProbe funcs to change any step.
type SegwalkCmd struct {
	Config  *models.Config
	Machine models.Machine
	Trace   *trace.Trace
	Flags   *flag.FlagSet

	SetupFlags   func() error
	SetupMachine func() error
	RunProbe     func() error
	Teardown     func()

	// NoBoot leaves the machine at reset state: nothing mapped, table
	// registers at base 0 limit 0xffff, segment caches unusable.
	NoBoot bool
}

func NewSegwalkCmd() *SegwalkCmd {
	fs := flag.NewFlagSet("cli", flag.ExitOnError)
	return &SegwalkCmd{Flags: fs}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func (c *SegwalkCmd) PrintError(err error) {
	// print an error, and a stacktrace if available
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		// parse full path and method name for each stack frame
		var frames [][]string
		for _, f := range err.StackTrace() {
			fullpath := ""
			fileline := fmt.Sprintf("%s:%d", f, f)
			method := fmt.Sprintf("%n", f)

			frame := fmt.Sprintf("%+s", f)
			tmp := strings.SplitN(frame, "\n", 3)
			if len(tmp) == 2 {
				pathsplit := strings.Split(tmp[0], "/")
				method = pathsplit[len(pathsplit)-1]
				fullpath = strings.TrimSpace(tmp[1])
			}
			frames = append(frames, []string{fullpath, fileline, method})
			if method == "main.main" {
				break
			}
		}
		// calculate column widths
		widths := make([]int, len(frames))
		for _, f := range frames {
			for i, s := range f {
				if len(s) > widths[i] {
					widths[i] = len(s)
				}
			}
		}
		// print pretty stacktrace
		for _, f := range frames {
			method := f[2]
			for i := 0; i < 2; i++ {
				if widths[i] > 0 {
					pad := strings.Repeat(" ", widths[i]-len(f[i]))
					fmt.Fprintf(os.Stderr, "%s%s | ", f[i], pad)
				}
			}
			fmt.Fprintf(os.Stderr, "%s()\n", method)
		}
	}
}

func (c *SegwalkCmd) Run(argv []string) {
	fs := c.Flags

	archName := fs.String("arch", "x86", "machine architecture (x86, x86_64)")
	verbose := fs.Bool("v", false, "show a register diff after the probe")
	color := fs.Bool("color", false, "color the register diff")
	outfile := fs.String("o", "", "redirect output to file (default stderr)")
	tracefile := fs.String("to", "", "binary trace output file")
	memsize := fs.Uint64("mem", 0, "guest RAM size in bytes")

	// probe flags
	table := fs.String("table", "gdt", "descriptor table to walk (gdt, idt)")
	walk := fs.String("walk", "raw", "walk bound: 'raw' uses the limit value as a slot count (the historical dump), 'entries' walks whole descriptors")
	decode := fs.Bool("decode", false, "list decoded descriptors after the raw walk")
	noreload := fs.Bool("noreload", false, "skip the code segment reload step")
	sel := fs.Uint64("sel", 0x08, "selector for the reload step")
	pnames := []string{"table", "walk", "decode", "noreload", "sel"}

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		var flags []*flag.Flag
		var pflags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) {
			for _, name := range pnames {
				if name == f.Name {
					pflags = append(pflags, f)
					return
				}
			}
			flags = append(flags, f)
		})
		models.PrintFlags(flags)
		fmt.Fprintf(os.Stderr, "\nProbe Options:\n")
		models.PrintFlags(pflags)
		fmt.Fprintf(os.Stderr, "\nExample:\n  %s -walk entries -decode -to gdt.trace\n", os.Args[0])
	}
	if c.SetupFlags != nil {
		if err := c.SetupFlags(); err != nil {
			panic(err)
		}
	}
	fs.Parse(argv[1:])

	config := &models.Config{
		Arch:    *archName,
		Color:   *color,
		Verbose: *verbose,

		Table:    *table,
		Walk:     *walk,
		Decode:   *decode,
		NoReload: *noreload,
		Sel:      uint16(*sel),

		MemSize: *memsize,

		Trace: models.TraceConfig{
			Tracefile: *tracefile,
		},
	}
	c.Config = config

	if *outfile != "" {
		out, err := os.OpenFile(*outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			panic(err)
		}
		config.Output = out
	}

	m, err := segwalk.New(config)
	if err != nil {
		c.PrintError(err)
		os.Exit(1)
	}
	c.Machine = m

	teardown := func() {
		if c.Teardown != nil {
			c.Teardown()
		}
		if c.Trace != nil {
			c.Trace.Detach()
			c.Trace = nil
		}
		m.Close()
	}
	defer teardown()

	if c.SetupMachine != nil {
		if err := c.SetupMachine(); err != nil {
			c.PrintError(err)
			teardown()
			os.Exit(1)
		}
	}

	// attach the trace before boot so the boot writes land in it too
	if config.Trace.Tracefile != "" || config.Trace.TraceWriter != nil {
		t, err := trace.NewTrace(m, &config.Trace)
		if err != nil {
			c.PrintError(err)
			teardown()
			os.Exit(1)
		}
		if err := t.Attach(); err != nil {
			c.PrintError(err)
			teardown()
			os.Exit(1)
		}
		c.Trace = t
	}

	if !c.NoBoot {
		if _, err := boot.Setup(m, boot.Options{}); err != nil {
			c.PrintError(err)
			teardown()
			os.Exit(1)
		}
	}

	var diff *models.StatusDiff
	if *verbose {
		diff = &models.StatusDiff{M: m}
		diff.Changes(false)
	}

	if c.RunProbe != nil {
		err = c.RunProbe()
	} else {
		_, err = seg.Probe(m, m, config)
	}
	if err != nil {
		if f, ok := errors.Cause(err).(*models.Fault); ok {
			// a fault is the machine's answer, not a tool failure
			m.Printf("%s\n", f)
			teardown()
			os.Exit(1)
		}
		c.PrintError(err)
		teardown()
		os.Exit(1)
	}
	if diff != nil {
		if changes := diff.Changes(true); changes.Count() > 0 {
			m.Printf("%s", changes.String(config.Color))
		}
	}
}
