package shell

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/shibukawa/configdir"

	"github.com/lunixbochs/segwalk/go/boot"
	"github.com/lunixbochs/segwalk/go/cmd"
	"github.com/lunixbochs/segwalk/go/models"
	"github.com/lunixbochs/segwalk/go/seg"
)

type nullCloser struct{ io.Writer }

func (n *nullCloser) Close() error { return nil }

// Shell is an interactive prompt over one machine: every machine operation
// the probe composes is available as its own command, so bad selectors and
// broken tables can be poked at one step at a time.
type Shell struct {
	m      models.Machine
	config *models.Config
	rl     *readline.Instance
	diff   *models.StatusDiff
}

func NewShell(m models.Machine, config *models.Config) (*Shell, error) {
	// get history path
	configDirs := configdir.New("segwalk", "shell")
	cacheDir := configDirs.QueryCacheFolder()
	historyPath := ""
	if err := cacheDir.MkdirAll(); err == nil {
		historyPath = filepath.Join(cacheDir.Path, "history")
	}
	rl, err := readline.NewEx(&readline.Config{
		InterruptPrompt: "\n",
		HistoryFile:     historyPath,
	})
	if err != nil {
		return nil, err
	}
	// hijack machine output so it lands under the prompt
	if config.Output == os.Stderr {
		config.Output = &nullCloser{rl.Stderr()}
	}
	s := &Shell{m: m, config: config, rl: rl, diff: &models.StatusDiff{M: m}}
	s.diff.Changes(false)
	return s, nil
}

func (s *Shell) Close() {
	s.rl.Close()
}

func (s *Shell) setPrompt() {
	cs, _ := s.m.RegRead(s.m.Arch().CS)
	state := fmt.Sprintf("cs=%#x cpl=%d", cs, s.m.CPL())
	if s.m.Halted() {
		state = "halted"
	}
	s.rl.SetPrompt(fmt.Sprintf("[%s]> ", state))
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}

func (s *Shell) sregEnum(name string) (int, error) {
	a := s.m.Arch()
	for _, enum := range a.SRegs {
		if a.RegName(enum) == name {
			return enum, nil
		}
	}
	return 0, fmt.Errorf("unknown segment register: %s", name)
}

func (s *Shell) tableArg(args []string) (int, error) {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	return seg.TableReg(s.m.Arch(), name)
}

func (s *Shell) dispatch(line string) error {
	m := s.m
	a := m.Arch()
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	op, args := fields[0], fields[1:]
	switch op {
	case "help":
		m.Printf("%s", helpText)
	case "dtr":
		for _, dt := range a.DTables {
			table, err := m.DTableRead(dt.Enum)
			if err != nil {
				return err
			}
			m.Printf("%s: %s\n", dt.Name, table)
		}
	case "lgdt", "lidt":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s <base> <limit>", op)
		}
		base, err := parseUint(args[0])
		if err != nil {
			return err
		}
		limit, err := parseUint(args[1])
		if err != nil {
			return err
		}
		reg := a.GDTR
		if op == "lidt" {
			reg = a.IDTR
		}
		return m.DTableWrite(reg, models.DescTable{Base: base, Limit: uint16(limit)})
	case "walk":
		policy, err := seg.Policy(s.config.Walk)
		if err != nil {
			return err
		}
		reg, err := s.tableArg(args)
		if err != nil {
			return err
		}
		dt, err := seg.ReadTable(m, reg)
		if err != nil {
			return err
		}
		m.Printf("limit : %x\n", dt.Limit)
		m.Printf("base : %x\n", dt.Base)
		w := &seg.Walker{M: m, Log: m, Policy: policy}
		return w.Walk(dt)
	case "desc":
		reg, err := s.tableArg(args)
		if err != nil {
			return err
		}
		dt, err := seg.ReadTable(m, reg)
		if err != nil {
			return err
		}
		w := &seg.Walker{M: m, Log: m}
		return w.Decode(dt)
	case "probe":
		state, err := seg.Probe(m, m, s.config)
		m.Printf("probe stopped: %s\n", state)
		return err
	case "reload":
		sel := uint64(s.config.Sel)
		if len(args) > 0 {
			var err error
			if sel, err = parseUint(args[0]); err != nil {
				return err
			}
		}
		return seg.ReloadCS(m, models.Selector(sel))
	case "mov":
		if len(args) != 2 {
			return fmt.Errorf("usage: mov <sreg> <sel>")
		}
		enum, err := s.sregEnum(args[0])
		if err != nil {
			return err
		}
		sel, err := parseUint(args[1])
		if err != nil {
			return err
		}
		return m.LoadSegment(enum, models.Selector(sel))
	case "regs":
		vals, err := m.RegDump()
		if err != nil {
			return err
		}
		for _, r := range vals {
			m.Printf("%-6s %#x\n", r.Name, r.Val)
		}
	case "segs":
		for _, enum := range a.SRegs {
			sg, err := m.Segment(enum)
			if err != nil {
				return err
			}
			m.Printf("%-4s %s\n", a.RegName(enum), sg)
		}
	case "maps":
		for _, page := range m.Mappings() {
			m.Printf("%s\n", page)
		}
	case "mem":
		if len(args) != 2 {
			return fmt.Errorf("usage: mem <addr> <size>")
		}
		addr, err := parseUint(args[0])
		if err != nil {
			return err
		}
		size, err := parseUint(args[1])
		if err != nil {
			return err
		}
		mem, err := m.MemRead(addr, size)
		if err != nil {
			return err
		}
		for _, line := range models.HexDump(addr, mem, int(m.Bits())) {
			m.Printf("%s\n", line)
		}
	case "boot":
		_, err := boot.Setup(m, boot.Options{})
		return err
	case "save":
		if len(args) != 1 {
			return fmt.Errorf("usage: save <file>")
		}
		p, err := models.Save(m)
		if err != nil {
			return err
		}
		return ioutil.WriteFile(args[0], p, 0644)
	case "load":
		if len(args) != 1 {
			return fmt.Errorf("usage: load <file>")
		}
		p, err := ioutil.ReadFile(args[0])
		if err != nil {
			return err
		}
		return models.Restore(m, p)
	case "clearfault":
		m.ClearFault()
	default:
		return fmt.Errorf("unknown command: %s (try 'help')", op)
	}
	return nil
}

var helpText = `dtr                 print the descriptor-table registers
lgdt <base> <limit> write the gdt register (lidt for the idt)
walk [gdt|idt]      raw walk, as the probe reports it
desc [gdt|idt]      decoded descriptor listing
probe               run the full probe sequence
reload [sel]        reload cs (default from config)
mov <sreg> <sel>    load any segment register
regs                register dump
segs                segment register caches
maps                memory mappings
mem <addr> <size>   hexdump guest memory
boot                run the multiboot setup again
save/load <file>    machine image to/from disk
clearfault          unlatch a halted machine
`

func (s *Shell) Run() {
	defer s.Close()
	for {
		s.setPrompt()
		ln := s.rl.Line()
		if ln.Error == readline.ErrInterrupt {
			continue
		} else if ln.Error == io.EOF || ln.CanBreak() {
			break
		}
		line := strings.TrimSpace(ln.Line)
		if line == "exit" || line == "quit" {
			break
		}
		if err := s.dispatch(line); err != nil {
			s.m.Printf("%s\n", err)
		}
		if changes := s.diff.Changes(true); changes.Count() > 0 {
			s.m.Printf("%s", changes.String(s.config.Color))
		}
	}
}

func Main(args []string) {
	c := cmd.NewSegwalkCmd()
	var bare *bool
	c.SetupFlags = func() error {
		bare = c.Flags.Bool("bare", false, "start at reset state without booting")
		return nil
	}
	c.SetupMachine = func() error {
		if *bare {
			c.NoBoot = true
		}
		return nil
	}
	c.RunProbe = func() error {
		sh, err := NewShell(c.Machine, c.Config)
		if err != nil {
			return err
		}
		sh.Run()
		return nil
	}
	c.Run(args)
}

func init() { cmd.Register("shell", "interact with a machine", Main) }
