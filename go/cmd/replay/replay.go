package replay

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/arch"
	"github.com/lunixbochs/segwalk/go/cmd"
	"github.com/lunixbochs/segwalk/go/models"
	"github.com/lunixbochs/segwalk/go/models/cpu"
	"github.com/lunixbochs/segwalk/go/models/trace"
)

func PrintJson(tf *trace.TraceReader) error {
	out, err := json.Marshal(&tf.Header)
	if err != nil {
		return errors.Wrap(err, "error printing header")
	}
	fmt.Printf("%s\n", out)
	for {
		op, err := tf.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return errors.Wrap(err, "error reading next trace operation")
		}
		out, _ := json.Marshal(op)
		fmt.Printf("%s\n", out)
	}
	return nil
}

func protString(prot uint8) string {
	prots := []uint8{cpu.PROT_READ, cpu.PROT_WRITE, cpu.PROT_EXEC}
	chars := []string{"r", "w", "x"}
	out := ""
	for i := range prots {
		if prot&prots[i] != 0 {
			out += chars[i]
		} else {
			out += "-"
		}
	}
	return out
}

func render(a *models.Arch, op models.Op) string {
	switch o := op.(type) {
	case *trace.OpMemRead:
		return fmt.Sprintf("read  %#x+%d = %#x", o.Addr, o.Size, o.Value)
	case *trace.OpMemWrite:
		return fmt.Sprintf("write %#x+%d = %#x", o.Addr, o.Size, o.Value)
	case *trace.OpMemMap:
		s := fmt.Sprintf("map   %#x-%#x %s", o.Addr, o.Addr+o.Size, protString(o.Prot))
		if o.Desc != "" {
			s += fmt.Sprintf(" [%s]", o.Desc)
		}
		return s
	case *trace.OpMemUnmap:
		return fmt.Sprintf("unmap %#x-%#x", o.Addr, o.Addr+o.Size)
	case *trace.OpMemProt:
		return fmt.Sprintf("prot  %#x-%#x %s", o.Addr, o.Addr+o.Size, protString(o.Prot))
	case *trace.OpDTable:
		return fmt.Sprintf("%s  base=%#x limit=%#x", a.DTableName(int(o.Reg)), o.Base, o.Limit)
	case *trace.OpSegLoad:
		d := models.SegmentDescriptor(o.Desc)
		return fmt.Sprintf("%s <- %s %s", a.RegName(int(o.Reg)), models.Selector(o.Sel), d)
	case *trace.OpFault:
		return (&models.Fault{
			Vector:   int(o.Vector),
			Selector: models.Selector(o.Sel),
			Op:       o.Op,
		}).Error()
	}
	return fmt.Sprintf("%#v", op)
}

func PrintPretty(tf *trace.TraceReader) error {
	a, err := arch.GetArch(tf.Header.Arch)
	if err != nil {
		return errors.Wrap(err, "arch.GetArch() failed")
	}
	replay := trace.NewReplay(a, tf.Header.Order)
	replay.Listen(func(op models.Op) {
		fmt.Println(render(a, op))
	})
	for {
		op, err := tf.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return errors.Wrap(err, "error reading next trace operation")
		}
		replay.Feed(op)
	}
	return nil
}

func Main(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "print one json document per op")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <tracefile>\n\nOptions:\n", args[0])
		fs.PrintDefaults()
	}
	fs.Parse(args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	tf, err := trace.NewReader(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer tf.Close()

	if *jsonFlag {
		err = PrintJson(tf)
	} else {
		err = PrintPretty(tf)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() { cmd.Register("replay", "print a recorded trace", Main) }
