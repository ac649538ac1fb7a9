package trace

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/arch"
	"github.com/lunixbochs/segwalk/go/models"
)

var TRACE_MAGIC = "SEGW"

type TraceHeader struct {
	// MAGIC ("SEGW")
	Magic string `struc:"[4]byte" json:"-"`
	// file format version
	Version uint32 `json:"version"`

	// Machine architecture, "x86" or "x86_64". Right-null-padded.
	Arch string `struc:"[32]byte" json:"arch"`

	// Byte Order - 0 for little, 1 for big
	OrderNum  uint8            `json:"-"`
	OrderName string           `struc:"skip" json:"order"`
	Order     binary.ByteOrder `struc:"skip" json:"-"`
}

type TraceWriter struct {
	w, zw io.WriteCloser
}

func NewWriter(w io.WriteCloser, m models.Machine) (*TraceWriter, error) {
	var num uint8
	var name string
	if m.ByteOrder() == binary.BigEndian {
		num = 1
		name = "big"
	} else {
		num = 0
		name = "little"
	}
	header := &TraceHeader{
		Magic:   TRACE_MAGIC,
		Version: 1,
		Arch:    m.Arch().Name,

		OrderNum:  num,
		OrderName: name,
		Order:     m.ByteOrder(),
	}
	if err := struc.Pack(w, header); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	zw := snappy.NewBufferedWriter(w)
	return &TraceWriter{w: w, zw: zw}, nil
}

// write one op at a time
func (t *TraceWriter) Pack(op models.Op) error {
	p := make([]byte, op.Sizeof())
	op.Pack(p)
	_, err := t.zw.Write(p)
	return err
}

func (t *TraceWriter) Close() {
	t.zw.Close()
	t.w.Close()
}

type TraceReader struct {
	r      io.ReadCloser
	zr     *snappy.Reader
	Header TraceHeader

	Arch *models.Arch
}

func NewReader(r io.ReadCloser) (*TraceReader, error) {
	t := &TraceReader{r: r}
	if err := struc.Unpack(r, &t.Header); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != TRACE_MAGIC {
		return nil, errors.New("invalid trace file magic")
	}
	t.Header.Arch = strings.TrimRight(t.Header.Arch, "\x00")
	switch t.Header.OrderNum {
	case 0:
		t.Header.Order = binary.LittleEndian
		t.Header.OrderName = "little"
	case 1:
		t.Header.Order = binary.BigEndian
		t.Header.OrderName = "big"
	}
	var err error
	t.Arch, err = arch.GetArch(t.Header.Arch)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get arch")
	}
	t.zr = snappy.NewReader(r)
	return t, nil
}

func (t *TraceReader) Next() (models.Op, error) {
	op, _, err := Unpack(t.zr)
	return op, err
}

func (t *TraceReader) Close() {
	t.zr.Reset(nil)
	t.r.Close()
}
