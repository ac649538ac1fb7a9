package models

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lunixbochs/segwalk/go/models/cpu"
)

// savestate format (big endian):
//
// file header
// uint32(savestate format version)
// uint32(crc32 of compressed data)
// uint32(length of compressed data)
// remainder is gzip-compressed
//
// -- uncompressed data start --
// machine header
// uint16(arch name length), arch name, uint32(bits)
//
// registers
// uint32(number of registers)
// 1..num: uint32(register enum), uint64(register value)
//
// descriptor table registers
// uint32(number of tables)
// 1..num: uint32(register enum), uint64(base), uint16(limit)
//
// segment registers
// uint32(number of segments)
// 1..num: uint32(register enum), uint16(selector), uint64(raw descriptor)
//
// memory
// uint32(number of mapped sections)
// 1..num: uint64(addr), uint64(size), uint32(prot),
//         uint16(desc length), desc, <raw memory bytes of size>

const SaveVersion = 1

var saveOrder = binary.BigEndian

type saveHeader struct {
	Version uint32
	CRC     uint32
	Size    uint32
}

type saveMachine struct {
	ArchLen int `struc:"uint16,sizeof=Arch"`
	Arch    string
	Bits    uint32
}

type saveCount struct {
	Count uint32
}

type saveReg struct {
	Enum uint32
	Val  uint64
}

type saveDTable struct {
	Enum  uint32
	Base  uint64
	Limit uint16
}

type saveSeg struct {
	Enum uint32
	Sel  uint16
	Desc uint64
}

type saveMap struct {
	Addr    uint64
	Size    uint64
	Prot    uint32
	DescLen int `struc:"uint16,sizeof=Desc"`
	Desc    string
}

func Save(m Machine) ([]byte, error) {
	var buf bytes.Buffer
	arch := m.Arch()
	// build compressed body
	s := StrucStream{&buf, saveOrder}

	s.Pack(&saveMachine{Arch: arch.Name, Bits: uint32(arch.Bits)})

	// register list
	enums := arch.RegEnums()
	s.Pack(&saveCount{uint32(len(enums))})
	for _, enum := range enums {
		val, _ := m.RegRead(enum)
		s.Pack(&saveReg{Enum: uint32(enum), Val: val})
	}

	// descriptor table registers
	s.Pack(&saveCount{uint32(len(arch.DTables))})
	for _, reg := range arch.DTables {
		dt, err := m.DTableRead(reg.Enum)
		if err != nil {
			return nil, err
		}
		s.Pack(&saveDTable{Enum: uint32(reg.Enum), Base: dt.Base, Limit: dt.Limit})
	}

	// segment registers, with their cached descriptors
	s.Pack(&saveCount{uint32(len(arch.SRegs))})
	for _, enum := range arch.SRegs {
		seg, err := m.Segment(enum)
		if err != nil {
			return nil, err
		}
		s.Pack(&saveSeg{
			Enum: uint32(enum),
			Sel:  uint16(seg.Selector),
			Desc: uint64(seg.Descriptor()),
		})
	}

	// memory mappings
	mappings := m.Mappings()
	s.Pack(&saveCount{uint32(len(mappings))})
	for _, page := range mappings {
		s.Pack(&saveMap{
			Addr: page.Addr,
			Size: page.Size,
			Prot: uint32(page.Prot),
			Desc: page.Desc,
		})
		mem, err := m.MemRead(page.Addr, page.Size)
		if err != nil {
			return nil, err
		}
		buf.Write(mem)
	}

	// compress body
	var tmp bytes.Buffer
	gz := gzip.NewWriter(&tmp)
	buf.WriteTo(gz)
	gz.Close()
	data := tmp.Bytes()

	// write file header
	var final bytes.Buffer
	s = StrucStream{&final, saveOrder}
	s.Pack(&saveHeader{Version: SaveVersion, CRC: crc32.ChecksumIEEE(data), Size: uint32(len(data))})
	tmp.WriteTo(&final)
	return final.Bytes(), nil
}

func Restore(m Machine, p []byte) error {
	r := bytes.NewReader(p)
	var hdr saveHeader
	if err := struc.UnpackWithOrder(r, &hdr, saveOrder); err != nil {
		return errors.Wrap(err, "failed to unpack savestate header")
	}
	if hdr.Version != SaveVersion {
		return errors.Errorf("unknown savestate version: %d", hdr.Version)
	}
	data := make([]byte, hdr.Size)
	if _, err := io.ReadFull(r, data); err != nil {
		return errors.Wrap(err, "savestate body truncated")
	}
	if crc32.ChecksumIEEE(data) != hdr.CRC {
		return errors.New("savestate crc mismatch")
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to open savestate body")
	}
	defer gz.Close()

	var mach saveMachine
	if err := struc.UnpackWithOrder(gz, &mach, saveOrder); err != nil {
		return errors.Wrap(err, "failed to unpack machine header")
	}
	if mach.Arch != m.Arch().Name {
		return errors.Errorf("savestate arch mismatch: %s != %s", mach.Arch, m.Arch().Name)
	}

	// restoring replaces any faulted state wholesale
	m.ClearFault()

	var count saveCount
	if err := struc.UnpackWithOrder(gz, &count, saveOrder); err != nil {
		return err
	}
	for i := uint32(0); i < count.Count; i++ {
		var reg saveReg
		if err := struc.UnpackWithOrder(gz, &reg, saveOrder); err != nil {
			return err
		}
		if err := m.RegWrite(int(reg.Enum), reg.Val); err != nil {
			return err
		}
	}

	if err := struc.UnpackWithOrder(gz, &count, saveOrder); err != nil {
		return err
	}
	for i := uint32(0); i < count.Count; i++ {
		var dt saveDTable
		if err := struc.UnpackWithOrder(gz, &dt, saveOrder); err != nil {
			return err
		}
		if err := m.DTableWrite(int(dt.Enum), DescTable{Base: dt.Base, Limit: dt.Limit}); err != nil {
			return err
		}
	}

	if err := struc.UnpackWithOrder(gz, &count, saveOrder); err != nil {
		return err
	}
	for i := uint32(0); i < count.Count; i++ {
		var seg saveSeg
		if err := struc.UnpackWithOrder(gz, &seg, saveOrder); err != nil {
			return err
		}
		desc := SegmentFromDescriptor(SegmentDescriptor(seg.Desc), Selector(seg.Sel))
		if err := m.SetSegment(int(seg.Enum), desc); err != nil {
			return err
		}
	}

	// drop the live mappings before rebuilding them
	old := m.Mappings()
	pages := make([]*cpu.Page, len(old))
	copy(pages, old)
	for _, page := range pages {
		m.MemUnmap(page.Addr, page.Size)
	}
	if err := struc.UnpackWithOrder(gz, &count, saveOrder); err != nil {
		return err
	}
	for i := uint32(0); i < count.Count; i++ {
		var mm saveMap
		if err := struc.UnpackWithOrder(gz, &mm, saveOrder); err != nil {
			return err
		}
		mem := make([]byte, mm.Size)
		if _, err := io.ReadFull(gz, mem); err != nil {
			return errors.Wrap(err, "savestate memory truncated")
		}
		if _, err := m.MemMap(mm.Addr, mm.Size, int(mm.Prot), mm.Desc); err != nil {
			return err
		}
		if err := m.MemWrite(mm.Addr, mem); err != nil {
			return err
		}
	}
	return nil
}
