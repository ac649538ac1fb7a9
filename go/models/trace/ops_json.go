package trace

import (
	"encoding/json"
	"fmt"
)

func bprintf(f string, args ...interface{}) []byte {
	return []byte(fmt.Sprintf(f, args...))
}

func (o *OpNop) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d}`, OP_NOP), nil
}

func (o *OpMemRead) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d,"addr":%d,"size":%d,"value":%d}`, OP_MEM_READ, o.Addr, o.Size, o.Value), nil
}

func (o *OpMemWrite) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d,"addr":%d,"size":%d,"value":%d}`, OP_MEM_WRITE, o.Addr, o.Size, o.Value), nil
}

func (o *OpMemMap) MarshalJSON() ([]byte, error) {
	desc, err := json.Marshal(o.Desc)
	if err != nil {
		return nil, err
	}
	return bprintf(`{"op":%d,"addr":%d,"size":%d,"prot":%d,"desc":%s}`, OP_MEM_MAP, o.Addr, o.Size, o.Prot, desc), nil
}

func (o *OpMemUnmap) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d,"addr":%d,"size":%d}`, OP_MEM_UNMAP, o.Addr, o.Size), nil
}

func (o *OpMemProt) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d,"addr":%d,"size":%d,"prot":%d}`, OP_MEM_PROT, o.Addr, o.Size, o.Prot), nil
}

func (o *OpDTable) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d,"reg":%d,"base":%d,"limit":%d}`, OP_DTABLE, o.Reg, o.Base, o.Limit), nil
}

func (o *OpSegLoad) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d,"reg":%d,"sel":%d,"desc":%d}`, OP_SEG_LOAD, o.Reg, o.Sel, o.Desc), nil
}

func (o *OpFault) MarshalJSON() ([]byte, error) {
	op, err := json.Marshal(o.Op)
	if err != nil {
		return nil, err
	}
	return bprintf(`{"op":%d,"vector":%d,"sel":%d,"cause":%s}`, OP_FAULT, o.Vector, o.Sel, op), nil
}
