package models

// MemIO is an io.ReadWriter over machine memory with an advancing cursor.
type MemIO struct {
	M    Machine
	Addr uint64
}

func (m *MemIO) Read(p []byte) (int, error) {
	err := m.M.MemReadInto(p, m.Addr)
	if err != nil {
		return 0, err
	}
	m.Addr += uint64(len(p))
	return len(p), nil
}

func (m *MemIO) Write(p []byte) (int, error) {
	err := m.M.MemWrite(m.Addr, p)
	if err != nil {
		return 0, err
	}
	m.Addr += uint64(len(p))
	return len(p), nil
}
