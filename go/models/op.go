package models

import "io"

// Op is one machine event in a binary trace. Pack writes into a buffer of at
// least Sizeof() bytes, including the leading op type byte. Unpack reads the
// body (the type byte has already been consumed by the dispatcher).
type Op interface {
	Sizeof() int
	Pack(p []byte)
	Unpack(r io.Reader) (int, error)
}
