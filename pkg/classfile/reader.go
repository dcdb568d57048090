package classfile

import "encoding/binary"

// reader is a big-endian cursor over a byte slice. The first short read
// latches ErrTruncated and every later read returns zero values.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}

	if n < 0 || r.pos+n > len(r.buf) {
		r.err = ErrTruncated

		return nil
	}

	out := r.buf[r.pos : r.pos+n]
	r.pos += n

	return out
}

func (r *reader) u1() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}

	return b[0]
}

func (r *reader) u2() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}

	return binary.BigEndian.Uint16(b)
}

func (r *reader) u4() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}

	return binary.BigEndian.Uint32(b)
}

func (r *reader) bytes(n int) []byte {
	return r.take(n)
}
