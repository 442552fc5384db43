package programs

import "encoding/binary"

// cursor is a tiny little-endian byte reader shared by this package's
// parsers. The wire layout it reads is this indexer's own stand-in for
// each program's real (externally-defined) binary format, which is
// treated as opaque outside of this package.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor { return &cursor{buf: buf} }

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) byte() (byte, bool) {
	if c.remaining() < 1 {
		return 0, false
	}
	b := c.buf[c.pos]
	c.pos++
	return b, true
}

func (c *cursor) bytes(n int) ([]byte, bool) {
	if c.remaining() < n {
		return nil, false
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, true
}

func (c *cursor) pubkey() ([]byte, bool) { return c.bytes(32) }

func (c *cursor) u64() (uint64, bool) {
	b, ok := c.bytes(8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

func (c *cursor) i64() (int64, bool) {
	v, ok := c.u64()
	return int64(v), ok
}

func (c *cursor) bool() (bool, bool) {
	b, ok := c.byte()
	return b != 0, ok
}

// str reads a u32-length-prefixed UTF-8 string.
func (c *cursor) str() (string, bool) {
	if c.remaining() < 4 {
		return "", false
	}
	n := binary.LittleEndian.Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	b, ok := c.bytes(int(n))
	if !ok {
		return "", false
	}
	return string(b), true
}
