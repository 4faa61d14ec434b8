package file

import (
	"encoding/binary"
	"fmt"
)

const (
	shortSize = 2
	intSize   = 4
)

// Page is the in-memory mirror of a block: a fixed-size byte buffer with
// typed accessors at byte offsets. Integers are big-endian; bytes and
// strings are stored with an int32 length prefix.
type Page struct {
	buf []byte
}

func NewPage(blockSize int) *Page {
	return &Page{
		buf: make([]byte, blockSize),
	}
}

// NewPageWith wraps an existing byte slice, typically a log record.
func NewPageWith(buf []byte) *Page {
	return &Page{
		buf: buf,
	}
}

// MaxLength is the number of page bytes needed to store a byte slice or
// string of the given length.
func MaxLength(n int) int {
	return intSize + n
}

func (p *Page) Contents() []byte {
	return p.buf
}

func (p *Page) checkRange(offset, n int) error {
	if offset < 0 || offset+n > len(p.buf) {
		return fmt.Errorf("file: %d bytes at offset %d outside of page of %d bytes", n, offset,
			len(p.buf))
	}
	return nil
}

func (p *Page) GetShort(offset int) (int16, error) {
	err := p.checkRange(offset, shortSize)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(p.buf[offset:])), nil
}

func (p *Page) SetShort(offset int, val int16) error {
	err := p.checkRange(offset, shortSize)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(p.buf[offset:], uint16(val))
	return nil
}

func (p *Page) GetInt(offset int) (int32, error) {
	err := p.checkRange(offset, intSize)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p.buf[offset:])), nil
}

func (p *Page) SetInt(offset int, val int32) error {
	err := p.checkRange(offset, intSize)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(p.buf[offset:], uint32(val))
	return nil
}

func (p *Page) GetBytes(offset int) ([]byte, error) {
	n, err := p.GetInt(offset)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("file: negative length %d at offset %d", n, offset)
	}
	err = p.checkRange(offset+intSize, int(n))
	if err != nil {
		return nil, err
	}
	return p.buf[offset+intSize : offset+intSize+int(n)], nil
}

func (p *Page) SetBytes(offset int, val []byte) error {
	err := p.checkRange(offset, MaxLength(len(val)))
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(p.buf[offset:], uint32(len(val)))
	copy(p.buf[offset+intSize:], val)
	return nil
}

func (p *Page) GetString(offset int) (string, error) {
	b, err := p.GetBytes(offset)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *Page) SetString(offset int, val string) error {
	return p.SetBytes(offset, []byte(val))
}
