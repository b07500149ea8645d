package container

import "io"

// skipSubBlocks walks a data sub-block chain starting at pos and returns the
// offset just past its zero-length terminator.
func skipSubBlocks(data []byte, pos int) (int, error) {
	for {
		if pos >= len(data) {
			return 0, ErrTruncated
		}
		n := int(data[pos])
		pos++
		if n == 0 {
			return pos, nil
		}
		if pos+n > len(data) {
			return 0, ErrTruncated
		}
		pos += n
	}
}

// collectSubBlocks concatenates a sub-block chain's payload.
func collectSubBlocks(data []byte, pos int) ([]byte, int, error) {
	var out []byte
	for {
		if pos >= len(data) {
			return nil, 0, ErrTruncated
		}
		n := int(data[pos])
		pos++
		if n == 0 {
			return out, pos, nil
		}
		if pos+n > len(data) {
			return nil, 0, ErrTruncated
		}
		out = append(out, data[pos:pos+n]...)
		pos += n
	}
}

// SubBlockReader presents a sub-block chain (as stored in ImageBlock.Data)
// as a contiguous byte stream. It returns io.EOF at the terminator and
// io.ErrUnexpectedEOF if the chain is cut short.
type SubBlockReader struct {
	data []byte
	pos  int
	left int // bytes remaining in the current sub-block
	done bool
}

// NewSubBlockReader returns a reader over data.
func NewSubBlockReader(data []byte) *SubBlockReader {
	return &SubBlockReader{data: data}
}

// Read implements io.Reader.
func (r *SubBlockReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for r.left == 0 {
		if r.done {
			return 0, io.EOF
		}
		if r.pos >= len(r.data) {
			return 0, io.ErrUnexpectedEOF
		}
		r.left = int(r.data[r.pos])
		r.pos++
		if r.left == 0 {
			r.done = true
			return 0, io.EOF
		}
	}
	n := r.left
	if n > len(p) {
		n = len(p)
	}
	if r.pos+n > len(r.data) {
		n = len(r.data) - r.pos
		if n == 0 {
			return 0, io.ErrUnexpectedEOF
		}
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	r.left -= n
	return n, nil
}

// ReadByte implements io.ByteReader so compress/lzw does not wrap the reader
// in a bufio.Reader.
func (r *SubBlockReader) ReadByte() (byte, error) {
	var b [1]byte
	n, err := r.Read(b[:])
	if n == 1 {
		return b[0], nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return 0, err
}
