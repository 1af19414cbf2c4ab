package adoftp

import (
	"bytes"
	"errors"
	"io"
)

// Commands have to fit in the buffer, a line that doesn't is a protocol
// error that ends the session.
const lineBufferSize = 4096

var errLineTooLong = errors.New("line exceeds buffer capacity")

// lineBuffer accumulates bytes from the control connection and hands them
// out one line at a time. The buffer owns its storage and never grows.
type lineBuffer struct {
	source io.Reader
	buf    []byte
	length int
}

func newLineBuffer(source io.Reader) *lineBuffer {
	return &lineBuffer{
		source: source,
		buf:    make([]byte, lineBufferSize),
	}
}

// ReadLine returns the next CRLF- or lone-LF-terminated line without its
// terminator. The protocol is byte-oriented: non-UTF-8 bytes pass through
// untouched.
func (b *lineBuffer) ReadLine() (string, error) {
	for {
		if pos := bytes.IndexByte(b.buf[:b.length], '\n'); pos >= 0 {
			return b.take(pos), nil
		}

		if b.length == len(b.buf) {
			return "", errLineTooLong
		}

		n, err := b.source.Read(b.buf[b.length:])
		b.length += n

		if n == 0 && err != nil {
			return "", err
		}
	}
}

// take extracts the line ending at the newline found at pos and compacts the
// remaining bytes to the front of the buffer.
func (b *lineBuffer) take(pos int) string {
	end := pos
	if end > 0 && b.buf[end-1] == '\r' {
		end--
	}

	line := string(b.buf[:end])
	b.length = copy(b.buf, b.buf[pos+1:b.length])

	return line
}
