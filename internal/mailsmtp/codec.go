package mailsmtp

import (
	"bufio"
	"fmt"
	"io"
)

// maxLineBytes is the hard per-line cap spec.md §4.1 requires: 25 MiB.
const maxLineBytes = 26214400

// Codec reads CRLF- or LF-terminated lines from a byte stream and writes
// CRLF-terminated replies, never panicking on I/O failure.
type Codec struct {
	r *bufio.Reader
	w io.Writer
}

// NewCodec wraps rw's halves in a line-oriented codec.
func NewCodec(r io.Reader, w io.Writer) *Codec {
	return &Codec{r: bufio.NewReaderSize(r, 4096), w: w}
}

// ReadLine returns the next line with its terminator stripped. It returns
// an error (never panics) on I/O failure or when a line exceeds
// maxLineBytes, which is a fatal session error per spec.md §4.1.
func (c *Codec) ReadLine() (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := c.r.ReadLine()
		if err != nil {
			return "", err
		}
		line = append(line, chunk...)
		if len(line) > maxLineBytes {
			return "", fmt.Errorf("mailsmtp: line exceeds %d byte cap", maxLineBytes)
		}
		if !isPrefix {
			break
		}
	}
	return string(line), nil
}

// WriteLine serializes line with a CRLF terminator.
func (c *Codec) WriteLine(line string) error {
	_, err := fmt.Fprintf(c.w, "%s\r\n", line)
	return err
}
