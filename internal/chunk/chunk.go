// Package chunk implements the length-prefixed framing used by the clamd
// INSTREAM command.
//
// Each chunk is a 4-byte big-endian length followed by that many payload
// bytes. A chunk with length zero and no payload terminates the stream.
package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// HeaderLen is the size of the length prefix.
	HeaderLen = 4
	// MaxSize is the largest payload the length prefix can describe.
	MaxSize = math.MaxUint32
)

var (
	ErrShortHeader  = errors.New("chunk: short length header")
	ErrShortPayload = errors.New("chunk: short payload")
	ErrTooLarge     = errors.New("chunk: payload exceeds limit")
	ErrInvalidSize  = errors.New("chunk: invalid chunk size")
	ErrWriterClosed = errors.New("chunk: write after terminator")
)

// Writer frames everything written to it as INSTREAM chunks.
type Writer struct {
	w      io.Writer
	size   int
	buf    []byte
	chunks int
	bytes  int64
	closed bool
}

// NewWriter returns a Writer that emits chunks of at most size payload bytes.
func NewWriter(w io.Writer, size int) (*Writer, error) {
	if size <= 0 || uint64(size) > MaxSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &Writer{
		w:    w,
		size: size,
		buf:  make([]byte, HeaderLen+size),
	}, nil
}

// Write emits p as one chunk, or several when p is longer than the chunk
// size. An empty p emits nothing so that only Close can produce the
// zero-length terminator.
func (cw *Writer) Write(p []byte) (int, error) {
	if cw.closed {
		return 0, ErrWriterClosed
	}
	written := 0
	for len(p) > 0 {
		n := min(len(p), cw.size)
		binary.BigEndian.PutUint32(cw.buf[:HeaderLen], uint32(n))
		copy(cw.buf[HeaderLen:], p[:n])
		if _, err := cw.w.Write(cw.buf[:HeaderLen+n]); err != nil {
			return written, err
		}
		cw.chunks++
		cw.bytes += int64(n)
		written += n
		p = p[n:]
	}
	return written, nil
}

// Close writes the terminating chunk. The underlying writer is left open.
func (cw *Writer) Close() error {
	if cw.closed {
		return nil
	}
	var term [HeaderLen]byte
	if _, err := cw.w.Write(term[:]); err != nil {
		return err
	}
	cw.closed = true
	return nil
}

// Chunks reports how many non-terminating chunks have been written.
func (cw *Writer) Chunks() int { return cw.chunks }

// Bytes reports the payload bytes written, headers excluded.
func (cw *Writer) Bytes() int64 { return cw.bytes }

// Reader decodes an INSTREAM chunk sequence.
type Reader struct {
	r     io.Reader
	limit uint32
	done  bool
}

// NewReader returns a Reader that rejects payloads larger than limit.
// A zero limit means MaxSize.
func NewReader(r io.Reader, limit uint32) *Reader {
	if limit == 0 {
		limit = MaxSize
	}
	return &Reader{r: r, limit: limit}
}

// Next returns the next chunk payload, or io.EOF once the terminating chunk
// has been read.
func (cr *Reader) Next() ([]byte, error) {
	if cr.done {
		return nil, io.EOF
	}
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(cr.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		cr.done = true
		return nil, io.EOF
	}
	if n > cr.limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, n, cr.limit)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(cr.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortPayload
		}
		return nil, err
	}
	return payload, nil
}

// ReadAll reads chunks until the terminator and returns every payload in
// order.
func (cr *Reader) ReadAll() ([][]byte, error) {
	var out [][]byte
	for {
		p, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
}
