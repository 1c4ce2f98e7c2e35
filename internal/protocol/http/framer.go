package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

var (
	// ErrRequestTimeout means no complete header block arrived before the
	// per-request deadline.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrRequestTooLarge means the accumulated (or declared) request size
	// reached the configured maximum.
	ErrRequestTooLarge = errors.New("request too large")

	// ErrPeerClosed means the client closed its side before completing a
	// header block.
	ErrPeerClosed = errors.New("peer closed connection")

	// ErrConnectionBroken wraps any other read failure.
	ErrConnectionBroken = errors.New("connection broken")
)

var headerTerminator = []byte("\r\n\r\n")

// readChunk bounds a single read.
const readChunk = 4096

// DeadlineReader is the part of net.Conn the framer needs.
type DeadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Framer accumulates bytes from one connection until a header block
// terminator is seen. It is owned by a single connection goroutine.
type Framer struct {
	r       DeadlineReader
	maxSize int
	buf     []byte
	chunk   []byte

	// bodyRemaining is the part of the last request's declared body that
	// has not been read off the connection yet.
	bodyRemaining int64
}

// NewFramer creates a framer that refuses requests of maxSize bytes or more.
func NewFramer(r DeadlineReader, maxSize int) *Framer {
	chunk := readChunk
	if maxSize < chunk {
		chunk = maxSize
	}
	return &Framer{
		r:       r,
		maxSize: maxSize,
		buf:     make([]byte, 0, chunk),
		chunk:   make([]byte, chunk),
	}
}

// ReadHeaderBlock reads one request header block, terminator included.
//
// The accumulator is reset first and bytes beyond the terminator are
// dropped. deadline bounds the whole call: every read waits at most until
// deadline, so a client trickling bytes cannot extend it. The returned slice
// is only valid until the next call.
//
// Errors are one of ErrRequestTimeout, ErrRequestTooLarge, ErrPeerClosed or
// a wrapped ErrConnectionBroken.
func (f *Framer) ReadHeaderBlock(deadline time.Time) ([]byte, error) {
	f.buf = f.buf[:0]
	f.bodyRemaining = 0

	if err := f.r.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %v", ErrConnectionBroken, err)
	}

	for {
		if !time.Now().Before(deadline) {
			return nil, ErrRequestTimeout
		}

		room := f.maxSize - len(f.buf)
		if room > len(f.chunk) {
			room = len(f.chunk)
		}

		n, err := f.r.Read(f.chunk[:room])
		if n > 0 {
			searchFrom := len(f.buf) - (len(headerTerminator) - 1)
			if searchFrom < 0 {
				searchFrom = 0
			}
			f.buf = append(f.buf, f.chunk[:n]...)

			if len(f.buf) >= f.maxSize {
				return nil, ErrRequestTooLarge
			}

			if i := bytes.Index(f.buf[searchFrom:], headerTerminator); i >= 0 {
				end := searchFrom + i + len(headerTerminator)
				header := f.buf[:end]
				declared, ok := DeclaredContentLength(header)
				if ok && int64(end)+declared >= int64(f.maxSize) {
					return nil, ErrRequestTooLarge
				}
				if ok {
					// Body bytes that arrived with the header are already consumed
					f.bodyRemaining = max(declared-int64(len(f.buf)-end), 0)
				}
				return header, nil
			}
		}

		if err != nil {
			return nil, classifyReadError(err)
		}
	}
}

// BodyRemaining returns how many declared body bytes of the last header
// block are still unread on the connection.
func (f *Framer) BodyRemaining() int64 {
	return f.bodyRemaining
}

// DiscardBody reads and drops the rest of the last request's declared body
// so the next ReadHeaderBlock starts at a request boundary. The amount is
// bounded by the size cap already checked in ReadHeaderBlock.
//
// Errors are classified like ReadHeaderBlock's.
func (f *Framer) DiscardBody(deadline time.Time) error {
	if f.bodyRemaining == 0 {
		return nil
	}

	if err := f.r.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set read deadline: %v", ErrConnectionBroken, err)
	}

	for f.bodyRemaining > 0 {
		if !time.Now().Before(deadline) {
			return ErrRequestTimeout
		}

		want := int64(len(f.chunk))
		if f.bodyRemaining < want {
			want = f.bodyRemaining
		}

		n, err := f.r.Read(f.chunk[:want])
		f.bodyRemaining -= int64(n)
		if f.bodyRemaining == 0 {
			return nil
		}
		if err != nil {
			return classifyReadError(err)
		}
	}
	return nil
}

// Buffered returns the number of bytes accumulated so far.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrPeerClosed
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrRequestTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrRequestTimeout
	}
	return fmt.Errorf("%w: %v", ErrConnectionBroken, err)
}
