package http

import (
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPipe returns the server end of an in-memory connection and a function
// that writes chunks from the client end in order.
func newPipe(t *testing.T) (net.Conn, func(chunks ...string)) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	send := func(chunks ...string) {
		go func() {
			for _, c := range chunks {
				if _, err := client.Write([]byte(c)); err != nil {
					return
				}
			}
		}()
	}
	return server, send
}

func TestFramer_SingleRead(t *testing.T) {
	conn, send := newPipe(t)
	send("GET / HTTP/1.1\r\nHost: x\r\n\r\n")

	f := NewFramer(conn, 8192)
	header, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1\r\nHost: x\r\n\r\n", string(header))
}

func TestFramer_TerminatorSpansReads(t *testing.T) {
	conn, send := newPipe(t)
	send("GET / HTTP/1.1\r\nHo", "st: x\r\n\r", "\n")

	f := NewFramer(conn, 8192)
	header, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1\r\nHost: x\r\n\r\n", string(header))
}

func TestFramer_ExactlyMaxWithoutTerminator(t *testing.T) {
	const max = 64
	conn, send := newPipe(t)
	send(strings.Repeat("A", max))

	f := NewFramer(conn, max)
	_, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	assert.ErrorIs(t, err, ErrRequestTooLarge)
	assert.Equal(t, max, f.Buffered())
}

func TestFramer_OneBelowMaxWithTerminator(t *testing.T) {
	const max = 64
	prefix := "GET / HTTP/1.1\r\nX: "
	suffix := "\r\n\r\n"
	req := prefix + strings.Repeat("a", max-1-len(prefix)-len(suffix)) + suffix
	require.Len(t, req, max-1)

	conn, send := newPipe(t)
	send(req)

	f := NewFramer(conn, max)
	header, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, req, string(header))
}

func TestFramer_TrickleReachesMax(t *testing.T) {
	const max = 32
	conn, send := newPipe(t)
	chunks := make([]string, 0, max)
	for i := 0; i < max; i++ {
		chunks = append(chunks, "B")
	}
	send(chunks...)

	f := NewFramer(conn, max)
	_, err := f.ReadHeaderBlock(time.Now().Add(2 * time.Second))
	assert.ErrorIs(t, err, ErrRequestTooLarge)
}

func TestFramer_DeclaredBodyPastCap(t *testing.T) {
	conn, send := newPipe(t)
	send("POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 9000\r\n\r\n")

	f := NewFramer(conn, 8192)
	_, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	assert.ErrorIs(t, err, ErrRequestTooLarge)
}

func TestFramer_DeclaredBodyWithinCap(t *testing.T) {
	conn, send := newPipe(t)
	send("POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\n")

	f := NewFramer(conn, 8192)
	header, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(header), "POST / HTTP/1.1"))
}

func TestFramer_Timeout(t *testing.T) {
	conn, _ := newPipe(t)

	f := NewFramer(conn, 8192)
	start := time.Now()
	_, err := f.ReadHeaderBlock(time.Now().Add(50 * time.Millisecond))
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFramer_SlowTrickleCannotExtendDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		for i := 0; i < 100; i++ {
			if _, err := client.Write([]byte("X")); err != nil {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()

	f := NewFramer(server, 8192)
	start := time.Now()
	_, err := f.ReadHeaderBlock(time.Now().Add(150 * time.Millisecond))
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFramer_PeerClosed(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte("GET / HT"))
		_ = client.Close()
	}()

	f := NewFramer(server, 8192)
	_, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	assert.ErrorIs(t, err, ErrPeerClosed)
}

func TestFramer_PipelinedBytesAreDropped(t *testing.T) {
	conn, send := newPipe(t)
	send("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n")

	f := NewFramer(conn, 8192)
	header, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "GET /a HTTP/1.1\r\n\r\n", string(header))

	// The second request was in the same read and is not replayed
	_, err = f.ReadHeaderBlock(time.Now().Add(50 * time.Millisecond))
	assert.ErrorIs(t, err, ErrRequestTimeout)
}

func TestFramer_DiscardBodyInLaterRead(t *testing.T) {
	conn, send := newPipe(t)
	send("POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\n", "hello", "GET /next HTTP/1.1\r\n\r\n")

	f := NewFramer(conn, 8192)
	_, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.BodyRemaining())

	require.NoError(t, f.DiscardBody(time.Now().Add(time.Second)))
	assert.Zero(t, f.BodyRemaining())

	header, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "GET /next HTTP/1.1\r\n\r\n", string(header))
}

func TestFramer_BodyPartlyInHeaderRead(t *testing.T) {
	conn, send := newPipe(t)
	send("POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhe", "llo", "GET /next HTTP/1.1\r\n\r\n")

	f := NewFramer(conn, 8192)
	_, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.BodyRemaining())

	require.NoError(t, f.DiscardBody(time.Now().Add(time.Second)))

	header, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "GET /next HTTP/1.1\r\n\r\n", string(header))
}

func TestFramer_NoBodyDeclared(t *testing.T) {
	conn, send := newPipe(t)
	send("GET / HTTP/1.1\r\n\r\n")

	f := NewFramer(conn, 8192)
	_, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, f.BodyRemaining())
	assert.NoError(t, f.DiscardBody(time.Now().Add(-time.Second)))
}

func TestFramer_DiscardBodyTimeout(t *testing.T) {
	conn, send := newPipe(t)
	send("POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\n", "he")

	f := NewFramer(conn, 8192)
	_, err := f.ReadHeaderBlock(time.Now().Add(time.Second))
	require.NoError(t, err)

	start := time.Now()
	err = f.DiscardBody(time.Now().Add(50 * time.Millisecond))
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(3), f.BodyRemaining())
}

func TestClassifyReadError(t *testing.T) {
	err := classifyReadError(errors.New("connection reset by peer"))
	assert.ErrorIs(t, err, ErrConnectionBroken)
}
