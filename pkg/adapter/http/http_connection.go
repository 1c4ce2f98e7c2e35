package http

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/marmos91/rawhttpd/internal/logger"
	httpproto "github.com/marmos91/rawhttpd/internal/protocol/http"
	"github.com/marmos91/rawhttpd/pkg/metrics"
)

// connState is the position of a connection in its request cycle.
type connState int

const (
	stateAwaitingRequest connState = iota
	stateReadingHeaders
	stateDispatching
	stateResponding
	stateKeepAliveWait
	stateClosing
)

func (s connState) String() string {
	switch s {
	case stateAwaitingRequest:
		return "awaiting_request"
	case stateReadingHeaders:
		return "reading_headers"
	case stateDispatching:
		return "dispatching"
	case stateResponding:
		return "responding"
	case stateKeepAliveWait:
		return "keep_alive_wait"
	case stateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// HTTPConnection drives one admitted connection through
// AwaitingRequest → ReadingHeaders → Dispatching → Responding and then
// either KeepAliveWait (back to AwaitingRequest) or Closing.
//
// All fields are owned by the connection goroutine.
type HTTPConnection struct {
	server *HTTPAdapter
	conn   net.Conn
	id     string
	framer *httpproto.Framer
	state  connState

	// lingerOnClose makes Serve half-close and drain before closing.
	lingerOnClose bool

	requests int
}

// NewHTTPConnection wraps an admitted TCP connection.
func NewHTTPConnection(server *HTTPAdapter, conn net.Conn, id string) *HTTPConnection {
	return &HTTPConnection{
		server: server,
		conn:   conn,
		id:     id,
		framer: httpproto.NewFramer(conn, server.config.MaxRequestSize),
		state:  stateAwaitingRequest,
	}
}

// Serve runs the request loop until the connection reaches Closing.
//
// A panic in one connection is recovered and logged; the connection is
// closed and the server keeps running.
func (c *HTTPConnection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in HTTP connection %s from %s: %v",
				c.id, c.conn.RemoteAddr(), r)
		}
		c.close()
	}()

	// Wake a connection blocked in a read when the server shuts down.
	// Closing the read side is sticky; a deadline alone would be
	// overwritten by the next ReadHeaderBlock.
	stop := context.AfterFunc(ctx, func() {
		type closeReader interface {
			CloseRead() error
		}
		if cr, ok := c.conn.(closeReader); ok {
			_ = cr.CloseRead()
			return
		}
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for c.state != stateClosing {
		if ctx.Err() != nil {
			logger.Debug("HTTP connection %s closed due to server shutdown", c.id)
			c.state = stateClosing
			break
		}
		c.handleRequest(ctx)
	}
}

// handleRequest runs one exchange and leaves c.state at either
// stateKeepAliveWait or stateClosing.
func (c *HTTPConnection) handleRequest(ctx context.Context) {
	start := time.Now()
	deadline := start.Add(c.server.requestTimeout)

	c.state = stateReadingHeaders
	header, err := c.framer.ReadHeaderBlock(deadline)
	c.server.metrics.RecordBytesTransferred(metrics.DirectionRead, int64(c.framer.Buffered()))
	if err != nil {
		c.handleFramingError(ctx, err, start)
		return
	}

	c.state = stateDispatching
	req, err := httpproto.ParseRequest(header)
	if err != nil {
		logger.Debug("HTTP connection %s: dropping unparseable request: %v", c.id, err)
		c.state = stateClosing
		return
	}
	c.requests++

	resp := c.dispatch(ctx, req)

	c.state = stateResponding
	if err := c.writeResponse(resp); err != nil {
		logger.Debug("HTTP connection %s: error writing response: %v", c.id, err)
		c.state = stateClosing
		return
	}
	c.server.metrics.RecordRequest(req.Method, int(resp.Status), time.Since(start))
	logger.Debug("HTTP connection %s: %s %s %s -> %d",
		c.id, req.Method, req.Path, req.Version, resp.Status)

	if c.keepAlive(req, resp) && c.skipBody(deadline) {
		c.state = stateKeepAliveWait
		return
	}
	c.state = stateClosing
}

// skipBody consumes the unread part of a declared request body so the next
// header block starts at a request boundary. It reports false when the body
// could not be read before deadline.
func (c *HTTPConnection) skipBody(deadline time.Time) bool {
	pending := c.framer.BodyRemaining()
	if pending == 0 {
		return true
	}

	err := c.framer.DiscardBody(deadline)
	c.server.metrics.RecordBytesTransferred(metrics.DirectionRead, pending-c.framer.BodyRemaining())
	if err != nil {
		logger.Debug("HTTP connection %s: closing, request body incomplete: %v", c.id, err)
		return false
	}
	return true
}

// dispatch answers a parsed request.
func (c *HTTPConnection) dispatch(ctx context.Context, req *httpproto.Request) httpproto.Response {
	if !httpproto.IsAllowedMethod(req.Method) {
		return httpproto.NewErrorResponse(httpproto.StatusMethodNotAllowed)
	}
	return c.server.router.Route(ctx, req)
}

// keepAlive reports whether the connection should wait for another request.
func (c *HTTPConnection) keepAlive(req *httpproto.Request, resp httpproto.Response) bool {
	return c.server.config.KeepAlive && req.KeepAlive && !resp.Status.ClosesConnection()
}

// handleFramingError maps a framer failure to its response and moves the
// connection to Closing.
func (c *HTTPConnection) handleFramingError(ctx context.Context, err error, start time.Time) {
	c.state = stateClosing

	switch {
	case ctx.Err() != nil:
		logger.Debug("HTTP connection %s: read interrupted by shutdown", c.id)

	case errors.Is(err, httpproto.ErrRequestTimeout):
		logger.Debug("HTTP connection %s timed out after %d request(s) (%d bytes buffered)",
			c.id, c.requests, c.framer.Buffered())
		c.sendError(httpproto.StatusRequestTimeout, start)

	case errors.Is(err, httpproto.ErrRequestTooLarge):
		logger.Debug("HTTP connection %s: request too large (max %d)",
			c.id, c.server.config.MaxRequestSize)
		c.sendError(httpproto.StatusContentTooLarge, start)
		c.lingerOnClose = true

	case errors.Is(err, httpproto.ErrPeerClosed):
		logger.Debug("HTTP connection %s closed by client", c.id)

	default:
		logger.Debug("HTTP connection %s broken: %v", c.id, err)
	}
}

// sendError writes a status-only response. Write failures are logged and
// otherwise ignored since the connection is closing anyway.
func (c *HTTPConnection) sendError(status httpproto.Status, start time.Time) {
	if err := c.writeResponse(httpproto.NewErrorResponse(status)); err != nil {
		logger.Debug("HTTP connection %s: error writing %s: %v", c.id, status, err)
		return
	}
	c.server.metrics.RecordRequest("", int(status), time.Since(start))
}

// writeResponse sends the complete response under a write deadline.
func (c *HTTPConnection) writeResponse(resp httpproto.Response) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.requestTimeout)); err != nil {
		return err
	}
	n, err := c.conn.Write(resp.Bytes())
	c.server.metrics.RecordBytesTransferred(metrics.DirectionWrite, int64(n))
	return err
}

// close releases the connection. After a 413 the write side is half-closed
// and pending input drained first so the client can read the response.
func (c *HTTPConnection) close() {
	c.state = stateClosing
	if c.lingerOnClose {
		halfClose(c.conn)
		drainAndClose(c.conn, lingerTimeout)
		return
	}
	if err := c.conn.Close(); err != nil {
		logger.Debug("Error closing HTTP connection %s: %v", c.id, err)
	}
}
