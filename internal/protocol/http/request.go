package http

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrMalformedRequest is returned when the request line cannot be decoded.
var ErrMalformedRequest = errors.New("malformed request")

// Request is the parsed request line plus the keep-alive intent. It lives
// for one dispatch.
type Request struct {
	Method  string
	Path    string
	Version string

	// KeepAlive is the client's wish to reuse the connection, from the
	// Connection header or the protocol version default.
	KeepAlive bool
}

// IsAllowedMethod reports whether the server handles m at all.
func IsAllowedMethod(m string) bool {
	return m == "GET" || m == "POST"
}

// ParseRequest parses a framed header block (through the blank line).
//
// The request line must hold at least three whitespace separated tokens;
// anything after the version is ignored. The path is kept as sent: no
// percent-decoding, no query stripping.
func ParseRequest(data []byte) (*Request, error) {
	lines := splitLines(data)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty request", ErrMalformedRequest)
	}

	first := lines[0]
	if !utf8.Valid(first) {
		return nil, fmt.Errorf("%w: request line is not valid UTF-8", ErrMalformedRequest)
	}

	tokens := strings.Fields(string(first))
	if len(tokens) < 3 {
		return nil, fmt.Errorf("%w: request line has %d tokens", ErrMalformedRequest, len(tokens))
	}

	req := &Request{
		Method:    tokens[0],
		Path:      tokens[1],
		Version:   tokens[2],
		KeepAlive: tokens[2] == "HTTP/1.1",
	}

	for _, line := range lines[1:] {
		if len(line) == 0 {
			break
		}
		name, value, ok := splitHeader(line)
		if !ok || !strings.EqualFold(name, "Connection") {
			continue
		}
		if keepAlive, explicit := connectionIntent(value); explicit {
			req.KeepAlive = keepAlive
		}
	}

	return req, nil
}

// connectionIntent interprets a Connection header value. "close" wins over
// "keep-alive" when both appear.
func connectionIntent(value string) (keepAlive bool, explicit bool) {
	for _, opt := range strings.Split(value, ",") {
		switch strings.ToLower(strings.TrimSpace(opt)) {
		case "close":
			return false, true
		case "keep-alive":
			keepAlive, explicit = true, true
		}
	}
	return keepAlive, explicit
}

// DeclaredContentLength returns the Content-Length value of a header block,
// if present and well formed.
func DeclaredContentLength(header []byte) (int64, bool) {
	lines := splitLines(header)
	for i, line := range lines {
		if i == 0 {
			continue
		}
		if len(line) == 0 {
			break
		}
		name, value, ok := splitHeader(line)
		if !ok || !strings.EqualFold(name, "Content-Length") {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func splitHeader(line []byte) (name, value string, ok bool) {
	i := bytes.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	return string(bytes.TrimSpace(line[:i])), string(line[i+1:]), true
}

// splitLines splits on LF and drops one trailing CR per line.
func splitLines(data []byte) [][]byte {
	raw := bytes.Split(data, []byte{'\n'})
	if n := len(raw); n > 0 && len(raw[n-1]) == 0 {
		raw = raw[:n-1]
	}
	for i, l := range raw {
		raw[i] = bytes.TrimSuffix(l, []byte{'\r'})
	}
	return raw
}
