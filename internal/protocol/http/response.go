package http

import (
	"strconv"
)

// Status is one of the HTTP status codes this server can emit.
type Status uint16

const (
	StatusOK                 Status = 200
	StatusBadRequest         Status = 400
	StatusNotFound           Status = 404
	StatusMethodNotAllowed   Status = 405
	StatusRequestTimeout     Status = 408
	StatusContentTooLarge    Status = 413
	StatusServiceUnavailable Status = 503
)

const (
	ContentTypeHTML   = "text/html"
	ContentTypePlain  = "text/plain"
	ContentTypeBinary = "application/octet-stream"
)

// Reason returns the fixed reason phrase for s.
func (s Status) Reason() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusMethodNotAllowed:
		return "Method Not Allowed"
	case StatusRequestTimeout:
		return "Request Timeout"
	case StatusContentTooLarge:
		return "Content Too Large"
	case StatusServiceUnavailable:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}

// ClosesConnection reports whether a response with this status always ends
// the connection, regardless of keep-alive.
func (s Status) ClosesConnection() bool {
	switch s {
	case StatusOK, StatusNotFound:
		return false
	default:
		return true
	}
}

func (s Status) String() string {
	return strconv.Itoa(int(s)) + " " + s.Reason()
}

// Response is a complete reply: status line, Content-Length, Content-Type
// and body.
type Response struct {
	Status      Status
	ContentType string
	Body        []byte
}

// NewErrorResponse returns the plain text error reply for s, e.g.
// "404 Not Found".
func NewErrorResponse(s Status) Response {
	return Response{
		Status:      s,
		ContentType: ContentTypePlain,
		Body:        []byte(s.String()),
	}
}

// Bytes serializes the response. Content-Length is the byte length of the
// body, never a character count.
func (r Response) Bytes() []byte {
	contentType := r.ContentType
	if contentType == "" {
		contentType = ContentTypeBinary
	}

	length := strconv.Itoa(len(r.Body))
	out := make([]byte, 0, 64+len(contentType)+len(length)+len(r.Body))
	out = append(out, "HTTP/1.1 "...)
	out = append(out, r.Status.String()...)
	out = append(out, "\r\nContent-Length: "...)
	out = append(out, length...)
	out = append(out, "\r\nContent-Type: "...)
	out = append(out, contentType...)
	out = append(out, "\r\n\r\n"...)
	out = append(out, r.Body...)
	return out
}
