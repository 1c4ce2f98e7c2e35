// Package http implements the wire-level pieces of the rawhttpd server:
// framing a request header block off a connection under a size and time
// budget, parsing the request line, routing to fixed-content handlers or to
// files under a confined root, and serializing responses.
//
// Nothing here owns a socket or a goroutine. The connection lifecycle lives
// in pkg/adapter/http.
package http
