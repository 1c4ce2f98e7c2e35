package http

import (
	"context"
	"fmt"
)

// HandlerFunc produces a complete response without looking at the request.
type HandlerFunc func() Response

// Router maps exact paths to handlers and falls back to static files.
//
// Routes are registered during startup. Freeze must be called before the
// router is shared; after that it is read-only and safe for concurrent use
// without locking.
type Router struct {
	routes map[string]HandlerFunc
	static *StaticFiles
	frozen bool
}

// NewRouter creates a router with the built-in "/" and "/about" routes.
func NewRouter(static *StaticFiles) *Router {
	r := &Router{
		routes: make(map[string]HandlerFunc),
		static: static,
	}
	r.routes["/"] = Home
	r.routes["/about"] = About
	return r
}

// Handle registers h for the exact path. Registering an existing path
// replaces it.
func (r *Router) Handle(path string, h HandlerFunc) error {
	if r.frozen {
		return fmt.Errorf("router is frozen, cannot register %q", path)
	}
	if h == nil {
		return fmt.Errorf("nil handler for %q", path)
	}
	r.routes[path] = h
	return nil
}

// Freeze makes the route table immutable.
func (r *Router) Freeze() {
	r.frozen = true
}

// Lookup returns the handler for an exact path. There is no prefix matching
// and no query stripping: "/?x=1" does not match "/".
func (r *Router) Lookup(path string) (HandlerFunc, bool) {
	h, ok := r.routes[path]
	return h, ok
}

// Len returns the number of registered routes.
func (r *Router) Len() int {
	return len(r.routes)
}

// Route answers req from the route table or, on a miss, from the
// filesystem. The method has already been checked by the caller.
func (r *Router) Route(ctx context.Context, req *Request) Response {
	if h, ok := r.Lookup(req.Path); ok {
		return h()
	}
	if r.static == nil {
		return NewErrorResponse(StatusNotFound)
	}
	return r.static.Serve(ctx, req.Path)
}
