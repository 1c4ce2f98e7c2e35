package http

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrNotFound means a confined path does not name a readable file.
var ErrNotFound = errors.New("not found")

// StaticFiles serves file bytes from the sanitizer's root.
type StaticFiles struct {
	sanitizer *PathSanitizer
	readFile  func(name string) ([]byte, error)
}

// NewStaticFiles creates a file server confined by sanitizer.
func NewStaticFiles(sanitizer *PathSanitizer) *StaticFiles {
	return &StaticFiles{
		sanitizer: sanitizer,
		readFile:  os.ReadFile,
	}
}

// Read resolves rawPath and returns the file contents.
//
// Returns an error wrapping ErrForbiddenPath for rejected paths, ErrNotFound
// for anything that cannot be read (missing files, directories, permission
// errors) or the context error.
func (f *StaticFiles) Read(ctx context.Context, rawPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	safePath, err := f.sanitizer.Sanitize(rawPath)
	if err != nil {
		return nil, err
	}

	data, err := f.readFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, rawPath, err)
	}
	return data, nil
}

// Serve turns Read into a response: 200, 400 or 404.
func (f *StaticFiles) Serve(ctx context.Context, rawPath string) Response {
	data, err := f.Read(ctx, rawPath)
	switch {
	case err == nil:
		return Response{Status: StatusOK, ContentType: ContentTypeBinary, Body: data}
	case errors.Is(err, ErrForbiddenPath):
		return NewErrorResponse(StatusBadRequest)
	default:
		return NewErrorResponse(StatusNotFound)
	}
}
