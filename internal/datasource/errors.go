package datasource

import (
	"errors"
	"fmt"
)

// Kind discriminates the two fatal failure classes of an ingest.
type Kind int

const (
	// KindFormat marks malformed files, missing sidecars, invalid or
	// unsupported coordinate systems and inconsistent geometry types.
	KindFormat Kind = iota + 1
	// KindGeometry marks files that parse cleanly but contain geometry
	// the pipeline refuses, such as antimeridian-straddling shapes.
	KindGeometry
)

// Error is a fatal ingest failure. The kind plus the message are the
// whole contract: callers branch on the kind and on documented message
// substrings, never on an error code taxonomy.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func formatErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindFormat, msg: fmt.Sprintf(format, args...)}
}

func wrapFormatError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindFormat, msg: fmt.Sprintf(format, args...), err: err}
}

func geometryErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindGeometry, msg: fmt.Sprintf(format, args...)}
}

// IsFormatError reports whether err is a fatal format, structure or
// CRS defect.
func IsFormatError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindFormat
}

// IsGeometryError reports whether err is a fatal geometric defect.
func IsGeometryError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindGeometry
}
