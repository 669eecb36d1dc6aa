// Package errstack reads stack traces recorded by github.com/pkg/errors.
package errstack

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

type causer interface {
	Cause() error
}

// Of returns the deepest stack recorded along err's chain, formatted with
// file and line per frame, or "" when no link carries one. Both Cause and
// Unwrap links are followed.
func Of(err error) string {
	var deepest stackTracer
	for e := err; e != nil; {
		if st, ok := e.(stackTracer); ok {
			deepest = st
		}
		if c, ok := e.(causer); ok {
			e = c.Cause()
			continue
		}
		e = errors.Unwrap(e)
	}
	if deepest == nil {
		return ""
	}
	return fmt.Sprintf("%+v", deepest.StackTrace())
}
