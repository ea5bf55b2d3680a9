package wkt

import (
	"errors"
	"fmt"
)

// ErrSyntax is wrapped by every *SyntaxError.
var ErrSyntax = errors.New("wkt: syntax error")

// SyntaxError reports malformed WKT at a token.
type SyntaxError struct {
	Token  *Token // nil when the input ended early
	Offset int64
	Msg    string
	Err    error // underlying cause, such as geostream.ErrInvalidGeometry
}

func newSyntaxError(tok *Token, format string, args ...any) *SyntaxError {
	e := &SyntaxError{Token: tok, Msg: fmt.Sprintf(format, args...)}
	if tok != nil {
		e.Offset = tok.Offset
	}
	return e
}

func (e *SyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wkt: %s at offset %d: %v", e.Msg, e.Offset, e.Err)
	}
	return fmt.Sprintf("wkt: %s at offset %d, found %s", e.Msg, e.Offset, e.Token)
}

func (e *SyntaxError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrSyntax, e.Err}
	}
	return []error{ErrSyntax}
}
