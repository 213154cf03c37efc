package formula

import (
	"errors"
	"fmt"
)

// ErrorValue is the cell value produced when a formula cannot be evaluated.
const ErrorValue = "ERROR"

var (
	ErrUnresolvedColumn = errors.New("unresolved column")
	ErrUnknownFunction  = errors.New("unknown function")
	ErrArity            = errors.New("wrong number of arguments")
	ErrNotFinite        = errors.New("result is not a finite number")
)

// SyntaxError reports malformed formula text at a byte offset.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d: %s", e.Pos, e.Msg)
}
