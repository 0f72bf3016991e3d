package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	CatalogQueryError Kind = "CatalogQueryError"
	TransferError     Kind = "TransferError"
	DecodeError       Kind = "DecodeError"
	RenderError       Kind = "RenderError"
	AssemblyError     Kind = "AssemblyError"
	CleanupError      Kind = "CleanupError"
)

// Error is a classified failure together with the scan key or file path
// that caused it.
type Error struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
