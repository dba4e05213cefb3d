// Package apperr defines the error taxonomy shared across the decision record packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidArgument   = errors.New("invalid relation argument")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrNotConfigured     = errors.New("decision record directory not found")
)

// TargetError reports which record of a multi-target operation failed.
// Mutations applied to earlier targets are not rolled back.
type TargetError struct {
	ID  int
	Err error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("record %04d: %v", e.ID, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// Target wraps err with the identifier it failed on. A nil err stays nil.
func Target(id int, err error) error {
	if err == nil {
		return nil
	}
	return &TargetError{ID: id, Err: err}
}
