// Package utils provides shared helpers used across the kernel and its
// adapters.
package utils

import "fmt"

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Kind classifies a KernelError into the error taxonomy used throughout the
// runtime (validation, access, execution, ownership, publish, load, env).
type Kind string

const (
	KindValidation Kind = "validation"
	KindAccess     Kind = "access"
	KindExecution  Kind = "execution"
	KindOwnership  Kind = "ownership"
	KindPublish    Kind = "publish"
	KindLoad       Kind = "load"
	KindEnv        Kind = "environment"
)

// KernelError is the typed error carried across package boundaries so
// callers can discriminate failures with errors.As instead of string
// matching on Error().
type KernelError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *KernelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *KernelError) Unwrap() error { return e.Err }

// NewError builds a KernelError of the given kind. err may be nil.
func NewError(kind Kind, msg string, err error) *KernelError {
	return &KernelError{Kind: kind, Msg: msg, Err: err}
}
