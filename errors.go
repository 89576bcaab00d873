package autolite

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a task or system that doesn't exist in the store.
	ErrNotFound = errors.New("missing")

	// ErrExists indicates a create with a name that is already taken.
	ErrExists = errors.New("already exists")

	// ErrInherit indicates an inherited field that couldn't be resolved.
	ErrInherit = errors.New("inherit")

	// ErrPermission indicates a system held by somebody else.
	ErrPermission = errors.New("permission denied")

	// ErrPrecondition indicates an operation that isn't allowed at the entity's current state.
	ErrPrecondition = errors.New("precondition")

	// ErrScript indicates a maintenance script that exited with nonzero status.
	ErrScript = errors.New("script failed")

	// ErrWarning is a soft condition. The operation was a no-op,
	// but the caller shouldn't treat it as a failure.
	ErrWarning = errors.New("warning")
)

// Error is an error of a known kind with a message for the operator.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func errorf(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func notFound(table, name string) error {
	return errorf(ErrNotFound, "%s: %s", table, name)
}

// NotFound returns a referential error for a missing record.
// Store implementations use it, so callers can check errors.Is(err, ErrNotFound).
func NotFound(table, name string) error {
	return notFound(table, name)
}

// Exists returns a referential error for a record that is already in the store.
func Exists(table, name string) error {
	return errorf(ErrExists, "%s: %s", table, name)
}

// IsReferential reports whether err is about a missing or duplicated entity.
func IsReferential(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExists) || errors.Is(err, ErrInherit)
}

// IsPermission reports whether err is a lock conflict.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}

// IsWarning reports whether err is a soft condition.
func IsWarning(err error) bool {
	return errors.Is(err, ErrWarning)
}

// ExitCode maps an operation result to the process exit status.
// Success and warnings exit with 0, everything else with 1.
func ExitCode(err error) int {
	if err == nil || IsWarning(err) {
		return 0
	}
	return 1
}
