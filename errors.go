package notifykit

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrPathNotFound is returned by Watch when a requested path does not exist.
type ErrPathNotFound struct{ Path string }

func (e *ErrPathNotFound) Error() string { return fmt.Sprintf("notifykit: path not found: %s", e.Path) }

// ErrPermissionDenied is returned when the backend refuses a subtree and
// the caller did not opt into IgnorePermissionErrors.
type ErrPermissionDenied struct{ Path string }

func (e *ErrPermissionDenied) Error() string {
	return fmt.Sprintf("notifykit: permission denied: %s", e.Path)
}

// ErrUnsupported is returned when the backend cannot observe a path at all.
type ErrUnsupported struct{ Path, Reason string }

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("notifykit: unsupported path %s: %s", e.Path, e.Reason)
}

// ErrBackend wraps an I/O fault reported by a backend syscall (setup,
// registration, stat or read). Watch and backend setup return it as
// soon as the fault occurs, without retrying.
type ErrBackend struct {
	Detail string
	Cause  error
}

func (e *ErrBackend) Error() string {
	return fmt.Sprintf("notifykit: backend error: %s: %v", e.Detail, e.Cause)
}

func (e *ErrBackend) Unwrap() error { return e.Cause }

func wrapPathNotFound(path string) error {
	return &ErrPathNotFound{Path: path}
}

func wrapPermissionDenied(path string, cause error) error {
	if cause == nil {
		return &ErrPermissionDenied{Path: path}
	}
	return errors.Wrap(&ErrPermissionDenied{Path: path}, cause.Error())
}

func wrapUnsupported(path, reason string) error {
	return &ErrUnsupported{Path: path, Reason: reason}
}

func wrapBackendError(detail string, cause error) error {
	return &ErrBackend{Detail: detail, Cause: errors.WithStack(cause)}
}
