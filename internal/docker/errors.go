package docker

import (
	"errors"
	"fmt"
)

type Kind int

const (
	BuildFailed Kind = iota
	StartFailed
	ContainerNotFound
	BridgeNotFound
	InvalidScope
)

func (k Kind) String() string {
	switch k {
	case BuildFailed:
		return "build failed"
	case StartFailed:
		return "start failed"
	case ContainerNotFound:
		return "container not found"
	case BridgeNotFound:
		return "proxy bridge not found"
	case InvalidScope:
		return "invalid cleanup scope"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every driver operation that fails for a reason
// the driver itself understands. Subject is the image tag, stack or scope.
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %q", e.Kind, e.Subject)
	}
	return fmt.Sprintf("%s: %q: %v", e.Kind, e.Subject, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsKind(err error, kind Kind) bool {
	var derr *Error
	return errors.As(err, &derr) && derr.Kind == kind
}

func newError(kind Kind, subject string, err error) error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}
