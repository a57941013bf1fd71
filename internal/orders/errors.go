package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyExists  = errors.New("order already exists")
	ErrNotFound       = errors.New("order not found")
	ErrNotCancellable = errors.New("order is not cancellable")
	ErrKeyTaken       = errors.New("idempotency key already used")
)

// Kind is the machine-readable error category surfaced to callers.
type Kind string

const (
	KindInvalidRequest     Kind = "INVALID_REQUEST"
	KindIncompatibleParts  Kind = "INCOMPATIBLE_PARTS"
	KindInsufficientStock  Kind = "INSUFFICIENT_STOCK"
	KindNotFound           Kind = "NOT_FOUND"
	KindTimeout            Kind = "TIMEOUT"
	KindStorageUnavailable Kind = "STORAGE_UNAVAILABLE"
)

// Error is the only error type the coordinator returns.
type Error struct {
	Kind      Kind
	Message   string
	Reasons   []string
	ProductID string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Reasons) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Reasons, "; "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed on retry.
func (e *Error) Retryable() bool { return e.Kind == KindTimeout }

// KindOf returns the kind carried by err. Errors that are not *Error count as
// StorageUnavailable so that no internal fault leaks as an unknown kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageUnavailable
}

func invalidf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}
