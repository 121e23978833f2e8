package platform

import (
	"errors"
	"fmt"
)

// Kind classifies platform call failures so callers can branch on the
// outcome instead of matching message text.
type Kind string

const (
	// KindOffline marks calls answered by the offline stub.
	KindOffline Kind = "offline"
	// KindNotFound is the defined "no rows" outcome of a single-row
	// fetch. It is not a transport failure.
	KindNotFound Kind = "not_found"
	// KindAuth covers rejected credentials and missing/expired tokens.
	KindAuth Kind = "auth"
	// KindConflict covers uniqueness violations on writes.
	KindConflict Kind = "conflict"
	// KindTransport covers network errors and unexpected statuses.
	KindTransport Kind = "transport"
)

// ErrOffline is wrapped by every error the offline stub produces.
var ErrOffline = errors.New("offline")

// Error is a classified platform call failure.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("platform: %s: %s", e.Op, msg)
	}
	return "platform: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

func offlineError(op string) *Error {
	return &Error{Kind: KindOffline, Op: op, Message: "offline", Err: ErrOffline}
}

func kindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsNotFound reports whether err is the "no rows" outcome.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// IsOffline reports whether err came from the offline stub.
func IsOffline(err error) bool { return errors.Is(err, ErrOffline) }

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return kindOf(err) == KindAuth }
