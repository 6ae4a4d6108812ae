package authdb

import (
	"errors"
	"fmt"
)

// Kind tells callers which of the failure classes an error belongs to.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindBackend: the key-value backend could not be reached or refused the command.
	KindBackend
	// KindNotFound: no live entry for the token. The caller should re-authenticate.
	KindNotFound
	// KindCorruptData: a stored value exists but does not decode into an account.
	KindCorruptData
	// KindEncode: the account given to AddAccount cannot be serialized.
	KindEncode
)

func (k Kind) String() string {
	switch k {
	case KindBackend:
		return "backend"
	case KindNotFound:
		return "not_found"
	case KindCorruptData:
		return "corrupt_data"
	case KindEncode:
		return "encode"
	default:
		return "unknown"
	}
}

// Error is returned by every TokenStore operation.
type Error struct {
	Op   string // "get", "add", "remove", "ttl"
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	msg := e.message()
	if e.Err != nil {
		return fmt.Sprintf("authdb %s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("authdb %s: %s", e.Op, msg)
}

func (e *Error) message() string {
	switch e.Kind {
	case KindBackend:
		return "backend failure"
	case KindNotFound:
		return "account not found"
	case KindCorruptData:
		return "stored account is corrupt"
	case KindEncode:
		return "account cannot be encoded"
	default:
		return "error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotFound)
// works regardless of operation and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrBackend     = &Error{Kind: KindBackend}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrCorruptData = &Error{Kind: KindCorruptData}
	ErrEncode      = &Error{Kind: KindEncode}
)

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func newError(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}
