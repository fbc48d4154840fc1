package orders

import (
	"errors"

	"github.com/safar/stockorder/internal/database"
)

// Kind tells callers how a failed order operation should be reported.
type Kind int

const (
	// KindPersistence covers store and coordinator failures and anything
	// that could not be classified more precisely.
	KindPersistence Kind = iota
	KindNotFound
	KindInsufficientStock
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInsufficientStock:
		return "insufficient stock"
	case KindInvalid:
		return "invalid request"
	default:
		return "persistence failure"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrNotFound) holds
// for every not-found failure regardless of its cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrPersistence       = &Error{Kind: KindPersistence}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrInvalid           = &Error{Kind: KindInvalid}
)

// KindOf reports the kind of err. Errors not produced by this package are
// persistence failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

func classify(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	kind := KindPersistence
	switch {
	case errors.Is(err, database.ErrProductNotFound), errors.Is(err, database.ErrOrderNotFound):
		kind = KindNotFound
	case errors.Is(err, database.ErrInsufficientStock):
		kind = KindInsufficientStock
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
