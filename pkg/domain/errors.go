package domain

import (
	"errors"
	"fmt"
)

// ErrorKind names a terminal transition failure.
type ErrorKind string

const (
	KindCountOverflow     ErrorKind = "CountOverflow"
	KindNotFound          ErrorKind = "NotFound"
	KindNotOwner          ErrorKind = "NotOwner"
	KindSameParent        ErrorKind = "SameParent"
	KindInsufficientStake ErrorKind = "InsufficientStake"
	KindSelfTransfer      ErrorKind = "SelfTransfer"
)

// TransitionError is returned when a registry transition aborts. The
// transition leaves no observable mutation behind.
type TransitionError struct {
	Kind ErrorKind
	Op   string
	ID   *EntityID
	Err  error
}

// Sentinels for errors.Is matching; they compare by Kind only.
var (
	ErrCountOverflow     = &TransitionError{Kind: KindCountOverflow}
	ErrNotFound          = &TransitionError{Kind: KindNotFound}
	ErrNotOwner          = &TransitionError{Kind: KindNotOwner}
	ErrSameParent        = &TransitionError{Kind: KindSameParent}
	ErrInsufficientStake = &TransitionError{Kind: KindInsufficientStake}
	ErrSelfTransfer      = &TransitionError{Kind: KindSelfTransfer}
)

var kindMessages = map[ErrorKind]string{
	KindCountOverflow:     "creature count overflow",
	KindNotFound:          "creature not found",
	KindNotOwner:          "caller does not own creature",
	KindSameParent:        "breeding requires two different parents",
	KindInsufficientStake: "insufficient balance to reserve stake",
	KindSelfTransfer:      "cannot transfer to self",
}

// NewTransitionError builds an error of the given kind for op.
func NewTransitionError(kind ErrorKind, op string, id *EntityID, cause error) *TransitionError {
	return &TransitionError{Kind: kind, Op: op, ID: id, Err: cause}
}

func (e *TransitionError) Error() string {
	msg := kindMessages[e.Kind]
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.ID != nil {
		msg = fmt.Sprintf("%s (id %d)", msg, *e.ID)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches any TransitionError of the same kind.
func (e *TransitionError) Is(target error) bool {
	t, ok := target.(*TransitionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *TransitionError) Unwrap() error { return e.Err }

// KindOf extracts the transition kind from err.
func KindOf(err error) (ErrorKind, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}
