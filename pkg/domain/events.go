package domain

import "context"

// EventKind discriminates registry notifications.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventTransferred EventKind = "transferred"
)

// Event is a registry notification. For EventCreated, Account is the new
// owner; for EventTransferred, Account is the sender and To the receiver.
type Event struct {
	Kind    EventKind `json:"kind"`
	Account AccountID `json:"account"`
	To      AccountID `json:"to,omitempty"`
	ID      EntityID  `json:"id"`
}

// Created builds the notification for a new creature.
func Created(owner AccountID, id EntityID) Event {
	return Event{Kind: EventCreated, Account: owner, ID: id}
}

// Transferred builds the notification for an ownership change.
func Transferred(from, to AccountID, id EntityID) Event {
	return Event{Kind: EventTransferred, Account: from, To: to, ID: id}
}

// EventSink receives registry notifications. Delivery is fire-and-forget.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// StakeLedger is the reservable currency the registry stakes against.
// Reserve may decline; Unreserve never fails and returns the amount that could
// not be released because less was reserved.
type StakeLedger interface {
	Reserve(ctx context.Context, account AccountID, amount Balance) error
	Unreserve(ctx context.Context, account AccountID, amount Balance) Balance
}

// RandomnessSource supplies the current block-level seed. The seed must be
// unpredictable to callers at submission time.
type RandomnessSource interface {
	Seed(ctx context.Context) []byte
}

// RawOrigin is an unauthenticated caller as presented to the host.
type RawOrigin struct {
	Signer string
}

// Authenticator maps a raw origin to a canonical account.
type Authenticator interface {
	Authenticate(ctx context.Context, raw RawOrigin) (AccountID, error)
}
