package domain

import "context"

// TransactionView provides read-only access to registry state. Inside a
// transaction it reflects the pending writes; outside it is a committed
// snapshot.
type TransactionView interface {
	EntityCount() EntityID
	FindEntity(id EntityID) (Entity, bool)
	FindRecord(id EntityID) (Record, bool)
	ListRecords() []Record
	OwnerOf(id EntityID) (AccountID, bool)
	IsOwnedBy(account AccountID, id EntityID) bool
	OwnedBy(account AccountID) []EntityID
	ParentsOf(id EntityID) (Parents, bool)
	ChildrenOf(parent EntityID) []EntityID
	HasChild(parent, child EntityID) bool
	PartnersOf(id EntityID) []EntityID
	PartnerEntry(id, partner EntityID) (EntityID, bool)
}

// Transaction exposes the write operations a persistence implementation must
// support within an atomic scope. Each write updates every affected index in
// one call so no partial index state is ever observable.
type Transaction interface {
	TransactionView
	// InsertEntity stores a new creature, advances the count, records its
	// owner, and, for bred creatures, the parentage, children and partner
	// entries.
	InsertEntity(entity Entity, owner AccountID, parents *Parents) error
	// MoveEntity reassigns ownership and moves the owned-set membership.
	MoveEntity(id EntityID, from, to AccountID) error
}

// PersistentStore is the transactional host for registry state.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	RulesEngine() *RulesEngine
	Close() error
}
