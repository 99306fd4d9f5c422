package core

import (
	"context"
	"errors"
	"time"

	"creaturecore/pkg/domain"
)

// DefaultReserve is the stake held per owned creature when no reserve is
// configured.
const DefaultReserve domain.Balance = 5000

// Registry executes the create, transfer and breed transitions against a
// transactional store. Each transition validates every precondition and
// reserves stake before it writes, so a failed call leaves neither the store
// nor the stake ledger changed.
type Registry struct {
	store   domain.PersistentStore
	stake   domain.StakeLedger
	random  domain.RandomnessSource
	events  domain.EventSink
	reserve domain.Balance
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	now     func() time.Time
}

// Option configures optional Registry collaborators.
type Option func(*Registry)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetricsRecorder sets the per-operation metrics recorder.
func WithMetricsRecorder(metrics MetricsRecorder) Option {
	return func(r *Registry) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(tracer Tracer) Option {
	return func(r *Registry) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithEventSink sets where Created and Transferred notifications go.
func WithEventSink(sink domain.EventSink) Option {
	return func(r *Registry) {
		if sink != nil {
			r.events = sink
		}
	}
}

// WithReserve overrides the per-creature stake.
func WithReserve(amount domain.Balance) Option {
	return func(r *Registry) {
		r.reserve = amount
	}
}

// WithClock overrides the time source used for durations.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry builds a registry over store, staking against stake and drawing
// genome seeds from random.
func NewRegistry(store domain.PersistentStore, stake domain.StakeLedger, random domain.RandomnessSource, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		stake:   stake,
		random:  random,
		events:  noopSink{},
		reserve: DefaultReserve,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying store.
func (r *Registry) Store() domain.PersistentStore { return r.store }

// Stake returns the reserve held per owned creature.
func (r *Registry) Stake() domain.Balance { return r.reserve }

// Create mints a creature owned by origin.Account with a derived genome.
func (r *Registry) Create(ctx context.Context, origin domain.Origin) (id domain.EntityID, err error) {
	ctx, done := r.observe(ctx, OpCreate, origin)
	defer func() { done(err, "id", id) }()

	seed := r.random.Seed(ctx)
	var staked stakeHold
	_, err = r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		next, err := NextID(tx.EntityCount())
		if err != nil {
			return withOp(err, OpCreate)
		}
		genome := DeriveGenome(seed, origin.Account, origin.Ordinal)
		if err := r.hold(ctx, &staked, OpCreate, origin.Account, next); err != nil {
			return err
		}
		id = next
		return tx.InsertEntity(domain.Entity{ID: next, Genome: genome}, origin.Account, nil)
	})
	if err != nil {
		r.release(ctx, staked)
		return 0, err
	}
	r.events.Emit(ctx, domain.Created(origin.Account, id))
	return id, nil
}

// Transfer moves ownership of id from origin.Account to dest. The receiver's
// stake is reserved before the move; the sender's is released once the move
// is committed.
func (r *Registry) Transfer(ctx context.Context, origin domain.Origin, dest domain.AccountID, id domain.EntityID) (err error) {
	ctx, done := r.observe(ctx, OpTransfer, origin)
	defer func() { done(err, "id", id, "to", string(dest)) }()

	caller := origin.Account
	var staked stakeHold
	_, err = r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		owner, ok := tx.OwnerOf(id)
		if !ok {
			return domain.NewTransitionError(domain.KindNotFound, OpTransfer, &id, nil)
		}
		if owner != caller {
			return domain.NewTransitionError(domain.KindNotOwner, OpTransfer, &id, nil)
		}
		if dest == caller {
			return domain.NewTransitionError(domain.KindSelfTransfer, OpTransfer, &id, nil)
		}
		if err := r.hold(ctx, &staked, OpTransfer, dest, id); err != nil {
			return err
		}
		return tx.MoveEntity(id, caller, dest)
	})
	if err != nil {
		r.release(ctx, staked)
		return err
	}
	if leftover := r.stake.Unreserve(ctx, caller, r.reserve); leftover > 0 {
		r.logger.Warn("stake release short", "account", string(caller), "id", id, "leftover", uint64(leftover))
	}
	r.events.Emit(ctx, domain.Transferred(caller, dest, id))
	return nil
}

// Breed creates a creature owned by origin.Account whose genome mixes the
// genomes of idA and idB bit by bit.
func (r *Registry) Breed(ctx context.Context, origin domain.Origin, idA, idB domain.EntityID) (id domain.EntityID, err error) {
	ctx, done := r.observe(ctx, OpBreed, origin)
	defer func() { done(err, "id", id, "parent_a", idA, "parent_b", idB) }()

	if idA == idB {
		return 0, domain.NewTransitionError(domain.KindSameParent, OpBreed, &idA, nil)
	}
	caller := origin.Account
	seed := r.random.Seed(ctx)
	var staked stakeHold
	_, err = r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ownerA, okA := tx.OwnerOf(idA)
		if !okA {
			return domain.NewTransitionError(domain.KindNotFound, OpBreed, &idA, nil)
		}
		ownerB, okB := tx.OwnerOf(idB)
		if !okB {
			return domain.NewTransitionError(domain.KindNotFound, OpBreed, &idB, nil)
		}
		if ownerA != caller {
			return domain.NewTransitionError(domain.KindNotOwner, OpBreed, &idA, nil)
		}
		if ownerB != caller {
			return domain.NewTransitionError(domain.KindNotOwner, OpBreed, &idB, nil)
		}
		parentA, okA := tx.FindEntity(idA)
		parentB, okB := tx.FindEntity(idB)
		if !okA || !okB {
			return domain.NewTransitionError(domain.KindNotFound, OpBreed, nil, errors.New("owned creature has no genome"))
		}
		next, err := NextID(tx.EntityCount())
		if err != nil {
			return withOp(err, OpBreed)
		}
		selector := DeriveGenome(seed, caller, origin.Ordinal)
		genome := CombineGenomes(parentA.Genome, parentB.Genome, selector)
		if err := r.hold(ctx, &staked, OpBreed, caller, next); err != nil {
			return err
		}
		id = next
		return tx.InsertEntity(domain.Entity{ID: next, Genome: genome}, caller, &domain.Parents{First: idA, Second: idB})
	})
	if err != nil {
		r.release(ctx, staked)
		return 0, err
	}
	r.events.Emit(ctx, domain.Created(caller, id))
	return id, nil
}

// stakeHold remembers a successful reserve so it can be undone when the
// enclosing transaction does not commit.
type stakeHold struct {
	account domain.AccountID
	amount  domain.Balance
	held    bool
}

func (r *Registry) hold(ctx context.Context, h *stakeHold, op string, account domain.AccountID, id domain.EntityID) error {
	if err := r.stake.Reserve(ctx, account, r.reserve); err != nil {
		return domain.NewTransitionError(domain.KindInsufficientStake, op, &id, err)
	}
	*h = stakeHold{account: account, amount: r.reserve, held: true}
	return nil
}

func (r *Registry) release(ctx context.Context, h stakeHold) {
	if !h.held {
		return
	}
	if leftover := r.stake.Unreserve(ctx, h.account, h.amount); leftover > 0 {
		r.logger.Warn("stake rollback short", "account", string(h.account), "leftover", uint64(leftover))
	}
}

func withOp(err error, op string) error {
	var te *domain.TransitionError
	if errors.As(err, &te) {
		cp := *te
		cp.Op = op
		return &cp
	}
	return err
}

// Entity returns the creature stored under id.
func (r *Registry) Entity(ctx context.Context, id domain.EntityID) (domain.Record, bool, error) {
	var (
		rec   domain.Record
		found bool
	)
	err := r.store.View(ctx, func(v domain.TransactionView) error {
		rec, found = v.FindRecord(id)
		return nil
	})
	return rec, found, err
}

// OwnerOf returns the owner of id.
func (r *Registry) OwnerOf(ctx context.Context, id domain.EntityID) (domain.AccountID, bool, error) {
	var (
		owner domain.AccountID
		found bool
	)
	err := r.store.View(ctx, func(v domain.TransactionView) error {
		owner, found = v.OwnerOf(id)
		return nil
	})
	return owner, found, err
}

// OwnedBy lists the creatures owned by account in ascending id order.
func (r *Registry) OwnedBy(ctx context.Context, account domain.AccountID) ([]domain.EntityID, error) {
	var ids []domain.EntityID
	err := r.store.View(ctx, func(v domain.TransactionView) error {
		ids = v.OwnedBy(account)
		return nil
	})
	return ids, err
}

// ParentsOf returns the parents of a bred creature.
func (r *Registry) ParentsOf(ctx context.Context, id domain.EntityID) (domain.Parents, bool, error) {
	var (
		parents domain.Parents
		found   bool
	)
	err := r.store.View(ctx, func(v domain.TransactionView) error {
		parents, found = v.ParentsOf(id)
		return nil
	})
	return parents, found, err
}

// ChildrenOf lists the offspring of parent.
func (r *Registry) ChildrenOf(ctx context.Context, parent domain.EntityID) ([]domain.EntityID, error) {
	var ids []domain.EntityID
	err := r.store.View(ctx, func(v domain.TransactionView) error {
		ids = v.ChildrenOf(parent)
		return nil
	})
	return ids, err
}

// PartnersOf lists every creature id has been bred with.
func (r *Registry) PartnersOf(ctx context.Context, id domain.EntityID) ([]domain.EntityID, error) {
	var ids []domain.EntityID
	err := r.store.View(ctx, func(v domain.TransactionView) error {
		ids = v.PartnersOf(id)
		return nil
	})
	return ids, err
}

// Count returns the number of creatures ever created.
func (r *Registry) Count(ctx context.Context) (domain.EntityID, error) {
	var count domain.EntityID
	err := r.store.View(ctx, func(v domain.TransactionView) error {
		count = v.EntityCount()
		return nil
	})
	return count, err
}
