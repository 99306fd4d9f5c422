// Package memory provides the in-memory transactional registry store. The
// sqlite and postgres backends embed it and persist its snapshots.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"creaturecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

// CommitHook runs after rules pass and before the pending state replaces the
// committed state. An error aborts the commit.
type CommitHook func(ctx context.Context, pending Snapshot) error

// Store holds registry state and serializes transactions behind a single
// write lock. Each transaction works on a clone that is swapped in only when
// fn, the rules engine, and every commit hook succeed.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	hooks  []CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{state: newMemoryState(), engine: engine}
}

// OnCommit registers a hook invoked with the pending snapshot of every
// transaction that changed state.
func (s *Store) OnCommit(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// RulesEngine returns the engine evaluated before each commit.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// ExportState returns a deep copy of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the committed state after validating the snapshot.
func (s *Store) ImportState(snapshot Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
	return nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{view: view{state: s.state.clone()}}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if len(tx.changes) > 0 && len(s.hooks) > 0 {
		pending := snapshotFromMemoryState(tx.state)
		for _, hook := range s.hooks {
			if err := hook(ctx, pending); err != nil {
				return result, fmt.Errorf("commit: %w", err)
			}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(view{state: snapshot})
}

// view implements domain.TransactionView over one state value.
type view struct {
	state memoryState
}

func (v view) EntityCount() domain.EntityID { return v.state.count }

func (v view) FindEntity(id domain.EntityID) (domain.Entity, bool) {
	g, ok := v.state.entities[id]
	if !ok {
		return domain.Entity{}, false
	}
	return domain.Entity{ID: id, Genome: g}, true
}

func (v view) FindRecord(id domain.EntityID) (domain.Record, bool) {
	entity, ok := v.FindEntity(id)
	if !ok {
		return domain.Record{}, false
	}
	rec := domain.Record{Entity: entity, Owner: v.state.owners[id]}
	if p, ok := v.state.parents[id]; ok {
		rec.Parents = &p
	}
	return rec, true
}

func (v view) ListRecords() []domain.Record {
	ids := make([]domain.EntityID, 0, len(v.state.entities))
	for id := range v.state.entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		rec, _ := v.FindRecord(id)
		out = append(out, rec)
	}
	return out
}

func (v view) OwnerOf(id domain.EntityID) (domain.AccountID, bool) {
	owner, ok := v.state.owners[id]
	return owner, ok
}

func (v view) IsOwnedBy(account domain.AccountID, id domain.EntityID) bool {
	_, ok := v.state.owned.get(account, id)
	return ok
}

func (v view) OwnedBy(account domain.AccountID) []domain.EntityID {
	return v.state.owned.keys(account)
}

func (v view) ParentsOf(id domain.EntityID) (domain.Parents, bool) {
	p, ok := v.state.parents[id]
	return p, ok
}

func (v view) ChildrenOf(parent domain.EntityID) []domain.EntityID {
	return v.state.children.keys(parent)
}

func (v view) HasChild(parent, child domain.EntityID) bool {
	_, ok := v.state.children.get(parent, child)
	return ok
}

func (v view) PartnersOf(id domain.EntityID) []domain.EntityID {
	return v.state.partners.of(id)
}

func (v view) PartnerEntry(id, partner domain.EntityID) (domain.EntityID, bool) {
	return v.state.partners.get(id, partner)
}

// transaction is a mutation set applied to a cloned state. Reads observe the
// pending writes.
type transaction struct {
	view
	changes []domain.Change
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// InsertEntity stores a new creature and every index entry that derives from
// it. All checks run before the first write.
func (tx *transaction) InsertEntity(entity domain.Entity, owner domain.AccountID, parents *domain.Parents) error {
	st := &tx.state
	if owner == "" {
		return fmt.Errorf("creature %d: owner required", entity.ID)
	}
	if st.count == domain.MaxEntityID {
		id := entity.ID
		return domain.NewTransitionError(domain.KindCountOverflow, "insert", &id, nil)
	}
	if entity.ID != st.count {
		return fmt.Errorf("creature %d: next id is %d", entity.ID, st.count)
	}
	if _, exists := st.entities[entity.ID]; exists {
		return fmt.Errorf("creature %d already exists", entity.ID)
	}
	if parents != nil {
		if parents.First == parents.Second {
			return fmt.Errorf("creature %d: parents must differ", entity.ID)
		}
		for _, pid := range []domain.EntityID{parents.First, parents.Second} {
			if _, ok := st.entities[pid]; !ok {
				return fmt.Errorf("creature %d: parent %d not found", entity.ID, pid)
			}
		}
	}

	st.entities[entity.ID] = entity.Genome
	st.count = entity.ID + 1
	st.owners[entity.ID] = owner
	st.owned.insert(owner, entity.ID, entity.ID)
	after := domain.Record{Entity: entity, Owner: owner}
	if parents != nil {
		p := *parents
		st.parents[entity.ID] = p
		st.children.insert(p.First, entity.ID, entity.ID)
		st.children.insert(p.Second, entity.ID, entity.ID)
		st.partners.link(p.First, p.Second)
		after.Parents = &p
	}
	tx.recordChange(domain.Change{Entity: domain.EntityCreature, Action: domain.ActionCreate, ID: entity.ID, After: after})
	return nil
}

// MoveEntity reassigns ownership of an existing creature.
func (tx *transaction) MoveEntity(id domain.EntityID, from, to domain.AccountID) error {
	st := &tx.state
	current, ok := st.owners[id]
	if !ok {
		return fmt.Errorf("creature %d not found", id)
	}
	if current != from {
		return fmt.Errorf("creature %d is not owned by %s", id, from)
	}
	if to == "" || to == from {
		return fmt.Errorf("creature %d: invalid destination %q", id, to)
	}
	before, _ := tx.FindRecord(id)

	st.owners[id] = to
	st.owned.remove(from, id)
	st.owned.insert(to, id, id)

	after := before
	after.Owner = to
	tx.recordChange(domain.Change{Entity: domain.EntityCreature, Action: domain.ActionTransfer, ID: id, Before: before, After: after})
	return nil
}
