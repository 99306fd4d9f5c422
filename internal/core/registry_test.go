package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"creaturecore/internal/infra/persistence/memory"
	"creaturecore/pkg/domain"
)

func TestCreateAllocatesDenseIDs(t *testing.T) {
	f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000})
	ctx := context.Background()
	for n := 1; n <= 5; n++ {
		id := f.mustCreate(t, "alice", uint32(n))
		if id != domain.EntityID(n-1) {
			t.Fatalf("create %d: expected id %d, got %d", n, n-1, id)
		}
		count, err := f.registry.Count(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != domain.EntityID(n) {
			t.Fatalf("create %d: expected count %d, got %d", n, n, count)
		}
	}
}

func TestCreateRecordsOwnershipAndStake(t *testing.T) {
	f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000})
	ctx := context.Background()
	id := f.mustCreate(t, "alice", 0)

	owner, ok, err := f.registry.OwnerOf(ctx, id)
	if err != nil || !ok || owner != "alice" {
		t.Fatalf("expected alice to own %d, got %q %v %v", id, owner, ok, err)
	}
	owned, _ := f.registry.OwnedBy(ctx, "alice")
	if !reflect.DeepEqual(owned, []domain.EntityID{id}) {
		t.Fatalf("unexpected owned set %v", owned)
	}
	if f.ledger.Free("alice") != 1000-testReserve || f.ledger.Reserved("alice") != testReserve {
		t.Fatalf("expected reserve of %d, free=%d reserved=%d", testReserve, f.ledger.Free("alice"), f.ledger.Reserved("alice"))
	}
	rec, ok, _ := f.registry.Entity(ctx, id)
	if !ok || rec.Genome != DeriveGenome(testSeed, "alice", 0) || rec.Parents != nil {
		t.Fatalf("unexpected record %+v", rec)
	}
	if got := f.recorder.Events(); !reflect.DeepEqual(got, []domain.Event{domain.Created("alice", id)}) {
		t.Fatalf("unexpected events %v", got)
	}
	if _, ok, _ := f.registry.ParentsOf(ctx, id); ok {
		t.Fatalf("created creature must not have parents")
	}
	if f.registry.Stake() != testReserve {
		t.Fatalf("unexpected stake %d", f.registry.Stake())
	}
}

func TestCreateGenomesDifferByOrdinal(t *testing.T) {
	f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000})
	ctx := context.Background()
	a := f.mustCreate(t, "alice", 0)
	b := f.mustCreate(t, "alice", 1)
	ra, _, _ := f.registry.Entity(ctx, a)
	rb, _, _ := f.registry.Entity(ctx, b)
	if ra.Genome == rb.Genome {
		t.Fatalf("two creates in one block share a genome")
	}
}

func TestCreateInsufficientStakeLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": testReserve + 10})
	f.mustCreate(t, "alice", 0)
	before := f.store.ExportState()

	_, err := f.registry.Create(context.Background(), origin("alice", 1))
	if !errors.Is(err, domain.ErrInsufficientStake) {
		t.Fatalf("expected InsufficientStake, got %v", err)
	}
	if !reflect.DeepEqual(before, f.store.ExportState()) {
		t.Fatalf("state mutated after declined reserve")
	}
	if f.ledger.Free("alice") != 10 {
		t.Fatalf("expected free balance 10, got %d", f.ledger.Free("alice"))
	}
	if len(f.recorder.Events()) != 1 {
		t.Fatalf("failed create emitted an event")
	}
}

func TestCreateOverflowTouchesNothing(t *testing.T) {
	mem := memory.NewStore(NewDefaultRulesEngine())
	f := newFixtureWithStore(t, mem, fullStore{mem}, map[domain.AccountID]domain.Balance{"alice": 1000})

	_, err := f.registry.Create(context.Background(), origin("alice", 0))
	if !errors.Is(err, domain.ErrCountOverflow) {
		t.Fatalf("expected CountOverflow, got %v", err)
	}
	var te *domain.TransitionError
	if !errors.As(err, &te) || te.Op != OpCreate {
		t.Fatalf("expected create op on overflow error, got %v", err)
	}
	if f.ledger.Free("alice") != 1000 || f.ledger.Reserved("alice") != 0 {
		t.Fatalf("overflow touched stake")
	}
	if f.store.ExportState().Count != 0 {
		t.Fatalf("overflow mutated store")
	}
}

func TestCreateCommitFailureReleasesStake(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	store.OnCommit(func(context.Context, memory.Snapshot) error { return errors.New("disk full") })
	f := newFixtureWithStore(t, store, store, map[domain.AccountID]domain.Balance{"alice": 1000})

	if _, err := f.registry.Create(context.Background(), origin("alice", 0)); err == nil {
		t.Fatalf("expected commit failure")
	}
	if f.ledger.Free("alice") != 1000 || f.ledger.Reserved("alice") != 0 {
		t.Fatalf("stake not compensated: free=%d reserved=%d", f.ledger.Free("alice"), f.ledger.Reserved("alice"))
	}
	if len(f.recorder.Events()) != 0 {
		t.Fatalf("event emitted for failed commit")
	}
}

func TestCreateBlockedByRulesReleasesStake(t *testing.T) {
	engine := NewDefaultRulesEngine()
	engine.Register(blockRule{})
	store := memory.NewStore(engine)
	f := newFixtureWithStore(t, store, store, map[domain.AccountID]domain.Balance{"alice": 1000})

	_, err := f.registry.Create(context.Background(), origin("alice", 0))
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if f.ledger.Reserved("alice") != 0 {
		t.Fatalf("stake held after blocked commit")
	}
}

func TestTransferMovesOwnershipAndStake(t *testing.T) {
	f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000, "bob": 1000})
	ctx := context.Background()
	id := f.mustCreate(t, "alice", 0)

	if err := f.registry.Transfer(ctx, origin("alice", 1), "bob", id); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, _, _ := f.registry.OwnerOf(ctx, id)
	if owner != "bob" {
		t.Fatalf("expected bob to own %d, got %s", id, owner)
	}
	aliceOwned, _ := f.registry.OwnedBy(ctx, "alice")
	bobOwned, _ := f.registry.OwnedBy(ctx, "bob")
	if len(aliceOwned) != 0 || !reflect.DeepEqual(bobOwned, []domain.EntityID{id}) {
		t.Fatalf("owned sets not moved: alice=%v bob=%v", aliceOwned, bobOwned)
	}
	if f.ledger.Reserved("alice") != 0 || f.ledger.Free("alice") != 1000 {
		t.Fatalf("sender stake not released")
	}
	if f.ledger.Reserved("bob") != testReserve {
		t.Fatalf("receiver stake not reserved")
	}
	events := f.recorder.Events()
	if events[len(events)-1] != domain.Transferred("alice", "bob", id) {
		t.Fatalf("unexpected last event %+v", events[len(events)-1])
	}
}

func TestTransferFailuresLeaveStateUnchanged(t *testing.T) {
	cases := []struct {
		name   string
		caller domain.AccountID
		dest   domain.AccountID
		id     domain.EntityID
		want   error
	}{
		{name: "missing", caller: "alice", dest: "bob", id: 9, want: domain.ErrNotFound},
		{name: "not owner", caller: "bob", dest: "carol", id: 0, want: domain.ErrNotOwner},
		{name: "self", caller: "alice", dest: "alice", id: 0, want: domain.ErrSelfTransfer},
		{name: "poor receiver", caller: "alice", dest: "pauper", id: 0, want: domain.ErrInsufficientStake},
		{name: "unknown receiver", caller: "alice", dest: "", id: 0, want: domain.ErrInsufficientStake},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000, "bob": 1000, "carol": 1000, "pauper": testReserve - 1})
			f.mustCreate(t, "alice", 0)
			before := f.store.ExportState()
			balances := f.ledger.Snapshot()

			err := f.registry.Transfer(context.Background(), origin(tc.caller, 1), tc.dest, tc.id)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !reflect.DeepEqual(before, f.store.ExportState()) {
				t.Fatalf("store mutated by failed transfer")
			}
			if !reflect.DeepEqual(balances, f.ledger.Snapshot()) {
				t.Fatalf("stake mutated by failed transfer")
			}
			if len(f.recorder.Events()) != 1 {
				t.Fatalf("failed transfer emitted an event")
			}
		})
	}
}

func TestTransferNotOwnerCheckedBeforeSelf(t *testing.T) {
	f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000})
	f.mustCreate(t, "alice", 0)
	err := f.registry.Transfer(context.Background(), origin("bob", 0), "bob", 0)
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected NotOwner, got %v", err)
	}
}

func TestBreedRecordsLineage(t *testing.T) {
	f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000})
	ctx := context.Background()
	a := f.mustCreate(t, "alice", 0)
	b := f.mustCreate(t, "alice", 1)

	child, err := f.registry.Breed(ctx, origin("alice", 2), a, b)
	if err != nil {
		t.Fatalf("breed: %v", err)
	}
	if child != 2 {
		t.Fatalf("expected child id 2, got %d", child)
	}
	parents, ok, _ := f.registry.ParentsOf(ctx, child)
	if !ok || parents != (domain.Parents{First: a, Second: b}) {
		t.Fatalf("unexpected parents %+v", parents)
	}
	for _, p := range []domain.EntityID{a, b} {
		children, _ := f.registry.ChildrenOf(ctx, p)
		if !reflect.DeepEqual(children, []domain.EntityID{child}) {
			t.Fatalf("children of %d: %v", p, children)
		}
	}
	pa, _ := f.registry.PartnersOf(ctx, a)
	pb, _ := f.registry.PartnersOf(ctx, b)
	if !reflect.DeepEqual(pa, []domain.EntityID{b}) || !reflect.DeepEqual(pb, []domain.EntityID{a}) {
		t.Fatalf("partners not symmetric: %v %v", pa, pb)
	}
	if f.ledger.Reserved("alice") != 3*testReserve {
		t.Fatalf("expected three reserves, got %d", f.ledger.Reserved("alice"))
	}
	events := f.recorder.Events()
	if events[len(events)-1] != domain.Created("alice", child) {
		t.Fatalf("unexpected last event %+v", events[len(events)-1])
	}
}

func TestBreedGenomeFollowsSelector(t *testing.T) {
	f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000})
	ctx := context.Background()
	a := f.mustCreate(t, "alice", 0)
	b := f.mustCreate(t, "alice", 1)
	child, err := f.registry.Breed(ctx, origin("alice", 7), b, a)
	if err != nil {
		t.Fatalf("breed: %v", err)
	}
	ra, _, _ := f.registry.Entity(ctx, a)
	rb, _, _ := f.registry.Entity(ctx, b)
	rc, _, _ := f.registry.Entity(ctx, child)
	selector := DeriveGenome(testSeed, "alice", 7)
	for i := 0; i < domain.GenomeSize; i++ {
		want := (selector[i] & rb.Genome[i]) | (^selector[i] & ra.Genome[i])
		if rc.Genome[i] != want {
			t.Fatalf("byte %d: expected %02x, got %02x", i, want, rc.Genome[i])
		}
	}
}

func TestBreedSameParentAlwaysFails(t *testing.T) {
	f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000})
	f.mustCreate(t, "alice", 0)
	for _, caller := range []domain.AccountID{"alice", "mallory"} {
		for _, id := range []domain.EntityID{0, 42} {
			if _, err := f.registry.Breed(context.Background(), origin(caller, 1), id, id); !errors.Is(err, domain.ErrSameParent) {
				t.Fatalf("%s breeding %d with itself: expected SameParent, got %v", caller, id, err)
			}
		}
	}
}

func TestBreedFailuresLeaveStateUnchanged(t *testing.T) {
	cases := []struct {
		name   string
		caller domain.AccountID
		a, b   domain.EntityID
		want   error
	}{
		{name: "first missing", caller: "alice", a: 9, b: 0, want: domain.ErrNotFound},
		{name: "second missing", caller: "alice", a: 0, b: 9, want: domain.ErrNotFound},
		{name: "missing before foreign", caller: "alice", a: 2, b: 9, want: domain.ErrNotFound},
		{name: "first foreign", caller: "alice", a: 2, b: 0, want: domain.ErrNotOwner},
		{name: "second foreign", caller: "alice", a: 0, b: 2, want: domain.ErrNotOwner},
		{name: "no stake", caller: "bob", a: 2, b: 3, want: domain.ErrInsufficientStake},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000, "bob": 2 * testReserve})
			f.mustCreate(t, "alice", 0)
			f.mustCreate(t, "alice", 1)
			f.mustCreate(t, "bob", 2)
			f.mustCreate(t, "bob", 3)
			before := f.store.ExportState()
			balances := f.ledger.Snapshot()

			_, err := f.registry.Breed(context.Background(), origin(tc.caller, 4), tc.a, tc.b)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !reflect.DeepEqual(before, f.store.ExportState()) {
				t.Fatalf("store mutated by failed breed")
			}
			if !reflect.DeepEqual(balances, f.ledger.Snapshot()) {
				t.Fatalf("stake mutated by failed breed")
			}
		})
	}
}

func TestBreedOverflow(t *testing.T) {
	mem := memory.NewStore(NewDefaultRulesEngine())
	seed := newFixtureWithStore(t, mem, mem, map[domain.AccountID]domain.Balance{"alice": 1000})
	seed.mustCreate(t, "alice", 0)
	seed.mustCreate(t, "alice", 1)

	f := newFixtureWithStore(t, mem, fullStore{mem}, map[domain.AccountID]domain.Balance{"alice": 1000})
	if _, err := f.registry.Breed(context.Background(), origin("alice", 2), 0, 1); !errors.Is(err, domain.ErrCountOverflow) {
		t.Fatalf("expected CountOverflow, got %v", err)
	}
	if f.ledger.Reserved("alice") != 0 {
		t.Fatalf("overflow reserved stake")
	}
}

func TestBreedAfterTransferUsesNewOwner(t *testing.T) {
	f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000, "bob": 1000})
	ctx := context.Background()
	a := f.mustCreate(t, "alice", 0)
	b := f.mustCreate(t, "alice", 1)
	if err := f.registry.Transfer(ctx, origin("alice", 2), "bob", a); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := f.registry.Breed(ctx, origin("alice", 3), a, b); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected NotOwner after transfer, got %v", err)
	}
	if err := f.registry.Transfer(ctx, origin("alice", 4), "bob", b); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := f.registry.Breed(ctx, origin("bob", 5), a, b); err != nil {
		t.Fatalf("bob breed: %v", err)
	}
}

func TestRegistryObservability(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}
	f := newFixture(t, map[domain.AccountID]domain.Balance{"alice": 1000},
		WithMetricsRecorder(metrics), WithTracer(tracer), WithLogger(logger))
	ctx := context.Background()
	id := f.mustCreate(t, "alice", 0)
	_ = f.registry.Transfer(ctx, origin("alice", 1), "alice", id)
	_, _ = f.registry.Breed(ctx, origin("alice", 2), id, id)

	if !metrics.has(OpCreate, true) || !metrics.has(OpTransfer, false) || !metrics.has(OpBreed, false) {
		t.Fatalf("unexpected metrics %+v", metrics.calls)
	}
	if !reflect.DeepEqual(tracer.started, []string{OpCreate, OpTransfer, OpBreed}) {
		t.Fatalf("unexpected spans %v", tracer.started)
	}
	if len(tracer.ended) != 3 || tracer.ended[0].err != nil || tracer.ended[1].err == nil {
		t.Fatalf("unexpected span ends %+v", tracer.ended)
	}
	if logger.count("info") != 1 || logger.count("warn") != 2 {
		t.Fatalf("unexpected log levels %+v", logger.entries)
	}
}

func TestRegistryDefaults(t *testing.T) {
	store := memory.NewStore(nil)
	r := NewRegistry(store, nil, testSeed, WithLogger(nil), WithMetricsRecorder(nil), WithTracer(nil), WithEventSink(nil), WithClock(nil))
	if r.Stake() != DefaultReserve {
		t.Fatalf("expected default reserve, got %d", r.Stake())
	}
	if r.Store() != store {
		t.Fatalf("expected store accessor to return the store")
	}
	if _, err := r.Breed(context.Background(), origin("alice", 0), 1, 1); !errors.Is(err, domain.ErrSameParent) {
		t.Fatalf("expected SameParent with noop collaborators, got %v", err)
	}
}
