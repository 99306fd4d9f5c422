package host

import (
	"context"
	"errors"
	"testing"

	"creaturecore/internal/core"
	"creaturecore/internal/infra/persistence/memory"
	"creaturecore/internal/infra/randomness"
	"creaturecore/internal/infra/stake"
	"creaturecore/pkg/domain"
)

func signed(account string) domain.RawOrigin { return domain.RawOrigin{Signer: account} }

func newExecutor(t *testing.T, balances map[domain.AccountID]domain.Balance) (*Executor, *core.Registry, *randomness.Beacon) {
	t.Helper()
	store := memory.NewStore(core.NewDefaultRulesEngine())
	beacon := randomness.NewDeterministicBeacon([]byte("genesis"))
	reg := core.NewRegistry(store, stake.NewLedger(balances), beacon, core.WithReserve(10))
	return NewExecutor(reg, beacon), reg, beacon
}

func TestSignedAuthenticator(t *testing.T) {
	var auth SignedAuthenticator
	if _, err := auth.Authenticate(context.Background(), domain.RawOrigin{}); !errors.Is(err, ErrBadOrigin) {
		t.Fatalf("expected ErrBadOrigin, got %v", err)
	}
	if _, err := auth.Authenticate(context.Background(), signed("  ")); !errors.Is(err, ErrBadOrigin) {
		t.Fatalf("expected ErrBadOrigin for blank signer, got %v", err)
	}
	account, err := auth.Authenticate(context.Background(), signed("alice"))
	if err != nil || account != "alice" {
		t.Fatalf("unexpected account %q %v", account, err)
	}
}

func TestExecuteBlockDispatchesInOrder(t *testing.T) {
	ctx := context.Background()
	exec, reg, beacon := newExecutor(t, map[domain.AccountID]domain.Balance{"alice": 100, "bob": 100})

	receipts, err := exec.ExecuteBlock(ctx, []Call{
		{Kind: CallCreate, Origin: signed("alice")},
		{Kind: CallCreate, Origin: signed("alice")},
		{Kind: CallBreed, Origin: signed("alice"), A: 0, B: 1},
		{Kind: CallTransfer, Origin: signed("alice"), Dest: "bob", ID: 2},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exec.Block() != 1 || beacon.Block() != 1 {
		t.Fatalf("expected block 1, executor %d beacon %d", exec.Block(), beacon.Block())
	}
	for i, r := range receipts {
		if !r.OK() || r.Index != uint32(i) || r.Block != 1 || r.Account != "alice" {
			t.Fatalf("receipt %d unexpected: %+v", i, r)
		}
	}
	if receipts[2].Created == nil || *receipts[2].Created != 2 {
		t.Fatalf("breed receipt missing id: %+v", receipts[2])
	}
	if receipts[3].Created != nil {
		t.Fatalf("transfer receipt should not carry an id")
	}
	owner, _, err := reg.OwnerOf(ctx, 2)
	if err != nil || owner != "bob" {
		t.Fatalf("expected bob to own 2, got %q %v", owner, err)
	}

	// Two creates in one block differ by ordinal.
	a, _, _ := reg.Entity(ctx, 0)
	b, _, _ := reg.Entity(ctx, 1)
	if a.Genome == b.Genome {
		t.Fatalf("creates within a block share a genome")
	}
}

func TestSeedRotatesPerBlock(t *testing.T) {
	ctx := context.Background()
	exec, reg, _ := newExecutor(t, map[domain.AccountID]domain.Balance{"alice": 100})
	for block := 0; block < 2; block++ {
		if _, err := exec.ExecuteBlock(ctx, []Call{{Kind: CallCreate, Origin: signed("alice")}}); err != nil {
			t.Fatalf("block %d: %v", block, err)
		}
	}
	a, _, _ := reg.Entity(ctx, 0)
	b, _, _ := reg.Entity(ctx, 1)
	if a.Genome == b.Genome {
		t.Fatalf("same ordinal in different blocks should yield different genomes")
	}
}

func TestFailedCallsProduceReceipts(t *testing.T) {
	ctx := context.Background()
	exec, reg, _ := newExecutor(t, map[domain.AccountID]domain.Balance{"alice": 15})

	receipts, err := exec.ExecuteBlock(ctx, []Call{
		{Kind: CallCreate, Origin: domain.RawOrigin{}},
		{Kind: CallCreate, Origin: signed("alice")},
		{Kind: CallCreate, Origin: signed("alice")},
		{Kind: CallTransfer, Origin: signed("alice"), Dest: "alice", ID: 0},
		{Kind: CallBreed, Origin: signed("alice"), A: 0, B: 0},
		{Kind: CallTransfer, Origin: signed("mallory"), Dest: "alice", ID: 0},
		{Kind: CallBreed, Origin: signed("alice"), A: 0, B: 9},
		{Kind: "burn", Origin: signed("alice")},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	wantKinds := []domain.ErrorKind{
		KindBadOrigin,
		"",
		domain.KindInsufficientStake,
		domain.KindSelfTransfer,
		domain.KindSameParent,
		domain.KindNotOwner,
		domain.KindNotFound,
		"",
	}
	for i, want := range wantKinds {
		if receipts[i].ErrKind != want {
			t.Fatalf("receipt %d kind %q want %q (%v)", i, receipts[i].ErrKind, want, receipts[i].Err)
		}
	}
	if receipts[1].Err != nil {
		t.Fatalf("second call should succeed: %v", receipts[1].Err)
	}
	if receipts[7].Err == nil || receipts[7].Error == "" {
		t.Fatalf("unknown kind should fail")
	}
	if n, _ := reg.Count(ctx); n != 1 {
		t.Fatalf("expected one creature, got %d", n)
	}
}

type failingSeeds struct{}

func (failingSeeds) Advance(uint64) error { return errors.New("entropy exhausted") }

func TestSeedFailureAbortsBlock(t *testing.T) {
	store := memory.NewStore(core.NewDefaultRulesEngine())
	reg := core.NewRegistry(store, stake.NewLedger(nil), randomness.Fixed("s"))
	exec := NewExecutor(reg, failingSeeds{}, WithStartBlock(41))
	if _, err := exec.ExecuteBlock(context.Background(), []Call{{Kind: CallCreate, Origin: signed("a")}}); err == nil {
		t.Fatalf("expected advance error")
	}
	if exec.Block() != 41 {
		t.Fatalf("block should not move on failure, got %d", exec.Block())
	}
}

type denyAll struct{}

func (denyAll) Authenticate(context.Context, domain.RawOrigin) (domain.AccountID, error) {
	return "", errors.New("denied")
}

func TestCustomAuthenticator(t *testing.T) {
	store := memory.NewStore(core.NewDefaultRulesEngine())
	reg := core.NewRegistry(store, stake.NewLedger(nil), randomness.Fixed("s"))
	exec := NewExecutor(reg, nil, WithAuthenticator(denyAll{}), WithLogger(nil))
	receipts, err := exec.ExecuteBlock(context.Background(), []Call{{Kind: CallCreate, Origin: signed("alice")}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if receipts[0].OK() || receipts[0].ErrKind != "" {
		t.Fatalf("expected plain denial, got %+v", receipts[0])
	}
}
