package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"creaturecore/internal/infra/events"
	"creaturecore/internal/infra/persistence/memory"
	"creaturecore/internal/infra/randomness"
	"creaturecore/internal/infra/stake"
	"creaturecore/pkg/domain"
)

const testReserve domain.Balance = 100

var testSeed = randomness.Fixed("block-seed")

type fixture struct {
	store    *memory.Store
	ledger   *stake.Ledger
	recorder *events.Recorder
	registry *Registry
}

func newFixture(t *testing.T, balances map[domain.AccountID]domain.Balance, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	return newFixtureWithStore(t, store, store, balances, opts...)
}

func newFixtureWithStore(t *testing.T, mem *memory.Store, ps domain.PersistentStore, balances map[domain.AccountID]domain.Balance, opts ...Option) *fixture {
	t.Helper()
	ledger := stake.NewLedger(balances)
	recorder := &events.Recorder{}
	opts = append([]Option{WithReserve(testReserve), WithEventSink(recorder)}, opts...)
	return &fixture{
		store:    mem,
		ledger:   ledger,
		recorder: recorder,
		registry: NewRegistry(ps, ledger, testSeed, opts...),
	}
}

func origin(account domain.AccountID, ordinal uint32) domain.Origin {
	return domain.Origin{Account: account, Ordinal: ordinal}
}

func (f *fixture) mustCreate(t *testing.T, account domain.AccountID, ordinal uint32) domain.EntityID {
	t.Helper()
	id, err := f.registry.Create(context.Background(), origin(account, ordinal))
	if err != nil {
		t.Fatalf("create for %s: %v", account, err)
	}
	return id
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

// fullStore reports the identifier space as exhausted to every transaction.
type fullStore struct {
	*memory.Store
}

func (s fullStore) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	return s.Store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return fn(fullTx{tx})
	})
}

type fullTx struct {
	domain.Transaction
}

func (fullTx) EntityCount() domain.EntityID { return domain.MaxEntityID }

// blockRule rejects every transaction that changes state.
type blockRule struct{}

func (blockRule) Name() string { return "always_block" }

func (blockRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, c := range changes {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "always_block",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("change %s %d", c.Action, c.ID),
			Entity:   c.Entity,
			EntityID: c.ID,
		})
	}
	return res, nil
}
