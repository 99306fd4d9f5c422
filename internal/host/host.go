// Package host executes registry calls in blocks: it authenticates each
// origin, rotates the randomness seed once per block and numbers calls by
// their position in the block.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"creaturecore/internal/core"
	"creaturecore/pkg/domain"
)

// ErrBadOrigin is returned for calls without a signer.
var ErrBadOrigin = errors.New("bad origin: call is not signed")

// KindBadOrigin is the receipt kind for authentication failures.
const KindBadOrigin domain.ErrorKind = "BadOrigin"

// SignedAuthenticator accepts any non-empty signer as its account.
type SignedAuthenticator struct{}

// Authenticate implements domain.Authenticator.
func (SignedAuthenticator) Authenticate(_ context.Context, raw domain.RawOrigin) (domain.AccountID, error) {
	signer := strings.TrimSpace(raw.Signer)
	if signer == "" {
		return "", ErrBadOrigin
	}
	return domain.AccountID(signer), nil
}

// CallKind selects the registry transition a call dispatches to.
type CallKind string

const (
	CallCreate   CallKind = "create"
	CallTransfer CallKind = "transfer"
	CallBreed    CallKind = "breed"
)

// Call is one signed request inside a block.
type Call struct {
	Kind   CallKind         `json:"kind" yaml:"kind"`
	Origin domain.RawOrigin `json:"origin" yaml:"origin"`
	Dest   domain.AccountID `json:"dest,omitempty" yaml:"dest,omitempty"`
	ID     domain.EntityID  `json:"id,omitempty" yaml:"id,omitempty"`
	A      domain.EntityID  `json:"a,omitempty" yaml:"a,omitempty"`
	B      domain.EntityID  `json:"b,omitempty" yaml:"b,omitempty"`
}

// Receipt reports the outcome of one call. Created is set for successful
// create and breed calls.
type Receipt struct {
	Block   uint64           `json:"block"`
	Index   uint32           `json:"index"`
	Kind    CallKind         `json:"kind"`
	Account domain.AccountID `json:"account,omitempty"`
	Created *domain.EntityID `json:"created,omitempty"`
	Error   string           `json:"error,omitempty"`
	ErrKind domain.ErrorKind `json:"error_kind,omitempty"`
	Err     error            `json:"-"`
}

// OK reports whether the call succeeded.
func (r Receipt) OK() bool { return r.Err == nil }

// Transitions is the registry surface the executor drives.
type Transitions interface {
	Create(ctx context.Context, origin domain.Origin) (domain.EntityID, error)
	Transfer(ctx context.Context, origin domain.Origin, dest domain.AccountID, id domain.EntityID) error
	Breed(ctx context.Context, origin domain.Origin, idA, idB domain.EntityID) (domain.EntityID, error)
}

// SeedAdvancer rotates the block seed.
type SeedAdvancer interface {
	Advance(block uint64) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger core.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithAuthenticator replaces the default SignedAuthenticator.
func WithAuthenticator(auth domain.Authenticator) Option {
	return func(e *Executor) {
		if auth != nil {
			e.auth = auth
		}
	}
}

// WithStartBlock sets the block number preceding the first executed block.
func WithStartBlock(block uint64) Option {
	return func(e *Executor) { e.block = block }
}

// Executor runs blocks of calls sequentially.
type Executor struct {
	registry Transitions
	seeds    SeedAdvancer
	auth     domain.Authenticator
	logger   core.Logger
	block    uint64
}

// NewExecutor builds an executor. seeds may be nil when the randomness
// source does not rotate.
func NewExecutor(registry Transitions, seeds SeedAdvancer, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		seeds:    seeds,
		auth:     SignedAuthenticator{},
		logger:   core.NewZerologLogger(zerolog.Nop()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Block returns the number of the last executed block.
func (e *Executor) Block() uint64 { return e.block }

// ExecuteBlock advances to the next block and runs calls in order. Failed
// calls produce receipts and never stop the block; only a seed rotation
// failure aborts it.
func (e *Executor) ExecuteBlock(ctx context.Context, calls []Call) ([]Receipt, error) {
	next := e.block + 1
	if e.seeds != nil {
		if err := e.seeds.Advance(next); err != nil {
			return nil, fmt.Errorf("advance to block %d: %w", next, err)
		}
	}
	e.block = next

	receipts := make([]Receipt, 0, len(calls))
	for i, call := range calls {
		receipt := e.dispatch(ctx, next, uint32(i), call)
		if receipt.Err != nil {
			e.logger.Debug("call failed", "block", next, "index", i, "kind", string(call.Kind), "error", receipt.Err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func (e *Executor) dispatch(ctx context.Context, block uint64, index uint32, call Call) Receipt {
	receipt := Receipt{Block: block, Index: index, Kind: call.Kind}
	account, err := e.auth.Authenticate(ctx, call.Origin)
	if err != nil {
		return receipt.fail(err)
	}
	receipt.Account = account
	origin := domain.Origin{Account: account, Ordinal: index}

	switch call.Kind {
	case CallCreate:
		id, err := e.registry.Create(ctx, origin)
		if err != nil {
			return receipt.fail(err)
		}
		receipt.Created = &id
	case CallTransfer:
		if err := e.registry.Transfer(ctx, origin, call.Dest, call.ID); err != nil {
			return receipt.fail(err)
		}
	case CallBreed:
		id, err := e.registry.Breed(ctx, origin, call.A, call.B)
		if err != nil {
			return receipt.fail(err)
		}
		receipt.Created = &id
	default:
		return receipt.fail(fmt.Errorf("unknown call kind %q", call.Kind))
	}
	return receipt
}

func (r Receipt) fail(err error) Receipt {
	r.Err = err
	r.Error = err.Error()
	if kind, ok := domain.KindOf(err); ok {
		r.ErrKind = kind
	} else if errors.Is(err, ErrBadOrigin) {
		r.ErrKind = KindBadOrigin
	}
	return r
}
