// Package stake provides an in-process reservable currency ledger.
package stake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"creaturecore/pkg/domain"
)

var _ domain.StakeLedger = (*Ledger)(nil)

// ErrInsufficientBalance is returned when an account's free balance cannot
// cover a reservation.
var ErrInsufficientBalance = errors.New("insufficient free balance")

// Account is the balance pair of one account.
type Account struct {
	Free     domain.Balance `json:"free" toml:"free" yaml:"free"`
	Reserved domain.Balance `json:"reserved" toml:"reserved" yaml:"reserved"`
}

// Ledger tracks free and reserved balances per account. Reserving moves funds
// from free to reserved; unreserving moves them back.
type Ledger struct {
	mu       sync.Mutex
	accounts map[domain.AccountID]Account
}

// NewLedger builds a ledger seeded with free balances.
func NewLedger(genesis map[domain.AccountID]domain.Balance) *Ledger {
	l := &Ledger{accounts: make(map[domain.AccountID]Account, len(genesis))}
	for account, free := range genesis {
		l.accounts[account] = Account{Free: free}
	}
	return l
}

// Deposit credits free balance.
func (l *Ledger) Deposit(account domain.AccountID, amount domain.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.accounts[account]
	if acc.Free+amount < acc.Free {
		return fmt.Errorf("deposit to %s overflows", account)
	}
	acc.Free += amount
	l.accounts[account] = acc
	return nil
}

// Reserve implements domain.StakeLedger.
func (l *Ledger) Reserve(_ context.Context, account domain.AccountID, amount domain.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.accounts[account]
	if acc.Free < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, account, acc.Free, amount)
	}
	acc.Free -= amount
	acc.Reserved += amount
	l.accounts[account] = acc
	return nil
}

// Unreserve implements domain.StakeLedger. It releases as much as is reserved
// and returns the remainder that could not be released.
func (l *Ledger) Unreserve(_ context.Context, account domain.AccountID, amount domain.Balance) domain.Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[account]
	if !ok {
		return amount
	}
	released := min(amount, acc.Reserved)
	acc.Reserved -= released
	acc.Free += released
	l.accounts[account] = acc
	return amount - released
}

// Free returns the spendable balance of account.
func (l *Ledger) Free(account domain.AccountID) domain.Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[account].Free
}

// Reserved returns the held balance of account.
func (l *Ledger) Reserved(account domain.AccountID) domain.Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[account].Reserved
}

// Accounts returns every known account in name order.
func (l *Ledger) Accounts() []domain.AccountID {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AccountID, 0, len(l.accounts))
	for account := range l.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot copies every balance.
func (l *Ledger) Snapshot() map[domain.AccountID]Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[domain.AccountID]Account, len(l.accounts))
	for k, v := range l.accounts {
		out[k] = v
	}
	return out
}
