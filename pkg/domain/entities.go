// Package domain defines the creature registry's data model, transition
// errors, collaborator contracts, and the persistence/rules interfaces that
// infra packages implement. It depends on nothing inside the module.
package domain

import (
	"encoding/hex"
	"fmt"
)

// EntityID is the dense identifier of a creature. Identifiers start at zero
// and are allocated in creation order.
type EntityID uint32

// MaxEntityID is the largest representable identifier. A registry whose count
// reaches this value can no longer allocate.
const MaxEntityID = ^EntityID(0)

// AccountID is the canonical identity of an authenticated caller.
type AccountID string

// Balance is an amount of the staking currency.
type Balance uint64

// GenomeSize is the fixed byte length of a genome.
const GenomeSize = 16

// Genome is the immutable genetic code attached to a creature.
type Genome [GenomeSize]byte

// String renders the genome as lowercase hex.
func (g Genome) String() string {
	return hex.EncodeToString(g[:])
}

// MarshalText encodes the genome as hex so snapshots stay readable.
func (g Genome) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText decodes a hex genome.
func (g *Genome) UnmarshalText(text []byte) error {
	parsed, err := ParseGenome(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// ParseGenome decodes a 32 character hex string.
func ParseGenome(s string) (Genome, error) {
	var g Genome
	raw, err := hex.DecodeString(s)
	if err != nil {
		return g, fmt.Errorf("decode genome: %w", err)
	}
	if len(raw) != GenomeSize {
		return g, fmt.Errorf("genome must be %d bytes, got %d", GenomeSize, len(raw))
	}
	copy(g[:], raw)
	return g, nil
}

// Entity is a creature: an identifier and its genome.
type Entity struct {
	ID     EntityID `json:"id"`
	Genome Genome   `json:"genome"`
}

// Parents records the two creatures a bred creature descends from, in the
// order they were supplied to breed.
type Parents struct {
	First  EntityID `json:"first"`
	Second EntityID `json:"second"`
}

// Contains reports whether id is one of the two parents.
func (p Parents) Contains(id EntityID) bool {
	return p.First == id || p.Second == id
}

// Record is the full registry view of one creature.
type Record struct {
	Entity
	Owner   AccountID `json:"owner"`
	Parents *Parents  `json:"parents,omitempty"`
}

// Origin identifies who invoked a transition and where it sits in its block.
// Ordinal is the call's position within the enclosing block and is mixed into
// genome derivation so two calls in one block never share a seed.
type Origin struct {
	Account AccountID
	Ordinal uint32
}

// EntityType names the kind of record a change touches.
type EntityType string

// EntityCreature is the only entity type the registry mutates.
const EntityCreature EntityType = "creature"

// Severity classifies rule violations.
type Severity string

const (
	// SeverityBlock aborts the transaction.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but committed.
	SeverityWarn Severity = "warn"
	// SeverityLog is informational.
	SeverityLog Severity = "log"
)

// Change describes a mutation applied to an entity during a transaction.
// Before and After carry Record values (nil when absent).
type Change struct {
	Entity EntityType
	Action Action
	ID     EntityID
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

const (
	// ActionCreate indicates a creature was inserted.
	ActionCreate Action = "create"
	// ActionTransfer indicates a creature changed owner.
	ActionTransfer Action = "transfer"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID EntityID
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rules: %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}
