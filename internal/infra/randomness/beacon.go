// Package randomness provides block-level seed sources for genome derivation.
package randomness

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/blake2b"

	"creaturecore/pkg/domain"
)

var (
	_ domain.RandomnessSource = (*Beacon)(nil)
	_ domain.RandomnessSource = Fixed(nil)
)

// SeedSize is the byte length of every beacon seed.
const SeedSize = 32

// Beacon holds the seed for the current block. Advance rotates it; Seed is
// stable until the next Advance.
type Beacon struct {
	mu      sync.RWMutex
	entropy io.Reader
	block   uint64
	seed    [SeedSize]byte
}

// NewBeacon builds a beacon drawing fresh entropy from crypto/rand for every
// block.
func NewBeacon() (*Beacon, error) {
	b := &Beacon{entropy: crand.Reader}
	if err := b.Advance(0); err != nil {
		return nil, err
	}
	return b, nil
}

// NewDeterministicBeacon builds a beacon whose seeds form a hash chain from
// genesis: seed(n) = blake2b-256(seed(n-1) || n). Runs are reproducible.
func NewDeterministicBeacon(genesis []byte) *Beacon {
	b := &Beacon{}
	b.seed = blake2b.Sum256(genesis)
	return b
}

// Advance moves the beacon to block and rotates the seed.
func (b *Beacon) Advance(block uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entropy != nil {
		var next [SeedSize]byte
		if _, err := io.ReadFull(b.entropy, next[:]); err != nil {
			return fmt.Errorf("read random seed: %w", err)
		}
		b.seed = next
		b.block = block
		return nil
	}
	var buf [SeedSize + 8]byte
	copy(buf[:], b.seed[:])
	binary.LittleEndian.PutUint64(buf[SeedSize:], block)
	b.seed = blake2b.Sum256(buf[:])
	b.block = block
	return nil
}

// Block returns the block the current seed belongs to.
func (b *Beacon) Block() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.block
}

// Seed implements domain.RandomnessSource.
func (b *Beacon) Seed(context.Context) []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, SeedSize)
	copy(out, b.seed[:])
	return out
}

// Fixed always returns the same seed.
type Fixed []byte

// Seed implements domain.RandomnessSource.
func (f Fixed) Seed(context.Context) []byte {
	return append([]byte(nil), f...)
}
