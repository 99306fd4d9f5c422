package core

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"creaturecore/pkg/domain"
)

// DeriveGenome hashes the block seed, the caller, and the call's ordinal
// within its block into a 16 byte genome using blake2b-128. Variable length
// inputs are length prefixed so distinct (seed, account) pairs never collide
// on concatenation.
func DeriveGenome(seed []byte, account domain.AccountID, ordinal uint32) domain.Genome {
	payload := make([]byte, 0, len(seed)+len(account)+2*binary.MaxVarintLen64+4)
	payload = binary.AppendUvarint(payload, uint64(len(seed)))
	payload = append(payload, seed...)
	payload = binary.AppendUvarint(payload, uint64(len(account)))
	payload = append(payload, account...)
	payload = binary.LittleEndian.AppendUint32(payload, ordinal)

	h, err := blake2b.New(domain.GenomeSize, nil)
	if err != nil {
		panic(err)
	}
	_, _ = h.Write(payload)
	var g domain.Genome
	copy(g[:], h.Sum(nil))
	return g
}

// CombineGenomes crosses two genomes bit by bit: where a selector bit is set
// the child takes a's bit, otherwise b's.
func CombineGenomes(a, b, selector domain.Genome) domain.Genome {
	var out domain.Genome
	for i := range out {
		out[i] = (selector[i] & a[i]) | (^selector[i] & b[i])
	}
	return out
}
