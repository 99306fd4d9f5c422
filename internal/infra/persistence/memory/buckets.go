package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by the durable backends, one row per logical map.
const (
	BucketEntities = "entities"
	BucketCount    = "count"
	BucketOwners   = "owners"
	BucketOwned    = "owned"
	BucketParents  = "parents"
	BucketChildren = "children"
	BucketPartners = "partners"
)

// Buckets lists every bucket in write order.
var Buckets = []string{BucketEntities, BucketCount, BucketOwners, BucketOwned, BucketParents, BucketChildren, BucketPartners}

func (snap *Snapshot) bucketTarget(bucket string) (any, bool) {
	switch bucket {
	case BucketEntities:
		return &snap.Entities, true
	case BucketCount:
		return &snap.Count, true
	case BucketOwners:
		return &snap.Owners, true
	case BucketOwned:
		return &snap.Owned, true
	case BucketParents:
		return &snap.Parents, true
	case BucketChildren:
		return &snap.Children, true
	case BucketPartners:
		return &snap.Partners, true
	default:
		return nil, false
	}
}

// EncodeBuckets renders each map of the snapshot as a JSON payload keyed by
// bucket name.
func (snap Snapshot) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		target, _ := snap.bucketTarget(bucket)
		data, err := json.Marshal(target)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from bucket payloads. Unknown buckets are
// ignored; missing buckets leave their map empty.
func DecodeBuckets(payloads map[string][]byte) (Snapshot, error) {
	var snap Snapshot
	for bucket, payload := range payloads {
		target, ok := snap.bucketTarget(bucket)
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	return snap, nil
}
