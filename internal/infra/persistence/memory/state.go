package memory

import (
	"fmt"
	"slices"

	"creaturecore/pkg/domain"
)

// doubleMap is a two-level index whose inner values repeat the inner key, the
// layout the owned-set, children and partner indices share.
type doubleMap[K comparable] map[K]map[domain.EntityID]domain.EntityID

func (m doubleMap[K]) insert(outer K, id, value domain.EntityID) {
	inner, ok := m[outer]
	if !ok {
		inner = make(map[domain.EntityID]domain.EntityID)
		m[outer] = inner
	}
	inner[id] = value
}

func (m doubleMap[K]) remove(outer K, id domain.EntityID) {
	inner, ok := m[outer]
	if !ok {
		return
	}
	delete(inner, id)
	if len(inner) == 0 {
		delete(m, outer)
	}
}

func (m doubleMap[K]) get(outer K, id domain.EntityID) (domain.EntityID, bool) {
	v, ok := m[outer][id]
	return v, ok
}

func (m doubleMap[K]) keys(outer K) []domain.EntityID {
	inner := m[outer]
	out := make([]domain.EntityID, 0, len(inner))
	for id := range inner {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (m doubleMap[K]) clone() doubleMap[K] {
	cp := make(doubleMap[K], len(m))
	for outer, inner := range m {
		in := make(map[domain.EntityID]domain.EntityID, len(inner))
		for k, v := range inner {
			in[k] = v
		}
		cp[outer] = in
	}
	return cp
}

// partnerIndex is the symmetric partner relation. link is the only writer and
// always inserts both directions.
type partnerIndex struct {
	entries doubleMap[domain.EntityID]
}

func (p partnerIndex) link(a, b domain.EntityID) {
	p.entries.insert(a, b, b)
	p.entries.insert(b, a, a)
}

func (p partnerIndex) get(a, b domain.EntityID) (domain.EntityID, bool) {
	return p.entries.get(a, b)
}

func (p partnerIndex) of(a domain.EntityID) []domain.EntityID {
	return p.entries.keys(a)
}

type memoryState struct {
	entities map[domain.EntityID]domain.Genome
	count    domain.EntityID
	owners   map[domain.EntityID]domain.AccountID
	owned    doubleMap[domain.AccountID]
	parents  map[domain.EntityID]domain.Parents
	children doubleMap[domain.EntityID]
	partners partnerIndex
}

func newMemoryState() memoryState {
	return memoryState{
		entities: make(map[domain.EntityID]domain.Genome),
		owners:   make(map[domain.EntityID]domain.AccountID),
		owned:    make(doubleMap[domain.AccountID]),
		parents:  make(map[domain.EntityID]domain.Parents),
		children: make(doubleMap[domain.EntityID]),
		partners: partnerIndex{entries: make(doubleMap[domain.EntityID])},
	}
}

func (s memoryState) clone() memoryState {
	cp := memoryState{
		entities: make(map[domain.EntityID]domain.Genome, len(s.entities)),
		count:    s.count,
		owners:   make(map[domain.EntityID]domain.AccountID, len(s.owners)),
		owned:    s.owned.clone(),
		parents:  make(map[domain.EntityID]domain.Parents, len(s.parents)),
		children: s.children.clone(),
		partners: partnerIndex{entries: s.partners.entries.clone()},
	}
	for k, v := range s.entities {
		cp.entities[k] = v
	}
	for k, v := range s.owners {
		cp.owners[k] = v
	}
	for k, v := range s.parents {
		cp.parents[k] = v
	}
	return cp
}

// Snapshot is the serialisable representation of the registry maps, one field
// per logical map.
type Snapshot struct {
	Entities map[domain.EntityID]domain.Genome                        `json:"entities"`
	Count    domain.EntityID                                          `json:"count"`
	Owners   map[domain.EntityID]domain.AccountID                     `json:"owners"`
	Owned    map[domain.AccountID]map[domain.EntityID]domain.EntityID `json:"owned"`
	Parents  map[domain.EntityID]domain.Parents                       `json:"parents"`
	Children map[domain.EntityID]map[domain.EntityID]domain.EntityID  `json:"children"`
	Partners map[domain.EntityID]map[domain.EntityID]domain.EntityID  `json:"partners"`
}

func snapshotFromMemoryState(s memoryState) Snapshot {
	c := s.clone()
	return Snapshot{
		Entities: c.entities,
		Count:    c.count,
		Owners:   c.owners,
		Owned:    c.owned,
		Parents:  c.parents,
		Children: c.children,
		Partners: c.partners.entries,
	}
}

func memoryStateFromSnapshot(snap Snapshot) memoryState {
	st := memoryState{
		entities: snap.Entities,
		count:    snap.Count,
		owners:   snap.Owners,
		owned:    doubleMap[domain.AccountID](snap.Owned),
		parents:  snap.Parents,
		children: doubleMap[domain.EntityID](snap.Children),
		partners: partnerIndex{entries: doubleMap[domain.EntityID](snap.Partners)},
	}
	if st.entities == nil {
		st.entities = make(map[domain.EntityID]domain.Genome)
	}
	if st.owners == nil {
		st.owners = make(map[domain.EntityID]domain.AccountID)
	}
	if st.owned == nil {
		st.owned = make(doubleMap[domain.AccountID])
	}
	if st.parents == nil {
		st.parents = make(map[domain.EntityID]domain.Parents)
	}
	if st.children == nil {
		st.children = make(doubleMap[domain.EntityID])
	}
	if st.partners.entries == nil {
		st.partners.entries = make(doubleMap[domain.EntityID])
	}
	return st.clone()
}

// Validate checks that the snapshot's maps agree with each other: dense ids
// below Count, one owner per creature mirrored by the owned-set, and lineage
// entries present exactly for bred creatures with symmetric partner pairs.
func (snap Snapshot) Validate() error {
	if int(snap.Count) != len(snap.Entities) {
		return fmt.Errorf("count %d does not match %d stored creatures", snap.Count, len(snap.Entities))
	}
	for id := range snap.Entities {
		if id >= snap.Count {
			return fmt.Errorf("creature %d beyond count %d", id, snap.Count)
		}
		owner, ok := snap.Owners[id]
		if !ok || owner == "" {
			return fmt.Errorf("creature %d has no owner", id)
		}
		if v, ok := snap.Owned[owner][id]; !ok || v != id {
			return fmt.Errorf("creature %d missing from owned set of %s", id, owner)
		}
	}
	if len(snap.Owners) != len(snap.Entities) {
		return fmt.Errorf("%d owners for %d creatures", len(snap.Owners), len(snap.Entities))
	}
	memberships := 0
	for account, set := range snap.Owned {
		for id, v := range set {
			if v != id || snap.Owners[id] != account {
				return fmt.Errorf("owned set of %s lists creature %d not owned by it", account, id)
			}
			memberships++
		}
	}
	if memberships != len(snap.Owners) {
		return fmt.Errorf("owned sets hold %d memberships for %d owners", memberships, len(snap.Owners))
	}
	expectedChildren := make(map[domain.EntityID]map[domain.EntityID]struct{})
	expectedPartners := make(map[domain.EntityID]map[domain.EntityID]struct{})
	expect := func(m map[domain.EntityID]map[domain.EntityID]struct{}, a, b domain.EntityID) {
		if m[a] == nil {
			m[a] = make(map[domain.EntityID]struct{})
		}
		m[a][b] = struct{}{}
	}
	for child, p := range snap.Parents {
		if _, ok := snap.Entities[child]; !ok {
			return fmt.Errorf("parentage recorded for missing creature %d", child)
		}
		if p.First == p.Second {
			return fmt.Errorf("creature %d lists %d as both parents", child, p.First)
		}
		for _, parent := range []domain.EntityID{p.First, p.Second} {
			if parent >= child {
				return fmt.Errorf("creature %d has parent %d that did not exist before it", child, parent)
			}
			if v, ok := snap.Children[parent][child]; !ok || v != child {
				return fmt.Errorf("creature %d missing from children of %d", child, parent)
			}
			expect(expectedChildren, parent, child)
		}
		if v, ok := snap.Partners[p.First][p.Second]; !ok || v != p.Second {
			return fmt.Errorf("partner entry %d->%d missing", p.First, p.Second)
		}
		if v, ok := snap.Partners[p.Second][p.First]; !ok || v != p.First {
			return fmt.Errorf("partner entry %d->%d missing", p.Second, p.First)
		}
		expect(expectedPartners, p.First, p.Second)
		expect(expectedPartners, p.Second, p.First)
	}
	for parent, set := range snap.Children {
		for child := range set {
			if _, ok := expectedChildren[parent][child]; !ok {
				return fmt.Errorf("children entry %d->%d has no parentage", parent, child)
			}
		}
	}
	for a, set := range snap.Partners {
		for b := range set {
			if _, ok := expectedPartners[a][b]; !ok {
				return fmt.Errorf("partner entry %d->%d has no parentage", a, b)
			}
		}
	}
	return nil
}
