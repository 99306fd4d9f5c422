package core

import (
	"context"
	"fmt"

	"creaturecore/pkg/domain"
)

// IndexConsistencyRule checks that every creature touched by a transaction is
// stored below the count, has exactly one owner, and appears in that owner's
// set only.
func IndexConsistencyRule() domain.Rule {
	return indexConsistencyRule{}
}

type indexConsistencyRule struct{}

func (indexConsistencyRule) Name() string { return "index_consistency" }

func (r indexConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	count := view.EntityCount()
	for _, change := range changes {
		if change.Entity != domain.EntityCreature {
			continue
		}
		id := change.ID
		if id >= count {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), id, fmt.Sprintf("creature %d is not below count %d", id, count)))
			continue
		}
		if _, ok := view.FindEntity(id); !ok {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), id, fmt.Sprintf("creature %d has no genome", id)))
			continue
		}
		owner, ok := view.OwnerOf(id)
		if !ok {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), id, fmt.Sprintf("creature %d has no owner", id)))
			continue
		}
		if !view.IsOwnedBy(owner, id) {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), id, fmt.Sprintf("creature %d missing from owned set of %s", id, owner)))
		}
		if before, ok := recordOf(change.Before); ok && before.Owner != owner && view.IsOwnedBy(before.Owner, id) {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), id, fmt.Sprintf("creature %d still listed for previous owner %s", id, before.Owner)))
		}
	}
	return res, nil
}
