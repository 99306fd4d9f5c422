package core

import (
	"context"
	"fmt"

	"creaturecore/pkg/domain"
)

// LineageIntegrityRule checks that a bred creature descends from two distinct,
// older creatures and that the children and partner indices record the pairing.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return "lineage_integrity" }

func (r lineageIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityCreature || change.Action != domain.ActionCreate {
			continue
		}
		child, ok := recordOf(change.After)
		if !ok || child.Parents == nil {
			continue
		}
		r.evaluate(&res, view, child.ID, *child.Parents)
	}
	return res, nil
}

func (r lineageIntegrityRule) evaluate(res *domain.Result, view domain.RuleView, child domain.EntityID, parents domain.Parents) {
	add := func(format string, args ...any) {
		res.Violations = append(res.Violations, blockingViolation(r.Name(), child, fmt.Sprintf(format, args...)))
	}
	stored, ok := view.ParentsOf(child)
	if !ok || stored != parents {
		add("creature %d parentage not recorded", child)
	}
	if parents.First == parents.Second {
		add("creature %d lists parent %d twice", child, parents.First)
		return
	}
	for _, p := range []domain.EntityID{parents.First, parents.Second} {
		if p >= child {
			add("creature %d parent %d does not predate it", child, p)
		}
		if _, ok := view.FindEntity(p); !ok {
			add("creature %d references missing parent %d", child, p)
			continue
		}
		if !view.HasChild(p, child) {
			add("creature %d missing from children of %d", child, p)
		}
	}
	if v, ok := view.PartnerEntry(parents.First, parents.Second); !ok || v != parents.Second {
		add("partner entry (%d, %d) missing", parents.First, parents.Second)
	}
	if v, ok := view.PartnerEntry(parents.Second, parents.First); !ok || v != parents.First {
		add("partner entry (%d, %d) missing", parents.Second, parents.First)
	}
}
