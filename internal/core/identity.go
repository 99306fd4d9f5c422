package core

import "creaturecore/pkg/domain"

// NextID previews the identifier the next inserted creature receives. It never
// mutates; the count advances only when the store commits the insert.
func NextID(count domain.EntityID) (domain.EntityID, error) {
	if count == domain.MaxEntityID {
		return 0, domain.NewTransitionError(domain.KindCountOverflow, "next_id", nil, nil)
	}
	return count, nil
}
