package core

import "creaturecore/pkg/domain"

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
	RulesEngine     = domain.RulesEngine
)

// NewDefaultRulesEngine builds a rules engine with the registry invariant set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(IndexConsistencyRule())
	engine.Register(LineageIntegrityRule())
	return engine
}

func blockingViolation(rule string, id domain.EntityID, msg string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityCreature,
		EntityID: id,
	}
}

func recordOf(v any) (domain.Record, bool) {
	switch rec := v.(type) {
	case domain.Record:
		return rec, true
	case *domain.Record:
		if rec == nil {
			return domain.Record{}, false
		}
		return *rec, true
	default:
		return domain.Record{}, false
	}
}
