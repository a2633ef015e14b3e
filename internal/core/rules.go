package core

import "inmoelegance/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewPropertyValidationRule())
	engine.Register(NewLeadValidationRule())
	engine.Register(NewAdminUniqueEmailRule())
	engine.Register(NewPropertyImagesRule())
	return engine
}

// changedProperties returns the listings created or updated in a transaction.
func changedProperties(changes []Change) []Property {
	var out []Property
	for _, change := range changes {
		if change.Entity != EntityProperty || change.Action == ActionDelete {
			continue
		}
		if p, ok := change.After.(Property); ok {
			out = append(out, p)
		}
	}
	return out
}

func changedLeads(changes []Change) []Lead {
	var out []Lead
	for _, change := range changes {
		if change.Entity != EntityLead || change.Action == ActionDelete {
			continue
		}
		if l, ok := change.After.(Lead); ok {
			out = append(out, l)
		}
	}
	return out
}

func blockOn(rule string, entity EntityType, id, message string) Violation {
	return Violation{Rule: rule, Severity: SeverityBlock, Message: message, Entity: entity, EntityID: id}
}
