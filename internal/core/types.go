package core

import "inmoelegance/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Property           = domain.Property
	PropertyType       = domain.PropertyType
	PropertyStatus     = domain.PropertyStatus
	Operation          = domain.Operation
	Profile            = domain.Profile
	Lead               = domain.Lead
	Admin              = domain.Admin
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityProperty = domain.EntityProperty
	EntityProfile  = domain.EntityProfile
	EntityLead     = domain.EntityLead
	EntityAdmin    = domain.EntityAdmin
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
