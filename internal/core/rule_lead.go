package core

import (
	"context"
	"net/mail"
	"strings"

	"inmoelegance/pkg/domain"
)

const leadValidationRule = "lead_validation"

// NewLeadValidationRule blocks contact submissions without a name, a message
// or a parseable e-mail address.
func NewLeadValidationRule() domain.Rule {
	return leadValidation{}
}

type leadValidation struct{}

func (leadValidation) Name() string { return leadValidationRule }

func (leadValidation) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, l := range changedLeads(changes) {
		if strings.TrimSpace(l.Name) == "" {
			res.Violations = append(res.Violations, blockOn(leadValidationRule, EntityLead, l.ID, "name is required"))
		}
		if strings.TrimSpace(l.Message) == "" {
			res.Violations = append(res.Violations, blockOn(leadValidationRule, EntityLead, l.ID, "message is required"))
		}
		if _, err := mail.ParseAddress(l.Email); err != nil {
			res.Violations = append(res.Violations, blockOn(leadValidationRule, EntityLead, l.ID, "a valid e-mail is required"))
		}
	}
	return res, nil
}
