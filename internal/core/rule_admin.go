package core

import (
	"context"
	"fmt"
	"sort"

	"inmoelegance/pkg/domain"
)

const adminUniqueEmailRule = "admin_unique_email"

// NewAdminUniqueEmailRule blocks two admin accounts sharing an e-mail address.
func NewAdminUniqueEmailRule() domain.Rule {
	return adminUniqueEmail{}
}

type adminUniqueEmail struct{}

func (adminUniqueEmail) Name() string { return adminUniqueEmailRule }

func (adminUniqueEmail) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	owners := make(map[string][]string)
	for _, admin := range view.ListAdmins() {
		email := domain.NormalizeEmail(admin.Email)
		owners[email] = append(owners[email], admin.ID)
	}
	var res domain.Result
	emails := make([]string, 0, len(owners))
	for email := range owners {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	for _, email := range emails {
		ids := owners[email]
		if email == "" {
			res.Violations = append(res.Violations, blockOn(adminUniqueEmailRule, EntityAdmin, ids[0], "admin e-mail is required"))
			continue
		}
		if len(ids) > 1 {
			res.Violations = append(res.Violations, blockOn(adminUniqueEmailRule, EntityAdmin, ids[len(ids)-1], fmt.Sprintf("e-mail %s is already registered", email)))
		}
	}
	return res, nil
}
