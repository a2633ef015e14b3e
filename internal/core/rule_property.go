package core

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"inmoelegance/pkg/domain"
)

const propertyValidationRule = "property_validation"

// MaxAmount caps prices and expenses.
const MaxAmount = 1e12

// NewPropertyValidationRule blocks listings with missing or out-of-range fields.
func NewPropertyValidationRule() domain.Rule {
	return propertyValidation{now: time.Now}
}

type propertyValidation struct {
	now func() time.Time
}

func (propertyValidation) Name() string { return propertyValidationRule }

func (r propertyValidation) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	maxYear := r.now().Year() + 5
	for _, p := range changedProperties(changes) {
		for _, problem := range propertyProblems(p, maxYear) {
			res.Violations = append(res.Violations, blockOn(propertyValidationRule, EntityProperty, p.ID, problem))
		}
	}
	return res, nil
}

func propertyProblems(p Property, maxYear int) []string {
	var problems []string
	if strings.TrimSpace(p.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(p.Location) == "" {
		problems = append(problems, "location is required")
	}
	if !slices.Contains(domain.PropertyTypes, p.Type) {
		problems = append(problems, fmt.Sprintf("type %q is not one of Apartamento, Casa, Campo", p.Type))
	}
	if !slices.Contains(domain.Operations, p.Operation) {
		problems = append(problems, fmt.Sprintf("operation %q is not one of Venta, Alquiler", p.Operation))
	}
	if p.Status != domain.StatusPublished && p.Status != domain.StatusUnpublished {
		problems = append(problems, fmt.Sprintf("status %q is not one of publicada, baja", p.Status))
	}
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"price", p.Price},
		{"bedrooms", float64(p.Bedrooms)},
		{"bathrooms", float64(p.Bathrooms)},
		{"area", p.Area},
		{"expenses", p.Expenses},
		{"max tenants", float64(p.MaxTenants)},
	} {
		if field.value < 0 {
			problems = append(problems, field.name+" must not be negative")
		}
	}
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"price", p.Price},
		{"expenses", p.Expenses},
	} {
		if math.IsNaN(field.value) || field.value > MaxAmount {
			problems = append(problems, fmt.Sprintf("%s must not exceed %.0f", field.name, MaxAmount))
		}
	}
	if p.Rating < 0 || p.Rating > 5 {
		problems = append(problems, "rating must be between 0 and 5")
	}
	if p.Year != 0 && (p.Year < 1800 || p.Year > maxYear) {
		problems = append(problems, fmt.Sprintf("year must be between 1800 and %d", maxYear))
	}
	return problems
}

// NewPropertyImagesRule warns when a published listing has no images.
func NewPropertyImagesRule() domain.Rule {
	return propertyImages{}
}

type propertyImages struct{}

func (propertyImages) Name() string { return "property_images" }

func (propertyImages) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, p := range changedProperties(changes) {
		if p.Published() && len(p.Images) == 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "property_images",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("published property %q has no images", p.Title),
				Entity:   EntityProperty,
				EntityID: p.ID,
			})
		}
	}
	return res, nil
}
