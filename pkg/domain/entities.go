// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by inmoelegance.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProperty identifies a property listing.
	EntityProperty EntityType = "property"
	// EntityProfile identifies an agent profile owned by an admin.
	EntityProfile EntityType = "profile"
	// EntityLead identifies a contact form submission.
	EntityLead EntityType = "lead"
	// EntityAdmin identifies an admin account.
	EntityAdmin EntityType = "admin"
)

// PropertyType classifies the kind of real estate offered.
type PropertyType string

// Listing types offered by the agency.
const (
	PropertyTypeApartment PropertyType = "Apartamento"
	PropertyTypeHouse     PropertyType = "Casa"
	PropertyTypeLand      PropertyType = "Campo"
)

// PropertyTypes lists every accepted PropertyType in display order.
var PropertyTypes = []PropertyType{PropertyTypeApartment, PropertyTypeHouse, PropertyTypeLand}

// Operation is the commercial operation offered for a listing.
type Operation string

// Supported operations.
const (
	OperationSale   Operation = "Venta"
	OperationRental Operation = "Alquiler"
)

// Operations lists every accepted Operation in display order.
var Operations = []Operation{OperationSale, OperationRental}

// PropertyStatus is the publication state of a listing.
type PropertyStatus string

// Publication states. Only published listings are visible on the public site.
const (
	StatusPublished   PropertyStatus = "publicada"
	StatusUnpublished PropertyStatus = "baja"
)

// Toggle returns the opposite publication state.
func (s PropertyStatus) Toggle() PropertyStatus {
	if s == StatusPublished {
		return StatusUnpublished
	}
	return StatusPublished
}

// DefaultCurrency is applied to listings created without a currency.
const DefaultCurrency = "USD"

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Property is a real estate listing managed by an admin.
type Property struct {
	Base
	Title       string         `json:"title"`
	Type        PropertyType   `json:"type"`
	Operation   Operation      `json:"operation"`
	Location    string         `json:"location"`
	Address     string         `json:"address"`
	Price       float64        `json:"price"`
	Currency    string         `json:"currency"`
	Featured    bool           `json:"featured"`
	Images      []string       `json:"images"`
	Bedrooms    int            `json:"bedrooms"`
	Bathrooms   int            `json:"bathrooms"`
	Area        float64        `json:"area"`
	Garage      bool           `json:"garage"`
	Floor       string         `json:"floor,omitempty"`
	Year        int            `json:"year,omitempty"`
	Orientation string         `json:"orientation,omitempty"`
	Expenses    float64        `json:"expenses,omitempty"`
	PetsAllowed bool           `json:"pets_allowed"`
	Furnished   bool           `json:"furnished"`
	MaxTenants  int            `json:"max_tenants,omitempty"`
	Description string         `json:"description"`
	Features    []string       `json:"features"`
	Rating      float64        `json:"rating"`
	Status      PropertyStatus `json:"status"`
	AdminID     string         `json:"admin_id"`
}

// Published reports whether the listing is visible on the public site.
func (p Property) Published() bool { return p.Status == StatusPublished }

// CoverImage returns the first image URL or an empty string.
func (p Property) CoverImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Profile is the public agent profile attached to an admin account.
type Profile struct {
	Base
	DisplayName string `json:"display_name"`
	NumberPhone string `json:"number_phone"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url"`
}

// Lead is a contact request submitted through the public site.
type Lead struct {
	Base
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Message    string `json:"message"`
	PropertyID string `json:"property_id,omitempty"`
}

// Admin is an account allowed into the dashboard.
type Admin struct {
	Base
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Disabled     bool   `json:"disabled"`
}

// NormalizeEmail lowercases and trims an e-mail address for comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id,omitempty"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Messages returns the violation messages in evaluation order.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Message)
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	msgs := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}
