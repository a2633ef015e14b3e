package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateProperty(Property) (Property, error)
	UpdateProperty(id string, mutator func(*Property) error) (Property, error)
	DeleteProperty(id string) error
	FindProperty(id string) (Property, bool)
	SaveProfile(adminID string, mutator func(*Profile) error) (Profile, error)
	DeleteProfile(adminID string) error
	CreateLead(Lead) (Lead, error)
	DeleteLead(id string) error
	CreateAdmin(Admin) (Admin, error)
	UpdateAdmin(id string, mutator func(*Admin) error) (Admin, error)
	FindAdminByEmail(email string) (Admin, bool)
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	ListProperties() []Property
	FindProperty(id string) (Property, bool)
	ListProfiles() []Profile
	FindProfile(adminID string) (Profile, bool)
	ListLeads() []Lead
	FindLead(id string) (Lead, bool)
	ListAdmins() []Admin
	FindAdmin(id string) (Admin, bool)
	FindAdminByEmail(email string) (Admin, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProperty(id string) (Property, bool)
	ListProperties() []Property
	GetProfile(adminID string) (Profile, bool)
	ListLeads() []Lead
	GetAdmin(id string) (Admin, bool)
	ListAdmins() []Admin
	Close() error
}
