// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"inmoelegance/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Property aliases domain.Property for in-memory persistence operations.
	Property = domain.Property
	// Profile aliases domain.Profile.
	Profile = domain.Profile
	// Lead aliases domain.Lead.
	Lead = domain.Lead
	// Admin aliases domain.Admin.
	Admin = domain.Admin
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	properties map[string]Property
	profiles   map[string]Profile
	leads      map[string]Lead
	admins     map[string]Admin
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Properties map[string]Property `json:"properties"`
	Profiles   map[string]Profile  `json:"profiles"`
	Leads      map[string]Lead     `json:"leads"`
	Admins     map[string]Admin    `json:"admins"`
}

// Buckets lists the snapshot buckets in persistence order.
var Buckets = []string{"properties", "profiles", "leads", "admins"}

// Bucket returns a pointer to the snapshot map backing the named bucket so
// durable stores can encode and decode buckets generically.
func (s *Snapshot) Bucket(name string) (any, bool) {
	switch name {
	case "properties":
		return &s.Properties, true
	case "profiles":
		return &s.Profiles, true
	case "leads":
		return &s.Leads, true
	case "admins":
		return &s.Admins, true
	default:
		return nil, false
	}
}

func newMemoryState() memoryState {
	return memoryState{
		properties: make(map[string]Property),
		profiles:   make(map[string]Profile),
		leads:      make(map[string]Lead),
		admins:     make(map[string]Admin),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Properties: make(map[string]Property, len(state.properties)),
		Profiles:   make(map[string]Profile, len(state.profiles)),
		Leads:      make(map[string]Lead, len(state.leads)),
		Admins:     make(map[string]Admin, len(state.admins)),
	}
	for k, v := range state.properties {
		s.Properties[k] = cloneProperty(v)
	}
	for k, v := range state.profiles {
		s.Profiles[k] = v
	}
	for k, v := range state.leads {
		s.Leads[k] = v
	}
	for k, v := range state.admins {
		s.Admins[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Properties {
		state.properties[k] = normalizeProperty(cloneProperty(v))
	}
	for k, v := range s.Profiles {
		state.profiles[k] = v
	}
	for k, v := range s.Leads {
		state.leads[k] = v
	}
	for k, v := range s.Admins {
		v.Email = domain.NormalizeEmail(v.Email)
		state.admins[k] = v
	}
	return state
}

// normalizeProperty fills defaults for listings persisted before status and
// currency were mandatory.
func normalizeProperty(p Property) Property {
	if p.Status == "" {
		p.Status = domain.StatusPublished
	}
	if p.Currency == "" {
		p.Currency = domain.DefaultCurrency
	}
	return p
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.properties {
		cloned.properties[k] = cloneProperty(v)
	}
	for k, v := range s.profiles {
		cloned.profiles[k] = v
	}
	for k, v := range s.leads {
		cloned.leads[k] = v
	}
	for k, v := range s.admins {
		cloned.admins[k] = v
	}
	return cloned
}

func cloneProperty(p Property) Property {
	cp := p
	if p.Images != nil {
		cp.Images = append([]string(nil), p.Images...)
	}
	if p.Features != nil {
		cp.Features = append([]string(nil), p.Features...)
	}
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	idFn   func() string
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   func() string { return uuid.NewString() },
	}
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Close releases no resources for the memory store.
func (s *Store) Close() error { return nil }

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListProperties returns all listings ordered newest first.
func (v transactionView) ListProperties() []Property {
	out := make([]Property, 0, len(v.state.properties))
	for _, p := range v.state.properties {
		out = append(out, cloneProperty(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (v transactionView) FindProperty(id string) (Property, bool) {
	p, ok := v.state.properties[id]
	if !ok {
		return Property{}, false
	}
	return cloneProperty(p), true
}

func (v transactionView) ListProfiles() []Profile {
	out := make([]Profile, 0, len(v.state.profiles))
	for _, p := range v.state.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindProfile(adminID string) (Profile, bool) {
	p, ok := v.state.profiles[adminID]
	return p, ok
}

// ListLeads returns contact requests ordered newest first.
func (v transactionView) ListLeads() []Lead {
	out := make([]Lead, 0, len(v.state.leads))
	for _, l := range v.state.leads {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (v transactionView) FindLead(id string) (Lead, bool) {
	l, ok := v.state.leads[id]
	return l, ok
}

func (v transactionView) ListAdmins() []Admin {
	out := make([]Admin, 0, len(v.state.admins))
	for _, a := range v.state.admins {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (v transactionView) FindAdmin(id string) (Admin, bool) {
	a, ok := v.state.admins[id]
	return a, ok
}

func (v transactionView) FindAdminByEmail(email string) (Admin, bool) {
	return findAdminByEmail(v.state, email)
}

func findAdminByEmail(state *memoryState, email string) (Admin, bool) {
	normalized := domain.NormalizeEmail(email)
	for _, a := range state.admins {
		if a.Email == normalized {
			return a, true
		}
	}
	return Admin{}, false
}

// RunInTransaction applies fn to a cloned state, evaluates rules against the
// result and commits only when no blocking violation was reported.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindProperty exposes listing lookup within the transaction scope.
func (tx *transaction) FindProperty(id string) (Property, bool) {
	return newTransactionView(&tx.state).FindProperty(id)
}

// FindAdminByEmail exposes admin lookup within the transaction scope.
func (tx *transaction) FindAdminByEmail(email string) (Admin, bool) {
	return findAdminByEmail(&tx.state, email)
}

// CreateProperty stores a new listing within the transaction.
func (tx *transaction) CreateProperty(p Property) (Property, error) {
	if p.ID == "" {
		p.ID = tx.store.idFn()
	}
	if _, exists := tx.state.properties[p.ID]; exists {
		return Property{}, fmt.Errorf("property %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	p = normalizeProperty(p)
	tx.state.properties[p.ID] = cloneProperty(p)
	tx.recordChange(Change{Entity: domain.EntityProperty, Action: domain.ActionCreate, After: cloneProperty(p)})
	return cloneProperty(p), nil
}

// UpdateProperty mutates a listing using the provided mutator function.
func (tx *transaction) UpdateProperty(id string, mutator func(*Property) error) (Property, error) {
	current, ok := tx.state.properties[id]
	if !ok {
		return Property{}, fmt.Errorf("property %q not found", id)
	}
	before := cloneProperty(current)
	current = cloneProperty(current)
	if err := mutator(&current); err != nil {
		return Property{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.properties[id] = cloneProperty(current)
	tx.recordChange(Change{Entity: domain.EntityProperty, Action: domain.ActionUpdate, Before: before, After: cloneProperty(current)})
	return cloneProperty(current), nil
}

// DeleteProperty removes a listing from the transaction state.
func (tx *transaction) DeleteProperty(id string) error {
	current, ok := tx.state.properties[id]
	if !ok {
		return fmt.Errorf("property %q not found", id)
	}
	delete(tx.state.properties, id)
	tx.recordChange(Change{Entity: domain.EntityProperty, Action: domain.ActionDelete, Before: cloneProperty(current)})
	return nil
}

// SaveProfile creates or updates the profile keyed by adminID.
func (tx *transaction) SaveProfile(adminID string, mutator func(*Profile) error) (Profile, error) {
	if adminID == "" {
		return Profile{}, fmt.Errorf("profile admin id required")
	}
	current, exists := tx.state.profiles[adminID]
	before := current
	if err := mutator(&current); err != nil {
		return Profile{}, err
	}
	current.ID = adminID
	current.UpdatedAt = tx.now
	action := domain.ActionUpdate
	if !exists {
		current.CreatedAt = tx.now
		action = domain.ActionCreate
	} else {
		current.CreatedAt = before.CreatedAt
	}
	tx.state.profiles[adminID] = current
	change := Change{Entity: domain.EntityProfile, Action: action, After: current}
	if exists {
		change.Before = before
	}
	tx.recordChange(change)
	return current, nil
}

// DeleteProfile removes the profile attached to adminID.
func (tx *transaction) DeleteProfile(adminID string) error {
	current, ok := tx.state.profiles[adminID]
	if !ok {
		return fmt.Errorf("profile %q not found", adminID)
	}
	delete(tx.state.profiles, adminID)
	tx.recordChange(Change{Entity: domain.EntityProfile, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateLead stores a new contact request.
func (tx *transaction) CreateLead(l Lead) (Lead, error) {
	if l.ID == "" {
		l.ID = tx.store.idFn()
	}
	if _, exists := tx.state.leads[l.ID]; exists {
		return Lead{}, fmt.Errorf("lead %q already exists", l.ID)
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.leads[l.ID] = l
	tx.recordChange(Change{Entity: domain.EntityLead, Action: domain.ActionCreate, After: l})
	return l, nil
}

// DeleteLead removes a contact request.
func (tx *transaction) DeleteLead(id string) error {
	current, ok := tx.state.leads[id]
	if !ok {
		return fmt.Errorf("lead %q not found", id)
	}
	delete(tx.state.leads, id)
	tx.recordChange(Change{Entity: domain.EntityLead, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateAdmin stores a new admin account. E-mails are normalized before storage.
func (tx *transaction) CreateAdmin(a Admin) (Admin, error) {
	if a.ID == "" {
		a.ID = tx.store.idFn()
	}
	if _, exists := tx.state.admins[a.ID]; exists {
		return Admin{}, fmt.Errorf("admin %q already exists", a.ID)
	}
	a.Email = domain.NormalizeEmail(a.Email)
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.admins[a.ID] = a
	tx.recordChange(Change{Entity: domain.EntityAdmin, Action: domain.ActionCreate, After: a})
	return a, nil
}

// UpdateAdmin mutates an admin account.
func (tx *transaction) UpdateAdmin(id string, mutator func(*Admin) error) (Admin, error) {
	current, ok := tx.state.admins[id]
	if !ok {
		return Admin{}, fmt.Errorf("admin %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Admin{}, err
	}
	current.ID = id
	current.Email = domain.NormalizeEmail(current.Email)
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.admins[id] = current
	tx.recordChange(Change{Entity: domain.EntityAdmin, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// GetProperty returns a listing by id.
func (s *Store) GetProperty(id string) (Property, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindProperty(id)
}

// ListProperties returns every listing, newest first.
func (s *Store) ListProperties() []Property {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListProperties()
}

// GetProfile returns the profile attached to adminID.
func (s *Store) GetProfile(adminID string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindProfile(adminID)
}

// ListLeads returns every contact request, newest first.
func (s *Store) ListLeads() []Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListLeads()
}

// GetAdmin returns an admin account by id.
func (s *Store) GetAdmin(id string) (Admin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindAdmin(id)
}

// ListAdmins returns every admin account ordered by e-mail.
func (s *Store) ListAdmins() []Admin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListAdmins()
}
