package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"inmoelegance/internal/auth"
	"inmoelegance/internal/infra/persistence/memory"
	"inmoelegance/pkg/domain"
)

// Default limits for home page and detail page listings.
const (
	DefaultFeaturedLimit = 6
	DefaultSimilarLimit  = 4
)

// Service exposes the transactional listing, profile, lead and admin
// operations behind the public site and the dashboard.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  *zap.Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	images  ImageRemover
	exprs   *ExpressionCache
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.exprs == nil {
		o.exprs = NewExpressionCache(0)
	}
	if stamped, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		stamped.SetNowFunc(o.clock.Now)
	}
	return &Service{
		store:   store,
		clock:   o.clock,
		logger:  o.logger.Named("core"),
		audit:   o.audit,
		metrics: o.metrics,
		tracer:  o.tracer,
		images:  o.images,
		exprs:   o.exprs,
	}
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

type operation struct {
	name    string
	entity  EntityType
	action  Action
	actor   string
	audited bool
}

func read(name string) operation { return operation{name: name} }

func write(name string, entity EntityType, action Action, actor string) operation {
	return operation{name: name, entity: entity, action: action, actor: actor, audited: true}
}

// run wraps fn with tracing, metrics, logging and, for writes, an audit entry.
// fn returns the id of the affected entity.
func (s *Service) run(ctx context.Context, op operation, fn func(ctx context.Context) (string, error)) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op.name)
	entityID, err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op.name, err == nil, duration)

	fields := []zap.Field{zap.String("operation", op.name), zap.Duration("duration", duration)}
	if entityID != "" {
		fields = append(fields, zap.String("entity_id", entityID))
	}
	switch {
	case err == nil:
		s.logger.Debug("operation completed", fields...)
	case isClientError(err):
		s.logger.Warn("operation rejected", append(fields, zap.Error(err))...)
	default:
		s.logger.Error("operation failed", append(fields, zap.Error(err))...)
	}

	if op.audited {
		entry := AuditEntry{
			Operation: op.name,
			Entity:    op.entity,
			Action:    op.action,
			EntityID:  entityID,
			ActorID:   op.actor,
			Status:    AuditStatusSuccess,
			Duration:  duration,
			Timestamp: s.clock.Now(),
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
		}
		s.audit.Record(ctx, entry)
	}
	return err
}

func isClientError(err error) bool {
	var violation RuleViolationError
	return IsNotFound(err) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidQuery) ||
		errors.Is(err, auth.ErrInvalidCredentials) ||
		errors.Is(err, auth.ErrWeakPassword) ||
		errors.As(err, &violation)
}

// CreateProperty stores a listing owned by adminID.
func (s *Service) CreateProperty(ctx context.Context, adminID string, input Property) (Property, Result, error) {
	var (
		created Property
		res     Result
	)
	err := s.run(ctx, write("create_property", EntityProperty, ActionCreate, adminID), func(ctx context.Context) (string, error) {
		if adminID == "" {
			return "", ErrForbidden
		}
		p := normalizeListing(input)
		p.AdminID = adminID
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateProperty(p)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// GetProperty returns any listing by id.
func (s *Service) GetProperty(ctx context.Context, id string) (Property, error) {
	var p Property
	err := s.run(ctx, read("get_property"), func(context.Context) (string, error) {
		var ok bool
		if p, ok = s.store.GetProperty(id); !ok {
			return id, ErrNotFound{Entity: EntityProperty, ID: id}
		}
		return id, nil
	})
	return p, err
}

// GetPublishedProperty returns a listing visible on the public site.
// Unpublished listings are reported as not found.
func (s *Service) GetPublishedProperty(ctx context.Context, id string) (Property, error) {
	var p Property
	err := s.run(ctx, read("get_published_property"), func(context.Context) (string, error) {
		var ok bool
		if p, ok = s.store.GetProperty(id); !ok || !p.Published() {
			return id, ErrNotFound{Entity: EntityProperty, ID: id}
		}
		return id, nil
	})
	return p, err
}

// UpdateProperty replaces the editable fields of a listing owned by adminID.
// The publication status is kept unless input carries one.
func (s *Service) UpdateProperty(ctx context.Context, adminID, id string, input Property) (Property, Result, error) {
	var (
		updated Property
		res     Result
	)
	err := s.run(ctx, write("update_property", EntityProperty, ActionUpdate, adminID), func(ctx context.Context) (string, error) {
		next := normalizeListing(input)
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := ensureOwner(tx, adminID, id); err != nil {
				return err
			}
			var err error
			updated, err = tx.UpdateProperty(id, func(p *Property) error {
				status := p.Status
				owner := p.AdminID
				*p = next
				p.AdminID = owner
				if p.Status == "" {
					p.Status = status
				}
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteProperty removes a listing owned by adminID. Images no other listing
// or profile still references are removed afterwards on a best-effort basis;
// the image host only deletes images adminID uploaded.
func (s *Service) DeleteProperty(ctx context.Context, adminID, id string) (Result, error) {
	var (
		res      Result
		orphaned []string
	)
	err := s.run(ctx, write("delete_property", EntityProperty, ActionDelete, adminID), func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := ensureOwner(tx, adminID, id); err != nil {
				return err
			}
			removed, _ := tx.FindProperty(id)
			if err := tx.DeleteProperty(id); err != nil {
				return err
			}
			orphaned = unreferencedImages(tx.Snapshot(), removed.Images)
			return nil
		})
		return id, err
	})
	if err == nil && s.images != nil {
		for _, url := range orphaned {
			if delErr := s.images.Delete(ctx, adminID, url); delErr != nil {
				s.logger.Warn("image cleanup failed", zap.String("property_id", id), zap.String("url", url), zap.Error(delErr))
			}
		}
	}
	return res, err
}

// TogglePropertyStatus flips a listing between publicada and baja.
func (s *Service) TogglePropertyStatus(ctx context.Context, adminID, id string) (Property, Result, error) {
	var (
		updated Property
		res     Result
	)
	err := s.run(ctx, write("toggle_property_status", EntityProperty, ActionUpdate, adminID), func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := ensureOwner(tx, adminID, id); err != nil {
				return err
			}
			var err error
			updated, err = tx.UpdateProperty(id, func(p *Property) error {
				p.Status = p.Status.Toggle()
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// unreferencedImages returns the urls no listing or profile photo in view uses.
func unreferencedImages(view TransactionView, urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	inUse := make(map[string]struct{})
	for _, p := range view.ListProperties() {
		for _, u := range p.Images {
			inUse[u] = struct{}{}
		}
	}
	for _, p := range view.ListProfiles() {
		if p.PhotoURL != "" {
			inUse[p.PhotoURL] = struct{}{}
		}
	}
	var out []string
	for _, u := range urls {
		if _, ok := inUse[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}

func ensureOwner(tx Transaction, adminID, id string) error {
	current, ok := tx.FindProperty(id)
	if !ok {
		return ErrNotFound{Entity: EntityProperty, ID: id}
	}
	if adminID == "" || current.AdminID != adminID {
		return ErrForbidden
	}
	return nil
}

// ListPropertiesByAdmin returns the listings owned by adminID, newest first.
func (s *Service) ListPropertiesByAdmin(ctx context.Context, adminID string) ([]Property, error) {
	return s.FilterDashboard(ctx, adminID, DashboardFilter{})
}

// FilterDashboard returns the listings owned by adminID matching filter.
func (s *Service) FilterDashboard(ctx context.Context, adminID string, filter DashboardFilter) ([]Property, error) {
	out := []Property{}
	err := s.run(ctx, read("filter_dashboard"), func(context.Context) (string, error) {
		for _, p := range s.store.ListProperties() {
			if p.AdminID == adminID && filter.Matches(p) {
				out = append(out, p)
			}
		}
		return "", nil
	})
	return out, err
}

// SearchProperties runs the public explorer query over published listings.
func (s *Service) SearchProperties(ctx context.Context, q PropertyQuery) (SearchResult, error) {
	var res SearchResult
	err := s.run(ctx, read("search_properties"), func(context.Context) (string, error) {
		var extra func(Property) (bool, error)
		if q.Expr != "" {
			var err error
			if extra, err = s.exprs.Predicate(q.Expr); err != nil {
				return "", err
			}
		}
		var err error
		res, err = Search(s.store.ListProperties(), q, extra)
		return "", err
	})
	return res, err
}

// ValidateExpression compiles an advanced search expression without running it.
func (s *Service) ValidateExpression(expression string) error {
	_, err := s.exprs.Compile(expression)
	return err
}

// FeaturedProperties returns published featured listings, newest first.
func (s *Service) FeaturedProperties(ctx context.Context, limit int) ([]Property, error) {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}
	out := []Property{}
	err := s.run(ctx, read("featured_properties"), func(context.Context) (string, error) {
		for _, p := range s.store.ListProperties() {
			if len(out) == limit {
				break
			}
			if p.Published() && p.Featured {
				out = append(out, p)
			}
		}
		return "", nil
	})
	return out, err
}

// SimilarProperties returns published listings sharing the location or type of
// the subject, closest in price first.
func (s *Service) SimilarProperties(ctx context.Context, id string, limit int) ([]Property, error) {
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}
	out := []Property{}
	err := s.run(ctx, read("similar_properties"), func(context.Context) (string, error) {
		subject, ok := s.store.GetProperty(id)
		if !ok {
			return id, ErrNotFound{Entity: EntityProperty, ID: id}
		}
		out = similarTo(subject, s.store.ListProperties(), limit)
		return id, nil
	})
	return out, err
}

// GetProfile returns the agent profile for adminID and whether it exists. A
// missing profile is returned as a draft seeded with the admin e-mail.
func (s *Service) GetProfile(ctx context.Context, adminID string) (Profile, bool, error) {
	var (
		profile Profile
		exists  bool
	)
	err := s.run(ctx, read("get_profile"), func(context.Context) (string, error) {
		if profile, exists = s.store.GetProfile(adminID); exists {
			return adminID, nil
		}
		admin, ok := s.store.GetAdmin(adminID)
		if !ok {
			return adminID, ErrNotFound{Entity: EntityAdmin, ID: adminID}
		}
		profile = Profile{Base: Base{ID: adminID}, Email: admin.Email}
		return adminID, nil
	})
	return profile, exists, err
}

// SaveProfile creates or updates the agent profile for adminID.
func (s *Service) SaveProfile(ctx context.Context, adminID string, input Profile) (Profile, Result, error) {
	var (
		saved Profile
		res   Result
	)
	err := s.run(ctx, write("save_profile", EntityProfile, ActionUpdate, adminID), func(ctx context.Context) (string, error) {
		if _, ok := s.store.GetAdmin(adminID); !ok {
			return adminID, ErrNotFound{Entity: EntityAdmin, ID: adminID}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			saved, err = tx.SaveProfile(adminID, func(p *Profile) error {
				p.DisplayName = strings.TrimSpace(input.DisplayName)
				p.NumberPhone = strings.TrimSpace(input.NumberPhone)
				p.Email = strings.TrimSpace(input.Email)
				p.PhotoURL = strings.TrimSpace(input.PhotoURL)
				return nil
			})
			return err
		})
		return adminID, err
	})
	return saved, res, err
}

// SubmitLead stores a contact form submission. A referenced listing must be
// published.
func (s *Service) SubmitLead(ctx context.Context, input Lead) (Lead, Result, error) {
	var (
		created Lead
		res     Result
	)
	err := s.run(ctx, write("submit_lead", EntityLead, ActionCreate, ""), func(ctx context.Context) (string, error) {
		lead := Lead{
			Name:       strings.TrimSpace(input.Name),
			Email:      strings.TrimSpace(input.Email),
			Phone:      strings.TrimSpace(input.Phone),
			Message:    strings.TrimSpace(input.Message),
			PropertyID: strings.TrimSpace(input.PropertyID),
		}
		if lead.PropertyID != "" {
			if p, ok := s.store.GetProperty(lead.PropertyID); !ok || !p.Published() {
				return "", ErrNotFound{Entity: EntityProperty, ID: lead.PropertyID}
			}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateLead(lead)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// ListLeads returns every lead, newest first.
func (s *Service) ListLeads(ctx context.Context) ([]Lead, error) {
	var leads []Lead
	err := s.run(ctx, read("list_leads"), func(context.Context) (string, error) {
		leads = s.store.ListLeads()
		return "", nil
	})
	return leads, err
}

// DeleteLead removes a lead.
func (s *Service) DeleteLead(ctx context.Context, adminID, id string) (Result, error) {
	var res Result
	err := s.run(ctx, write("delete_lead", EntityLead, ActionDelete, adminID), func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.Snapshot().FindLead(id); !ok {
				return ErrNotFound{Entity: EntityLead, ID: id}
			}
			return tx.DeleteLead(id)
		})
		return id, err
	})
	return res, err
}

// CreateAdmin registers a dashboard account.
func (s *Service) CreateAdmin(ctx context.Context, email, password string) (Admin, Result, error) {
	var (
		created Admin
		res     Result
	)
	err := s.run(ctx, write("create_admin", EntityAdmin, ActionCreate, ""), func(ctx context.Context) (string, error) {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return "", err
		}
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateAdmin(Admin{Email: domain.NormalizeEmail(email), PasswordHash: hash})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// SetAdminPassword replaces the password of the admin registered under email.
func (s *Service) SetAdminPassword(ctx context.Context, email, password string) (Admin, error) {
	var updated Admin
	err := s.run(ctx, write("set_admin_password", EntityAdmin, ActionUpdate, ""), func(ctx context.Context) (string, error) {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return "", err
		}
		_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			admin, ok := tx.FindAdminByEmail(email)
			if !ok {
				return ErrNotFound{Entity: EntityAdmin, ID: domain.NormalizeEmail(email)}
			}
			var err error
			updated, err = tx.UpdateAdmin(admin.ID, func(a *Admin) error {
				a.PasswordHash = hash
				return nil
			})
			return err
		})
		return updated.ID, err
	})
	return updated, err
}

// rejectPassword burns a bcrypt comparison for logins without a usable account.
var rejectPassword = auth.RejectPassword

// Authenticate checks credentials and returns the matching enabled admin.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Admin, error) {
	var admin Admin
	err := s.run(ctx, read("authenticate"), func(ctx context.Context) (string, error) {
		var found bool
		err := s.store.View(ctx, func(view TransactionView) error {
			admin, found = view.FindAdminByEmail(email)
			return nil
		})
		if err != nil {
			return "", err
		}
		if !found || admin.Disabled {
			return "", rejectPassword(password)
		}
		if err := auth.CheckPassword(admin.PasswordHash, password); err != nil {
			return admin.ID, err
		}
		return admin.ID, nil
	})
	if err != nil {
		return Admin{}, err
	}
	return admin, nil
}

// AdminActive reports whether adminID exists and is enabled.
func (s *Service) AdminActive(_ context.Context, adminID string) bool {
	admin, ok := s.store.GetAdmin(adminID)
	return ok && !admin.Disabled
}

// FindAdminByEmail returns the admin registered under email.
func (s *Service) FindAdminByEmail(ctx context.Context, email string) (Admin, error) {
	var admin Admin
	err := s.run(ctx, read("find_admin_by_email"), func(ctx context.Context) (string, error) {
		var found bool
		err := s.store.View(ctx, func(view TransactionView) error {
			admin, found = view.FindAdminByEmail(email)
			return nil
		})
		if err != nil {
			return "", err
		}
		if !found {
			return "", ErrNotFound{Entity: EntityAdmin, ID: domain.NormalizeEmail(email)}
		}
		return admin.ID, nil
	})
	return admin, err
}

// GetAdmin returns an admin account by id.
func (s *Service) GetAdmin(ctx context.Context, id string) (Admin, error) {
	var admin Admin
	err := s.run(ctx, read("get_admin"), func(context.Context) (string, error) {
		var ok bool
		if admin, ok = s.store.GetAdmin(id); !ok {
			return id, ErrNotFound{Entity: EntityAdmin, ID: id}
		}
		return id, nil
	})
	return admin, err
}

// normalizeListing trims text fields and drops blank or repeated images and
// features. Identity, ownership and timestamps are cleared.
func normalizeListing(in Property) Property {
	p := in
	p.Base = Base{ID: strings.TrimSpace(in.ID)}
	p.AdminID = ""
	p.Title = strings.TrimSpace(in.Title)
	p.Location = strings.TrimSpace(in.Location)
	p.Address = strings.TrimSpace(in.Address)
	p.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if p.Currency == "" {
		p.Currency = domain.DefaultCurrency
	}
	p.Floor = strings.TrimSpace(in.Floor)
	p.Orientation = strings.TrimSpace(in.Orientation)
	p.Description = strings.TrimSpace(in.Description)
	p.Images = compactStrings(in.Images)
	p.Features = compactStrings(in.Features)
	return p
}

func compactStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
