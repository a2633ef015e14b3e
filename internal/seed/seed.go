// Package seed loads demo accounts and listings from JSONC files (JSON with
// comments and trailing commas) and applies them through the core service.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"inmoelegance/internal/core"
)

// File is the decoded seed document.
type File struct {
	Admins []Admin     `json:"admins"`
	Leads  []core.Lead `json:"leads"`
}

// Admin is one dashboard account with its profile and listings.
type Admin struct {
	Email      string          `json:"email"`
	Password   string          `json:"password"`
	Profile    *core.Profile   `json:"profile,omitempty"`
	Properties []core.Property `json:"properties"`
}

// Service is the slice of *core.Service used to apply a seed.
type Service interface {
	CreateAdmin(ctx context.Context, email, password string) (core.Admin, core.Result, error)
	SaveProfile(ctx context.Context, adminID string, input core.Profile) (core.Profile, core.Result, error)
	CreateProperty(ctx context.Context, adminID string, input core.Property) (core.Property, core.Result, error)
	SubmitLead(ctx context.Context, input core.Lead) (core.Lead, core.Result, error)
}

// Summary counts what Apply created.
type Summary struct {
	Admins     int `json:"admins"`
	Skipped    int `json:"skipped"`
	Properties int `json:"properties"`
	Leads      int `json:"leads"`
}

// Parse strips comments and trailing commas from data and decodes it.
func Parse(data []byte) (File, error) {
	var f File
	if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
		return File{}, fmt.Errorf("parsing seed: %w", err)
	}
	for i, a := range f.Admins {
		if a.Email == "" || a.Password == "" {
			return File{}, fmt.Errorf("parsing seed: admin %d needs email and password", i)
		}
	}
	return f, nil
}

// ReadFile reads and parses a JSONC seed file.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Apply creates the seeded accounts, profiles, listings and leads. Accounts
// whose e-mail is already registered are skipped along with their listings,
// so running a seed twice does not duplicate data. Leads are only added when
// at least one account was created.
func Apply(ctx context.Context, svc Service, f File, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("seed")
	var sum Summary
	for _, a := range f.Admins {
		admin, _, err := svc.CreateAdmin(ctx, a.Email, a.Password)
		var violation core.RuleViolationError
		if errors.As(err, &violation) {
			logger.Info("admin already registered, skipping", zap.String("email", a.Email))
			sum.Skipped++
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("create admin %s: %w", a.Email, err)
		}
		sum.Admins++
		if a.Profile != nil {
			if _, _, err := svc.SaveProfile(ctx, admin.ID, *a.Profile); err != nil {
				return sum, fmt.Errorf("save profile for %s: %w", a.Email, err)
			}
		}
		for _, p := range a.Properties {
			created, res, err := svc.CreateProperty(ctx, admin.ID, p)
			if err != nil {
				return sum, fmt.Errorf("create property %q: %w", p.Title, err)
			}
			for _, v := range res.Violations {
				logger.Warn("seeded property has warnings", zap.String("property_id", created.ID), zap.String("rule", v.Rule), zap.String("message", v.Message))
			}
			sum.Properties++
		}
		logger.Info("admin seeded", zap.String("email", a.Email), zap.String("admin_id", admin.ID), zap.Int("properties", len(a.Properties)))
	}
	if sum.Admins == 0 {
		return sum, nil
	}
	for _, l := range f.Leads {
		if _, _, err := svc.SubmitLead(ctx, l); err != nil {
			return sum, fmt.Errorf("submit lead from %s: %w", l.Email, err)
		}
		sum.Leads++
	}
	return sum, nil
}
