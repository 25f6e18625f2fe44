// Package users implements the user directory for the Prim backend.
//
// The directory owns User records: lookup by phone or email, creation with a
// store-level uniqueness guarantee on the normalized phone, and partial
// updates. All phone comparison goes through the phone normalizer, so lookups
// succeed regardless of which raw format a number arrives in.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prim-health/prim-backend/internal/models"
	"github.com/prim-health/prim-backend/internal/phone"
	"github.com/prim-health/prim-backend/internal/store"
)

// Directory provides user lookup and mutation on top of a Store.
type Directory struct {
	st store.Store
}

// NewDirectory creates a Directory backed by the given store.
func NewDirectory(st store.Store) *Directory {
	return &Directory{st: st}
}

// FindByPhone resolves a raw phone string to a user. It first runs an indexed
// query on the normalized number, then falls back to a full scan that
// normalizes both the primary and callback phone of every record at
// comparison time, so historical rows stored in inconsistent raw formats are
// still found. Returns models.ErrNotFound when no user matches.
func (d *Directory) FindByPhone(ctx context.Context, raw string) (*models.User, error) {
	normalized := phone.Normalize(raw)
	if normalized == "" {
		return nil, models.ErrNotFound
	}

	u, err := d.st.GetUserByPhone(ctx, normalized)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("phone lookup failed: %w", err)
	}

	// Legacy rows may hold unnormalized phones, and callback phones are only
	// found by scanning.
	all, err := d.st.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("phone fallback scan failed: %w", err)
	}
	for i := range all {
		if phone.Equal(all[i].Phone, normalized) || phone.Equal(all[i].CallPhone, normalized) {
			slog.Debug("Directory.FindByPhone: matched via fallback scan", "user_id", all[i].ID)
			return &all[i], nil
		}
	}
	return nil, models.ErrNotFound
}

// FindByEmail resolves an email address to a user.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, models.ErrNotFound
	}
	return d.st.GetUserByEmail(ctx, email)
}

// CreateOptions carries the optional fields known at user creation time.
type CreateOptions struct {
	Name  string
	Email string
	IsYC  bool
}

// Create persists a new user for the given raw phone with onboarding
// defaults. The store enforces uniqueness of the normalized phone and this
// surfaces as models.ErrConflict.
func (d *Directory) Create(ctx context.Context, rawPhone string, opts CreateOptions) (*models.User, error) {
	normalized := phone.Normalize(rawPhone)
	if normalized == "" {
		return nil, models.NewValidationError("phone has no digits")
	}
	u := &models.User{
		Phone:     normalized,
		Name:      opts.Name,
		Email:     opts.Email,
		IsYC:      opts.IsYC,
		Onboarded: false,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.st.CreateUser(ctx, u); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("user creation failed: %w", err)
	}
	slog.Info("Directory.Create: user created", "user_id", u.ID, "phone", normalized)
	return u, nil
}

// FindOrCreate resolves the find-or-create race for webhook retries: when two
// near-simultaneous first messages both miss the lookup, the losing writer's
// duplicate-key conflict means someone else created the user, so re-fetch.
// Reports whether the returned user was newly created.
func (d *Directory) FindOrCreate(ctx context.Context, rawPhone string, opts CreateOptions) (*models.User, bool, error) {
	u, err := d.FindByPhone(ctx, rawPhone)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}

	u, err = d.Create(ctx, rawPhone, opts)
	if err == nil {
		return u, true, nil
	}
	if errors.Is(err, models.ErrConflict) {
		slog.Debug("Directory.FindOrCreate: lost creation race, re-fetching", "phone", rawPhone)
		u, err = d.FindByPhone(ctx, rawPhone)
		if err != nil {
			return nil, false, fmt.Errorf("re-fetch after conflict failed: %w", err)
		}
		return u, false, nil
	}
	return nil, false, err
}

// Update applies a partial update to the user's mutable fields. It reports
// false when the id does not exist; callers must check.
func (d *Directory) Update(ctx context.Context, id string, update models.UserUpdate) (bool, error) {
	ok, err := d.st.UpdateUser(ctx, id, update)
	if err != nil {
		return false, fmt.Errorf("user update failed: %w", err)
	}
	if !ok {
		slog.Warn("Directory.Update: user not found", "user_id", id)
	}
	return ok, nil
}
