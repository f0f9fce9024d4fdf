// Package trial decides whether non-admin accounts are inside their trial
// window and applies admin activation, deactivation and extension.
package trial

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/model"
	"github.com/kidlearn/server/internal/repo"
)

const (
	day = 24 * time.Hour
	// DefaultPeriod is the trial length given to new non-admin accounts
	DefaultPeriod = 3 * day
	// DefaultExtensionDays is used when an admin extends without a day count
	DefaultExtensionDays = 7
	// MaxExtensionDays bounds a single extension
	MaxExtensionDays = 365
)

// ApplyDefaults sets the creation-time trial fields. Admins are never on trial;
// other accounts get a trial ending DefaultPeriod after now unless one was supplied.
func ApplyDefaults(a *model.Account, now time.Time) {
	if a.Role == model.RoleAdmin {
		a.IsTrialAccount = false
		a.IsActivated = true
		return
	}
	if a.TrialStartDate.IsZero() {
		a.TrialStartDate = now
	}
	if a.IsTrialAccount && a.TrialEndDate == nil {
		end := now.Add(DefaultPeriod)
		a.TrialEndDate = &end
	}
}

// exempt reports whether a is outside the trial rules altogether
func exempt(a model.Account) bool {
	return a.Role == model.RoleAdmin || !a.IsTrialAccount || a.IsActivated
}

// IsValid reports whether a may act at now. A trial account without an end
// date has no bound.
func IsValid(a model.Account, now time.Time) bool {
	if exempt(a) || a.TrialEndDate == nil {
		return true
	}
	return !now.After(*a.TrialEndDate)
}

// Status summarizes the trial window for display in the account's language
func Status(a model.Account, now time.Time) model.TrialStatus {
	lang := apperr.NormalizeLang(a.Language)
	if exempt(a) {
		return model.TrialStatus{IsTrial: false, IsValid: true, Message: message(lang, msgFull, 0)}
	}
	if a.TrialEndDate == nil {
		return model.TrialStatus{IsTrial: true, IsValid: true, Message: message(lang, msgOpen, 0)}
	}

	days := int(math.Ceil(float64(a.TrialEndDate.Sub(now)) / float64(day)))
	if days < 0 {
		days = 0
	}
	valid := !now.After(*a.TrialEndDate)
	status := model.TrialStatus{IsTrial: true, IsValid: valid, DaysRemaining: &days}
	if valid {
		status.Message = message(lang, msgRemaining, days)
	} else {
		status.Message = message(lang, msgExpired, 0)
	}
	return status
}

// Engine persists trial state changes through the account repository
type Engine struct {
	accounts repo.AccountRepo
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates a trial engine. A nil now uses time.Now.
func NewEngine(accounts repo.AccountRepo, logger *zap.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{accounts: accounts, logger: logger, now: now}
}

// Now returns the engine clock's current time
func (e *Engine) Now() time.Time { return e.now() }

// Activate lifts the trial bound on a trial account
func (e *Engine) Activate(ctx context.Context, id uuid.UUID) (model.Account, error) {
	return e.mutate(ctx, id, "activate", func(a *model.Account) error {
		if !a.IsTrialAccount {
			return apperr.New(apperr.KindInvalidState, "not a trial account")
		}
		if a.IsActivated {
			return apperr.New(apperr.KindInvalidState, "already activated")
		}
		a.IsActivated = true
		return nil
	})
}

// Deactivate restores the trial bound. The original end date is kept.
func (e *Engine) Deactivate(ctx context.Context, id uuid.UUID) (model.Account, error) {
	return e.mutate(ctx, id, "deactivate", func(a *model.Account) error {
		if !a.IsTrialAccount {
			return apperr.New(apperr.KindInvalidState, "not a trial account")
		}
		a.IsActivated = false
		return nil
	})
}

// Extend adds days to the trial end, counting from the current end date when it
// is still in the future and from now otherwise.
func (e *Engine) Extend(ctx context.Context, id uuid.UUID, days int) (model.Account, error) {
	if days < 1 || days > MaxExtensionDays {
		return model.Account{}, apperr.Validation("days must be between 1 and %d", MaxExtensionDays)
	}
	return e.mutate(ctx, id, "extend", func(a *model.Account) error {
		if !a.IsTrialAccount {
			return apperr.New(apperr.KindInvalidState, "not a trial account")
		}
		now := e.now()
		base := now
		if a.TrialEndDate != nil && a.TrialEndDate.After(now) {
			base = *a.TrialEndDate
		}
		end := base.Add(time.Duration(days) * day)
		a.TrialEndDate = &end
		return nil
	})
}

// List returns one page of trial accounts, newest first, filtered by status
// ("", "active", "expired" or "activated").
func (e *Engine) List(ctx context.Context, status string, page, limit int) ([]model.Account, int, error) {
	switch status {
	case "", "active", "expired", "activated":
	default:
		return nil, 0, apperr.Validation("status must be one of active, expired, activated")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	accounts, total, err := e.accounts.ListTrial(ctx, model.TrialFilter{
		Status: status,
		Now:    e.now(),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list trial accounts: %w", err)
	}
	return accounts, total, nil
}

// Stats counts trial accounts by state
func (e *Engine) Stats(ctx context.Context) (model.TrialStats, error) {
	stats, err := e.accounts.TrialStats(ctx, e.now())
	if err != nil {
		return model.TrialStats{}, fmt.Errorf("trial stats: %w", err)
	}
	return stats, nil
}

func (e *Engine) mutate(ctx context.Context, id uuid.UUID, op string, fn func(*model.Account) error) (model.Account, error) {
	a, err := e.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Account{}, apperr.New(apperr.KindNotFound, "account not found")
		}
		return model.Account{}, fmt.Errorf("load account: %w", err)
	}
	if err := fn(&a); err != nil {
		return model.Account{}, err
	}
	if err := e.accounts.UpdateTrial(ctx, a); err != nil {
		return model.Account{}, fmt.Errorf("%s trial: %w", op, err)
	}
	e.logger.Info("trial updated",
		zap.String("op", op),
		zap.String("account_id", a.ID.String()),
		zap.Bool("activated", a.IsActivated),
		zap.Timep("trial_end", a.TrialEndDate),
	)
	return a, nil
}
