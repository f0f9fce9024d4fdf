package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/model"
	"github.com/kidlearn/server/internal/repo"
)

// CreateAccount lets an admin create an account of any role, admins included
func (s *AuthService) CreateAccount(ctx context.Context, in CreateAccountInput) (model.Account, error) {
	if err := in.Validate(); err != nil {
		return model.Account{}, err
	}

	created, err := s.createAccount(ctx, in.RegisterInput, &UpdateProfileInput{Profile: in.Profile, Settings: in.Settings})
	if err != nil {
		return model.Account{}, err
	}
	s.logger.Info("account created by admin",
		zap.String("account_id", created.ID.String()),
		zap.String("role", string(created.Role)),
	)
	return created, nil
}

// GetAccount loads any account by id
func (s *AuthService) GetAccount(ctx context.Context, id uuid.UUID) (model.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Account{}, apperr.New(apperr.KindNotFound, "account not found")
		}
		return model.Account{}, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

// ListAccounts returns one page of accounts matching filter plus the total count
func (s *AuthService) ListAccounts(ctx context.Context, filter model.AccountFilter, page, limit int) ([]model.Account, int, error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, 0, apperr.Validation("role must be one of parent, child, admin")
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit
	accounts, total, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, total, nil
}

// UpdateAccount applies an admin edit to account id. Disabling an account makes
// its next login and refresh fail with AccountLocked. Admins cannot disable themselves.
func (s *AuthService) UpdateAccount(ctx context.Context, actorID, id uuid.UUID, in UpdateAccountInput) (model.Account, error) {
	if err := in.Validate(); err != nil {
		return model.Account{}, err
	}
	if in.IsActive != nil && !*in.IsActive && actorID == id {
		return model.Account{}, apperr.New(apperr.KindInvalidState, "admins cannot disable their own account")
	}

	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return model.Account{}, err
	}

	in.apply(&account)
	updated, err := s.accounts.UpdateProfile(ctx, account)
	if err != nil {
		return model.Account{}, fmt.Errorf("update account: %w", err)
	}

	if in.IsActive != nil && *in.IsActive != updated.IsActive {
		if err := s.accounts.SetActive(ctx, id, *in.IsActive); err != nil {
			return model.Account{}, fmt.Errorf("set active: %w", err)
		}
		updated.IsActive = *in.IsActive
		s.logger.Info("account active flag changed",
			zap.String("account_id", id.String()),
			zap.Bool("is_active", updated.IsActive),
			zap.String("by", actorID.String()),
		)
	}
	return updated, nil
}

// SetPassword overwrites the password of account id without the current one
func (s *AuthService) SetPassword(ctx context.Context, id uuid.UUID, in SetPasswordInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.logger.Info("password set by admin", zap.String("account_id", account.ID.String()))
	return nil
}

// EnsureAdmin creates the bootstrap admin when no account holds email yet.
// An existing account is left untouched; it reports whether one was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	in := RegisterInput{Name: name, Email: email, Password: password, Role: model.RoleAdmin}
	if err := in.Validate(true); err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}

	existing, err := s.accounts.GetByEmail(ctx, in.Email)
	if err == nil {
		if existing.Role != model.RoleAdmin {
			s.logger.Warn("bootstrap admin email belongs to a non-admin account", zap.String("email", MaskEmail(in.Email)))
		}
		return false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return false, fmt.Errorf("load bootstrap admin: %w", err)
	}

	created, err := s.createAccount(ctx, in, nil)
	if err != nil {
		return false, err
	}
	s.logger.Info("bootstrap admin created", zap.String("account_id", created.ID.String()))
	return true, nil
}
