package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/model"
	"github.com/kidlearn/server/internal/repo"
	"github.com/kidlearn/server/internal/trial"
)

// Options tunes AuthService behavior
type Options struct {
	AllowAdminSignup bool
	DefaultLanguage  string
	Now              func() time.Time
}

// AuthResult is returned by flows that mint tokens
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	Account      model.Account
	Trial        model.TrialStatus
}

// AuthService orchestrates authentication operations
type AuthService struct {
	accounts   repo.AccountRepo
	otpEngine  *OtpEngine
	jwtService *JWTService
	hasher     PasswordHasher
	logger     *zap.Logger
	opts       Options

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service
func NewAuthService(
	accounts repo.AccountRepo,
	otpEngine *OtpEngine,
	jwtService *JWTService,
	hasher PasswordHasher,
	logger *zap.Logger,
	opts Options,
) *AuthService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if apperr.NormalizeLang(opts.DefaultLanguage) == "" {
		opts.DefaultLanguage = apperr.LangVI
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		accounts:   accounts,
		otpEngine:  otpEngine,
		jwtService: jwtService,
		hasher:     hasher,
		logger:     logger,
		opts:       opts,
	}
}

// Register creates a parent or child account on a fresh trial and signs it in
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := in.Validate(s.opts.AllowAdminSignup); err != nil {
		return nil, err
	}

	created, err := s.createAccount(ctx, in, nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info("account registered",
		zap.String("account_id", created.ID.String()),
		zap.String("role", string(created.Role)),
	)
	return s.issueTokens(created, s.opts.Now())
}

// createAccount stores a validated registration. edits, when set, are applied
// on top of the defaults before the insert.
func (s *AuthService) createAccount(ctx context.Context, in RegisterInput, edits *UpdateProfileInput) (model.Account, error) {
	if _, err := s.accounts.GetByEmail(ctx, in.Email); err == nil {
		return model.Account{}, apperr.New(apperr.KindConflict, "email already registered")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return model.Account{}, fmt.Errorf("check existing account: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.Account{}, err
	}

	lang := in.Language
	if lang == "" {
		lang = s.opts.DefaultLanguage
	}
	account := model.Account{
		Name:           in.Name,
		Email:          in.Email,
		PasswordHash:   hash,
		Role:           in.Role,
		Language:       lang,
		IsActive:       true,
		IsTrialAccount: true,
		Settings:       model.Settings{Notifications: true, Timezone: model.DefaultTimezone},
	}
	if edits != nil {
		edits.apply(&account)
	}
	trial.ApplyDefaults(&account, s.opts.Now())

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return model.Account{}, apperr.New(apperr.KindConflict, "email already registered")
		}
		return model.Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

// Login checks credentials, account lock and trial window, then records the login
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.compareDummy(in.Password)
			return nil, apperr.New(apperr.KindInvalidCredentials, "unknown email")
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	ok, err := s.hasher.Compare(account.PasswordHash, in.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindInvalidCredentials, "password mismatch")
	}

	if !account.IsActive {
		return nil, apperr.New(apperr.KindAccountLocked, "account disabled")
	}

	now := s.opts.Now()
	if account.Role != model.RoleAdmin && account.IsTrialAccount && !account.IsActivated && !trial.IsValid(account, now) {
		s.logger.Info("login rejected: trial expired", zap.String("account_id", account.ID.String()))
		return nil, apperr.TrialExpired(trial.Status(account, now))
	}

	if err := s.accounts.UpdateLastLogin(ctx, account.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	account.LastLoginAt = &now

	return s.issueTokens(account, now)
}

// ForgotPassword issues a reset code. Unknown emails succeed silently so the
// endpoint cannot be used to discover accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("password reset requested for unknown email", zap.String("email", MaskEmail(in.Email)))
			return nil
		}
		return fmt.Errorf("load account: %w", err)
	}

	return s.otpEngine.Issue(ctx, account.Email, account.Language)
}

// VerifyOTP checks a reset code without consuming it
func (s *AuthService) VerifyOTP(ctx context.Context, in VerifyOTPInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	return s.otpEngine.Verify(ctx, in.Email, in.OTP)
}

// ResetPassword consumes a reset code and sets the new password
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "account not found")
		}
		return fmt.Errorf("load account: %w", err)
	}

	// wrong, locked and expired codes are rejected before paying for a hash
	if err := s.otpEngine.Verify(ctx, account.Email, in.OTP); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.otpEngine.ConsumeOnReset(ctx, account.Email, in.OTP, hash); err != nil {
		return err
	}

	s.logger.Info("password reset", zap.String("account_id", account.ID.String()))
	return nil
}

// Refresh mints a new access token from a refresh token. The refresh token
// itself is neither rotated nor revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperr.Validation("refreshToken is required")
	}
	claims, err := s.jwtService.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", err
	}

	account, err := s.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", apperr.New(apperr.KindUnauthorized, "account no longer exists")
		}
		return "", fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return "", apperr.New(apperr.KindAccountLocked, "account disabled")
	}

	return s.jwtService.SignAccessToken(account)
}

// ChangePassword replaces the password after checking the current one
func (s *AuthService) ChangePassword(ctx context.Context, accountID uuid.UUID, in ChangePasswordInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	account, err := s.loadSelf(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Compare(account.PasswordHash, in.CurrentPassword)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindInvalidCredentials, "current password mismatch")
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Profile returns the caller's account and trial status
func (s *AuthService) Profile(ctx context.Context, accountID uuid.UUID) (model.Account, model.TrialStatus, error) {
	account, err := s.loadSelf(ctx, accountID)
	if err != nil {
		return model.Account{}, model.TrialStatus{}, err
	}
	return account, trial.Status(account, s.opts.Now()), nil
}

// UpdateProfile edits the caller's name, language, profile and settings
func (s *AuthService) UpdateProfile(ctx context.Context, accountID uuid.UUID, in UpdateProfileInput) (model.Account, model.TrialStatus, error) {
	if err := in.Validate(); err != nil {
		return model.Account{}, model.TrialStatus{}, err
	}

	account, err := s.loadSelf(ctx, accountID)
	if err != nil {
		return model.Account{}, model.TrialStatus{}, err
	}
	in.apply(&account)

	updated, err := s.accounts.UpdateProfile(ctx, account)
	if err != nil {
		return model.Account{}, model.TrialStatus{}, fmt.Errorf("update profile: %w", err)
	}
	return updated, trial.Status(updated, s.opts.Now()), nil
}

// compareDummy spends one hash comparison so unknown emails answer as slowly as known ones
func (s *AuthService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("kidlearn-unknown-account")
		if err != nil {
			s.logger.Error("failed to prepare dummy password hash", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Compare(s.dummyHash, password)
	}
}

func (s *AuthService) loadSelf(ctx context.Context, accountID uuid.UUID) (model.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Account{}, apperr.New(apperr.KindUnauthorized, "account no longer exists")
		}
		return model.Account{}, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

func (s *AuthService) issueTokens(account model.Account, now time.Time) (*AuthResult, error) {
	accessToken, err := s.jwtService.SignAccessToken(account)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtService.SignRefreshToken(account)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Account:      account,
		Trial:        trial.Status(account, now),
	}, nil
}
