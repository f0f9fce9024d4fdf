package auth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/model"
	"github.com/kidlearn/server/internal/repo"
)

type serviceFixture struct {
	svc      *AuthService
	store    *repo.MemoryStore
	otp      *OtpEngine
	mailer   *fakeMailer
	clock    *testClock
	jwt      *JWTService
	hasher   *countingHasher
	accounts repo.AccountRepo
}

// countingHasher records how often the wrapped hasher does work
type countingHasher struct {
	inner    PasswordHasher
	hashes   atomic.Int32
	compares atomic.Int32
}

func (h *countingHasher) Hash(password string) (string, error) {
	h.hashes.Add(1)
	return h.inner.Hash(password)
}

func (h *countingHasher) Compare(hash, password string) (bool, error) {
	h.compares.Add(1)
	return h.inner.Compare(hash, password)
}

func newServiceFixture(t *testing.T, opts Options) *serviceFixture {
	t.Helper()
	engine, store, mailer, clock := newTestOtpEngine(t, "111111", "222222")
	jwtService := NewJWTService(testSecret, "", 0, 0)
	jwtService.now = clock.Now
	hasher := &countingHasher{inner: NewBcryptHasher(bcrypt.MinCost)}
	opts.Now = clock.Now
	svc := NewAuthService(store.Accounts(), engine, jwtService, hasher, nil, opts)
	return &serviceFixture{
		svc:      svc,
		store:    store,
		otp:      engine,
		mailer:   mailer,
		clock:    clock,
		jwt:      jwtService,
		hasher:   hasher,
		accounts: store.Accounts(),
	}
}

// createAccount stores an active, non-trial parent account
func createAccount(t *testing.T, accounts repo.AccountRepo, email, passwordHash string) model.Account {
	t.Helper()
	a, err := accounts.Create(context.Background(), model.Account{
		Name:         "Test",
		Email:        email,
		PasswordHash: passwordHash,
		Role:         model.RoleParent,
		Language:     "vi",
		IsActive:     true,
	})
	require.NoError(t, err)
	return a
}

func (f *serviceFixture) register(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{Name: "Lan", Email: email, Password: password})
	require.NoError(t, err)
	return res
}

func TestAuthService_RegisterStartsThreeDayTrial(t *testing.T) {
	f := newServiceFixture(t, Options{})
	res := f.register(t, "Lan@Example.com", "secret1")

	assert.Equal(t, "lan@example.com", res.Account.Email)
	assert.Equal(t, model.RoleParent, res.Account.Role)
	assert.Equal(t, "vi", res.Account.Language)
	assert.True(t, res.Account.IsTrialAccount)
	assert.NotEqual(t, "secret1", res.Account.PasswordHash)

	require.NotNil(t, res.Trial.DaysRemaining)
	assert.Equal(t, 3, *res.Trial.DaysRemaining)
	assert.True(t, res.Trial.IsValid)

	claims, err := f.jwt.VerifyAccessToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Account.ID, claims.UserID)
	_, err = f.jwt.VerifyRefreshToken(res.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_RegisterDuplicateEmail(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.register(t, "lan@example.com", "secret1")

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Other", Email: "LAN@example.com", Password: "secret2"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestAuthService_RegisterAdmin(t *testing.T) {
	in := RegisterInput{Name: "Root", Email: "root@example.com", Password: "secret1", Role: model.RoleAdmin}

	f := newServiceFixture(t, Options{})
	_, err := f.svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	f = newServiceFixture(t, Options{AllowAdminSignup: true})
	res, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Account.IsTrialAccount)
	assert.True(t, res.Trial.IsValid)
	assert.Nil(t, res.Trial.DaysRemaining)
}

func TestAuthService_Login(t *testing.T) {
	f := newServiceFixture(t, Options{})
	reg := f.register(t, "lan@example.com", "secret1")
	f.clock.Advance(time.Hour)

	res, err := f.svc.Login(context.Background(), LoginInput{Email: " LAN@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, res.Account.ID)
	require.NotNil(t, res.Account.LastLoginAt)
	assert.Equal(t, f.clock.Now(), *res.Account.LastLoginAt)

	stored, err := f.accounts.GetByID(context.Background(), reg.Account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
}

func TestAuthService_LoginInvalidCredentials(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.register(t, "lan@example.com", "secret1")

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "lan@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), LoginInput{Email: "ghost@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestAuthService_LoginDisabledAccountBeforeTrialCheck(t *testing.T) {
	f := newServiceFixture(t, Options{})
	hash, err := f.hasher.Hash("secret1")
	require.NoError(t, err)
	end := f.clock.Now().Add(-time.Hour)
	_, err = f.accounts.Create(context.Background(), model.Account{
		Name:           "Off",
		Email:          "off@example.com",
		PasswordHash:   hash,
		Role:           model.RoleParent,
		IsActive:       false,
		IsTrialAccount: true,
		TrialEndDate:   &end,
	})
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), LoginInput{Email: "off@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrAccountLocked)
}

func TestAuthService_LoginTrialExpired(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.register(t, "lan@example.com", "secret1")

	f.clock.Advance(3 * 24 * time.Hour)
	_, err := f.svc.Login(context.Background(), LoginInput{Email: "lan@example.com", Password: "secret1"})
	require.NoError(t, err, "trial is valid up to and including its end instant")

	before, err := f.accounts.GetByEmail(context.Background(), "lan@example.com")
	require.NoError(t, err)
	require.NotNil(t, before.LastLoginAt)
	lastLogin := *before.LastLoginAt

	f.clock.Advance(time.Second)
	_, err = f.svc.Login(context.Background(), LoginInput{Email: "lan@example.com", Password: "secret1"})
	ae := kindOf(t, err)

	after, err := f.accounts.GetByEmail(context.Background(), "lan@example.com")
	require.NoError(t, err)
	require.NotNil(t, after.LastLoginAt)
	assert.True(t, lastLogin.Equal(*after.LastLoginAt), "a rejected login leaves lastLogin untouched")

	assert.Equal(t, apperr.KindTrialExpired, ae.Kind)
	require.NotNil(t, ae.Trial)
	assert.False(t, ae.Trial.IsValid)
	require.NotNil(t, ae.Trial.DaysRemaining)
	assert.Equal(t, 0, *ae.Trial.DaysRemaining)
}

func TestAuthService_ForgotPassword(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.register(t, "lan@example.com", "secret1")

	require.NoError(t, f.svc.ForgotPassword(context.Background(), ForgotPasswordInput{Email: "lan@example.com"}))
	require.Len(t, f.mailer.sent, 1)
	assert.Contains(t, f.mailer.sent[0].body, "111111")

	// unknown addresses get the same answer and no mail
	require.NoError(t, f.svc.ForgotPassword(context.Background(), ForgotPasswordInput{Email: "ghost@example.com"}))
	assert.Len(t, f.mailer.sent, 1)
}

func TestAuthService_ResetPasswordFlow(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()
	f.register(t, "lan@example.com", "secret1")
	require.NoError(t, f.svc.ForgotPassword(ctx, ForgotPasswordInput{Email: "lan@example.com"}))

	require.NoError(t, f.svc.VerifyOTP(ctx, VerifyOTPInput{Email: "lan@example.com", OTP: "111111"}))
	require.NoError(t, f.svc.ResetPassword(ctx, ResetPasswordInput{Email: "lan@example.com", OTP: "111111", NewPassword: "brand-new"}))

	_, err := f.svc.Login(ctx, LoginInput{Email: "lan@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, LoginInput{Email: "lan@example.com", Password: "brand-new"})
	assert.NoError(t, err)

	err = f.svc.ResetPassword(ctx, ResetPasswordInput{Email: "lan@example.com", OTP: "111111", NewPassword: "third-one"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAuthService_ResetPasswordUnknownAccount(t *testing.T) {
	f := newServiceFixture(t, Options{})
	err := f.svc.ResetPassword(context.Background(), ResetPasswordInput{Email: "ghost@example.com", OTP: "111111", NewPassword: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAuthService_Refresh(t *testing.T) {
	f := newServiceFixture(t, Options{})
	reg := f.register(t, "lan@example.com", "secret1")

	access, err := f.svc.Refresh(context.Background(), reg.RefreshToken)
	require.NoError(t, err)
	claims, err := f.jwt.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, claims.UserID)

	_, err = f.svc.Refresh(context.Background(), reg.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	_, err = f.svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()
	reg := f.register(t, "lan@example.com", "secret1")

	err := f.svc.ChangePassword(ctx, reg.Account.ID, ChangePasswordInput{CurrentPassword: "nope-nope", NewPassword: "secret2"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	require.NoError(t, f.svc.ChangePassword(ctx, reg.Account.ID, ChangePasswordInput{CurrentPassword: "secret1", NewPassword: "secret2"}))
	_, err = f.svc.Login(ctx, LoginInput{Email: "lan@example.com", Password: "secret2"})
	assert.NoError(t, err)
}

func TestAuthService_Profile(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()
	reg := f.register(t, "lan@example.com", "secret1")

	name, lang := "Lan Nguyen", "en"
	updated, status, err := f.svc.UpdateProfile(ctx, reg.Account.ID, UpdateProfileInput{Name: &name, Language: &lang})
	require.NoError(t, err)
	assert.Equal(t, "Lan Nguyen", updated.Name)
	assert.Equal(t, "en", updated.Language)
	assert.Equal(t, "3 trial days remaining", status.Message)

	got, _, err := f.svc.Profile(ctx, reg.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lan Nguyen", got.Name)
	assert.True(t, got.Settings.Notifications)
	assert.Equal(t, model.DefaultTimezone, got.Settings.Timezone)

	updated, _, err = f.svc.UpdateProfile(ctx, reg.Account.ID, UpdateProfileInput{
		Profile:  &ProfileInput{AvatarURL: ptr("https://cdn.example.com/lan.png"), Gender: ptr("female")},
		Settings: &SettingsInput{Notifications: ptr(false)},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/lan.png", updated.Profile.AvatarURL)
	assert.Equal(t, model.GenderFemale, updated.Profile.Gender)
	assert.False(t, updated.Settings.Notifications)
	assert.Equal(t, "Lan Nguyen", updated.Name, "fields left out of the request are unchanged")

	_, _, err = f.svc.UpdateProfile(ctx, reg.Account.ID, UpdateProfileInput{Profile: &ProfileInput{Gender: ptr("robot")}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAuthService_LoginUnknownEmailStillComparesHash(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.register(t, "lan@example.com", "secret1")
	ctx := context.Background()

	base := f.hasher.compares.Load()
	_, err := f.svc.Login(ctx, LoginInput{Email: "lan@example.com", Password: "wrong-one"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	known := f.hasher.compares.Load() - base

	base = f.hasher.compares.Load()
	_, err = f.svc.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "wrong-one"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	unknown := f.hasher.compares.Load() - base

	assert.Equal(t, int32(1), known)
	assert.Equal(t, known, unknown)
}

func TestAuthService_ResetPasswordRejectsBadCodeBeforeHashing(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()
	f.register(t, "lan@example.com", "secret1")
	require.NoError(t, f.svc.ForgotPassword(ctx, ForgotPasswordInput{Email: "lan@example.com"}))

	base := f.hasher.hashes.Load()
	err := f.svc.ResetPassword(ctx, ResetPasswordInput{Email: "lan@example.com", OTP: "999999", NewPassword: "brand-new"})
	assert.ErrorIs(t, err, apperr.ErrWrongCode)
	assert.Equal(t, base, f.hasher.hashes.Load())

	// the wrong code was charged once
	assert.Equal(t, 1, kindOf(t, f.svc.VerifyOTP(ctx, VerifyOTPInput{Email: "lan@example.com", OTP: "999999"})).RemainingAttempts)

	require.NoError(t, f.svc.ResetPassword(ctx, ResetPasswordInput{Email: "lan@example.com", OTP: "111111", NewPassword: "brand-new"}))
	assert.Equal(t, base+1, f.hasher.hashes.Load())
}
