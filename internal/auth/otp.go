package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/email"
	"github.com/kidlearn/server/internal/model"
	"github.com/kidlearn/server/internal/repo"
)

const (
	otpExpiry    = 10 * time.Minute
	maxAttempts  = 3
	lockDuration = 60 * time.Second
)

// Mailer delivers one HTML email
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// OtpEngine issues and verifies password-reset codes. Only a salted hash of
// each code is stored.
type OtpEngine struct {
	otpRepo  repo.OtpRepo
	mailer   Mailer
	salt     string
	logger   *zap.Logger
	now      func() time.Time
	generate func() (string, error)
}

// NewOtpEngine creates a new OTP engine
func NewOtpEngine(otpRepo repo.OtpRepo, mailer Mailer, salt string, logger *zap.Logger) *OtpEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OtpEngine{
		otpRepo:  otpRepo,
		mailer:   mailer,
		salt:     salt,
		logger:   logger,
		now:      time.Now,
		generate: generateOTPCode,
	}
}

// Issue replaces every challenge for email with a fresh one and mails the code.
// If delivery fails the new challenge is deleted again.
func (p *OtpEngine) Issue(ctx context.Context, emailAddr, lang string) error {
	code, err := p.generate()
	if err != nil {
		return err
	}

	ch, err := p.otpRepo.Replace(ctx, model.OTPChallenge{
		Email:     emailAddr,
		CodeHash:  hashOTP(emailAddr, code, p.salt),
		Attempts:  0,
		ExpiresAt: p.now().Add(otpExpiry),
	})
	if err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}

	subject, body, err := email.PasswordResetOTP(lang, code, int(otpExpiry/time.Minute))
	if err == nil {
		err = p.mailer.Send(ctx, emailAddr, subject, body)
	}
	if err != nil {
		if delErr := p.otpRepo.Delete(ctx, ch.ID); delErr != nil {
			p.logger.Error("failed to roll back undelivered challenge",
				zap.String("email", MaskEmail(emailAddr)), zap.Error(delErr))
		}
		if errors.Is(err, email.ErrNotConfigured) {
			return apperr.New(apperr.KindEmailNotConfigured, err.Error())
		}
		p.logger.Warn("otp email delivery failed", zap.String("email", MaskEmail(emailAddr)), zap.Error(err))
		return apperr.New(apperr.KindEmailFailed, err.Error())
	}
	return nil
}

// Verify checks code against the newest challenge without consuming it
func (p *OtpEngine) Verify(ctx context.Context, emailAddr, code string) error {
	now := p.now()
	return p.otpRepo.Evaluate(ctx, emailAddr, func(ch *model.OTPChallenge, superseded [][]byte) (*model.OTPFailure, error) {
		return p.check(ch, superseded, emailAddr, code, now)
	})
}

// ConsumeOnReset runs the Verify checks and, on success, stores passwordHash and
// deletes all challenges for email atomically.
func (p *OtpEngine) ConsumeOnReset(ctx context.Context, emailAddr, code, passwordHash string) error {
	now := p.now()
	err := p.otpRepo.ConsumeForReset(ctx, emailAddr, passwordHash, func(ch *model.OTPChallenge, superseded [][]byte) (*model.OTPFailure, error) {
		return p.check(ch, superseded, emailAddr, code, now)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.New(apperr.KindNotFound, "account not found")
	}
	return err
}

// PurgeExpired deletes challenges past their expiry
func (p *OtpEngine) PurgeExpired(ctx context.Context) (int64, error) {
	return p.otpRepo.DeleteExpired(ctx, p.now())
}

// check applies, in order: existence, lock, expiry, code match. A wrong code
// that belongs to a replaced challenge is reported as not found and costs no
// attempt; a lock or expiry on the live challenge still takes precedence.
func (p *OtpEngine) check(ch *model.OTPChallenge, superseded [][]byte, emailAddr, code string, now time.Time) (*model.OTPFailure, error) {
	if ch == nil {
		return nil, apperr.New(apperr.KindNotFound, "invalid or expired code")
	}
	if ch.LockedUntil != nil && now.Before(*ch.LockedUntil) {
		return nil, apperr.Locked(ceilSeconds(ch.LockedUntil.Sub(now)))
	}
	if now.After(ch.ExpiresAt) {
		return nil, apperr.New(apperr.KindExpired, "code expired")
	}
	submitted := hashOTP(emailAddr, code, p.salt)
	if subtle.ConstantTimeCompare(submitted, ch.CodeHash) != 1 {
		for _, old := range superseded {
			if subtle.ConstantTimeCompare(submitted, old) == 1 {
				return nil, apperr.New(apperr.KindNotFound, "code was superseded")
			}
		}
		// attempts stay within [0, maxAttempts]; a wrong code after a lock lapses re-locks
		attempts := ch.Attempts + 1
		if attempts >= maxAttempts {
			lockUntil := now.Add(lockDuration)
			return &model.OTPFailure{Attempts: maxAttempts, LockedUntil: &lockUntil},
				apperr.Locked(int(lockDuration / time.Second))
		}
		return &model.OTPFailure{Attempts: attempts}, apperr.WrongCode(maxAttempts - attempts)
	}
	return nil, nil
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(float64(d) / float64(time.Second)))
}

// generateOTPCode returns a 6-digit numeric code (100000-999999).
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// hashOTP returns SHA-256(email:code:salt)
func hashOTP(emailAddr, code, salt string) []byte {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", emailAddr, code, salt)))
	return hash[:]
}
