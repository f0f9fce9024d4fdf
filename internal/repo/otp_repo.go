package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kidlearn/server/internal/model"
)

// DecideFunc inspects the newest active challenge for an email (nil when there is
// none) together with the code hashes of challenges it superseded. A non-nil
// failure is persisted before the call returns; a nil error means the submitted
// code was accepted.
type DecideFunc func(ch *model.OTPChallenge, superseded [][]byte) (*model.OTPFailure, error)

// OtpRepo defines the interface for OTP challenge repository operations
type OtpRepo interface {
	Replace(ctx context.Context, ch model.OTPChallenge) (model.OTPChallenge, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Evaluate(ctx context.Context, email string, decide DecideFunc) error
	ConsumeForReset(ctx context.Context, email, passwordHash string, decide DecideFunc) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a new OtpRepo instance
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

// Replace retires every active challenge for the email and inserts ch. Retired
// rows are kept only so their codes can be recognized as superseded; they are
// never verified again and are purged with the expired ones. An advisory lock
// serializes concurrent issuances for the same email; the last writer wins.
func (r *otpRepo) Replace(ctx context.Context, ch model.OTPChallenge) (model.OTPChallenge, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.OTPChallenge{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`, ch.Email); err != nil {
		return model.OTPChallenge{}, fmt.Errorf("advisory lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE otp_challenges SET superseded_at = now()
		WHERE email = $1 AND superseded_at IS NULL
	`, ch.Email); err != nil {
		return model.OTPChallenge{}, fmt.Errorf("retire existing challenges: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO otp_challenges (email, code_hash, attempts, locked_until, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, ch.Email, hex.EncodeToString(ch.CodeHash), ch.Attempts, ch.LockedUntil, ch.ExpiresAt).Scan(&ch.ID, &ch.CreatedAt)
	if err != nil {
		return model.OTPChallenge{}, fmt.Errorf("insert challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.OTPChallenge{}, fmt.Errorf("commit: %w", err)
	}
	return ch, nil
}

// Delete removes a single challenge; a missing row is not an error.
func (r *otpRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

// Evaluate runs decide against the newest challenge while holding its row lock.
func (r *otpRepo) Evaluate(ctx context.Context, email string, decide DecideFunc) error {
	return r.withLatest(ctx, email, decide, nil)
}

// ConsumeForReset runs decide like Evaluate and, on acceptance, updates the
// account password and deletes every challenge for the email in the same
// transaction. A concurrent reset blocks on the row lock and then sees no challenge.
func (r *otpRepo) ConsumeForReset(ctx context.Context, email, passwordHash string, decide DecideFunc) error {
	return r.withLatest(ctx, email, decide, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE accounts SET password_hash = $2, updated_at = now() WHERE lower(email) = lower($1)
		`, email, passwordHash)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM otp_challenges WHERE email = $1`, email); err != nil {
			return fmt.Errorf("delete challenges: %w", err)
		}
		return nil
	})
}

func (r *otpRepo) withLatest(ctx context.Context, email string, decide DecideFunc, onAccept func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		ch          model.OTPChallenge
		codeHashHex string
		lockedUntil sql.NullTime
		found       = true
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, email, code_hash, attempts, locked_until, expires_at, created_at
		FROM otp_challenges
		WHERE email = $1 AND superseded_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, email).Scan(&ch.ID, &ch.Email, &codeHashHex, &ch.Attempts, &lockedUntil, &ch.ExpiresAt, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		found = false
	} else if err != nil {
		return fmt.Errorf("query challenge: %w", err)
	}

	var current *model.OTPChallenge
	if found {
		if lockedUntil.Valid {
			ch.LockedUntil = &lockedUntil.Time
		}
		ch.CodeHash, err = hex.DecodeString(codeHashHex)
		if err != nil {
			return fmt.Errorf("decode code_hash: %w", err)
		}
		current = &ch
	}

	superseded, err := r.supersededHashes(ctx, tx, email)
	if err != nil {
		return err
	}

	failure, decideErr := decide(current, superseded)
	if failure != nil && current != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE otp_challenges SET attempts = $2, locked_until = $3 WHERE id = $1
		`, current.ID, failure.Attempts, failure.LockedUntil); err != nil {
			return fmt.Errorf("record attempt: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return decideErr
	}
	if decideErr != nil {
		return decideErr
	}

	if onAccept != nil {
		if err := onAccept(tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *otpRepo) supersededHashes(ctx context.Context, tx *sql.Tx, email string) ([][]byte, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT code_hash FROM otp_challenges WHERE email = $1 AND superseded_at IS NOT NULL
	`, email)
	if err != nil {
		return nil, fmt.Errorf("query superseded challenges: %w", err)
	}
	defer rows.Close()

	var hashes [][]byte
	for rows.Next() {
		var hashHex string
		if err := rows.Scan(&hashHex); err != nil {
			return nil, fmt.Errorf("scan superseded challenge: %w", err)
		}
		h, err := hex.DecodeString(hashHex)
		if err != nil {
			return nil, fmt.Errorf("decode code_hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DeleteExpired removes challenges that expired before the given time
func (r *otpRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
