package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kidlearn/server/internal/model"
)

var (
	// ErrNotFound is returned when no row matches the lookup
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when an account with the same email exists
	ErrDuplicateEmail = errors.New("email already registered")
)

// AccountRepo defines the interface for account repository operations
type AccountRepo interface {
	Create(ctx context.Context, account model.Account) (model.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Account, error)
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateProfile(ctx context.Context, account model.Account) (model.Account, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	UpdateTrial(ctx context.Context, account model.Account) error
	List(ctx context.Context, filter model.AccountFilter) ([]model.Account, int, error)
	ListTrial(ctx context.Context, filter model.TrialFilter) ([]model.Account, int, error)
	TrialStats(ctx context.Context, now time.Time) (model.TrialStats, error)
}

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new Postgres-backed AccountRepo
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

const accountCols = `id, name, email, password_hash, role, language, is_active, last_login_at,
	is_trial_account, trial_start_date, trial_end_date, is_activated,
	avatar_url, phone, address, date_of_birth, gender, notifications, timezone,
	created_at, updated_at`

func scanAccount(scanner interface{ Scan(...any) error }) (model.Account, error) {
	var a model.Account
	var role string
	var lastLogin, trialEnd, dateOfBirth sql.NullTime
	err := scanner.Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash, &role, &a.Language, &a.IsActive, &lastLogin,
		&a.IsTrialAccount, &a.TrialStartDate, &trialEnd, &a.IsActivated,
		&a.Profile.AvatarURL, &a.Profile.Phone, &a.Profile.Address, &dateOfBirth, &a.Profile.Gender,
		&a.Settings.Notifications, &a.Settings.Timezone,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.Account{}, err
	}
	a.Role = model.Role(role)
	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	if trialEnd.Valid {
		a.TrialEndDate = &trialEnd.Time
	}
	if dateOfBirth.Valid {
		a.Profile.DateOfBirth = &dateOfBirth.Time
	}
	return a, nil
}

// Create inserts a new account. The email must be unique case-insensitively.
func (r *accountRepo) Create(ctx context.Context, a model.Account) (model.Account, error) {
	query := `
		INSERT INTO accounts (name, email, password_hash, role, language, is_active,
			is_trial_account, trial_start_date, trial_end_date, is_activated,
			avatar_url, phone, address, date_of_birth, gender, notifications, timezone)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + accountCols

	created, err := scanAccount(r.db.QueryRowContext(ctx, query,
		a.Name, a.Email, a.PasswordHash, string(a.Role), a.Language, a.IsActive,
		a.IsTrialAccount, a.TrialStartDate, a.TrialEndDate, a.IsActivated,
		a.Profile.AvatarURL, a.Profile.Phone, a.Profile.Address, a.Profile.DateOfBirth, a.Profile.Gender,
		a.Settings.Notifications, a.Settings.Timezone,
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return model.Account{}, ErrDuplicateEmail
		}
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}
	return created, nil
}

// GetByID retrieves an account by ID
func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	query := `SELECT ` + accountCols + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to query account: %w", err)
	}
	return a, nil
}

// GetByEmail retrieves an account by email, ignoring case
func (r *accountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	query := `SELECT ` + accountCols + ` FROM accounts WHERE lower(email) = lower($1)`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to query account: %w", err)
	}
	return a, nil
}

func (r *accountRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.execOne(ctx, `UPDATE accounts SET last_login_at = $2, updated_at = now() WHERE id = $1`, id, at)
}

func (r *accountRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.execOne(ctx, `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
}

// UpdateProfile writes the name, language, profile and settings of a and
// returns the stored account
func (r *accountRepo) UpdateProfile(ctx context.Context, in model.Account) (model.Account, error) {
	query := `
		UPDATE accounts SET name = $2, language = $3,
			avatar_url = $4, phone = $5, address = $6, date_of_birth = $7, gender = $8,
			notifications = $9, timezone = $10, updated_at = now()
		WHERE id = $1
		RETURNING ` + accountCols
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, in.ID, in.Name, in.Language,
		in.Profile.AvatarURL, in.Profile.Phone, in.Profile.Address, in.Profile.DateOfBirth, in.Profile.Gender,
		in.Settings.Notifications, in.Settings.Timezone,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to update profile: %w", err)
	}
	return a, nil
}

// SetActive enables or disables sign-in for an account
func (r *accountRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.execOne(ctx, `UPDATE accounts SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
}

// UpdateTrial persists the activation flag and trial end date
func (r *accountRepo) UpdateTrial(ctx context.Context, a model.Account) error {
	return r.execOne(ctx, `
		UPDATE accounts SET is_activated = $2, trial_end_date = $3, updated_at = now()
		WHERE id = $1 AND role <> 'admin'
	`, a.ID, a.IsActivated, a.TrialEndDate)
}

// trialWhere builds the WHERE clause for a trial listing; $1 is always now.
func trialWhere(status string) (string, error) {
	base := `is_trial_account AND role <> 'admin'`
	switch status {
	case "":
		return base, nil
	case "activated":
		return base + ` AND is_activated`, nil
	case "active":
		return base + ` AND NOT is_activated AND (trial_end_date IS NULL OR trial_end_date >= $1)`, nil
	case "expired":
		return base + ` AND NOT is_activated AND trial_end_date < $1`, nil
	}
	return "", fmt.Errorf("unknown trial status %q", status)
}

// ListTrial returns one page of trial accounts, newest first, plus the total match count
func (r *accountRepo) ListTrial(ctx context.Context, f model.TrialFilter) ([]model.Account, int, error) {
	where, err := trialWhere(f.Status)
	if err != nil {
		return nil, 0, err
	}

	var total int
	// $1 is referenced only by some filters; cast keeps the parameter typed either way.
	countQuery := `SELECT COUNT(*) FROM accounts WHERE $1::timestamptz IS NOT NULL AND ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, f.Now).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count trial accounts: %w", err)
	}

	query := `SELECT ` + accountCols + ` FROM accounts
		WHERE $1::timestamptz IS NOT NULL AND ` + where + `
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, f.Now, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list trial accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]model.Account, 0, f.Limit)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan trial account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate trial accounts: %w", err)
	}
	return accounts, total, nil
}

// TrialStats counts trial accounts by state as of now
func (r *accountRepo) TrialStats(ctx context.Context, now time.Time) (model.TrialStats, error) {
	var s model.TrialStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_activated),
			COUNT(*) FILTER (WHERE NOT is_activated AND (trial_end_date IS NULL OR trial_end_date >= $1)),
			COUNT(*) FILTER (WHERE NOT is_activated AND trial_end_date < $1)
		FROM accounts
		WHERE is_trial_account AND role <> 'admin'
	`, now).Scan(&s.Total, &s.Activated, &s.Active, &s.Expired)
	if err != nil {
		return model.TrialStats{}, fmt.Errorf("trial stats: %w", err)
	}
	return s, nil
}

// List returns one page of accounts, newest first, plus the total match count
func (r *accountRepo) List(ctx context.Context, f model.AccountFilter) ([]model.Account, int, error) {
	where := []string{"TRUE"}
	var args []any
	if f.Role != "" {
		args = append(args, string(f.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%[1]d OR email ILIKE $%[1]d)", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`SELECT `+accountCols+` FROM accounts WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]model.Account, 0, limit)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *accountRepo) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
