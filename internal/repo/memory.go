package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kidlearn/server/internal/model"
)

// MemoryStore keeps accounts and OTP challenges in process memory. It backs
// unit tests and STORE=memory development runs; one mutex guards both tables so
// ConsumeForReset is atomic like the Postgres transaction.
type MemoryStore struct {
	mu         sync.Mutex
	accounts   map[uuid.UUID]model.Account
	challenges map[uuid.UUID]model.OTPChallenge
	seq        int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[uuid.UUID]model.Account),
		challenges: make(map[uuid.UUID]model.OTPChallenge),
	}
}

// Accounts returns an AccountRepo view of the store
func (s *MemoryStore) Accounts() AccountRepo { return memoryAccounts{s} }

// Otps returns an OtpRepo view of the store
func (s *MemoryStore) Otps() OtpRepo { return memoryOtps{s} }

// ActiveChallengeCount returns the number of unsuperseded challenges for email
func (s *MemoryStore) ActiveChallengeCount(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ch := range s.challenges {
		if ch.Email == email && ch.SupersededAt == nil {
			n++
		}
	}
	return n
}

type memoryAccounts struct{ s *MemoryStore }

func (m memoryAccounts) Create(_ context.Context, a model.Account) (model.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	a.Email = strings.ToLower(a.Email)
	for _, existing := range m.s.accounts {
		if existing.Email == a.Email {
			return model.Account{}, ErrDuplicateEmail
		}
	}
	now := time.Now()
	a.ID = uuid.New()
	a.CreatedAt = now
	a.UpdatedAt = now
	m.s.accounts[a.ID] = a
	return a, nil
}

func (m memoryAccounts) GetByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.accounts[id]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return a, nil
}

func (m memoryAccounts) GetByEmail(_ context.Context, email string) (model.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.findByEmail(email)
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return a, nil
}

func (m memoryAccounts) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return m.s.update(id, func(a *model.Account) { a.LastLoginAt = &at })
}

func (m memoryAccounts) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	return m.s.update(id, func(a *model.Account) { a.PasswordHash = passwordHash })
}

func (m memoryAccounts) UpdateProfile(ctx context.Context, in model.Account) (model.Account, error) {
	err := m.s.update(in.ID, func(a *model.Account) {
		a.Name = in.Name
		a.Language = in.Language
		a.Profile = in.Profile
		a.Settings = in.Settings
	})
	if err != nil {
		return model.Account{}, err
	}
	return m.GetByID(ctx, in.ID)
}

func (m memoryAccounts) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	return m.s.update(id, func(a *model.Account) { a.IsActive = active })
}

func (m memoryAccounts) List(_ context.Context, f model.AccountFilter) ([]model.Account, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	search := strings.ToLower(f.Search)
	var matched []model.Account
	for _, a := range m.s.accounts {
		if f.Role != "" && a.Role != f.Role {
			continue
		}
		if f.IsActive != nil && a.IsActive != *f.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.Name), search) && !strings.Contains(a.Email, search) {
			continue
		}
		matched = append(matched, a)
	}
	return page(matched, f.Offset, f.Limit)
}

func (m memoryAccounts) UpdateTrial(_ context.Context, in model.Account) error {
	return m.s.update(in.ID, func(a *model.Account) {
		a.IsActivated = in.IsActivated
		a.TrialEndDate = in.TrialEndDate
	})
}

func trialState(a model.Account, now time.Time) string {
	switch {
	case a.IsActivated:
		return "activated"
	case a.TrialEndDate != nil && a.TrialEndDate.Before(now):
		return "expired"
	default:
		return "active"
	}
}

func (m memoryAccounts) ListTrial(_ context.Context, f model.TrialFilter) ([]model.Account, int, error) {
	switch f.Status {
	case "", "active", "expired", "activated":
	default:
		return nil, 0, fmt.Errorf("unknown trial status %q", f.Status)
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var matched []model.Account
	for _, a := range m.s.accounts {
		if !a.IsTrialAccount || a.Role == model.RoleAdmin {
			continue
		}
		if f.Status != "" && trialState(a, f.Now) != f.Status {
			continue
		}
		matched = append(matched, a)
	}
	return page(matched, f.Offset, f.Limit)
}

// page sorts newest first and cuts one page out of matched
func page(matched []model.Account, offset, limit int) ([]model.Account, int, error) {
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if offset >= total {
		return []model.Account{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (m memoryAccounts) TrialStats(_ context.Context, now time.Time) (model.TrialStats, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var st model.TrialStats
	for _, a := range m.s.accounts {
		if !a.IsTrialAccount || a.Role == model.RoleAdmin {
			continue
		}
		st.Total++
		switch trialState(a, now) {
		case "activated":
			st.Activated++
		case "expired":
			st.Expired++
		default:
			st.Active++
		}
	}
	return st, nil
}

type memoryOtps struct{ s *MemoryStore }

func (m memoryOtps) Replace(_ context.Context, ch model.OTPChallenge) (model.OTPChallenge, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	now := time.Now()
	for id, old := range m.s.challenges {
		if old.Email == ch.Email && old.SupersededAt == nil {
			old.SupersededAt = &now
			m.s.challenges[id] = old
		}
	}
	m.s.seq++
	ch.ID = uuid.New()
	// seq keeps created_at strictly increasing within one process
	ch.CreatedAt = time.Unix(0, m.s.seq)
	m.s.challenges[ch.ID] = ch
	return ch, nil
}

func (m memoryOtps) Delete(_ context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.challenges, id)
	return nil
}

func (m memoryOtps) Evaluate(_ context.Context, email string, decide DecideFunc) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	_, err := m.s.decideLatest(email, decide)
	return err
}

func (m memoryOtps) ConsumeForReset(_ context.Context, email, passwordHash string, decide DecideFunc) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	accepted, err := m.s.decideLatest(email, decide)
	if err != nil || !accepted {
		return err
	}
	a, ok := m.s.findByEmail(email)
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = time.Now()
	m.s.accounts[a.ID] = a
	m.s.deleteChallenges(email)
	return nil
}

func (m memoryOtps) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for id, ch := range m.s.challenges {
		if ch.ExpiresAt.Before(before) {
			delete(m.s.challenges, id)
			n++
		}
	}
	return n, nil
}

// decideLatest must be called with mu held. It reports whether decide accepted the code.
func (s *MemoryStore) decideLatest(email string, decide DecideFunc) (bool, error) {
	var latest *model.OTPChallenge
	var superseded [][]byte
	for _, ch := range s.challenges {
		if ch.Email != email {
			continue
		}
		if ch.SupersededAt != nil {
			superseded = append(superseded, ch.CodeHash)
			continue
		}
		if latest == nil || ch.CreatedAt.After(latest.CreatedAt) {
			c := ch
			latest = &c
		}
	}

	var view *model.OTPChallenge
	if latest != nil {
		c := *latest
		view = &c
	}
	failure, err := decide(view, superseded)
	if failure != nil && latest != nil {
		latest.Attempts = failure.Attempts
		latest.LockedUntil = failure.LockedUntil
		s.challenges[latest.ID] = *latest
	}
	return err == nil, err
}

func (s *MemoryStore) deleteChallenges(email string) {
	for id, ch := range s.challenges {
		if ch.Email == email {
			delete(s.challenges, id)
		}
	}
}

func (s *MemoryStore) findByEmail(email string) (model.Account, bool) {
	email = strings.ToLower(email)
	for _, a := range s.accounts {
		if a.Email == email {
			return a, true
		}
	}
	return model.Account{}, false
}

func (s *MemoryStore) update(id uuid.UUID, fn func(*model.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	fn(&a)
	a.UpdatedAt = time.Now()
	s.accounts[id] = a
	return nil
}
