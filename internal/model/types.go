package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the access level carried by an account and its tokens
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleParent, RoleChild:
		return true
	}
	return false
}

// Account represents a registered parent, child, or admin
type Account struct {
	ID             uuid.UUID
	Name           string
	Email          string
	PasswordHash   string
	Role           Role
	Language       string
	IsActive       bool
	LastLoginAt    *time.Time
	IsTrialAccount bool
	TrialStartDate time.Time
	TrialEndDate   *time.Time
	IsActivated    bool
	Profile        Profile
	Settings       Settings
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Gender values accepted on a profile; empty means unset
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// DefaultTimezone is assigned to accounts created without one
const DefaultTimezone = "Asia/Ho_Chi_Minh"

// Profile holds optional personal details shown on the account page
type Profile struct {
	AvatarURL   string
	Phone       string
	Address     string
	DateOfBirth *time.Time
	Gender      string
}

// Settings holds per-account preferences. The display language lives on
// Account.Language since trial and mail copy are rendered from it.
type Settings struct {
	Notifications bool
	Timezone      string
}

// TrialStatus is the user-facing summary of an account's trial window
type TrialStatus struct {
	IsTrial       bool   `json:"isTrial"`
	IsValid       bool   `json:"isValid"`
	DaysRemaining *int   `json:"daysRemaining"`
	Message       string `json:"message"`
}

// OTPChallenge represents one issued password-reset code
type OTPChallenge struct {
	ID          uuid.UUID
	Email       string
	CodeHash    []byte
	Attempts    int
	LockedUntil *time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time

	// SupersededAt is set once a newer challenge replaced this one
	SupersededAt *time.Time
}

// OTPFailure is the state persisted after a wrong code is submitted
type OTPFailure struct {
	Attempts    int
	LockedUntil *time.Time
}

// TrialFilter selects trial accounts for admin listings
type TrialFilter struct {
	Status string // "", "active", "expired" or "activated"
	Now    time.Time
	Limit  int
	Offset int
}

// TrialStats aggregates trial accounts by state
type TrialStats struct {
	Total     int `json:"total"`
	Activated int `json:"activated"`
	Active    int `json:"active"`
	Expired   int `json:"expired"`
}

// AccountFilter selects accounts for the admin user listing
type AccountFilter struct {
	Role     Role
	IsActive *bool
	Search   string // matched against name and email, case-insensitive
	Limit    int
	Offset   int
}
