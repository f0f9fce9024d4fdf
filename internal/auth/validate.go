package auth

import (
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/model"
)

const minPasswordLength = 6

// RegisterInput is the request contract for registration
type RegisterInput struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
	Language string     `json:"language"`
}

// LoginInput is the request contract for login
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordInput is the request contract for requesting a reset code
type ForgotPasswordInput struct {
	Email string `json:"email"`
}

// VerifyOTPInput is the request contract for checking a reset code
type VerifyOTPInput struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// ResetPasswordInput is the request contract for resetting a password with a code
type ResetPasswordInput struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// ChangePasswordInput is the request contract for an authenticated password change
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UpdateProfileInput is the request contract for profile edits; nil fields are unchanged
type UpdateProfileInput struct {
	Name     *string        `json:"name"`
	Language *string        `json:"language"`
	Profile  *ProfileInput  `json:"profile"`
	Settings *SettingsInput `json:"settings"`
}

// ProfileInput carries profile edits. A nil field is unchanged and an empty
// string clears it.
type ProfileInput struct {
	AvatarURL   *string `json:"avatarUrl"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
	DateOfBirth *string `json:"dateOfBirth"`
	Gender      *string `json:"gender"`

	dateOfBirth *time.Time
}

// SettingsInput carries preference edits; nil fields are unchanged
type SettingsInput struct {
	Notifications *bool   `json:"notifications"`
	Language      *string `json:"language"`
	Timezone      *string `json:"timezone"`
}

// CreateAccountInput is the admin contract for creating an account of any role
type CreateAccountInput struct {
	RegisterInput
	Profile  *ProfileInput  `json:"profile"`
	Settings *SettingsInput `json:"settings"`
}

// UpdateAccountInput is the admin contract for editing an account
type UpdateAccountInput struct {
	UpdateProfileInput
	IsActive *bool `json:"isActive"`
}

// SetPasswordInput is the admin contract for overwriting a password
type SetPasswordInput struct {
	NewPassword string `json:"newPassword"`
}

// NormalizeEmail lowercases and trims an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email is invalid")
	}
	return nil
}

func validateNewPassword(field, password string) error {
	if password == "" {
		return apperr.Validation("%s is required", field)
	}
	if len(password) < minPasswordLength {
		return apperr.Validation("%s must be at least %d characters", field, minPasswordLength)
	}
	return nil
}

func validateCode(code string) error {
	if len(code) != 6 {
		return apperr.Validation("otp must be 6 digits")
	}
	for _, ch := range code {
		if ch < '0' || ch > '9' {
			return apperr.Validation("otp must be 6 digits")
		}
	}
	return nil
}

func validateLanguage(lang string) error {
	if lang != "" && apperr.NormalizeLang(lang) != lang {
		return apperr.Validation("language must be one of vi, en")
	}
	return nil
}

// Validate normalizes the input in place and checks its shape
func (in *RegisterInput) Validate(allowAdmin bool) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	in.Language = strings.ToLower(strings.TrimSpace(in.Language))
	if in.Role == "" {
		in.Role = model.RoleParent
	}

	if in.Name == "" {
		return apperr.Validation("name is required")
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := validateNewPassword("password", in.Password); err != nil {
		return err
	}
	if !in.Role.Valid() {
		return apperr.Validation("role must be one of parent, child, admin")
	}
	if in.Role == model.RoleAdmin && !allowAdmin {
		return apperr.Validation("admin accounts cannot be self-registered")
	}
	return validateLanguage(in.Language)
}

func (in *LoginInput) Validate() error {
	in.Email = NormalizeEmail(in.Email)
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if in.Password == "" {
		return apperr.Validation("password is required")
	}
	return nil
}

func (in *ForgotPasswordInput) Validate() error {
	in.Email = NormalizeEmail(in.Email)
	return validateEmail(in.Email)
}

func (in *VerifyOTPInput) Validate() error {
	in.Email = NormalizeEmail(in.Email)
	in.OTP = strings.TrimSpace(in.OTP)
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	return validateCode(in.OTP)
}

func (in *ResetPasswordInput) Validate() error {
	in.Email = NormalizeEmail(in.Email)
	in.OTP = strings.TrimSpace(in.OTP)
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := validateCode(in.OTP); err != nil {
		return err
	}
	return validateNewPassword("newPassword", in.NewPassword)
}

func (in *ChangePasswordInput) Validate() error {
	if in.CurrentPassword == "" {
		return apperr.Validation("currentPassword is required")
	}
	return validateNewPassword("newPassword", in.NewPassword)
}

func (in *UpdateProfileInput) Validate() error {
	if in.Profile != nil {
		if err := in.Profile.Validate(); err != nil {
			return err
		}
	}
	if in.Settings != nil {
		if err := in.Settings.Validate(); err != nil {
			return err
		}
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return apperr.Validation("name must not be empty")
		}
		in.Name = &name
	}
	if in.Language != nil {
		lang := strings.ToLower(strings.TrimSpace(*in.Language))
		if lang == "" {
			return apperr.Validation("language must be one of vi, en")
		}
		if err := validateLanguage(lang); err != nil {
			return err
		}
		in.Language = &lang
	}
	return nil
}

// apply copies the requested edits onto a
func (in *UpdateProfileInput) apply(a *model.Account) {
	if in.Name != nil {
		a.Name = *in.Name
	}
	if in.Language != nil {
		a.Language = *in.Language
	}
	if in.Profile != nil {
		in.Profile.apply(&a.Profile)
	}
	if in.Settings != nil {
		in.Settings.apply(a)
	}
}

const maxFieldLength = 255

func optionalText(field string, v **string) error {
	if *v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(**v)
	if len(trimmed) > maxFieldLength {
		return apperr.Validation("%s must be at most %d characters", field, maxFieldLength)
	}
	*v = &trimmed
	return nil
}

func (in *ProfileInput) Validate() error {
	for _, f := range []struct {
		name string
		v    **string
	}{
		{"profile.avatarUrl", &in.AvatarURL},
		{"profile.phone", &in.Phone},
		{"profile.address", &in.Address},
		{"profile.dateOfBirth", &in.DateOfBirth},
		{"profile.gender", &in.Gender},
	} {
		if err := optionalText(f.name, f.v); err != nil {
			return err
		}
	}

	if in.AvatarURL != nil && *in.AvatarURL != "" {
		u, err := url.ParseRequestURI(*in.AvatarURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperr.Validation("profile.avatarUrl must be an http(s) URL")
		}
	}
	if in.Gender != nil {
		switch *in.Gender {
		case "", model.GenderMale, model.GenderFemale, model.GenderOther:
		default:
			return apperr.Validation("profile.gender must be one of male, female, other")
		}
	}
	if in.DateOfBirth != nil && *in.DateOfBirth != "" {
		dob, err := parseDate(*in.DateOfBirth)
		if err != nil {
			return apperr.Validation("profile.dateOfBirth must be a date (YYYY-MM-DD)")
		}
		if dob.After(time.Now()) {
			return apperr.Validation("profile.dateOfBirth must not be in the future")
		}
		in.dateOfBirth = &dob
	}
	return nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func (in *ProfileInput) apply(p *model.Profile) {
	if in.AvatarURL != nil {
		p.AvatarURL = *in.AvatarURL
	}
	if in.Phone != nil {
		p.Phone = *in.Phone
	}
	if in.Address != nil {
		p.Address = *in.Address
	}
	if in.DateOfBirth != nil {
		p.DateOfBirth = in.dateOfBirth
	}
	if in.Gender != nil {
		p.Gender = *in.Gender
	}
}

func (in *SettingsInput) Validate() error {
	if in.Language != nil {
		lang := strings.ToLower(strings.TrimSpace(*in.Language))
		if lang == "" {
			return apperr.Validation("settings.language must be one of vi, en")
		}
		if err := validateLanguage(lang); err != nil {
			return err
		}
		in.Language = &lang
	}
	if in.Timezone != nil {
		tz := strings.TrimSpace(*in.Timezone)
		if tz == "" || len(tz) > 64 {
			return apperr.Validation("settings.timezone must be a time zone name")
		}
		in.Timezone = &tz
	}
	return nil
}

func (in *SettingsInput) apply(a *model.Account) {
	if in.Notifications != nil {
		a.Settings.Notifications = *in.Notifications
	}
	if in.Language != nil {
		a.Language = *in.Language
	}
	if in.Timezone != nil {
		a.Settings.Timezone = *in.Timezone
	}
}

// Validate checks an admin create request. Unlike self-registration the role
// is required and may be admin.
func (in *CreateAccountInput) Validate() error {
	if strings.TrimSpace(string(in.Role)) == "" {
		return apperr.Validation("role is required")
	}
	if err := in.RegisterInput.Validate(true); err != nil {
		return err
	}
	if in.Profile != nil {
		if err := in.Profile.Validate(); err != nil {
			return err
		}
	}
	if in.Settings != nil {
		return in.Settings.Validate()
	}
	return nil
}

func (in *SetPasswordInput) Validate() error {
	return validateNewPassword("newPassword", in.NewPassword)
}

// MaskEmail masks an address for logging (e.g. pa****@example.com)
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "****"
	}
	if len(local) <= 2 {
		return "**@" + domain
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + "@" + domain
}
