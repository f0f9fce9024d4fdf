package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/model"
)

// accountResponse is the public view of an account
type accountResponse struct {
	ID             uuid.UUID          `json:"id"`
	Name           string             `json:"name"`
	Email          string             `json:"email"`
	Role           model.Role         `json:"role"`
	Language       string             `json:"language"`
	IsActive       bool               `json:"isActive"`
	IsTrialAccount bool               `json:"isTrialAccount"`
	IsActivated    bool               `json:"isActivated"`
	TrialStartDate *time.Time         `json:"trialStartDate,omitempty"`
	TrialEndDate   *time.Time         `json:"trialEndDate,omitempty"`
	LastLoginAt    *time.Time         `json:"lastLoginAt,omitempty"`
	Profile        profileResponse    `json:"profile"`
	Settings       settingsResponse   `json:"settings"`
	CreatedAt      time.Time          `json:"createdAt"`
	TrialStatus    *model.TrialStatus `json:"trialStatus,omitempty"`
}

type profileResponse struct {
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Gender      string `json:"gender,omitempty"`
}

type settingsResponse struct {
	Notifications bool   `json:"notifications"`
	Language      string `json:"language"`
	Timezone      string `json:"timezone"`
}

func newAccountResponse(a model.Account, status *model.TrialStatus) accountResponse {
	resp := accountResponse{
		ID:             a.ID,
		Name:           a.Name,
		Email:          a.Email,
		Role:           a.Role,
		Language:       a.Language,
		IsActive:       a.IsActive,
		IsTrialAccount: a.IsTrialAccount,
		IsActivated:    a.IsActivated,
		TrialEndDate:   a.TrialEndDate,
		LastLoginAt:    a.LastLoginAt,
		Profile: profileResponse{
			AvatarURL: a.Profile.AvatarURL,
			Phone:     a.Profile.Phone,
			Address:   a.Profile.Address,
			Gender:    a.Profile.Gender,
		},
		Settings: settingsResponse{
			Notifications: a.Settings.Notifications,
			Language:      a.Language,
			Timezone:      a.Settings.Timezone,
		},
		CreatedAt:   a.CreatedAt,
		TrialStatus: status,
	}
	if a.Profile.DateOfBirth != nil {
		resp.Profile.DateOfBirth = a.Profile.DateOfBirth.Format(time.DateOnly)
	}
	if a.IsTrialAccount && !a.TrialStartDate.IsZero() {
		start := a.TrialStartDate
		resp.TrialStartDate = &start
	}
	return resp
}

// decodeJSON reads a JSON request body into dst
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Validation("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("request body must be valid JSON")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for routes whose body may be empty
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Validation("request body must be valid JSON")
}
