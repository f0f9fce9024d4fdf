package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/auth"
	"github.com/kidlearn/server/internal/middleware"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.AuthService
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{authService: authService, logger: logger}
}

// sessionResponse is returned by register and login
type sessionResponse struct {
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken"`
	User         accountResponse `json:"user"`
}

func newSessionResponse(res *auth.AuthResult) sessionResponse {
	status := res.Trial
	return sessionResponse{
		Token:        res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         newAccountResponse(res.Account, &status),
	}
}

// HandleRegister handles POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	if req.Language == "" {
		req.Language = middleware.LangFromContext(r.Context())
	}

	res, err := h.authService.Register(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	middleware.WriteSuccess(w, http.StatusCreated, newSessionResponse(res))
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	res, err := h.authService.Login(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	middleware.WriteSuccess(w, http.StatusOK, newSessionResponse(res))
}

// HandleForgotPassword handles POST /api/auth/forgot-password
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ForgotPasswordInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, message(middleware.LangFromContext(r.Context()), msgResetSent))
}

// HandleVerifyOTP handles POST /api/auth/verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyOTPInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.authService.VerifyOTP(r.Context(), req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, message(middleware.LangFromContext(r.Context()), msgCodeValid))
}

// HandleResetPassword handles POST /api/auth/reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetPasswordInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, message(middleware.LangFromContext(r.Context()), msgPasswordReset))
}

// refreshRequest is the request body for POST /api/auth/refresh
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// HandleRefresh handles POST /api/auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	token, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	middleware.WriteSuccess(w, http.StatusOK, map[string]string{"token": token})
}

// HandleLogout handles POST /api/auth/logout. Tokens are stateless, so the
// client discards them.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	middleware.WriteMessage(w, http.StatusOK, message(middleware.LangFromContext(r.Context()), msgLoggedOut))
}

// HandleProfile handles GET /api/auth/profile
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, h.logger, apperr.ErrUnauthorized)
		return
	}

	account, status, err := h.authService.Profile(r.Context(), claims.UserID)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	middleware.WriteSuccess(w, http.StatusOK, map[string]any{"user": newAccountResponse(account, &status)})
}

// HandleUpdateProfile handles PUT /api/auth/profile
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, h.logger, apperr.ErrUnauthorized)
		return
	}
	var req auth.UpdateProfileInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	account, status, err := h.authService.UpdateProfile(r.Context(), claims.UserID, req)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	middleware.WriteSuccess(w, http.StatusOK, map[string]any{"user": newAccountResponse(account, &status)})
}

// HandleChangePassword handles PUT /api/auth/change-password
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, h.logger, apperr.ErrUnauthorized)
		return
	}
	var req auth.ChangePasswordInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), claims.UserID, req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, message(middleware.LangFromContext(r.Context()), msgPasswordChanged))
}
