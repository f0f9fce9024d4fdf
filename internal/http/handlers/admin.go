package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/auth"
	"github.com/kidlearn/server/internal/middleware"
	"github.com/kidlearn/server/internal/model"
	"github.com/kidlearn/server/internal/trial"
)

// AdminHandler exposes trial and account management to admins
type AdminHandler struct {
	trials   *trial.Engine
	accounts *auth.AuthService
	logger   *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(trials *trial.Engine, accounts *auth.AuthService, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{trials: trials, accounts: accounts, logger: logger}
}

type paginationResponse struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type trialListResponse struct {
	Accounts   []accountResponse  `json:"accounts"`
	Pagination paginationResponse `json:"pagination"`
}

type accountListResponse struct {
	Users      []accountResponse  `json:"users"`
	Pagination paginationResponse `json:"pagination"`
}

func newPagination(page, limit, total int) paginationResponse {
	return paginationResponse{Page: page, Limit: limit, Total: total, Pages: (total + limit - 1) / limit}
}

// HandleListUsers handles GET /api/admin/users?page=&limit=&role=&isActive=&search=
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, ok := h.pageParams(w, r)
	if !ok {
		return
	}

	filter := model.AccountFilter{Role: model.Role(q.Get("role")), Search: strings.TrimSpace(q.Get("search"))}
	if raw := q.Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			middleware.WriteError(w, r, h.logger, apperr.Validation("isActive must be true or false"))
			return
		}
		filter.IsActive = &active
	}

	accounts, total, err := h.accounts.ListAccounts(r.Context(), filter, page, limit)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	resp := accountListResponse{
		Users:      make([]accountResponse, 0, len(accounts)),
		Pagination: newPagination(page, limit, total),
	}
	for _, a := range accounts {
		resp.Users = append(resp.Users, newAccountResponse(a, nil))
	}
	middleware.WriteSuccess(w, http.StatusOK, resp)
}

// HandleCreateUser handles POST /api/admin/users
func (h *AdminHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req auth.CreateAccountInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	if req.Language == "" {
		req.Language = middleware.LangFromContext(r.Context())
	}

	account, err := h.accounts.CreateAccount(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	status := trial.Status(account, h.trials.Now())
	middleware.WriteSuccess(w, http.StatusCreated, map[string]any{"user": newAccountResponse(account, &status)})
}

// HandleGetUser handles GET /api/admin/users/{userId}
func (h *AdminHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	h.respondAccount(w, r)(h.accounts.GetAccount(r.Context(), id))
}

// HandleUpdateUser handles PUT /api/admin/users/{userId}
func (h *AdminHandler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, h.logger, apperr.ErrUnauthorized)
		return
	}
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req auth.UpdateAccountInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	h.respondAccount(w, r)(h.accounts.UpdateAccount(r.Context(), claims.UserID, id, req))
}

// HandleResetUserPassword handles PUT /api/admin/users/{userId}/reset-password
func (h *AdminHandler) HandleResetUserPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req auth.SetPasswordInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.accounts.SetPassword(r.Context(), id, req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, message(middleware.LangFromContext(r.Context()), msgPasswordReset))
}

// HandleListTrialAccounts handles GET /api/admin/trial-accounts?page=&limit=&status=
func (h *AdminHandler) HandleListTrialAccounts(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := h.pageParams(w, r)
	if !ok {
		return
	}

	accounts, total, err := h.trials.List(r.Context(), r.URL.Query().Get("status"), page, limit)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	now := h.trials.Now()
	resp := trialListResponse{
		Accounts:   make([]accountResponse, 0, len(accounts)),
		Pagination: newPagination(page, limit, total),
	}
	for _, a := range accounts {
		status := trial.Status(a, now)
		resp.Accounts = append(resp.Accounts, newAccountResponse(a, &status))
	}
	middleware.WriteSuccess(w, http.StatusOK, resp)
}

// HandleTrialStats handles GET /api/admin/trial-stats
func (h *AdminHandler) HandleTrialStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.trials.Stats(r.Context())
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	middleware.WriteSuccess(w, http.StatusOK, stats)
}

// HandleActivate handles POST /api/admin/trial-accounts/{userId}/activate
func (h *AdminHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	h.respondAccount(w, r)(h.trials.Activate(r.Context(), id))
}

// HandleDeactivate handles POST /api/admin/trial-accounts/{userId}/deactivate
func (h *AdminHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	h.respondAccount(w, r)(h.trials.Deactivate(r.Context(), id))
}

// extendRequest is the optional body for the extend route; days defaults to 7
type extendRequest struct {
	Days *int `json:"days"`
}

// HandleExtend handles POST /api/admin/trial-accounts/{userId}/extend
func (h *AdminHandler) HandleExtend(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req extendRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}
	days := trial.DefaultExtensionDays
	if req.Days != nil {
		days = *req.Days
	}

	h.respondAccount(w, r)(h.trials.Extend(r.Context(), id, days))
}

func (h *AdminHandler) accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		middleware.WriteError(w, r, h.logger, apperr.Validation("userId must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) respondAccount(w http.ResponseWriter, r *http.Request) func(model.Account, error) {
	return func(a model.Account, err error) {
		if err != nil {
			middleware.WriteError(w, r, h.logger, err)
			return
		}
		status := trial.Status(a, h.trials.Now())
		middleware.WriteSuccess(w, http.StatusOK, map[string]any{"user": newAccountResponse(a, &status)})
	}
}

func (h *AdminHandler) pageParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	page, err := queryInt(q.Get("page"), 1, 1, 1<<20)
	if err != nil {
		middleware.WriteError(w, r, h.logger, apperr.Validation("page %v", err))
		return 0, 0, false
	}
	limit, err := queryInt(q.Get("limit"), 20, 1, 100)
	if err != nil {
		middleware.WriteError(w, r, h.logger, apperr.Validation("limit %v", err))
		return 0, 0, false
	}
	return page, limit, true
}

func queryInt(raw string, def, min, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if n < min || n > max {
		return 0, errors.New("out of range")
	}
	return n, nil
}
