package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/auth"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/storage"
)

type AccountStore interface {
	Create(ctx context.Context, a model.Account) (model.Account, error)
	GetByEmail(ctx context.Context, email string) (model.Account, error)
}

type AuthHandler struct {
	accounts AccountStore
	secret   string
	tokenTTL time.Duration
	logger   *slog.Logger
}

func NewAuthHandler(accounts AccountStore, secret string, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, secret: secret, tokenTTL: tokenTTL, logger: logger}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccountID   string `json:"account_id"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	role := model.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		httpx.WriteError(w, http.StatusBadRequest, "valid email required")
		return
	}
	if !role.Valid() {
		httpx.WriteError(w, http.StatusBadRequest, "role must be student or tutor")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("password hash failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	account, err := h.accounts.Create(r.Context(), model.Account{
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		DisplayName:  strings.TrimSpace(req.DisplayName),
	})
	if errors.Is(err, storage.ErrDuplicate) {
		httpx.WriteError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		h.logger.Error("account create failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	h.logger.Info("account registered", "account_id", account.ID, "role", account.Role)
	h.writeToken(w, http.StatusCreated, account)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	account, err := h.accounts.GetByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Error("account lookup failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if err != nil || auth.VerifyPassword(account.PasswordHash, req.Password) != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.writeToken(w, http.StatusOK, account)
}

func (h *AuthHandler) writeToken(w http.ResponseWriter, status int, a model.Account) {
	now := time.Now().UTC()
	claims := auth.NewClaims(a.ID, string(a.Role), a.DisplayName, now, h.tokenTTL)
	token, err := auth.SignHS256(claims, h.secret)
	if err != nil {
		h.logger.Error("token signing failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	httpx.WriteJSON(w, status, tokenResponse{
		AccountID:   a.ID,
		Role:        string(a.Role),
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   formatTime(time.Unix(claims.Exp, 0)),
	})
}
