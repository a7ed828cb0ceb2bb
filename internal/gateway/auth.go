package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/buddyapp/buddy-client-go/internal/audit"
	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/httputil"
	"github.com/buddyapp/buddy-client-go/internal/middleware"
	"github.com/buddyapp/buddy-client-go/internal/model"
	"github.com/buddyapp/buddy-client-go/internal/util"
)

type loginResponse struct {
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
	TokenType       string `json:"token_type"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken     string `json:"access_token"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
}

func (g *Gateway) ping(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"details": "PONG"})
}

func (g *Gateway) register(w http.ResponseWriter, r *http.Request) {
	email, password, err := credentials(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !util.IsValidEmail(email) {
		httputil.WriteError(w, apperrors.InvalidInput("email", "not an email address"))
		return
	}
	if !util.IsValidPassword(password) {
		httputil.WriteError(w, apperrors.InvalidInput("password", "too short").
			WithDetails(map[string]int{"min_length": util.MinPasswordLength}))
		return
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		httputil.WriteError(w, apperrors.Internal("Failed to create user"))
		return
	}

	user, err := g.store.CreateUser(r.Context(), email, hash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventRegister, Email: user.Email})
	httputil.WriteJSON(w, http.StatusCreated, model.User{Email: user.Email})
}

func (g *Gateway) login(w http.ResponseWriter, r *http.Request) {
	email, password, err := credentials(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	user, err := g.store.FindUser(r.Context(), email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if user == nil || !util.CheckPasswordHash(password, user.PasswordHash) {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginFailure, Email: email})
		httputil.WriteError(w, apperrors.Unauthorized("Invalid email or password"))
		return
	}

	access, expiresAt, err := g.issuer.Issue(user.Email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	refresh, err := util.GenerateToken()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate refresh token")
		httputil.WriteError(w, apperrors.Internal("Failed to create session"))
		return
	}
	if err := g.store.SaveRefreshToken(r.Context(), RefreshToken{
		Hash:      util.HashToken(refresh),
		Email:     user.Email,
		ExpiresAt: g.now().Add(g.refreshTTL),
	}); err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginSuccess, Email: user.Email})
	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken:     access,
		RefreshToken:    refresh,
		ExpiryTimestamp: expiresAt.Unix(),
		TokenType:       "bearer",
	})
}

// refresh accepts an expired access token as long as its signature holds and
// it belongs to the same user as the refresh token.
func (g *Gateway) refresh(w http.ResponseWriter, r *http.Request) {
	bearer := middleware.BearerToken(r)
	if bearer == "" {
		httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
		return
	}
	email, err := g.issuer.VerifySignature(bearer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httputil.WriteError(w, apperrors.MissingRequired("refresh_token"))
		return
	}

	stored, err := g.store.FindRefreshToken(r.Context(), util.HashToken(req.RefreshToken))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if stored == nil || stored.Email != email || !g.now().Before(stored.ExpiresAt) {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventAuthFailure,
			Email:   email,
			Details: map[string]interface{}{"reason": "refresh_rejected"},
		})
		httputil.WriteError(w, apperrors.Unauthorized("Invalid refresh token"))
		return
	}

	access, expiresAt, err := g.issuer.Issue(email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventTokenRefresh, Email: email})
	httputil.WriteJSON(w, http.StatusOK, refreshResponse{
		AccessToken:     access,
		ExpiryTimestamp: expiresAt.Unix(),
	})
}

func (g *Gateway) session(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetEmail(r.Context())
	user, err := g.store.FindUser(r.Context(), email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if user == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Unknown user"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, model.Session{
		User:            model.User{Email: user.Email},
		AvailableModels: g.models,
	})
}

func credentials(r *http.Request) (string, string, error) {
	if err := r.ParseForm(); err != nil {
		return "", "", apperrors.ValidationError("Invalid form body")
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")
	switch {
	case email == "":
		return "", "", apperrors.MissingRequired("email")
	case password == "":
		return "", "", apperrors.MissingRequired("password")
	}
	return email, password, nil
}
