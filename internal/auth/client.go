// Package auth registers and logs in users and tracks the login state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/buddyapp/buddy-client-go/internal/audit"
	"github.com/buddyapp/buddy-client-go/internal/authorized"
	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/events"
	"github.com/buddyapp/buddy-client-go/internal/httpclient"
	"github.com/buddyapp/buddy-client-go/internal/model"
	"github.com/buddyapp/buddy-client-go/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrGeneralFailure     = errors.New("general failure")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrServerUnavailable  = errors.New("server unavailable")
)

type loginResponse struct {
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
	TokenType       string `json:"token_type"`
}

type Client struct {
	layer  *authorized.Layer
	http   *httpclient.Client
	broker *events.Broker

	mu     sync.RWMutex
	status model.Status
}

// New wires the client to the layer's session state so that any invalidation
// moves the status to logged out. broker may be nil.
func New(layer *authorized.Layer, httpClient *httpclient.Client, broker *events.Broker) *Client {
	c := &Client{
		layer:  layer,
		http:   httpClient,
		broker: broker,
		status: model.LoggedOut(),
	}
	layer.State().OnChange(func(_ model.AuthorizationToken, present bool) {
		if present {
			return
		}
		audit.Log(context.Background(), audit.Event{Type: audit.EventTokenInvalidated})
		c.setStatus(model.LoggedOut())
	})
	return c
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, email, password string) error {
	if !util.IsValidEmail(email) {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, apperrors.InvalidInput("email", "not an email address"))
	}
	if !util.IsValidPassword(password) {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials,
			apperrors.InvalidInput("password", fmt.Sprintf("must be at least %d characters", util.MinPasswordLength)))
	}

	err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    c.layer.URL("auth", "register"),
		Form:   credentialsForm(email, password),
	}, nil)
	if err != nil {
		switch {
		case apperrors.HasCode(err, apperrors.ErrCodeBadRequest):
			return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		case apperrors.StatusOf(err) == http.StatusConflict:
			return fmt.Errorf("%w: %w", ErrUserAlreadyExists, err)
		default:
			log.Error().Err(err).Msg("registration failed")
			return fmt.Errorf("%w: %w", ErrGeneralFailure, err)
		}
	}

	audit.Log(ctx, audit.Event{Type: audit.EventRegister, Email: email})
	return nil
}

// Login exchanges credentials for a token, stores it, then fetches the session.
// A failed session fetch is logged but does not fail the login.
func (c *Client) Login(ctx context.Context, email, password string) error {
	resp, err := httpclient.PostForm[loginResponse](ctx, c.http, c.layer.URL("auth", "login"), credentialsForm(email, password))
	if err != nil {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventLoginFailure,
			Email:   email,
			Details: map[string]interface{}{"status": apperrors.StatusOf(err)},
		})
		if apperrors.HasCode(err, apperrors.ErrCodeBadRequest) || apperrors.HasCode(err, apperrors.ErrCodeUnauthorized) {
			return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return fmt.Errorf("%w: %w", ErrGeneralFailure, err)
	}

	// A persistence failure leaves the token usable for this process.
	_ = c.layer.State().SetToken(ctx, model.AuthorizationToken{
		AccessToken:     resp.AccessToken,
		RefreshToken:    resp.RefreshToken,
		ExpiryTimestamp: resp.ExpiryTimestamp,
	})
	audit.Log(ctx, audit.Event{Type: audit.EventLoginSuccess, Email: email})

	c.setStatus(model.ValidatingToken())
	if _, err := c.Session(ctx); err != nil {
		log.Warn().Err(err).Msg("session fetch after login failed")
	}
	return nil
}

// Session fetches the current user and models. A BAD_REQUEST or UNAUTHORIZED
// answer invalidates the stored token.
func (c *Client) Session(ctx context.Context) (*model.Session, error) {
	session, err := authorized.Get[model.Session](ctx, c.layer, c.layer.URL("auth", "session"))
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeUnauthorized) || apperrors.HasCode(err, apperrors.ErrCodeBadRequest) {
			_ = c.layer.Invalidate(ctx)
			c.setStatus(model.LoggedOut())
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		log.Warn().Err(err).Msg("session fetch failed")
		return nil, fmt.Errorf("%w: %w", ErrServerUnavailable, err)
	}

	c.setStatus(model.LoggedIn(session))
	return &session, nil
}

// Restore loads the persisted token and validates it against the server.
func (c *Client) Restore(ctx context.Context) error {
	if err := c.layer.State().Load(ctx); err != nil {
		return err
	}
	if _, ok := c.layer.State().Token(); !ok {
		c.setStatus(model.LoggedOut())
		return nil
	}

	c.setStatus(model.ValidatingToken())
	_, err := c.Session(ctx)
	return err
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.layer.Invalidate(ctx)
	c.setStatus(model.LoggedOut())
	audit.Log(ctx, audit.Event{Type: audit.EventLogout})
	return err
}

func (c *Client) Status() model.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Client) IsLoggedIn() bool {
	return c.Status().IsLoggedIn()
}

// CurrentSession returns the session of the logged in user, or nil.
func (c *Client) CurrentSession() *model.Session {
	return c.Status().Session
}

// Subscribe returns a subscriber for status changes, or nil without a broker.
func (c *Client) Subscribe() *events.Subscriber {
	if c.broker == nil {
		return nil
	}
	return c.broker.Subscribe()
}

func (c *Client) setStatus(status model.Status) {
	c.mu.Lock()
	prev := c.status
	c.status = status
	c.mu.Unlock()

	if prev.Phase == status.Phase && status.Phase == model.LoginPhaseLoggedOut {
		return
	}

	log.Debug().
		Str("from", string(prev.Phase)).
		Str("to", string(status.Phase)).
		Msg("login status changed")

	if c.broker != nil {
		c.broker.Publish(status)
	}
}

func credentialsForm(email, password string) url.Values {
	return url.Values{
		"email":    {email},
		"password": {password},
	}
}
