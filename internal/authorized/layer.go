// Package authorized gates requests behind a token freshness check and signs
// them with the current bearer token.
package authorized

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/buddyapp/buddy-client-go/internal/config"
	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/httpclient"
	"github.com/buddyapp/buddy-client-go/internal/model"
	"github.com/buddyapp/buddy-client-go/internal/session"
	"github.com/buddyapp/buddy-client-go/internal/util"
)

const refreshKey = "refresh"

// Freshness is the state of the cached token relative to the refresh window.
type Freshness int

const (
	NoToken Freshness = iota
	Fresh
	Expiring
	Refreshing
)

func (f Freshness) String() string {
	switch f {
	case NoToken:
		return "no-token"
	case Fresh:
		return "fresh"
	case Expiring:
		return "expiring"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken     string `json:"access_token"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
}

// Layer signs requests for one session.State. Refreshes are single-flight.
type Layer struct {
	http    *httpclient.Client
	state   *session.State
	baseURL string

	window             time.Duration
	refreshTimeout     time.Duration
	failOnRefreshError bool
	now                func() time.Time

	group      singleflight.Group
	refreshing atomic.Bool
}

type Option func(*Layer)

// WithNowFunc replaces the clock used for freshness checks.
func WithNowFunc(now func() time.Time) Option {
	return func(l *Layer) {
		l.now = now
	}
}

func WithRefreshWindow(window time.Duration) Option {
	return func(l *Layer) {
		l.window = window
	}
}

func WithRefreshTimeout(timeout time.Duration) Option {
	return func(l *Layer) {
		l.refreshTimeout = timeout
	}
}

// WithFailOnRefreshError makes a failed refresh fail the triggering call
// instead of sending it with the stale token.
func WithFailOnRefreshError() Option {
	return func(l *Layer) {
		l.failOnRefreshError = true
	}
}

func New(client *httpclient.Client, state *session.State, baseURL string, opts ...Option) *Layer {
	l := &Layer{
		http:           client,
		state:          state,
		baseURL:        baseURL,
		window:         config.DefaultRefreshWindow,
		refreshTimeout: config.RefreshRequestTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// URL joins path segments onto the API base URL.
func (l *Layer) URL(segments ...string) string {
	return httpclient.JoinURL(l.baseURL, segments...)
}

func (l *Layer) State() *session.State {
	return l.state
}

// Freshness reports the current state of the cached token.
func (l *Layer) Freshness() Freshness {
	if l.refreshing.Load() {
		return Refreshing
	}
	token, ok := l.state.Token()
	if !ok {
		return NoToken
	}
	return l.classify(token)
}

// classify treats exactly window seconds remaining as fresh.
func (l *Layer) classify(token model.AuthorizationToken) Freshness {
	if token.Remaining(l.now()) < l.window {
		return Expiring
	}
	return Fresh
}

// AccessToken returns a bearer token for the next call, refreshing first
// when the cached one is inside the refresh window.
func (l *Layer) AccessToken(ctx context.Context) (string, error) {
	token, ok := l.state.Token()
	if !ok {
		return "", apperrors.Unauthorized("No authorization token")
	}
	if l.classify(token) == Fresh {
		return token.AccessToken, nil
	}

	refreshed, err := l.refresh(ctx, false)
	if err == nil {
		return refreshed.AccessToken, nil
	}
	if apperrors.HasCode(err, apperrors.ErrCodeUnauthorized) || l.failOnRefreshError {
		return "", err
	}

	log.Warn().
		Err(err).
		Time("expiresAt", token.ExpiresAt()).
		Msg("token refresh failed, using current token")
	return token.AccessToken, nil
}

// Refresh forces a refresh round trip regardless of freshness.
func (l *Layer) Refresh(ctx context.Context) (model.AuthorizationToken, error) {
	if _, ok := l.state.Token(); !ok {
		return model.AuthorizationToken{}, apperrors.Unauthorized("No authorization token")
	}
	return l.refresh(ctx, true)
}

// refresh joins or starts the shared refresh. The flight runs detached from
// the caller's cancellation so a dropped caller cannot abort a half-applied refresh.
func (l *Layer) refresh(ctx context.Context, force bool) (model.AuthorizationToken, error) {
	ch := l.group.DoChan(refreshKey, func() (any, error) {
		l.refreshing.Store(true)
		defer l.refreshing.Store(false)

		token, ok := l.state.Token()
		if !ok {
			return nil, apperrors.Unauthorized("No authorization token")
		}
		if !force && l.classify(token) == Fresh {
			return token, nil
		}

		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.refreshTimeout)
		defer cancel()
		return l.doRefresh(refreshCtx, token)
	})

	select {
	case <-ctx.Done():
		return model.AuthorizationToken{}, apperrors.Transport(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return model.AuthorizationToken{}, res.Err
		}
		return res.Val.(model.AuthorizationToken), nil
	}
}

func (l *Layer) doRefresh(ctx context.Context, current model.AuthorizationToken) (model.AuthorizationToken, error) {
	log.Debug().
		Str("accessToken", util.MaskToken(current.AccessToken)).
		Dur("remaining", current.Remaining(l.now())).
		Msg("refreshing authorization token")

	resp, err := httpclient.Post[refreshResponse](ctx, l.http, l.URL("auth", "refresh"),
		refreshRequest{RefreshToken: current.RefreshToken},
		bearer(current.AccessToken))
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeUnauthorized) || apperrors.HasCode(err, apperrors.ErrCodeBadRequest) {
			log.Warn().
				Int("status", apperrors.StatusOf(err)).
				Msg("refresh token rejected")
			l.invalidate(ctx)
			return model.AuthorizationToken{}, apperrors.Unauthorized("Refresh token rejected").WithCause(err)
		}
		return model.AuthorizationToken{}, err
	}

	next := model.AuthorizationToken{
		AccessToken:     resp.AccessToken,
		RefreshToken:    current.RefreshToken,
		ExpiryTimestamp: resp.ExpiryTimestamp,
	}
	// SetToken logs persistence failures and still caches the token.
	_ = l.state.SetToken(ctx, next)

	log.Info().
		Time("expiresAt", next.ExpiresAt()).
		Msg("authorization token refreshed")
	return next, nil
}

// Do signs req and sends it. An UNAUTHORIZED outcome invalidates the session.
func (l *Layer) Do(ctx context.Context, req httpclient.Request, out any) error {
	access, err := l.AccessToken(ctx)
	if err != nil {
		return err
	}

	headers := bearer(access)
	for k, v := range req.Headers {
		if _, ok := headers[k]; !ok {
			headers[k] = v
		}
	}
	if req.JSON != nil {
		headers["Content-Type"] = "application/json"
	}
	req.Headers = headers

	err = l.http.Do(ctx, req, out)
	if apperrors.HasCode(err, apperrors.ErrCodeUnauthorized) {
		log.Warn().
			Str("url", req.URL).
			Int("status", apperrors.StatusOf(err)).
			Msg("authorized call rejected, invalidating session")
		l.invalidate(ctx)
	}
	return err
}

// Invalidate clears the session. Cancellation of ctx does not stop it.
func (l *Layer) Invalidate(ctx context.Context) error {
	return l.state.Invalidate(context.WithoutCancel(ctx))
}

func (l *Layer) invalidate(ctx context.Context) {
	_ = l.Invalidate(ctx)
}

func bearer(accessToken string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + accessToken}
}

// Get performs an authorized GET and decodes the body into T.
func Get[T any](ctx context.Context, l *Layer, url string) (T, error) {
	var out T
	err := l.Do(ctx, httpclient.Request{Method: http.MethodGet, URL: url}, &out)
	return out, err
}

// Post performs an authorized JSON POST and decodes the body into T.
func Post[T any](ctx context.Context, l *Layer, url string, payload any) (T, error) {
	var out T
	err := l.Do(ctx, httpclient.Request{Method: http.MethodPost, URL: url, JSON: payload}, &out)
	return out, err
}
