package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buddyapp/buddy-client-go/internal/authorized"
	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/events"
	"github.com/buddyapp/buddy-client-go/internal/httpclient"
	"github.com/buddyapp/buddy-client-go/internal/model"
	"github.com/buddyapp/buddy-client-go/internal/secretstore"
	"github.com/buddyapp/buddy-client-go/internal/session"
)

const sessionJSON = `{"user":{"email":"ada@example.com"},"available_models":[{"provider":"openai","key":"gpt-4o-mini","display_name":"GPT-4o mini","description":"fast"}]}`

// scriptedAPI answers each endpoint with a fixed status and body.
type scriptedAPI struct {
	registerStatus int
	loginStatus    int
	sessionStatus  atomic.Int32

	registerCalls atomic.Int32
	sessionCalls  atomic.Int32
}

func (s *scriptedAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /app-api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		s.registerCalls.Add(1)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.WriteHeader(orDefault(s.registerStatus, http.StatusCreated))
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("POST /app-api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		status := orDefault(s.loginStatus, http.StatusOK)
		w.WriteHeader(status)
		if status == http.StatusOK {
			fmt.Fprintf(w, `{"access_token":"a1","refresh_token":"r1","expiry_timestamp":%d,"token_type":"bearer"}`,
				time.Now().Add(time.Hour).Unix())
		}
	})
	mux.HandleFunc("GET /app-api/v1/auth/session", func(w http.ResponseWriter, r *http.Request) {
		s.sessionCalls.Add(1)
		status := orDefault(int(s.sessionStatus.Load()), http.StatusOK)
		w.WriteHeader(status)
		if status == http.StatusOK {
			fmt.Fprint(w, sessionJSON)
		}
	})
	return mux
}

func orDefault(status, fallback int) int {
	if status == 0 {
		return fallback
	}
	return status
}

func setup(t *testing.T, api *scriptedAPI) (*Client, *session.State, *events.Broker) {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	httpClient := httpclient.New()
	state := session.New(secretstore.NewMemoryStore(), "test.token")
	layer := authorized.New(httpClient, state, srv.URL+"/app-api/v1")
	broker := events.NewBroker()
	t.Cleanup(broker.Close)

	return New(layer, httpClient, broker), state, broker
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"created", http.StatusCreated, nil},
		{"validation error", http.StatusUnprocessableEntity, ErrInvalidCredentials},
		{"conflict", http.StatusConflict, ErrUserAlreadyExists},
		{"server error", http.StatusInternalServerError, ErrGeneralFailure},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _, _ := setup(t, &scriptedAPI{registerStatus: tc.status})
			err := client.Register(context.Background(), "ada@example.com", "long-enough")
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("invalid input never reaches the server", func(t *testing.T) {
		api := &scriptedAPI{}
		client, _, _ := setup(t, api)

		err := client.Register(context.Background(), "not-an-email", "long-enough")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		err = client.Register(context.Background(), "ada@example.com", "short")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

		assert.Equal(t, int32(0), api.registerCalls.Load())
	})
}

func TestLogin(t *testing.T) {
	t.Run("stores token and fetches session", func(t *testing.T) {
		client, state, broker := setup(t, &scriptedAPI{})
		sub := broker.Subscribe()

		require.NoError(t, client.Login(context.Background(), "ada@example.com", "long-enough"))

		token, ok := state.Token()
		require.True(t, ok)
		assert.Equal(t, "a1", token.AccessToken)
		assert.Equal(t, "r1", token.RefreshToken)

		assert.True(t, client.IsLoggedIn())
		require.NotNil(t, client.CurrentSession())
		assert.Equal(t, "ada@example.com", client.CurrentSession().User.Email)

		assert.Equal(t, model.LoginPhaseValidatingToken, (<-sub.Events).Phase)
		assert.Equal(t, model.LoginPhaseLoggedIn, (<-sub.Events).Phase)
	})

	for _, status := range []int{http.StatusUnauthorized, http.StatusUnprocessableEntity} {
		t.Run(fmt.Sprintf("%d is invalid credentials", status), func(t *testing.T) {
			client, state, _ := setup(t, &scriptedAPI{loginStatus: status})

			err := client.Login(context.Background(), "ada@example.com", "wrong-password")
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			_, ok := state.Token()
			assert.False(t, ok)
		})
	}

	t.Run("server error is general failure", func(t *testing.T) {
		client, _, _ := setup(t, &scriptedAPI{loginStatus: http.StatusBadGateway})
		err := client.Login(context.Background(), "ada@example.com", "long-enough")
		assert.ErrorIs(t, err, ErrGeneralFailure)
		assert.Equal(t, http.StatusBadGateway, apperrors.StatusOf(err))
	})

	t.Run("session outage keeps token but not logged in", func(t *testing.T) {
		api := &scriptedAPI{}
		api.sessionStatus.Store(http.StatusServiceUnavailable)
		client, state, _ := setup(t, api)

		require.NoError(t, client.Login(context.Background(), "ada@example.com", "long-enough"))
		_, ok := state.Token()
		assert.True(t, ok)
		assert.False(t, client.IsLoggedIn())
		assert.Equal(t, model.LoginPhaseValidatingToken, client.Status().Phase)
	})
}

func TestSession(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity} {
		t.Run(fmt.Sprintf("%d invalidates", status), func(t *testing.T) {
			api := &scriptedAPI{}
			client, state, _ := setup(t, api)
			require.NoError(t, client.Login(context.Background(), "ada@example.com", "long-enough"))
			require.True(t, client.IsLoggedIn())

			api.sessionStatus.Store(int32(status))
			_, err := client.Session(context.Background())
			assert.ErrorIs(t, err, ErrUnauthorized)

			_, ok := state.Token()
			assert.False(t, ok)
			assert.Equal(t, model.LoginPhaseLoggedOut, client.Status().Phase)
		})
	}

	t.Run("server error is unavailable", func(t *testing.T) {
		api := &scriptedAPI{}
		client, state, _ := setup(t, api)
		require.NoError(t, client.Login(context.Background(), "ada@example.com", "long-enough"))

		api.sessionStatus.Store(http.StatusInternalServerError)
		_, err := client.Session(context.Background())
		assert.ErrorIs(t, err, ErrServerUnavailable)
		_, ok := state.Token()
		assert.True(t, ok)
	})

	t.Run("without token is unauthorized and offline", func(t *testing.T) {
		api := &scriptedAPI{}
		client, _, _ := setup(t, api)

		_, err := client.Session(context.Background())
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, int32(0), api.sessionCalls.Load())
	})
}

func TestRestore(t *testing.T) {
	t.Run("no persisted token stays logged out", func(t *testing.T) {
		api := &scriptedAPI{}
		client, _, _ := setup(t, api)

		require.NoError(t, client.Restore(context.Background()))
		assert.Equal(t, model.LoginPhaseLoggedOut, client.Status().Phase)
		assert.Equal(t, int32(0), api.sessionCalls.Load())
	})

	t.Run("persisted token validates into logged in", func(t *testing.T) {
		api := &scriptedAPI{}
		client, state, broker := setup(t, api)
		require.NoError(t, state.SetToken(context.Background(), model.AuthorizationToken{
			AccessToken:     "a0",
			RefreshToken:    "r0",
			ExpiryTimestamp: time.Now().Add(time.Hour).Unix(),
		}))
		sub := broker.Subscribe()

		require.NoError(t, client.Restore(context.Background()))
		assert.True(t, client.IsLoggedIn())
		assert.Equal(t, model.LoginPhaseValidatingToken, (<-sub.Events).Phase)
		assert.Equal(t, model.LoginPhaseLoggedIn, (<-sub.Events).Phase)
	})
}

func TestLogout(t *testing.T) {
	client, state, _ := setup(t, &scriptedAPI{})
	require.NoError(t, client.Login(context.Background(), "ada@example.com", "long-enough"))

	require.NoError(t, client.Logout(context.Background()))
	_, ok := state.Token()
	assert.False(t, ok)
	assert.False(t, client.IsLoggedIn())
	assert.Nil(t, client.CurrentSession())

	assert.NoError(t, client.Logout(context.Background()))
}
