package authorized

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/httpclient"
	"github.com/buddyapp/buddy-client-go/internal/model"
	"github.com/buddyapp/buddy-client-go/internal/secretstore"
	"github.com/buddyapp/buddy-client-go/internal/session"
)

var fixedNow = time.Unix(1_700_000_000, 0)

// fakeAPI serves /auth/refresh and /data, counting hits on each.
type fakeAPI struct {
	refreshStatus int
	refreshDelay  time.Duration
	dataStatus    int

	refreshCalls atomic.Int32
	dataCalls    atomic.Int32

	mu              sync.Mutex
	lastRefreshReq  refreshRequest
	lastRefreshAuth string
	lastDataAuth    string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		if f.refreshDelay > 0 {
			time.Sleep(f.refreshDelay)
		}

		var body refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastRefreshReq = body
		f.lastRefreshAuth = r.Header.Get("Authorization")
		f.mu.Unlock()

		if f.refreshStatus != 0 && f.refreshStatus != http.StatusOK {
			w.WriteHeader(f.refreshStatus)
			fmt.Fprint(w, `{"detail":"nope"}`)
			return
		}
		fmt.Fprintf(w, `{"access_token":"access-new","expiry_timestamp":%d}`, fixedNow.Unix()+3600)
	})
	mux.HandleFunc("GET /data", func(w http.ResponseWriter, r *http.Request) {
		f.dataCalls.Add(1)
		f.mu.Lock()
		f.lastDataAuth = r.Header.Get("Authorization")
		f.mu.Unlock()

		if f.dataStatus != 0 && f.dataStatus != http.StatusOK {
			w.WriteHeader(f.dataStatus)
			return
		}
		fmt.Fprint(w, `{"value":"ok"}`)
	})
	return mux
}

func (f *fakeAPI) seen() (refreshReq refreshRequest, refreshAuth, dataAuth string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRefreshReq, f.lastRefreshAuth, f.lastDataAuth
}

type dataResponse struct {
	Value string `json:"value"`
}

func setup(t *testing.T, api *fakeAPI, remaining time.Duration, opts ...Option) (*Layer, *session.State) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	state := session.New(secretstore.NewMemoryStore(), "test.token")
	if remaining >= 0 {
		require.NoError(t, state.SetToken(context.Background(), model.AuthorizationToken{
			AccessToken:     "access-old",
			RefreshToken:    "refresh-1",
			ExpiryTimestamp: fixedNow.Add(remaining).Unix(),
		}))
	}

	opts = append([]Option{WithNowFunc(func() time.Time { return fixedNow })}, opts...)
	return New(httpclient.New(), state, srv.URL, opts...), state
}

func TestFreshnessBoundary(t *testing.T) {
	t.Run("30 seconds remaining does not refresh", func(t *testing.T) {
		api := &fakeAPI{}
		layer, _ := setup(t, api, 30*time.Second)
		assert.Equal(t, Fresh, layer.Freshness())

		out, err := Get[dataResponse](context.Background(), layer, layer.URL("data"))
		require.NoError(t, err)
		assert.Equal(t, "ok", out.Value)
		assert.Equal(t, int32(0), api.refreshCalls.Load())
		_, _, dataAuth := api.seen()
		assert.Equal(t, "Bearer access-old", dataAuth)
	})

	t.Run("29 seconds remaining refreshes first", func(t *testing.T) {
		api := &fakeAPI{}
		layer, state := setup(t, api, 29*time.Second)
		assert.Equal(t, Expiring, layer.Freshness())

		_, err := Get[dataResponse](context.Background(), layer, layer.URL("data"))
		require.NoError(t, err)
		assert.Equal(t, int32(1), api.refreshCalls.Load())
		refreshReq, refreshAuth, dataAuth := api.seen()
		assert.Equal(t, "Bearer access-new", dataAuth)
		assert.Equal(t, "Bearer access-old", refreshAuth)
		assert.Equal(t, "refresh-1", refreshReq.RefreshToken)

		token, ok := state.Token()
		require.True(t, ok)
		assert.Equal(t, "access-new", token.AccessToken)
		assert.Equal(t, "refresh-1", token.RefreshToken)
		assert.Equal(t, fixedNow.Unix()+3600, token.ExpiryTimestamp)
		assert.Equal(t, Fresh, layer.Freshness())
	})

	t.Run("custom window", func(t *testing.T) {
		api := &fakeAPI{}
		layer, _ := setup(t, api, 45*time.Second, WithRefreshWindow(time.Minute))
		assert.Equal(t, Expiring, layer.Freshness())
	})
}

func TestSingleFlightRefresh(t *testing.T) {
	api := &fakeAPI{refreshDelay: 100 * time.Millisecond}
	layer, _ := setup(t, api, 5*time.Second)

	const callers = 10
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := Get[dataResponse](context.Background(), layer, layer.URL("data"))
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, int32(callers), api.dataCalls.Load())
}

func TestRefreshFailures(t *testing.T) {
	t.Run("401 on refresh invalidates and fails the call", func(t *testing.T) {
		api := &fakeAPI{refreshStatus: http.StatusUnauthorized}
		layer, state := setup(t, api, 10*time.Second)

		_, err := Get[dataResponse](context.Background(), layer, layer.URL("data"))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
		assert.Equal(t, int32(0), api.dataCalls.Load())

		_, ok := state.Token()
		assert.False(t, ok)
		assert.Equal(t, NoToken, layer.Freshness())
	})

	t.Run("422 on refresh invalidates", func(t *testing.T) {
		api := &fakeAPI{refreshStatus: http.StatusUnprocessableEntity}
		layer, state := setup(t, api, 10*time.Second)

		_, err := Get[dataResponse](context.Background(), layer, layer.URL("data"))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
		_, ok := state.Token()
		assert.False(t, ok)
	})

	t.Run("500 on refresh sends the stale token", func(t *testing.T) {
		api := &fakeAPI{refreshStatus: http.StatusInternalServerError}
		layer, state := setup(t, api, 10*time.Second)

		out, err := Get[dataResponse](context.Background(), layer, layer.URL("data"))
		require.NoError(t, err)
		assert.Equal(t, "ok", out.Value)
		_, _, dataAuth := api.seen()
		assert.Equal(t, "Bearer access-old", dataAuth)

		token, ok := state.Token()
		require.True(t, ok)
		assert.Equal(t, "access-old", token.AccessToken)
	})

	t.Run("fail on refresh error option", func(t *testing.T) {
		api := &fakeAPI{refreshStatus: http.StatusInternalServerError}
		layer, state := setup(t, api, 10*time.Second, WithFailOnRefreshError())

		_, err := Get[dataResponse](context.Background(), layer, layer.URL("data"))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeClientError))
		assert.Equal(t, int32(0), api.dataCalls.Load())

		_, ok := state.Token()
		assert.True(t, ok)
	})
}

func TestNoToken(t *testing.T) {
	api := &fakeAPI{}
	layer, _ := setup(t, api, -1)

	assert.Equal(t, NoToken, layer.Freshness())
	_, err := Get[dataResponse](context.Background(), layer, layer.URL("data"))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
	assert.Equal(t, int32(0), api.dataCalls.Load())
	assert.Equal(t, int32(0), api.refreshCalls.Load())

	_, err = layer.Refresh(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
}

func TestReactiveInvalidation(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			api := &fakeAPI{dataStatus: status}
			layer, state := setup(t, api, time.Hour)

			_, err := Get[dataResponse](context.Background(), layer, layer.URL("data"))
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))

			_, ok := state.Token()
			assert.False(t, ok)
		})
	}

	t.Run("other failures keep the token", func(t *testing.T) {
		api := &fakeAPI{dataStatus: http.StatusInternalServerError}
		layer, state := setup(t, api, time.Hour)

		_, err := Get[dataResponse](context.Background(), layer, layer.URL("data"))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeClientError))

		_, ok := state.Token()
		assert.True(t, ok)
	})
}

func TestForcedRefresh(t *testing.T) {
	api := &fakeAPI{}
	layer, _ := setup(t, api, time.Hour)

	token, err := layer.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-new", token.AccessToken)
	assert.Equal(t, int32(1), api.refreshCalls.Load())
}

func TestFreshnessString(t *testing.T) {
	assert.Equal(t, "no-token", NoToken.String())
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "expiring", Expiring.String())
	assert.Equal(t, "refreshing", Refreshing.String())
}
