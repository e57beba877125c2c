package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/schedule-sync/pkg/errors"
)

type recordingObserver struct {
	mu        sync.Mutex
	outcomes  []string
	fallbacks int
}

func (o *recordingObserver) ObserveUpstreamRequest(_, _, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ObserveUpstreamFallback(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks++
}

func countingServer(t *testing.T, hits *int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func statusHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func slowHandler(delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(delay):
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}
}

func TestFetchFallsBackOnServerError(t *testing.T) {
	var primaryHits, fallbackHits int32
	primary := countingServer(t, &primaryHits, statusHandler(http.StatusServiceUnavailable, "maintenance"))
	fallback := countingServer(t, &fallbackHits, statusHandler(http.StatusOK, `{"status":"ok","data":[["1","Физический факультет"]]}`))

	obs := &recordingObserver{}
	gw := New(Config{PrimaryURL: primary.URL, FallbackURL: fallback.URL, Observer: obs})

	data, err := gw.Fetch(context.Background(), "faculties", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[["1","Физический факультет"]]`, string(data))
	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fallbackHits))
	assert.Equal(t, 1, obs.fallbacks)
	assert.Equal(t, []string{OutcomeServerError, OutcomeOK}, obs.outcomes)
}

func TestFetchBothHostsTimingOutIsNetworkBlocked(t *testing.T) {
	var primaryHits, fallbackHits int32
	primary := countingServer(t, &primaryHits, slowHandler(time.Second))
	fallback := countingServer(t, &fallbackHits, slowHandler(time.Second))

	gw := New(Config{PrimaryURL: primary.URL, FallbackURL: fallback.URL, Timeout: 50 * time.Millisecond})

	_, err := gw.Fetch(context.Background(), "faculties", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNetworkBlocked)
	assert.NotErrorIs(t, err, appErrors.ErrNetwork)
	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fallbackHits))
}

func TestFetchUnreachablePrimaryUsesFallback(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	var fallbackHits int32
	fallback := countingServer(t, &fallbackHits, statusHandler(http.StatusOK, `{"data":{"ok":true}}`))

	gw := New(Config{PrimaryURL: deadURL, FallbackURL: fallback.URL})
	data, err := gw.Fetch(context.Background(), "groups", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fallbackHits))
}

func TestFetchClientErrorIsTerminal(t *testing.T) {
	var primaryHits, fallbackHits int32
	primary := countingServer(t, &primaryHits, statusHandler(http.StatusNotFound, "nope"))
	fallback := countingServer(t, &fallbackHits, statusHandler(http.StatusOK, `{"data":[]}`))

	gw := New(Config{PrimaryURL: primary.URL, FallbackURL: fallback.URL})
	_, err := gw.Fetch(context.Background(), "groups", nil)
	assert.ErrorIs(t, err, appErrors.ErrInvalidResponse)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fallbackHits))
}

func TestFetchFallbackServerErrorIsInvalidResponse(t *testing.T) {
	var primaryHits, fallbackHits int32
	primary := countingServer(t, &primaryHits, statusHandler(http.StatusBadGateway, ""))
	fallback := countingServer(t, &fallbackHits, statusHandler(http.StatusInternalServerError, ""))

	gw := New(Config{PrimaryURL: primary.URL, FallbackURL: fallback.URL})
	_, err := gw.Fetch(context.Background(), "schedule", nil)
	assert.ErrorIs(t, err, appErrors.ErrInvalidResponse)
	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fallbackHits))
}

func TestFetchWithoutFallbackReportsBlocked(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	gw := New(Config{PrimaryURL: deadURL})
	_, err := gw.Fetch(context.Background(), "faculties", nil)
	assert.ErrorIs(t, err, appErrors.ErrNetworkBlocked)
}

func TestFetchMalformedJSONCarriesPreview(t *testing.T) {
	var hits int32
	body := "<html>" + strings.Repeat("x", 1000)
	primary := countingServer(t, &hits, statusHandler(http.StatusOK, body))

	gw := New(Config{PrimaryURL: primary.URL})
	_, err := gw.Fetch(context.Background(), "faculties", nil)
	require.ErrorIs(t, err, appErrors.ErrParse)

	appErr := appErrors.FromError(err)
	assert.Len(t, []rune(appErr.Detail), 300)
	assert.True(t, strings.HasPrefix(appErr.Detail, "<html>"))
}

func TestFetchEnvelopeErrorStatus(t *testing.T) {
	var hits int32
	primary := countingServer(t, &hits, statusHandler(http.StatusOK, `{"status":"error","data":null}`))

	gw := New(Config{PrimaryURL: primary.URL})
	_, err := gw.Fetch(context.Background(), "faculties", nil)
	assert.ErrorIs(t, err, appErrors.ErrInvalidResponse)
}

func TestFetchMissingDataIsNull(t *testing.T) {
	var hits int32
	primary := countingServer(t, &hits, statusHandler(http.StatusOK, `{"status":"ok"}`))

	gw := New(Config{PrimaryURL: primary.URL})
	data, err := gw.Fetch(context.Background(), "faculties", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestFetchBuildsQueryConvention(t *testing.T) {
	var hits int32
	var got url.Values
	var gotPath string
	primary := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	gw := New(Config{PrimaryURL: primary.URL + "/"})
	params := url.Values{}
	params.Set("scheduleType", "gr")
	params.Set("parameter", "42")
	params.Set("days", "7")
	params.Set("startDate", "2024-09-02")

	_, err := gw.Fetch(context.Background(), "schedule", params)
	require.NoError(t, err)
	assert.Equal(t, "/ext/", gotPath)
	assert.Equal(t, "1", got.Get("api"))
	assert.Equal(t, "schedule", got.Get("path"))
	assert.Equal(t, "gr", got.Get("scheduleType"))
	assert.Equal(t, "42", got.Get("parameter"))
	assert.Equal(t, "2024-09-02", got.Get("startDate"))
}

func TestFetchInvalidHost(t *testing.T) {
	gw := New(Config{PrimaryURL: "not a url"})
	_, err := gw.Fetch(context.Background(), "faculties", nil)
	assert.ErrorIs(t, err, appErrors.ErrInvalidURL)

	gw = New(Config{})
	_, err = gw.Fetch(context.Background(), "faculties", nil)
	assert.ErrorIs(t, err, appErrors.ErrInvalidURL)
}

func TestDecodeReportsParseError(t *testing.T) {
	var rows [][]string
	err := Decode(json.RawMessage(`{"unexpected":true}`), &rows)
	require.ErrorIs(t, err, appErrors.ErrParse)
	assert.Equal(t, `{"unexpected":true}`, appErrors.FromError(err).Detail)
}
