package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/noah-isme/schedule-sync/internal/middleware"
	"github.com/noah-isme/schedule-sync/internal/models"
	"github.com/noah-isme/schedule-sync/internal/service"
	appErrors "github.com/noah-isme/schedule-sync/pkg/errors"
)

var handlerLoc = time.FixedZone("MSK", 3*60*60)

type fakeEngine struct {
	mu      sync.Mutex
	calls   []string
	err     error
	snap    models.SelectionSnapshot
	date    time.Time
	updates chan models.SelectionSnapshot
}

func (f *fakeEngine) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeEngine) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Snapshot() models.SelectionSnapshot { return f.snap }

func (f *fakeEngine) Subscribe() (<-chan models.SelectionSnapshot, func()) {
	return f.updates, func() {}
}

func (f *fakeEngine) LoadInitial(context.Context) error { return f.record("initial") }
func (f *fakeEngine) SelectFaculty(_ context.Context, id string) error {
	return f.record("faculty:" + id)
}
func (f *fakeEngine) SelectGroup(_ context.Context, id string) error { return f.record("group:" + id) }
func (f *fakeEngine) SelectDate(_ context.Context, date time.Time) error {
	f.date = date
	return f.record("date")
}
func (f *fakeEngine) NextWeek(context.Context) error     { return f.record("next") }
func (f *fakeEngine) PreviousWeek(context.Context) error { return f.record("previous") }
func (f *fakeEngine) CurrentWeek(context.Context) error  { return f.record("current") }
func (f *fakeEngine) Refresh(context.Context) error      { return f.record("refresh") }
func (f *fakeEngine) FilterGroups(query string) []models.Group {
	_ = f.record("filter:" + query)
	return []models.Group{{ID: "g1", Name: "ФИ-11"}}
}

func newSelectionRouter(engine *fakeEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(internalmiddleware.WithResponseMeta())
	RegisterSelectionRoutes(router.Group("/api/v1"), NewSelectionHandler(engine, nil, handlerLoc, nil))
	return router
}

func performRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

type testEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data interface{}) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NotEmpty(t, env.Data)
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, w, nil)
	require.NotNil(t, env.Error)
	return env.Error.Code
}

func TestSelectionStateReturnsSnapshot(t *testing.T) {
	engine := &fakeEngine{snap: models.SelectionSnapshot{Phase: models.PhaseGroupSelected, Version: 7}}
	w := performRequest(newSelectionRouter(engine), http.MethodGet, "/api/v1/state", "")

	require.Equal(t, http.StatusOK, w.Code)
	var snap models.SelectionSnapshot
	env := decodeEnvelope(t, w, &snap)
	assert.Equal(t, models.PhaseGroupSelected, snap.Phase)
	assert.EqualValues(t, 7, env.Meta["version"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestSelectionCommands(t *testing.T) {
	engine := &fakeEngine{snap: models.SelectionSnapshot{Phase: models.PhaseScheduleLoading}}
	router := newSelectionRouter(engine)

	cases := []struct {
		path string
		body string
		call string
	}{
		{"/api/v1/selection/initial", "", "initial"},
		{"/api/v1/selection/faculty", `{"faculty_id": " 2 "}`, "faculty:2"},
		{"/api/v1/selection/group", `{"group_id": "g1"}`, "group:g1"},
		{"/api/v1/selection/week/next", "", "next"},
		{"/api/v1/selection/week/previous", "", "previous"},
		{"/api/v1/selection/week/current", "", "current"},
		{"/api/v1/selection/refresh", "", "refresh"},
	}
	for _, tc := range cases {
		w := performRequest(router, http.MethodPost, tc.path, tc.body)
		require.Equal(t, http.StatusAccepted, w.Code, tc.path)
		var snap models.SelectionSnapshot
		decodeEnvelope(t, w, &snap)
		assert.Equal(t, models.PhaseScheduleLoading, snap.Phase)
	}

	calls := engine.recorded()
	require.Len(t, calls, len(cases))
	for i, tc := range cases {
		assert.Equal(t, tc.call, calls[i])
	}
}

func TestSelectionRequestValidation(t *testing.T) {
	engine := &fakeEngine{}
	router := newSelectionRouter(engine)

	for _, tc := range []struct{ path, body string }{
		{"/api/v1/selection/faculty", `{}`},
		{"/api/v1/selection/faculty", `not json`},
		{"/api/v1/selection/group", `{"group_id": ""}`},
		{"/api/v1/selection/date", `{"date": "04.09.2024"}`},
	} {
		w := performRequest(router, http.MethodPost, tc.path, tc.body)
		require.Equal(t, http.StatusBadRequest, w.Code, tc.path+" "+tc.body)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
	}
	assert.Empty(t, engine.recorded())
}

func TestSelectDateParsesInInstitutionZone(t *testing.T) {
	engine := &fakeEngine{}
	w := performRequest(newSelectionRouter(engine), http.MethodPost, "/api/v1/selection/date", `{"date": "2024-09-04"}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, engine.date.Equal(time.Date(2024, 9, 4, 0, 0, 0, 0, handlerLoc)))
}

func TestSelectionCommandErrors(t *testing.T) {
	engine := &fakeEngine{err: service.ErrSelectionStopped}
	w := performRequest(newSelectionRouter(engine), http.MethodPost, "/api/v1/selection/refresh", "")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SELECTION_STOPPED", errorCode(t, w))
}

func TestGroupsFilter(t *testing.T) {
	engine := &fakeEngine{}
	w := performRequest(newSelectionRouter(engine), http.MethodGet, "/api/v1/groups?q=%D1%84%D0%B8", "")

	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Query  string         `json:"query"`
		Groups []models.Group `json:"groups"`
		Total  int            `json:"total"`
	}
	decodeEnvelope(t, w, &result)
	assert.Equal(t, "фи", result.Query)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, []string{"filter:фи"}, engine.recorded())
}

func TestStateStreamSendsSnapshots(t *testing.T) {
	updates := make(chan models.SelectionSnapshot, 1)
	updates <- models.SelectionSnapshot{Phase: models.PhaseFacultiesLoading, Version: 3}
	engine := &fakeEngine{updates: updates}
	server := httptest.NewServer(newSelectionRouter(engine))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/state/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		}
	}
	assert.Equal(t, "snapshot", event)
	var snap models.SelectionSnapshot
	require.NoError(t, json.Unmarshal([]byte(data), &snap))
	assert.Equal(t, models.PhaseFacultiesLoading, snap.Phase)
	assert.EqualValues(t, 3, snap.Version)

	close(updates)
}
