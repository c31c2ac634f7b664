package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/doorcount/internal/ledger"
	"github.com/MeKo-Tech/doorcount/internal/report"
	"github.com/MeKo-Tech/doorcount/internal/store"
)

type testEnv struct {
	svc   *Service
	store *store.Store
	clock *clock.Mock
	mux   *http.ServeMux
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "collector.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clk := newMockClock()
	svc, err := New(cfg, st, clk)
	require.NoError(t, err)
	mux := http.NewServeMux()
	svc.SetupRoutes(mux)
	return &testEnv{svc: svc, store: st, clock: clk, mux: mux}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func (e *testEnv) post(t *testing.T, ts string, count int, dir string) {
	t.Helper()
	body := map[string]any{"timestamp": ts, "current_count": count}
	if dir != "" {
		body["direction"] = dir
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)
	w := e.do(t, http.MethodPost, "/api/occupancy/update", string(data))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Data    T      `json:"data"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func TestUpdateHandler(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	w := env.do(t, http.MethodPost, "/api/occupancy/update",
		`{"timestamp":"2024-05-01T09:15:00.000Z","current_count":3,"direction":"IN"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode[UpdateResponse](t, w)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, 3, resp.Data.CurrentCount)
	require.NotNil(t, resp.Data.Direction)
	assert.Equal(t, "IN", *resp.Data.Direction)
	assert.True(t, resp.Data.Timestamp.Equal(time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)))

	n, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateHandler_Rejects(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	tests := []struct {
		name   string
		method string
		body   string
		status int
		errMsg string
	}{
		{"missing count", http.MethodPost, `{"timestamp":"2024-05-01T09:00:00Z"}`, http.StatusBadRequest, "Missing required field: current_count"},
		{"negative", http.MethodPost, `{"timestamp":"2024-05-01T09:00:00Z","current_count":-3}`, http.StatusBadRequest, "current_count cannot be negative"},
		{"bad direction", http.MethodPost, `{"timestamp":"2024-05-01T09:00:00Z","current_count":1,"direction":"in"}`, http.StatusBadRequest, `direction must be either "IN" or "OUT"`},
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed, "Method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, "/api/occupancy/update", tt.body)
			assert.Equal(t, tt.status, w.Code)
			resp := decode[ErrorResponse](t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.errMsg, resp.Error)
		})
	}

	n, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateHandler_BodyTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 16
	env := newTestEnv(t, cfg)

	w := env.do(t, http.MethodPost, "/api/occupancy/update",
		`{"timestamp":"2024-05-01T09:15:00.000Z","current_count":3}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUpdateHandler_RateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
	env := newTestEnv(t, cfg)

	env.post(t, "2024-05-01T09:00:00Z", 1, "IN")
	w := env.do(t, http.MethodPost, "/api/occupancy/update", `{"timestamp":"2024-05-01T09:00:01Z","current_count":2,"direction":"IN"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	env.clock.Add(time.Minute)
	env.post(t, "2024-05-01T09:01:00Z", 2, "IN")
}

func TestListAndLatest(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	w := env.do(t, http.MethodGet, "/api/occupancy/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	empty := decode[envelope[*RecordJSON]](t, w)
	assert.True(t, empty.Success)
	assert.Nil(t, empty.Data)
	assert.Equal(t, "No records found", empty.Message)

	env.post(t, "2024-05-01T08:00:00Z", 0, "")
	env.post(t, "2024-05-01T08:30:00Z", 1, "IN")

	w = env.do(t, http.MethodGet, "/api/occupancy", "")
	list := decode[envelope[[]RecordJSON]](t, w)
	assert.Equal(t, 2, list.Count)
	require.Len(t, list.Data, 2)
	require.NotNil(t, list.Data[0].Direction)
	assert.Equal(t, "IN", *list.Data[0].Direction)
	assert.Nil(t, list.Data[1].Direction)

	w = env.do(t, http.MethodGet, "/api/occupancy/latest", "")
	latest := decode[envelope[RecordJSON]](t, w)
	assert.Equal(t, 1, latest.Data.CurrentCount)
	assert.Equal(t, list.Data[0].ID, latest.Data.ID)
}

func TestTodayAndTrend(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.post(t, "2024-04-30T23:59:00Z", 9, "IN") // yesterday
	env.post(t, "2024-05-01T07:10:00Z", 1, "IN")
	env.post(t, "2024-05-01T07:40:00Z", 2, "IN")
	env.post(t, "2024-05-01T08:20:00Z", 1, "OUT")

	w := env.do(t, http.MethodGet, "/api/occupancy/today", "")
	require.Equal(t, http.StatusOK, w.Code)
	today := decode[envelope[TodaySummary]](t, w)
	assert.Equal(t, "2024-05-01", today.Data.Date)
	assert.Equal(t, 2, today.Data.TotalIn)
	assert.Equal(t, 1, today.Data.TotalOut)
	assert.Equal(t, 1, today.Data.CurrentInside)
	assert.Equal(t, 2, today.Data.PeakCount)
	require.NotNil(t, today.Data.PeakHour)
	assert.Equal(t, "7:40 AM", *today.Data.PeakHour)
	assert.Equal(t, 3, today.Data.RecordsToday)

	w = env.do(t, http.MethodGet, "/api/occupancy/today-trend", "")
	trend := decode[envelope[[]TrendPoint]](t, w)
	assert.Equal(t, []TrendPoint{{"07:00", 2}, {"08:00", 1}}, trend.Data)
}

func TestWeekly(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.post(t, "2024-04-29T09:00:00Z", 2, "IN")
	env.post(t, "2024-05-06T09:00:00Z", 5, "IN") // next week

	w := env.do(t, http.MethodGet, "/api/occupancy/weekly", "")
	require.Equal(t, http.StatusOK, w.Code)
	week := decode[envelope[WeekSummary]](t, w)
	assert.Equal(t, "2024-04-28", week.Data.WeekStart)
	assert.Equal(t, "2024-05-04", week.Data.WeekEnd)
	require.Len(t, week.Data.Days, 1)
	assert.Equal(t, "Monday", week.Data.Days[0].Day)
	assert.Equal(t, 2, week.Data.Days[0].PeakCount)

	w = env.do(t, http.MethodGet, "/api/occupancy/weekly?week=2024-05-05", "")
	week = decode[envelope[WeekSummary]](t, w)
	require.Len(t, week.Data.Days, 1)
	assert.Equal(t, "2024-05-06", week.Data.Days[0].Date)

	w = env.do(t, http.MethodGet, "/api/occupancy/weekly?week=last-week", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecent(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.post(t, "2024-05-01T08:00:00Z", 1, "IN")
	env.post(t, "2024-05-01T08:01:00Z", 1, "")
	env.post(t, "2024-05-01T08:02:00Z", 0, "OUT")

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?limit=1", 1},
		{"?limit=0", 2},
		{"?limit=abc", 2},
	}
	for _, tt := range tests {
		t.Run("limit"+tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/occupancy/recent"+tt.query, "")
			recent := decode[envelope[[]Activity]](t, w)
			require.Len(t, recent.Data, tt.want)
			assert.Equal(t, "exit", recent.Data[0].Type)
			assert.Equal(t, "-1", recent.Data[0].CountChange)
		})
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	w := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2024-05-01T09:00:00Z", body["timestamp"])
}

func TestRemoteSyncInterop(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ts := httptest.NewServer(env.mux)
	defer ts.Close()

	rs, err := report.NewRemoteSync(ts.URL+"/api/occupancy/update", time.Second)
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 8, 30, 0, 123e6, time.UTC)
	require.NoError(t, rs.Push(context.Background(), report.Crossing{At: at, Occupancy: 4, Label: ledger.LabelIn}))
	require.NoError(t, rs.Push(context.Background(), report.Crossing{At: at.Add(time.Minute), Occupancy: 4}))

	recs, err := env.store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Empty(t, recs[0].Direction)
	assert.Equal(t, "IN", recs[1].Direction)
	assert.True(t, recs[1].Timestamp.Equal(at))

	// Collector rejections surface as RemoteError on the counter side.
	err = rs.Push(context.Background(), report.Crossing{At: at, Occupancy: -1})
	var re *report.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)
}

func TestUpdateHandler_NaiveTimestampInCollectorZone(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.svc.loc = time.FixedZone("CEST", 2*60*60)

	w := env.do(t, http.MethodPost, "/api/occupancy/update",
		`{"timestamp":"2024-05-01 11:15:00","current_count":4,"direction":"IN"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	latest, err := env.store.Latest(context.Background())
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC).Equal(latest.Timestamp), "stored %v", latest.Timestamp)

	w = env.do(t, http.MethodPost, "/api/occupancy/update", `{"timestamp":0,"current_count":4}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing required field: timestamp")
}
