package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/token-sim/internal/params"
	"github.com/talgya/token-sim/internal/persistence"
)

const testKey = "secret"

func newTestServer(t *testing.T, adminKey string, runsPerHour int) *Server {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv, err := NewServer(db, params.DefaultSet(), adminKey, 0, runsPerHour)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type createResponse struct {
	Seed       int64  `json:"seed"`
	MarketSeed int64  `json:"market_seed"`
	Scenario   string `json:"scenario"`
	Runs       []struct {
		ID      string `json:"id"`
		Variant string `json:"variant"`
	} `json:"runs"`
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, "", 10)
	require.NoError(t, srv.DB.SaveMeta("version", "test"))

	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, float64(0), body["runs"])
	assert.Equal(t, false, body["admin_enabled"])
	assert.Len(t, body["variants"], 3)
	assert.Len(t, body["scenarios"], 4)
}

func TestParamsEndpoint(t *testing.T) {
	srv := newTestServer(t, "", 10)
	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/params", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Defaults params.Set `json:"defaults"`
		Names    []string   `json:"names"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, params.DefaultYears, body.Defaults.Years)
	assert.Equal(t, params.Names(), body.Names)
}

func TestListRunsValidation(t *testing.T) {
	srv := newTestServer(t, "", 10)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/runs", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	for _, q := range []string{"0", "1001", "ten"} {
		rec = do(t, h, http.MethodGet, "/api/v1/runs?limit="+q, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestUnknownRun(t *testing.T) {
	srv := newTestServer(t, "", 10)
	h := srv.Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/runs/missing", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/runs/missing/snapshots", "", "").Code)
}

func TestCreateRunAuth(t *testing.T) {
	body := `{"variant":"bme","years":1,"seed":1}`

	disabled := newTestServer(t, "", 10)
	rec := do(t, disabled.Handler(), http.MethodPost, "/api/v1/runs", body, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOKENSIM_ADMIN_KEY")

	srv := newTestServer(t, testKey, 10)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv.Handler(), http.MethodPost, "/api/v1/runs", body, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv.Handler(), http.MethodPost, "/api/v1/runs", body, "wrong").Code)
}

func TestCheckBearerToken(t *testing.T) {
	srv := &Server{AdminKey: testKey}
	for header, want := range map[string]bool{
		"":                        false,
		"Bearer " + testKey:       true,
		"Bearer " + testKey + "x": false,
		"Bearer secreT":           false,
		"Bearer ":                 false,
		testKey:                   false,
		"Basic " + testKey:        false,
		"bearer " + testKey:       false,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, srv.checkBearerToken(req), "Authorization %q", header)
	}
}

func TestCreateAndFetchRun(t *testing.T) {
	srv := newTestServer(t, testKey, 10)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/runs",
		`{"variant":"bme,original","years":1,"seed":7,"scenario":"bear","overrides":{"BME_FIXED_EMISSION_PER_MONTH":1000000}}`, testKey)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created createResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(7), created.Seed)
	assert.Equal(t, int64(7), created.MarketSeed)
	assert.Equal(t, "Bear", created.Scenario)
	require.Len(t, created.Runs, 2)
	assert.Equal(t, "bme", created.Runs[0].Variant)
	assert.Equal(t, "original", created.Runs[1].Variant)

	id := created.Runs[0].ID
	for range 2 { // second read is served from the cache
		rec = do(t, h, http.MethodGet, "/api/v1/runs/"+id, "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var run persistence.Run
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
		assert.Equal(t, id, run.ID)
		assert.Equal(t, "Bear", run.Scenario)
		assert.Equal(t, 1, run.Years)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/runs/"+id+"/snapshots?state=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snaps []persistence.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	require.Len(t, snaps, 12)
	assert.NotEmpty(t, snaps[0].State)

	var state struct {
		Flows struct {
			Emitted float64 `json:"emitted"`
		} `json:"flows"`
	}
	require.NoError(t, json.Unmarshal(snaps[0].State, &state))
	assert.Equal(t, 1_000_000.0, state.Flows.Emitted)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/runs/"+id+"/snapshots?state=maybe", "", "").Code)

	rec = do(t, h, http.MethodGet, "/api/v1/runs?limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []persistence.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)
}

func TestCreateRunRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, testKey, 100)
	h := srv.Handler()

	cases := map[string]string{
		"malformed":        `{"variant":`,
		"unknown field":    `{"variant":"bme","colour":"red"}`,
		"unknown variant":  `{"variant":"tulip"}`,
		"unknown override": `{"variant":"bme","years":1,"overrides":{"NOT_A_PARAMETER":1}}`,
		"invalid value":    `{"variant":"bme","years":1,"overrides":{"INITIAL_PRICE_USD":-1}}`,
		"too many years":   `{"variant":"bme","years":51}`,
		"negative years":   `{"variant":"bme","years":-2}`,
		"unknown scenario": `{"variant":"bme","years":1,"scenario":"Crab"}`,
	}
	for name, body := range cases {
		rec := do(t, h, http.MethodPost, "/api/v1/runs", body, testKey)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}

	n, err := srv.DB.CountRuns(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateRunRateLimited(t *testing.T) {
	srv := newTestServer(t, testKey, 1)
	h := srv.Handler()
	body := `{"variant":"bme","years":1,"seed":1}`

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/runs", body, testKey).Code)

	rec := do(t, h, http.MethodPost, "/api/v1/runs", body, testKey)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, "", 10)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "buckets are per client")
	assert.Equal(t, 61, rl.RetryAfter("a"))
	assert.Zero(t, rl.RetryAfter("unknown"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"), "window reset")

	now = now.Add(3 * time.Minute)
	rl.cleanup()
	rl.mu.Lock()
	assert.Empty(t, rl.buckets)
	rl.mu.Unlock()

	rl.Stop()
}

func TestRateLimiterZeroRate(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	defer rl.Stop()
	assert.False(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")
	assert.Equal(t, "203.0.113.9", clientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientIP(req))
}
