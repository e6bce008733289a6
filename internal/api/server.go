// Package api serves stored simulation runs over HTTP.
// GET endpoints are public and read-only.
// POST /api/v1/runs executes and stores a new run; it requires a bearer token
// and is rate limited.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru"

	"github.com/talgya/token-sim/internal/engine"
	"github.com/talgya/token-sim/internal/entropy"
	"github.com/talgya/token-sim/internal/market"
	"github.com/talgya/token-sim/internal/params"
	"github.com/talgya/token-sim/internal/persistence"
)

const (
	runCacheSize = 256
	maxBodyBytes = 1 << 20
	maxRunYears  = 50
)

// Server serves stored runs over HTTP.
type Server struct {
	DB       *persistence.DB
	Base     params.Set // defaults that POSTed overrides apply to
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	started time.Time
	runs    *lru.Cache // run id → persistence.Run
	limiter *RateLimiter
}

// NewServer builds a server. runsPerHour bounds POST /api/v1/runs per client.
func NewServer(db *persistence.DB, base params.Set, adminKey string, port, runsPerHour int) (*Server, error) {
	cache, err := lru.New(runCacheSize)
	if err != nil {
		return nil, fmt.Errorf("run cache: %w", err)
	}
	return &Server{
		DB:       db,
		Base:     base,
		Port:     port,
		AdminKey: adminKey,
		started:  time.Now(),
		runs:     cache,
		limiter:  NewRateLimiter(runsPerHour, time.Hour),
	}, nil
}

// Router registers every endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/params", s.handleParams).Methods(http.MethodGet)
	v1.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{id}/snapshots", s.handleSnapshots).Methods(http.MethodGet)

	v1.HandleFunc("/runs", s.adminOnly(RateLimitMiddleware(s.limiter, s.handleCreateRun))).Methods(http.MethodPost)

	return r
}

// Handler is the router behind the CORS layer.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.Router())
}

// Start begins serving in a goroutine. Shut the returned server down to stop.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// Close releases background resources.
func (s *Server) Close() {
	s.limiter.Stop()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no TOKENSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.DB.CountRuns(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	version, _ := s.DB.GetMeta("version")

	scenarios := make([]string, 0, 4)
	for _, sc := range market.Scenarios() {
		scenarios = append(scenarios, sc.Name)
	}

	writeJSON(w, map[string]any{
		"name":          "tokensim",
		"version":       version,
		"runs":          count,
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"variants":      engine.Variants(),
		"scenarios":     scenarios,
		"admin_enabled": s.AdminKey != "",
	})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"defaults": s.Base,
		"names":    params.Names(),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			http.Error(w, "limit must be an integer in [1, 1000]", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.DB.ListRuns(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if cached, ok := s.runs.Get(id); ok {
		writeJSON(w, cached)
		return
	}

	run, err := s.DB.GetRun(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.runs.Add(id, run)
	writeJSON(w, run)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	withState := false
	if raw := r.URL.Query().Get("state"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "state must be a boolean", http.StatusBadRequest)
			return
		}
		withState = b
	}

	snaps, err := s.DB.Snapshots(r.Context(), mux.Vars(r)["id"], withState)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, snaps)
}

// runRequest is the body of POST /api/v1/runs. Variant may be "all" or a
// comma-separated list.
// A missing seed is drawn from the clock.
type runRequest struct {
	Variant    string             `json:"variant"`
	Years      int                `json:"years"`
	Seed       *int64             `json:"seed"`
	MarketSeed *int64             `json:"market_seed"`
	Scenario   string             `json:"scenario"`
	Overrides  map[string]float64 `json:"overrides"`
}

type runResult struct {
	ID      string         `json:"id"`
	Variant engine.Variant `json:"variant"`
	Metrics engine.Metrics `json:"metrics"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	variants, err := engine.ParseVariants(req.Variant)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	set := s.Base.Clone()
	if req.Years != 0 {
		set.Years = req.Years
	}
	if err := set.ApplyValues(req.Overrides); err != nil {
		s.fail(w, err)
		return
	}
	if set.Years > maxRunYears {
		http.Error(w, fmt.Sprintf("years must be <= %d", maxRunYears), http.StatusBadRequest)
		return
	}
	if err := set.Validate(); err != nil {
		s.fail(w, err)
		return
	}

	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}
	marketSeed := seed
	if req.MarketSeed != nil {
		marketSeed = *req.MarketSeed
	}
	series, sc, err := market.ScenarioSeries(req.Scenario, set.Years*engine.MonthsPerYear, marketSeed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	root := entropy.NewSeeded(seed)
	results := make([]runResult, 0, len(variants))
	for _, v := range variants {
		out, err := engine.RunVariant(v, set, engine.Env{
			Source: root.Derive(v.Stream()),
			Market: series,
		})
		if err != nil {
			s.fail(w, fmt.Errorf("run %s: %w", v, err))
			return
		}

		id := uuid.New()
		info := persistence.RunInfo{
			ID:       id,
			Scenario: sc.Name,
			Seed:     seed,
			Years:    set.Years,
			Params:   engine.VariantParams(v, set),
		}
		if err := s.DB.SaveRun(r.Context(), info, out); err != nil {
			s.fail(w, fmt.Errorf("store %s run: %w", v, err))
			return
		}
		results = append(results, runResult{ID: id.String(), Variant: v, Metrics: out.Metrics})
	}

	slog.Info("runs executed via API",
		"variants", len(results),
		"scenario", sc.Name,
		"seed", seed,
		"years", set.Years,
	)
	writeJSONStatus(w, http.StatusCreated, map[string]any{
		"seed":        seed,
		"market_seed": marketSeed,
		"scenario":    sc.Name,
		"runs":        results,
	})
}

// fail maps an error onto a status code. Unexpected errors are logged and
// hidden from the client.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var stateErr *engine.StateError
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case params.IsConfigError(err), errors.As(err, &stateErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("API request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
