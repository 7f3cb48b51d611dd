package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/example/wayfinder/internal/dispatch"
	"github.com/example/wayfinder/internal/explorer"
	"github.com/example/wayfinder/internal/models"
	"github.com/example/wayfinder/internal/ratelimit"
	"github.com/example/wayfinder/internal/store"
	"github.com/example/wayfinder/internal/taskboard"
)

// Server provides the coordination HTTP API for worker agents.
type Server struct {
	service *Service
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string) *Server {
	return &Server{
		service: service,
		addr:    addr,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.Printf("Starting wayfinder daemon on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler builds the API mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Route endpoints
	mux.HandleFunc("/routes", s.handleRoutes)
	mux.HandleFunc("/route", s.handleRoute)
	mux.HandleFunc("/routes/claim", s.handleClaim)
	mux.HandleFunc("/routes/explored", s.handleExplored)
	mux.HandleFunc("/routes/testing", s.handleTesting)
	mux.HandleFunc("/routes/tested", s.handleTested)

	// Campaign endpoints
	mux.HandleFunc("/dispatch", s.handleDispatch)
	mux.HandleFunc("/bugs", s.handleBugs)
	mux.HandleFunc("/helpers", s.handleHelpers)
	mux.HandleFunc("/stats", s.handleStats)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// httpStatus maps service errors onto HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, store.ErrRouteNotFound):
		return http.StatusNotFound
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, taskboard.ErrRequestInvalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- Route Handlers ---

type discoverRequest struct {
	UserLevel string   `json:"user_level"`
	Paths     []string `json:"paths"`
}

// handleRoutes handles POST /routes (discover) and GET /routes (list).
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req discoverRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.UserLevel == "" {
			http.Error(w, "user_level required", http.StatusBadRequest)
			return
		}

		res, err := s.service.Discover(r.Context(), req.UserLevel, req.Paths)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, http.StatusCreated, res)

	case http.MethodGet:
		userLevel := r.URL.Query().Get("user_level")
		status := models.RouteStatus(r.URL.Query().Get("status"))
		if status != "" && !models.ValidStatus(status) {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}

		routes, err := s.service.ListRoutes(userLevel, status)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		if routes == nil {
			routes = []models.Route{}
		}
		writeJSON(w, http.StatusOK, routes)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRoute handles GET /route?user_level=...&route=...
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userLevel := r.URL.Query().Get("user_level")
	route := r.URL.Query().Get("route")
	if userLevel == "" || route == "" {
		http.Error(w, "user_level and route required", http.StatusBadRequest)
		return
	}

	row, err := s.service.GetRoute(userLevel, route)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	if row == nil {
		http.Error(w, "route not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type routeRequest struct {
	UserLevel string `json:"user_level"`
	Route     string `json:"route"`
}

// handleClaim handles POST /routes/claim.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !s.decodeRouteRequest(w, r, &req) {
		return
	}

	row, err := s.service.StartExploration(req.UserLevel, req.Route)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type exploredRequest struct {
	UserLevel string   `json:"user_level"`
	Route     string   `json:"route"`
	SubRoutes []string `json:"sub_routes"`
	Notes     string   `json:"notes"`
}

// handleExplored handles POST /routes/explored.
func (s *Server) handleExplored(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req exploredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.UserLevel == "" || req.Route == "" {
		http.Error(w, "user_level and route required", http.StatusBadRequest)
		return
	}

	res, err := s.service.CompleteExploration(r.Context(), req.UserLevel, req.Route,
		&explorer.Result{SubRoutes: req.SubRoutes, Notes: req.Notes})
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleTesting handles POST /routes/testing.
func (s *Server) handleTesting(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !s.decodeRouteRequest(w, r, &req) {
		return
	}

	row, err := s.service.StartTesting(req.UserLevel, req.Route)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleTested handles POST /routes/tested.
func (s *Server) handleTested(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !s.decodeRouteRequest(w, r, &req) {
		return
	}

	row, err := s.service.CompleteTest(req.UserLevel, req.Route)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) decodeRouteRequest(w http.ResponseWriter, r *http.Request, req *routeRequest) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	if req.UserLevel == "" || req.Route == "" {
		http.Error(w, "user_level and route required", http.StatusBadRequest)
		return false
	}
	return true
}

// --- Campaign Handlers ---

type dispatchRequest struct {
	UserLevel string `json:"user_level"`
}

// handleDispatch handles POST /dispatch.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	res, err := s.service.DispatchPending(r.Context(), req.UserLevel)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type bugRequest struct {
	UserLevel   string `json:"user_level"`
	Route       string `json:"route"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Signature   string `json:"signature"`
}

// handleBugs handles POST /bugs.
func (s *Server) handleBugs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.UserLevel == "" || req.Route == "" || req.Title == "" {
		http.Error(w, "user_level, route and title required", http.StatusBadRequest)
		return
	}

	report, err := s.service.ReportBug(r.Context(), req.UserLevel, req.Route,
		req.Title, req.Description, req.Severity, req.Signature)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}

	status := http.StatusCreated
	if report.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, report)
}

type helperRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleHelpers handles POST /helpers.
func (s *Server) handleHelpers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req helperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	id, err := s.service.CreateHelperTicket(r.Context(), req.Name, req.Description)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ticket_id": id})
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.service.CampaignStats(r.URL.Query().Get("user_level"))
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
