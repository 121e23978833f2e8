// Package server exposes the marketplace application over an HTTP JSON
// API consumed by the UI shell. The server hosts one user session per
// process, mirroring the front end it backs.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"secondhand/internal/ratelimit"
	"secondhand/internal/util"
	"secondhand/pkg/domain"
	"secondhand/pkg/platform"
	"secondhand/pkg/session"
	"secondhand/services/market/internal/app"
	"secondhand/services/market/internal/catalog"
)

const maxCoverBytes = 8 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	SignInLimiter  *ratelimit.FixedWindowLimiter
	SignUpLimiter  *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes the marketplace HTTP endpoints.
type Server struct {
	app           *app.App
	mux           *http.ServeMux
	signInLimiter *ratelimit.FixedWindowLimiter
	signUpLimiter *ratelimit.FixedWindowLimiter
	trusted       *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		mux:           http.NewServeMux(),
		signInLimiter: cfg.SignInLimiter,
		signUpLimiter: cfg.SignUpLimiter,
		trusted:       cfg.TrustedProxies,
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("market", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/session", s.handleSession)
	s.mux.HandleFunc("/api/auth/signin", s.handleSignIn)
	s.mux.HandleFunc("/api/auth/signup", s.handleSignUp)
	s.mux.HandleFunc("/api/auth/signout", s.handleSignOut)

	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookByID)
	s.mux.HandleFunc("/api/covers/", s.handleCover)

	s.mux.HandleFunc("/api/seller/register", s.handleSellerRegister)
	s.mux.HandleFunc("/api/seller/books", s.handleSellerBooks)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionResponse is the session snapshot shape consumed by every view.
type sessionResponse struct {
	User    *domain.UserProfile `json:"user"`
	Loading bool                `json:"loading"`
	Error   string              `json:"error,omitempty"`
}

func (s *Server) sessionSnapshot() sessionResponse {
	state := s.app.Sessions.Snapshot()
	resp := sessionResponse{User: state.User, Loading: state.Loading}
	if state.ResolveErr != nil {
		resp.Error = "profile resolution failed"
	}
	return resp
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionSnapshot())
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signInLimiter, "too many sign-in attempts") {
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.app.Sessions.SignIn(r.Context(), req.Email, req.Password); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionSnapshot())
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signUpLimiter, "too many sign-up attempts") {
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.app.Sessions.SignUp(r.Context(), req.Email, req.Password, req.FullName); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.sessionSnapshot())
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.Sessions.SignOut(r.Context()); err != nil {
		writeAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBooks serves the browse feed with optional query/genre
// narrowing applied client-side over the fetched feed.
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.Catalog.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "listing feed unavailable")
		return
	}
	items = catalog.Filter(items, r.URL.Query().Get("query"), r.URL.Query().Get("genre"))
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/books/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	details, err := s.app.Catalog.Get(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			writeError(w, http.StatusNotFound, "listing not found")
		case platform.IsOffline(err):
			writeError(w, http.StatusServiceUnavailable, "listing details unavailable offline")
		default:
			util.LoggerFromContext(r.Context()).Error("fetch listing failed", "id", id, "err", err)
			writeError(w, http.StatusBadGateway, "listing details unavailable")
		}
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// handleCover redirects to a short-lived URL for a stored cover image.
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/api/covers/")
	if key == "" {
		writeError(w, http.StatusNotFound, "cover not found")
		return
	}
	url, err := s.app.Catalog.CoverURL(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "cover not found")
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (s *Server) handleSellerRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req domain.SellerApplication
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.app.Sessions.UpdateUserAsSeller(r.Context(), req); err != nil {
		if errors.Is(err, session.ErrNotAuthenticated) {
			writeError(w, http.StatusUnauthorized, "sign in to register as a seller")
			return
		}
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionSnapshot())
}

func (s *Server) handleSellerBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSellerBooks(w, r)
	case http.MethodPost:
		s.handleSubmitListing(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListSellerBooks(w http.ResponseWriter, r *http.Request) {
	state := s.app.Sessions.Snapshot()
	if state.User == nil {
		writeError(w, http.StatusUnauthorized, "sign in to view your listings")
		return
	}
	books, err := s.app.Catalog.BySeller(r.Context(), state.User.ID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "listings unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": books, "count": len(books)})
}

func (s *Server) handleSubmitListing(w http.ResponseWriter, r *http.Request) {
	state := s.app.Sessions.Snapshot()
	if state.User == nil {
		writeError(w, http.StatusUnauthorized, "sign in to submit a listing")
		return
	}
	if err := r.ParseMultipartForm(maxCoverBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	price, err := strconv.ParseInt(r.FormValue("price"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}
	form := catalog.ListingForm{
		Title:                r.FormValue("title"),
		Author:               r.FormValue("author"),
		Genre:                r.FormValue("genre"),
		Price:                price,
		Synopsis:             r.FormValue("synopsis"),
		Condition:            r.FormValue("condition"),
		ConditionDescription: r.FormValue("condition_description"),
	}
	var cover *catalog.CoverUpload
	if file, header, err := r.FormFile("cover"); err == nil {
		defer file.Close()
		cover = &catalog.CoverUpload{
			Reader:      file,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Filename:    header.Filename,
		}
	}
	book, err := s.app.Catalog.Submit(r.Context(), state.User, form, cover)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotSeller):
			writeError(w, http.StatusForbidden, "seller account required")
		case platform.IsOffline(err):
			writeError(w, http.StatusServiceUnavailable, "listings cannot be created offline")
		default:
			util.LoggerFromContext(r.Context()).Error("submit listing failed", "err", err)
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// ---- helpers ----

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	if limiter.Allow(util.ClientIP(r, s.trusted)) {
		return true
	}
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// writeAuthError maps auth write-path failures onto HTTP statuses.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case platform.IsOffline(err):
		writeError(w, http.StatusServiceUnavailable, "running in offline mode")
	case platform.IsAuth(err):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		util.LoggerFromContext(r.Context()).Error("auth operation failed", "err", err)
		writeError(w, http.StatusBadGateway, "authentication service unavailable")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
