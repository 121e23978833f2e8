// Package server exposes the emulator's HTTP surface: /auth/v1 for
// identity and /rest/v1 for row-level table access, speaking the same
// protocol subset the pkg/platform REST client speaks.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"secondhand/internal/util"
	"secondhand/pkg/domain"
	"secondhand/services/platform/internal/store"
	"secondhand/services/platform/internal/token"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	APIKey        string
	Store         store.Store
	RefreshTokens store.RefreshTokenStore
	Tokens        *token.Issuer
}

// Server implements the emulator endpoints.
type Server struct {
	apiKey  string
	store   store.Store
	refresh store.RefreshTokenStore
	tokens  *token.Issuer
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		apiKey:  cfg.APIKey,
		store:   cfg.Store,
		refresh: cfg.RefreshTokens,
		tokens:  cfg.Tokens,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog("platform", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/auth/v1/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/v1/token", s.handleToken)
	s.mux.HandleFunc("/auth/v1/logout", s.handleLogout)
	s.mux.HandleFunc("/auth/v1/user", s.handleUser)

	s.mux.HandleFunc("/rest/v1/users", s.withAPIKey(s.handleUsers))
	s.mux.HandleFunc("/rest/v1/books", s.withAPIKey(s.handleBooks))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withAPIKey rejects row requests without the project API key.
func (s *Server) withAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	}
}

// ---- auth ----

type credentialsRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

type sessionUser struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"user_metadata"`
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	RefreshToken string      `json:"refresh_token"`
	User         sessionUser `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}
	if _, exists, err := s.store.GetIdentityByEmail(email); err != nil {
		writeError(w, http.StatusInternalServerError, "lookup identity")
		return
	} else if exists {
		writeError(w, http.StatusConflict, "user already registered")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash password")
		return
	}
	ident := store.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.SaveIdentity(ident); err != nil {
		writeError(w, http.StatusInternalServerError, "save identity")
		return
	}
	s.issueSession(w, r, ident)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch r.URL.Query().Get("grant_type") {
	case "password":
		email := strings.TrimSpace(strings.ToLower(req.Email))
		ident, ok, err := s.store.GetIdentityByEmail(email)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup identity")
			return
		}
		if !ok || bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(req.Password)) != nil {
			writeError(w, http.StatusBadRequest, "invalid login credentials")
			return
		}
		s.issueSession(w, r, ident)
	case "refresh_token":
		uid, ok, err := s.refresh.GetUserIDByToken(req.RefreshToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup refresh token")
			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid refresh token")
			return
		}
		ident, found, err := s.store.GetIdentityByID(uid)
		if err != nil || !found {
			writeError(w, http.StatusBadRequest, "invalid refresh token")
			return
		}
		// Rotate on use.
		_ = s.refresh.DeleteToken(req.RefreshToken)
		s.issueSession(w, r, ident)
	default:
		writeError(w, http.StatusBadRequest, "unsupported grant_type")
	}
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, ident store.Identity) {
	access, expiresIn, err := s.tokens.Sign(ident.ID, ident.Email)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("sign access token", "err", err)
		writeError(w, http.StatusInternalServerError, "issue token")
		return
	}
	refresh, err := s.refresh.NewToken(ident.ID)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("issue refresh token", "err", err)
		writeError(w, http.StatusInternalServerError, "issue refresh token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
		RefreshToken: refresh,
		User:         sessionUser{ID: ident.ID, Email: ident.Email, Metadata: map[string]string{}},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.RefreshToken != "" {
		_ = s.refresh.DeleteToken(req.RefreshToken)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	uid, email, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, sessionUser{ID: uid, Email: email, Metadata: map[string]string{}})
}

// authorize resolves the caller from the bearer token. The API key as
// bearer means anonymous.
func (s *Server) authorize(r *http.Request) (userID, email string, ok bool) {
	raw, found := bearerToken(r)
	if !found || raw == s.apiKey {
		return "", "", false
	}
	uid, mail, err := s.tokens.Verify(raw)
	if err != nil {
		return "", "", false
	}
	return uid, mail, true
}

// ---- rows ----

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleSelectUsers(w, r)
	case http.MethodPost:
		s.handleInsertUsers(w, r)
	case http.MethodPatch:
		s.handleUpdateUsers(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSelectUsers(w http.ResponseWriter, r *http.Request) {
	filters := rowFilters(r)
	var rows []domain.UserProfile
	if id := filters["id"]; id != "" {
		profile, ok, err := s.store.GetProfile(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "fetch profile")
			return
		}
		if ok {
			rows = append(rows, profile)
		}
	} else {
		writeError(w, http.StatusBadRequest, "users queries require an id filter")
		return
	}
	writeRows(w, r, toAny(rows))
}

func (s *Server) handleInsertUsers(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var rows []domain.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, row := range rows {
		// Row-level rule: users may only create their own profile row.
		if row.ID != uid {
			writeError(w, http.StatusForbidden, "cannot create profile for another user")
			return
		}
		if _, exists, err := s.store.GetProfile(row.ID); err != nil {
			writeError(w, http.StatusInternalServerError, "fetch profile")
			return
		} else if exists {
			writeError(w, http.StatusConflict, "profile already exists")
			return
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		if err := s.store.SaveProfile(row); err != nil {
			writeError(w, http.StatusInternalServerError, "save profile")
			return
		}
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUpdateUsers(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id := rowFilters(r)["id"]
	if id == "" {
		writeError(w, http.StatusBadRequest, "updates require an id filter")
		return
	}
	// Row-level rule: users may only update their own profile row.
	if id != uid {
		writeError(w, http.StatusForbidden, "cannot update another user's profile")
		return
	}
	profile, exists, err := s.store.GetProfile(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "fetch profile")
		return
	}
	if !exists {
		// PostgREST updates against zero rows succeed with no effect.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	patch, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}
	// Merge the column patch onto the stored row.
	if err := json.Unmarshal(patch, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	profile.ID = id
	if err := s.store.SaveProfile(profile); err != nil {
		writeError(w, http.StatusInternalServerError, "save profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleSelectBooks(w, r)
	case http.MethodPost:
		s.handleInsertBooks(w, r)
	default:
		methodNotAllowed(w)
	}
}

type embeddedSeller struct {
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

type bookWithSeller struct {
	domain.Book
	Users *embeddedSeller `json:"users,omitempty"`
}

func (s *Server) handleSelectBooks(w http.ResponseWriter, r *http.Request) {
	filters := rowFilters(r)
	books, err := s.store.ListBooks(store.BookFilter{
		ID:       filters["id"],
		Status:   domain.ListingStatus(filters["status"]),
		SellerID: filters["seller_id"],
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list books")
		return
	}
	if ord := r.URL.Query().Get("order"); strings.HasSuffix(ord, ".asc") {
		for i, j := 0, len(books)-1; i < j; i, j = i+1, j-1 {
			books[i], books[j] = books[j], books[i]
		}
	}
	embed := strings.Contains(r.URL.Query().Get("select"), "users")
	rows := make([]any, 0, len(books))
	for _, b := range books {
		if !embed {
			rows = append(rows, b)
			continue
		}
		item := bookWithSeller{Book: b}
		if seller, ok, err := s.store.GetProfile(b.SellerID); err == nil && ok {
			item.Users = &embeddedSeller{FullName: seller.FullName, CreatedAt: seller.CreatedAt}
		}
		rows = append(rows, item)
	}
	writeRows(w, r, rows)
}

func (s *Server) handleInsertBooks(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	profile, exists, err := s.store.GetProfile(uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "fetch profile")
		return
	}
	if !exists || !profile.IsSeller {
		writeError(w, http.StatusForbidden, "seller account required")
		return
	}
	var rows []domain.Book
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.SellerID != uid {
			writeError(w, http.StatusForbidden, "cannot create listing for another seller")
			return
		}
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.Status == "" {
			row.Status = domain.ListingActive
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		if err := s.store.SaveBook(row); err != nil {
			writeError(w, http.StatusInternalServerError, "save book")
			return
		}
	}
	w.WriteHeader(http.StatusCreated)
}

// ---- helpers ----

const singleObjectAccept = "application/vnd.pgrst.object+json"

// rowFilters extracts eq.<value> query filters, the only operator the
// emulator supports.
func rowFilters(r *http.Request) map[string]string {
	filters := make(map[string]string)
	for key, values := range r.URL.Query() {
		if key == "select" || key == "order" {
			continue
		}
		if len(values) == 0 {
			continue
		}
		if v, ok := strings.CutPrefix(values[0], "eq."); ok {
			filters[key] = v
		}
	}
	return filters
}

// writeRows answers a row query: a JSON array normally, or exactly one
// object when the single-object representation was requested. Zero rows
// under single-object is the defined "no rows" answer.
func writeRows(w http.ResponseWriter, r *http.Request, rows []any) {
	if strings.Contains(r.Header.Get("Accept"), singleObjectAccept) {
		if len(rows) != 1 {
			writeJSON(w, http.StatusNotAcceptable, map[string]string{
				"code":    "PGRST116",
				"message": "JSON object requested, multiple (or no) rows returned",
			})
			return
		}
		writeJSON(w, http.StatusOK, rows[0])
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func toAny[T any](in []T) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	return out
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
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
	writeJSON(w, status, map[string]string{"message": msg})
}
