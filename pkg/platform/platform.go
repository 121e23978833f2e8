// Package platform wraps the hosted backend the marketplace delegates
// to: identity (sessions, password auth) and row-level table access.
// The wrapper has two implementations selected once at construction:
// a networked REST client bound to configured credentials, and an
// offline stub that answers every call locally. Missing credentials are
// a permanent mode for the process lifetime, not a transient error.
package platform

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// AuthEvent names a session-change notification.
type AuthEvent string

const (
	SignedIn  AuthEvent = "SIGNED_IN"
	SignedOut AuthEvent = "SIGNED_OUT"
)

// SessionUser is the minimal identity embedded in a session.
type SessionUser struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"user_metadata"`
}

// Session is proof of authentication issued by the identity provider.
// The application only reads it; the provider owns persistence.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    time.Time   `json:"-"`
	User         SessionUser `json:"user"`
}

// Auth exposes identity operations.
type Auth interface {
	// Session returns the current session, or nil when anonymous.
	Session(ctx context.Context) (*Session, error)
	// OnChange registers a session-change listener and returns its
	// teardown. Listeners receive nil session on sign-out.
	OnChange(fn func(event AuthEvent, s *Session)) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
}

// Query builds a row query against one table. Chainable methods return
// the same builder; Rows, Single, Insert and Exec resolve it.
type Query interface {
	Select(columns string) Query
	Eq(column, value string) Query
	Order(column string, ascending bool) Query
	Update(values any) Query
	Delete() Query

	// Rows resolves a read chain into a slice pointed to by dest.
	Rows(ctx context.Context, dest any) error
	// Single resolves a read chain into exactly one row; zero rows is
	// the KindNotFound outcome.
	Single(ctx context.Context, dest any) error
	// Insert writes rows to the table.
	Insert(ctx context.Context, rows any) error
	// Exec resolves an update/delete chain, discarding any rows.
	Exec(ctx context.Context) error
}

// Client is the capability object handed to the rest of the
// application.
type Client interface {
	Auth() Auth
	From(table string) Query
	// Offline reports whether this client is the stub.
	Offline() bool
}

// Config selects the client implementation. URL and Key both present
// means networked; anything else means the offline stub.
type Config struct {
	URL        string
	Key        string
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// New returns the platform client for the given configuration. It
// never fails: absent credentials downgrade to the offline stub with a
// logged warning.
func New(cfg Config) Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" || cfg.Key == "" {
		logger.Warn("platform credentials missing, running in offline mode")
		return newStubClient()
	}
	return newRESTClient(cfg.URL, cfg.Key, cfg.HTTPClient, logger)
}
