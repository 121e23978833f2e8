// Package session resolves the current marketplace user from the
// platform session and keeps it current across sign-in and sign-out.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"secondhand/pkg/domain"
	"secondhand/pkg/platform"
)

// ErrNotAuthenticated is returned by operations that require a resolved
// user before any platform call is made.
var ErrNotAuthenticated = errors.New("not authenticated")

// State is the snapshot handed to consumers. User is nil while
// anonymous. ResolveErr carries the last profile-fetch failure so a
// backend outage can be distinguished from being signed out; it is nil
// whenever User is set.
type State struct {
	User       *domain.UserProfile
	Loading    bool
	ResolveErr error
}

// Resolver owns the session-to-profile state machine. Construct with
// New, call Start once, and Dispose when the consuming scope goes away.
type Resolver struct {
	client platform.Client
	logger *slog.Logger

	mu          sync.Mutex
	user        *domain.UserProfile
	loading     bool
	resolveErr  error
	disposed    bool
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a resolver in the loading state. Nothing is fetched until
// Start.
func New(client platform.Client, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		client:  client,
		logger:  logger,
		loading: true,
	}
}

// Start probes the current session and subscribes to session changes.
// Both triggers converge on the same idempotent profile resolution, so
// an initial probe racing an immediate auth event is tolerated;
// last write wins.
func (r *Resolver) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	auth := r.client.Auth()
	r.mu.Lock()
	r.unsubscribe = auth.OnChange(func(event platform.AuthEvent, s *platform.Session) {
		if s == nil {
			r.setAnonymous(nil)
			return
		}
		r.resolveProfile(r.ctx, s)
	})
	r.mu.Unlock()

	s, err := auth.Session(r.ctx)
	if err != nil {
		r.logger.Error("session probe failed", "err", err)
		r.setAnonymous(err)
		return
	}
	if s == nil {
		r.setAnonymous(nil)
		return
	}
	r.resolveProfile(r.ctx, s)
}

// Dispose tears down the session-change subscription. Late
// notifications after Dispose never mutate state.
func (r *Resolver) Dispose() {
	r.mu.Lock()
	r.disposed = true
	unsub := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	if r.cancel != nil {
		r.cancel()
	}
}

// Snapshot returns the current state.
func (r *Resolver) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var user *domain.UserProfile
	if r.user != nil {
		u := *r.user
		user = &u
	}
	return State{User: user, Loading: r.loading, ResolveErr: r.resolveErr}
}

// SignIn authenticates with email and password. Profile resolution is
// driven by the resulting session-change notification.
func (r *Resolver) SignIn(ctx context.Context, email, password string) error {
	if _, err := r.client.Auth().SignInWithPassword(ctx, email, password); err != nil {
		return err
	}
	return nil
}

// SignUp registers the account and creates its profile row as a buyer.
func (r *Resolver) SignUp(ctx context.Context, email, password, fullName string) error {
	s, err := r.client.Auth().SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	if s == nil || s.User.ID == "" {
		return nil
	}
	row := domain.UserProfile{
		ID:       s.User.ID,
		Email:    s.User.Email,
		FullName: fullName,
		IsSeller: false,
	}
	if err := r.client.From("users").Insert(ctx, []domain.UserProfile{row}); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	// The signup session fired before the row existed; resolve again so
	// the stored profile replaces the synthesized one.
	r.resolveProfile(ctx, s)
	return nil
}

// SignOut ends the session. The change notification clears the user.
func (r *Resolver) SignOut(ctx context.Context) error {
	return r.client.Auth().SignOut(ctx)
}

// UpdateUserAsSeller promotes the current user to a seller and
// re-resolves the profile. It fails before any platform call when no
// user is resolved. Local state is never mutated optimistically: a
// failed write leaves the previous profile visible.
func (r *Resolver) UpdateUserAsSeller(ctx context.Context, app domain.SellerApplication) error {
	r.mu.Lock()
	user := r.user
	r.mu.Unlock()
	if user == nil {
		return ErrNotAuthenticated
	}
	values := map[string]any{
		"is_seller":         true,
		"store_name":        app.StoreName,
		"store_description": app.Description,
		"phone":             app.Phone,
		"address":           app.Address,
		"bank_account":      app.BankAccount,
		"bank_name":         app.BankName,
	}
	if err := r.client.From("users").Update(values).Eq("id", user.ID).Exec(ctx); err != nil {
		return fmt.Errorf("update seller profile: %w", err)
	}
	r.resolveProfile(ctx, &platform.Session{
		User: platform.SessionUser{ID: user.ID, Email: user.Email},
	})
	return nil
}

// resolveProfile fetches the profile row for an authenticated session
// and reconciles it into the snapshot. A missing row is not an error:
// the session identity is enough to act as a buyer, so a transient
// profile is synthesized. Loading always clears, whatever the outcome.
func (r *Resolver) resolveProfile(ctx context.Context, s *platform.Session) {
	defer r.clearLoading()

	var profile domain.UserProfile
	err := r.client.From("users").Select("*").Eq("id", s.User.ID).Single(ctx, &profile)
	switch {
	case err == nil:
		r.setUser(&profile)
	case platform.IsNotFound(err):
		r.setUser(&domain.UserProfile{
			ID:        s.User.ID,
			Email:     s.User.Email,
			FullName:  s.User.Metadata["full_name"],
			IsSeller:  false,
			CreatedAt: time.Now().UTC(),
		})
	default:
		r.logger.Error("profile fetch failed", "user_id", s.User.ID, "err", err)
		r.setAnonymous(err)
	}
}

func (r *Resolver) setUser(u *domain.UserProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	r.user = u
	r.resolveErr = nil
}

func (r *Resolver) setAnonymous(cause error) {
	r.mu.Lock()
	if !r.disposed {
		r.user = nil
		r.resolveErr = cause
		r.loading = false
	}
	r.mu.Unlock()
}

func (r *Resolver) clearLoading() {
	r.mu.Lock()
	if !r.disposed {
		r.loading = false
	}
	r.mu.Unlock()
}
