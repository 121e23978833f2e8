package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	jwt "github.com/golang-jwt/jwt/v5"

	"secondhand/pkg/domain"
)

func newTestClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL, Key: "anon-key"})
}

func TestRESTSingleMapsZeroRowsToNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/users" {
			http.NotFound(w, r)
			return
		}
		if accept := r.Header.Get("Accept"); accept != "application/vnd.pgrst.object+json" {
			t.Errorf("single request Accept = %q", accept)
		}
		w.WriteHeader(http.StatusNotAcceptable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "PGRST116",
			"message": "JSON object requested, multiple (or no) rows returned",
		})
	}))

	var profile domain.UserProfile
	err := client.From("users").Select("*").Eq("id", "missing").Single(context.Background(), &profile)
	if !IsNotFound(err) {
		t.Fatalf("Single error = %v, want not found", err)
	}
}

func TestRESTRowsBuildsQueryAndDecodes(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("status"); got != "eq.active" {
			t.Errorf("status filter = %q, want eq.active", got)
		}
		if got := q.Get("order"); got != "created_at.desc" {
			t.Errorf("order = %q, want created_at.desc", got)
		}
		if got := q.Get("select"); got != "*" {
			t.Errorf("select = %q, want *", got)
		}
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Errorf("apikey header = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]domain.Book{{ID: "b1", Title: "Sapiens"}})
	}))

	var books []domain.Book
	err := client.From("books").
		Select("*").
		Eq("status", "active").
		Order("created_at", false).
		Rows(context.Background(), &books)
	if err != nil {
		t.Fatalf("Rows error = %v", err)
	}
	if len(books) != 1 || books[0].ID != "b1" {
		t.Fatalf("Rows = %+v, want one row b1", books)
	}
}

func TestRESTSignInInstallsSessionAndNotifies(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "tok",
			"refresh_token": "rtok",
			"expires_in":    3600,
			"user":          map[string]any{"id": "u1", "email": "a@b.c"},
		})
	}))

	var events []AuthEvent
	unsub := client.Auth().OnChange(func(event AuthEvent, s *Session) {
		events = append(events, event)
		if event == SignedIn && (s == nil || s.User.ID != "u1") {
			t.Errorf("signed-in listener got session %+v", s)
		}
	})
	defer unsub()

	s, err := client.Auth().SignInWithPassword(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("SignInWithPassword error = %v", err)
	}
	if s.AccessToken != "tok" || s.User.ID != "u1" {
		t.Fatalf("session = %+v", s)
	}
	if s.ExpiresAt.IsZero() {
		t.Fatal("ExpiresAt not derived from expires_in")
	}

	cur, err := client.Auth().Session(context.Background())
	if err != nil || cur == nil || cur.AccessToken != "tok" {
		t.Fatalf("Session() = (%+v, %v)", cur, err)
	}
	if len(events) != 1 || events[0] != SignedIn {
		t.Fatalf("events = %v, want [SIGNED_IN]", events)
	}
}

func TestRESTBadCredentialsMapToAuthError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid login credentials"})
	}))

	_, err := client.Auth().SignInWithPassword(context.Background(), "a@b.c", "wrong")
	if !IsAuth(err) {
		t.Fatalf("error = %v, want auth kind", err)
	}
}

func TestFillFromClaimsBackfillsIdentity(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "u9",
		"email": "claims@b.c",
		"exp":   4102444800,
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	s := &Session{AccessToken: token}
	fillFromClaims(s)
	if s.User.ID != "u9" || s.User.Email != "claims@b.c" {
		t.Fatalf("backfilled user = %+v", s.User)
	}
	if s.ExpiresAt.IsZero() {
		t.Fatal("ExpiresAt not backfilled from exp claim")
	}
}

func TestRESTSignOutClearsSessionEvenOnServerError(t *testing.T) {
	signedIn := true
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "tok",
				"expires_in":   60,
				"user":         map[string]any{"id": "u1", "email": "a@b.c"},
			})
		case "/auth/v1/logout":
			if signedIn {
				signedIn = false
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
		default:
			http.NotFound(w, r)
		}
	}))

	if _, err := client.Auth().SignInWithPassword(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	var sawSignedOut bool
	unsub := client.Auth().OnChange(func(event AuthEvent, s *Session) {
		if event == SignedOut {
			sawSignedOut = true
			if s != nil {
				t.Error("signed-out listener must receive nil session")
			}
		}
	})
	defer unsub()

	if err := client.Auth().SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	cur, _ := client.Auth().Session(context.Background())
	if cur != nil {
		t.Fatalf("session after sign out = %+v, want nil", cur)
	}
	if !sawSignedOut {
		t.Fatal("listener did not observe SIGNED_OUT")
	}
}
