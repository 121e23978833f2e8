package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"secondhand/pkg/domain"
	"secondhand/pkg/platform"
)

// fakeClient is an in-memory platform double. Profiles keyed by user id
// back the users table; Emit drives session-change listeners the way
// the real client does after auth calls.
type fakeClient struct {
	mu       sync.Mutex
	session  *platform.Session
	profiles map[string]domain.UserProfile

	singleErr error
	execErr   error

	inserts []domain.UserProfile
	updates []map[string]any

	listeners []func(platform.AuthEvent, *platform.Session)
	unsubbed  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{profiles: map[string]domain.UserProfile{}}
}

func (f *fakeClient) Auth() platform.Auth              { return fakeAuth{f} }
func (f *fakeClient) From(table string) platform.Query { return &fakeQuery{client: f, table: table} }
func (f *fakeClient) Offline() bool                    { return false }

func (f *fakeClient) Emit(event platform.AuthEvent, s *platform.Session) {
	f.mu.Lock()
	f.session = s
	fns := append([]func(platform.AuthEvent, *platform.Session){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(event, s)
	}
}

type fakeAuth struct{ client *fakeClient }

func (a fakeAuth) Session(context.Context) (*platform.Session, error) {
	a.client.mu.Lock()
	defer a.client.mu.Unlock()
	return a.client.session, nil
}

func (a fakeAuth) OnChange(fn func(platform.AuthEvent, *platform.Session)) func() {
	a.client.mu.Lock()
	a.client.listeners = append(a.client.listeners, fn)
	a.client.mu.Unlock()
	return func() {
		a.client.mu.Lock()
		a.client.unsubbed = true
		a.client.mu.Unlock()
	}
}

func (a fakeAuth) SignInWithPassword(_ context.Context, email, _ string) (*platform.Session, error) {
	s := &platform.Session{User: platform.SessionUser{ID: "u-" + email, Email: email}}
	a.client.Emit(platform.SignedIn, s)
	return s, nil
}

func (a fakeAuth) SignUp(_ context.Context, email, _ string) (*platform.Session, error) {
	s := &platform.Session{User: platform.SessionUser{ID: "u-" + email, Email: email}}
	a.client.Emit(platform.SignedIn, s)
	return s, nil
}

func (a fakeAuth) SignOut(context.Context) error {
	a.client.Emit(platform.SignedOut, nil)
	return nil
}

type fakeQuery struct {
	client *fakeClient
	table  string
	id     string
	update map[string]any
}

func (q *fakeQuery) Select(string) platform.Query      { return q }
func (q *fakeQuery) Order(string, bool) platform.Query { return q }
func (q *fakeQuery) Delete() platform.Query            { return q }

func (q *fakeQuery) Eq(column, value string) platform.Query {
	if column == "id" {
		q.id = value
	}
	return q
}

func (q *fakeQuery) Update(values any) platform.Query {
	if m, ok := values.(map[string]any); ok {
		q.update = m
	}
	return q
}

func (q *fakeQuery) Rows(_ context.Context, dest any) error {
	return json.Unmarshal([]byte("[]"), dest)
}

func (q *fakeQuery) Single(_ context.Context, dest any) error {
	q.client.mu.Lock()
	defer q.client.mu.Unlock()
	if q.client.singleErr != nil {
		return q.client.singleErr
	}
	profile, ok := q.client.profiles[q.id]
	if !ok {
		return &platform.Error{Kind: platform.KindNotFound, Op: "single users", Status: 406}
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (q *fakeQuery) Insert(_ context.Context, rows any) error {
	profiles, ok := rows.([]domain.UserProfile)
	if !ok {
		return errors.New("unexpected insert payload")
	}
	q.client.mu.Lock()
	defer q.client.mu.Unlock()
	for _, p := range profiles {
		q.client.profiles[p.ID] = p
		q.client.inserts = append(q.client.inserts, p)
	}
	return nil
}

func (q *fakeQuery) Exec(context.Context) error {
	q.client.mu.Lock()
	defer q.client.mu.Unlock()
	if q.client.execErr != nil {
		return q.client.execErr
	}
	if q.update != nil {
		q.client.updates = append(q.client.updates, q.update)
		p := q.client.profiles[q.id]
		p.ID = q.id
		if v, ok := q.update["is_seller"].(bool); ok {
			p.IsSeller = v
		}
		if v, ok := q.update["store_name"].(string); ok {
			p.StoreName = v
		}
		q.client.profiles[q.id] = p
	}
	return nil
}

func session1() *platform.Session {
	return &platform.Session{User: platform.SessionUser{
		ID:       "u1",
		Email:    "a@b.c",
		Metadata: map[string]string{"full_name": "Ayu"},
	}}
}

func TestStartWithoutSessionEndsAnonymous(t *testing.T) {
	client := newFakeClient()
	r := New(client, nil)

	if !r.Snapshot().Loading {
		t.Fatal("resolver must begin loading")
	}
	r.Start(context.Background())

	state := r.Snapshot()
	if state.User != nil || state.Loading || state.ResolveErr != nil {
		t.Fatalf("state = %+v, want anonymous settled", state)
	}
}

func TestStartResolvesStoredProfile(t *testing.T) {
	client := newFakeClient()
	client.session = session1()
	client.profiles["u1"] = domain.UserProfile{ID: "u1", Email: "a@b.c", FullName: "Ayu Lestari", IsSeller: true}

	r := New(client, nil)
	r.Start(context.Background())

	state := r.Snapshot()
	if state.Loading {
		t.Fatal("loading must clear after resolution")
	}
	if state.User == nil || state.User.FullName != "Ayu Lestari" || !state.User.IsSeller {
		t.Fatalf("user = %+v, want stored seller profile", state.User)
	}
}

func TestMissingProfileRowSynthesizesBuyer(t *testing.T) {
	client := newFakeClient()
	client.session = session1()

	r := New(client, nil)
	r.Start(context.Background())

	state := r.Snapshot()
	if state.User == nil {
		t.Fatal("missing row must still produce a user")
	}
	if state.User.ID != "u1" || state.User.Email != "a@b.c" {
		t.Fatalf("synthesized identity = %+v", state.User)
	}
	if state.User.FullName != "Ayu" {
		t.Fatalf("full name = %q, want metadata full_name", state.User.FullName)
	}
	if state.User.IsSeller {
		t.Fatal("synthesized profile must be a buyer")
	}
	if state.ResolveErr != nil {
		t.Fatalf("resolve err = %v, want nil", state.ResolveErr)
	}
}

func TestProfileFetchFailureClearsLoadingAndSurfacesError(t *testing.T) {
	client := newFakeClient()
	client.session = session1()
	client.singleErr = &platform.Error{Kind: platform.KindTransport, Op: "single users", Message: "boom"}

	r := New(client, nil)
	r.Start(context.Background())

	state := r.Snapshot()
	if state.Loading {
		t.Fatal("loading must clear even on fetch failure")
	}
	if state.User != nil {
		t.Fatalf("user = %+v, want nil on fetch failure", state.User)
	}
	if state.ResolveErr == nil {
		t.Fatal("fetch failure must be distinguishable from signed out")
	}
}

func TestSignOutEventClearsUser(t *testing.T) {
	client := newFakeClient()
	client.session = session1()
	client.profiles["u1"] = domain.UserProfile{ID: "u1", Email: "a@b.c"}

	r := New(client, nil)
	r.Start(context.Background())
	if r.Snapshot().User == nil {
		t.Fatal("precondition: user resolved")
	}

	client.Emit(platform.SignedOut, nil)

	state := r.Snapshot()
	if state.User != nil || state.ResolveErr != nil {
		t.Fatalf("state after sign-out = %+v, want anonymous", state)
	}
}

func TestDisposePreventsLateEventMutation(t *testing.T) {
	client := newFakeClient()
	client.session = session1()
	client.profiles["u1"] = domain.UserProfile{ID: "u1", Email: "a@b.c", FullName: "Ayu"}

	r := New(client, nil)
	r.Start(context.Background())
	before := r.Snapshot()
	r.Dispose()

	if !client.unsubbed {
		t.Fatal("dispose must tear down the subscription")
	}

	// A notification delivered after teardown must not change anything.
	client.Emit(platform.SignedOut, nil)
	client.profiles["u2"] = domain.UserProfile{ID: "u2", Email: "x@y.z"}
	client.Emit(platform.SignedIn, &platform.Session{User: platform.SessionUser{ID: "u2", Email: "x@y.z"}})

	after := r.Snapshot()
	if after.User == nil || after.User.ID != before.User.ID {
		t.Fatalf("state mutated after dispose: %+v", after)
	}
}

func TestSignUpCreatesProfileRowAndResolvesIt(t *testing.T) {
	client := newFakeClient()
	r := New(client, nil)
	r.Start(context.Background())

	if err := r.SignUp(context.Background(), "new@b.c", "pw", "Budi"); err != nil {
		t.Fatalf("SignUp error = %v", err)
	}

	if len(client.inserts) != 1 {
		t.Fatalf("inserted rows = %d, want 1", len(client.inserts))
	}
	row := client.inserts[0]
	if row.ID != "u-new@b.c" || row.FullName != "Budi" || row.IsSeller {
		t.Fatalf("inserted profile = %+v", row)
	}

	state := r.Snapshot()
	if state.User == nil || state.User.FullName != "Budi" {
		t.Fatalf("state after sign-up = %+v, want stored profile", state)
	}
}

func TestUpdateUserAsSellerRequiresUserBeforeAnyCall(t *testing.T) {
	client := newFakeClient()
	r := New(client, nil)
	r.Start(context.Background())

	err := r.UpdateUserAsSeller(context.Background(), domain.SellerApplication{StoreName: "Toko"})
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("error = %v, want ErrNotAuthenticated", err)
	}
	if len(client.updates) != 0 {
		t.Fatal("precondition failure must not reach the backend")
	}
}

func TestUpdateUserAsSellerWritesAndRefreshes(t *testing.T) {
	client := newFakeClient()
	client.session = session1()
	client.profiles["u1"] = domain.UserProfile{ID: "u1", Email: "a@b.c", FullName: "Ayu"}

	r := New(client, nil)
	r.Start(context.Background())

	app := domain.SellerApplication{
		StoreName:   "Toko Buku Ayu",
		Description: "Preloved fiction",
		Phone:       "0812",
		Address:     "Jakarta",
		BankAccount: "123",
		BankName:    "BCA",
	}
	if err := r.UpdateUserAsSeller(context.Background(), app); err != nil {
		t.Fatalf("UpdateUserAsSeller error = %v", err)
	}

	if len(client.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(client.updates))
	}
	values := client.updates[0]
	if values["is_seller"] != true || values["store_name"] != "Toko Buku Ayu" || values["bank_name"] != "BCA" {
		t.Fatalf("update values = %+v", values)
	}

	state := r.Snapshot()
	if state.User == nil || !state.User.IsSeller || state.User.StoreName != "Toko Buku Ayu" {
		t.Fatalf("state after promotion = %+v, want refreshed seller", state.User)
	}
}

func TestUpdateUserAsSellerFailureLeavesProfileUntouched(t *testing.T) {
	client := newFakeClient()
	client.session = session1()
	client.profiles["u1"] = domain.UserProfile{ID: "u1", Email: "a@b.c", FullName: "Ayu"}

	r := New(client, nil)
	r.Start(context.Background())
	client.execErr = &platform.Error{Kind: platform.KindTransport, Op: "update users", Message: "write failed"}

	err := r.UpdateUserAsSeller(context.Background(), domain.SellerApplication{StoreName: "Toko"})
	if err == nil {
		t.Fatal("expected write failure to propagate")
	}

	state := r.Snapshot()
	if state.User == nil || state.User.IsSeller || state.User.StoreName != "" {
		t.Fatalf("state after failed promotion = %+v, want unchanged buyer", state.User)
	}
}

func TestSignInEventDrivesResolution(t *testing.T) {
	client := newFakeClient()
	client.profiles["u-a@b.c"] = domain.UserProfile{ID: "u-a@b.c", Email: "a@b.c", FullName: "Ayu"}

	r := New(client, nil)
	r.Start(context.Background())
	if r.Snapshot().User != nil {
		t.Fatal("precondition: anonymous")
	}

	if err := r.SignIn(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("SignIn error = %v", err)
	}

	state := r.Snapshot()
	if state.User == nil || state.User.FullName != "Ayu" {
		t.Fatalf("state after sign-in = %+v, want resolved profile", state)
	}
}
