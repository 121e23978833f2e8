package platform

import (
	"context"
	"encoding/json"
)

// stubClient answers every platform call locally. It is selected when
// credentials are absent and stays selected for the process lifetime.
//
// The resolution policy is deliberate and asymmetric: list reads
// degrade to "no rows" so browse views render empty instead of
// crashing, while single-row reads and all writes fail with an offline
// error so mutations are visibly rejected.
type stubClient struct {
	auth stubAuth
}

func newStubClient() *stubClient { return &stubClient{} }

func (c *stubClient) Auth() Auth              { return c.auth }
func (c *stubClient) From(table string) Query { return stubQuery{table: table} }
func (c *stubClient) Offline() bool           { return true }

type stubAuth struct{}

func (stubAuth) Session(context.Context) (*Session, error) { return nil, nil }

func (stubAuth) OnChange(func(event AuthEvent, s *Session)) func() {
	return func() {}
}

func (stubAuth) SignInWithPassword(context.Context, string, string) (*Session, error) {
	return nil, offlineError("sign in")
}

func (stubAuth) SignUp(context.Context, string, string) (*Session, error) {
	return nil, offlineError("sign up")
}

func (stubAuth) SignOut(context.Context) error {
	return offlineError("sign out")
}

type stubQuery struct {
	table string
}

func (q stubQuery) Select(string) Query        { return q }
func (q stubQuery) Eq(string, string) Query    { return q }
func (q stubQuery) Order(string, bool) Query   { return q }
func (q stubQuery) Update(any) Query           { return q }
func (q stubQuery) Delete() Query              { return q }

func (q stubQuery) Rows(_ context.Context, dest any) error {
	if dest == nil {
		return nil
	}
	return json.Unmarshal([]byte("[]"), dest)
}

func (q stubQuery) Single(context.Context, any) error {
	return offlineError("single " + q.table)
}

func (q stubQuery) Insert(context.Context, any) error {
	return offlineError("insert " + q.table)
}

func (q stubQuery) Exec(context.Context) error { return nil }
