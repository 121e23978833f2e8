package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// restClient talks to the hosted backend over its REST surface:
// /auth/v1 for identity and /rest/v1 for row-level table access.
type restClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	auth       *restAuth
}

func newRESTClient(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *restClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	c := &restClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
	c.auth = &restAuth{client: c, listeners: make(map[int]func(AuthEvent, *Session))}
	return c
}

func (c *restClient) Auth() Auth              { return c.auth }
func (c *restClient) From(table string) Query { return &restQuery{client: c, table: table} }
func (c *restClient) Offline() bool           { return false }

// bearer returns the token used for authorized calls: the session
// access token when signed in, otherwise the API key.
func (c *restClient) bearer() string {
	if s := c.auth.current(); s != nil {
		return s.AccessToken
	}
	return c.apiKey
}

func (c *restClient) do(ctx context.Context, op, method, path string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &Error{Kind: KindTransport, Op: op, Message: "encode payload", Err: err}
		}
		body = bytes.NewReader(data)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Message: "build request", Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	if method == http.MethodPost && strings.HasPrefix(path, "/rest/") {
		req.Header.Set("Prefer", "return=minimal")
	}
	return c.roundTrip(op, req, out, false)
}

func (c *restClient) roundTrip(op string, req *http.Request, out any, single bool) error {
	if single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return c.statusError(op, resp, single)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindTransport, Op: op, Message: "decode response", Err: err}
	}
	return nil
}

func (c *restClient) statusError(op string, resp *http.Response, single bool) error {
	var errResp struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	msg := errResp.Message
	if msg == "" {
		msg = errResp.Msg
	}
	if msg == "" {
		msg = errResp.Error
	}
	if msg == "" {
		msg = resp.Status
	}
	kind := KindTransport
	switch {
	// A single-row request against zero rows is the defined NotFound
	// outcome, not a failure of the call.
	case single && (resp.StatusCode == http.StatusNotAcceptable || resp.StatusCode == http.StatusNotFound || errResp.Code == "PGRST116"):
		kind = KindNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = KindAuth
	case resp.StatusCode == http.StatusConflict:
		kind = KindConflict
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "invalid"):
		kind = KindAuth
	}
	return &Error{Kind: kind, Op: op, Status: resp.StatusCode, Message: msg}
}

// ---- auth ----

type restAuth struct {
	client *restClient

	mu        sync.Mutex
	session   *Session
	listeners map[int]func(AuthEvent, *Session)
	nextID    int
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         SessionUser `json:"user"`
}

func (a *restAuth) Session(_ context.Context) (*Session, error) {
	return a.current(), nil
}

func (a *restAuth) current() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *restAuth) OnChange(fn func(event AuthEvent, s *Session)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

func (a *restAuth) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	q := url.Values{"grant_type": {"password"}}
	payload := map[string]string{"email": email, "password": password}
	var resp tokenResponse
	if err := a.client.do(ctx, "sign in", http.MethodPost, "/auth/v1/token", q, payload, &resp); err != nil {
		return nil, err
	}
	return a.adopt(resp), nil
}

func (a *restAuth) SignUp(ctx context.Context, email, password string) (*Session, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp tokenResponse
	if err := a.client.do(ctx, "sign up", http.MethodPost, "/auth/v1/signup", nil, payload, &resp); err != nil {
		return nil, err
	}
	return a.adopt(resp), nil
}

func (a *restAuth) SignOut(ctx context.Context) error {
	err := a.client.do(ctx, "sign out", http.MethodPost, "/auth/v1/logout", nil, nil, nil)
	a.set(nil, SignedOut)
	return err
}

// adopt installs the session from a token response and notifies
// listeners. Identity gaps are backfilled from the access token claims.
func (a *restAuth) adopt(resp tokenResponse) *Session {
	s := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}
	if resp.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	fillFromClaims(s)
	a.set(s, SignedIn)
	return s
}

func (a *restAuth) set(s *Session, event AuthEvent) {
	a.mu.Lock()
	a.session = s
	fns := make([]func(AuthEvent, *Session), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(event, s)
	}
}

// fillFromClaims derives identity and expiry from the access token when
// the token response omitted them. The token is not verified here; the
// provider signed it and the wrapper only reads its own session back.
func fillFromClaims(s *Session) {
	if s.AccessToken == "" {
		return
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return
	}
	if s.User.ID == "" {
		if sub, err := claims.GetSubject(); err == nil {
			s.User.ID = sub
		}
	}
	if s.User.Email == "" {
		if email, ok := claims["email"].(string); ok {
			s.User.Email = email
		}
	}
	if s.ExpiresAt.IsZero() {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			s.ExpiresAt = exp.Time
		}
	}
}

// ---- query ----

type filter struct {
	column string
	value  string
}

type restQuery struct {
	client  *restClient
	table   string
	columns string
	filters []filter
	order   string
	orderBy string
	update  any
	delete  bool
}

func (q *restQuery) Select(columns string) Query {
	q.columns = columns
	return q
}

func (q *restQuery) Eq(column, value string) Query {
	q.filters = append(q.filters, filter{column: column, value: value})
	return q
}

func (q *restQuery) Order(column string, ascending bool) Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.orderBy = column
	q.order = dir
	return q
}

func (q *restQuery) Update(values any) Query {
	q.update = values
	return q
}

func (q *restQuery) Delete() Query {
	q.delete = true
	return q
}

func (q *restQuery) values() url.Values {
	v := url.Values{}
	if q.columns != "" {
		v.Set("select", q.columns)
	}
	for _, f := range q.filters {
		v.Set(f.column, "eq."+f.value)
	}
	if q.orderBy != "" {
		v.Set("order", q.orderBy+"."+q.order)
	}
	return v
}

func (q *restQuery) path() string { return "/rest/v1/" + q.table }

func (q *restQuery) op(verb string) string { return fmt.Sprintf("%s %s", verb, q.table) }

func (q *restQuery) Rows(ctx context.Context, dest any) error {
	return q.client.do(ctx, q.op("select"), http.MethodGet, q.path(), q.values(), nil, dest)
}

func (q *restQuery) Single(ctx context.Context, dest any) error {
	u := q.path()
	if v := q.values(); len(v) > 0 {
		u += "?" + v.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.client.baseURL+u, nil)
	if err != nil {
		return &Error{Kind: KindTransport, Op: q.op("single"), Message: "build request", Err: err}
	}
	req.Header.Set("apikey", q.client.apiKey)
	req.Header.Set("Authorization", "Bearer "+q.client.bearer())
	return q.client.roundTrip(q.op("single"), req, dest, true)
}

func (q *restQuery) Insert(ctx context.Context, rows any) error {
	return q.client.do(ctx, q.op("insert"), http.MethodPost, q.path(), q.values(), rows, nil)
}

func (q *restQuery) Exec(ctx context.Context) error {
	switch {
	case q.update != nil:
		return q.client.do(ctx, q.op("update"), http.MethodPatch, q.path(), q.values(), q.update, nil)
	case q.delete:
		return q.client.do(ctx, q.op("delete"), http.MethodDelete, q.path(), q.values(), nil, nil)
	default:
		// An executed filter chain with no mutation is a read whose
		// rows the caller discards.
		return q.client.do(ctx, q.op("select"), http.MethodGet, q.path(), q.values(), nil, nil)
	}
}
