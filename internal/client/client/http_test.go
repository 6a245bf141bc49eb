package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testAnonKey = "anon-key"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu sync.Mutex
	s  *models.Session
}

func (m *memStore) Load(context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *memStore) Save(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func (m *memStore) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}

func accessToken(t *testing.T, sub, email string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

// fakeBackend is a minimal GoTrue stand-in. Handlers can be overridden per test.
type fakeBackend struct {
	t        *testing.T
	srv      *httptest.Server
	calls    sync.Map // path+grant -> *atomic.Int32
	logoutFn func(w http.ResponseWriter)
	tokenFn  func(w http.ResponseWriter, grant string, body map[string]string)
	lastBody map[string]string
	mu       sync.Mutex
}

func newFakeBackend(t *testing.T) *fakeBackend {
	f := &fakeBackend{t: t}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBackend) count(key string) int {
	v, ok := f.calls.Load(key)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int32).Load())
}

func (f *fakeBackend) body() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func (f *fakeBackend) writeSession(w http.ResponseWriter, sub string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  accessToken(f.t, sub, sub+"@example.com", testNow.Add(time.Hour)),
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-" + sub,
		"user": map[string]any{
			"id":    sub,
			"email": sub + "@example.com",
			"identities": []map[string]any{
				{"identity_id": "ident-" + sub, "provider": "google", "identity_data": map[string]any{"email": sub + "@example.com"}},
			},
		},
	})
}

func (f *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != testAnonKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	key := r.URL.Path
	if g := r.URL.Query().Get("grant_type"); g != "" {
		key += "?" + g
	}
	v, _ := f.calls.LoadOrStore(key, new(atomic.Int32))
	v.(*atomic.Int32).Add(1)

	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.lastBody = body
	f.mu.Unlock()

	switch r.URL.Path {
	case "/auth/v1/token":
		grant := r.URL.Query().Get("grant_type")
		f.mu.Lock()
		tokenFn := f.tokenFn
		f.mu.Unlock()
		if tokenFn != nil {
			tokenFn(w, grant, body)
			return
		}
		sub := "user-1"
		if grant == "id_token" {
			sub = "user-" + body["provider"]
		}
		f.writeSession(w, sub)
	case "/auth/v1/signup":
		f.writeSession(w, "new-user")
	case "/auth/v1/user":
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ey") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "user-1", "email": "user-1@example.com"})
	case "/auth/v1/logout":
		if f.logoutFn != nil {
			f.logoutFn(w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, f *fakeBackend, store *memStore, now func() time.Time) *HTTPClient {
	t.Helper()
	if now == nil {
		now = func() time.Time { return testNow }
	}
	c, err := NewHTTPClient(Options{
		BaseURL: f.srv.URL,
		AnonKey: testAnonKey,
		Store:   store,
		Now:     now,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type eventSink struct {
	ch chan models.Event
}

func newEventSink() *eventSink { return &eventSink{ch: make(chan models.Event, 32)} }

func (s *eventSink) fn(ev models.Event) { s.ch <- ev }

func (s *eventSink) next(t *testing.T) models.Event {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func TestNewHTTPClient_RequiresURLAndKey(t *testing.T) {
	_, err := NewHTTPClient(Options{AnonKey: "k"})
	require.Error(t, err)
	_, err = NewHTTPClient(Options{BaseURL: "http://x"})
	require.Error(t, err)
}

func TestSignInWithPassword_SubjectMatchesUser(t *testing.T) {
	f := newFakeBackend(t)
	store := &memStore{}
	c := newTestClient(t, f, store, nil)

	s, err := c.SignInWithPassword(context.Background(), models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	assert.Equal(t, "user-1", s.UserID)
	require.NotNil(t, s.User)
	assert.Equal(t, s.UserID, s.User.ID)
	assert.True(t, testNow.Add(time.Hour).Equal(s.ExpiresAt))
	require.Len(t, s.User.Identities, 1)
	assert.Equal(t, models.ProviderGoogle, s.User.Identities[0].Provider)

	assert.Equal(t, map[string]string{"email": "a@b.com", "password": "secret1"}, f.body())
	assert.Equal(t, 1, f.count("/auth/v1/token?password"))
	assert.Equal(t, s, store.s)
}

func TestSignInWithIDToken_SendsCredential(t *testing.T) {
	f := newFakeBackend(t)
	c := newTestClient(t, f, &memStore{}, nil)

	s, err := c.SignInWithIDToken(context.Background(), models.IDTokenCredential{
		Provider:    models.ProviderApple,
		Token:       "id-token",
		Nonce:       "raw-nonce",
		AccessToken: "auth-code",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-apple", s.UserID)

	assert.Equal(t, map[string]string{
		"provider":     "apple",
		"id_token":     "id-token",
		"nonce":        "raw-nonce",
		"access_token": "auth-code",
	}, f.body())
}

func TestSubscribe_InitialThenOrderedEvents(t *testing.T) {
	f := newFakeBackend(t)
	c := newTestClient(t, f, &memStore{}, nil)
	ctx := context.Background()

	sink := newEventSink()
	unsubscribe := c.Subscribe(sink.fn)
	defer unsubscribe()

	initial := sink.next(t)
	assert.Equal(t, models.EventInitialSession, initial.Kind)
	assert.Nil(t, initial.Session)

	_, err := c.SignInWithPassword(ctx, models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = c.RefreshSession(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SignOut(ctx))

	ids := map[string]bool{initial.ID: true}
	for _, want := range []models.EventKind{models.EventSignedIn, models.EventTokenRefreshed, models.EventSignedOut} {
		ev := sink.next(t)
		assert.Equal(t, want, ev.Kind)
		assert.False(t, ids[ev.ID], "event ids must be unique")
		ids[ev.ID] = true
	}
}

func TestSubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	f := newFakeBackend(t)
	c := newTestClient(t, f, &memStore{}, nil)

	sink := newEventSink()
	unsubscribe := c.Subscribe(sink.fn)
	sink.next(t)
	unsubscribe()
	unsubscribe()

	_, err := c.SignInWithPassword(context.Background(), models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	select {
	case ev := <-sink.ch:
		t.Fatalf("unexpected event after unsubscribe: %v", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSignOut_BackendFailureKeepsSession(t *testing.T) {
	f := newFakeBackend(t)
	f.logoutFn = func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":500,"msg":"boom"}`))
	}
	store := &memStore{}
	c := newTestClient(t, f, store, nil)
	ctx := context.Background()

	_, err := c.SignInWithPassword(ctx, models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	err = c.SignOut(ctx)
	require.ErrorIs(t, err, common.ErrBackend)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NotNil(t, store.s)
}

func TestSignOut_AlreadyRevokedClearsSession(t *testing.T) {
	f := newFakeBackend(t)
	f.logoutFn = func(w http.ResponseWriter) { w.WriteHeader(http.StatusUnauthorized) }
	store := &memStore{}
	c := newTestClient(t, f, store, nil)
	ctx := context.Background()

	_, err := c.SignInWithPassword(ctx, models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, c.SignOut(ctx))

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Nil(t, store.s)
}

func TestGetSession_RestoredWithoutNetworkSignIn(t *testing.T) {
	f := newFakeBackend(t)
	store := &memStore{}
	ctx := context.Background()

	first := newTestClient(t, f, store, nil)
	signedIn, err := first.SignInWithPassword(ctx, models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newTestClient(t, f, store, nil)
	s, err := second.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, signedIn.UserID, s.UserID)
	assert.Equal(t, 1, f.count("/auth/v1/token?password"))
	assert.Equal(t, 0, f.count("/auth/v1/token?refresh_token"))
}

func TestGetSession_RefreshesNearExpiry(t *testing.T) {
	f := newFakeBackend(t)
	now := testNow
	c := newTestClient(t, f, &memStore{}, func() time.Time { return now })
	ctx := context.Background()

	_, err := c.SignInWithPassword(ctx, models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	sink := newEventSink()
	defer c.Subscribe(sink.fn)()
	sink.next(t)

	now = testNow.Add(time.Hour - 30*time.Second)
	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 1, f.count("/auth/v1/token?refresh_token"))
	assert.Equal(t, map[string]string{"refresh_token": "refresh-user-1"}, f.body())
	assert.Equal(t, models.EventTokenRefreshed, sink.next(t).Kind)
}

func TestGetSession_RejectedRefreshDropsSession(t *testing.T) {
	f := newFakeBackend(t)
	store := &memStore{}
	now := testNow
	c := newTestClient(t, f, store, func() time.Time { return now })
	ctx := context.Background()

	_, err := c.SignInWithPassword(ctx, models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	f.mu.Lock()
	f.tokenFn = func(w http.ResponseWriter, grant string, _ map[string]string) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`))
	}
	f.mu.Unlock()
	now = testNow.Add(2 * time.Hour)

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Nil(t, store.s)
}

func TestGetSession_SignOutDuringRefreshWins(t *testing.T) {
	f := newFakeBackend(t)
	store := &memStore{}
	now := testNow.Add(2 * time.Hour)
	c := newTestClient(t, f, store, func() time.Time { return now })
	ctx := context.Background()

	_, err := c.SignInWithPassword(ctx, models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	// park GetSession on the refresh lock until the sign-out has landed
	c.refreshMu.Lock()
	type result struct {
		s   *models.Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := c.GetSession(ctx)
		done <- result{s, err}
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, c.SignOut(ctx))
	c.refreshMu.Unlock()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Nil(t, r.s)
	case <-time.After(2 * time.Second):
		t.Fatal("GetSession did not return")
	}
	assert.Zero(t, f.count("/auth/v1/token?refresh_token"))
	assert.Nil(t, store.s)
}

func TestGetSession_RejectedRefreshKeepsNewerSignIn(t *testing.T) {
	f := newFakeBackend(t)
	now := testNow.Add(2 * time.Hour)
	c := newTestClient(t, f, &memStore{}, func() time.Time { return now })
	ctx := context.Background()

	_, err := c.SignInWithPassword(ctx, models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	f.mu.Lock()
	f.tokenFn = func(w http.ResponseWriter, grant string, _ map[string]string) {
		if grant != "refresh_token" {
			f.writeSession(w, "user-2")
			return
		}
		// a second sign-in completes while the refresh is still in flight
		_, err := c.SignInWithPassword(ctx, models.PasswordCredential{Email: "c@d.com", Password: "secret2"})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`))
	}
	f.mu.Unlock()

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "user-2", s.UserID)
}

func TestGetSession_NetworkFailureKeepsSession(t *testing.T) {
	f := newFakeBackend(t)
	now := testNow
	c := newTestClient(t, f, &memStore{}, func() time.Time { return now })
	ctx := context.Background()

	signedIn, err := c.SignInWithPassword(ctx, models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	f.srv.Close()
	now = testNow.Add(2 * time.Hour)

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, signedIn, s)

	_, err = c.RefreshSession(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, common.ErrBackend)
}

func TestRefreshSession_NoSession(t *testing.T) {
	f := newFakeBackend(t)
	c := newTestClient(t, f, &memStore{}, nil)

	_, err := c.RefreshSession(context.Background())
	require.ErrorIs(t, err, common.ErrSessionAbsent)
}

func TestGetUser(t *testing.T) {
	f := newFakeBackend(t)
	c := newTestClient(t, f, &memStore{}, nil)
	ctx := context.Background()

	_, err := c.GetUser(ctx)
	require.ErrorIs(t, err, common.ErrSessionAbsent)

	_, err = c.SignInWithPassword(ctx, models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	u, err := c.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", u.ID)
	assert.Equal(t, "user-1@example.com", u.Email)
}

func TestSignUp(t *testing.T) {
	f := newFakeBackend(t)
	c := newTestClient(t, f, &memStore{}, nil)

	s, err := c.SignUp(context.Background(), models.PasswordCredential{Email: "n@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "new-user", s.UserID)
}

func TestSignUp_PendingConfirmation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "u-9", "email": "n@b.com"})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(Options{BaseURL: srv.URL, AnonKey: testAnonKey})
	require.NoError(t, err)
	defer c.Close()

	s, err := c.SignUp(context.Background(), models.PasswordCredential{Email: "n@b.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestOAuthRedirect_PKCEExchange(t *testing.T) {
	f := newFakeBackend(t)
	c := newTestClient(t, f, &memStore{}, nil)
	ctx := context.Background()

	raw, err := c.SignInWithOAuthRedirect(ctx, models.ProviderGoogle, "http://127.0.0.1:9999/callback")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "google", q.Get("provider"))
	assert.Equal(t, "http://127.0.0.1:9999/callback", q.Get("redirect_to"))
	assert.Equal(t, "s256", q.Get("code_challenge_method"))
	assert.Equal(t, 0, f.count("/auth/v1/authorize"))

	s, err := c.ExchangeCodeForSession(ctx, "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "user-1", s.UserID)

	body := f.body()
	assert.Equal(t, "auth-code", body["auth_code"])
	assert.Equal(t, q.Get("code_challenge"), oauth2.S256ChallengeFromVerifier(body["code_verifier"]))

	_, err = c.ExchangeCodeForSession(ctx, "auth-code")
	require.ErrorIs(t, err, ErrNoPendingExchange)
}

func TestRefreshTick_RefreshesExpiringSession(t *testing.T) {
	f := newFakeBackend(t)
	now := testNow
	c := newTestClient(t, f, &memStore{}, func() time.Time { return now })

	_, err := c.SignInWithPassword(context.Background(), models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	c.refreshTick()
	assert.Equal(t, 0, f.count("/auth/v1/token?refresh_token"))

	now = testNow.Add(59 * time.Minute)
	c.refreshTick()
	assert.Equal(t, 1, f.count("/auth/v1/token?refresh_token"))
}

func TestStartAutoRefresh_StartStop(t *testing.T) {
	f := newFakeBackend(t)
	c := newTestClient(t, f, &memStore{}, nil)

	c.StartAutoRefresh(time.Minute)
	c.StartAutoRefresh(time.Minute)
	c.StopAutoRefresh()
	c.StopAutoRefresh()
}

func TestNetworkError_IsUnavailable(t *testing.T) {
	c, err := NewHTTPClient(Options{BaseURL: "http://127.0.0.1:1", AnonKey: testAnonKey})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.SignInWithPassword(context.Background(), models.PasswordCredential{Email: "a@b.com", Password: "secret1"})
	require.True(t, errors.Is(err, ErrUnavailable))
}
