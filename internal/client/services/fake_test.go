package services

import (
	"context"
	"net/url"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/client/strategies"
)

var _ client.Client = (*fakeClient)(nil)

// fakeClient records calls and lets tests deliver change events by hand.
type fakeClient struct {
	mu sync.Mutex

	Session    *models.Session
	SessionErr error

	SignInSession *models.Session
	SignInErr     error
	SignUpSession *models.Session
	SignUpErr     error
	SignOutErr    error
	ExchangeErr   error

	AuthorizeURL string

	Calls          []string
	LastIDToken    models.IDTokenCredential
	LastPassword   models.PasswordCredential
	LastRedirectTo string
	LastCode       string
	GetSessionN    int
	SubscribeN     int

	subscriber func(models.Event)
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	f.mu.Unlock()
}

func (f *fakeClient) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *fakeClient) emit(kind models.EventKind, s *models.Session) {
	f.mu.Lock()
	fn := f.subscriber
	f.mu.Unlock()
	if fn != nil {
		fn(models.Event{ID: string(kind), Kind: kind, Session: s})
	}
}

func (f *fakeClient) SignUp(_ context.Context, cred models.PasswordCredential) (*models.Session, error) {
	f.record("SignUp")
	f.mu.Lock()
	f.LastPassword = cred
	f.mu.Unlock()
	return f.SignUpSession, f.SignUpErr
}

func (f *fakeClient) SignInWithPassword(_ context.Context, cred models.PasswordCredential) (*models.Session, error) {
	f.record("SignInWithPassword")
	f.mu.Lock()
	f.LastPassword = cred
	f.mu.Unlock()
	return f.SignInSession, f.SignInErr
}

func (f *fakeClient) SignInWithIDToken(_ context.Context, cred models.IDTokenCredential) (*models.Session, error) {
	f.record("SignInWithIDToken")
	f.mu.Lock()
	f.LastIDToken = cred
	f.mu.Unlock()
	return f.SignInSession, f.SignInErr
}

func (f *fakeClient) SignInWithOAuthRedirect(_ context.Context, _ models.Provider, redirectTo string) (string, error) {
	f.record("SignInWithOAuthRedirect")
	f.mu.Lock()
	f.LastRedirectTo = redirectTo
	f.mu.Unlock()
	return f.AuthorizeURL, nil
}

func (f *fakeClient) ExchangeCodeForSession(_ context.Context, code string) (*models.Session, error) {
	f.record("ExchangeCodeForSession")
	f.mu.Lock()
	f.LastCode = code
	if f.ExchangeErr == nil {
		f.Session = f.SignInSession
	}
	f.mu.Unlock()
	return f.SignInSession, f.ExchangeErr
}

func (f *fakeClient) RefreshSession(context.Context) (*models.Session, error) {
	f.record("RefreshSession")
	return f.Session, nil
}

func (f *fakeClient) SignOut(context.Context) error {
	f.record("SignOut")
	return f.SignOutErr
}

func (f *fakeClient) GetSession(context.Context) (*models.Session, error) {
	f.record("GetSession")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetSessionN++
	return f.Session, f.SessionErr
}

func (f *fakeClient) GetUser(context.Context) (*models.User, error) {
	return f.Session.CurrentUser(), nil
}

func (f *fakeClient) Subscribe(fn func(models.Event)) func() {
	f.mu.Lock()
	f.SubscribeN++
	f.subscriber = fn
	s := f.Session
	f.mu.Unlock()

	fn(models.Event{ID: "initial", Kind: models.EventInitialSession, Session: s})
	return func() {
		f.mu.Lock()
		f.subscriber = nil
		f.mu.Unlock()
	}
}

func (f *fakeClient) Close() error { return nil }

type funcStrategy struct {
	kind strategies.Kind
	fn   func(ctx context.Context, p models.Provider) (models.Credential, error)
}

func (s funcStrategy) Kind() strategies.Kind { return s.kind }

func (s funcStrategy) Acquire(ctx context.Context, p models.Provider) (models.Credential, error) {
	return s.fn(ctx, p)
}

type fakeBrowser struct {
	respond func(authURL, redirectURI string) (url.Values, error)
}

func (b *fakeBrowser) Open(_ context.Context, authURL, redirectURI string) (url.Values, error) {
	return b.respond(authURL, redirectURI)
}

func session(userID string) *models.Session {
	return &models.Session{
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		UserID:       userID,
		User:         &models.User{ID: userID, Email: userID + "@example.com"},
	}
}
