// Package services holds the client's application services: the auth
// orchestrator (AuthContext) and the redirect callback handler.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/client/strategies"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/go-playground/validator/v10"
)

// AuthService is what UI layers use to sign users in and out.
//
// Contract:
//   - Initialize: load the current session once and start following changes.
//   - SignIn*/SignUp: validate, acquire a credential, submit it. They never
//     change State themselves; the change event that follows does.
//   - SignOut: on failure State is left untouched.
//   - Watch: observe every State change.
type AuthService interface {
	Initialize(ctx context.Context) error
	SignInWithEmail(ctx context.Context, email, password string) error
	SignUpWithEmail(ctx context.Context, email, password string) error
	SignInWithGoogle(ctx context.Context) error
	SignInWithApple(ctx context.Context) error
	SignOut(ctx context.Context) error
	State() models.AuthState
	Watch(fn func(models.AuthState)) (cancel func())
	Mechanism(provider models.Provider) (strategies.Kind, error)
	Close()
}

var _ AuthService = (*AuthContext)(nil)

// AuthContext is the process-wide authority for who is signed in. State is
// written only by the initial fetch and by the backend's change events.
type AuthContext struct {
	client   client.Client
	selector *strategies.Selector
	browser  strategies.Browser
	callback *CallbackHandler
	log      logging.Logger
	validate *validator.Validate

	initOnce sync.Once
	initErr  error

	mu          sync.RWMutex
	state       models.AuthState
	unsubscribe func()
	watchers    map[uint64]func(models.AuthState)
	nextWatcher uint64
}

// NewAuthContext wires the orchestrator. browser opens backend-hosted
// redirects and may be nil when the platform never needs one.
func NewAuthContext(c client.Client, selector *strategies.Selector, browser strategies.Browser, log logging.Logger) *AuthContext {
	if log == nil {
		log = logging.Discard()
	}
	return &AuthContext{
		client:   c,
		selector: selector,
		browser:  browser,
		callback: NewCallbackHandler(c, log),
		log:      log,
		validate: newValidator(),
		state:    models.AuthState{Phase: models.PhaseUninitialized},
		watchers: make(map[uint64]func(models.AuthState)),
	}
}

// Initialize fetches the current session and subscribes to changes. Only
// the first call does anything; later calls return its result.
func (a *AuthContext) Initialize(ctx context.Context) error {
	a.initOnce.Do(func() {
		a.set(models.AuthState{Phase: models.PhaseLoading, Loading: true})

		s, err := a.client.GetSession(ctx)
		if err != nil {
			a.log.Warn(ctx, "initial session fetch failed", "error", err)
			a.initErr = err
			s = nil
		}
		a.set(models.StateFromSession(s))

		unsubscribe := a.client.Subscribe(a.onEvent)
		a.mu.Lock()
		a.unsubscribe = unsubscribe
		a.mu.Unlock()
	})
	return a.initErr
}

func (a *AuthContext) onEvent(ev models.Event) {
	a.log.Debug(context.Background(), "auth event", "event", string(ev.Kind), "event_id", ev.ID)

	switch ev.Kind {
	case models.EventSignedOut:
		a.set(models.StateFromSession(nil))
	case models.EventInitialSession, models.EventSignedIn, models.EventTokenRefreshed:
		a.set(models.StateFromSession(ev.Session))
	}
}

func (a *AuthContext) set(st models.AuthState) {
	a.mu.Lock()
	a.state = st
	watchers := make([]func(models.AuthState), 0, len(a.watchers))
	for _, fn := range a.watchers {
		watchers = append(watchers, fn)
	}
	a.mu.Unlock()

	for _, fn := range watchers {
		fn(st)
	}
}

func (a *AuthContext) State() models.AuthState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *AuthContext) Watch(fn func(models.AuthState)) func() {
	a.mu.Lock()
	id := a.nextWatcher
	a.nextWatcher++
	a.watchers[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.watchers, id)
		a.mu.Unlock()
	}
}

func (a *AuthContext) SignInWithEmail(ctx context.Context, email, password string) error {
	if err := validateCredentials(a.validate, email, password); err != nil {
		return err
	}
	if _, err := a.client.SignInWithPassword(ctx, models.PasswordCredential{Email: email, Password: password}); err != nil {
		a.log.Warn(ctx, "password sign-in failed", "error", err)
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

// SignUpWithEmail registers the account. Success does not mean the user is
// signed in: the backend may require email confirmation first.
func (a *AuthContext) SignUpWithEmail(ctx context.Context, email, password string) error {
	if err := validateCredentials(a.validate, email, password); err != nil {
		return err
	}
	s, err := a.client.SignUp(ctx, models.PasswordCredential{Email: email, Password: password})
	if err != nil {
		a.log.Warn(ctx, "sign-up failed", "error", err)
		return fmt.Errorf("sign up: %w", err)
	}
	if s == nil {
		a.log.Info(ctx, "sign-up awaiting confirmation")
	}
	return nil
}

func (a *AuthContext) SignInWithGoogle(ctx context.Context) error {
	return a.signInWithProvider(ctx, models.ProviderGoogle)
}

// SignInWithApple uses the platform's Apple mechanism. On Android that is a
// provider-hosted browser flow rather than a native dialog; Mechanism
// reports which one applies.
func (a *AuthContext) SignInWithApple(ctx context.Context) error {
	return a.signInWithProvider(ctx, models.ProviderApple)
}

func (a *AuthContext) Mechanism(provider models.Provider) (strategies.Kind, error) {
	st, err := a.selector.For(provider)
	if err != nil {
		return "", err
	}
	return st.Kind(), nil
}

func (a *AuthContext) signInWithProvider(ctx context.Context, provider models.Provider) error {
	st, err := a.selector.For(provider)
	if err != nil {
		return err
	}

	log := a.log.With("platform", string(a.selector.Platform()), "provider", string(provider), "mechanism", string(st.Kind()))

	cred, err := acquire(ctx, st, provider)
	if err != nil {
		log.Warn(ctx, "credential acquisition failed", "error", err)
		return fmt.Errorf("%s sign in via %s: %w", provider, st.Kind(), err)
	}

	switch c := cred.(type) {
	case models.IDTokenCredential:
		_, err = a.client.SignInWithIDToken(ctx, c)
	case models.OAuthRedirectIntent:
		err = a.runRedirect(ctx, c)
	default:
		err = fmt.Errorf("unsupported credential %q: %w", cred.Kind(), common.ErrProvider)
	}
	if err != nil {
		log.Warn(ctx, "sign-in failed", "error", err)
		return fmt.Errorf("%s sign in via %s: %w", provider, st.Kind(), err)
	}
	return nil
}

// acquire keeps a misbehaving host SDK from crashing the caller.
func acquire(ctx context.Context, st strategies.Strategy, provider models.Provider) (cred models.Credential, err error) {
	defer func() {
		if r := recover(); r != nil {
			cred, err = nil, fmt.Errorf("strategy panic: %v: %w", r, common.ErrProvider)
		}
	}()

	cred, err = st.Acquire(ctx, provider)
	if err == nil && cred == nil {
		err = fmt.Errorf("strategy returned no credential: %w", common.ErrProvider)
	}
	return cred, err
}

// runRedirect drives a backend-hosted exchange: a fresh state is attached to
// the redirect target so the callback can be matched to this attempt.
func (a *AuthContext) runRedirect(ctx context.Context, intent models.OAuthRedirectIntent) error {
	if a.browser == nil {
		return fmt.Errorf("no browser for redirect sign-in: %w", common.ErrProviderUnavailable)
	}

	state := common.RandomURLToken(24)
	redirect, err := withState(intent.RedirectURI, state)
	if err != nil {
		return err
	}

	authURL, err := a.client.SignInWithOAuthRedirect(ctx, intent.Provider, redirect)
	if err != nil {
		return err
	}

	params, err := a.browser.Open(ctx, authURL, redirect)
	if err != nil {
		return fmt.Errorf("browser: %w: %w", common.ErrProvider, err)
	}

	_, err = a.callback.Handle(ctx, params, state)
	return err
}

func withState(redirectURI, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("redirect uri: %w", err)
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SignOut asks the backend to end the session. The signed-out state arrives
// as an event; if the backend call fails nothing changes locally.
func (a *AuthContext) SignOut(ctx context.Context) error {
	if err := a.client.SignOut(ctx); err != nil {
		a.log.Warn(ctx, "sign-out failed", "error", err)
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Close stops following backend events. It does not close the client.
func (a *AuthContext) Close() {
	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// IsValidation reports whether err is a form validation failure and returns
// its message.
func IsValidation(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message, true
	}
	return "", false
}
