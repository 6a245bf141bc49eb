package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/client/repositories/session"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const (
	authPath             = "/auth/v1"
	defaultTimeout       = 30 * time.Second
	defaultRefreshMargin = time.Minute
	tracerName           = "github.com/dmitrijs2005/gophauth/internal/client/client"
)

var _ Client = (*HTTPClient)(nil)

// Options configures an HTTPClient. BaseURL and AnonKey are required.
type Options struct {
	BaseURL       string
	AnonKey       string
	Store         session.Repository
	Logger        logging.Logger
	HTTPClient    *http.Client
	Timeout       time.Duration
	RefreshMargin time.Duration
	Now           func() time.Time
}

// HTTPClient is the GoTrue-compatible Client. It is the only owner of the
// current session and of its persisted copy.
type HTTPClient struct {
	authURL string
	anonKey string
	http    *http.Client
	store   session.Repository
	log     logging.Logger
	tracer  trace.Tracer
	margin  time.Duration
	timeout time.Duration
	now     func() time.Time

	// mu guards the fields below. Replacing the session and publishing the
	// matching event happen under it, so subscribers see replacements in order.
	mu       sync.Mutex
	current  *models.Session
	loaded   bool
	verifier string

	refreshMu sync.Mutex
	bus       *eventBus

	cronMu sync.Mutex
	cron   *cron.Cron
}

func NewHTTPClient(opts Options) (*HTTPClient, error) {
	if opts.BaseURL == "" || opts.AnonKey == "" {
		return nil, errors.New("backend url and anon key are required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}

	c := &HTTPClient{
		authURL: strings.TrimRight(opts.BaseURL, "/") + authPath,
		anonKey: opts.AnonKey,
		http:    opts.HTTPClient,
		store:   opts.Store,
		log:     opts.Logger,
		tracer:  otel.Tracer(tracerName),
		margin:  opts.RefreshMargin,
		timeout: opts.Timeout,
		now:     opts.Now,
		bus:     newEventBus(),
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	if c.margin <= 0 {
		c.margin = defaultRefreshMargin
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *HTTPClient) SignUp(ctx context.Context, cred models.PasswordCredential) (s *models.Session, err error) {
	ctx, span := c.tracer.Start(ctx, "auth.SignUp")
	defer func() { endSpan(span, err) }()

	var resp struct {
		tokenResponse
		userDTO
	}
	if err := c.do(ctx, http.MethodPost, "/signup", nil, "", passwordRequest{Email: cred.Email, Password: cred.Password}, &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		c.log.Info(ctx, "sign-up pending confirmation", "user_id", resp.userDTO.ID)
		return nil, nil
	}
	return c.commitToken(ctx, &resp.tokenResponse, models.EventSignedIn)
}

func (c *HTTPClient) SignInWithPassword(ctx context.Context, cred models.PasswordCredential) (s *models.Session, err error) {
	ctx, span := c.tracer.Start(ctx, "auth.SignInWithPassword")
	defer func() { endSpan(span, err) }()

	return c.grant(ctx, "password", passwordRequest{Email: cred.Email, Password: cred.Password}, models.EventSignedIn)
}

func (c *HTTPClient) SignInWithIDToken(ctx context.Context, cred models.IDTokenCredential) (s *models.Session, err error) {
	ctx, span := c.tracer.Start(ctx, "auth.SignInWithIDToken",
		trace.WithAttributes(attribute.String("auth.provider", string(cred.Provider))))
	defer func() { endSpan(span, err) }()

	return c.grant(ctx, "id_token", idTokenRequest{
		Provider:    string(cred.Provider),
		IDToken:     cred.Token,
		Nonce:       cred.Nonce,
		AccessToken: cred.AccessToken,
	}, models.EventSignedIn)
}

// SignInWithOAuthRedirect builds the backend /authorize URL for a PKCE flow
// and keeps the verifier for the following ExchangeCodeForSession. Starting a
// new flow replaces any pending verifier.
func (c *HTTPClient) SignInWithOAuthRedirect(ctx context.Context, provider models.Provider, redirectTo string) (string, error) {
	_, span := c.tracer.Start(ctx, "auth.SignInWithOAuthRedirect",
		trace.WithAttributes(attribute.String("auth.provider", string(provider))))
	defer span.End()

	verifier := oauth2.GenerateVerifier()

	q := url.Values{}
	q.Set("provider", string(provider))
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	q.Set("code_challenge_method", "s256")

	c.mu.Lock()
	c.verifier = verifier
	c.mu.Unlock()

	return c.authURL + "/authorize?" + q.Encode(), nil
}

func (c *HTTPClient) ExchangeCodeForSession(ctx context.Context, code string) (s *models.Session, err error) {
	ctx, span := c.tracer.Start(ctx, "auth.ExchangeCodeForSession")
	defer func() { endSpan(span, err) }()

	c.mu.Lock()
	verifier := c.verifier
	c.verifier = ""
	c.mu.Unlock()

	if verifier == "" {
		return nil, ErrNoPendingExchange
	}
	return c.grant(ctx, "pkce", pkceRequest{AuthCode: code, CodeVerifier: verifier}, models.EventSignedIn)
}

// GetSession returns the current session without a network round trip,
// unless it is about to expire, in which case it is refreshed first.
func (c *HTTPClient) GetSession(ctx context.Context) (s *models.Session, err error) {
	ctx, span := c.tracer.Start(ctx, "auth.GetSession")
	defer func() { endSpan(span, err) }()

	c.mu.Lock()
	err = c.ensureLoadedLocked(ctx)
	s = c.current
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if s == nil || !s.ExpiresWithin(c.now(), c.margin) {
		return s, nil
	}

	refreshed, err := c.refresh(ctx, s)
	switch {
	case err == nil:
		return refreshed, nil
	case errors.Is(err, common.ErrSessionAbsent):
		return nil, nil
	case !clientError(err):
		c.log.Warn(ctx, "session refresh failed, keeping current session", "error", err)
	}

	// s may have been signed out or replaced while the refresh was in flight
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, nil
}

func (c *HTTPClient) RefreshSession(ctx context.Context) (s *models.Session, err error) {
	ctx, span := c.tracer.Start(ctx, "auth.RefreshSession")
	defer func() { endSpan(span, err) }()

	c.mu.Lock()
	err = c.ensureLoadedLocked(ctx)
	cur := c.current
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, common.ErrSessionAbsent
	}
	return c.refresh(ctx, cur)
}

func (c *HTTPClient) GetUser(ctx context.Context) (u *models.User, err error) {
	ctx, span := c.tracer.Start(ctx, "auth.GetUser")
	defer func() { endSpan(span, err) }()

	s, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, common.ErrSessionAbsent
	}

	var resp userDTO
	if err := c.do(ctx, http.MethodGet, "/user", nil, s.AccessToken, nil, &resp); err != nil {
		return nil, err
	}
	u = resp.toModel()
	if u == nil {
		return nil, fmt.Errorf("empty user: %w", common.ErrBackend)
	}
	return u, nil
}

// SignOut revokes the session server-side and then forgets it locally. A
// backend answer of 401/403/404 means the session is already gone there and
// is treated as success. Any other failure leaves the session in place.
func (c *HTTPClient) SignOut(ctx context.Context) (err error) {
	ctx, span := c.tracer.Start(ctx, "auth.SignOut")
	defer func() { endSpan(span, err) }()

	c.mu.Lock()
	err = c.ensureLoadedLocked(ctx)
	cur := c.current
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}

	q := url.Values{"scope": {"global"}}
	if err := c.do(ctx, http.MethodPost, "/logout", q, cur.AccessToken, nil, nil); err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return err
		}
		switch apiErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			c.log.Debug(ctx, "session already revoked", "status", apiErr.Status)
		default:
			return err
		}
	}

	return c.replace(ctx, nil, models.EventSignedOut, nil)
}

// Subscribe registers fn for change events. fn first receives
// INITIAL_SESSION with the session known at subscription time.
func (c *HTTPClient) Subscribe(fn func(models.Event)) func() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoadedLocked(ctx); err != nil {
		c.log.Warn(ctx, "could not load stored session", "error", err)
	}
	return c.bus.subscribe(fn, newEvent(models.EventInitialSession, c.current))
}

func (c *HTTPClient) Close() error {
	c.StopAutoRefresh()
	c.bus.close()
	return nil
}

func (c *HTTPClient) grant(ctx context.Context, grantType string, body any, kind models.EventKind) (*models.Session, error) {
	var resp tokenResponse
	q := url.Values{"grant_type": {grantType}}
	if err := c.do(ctx, http.MethodPost, "/token", q, "", body, &resp); err != nil {
		return nil, err
	}
	return c.commitToken(ctx, &resp, kind)
}

func (c *HTTPClient) commitToken(ctx context.Context, resp *tokenResponse, kind models.EventKind) (*models.Session, error) {
	s, err := resp.toSession(c.now())
	if err != nil {
		return nil, err
	}
	if err := c.replace(ctx, s, kind, nil); err != nil {
		return nil, err
	}
	c.log.Info(ctx, "session updated", "event", string(kind), "user_id", s.UserID)
	return s, nil
}

// refresh exchanges old's refresh token. Concurrent callers share one round
// trip: a caller that finds the session already replaced returns the newer
// one. A 4xx answer drops the session.
func (c *HTTPClient) refresh(ctx context.Context, old *models.Session) (*models.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur != old {
		if cur == nil {
			return nil, common.ErrSessionAbsent
		}
		return cur, nil
	}

	var resp tokenResponse
	q := url.Values{"grant_type": {"refresh_token"}}
	err := c.do(ctx, http.MethodPost, "/token", q, "", refreshRequest{RefreshToken: old.RefreshToken}, &resp)
	if err != nil {
		if clientError(err) {
			c.log.Warn(ctx, "refresh rejected, dropping session", "error", err)
			if rerr := c.replace(ctx, nil, models.EventSignedOut, old); rerr != nil {
				c.log.Error(ctx, "failed to drop rejected session", "error", rerr)
			}
		}
		return nil, err
	}

	s, err := resp.toSession(c.now())
	if err != nil {
		return nil, err
	}
	if err := c.replace(ctx, s, models.EventTokenRefreshed, old); err != nil {
		return nil, err
	}
	return s, nil
}

// replace makes s the current session, persists it and publishes kind. When
// expect is non-nil the swap only happens if expect is still current.
//
// A sign-in that cannot be persisted still takes effect for this process. A
// sign-out that cannot delete the record fails and changes nothing.
func (c *HTTPClient) replace(ctx context.Context, s *models.Session, kind models.EventKind, expect *models.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expect != nil && c.current != expect {
		return nil
	}

	if c.store != nil {
		var err error
		if s == nil {
			err = c.store.Delete(ctx)
		} else {
			err = c.store.Save(ctx, s)
		}
		if err != nil && s == nil {
			return fmt.Errorf("delete stored session: %w", err)
		}
		if err != nil {
			c.log.Warn(ctx, "failed to persist session", "error", err)
		}
	}

	c.current = s
	c.loaded = true
	c.bus.publish(newEvent(kind, s))
	return nil
}

func (c *HTTPClient) ensureLoadedLocked(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	if c.store != nil {
		s, err := c.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load stored session: %w", err)
		}
		c.current = s
	}
	c.loaded = true
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, bearer string, in, out any) error {
	u := c.authURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set(common.APIKeyHeaderName, c.anonKey)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+bearer)
	req.Header.Set(common.ClientInfoHeaderName, common.ClientInfo)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w: %w", common.ErrBackend, err)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
