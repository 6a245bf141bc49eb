package strategies

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// AppleEndpoint is Sign in with Apple's authorization endpoint.
var AppleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://appleid.apple.com/auth/authorize",
	TokenURL: "https://appleid.apple.com/auth/token",
}

// Browser sends the user to a provider page and waits for the redirect back.
type Browser interface {
	// Open shows authURL and returns the parameters (query or form body)
	// delivered to redirectURI.
	Open(ctx context.Context, authURL, redirectURI string) (url.Values, error)
}

// IDTokenVerifier checks an id token's signature, issuer and audience.
// *oidc.IDTokenVerifier satisfies it.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// BrowserRedirectConfig describes a provider-hosted redirect flow.
type BrowserRedirectConfig struct {
	ClientID    string
	RedirectURI string
	Endpoint    oauth2.Endpoint
	Scopes      []string
	// Verifier is optional; without it the id token is decoded unverified
	// and the backend remains the one to check its signature.
	Verifier IDTokenVerifier
}

// BrowserRedirect runs a provider-hosted OAuth flow that returns both an
// authorization code and an id token (Sign in with Apple on Android).
//
// A new nonce and state are generated for every attempt. The provider sees
// the SHA-256 of the nonce and must echo it in the id token; the callback
// must echo the state.
type BrowserRedirect struct {
	cfg      BrowserRedirectConfig
	oauth    *oauth2.Config
	browser  Browser
	newNonce func() string
}

func NewBrowserRedirect(browser Browser, cfg BrowserRedirectConfig) *BrowserRedirect {
	return &BrowserRedirect{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Endpoint:    cfg.Endpoint,
			Scopes:      cfg.Scopes,
		},
		browser:  browser,
		newNonce: uuid.NewString,
	}
}

func (*BrowserRedirect) Kind() Kind { return KindBrowserRedirect }

func (b *BrowserRedirect) Acquire(ctx context.Context, provider models.Provider) (models.Credential, error) {
	rawNonce := b.newNonce()
	state := b.newNonce()
	hashedNonce := cryptox.HashNonce(rawNonce)

	authURL := b.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_type", "code id_token"),
		oauth2.SetAuthURLParam("response_mode", "form_post"),
		oauth2.SetAuthURLParam("nonce", hashedNonce),
	)

	params, err := b.browser.Open(ctx, authURL, b.cfg.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("%s redirect: %w: %w", provider, common.ErrProvider, err)
	}

	if e := params.Get("error"); e != "" {
		return nil, fmt.Errorf("%s redirect: %s: %w", provider, e, common.ErrProvider)
	}
	if subtle.ConstantTimeCompare([]byte(params.Get("state")), []byte(state)) != 1 {
		return nil, fmt.Errorf("%s redirect: state mismatch: %w", provider, common.ErrCsrfMismatch)
	}

	idToken := params.Get("id_token")
	if idToken == "" {
		return nil, fmt.Errorf("%s redirect: %w", provider, common.ErrNoIDToken)
	}
	code := params.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%s redirect: missing authorization code: %w", provider, common.ErrProvider)
	}

	nonce, err := b.tokenNonce(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%s redirect: %w: %w", provider, common.ErrProvider, err)
	}
	if subtle.ConstantTimeCompare([]byte(nonce), []byte(hashedNonce)) != 1 {
		return nil, fmt.Errorf("%s redirect: nonce mismatch: %w", provider, common.ErrCsrfMismatch)
	}

	return models.IDTokenCredential{
		Provider:    provider,
		Token:       idToken,
		Nonce:       rawNonce,
		AccessToken: code,
	}, nil
}

func (b *BrowserRedirect) tokenNonce(ctx context.Context, raw string) (string, error) {
	if b.cfg.Verifier != nil {
		tok, err := b.cfg.Verifier.Verify(ctx, raw)
		if err != nil {
			return "", err
		}
		return tok.Nonce, nil
	}

	var claims struct {
		Nonce string `json:"nonce"`
		jwt.RegisteredClaims
	}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return "", errors.New("malformed id token")
	}
	return claims.Nonce, nil
}
