// Package strategies acquires provider credentials on each runtime surface.
//
// Every variant implements Strategy and returns exactly one
// models.Credential or an error matching one of the common sentinels
// (ErrProvider, ErrNoIDToken, ErrProviderUnavailable, ErrCsrfMismatch).
// Which variant serves a platform/provider pair is decided once, by the
// Selector built from a Table.
package strategies

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

// Kind names a strategy variant.
type Kind string

const (
	KindNativeToken     Kind = "native_token"
	KindNativeApple     Kind = "native_apple"
	KindBrowserRedirect Kind = "browser_redirect"
	KindBackendRedirect Kind = "backend_redirect"
	KindUnavailable     Kind = "unavailable"
)

// Strategy obtains a credential for provider. Implementations may open
// dialogs or browser windows and return only when that interaction settles.
type Strategy interface {
	Kind() Kind
	Acquire(ctx context.Context, provider models.Provider) (models.Credential, error)
}

// Unavailable is the strategy for a pair whose host SDK is missing.
type Unavailable struct {
	Reason string
}

func (Unavailable) Kind() Kind { return KindUnavailable }

func (u Unavailable) Acquire(_ context.Context, provider models.Provider) (models.Credential, error) {
	return nil, fmt.Errorf("%s: %s: %w", provider, u.Reason, common.ErrProviderUnavailable)
}

// BackendRedirect defers the whole exchange to the identity backend: the
// caller opens the backend's authorize URL and waits for the redirect.
type BackendRedirect struct {
	RedirectURI string
}

func NewBackendRedirect(redirectURI string) *BackendRedirect {
	return &BackendRedirect{RedirectURI: redirectURI}
}

func (*BackendRedirect) Kind() Kind { return KindBackendRedirect }

func (b *BackendRedirect) Acquire(_ context.Context, provider models.Provider) (models.Credential, error) {
	return models.OAuthRedirectIntent{Provider: provider, RedirectURI: b.RedirectURI}, nil
}
