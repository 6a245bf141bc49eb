package strategies

import (
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
)

// Table maps every (platform, provider) pair to its strategy.
type Table map[models.Platform]map[models.Provider]Strategy

// Validate fails unless every supported pair has a strategy.
func (t Table) Validate() error {
	for _, p := range models.Platforms() {
		for _, prov := range models.Providers() {
			if t[p][prov] == nil {
				return fmt.Errorf("no strategy for %s/%s", p, prov)
			}
		}
	}
	return nil
}

// Hosts are the host-supplied adapters DefaultTable wires in. Nil adapters
// make the dependent pairs fail with ErrProviderUnavailable.
type Hosts struct {
	GoogleSDK     TokenSDK
	Apple         AppleAuthorizer
	Browser       Browser
	AppleRedirect BrowserRedirectConfig
	// RedirectURI is where the identity backend sends the browser after a
	// backend-hosted exchange.
	RedirectURI string
}

// DefaultTable is the stock mapping: native SDKs on mobile, the Apple web
// flow on Android, and backend-hosted redirects on the web.
func DefaultTable(h Hosts) Table {
	google := Strategy(Unavailable{Reason: "google sign-in sdk not installed"})
	if h.GoogleSDK != nil {
		google = NewNativeToken(h.GoogleSDK)
	}

	iosApple := Strategy(Unavailable{Reason: "apple authorization not available"})
	if h.Apple != nil {
		iosApple = NewNativeApple(h.Apple)
	}

	androidApple := Strategy(Unavailable{Reason: "apple service id or browser not configured"})
	if h.Browser != nil && h.AppleRedirect.ClientID != "" {
		androidApple = NewBrowserRedirect(h.Browser, h.AppleRedirect)
	}

	web := NewBackendRedirect(h.RedirectURI)

	return Table{
		models.PlatformIOS: {
			models.ProviderGoogle: google,
			models.ProviderApple:  iosApple,
		},
		models.PlatformAndroid: {
			models.ProviderGoogle: google,
			models.ProviderApple:  androidApple,
		},
		models.PlatformWeb: {
			models.ProviderGoogle: web,
			models.ProviderApple:  web,
		},
	}
}

// Selector resolves the strategy for the running platform.
type Selector struct {
	platform models.Platform
	row      map[models.Provider]Strategy
}

func NewSelector(platform models.Platform, table Table) (*Selector, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Selector{platform: platform, row: table[platform]}, nil
}

func (s *Selector) Platform() models.Platform { return s.platform }

func (s *Selector) For(provider models.Provider) (Strategy, error) {
	st, ok := s.row[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	return st, nil
}
