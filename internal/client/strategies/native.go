package strategies

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

// TokenSDK is a host-provided native sign-in SDK (Google Sign-In on mobile).
type TokenSDK interface {
	// CheckPlatformServices fails when the services the SDK depends on are
	// missing or outdated on the device.
	CheckPlatformServices(ctx context.Context) error
	// SignIn runs the interactive flow and returns the issued id token,
	// which may be empty.
	SignIn(ctx context.Context) (idToken string, err error)
}

// NativeToken signs in through an installed provider SDK.
type NativeToken struct {
	sdk TokenSDK
}

func NewNativeToken(sdk TokenSDK) *NativeToken {
	return &NativeToken{sdk: sdk}
}

func (*NativeToken) Kind() Kind { return KindNativeToken }

func (n *NativeToken) Acquire(ctx context.Context, provider models.Provider) (models.Credential, error) {
	if err := n.sdk.CheckPlatformServices(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", provider, common.ErrProviderUnavailable, err)
	}

	token, err := n.sdk.SignIn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s sign-in: %w: %w", provider, common.ErrProvider, err)
	}
	if token == "" {
		return nil, fmt.Errorf("%s: %w", provider, common.ErrNoIDToken)
	}

	return models.IDTokenCredential{Provider: provider, Token: token}, nil
}

// AppleOperation and AppleScope mirror the native authorization request.
type AppleOperation string

type AppleScope string

const (
	AppleOperationLogin AppleOperation = "LOGIN"

	AppleScopeFullName AppleScope = "FULL_NAME"
	AppleScopeEmail    AppleScope = "EMAIL"
)

type AppleCredentialState string

const (
	AppleCredentialAuthorized  AppleCredentialState = "AUTHORIZED"
	AppleCredentialRevoked     AppleCredentialState = "REVOKED"
	AppleCredentialNotFound    AppleCredentialState = "NOT_FOUND"
	AppleCredentialTransferred AppleCredentialState = "TRANSFERRED"
)

type AppleRequest struct {
	Operation AppleOperation
	Scopes    []AppleScope
}

type AppleResponse struct {
	User              string
	IdentityToken     string
	AuthorizationCode string
	Nonce             string
}

// AppleAuthorizer is the host's native Sign in with Apple bridge.
type AppleAuthorizer interface {
	PerformRequest(ctx context.Context, req AppleRequest) (*AppleResponse, error)
	CredentialState(ctx context.Context, user string) (AppleCredentialState, error)
}

// NativeApple runs the iOS authorization flow. A returned token is rejected
// unless the credential state for the user is still authorized.
type NativeApple struct {
	auth AppleAuthorizer
}

func NewNativeApple(auth AppleAuthorizer) *NativeApple {
	return &NativeApple{auth: auth}
}

func (*NativeApple) Kind() Kind { return KindNativeApple }

func (a *NativeApple) Acquire(ctx context.Context, provider models.Provider) (models.Credential, error) {
	if provider != models.ProviderApple {
		return nil, fmt.Errorf("%s via native apple: %w", provider, common.ErrProviderUnavailable)
	}

	// FULL_NAME must come first or some OS versions drop the name.
	resp, err := a.auth.PerformRequest(ctx, AppleRequest{
		Operation: AppleOperationLogin,
		Scopes:    []AppleScope{AppleScopeFullName, AppleScopeEmail},
	})
	if err != nil {
		return nil, fmt.Errorf("apple authorization: %w: %w", common.ErrProvider, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("apple authorization: empty response: %w", common.ErrProvider)
	}

	state, err := a.auth.CredentialState(ctx, resp.User)
	if err != nil {
		return nil, fmt.Errorf("apple credential state: %w: %w", common.ErrProvider, err)
	}
	if state != AppleCredentialAuthorized {
		return nil, fmt.Errorf("apple credential state %s: %w", state, common.ErrProvider)
	}

	if resp.IdentityToken == "" {
		return nil, fmt.Errorf("apple: %w", common.ErrNoIDToken)
	}
	if resp.AuthorizationCode == "" {
		return nil, fmt.Errorf("apple: missing authorization code: %w", common.ErrProvider)
	}

	return models.IDTokenCredential{
		Provider:    models.ProviderApple,
		Token:       resp.IdentityToken,
		Nonce:       resp.Nonce,
		AccessToken: resp.AuthorizationCode,
	}, nil
}
