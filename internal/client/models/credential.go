package models

// CredentialKind tags the variant of a Credential.
type CredentialKind string

const (
	CredentialIDToken       CredentialKind = "id_token"
	CredentialPassword      CredentialKind = "password"
	CredentialOAuthRedirect CredentialKind = "oauth_redirect"
)

// Credential is exactly one of IDTokenCredential, PasswordCredential or
// OAuthRedirectIntent. The set is closed: only this package can add variants.
type Credential interface {
	Kind() CredentialKind
	credential()
}

// IDTokenCredential is produced by native SDKs and by provider-hosted
// redirects that hand the id token back to the app.
//
// For Apple, AccessToken carries the authorization code and Nonce is the
// raw (unhashed) nonce.
type IDTokenCredential struct {
	Provider    Provider
	Token       string
	Nonce       string
	AccessToken string
}

func (IDTokenCredential) Kind() CredentialKind { return CredentialIDToken }
func (IDTokenCredential) credential()          {}

// PasswordCredential is an email/password pair.
type PasswordCredential struct {
	Email    string
	Password string
}

func (PasswordCredential) Kind() CredentialKind { return CredentialPassword }
func (PasswordCredential) credential()          {}

// OAuthRedirectIntent asks for a browser exchange run by the backend. The
// real credential never reaches the client; the session appears once the
// browser returns.
type OAuthRedirectIntent struct {
	Provider    Provider
	RedirectURI string
}

func (OAuthRedirectIntent) Kind() CredentialKind { return CredentialOAuthRedirect }
func (OAuthRedirectIntent) credential()          {}
