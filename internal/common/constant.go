package common

// Header names understood by the identity backend.
const (
	APIKeyHeaderName        = "apikey"
	AuthorizationHeaderName = "Authorization"
	ClientInfoHeaderName    = "X-Client-Info"
)

// ClientInfo identifies this client to the backend.
const ClientInfo = "gophauth-go/1.0"
