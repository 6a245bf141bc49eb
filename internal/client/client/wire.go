package client

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

type passwordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type idTokenRequest struct {
	Provider    string `json:"provider"`
	IDToken     string `json:"id_token"`
	Nonce       string `json:"nonce,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type pkceRequest struct {
	AuthCode     string `json:"auth_code"`
	CodeVerifier string `json:"code_verifier"`
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	RefreshToken string   `json:"refresh_token"`
	User         *userDTO `json:"user"`
}

type identityDTO struct {
	ID           string         `json:"id"`
	IdentityID   string         `json:"identity_id"`
	Provider     string         `json:"provider"`
	IdentityData map[string]any `json:"identity_data"`
}

type userDTO struct {
	ID         string        `json:"id"`
	Email      string        `json:"email"`
	Identities []identityDTO `json:"identities"`
}

func (u *userDTO) toModel() *models.User {
	if u == nil || u.ID == "" {
		return nil
	}
	user := &models.User{ID: u.ID, Email: u.Email}
	for _, i := range u.Identities {
		email, _ := i.IdentityData["email"].(string)
		user.Identities = append(user.Identities, models.Identity{
			ID:       firstNonEmpty(i.IdentityID, i.ID),
			Provider: models.Provider(i.Provider),
			Email:    email,
		})
	}
	return user
}

// accessClaims are the access-token claims the client reads. The token is
// not verified here: the backend that issued it is the one that checks it.
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func parseAccessClaims(token string) *accessClaims {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return &accessClaims{}
	}
	return claims
}

func (r *tokenResponse) toSession(now time.Time) (*models.Session, error) {
	if r.AccessToken == "" {
		return nil, fmt.Errorf("token response without access token: %w", common.ErrBackend)
	}

	claims := parseAccessClaims(r.AccessToken)

	s := &models.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		UserID:       claims.Subject,
		User:         r.User.toModel(),
	}

	switch {
	case r.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(r.ExpiresAt, 0).UTC()
	case r.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second).UTC()
	case claims.ExpiresAt != nil:
		s.ExpiresAt = claims.ExpiresAt.UTC()
	}

	if s.UserID == "" && s.User != nil {
		s.UserID = s.User.ID
	}
	if s.User == nil && s.UserID != "" {
		s.User = &models.User{ID: s.UserID, Email: claims.Email}
	}
	if s.User != nil && s.User.ID != s.UserID {
		return nil, fmt.Errorf("token subject %q does not match user %q: %w", s.UserID, s.User.ID, common.ErrBackend)
	}

	return s, nil
}
