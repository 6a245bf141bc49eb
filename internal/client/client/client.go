package client

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
)

// Client is the identity backend facade. Sign-in calls return the new session
// but callers that track auth state should rely on Subscribe instead.
type Client interface {
	// SignUp registers an account. The session is nil when the backend
	// requires email confirmation first.
	SignUp(ctx context.Context, cred models.PasswordCredential) (*models.Session, error)
	SignInWithPassword(ctx context.Context, cred models.PasswordCredential) (*models.Session, error)
	SignInWithIDToken(ctx context.Context, cred models.IDTokenCredential) (*models.Session, error)
	// SignInWithOAuthRedirect returns the URL the browser must open. The
	// session is produced later by ExchangeCodeForSession.
	SignInWithOAuthRedirect(ctx context.Context, provider models.Provider, redirectTo string) (string, error)
	ExchangeCodeForSession(ctx context.Context, code string) (*models.Session, error)
	RefreshSession(ctx context.Context) (*models.Session, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*models.Session, error)
	GetUser(ctx context.Context) (*models.User, error)
	Subscribe(fn func(models.Event)) (unsubscribe func())
	Close() error
}
