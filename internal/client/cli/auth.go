package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/client/services"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// signUpSettle bounds how long Register waits for a sign-up to produce a session.
var signUpSettle = 2 * time.Second

// promptCredentials asks for an email and a password. The caller owns the
// returned password bytes and must wipe them.
func (a *App) promptCredentials() (string, []byte, error) {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return email, password, nil
}

// Register prompts for an email and password and creates an account.
// Depending on the backend the user may have to confirm the address before
// signing in; a session, if issued, arrives as a state change.
func (a *App) Register(ctx context.Context) error {
	email, password, err := a.promptCredentials()
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(password)

	signedIn := make(chan struct{}, 1)
	stop := a.auth.Watch(func(st models.AuthState) {
		if st.IsAuthenticated {
			select {
			case signedIn <- struct{}{}:
			default:
			}
		}
	})
	defer stop()

	if err := a.auth.SignUpWithEmail(ctx, email, string(password)); err != nil {
		return a.report(err)
	}

	// the session, if any, arrives as a state change shortly after sign-up
	select {
	case <-signedIn:
	case <-time.After(signUpSettle):
		fmt.Fprintln(a.out, "Account created. Check your inbox if confirmation is required.")
	case <-ctx.Done():
	}
	return nil
}

// Login prompts for credentials and signs in with email and password.
func (a *App) Login(ctx context.Context) error {
	email, password, err := a.promptCredentials()
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(password)

	return a.report(a.auth.SignInWithEmail(ctx, email, string(password)))
}

func (a *App) Google(ctx context.Context) error {
	return a.federated(ctx, models.ProviderGoogle, a.auth.SignInWithGoogle)
}

func (a *App) Apple(ctx context.Context) error {
	return a.federated(ctx, models.ProviderApple, a.auth.SignInWithApple)
}

func (a *App) federated(ctx context.Context, provider models.Provider, signIn func(context.Context) error) error {
	if kind, err := a.auth.Mechanism(provider); err == nil {
		a.log.Debug(ctx, "federated sign-in", "provider", provider, "mechanism", kind)
	}
	return a.report(signIn(ctx))
}

// Status prints the locally known auth state without touching the network.
func (a *App) Status(_ context.Context) error {
	st := a.auth.State()
	fmt.Fprintf(a.out, "phase: %s\n", st.Phase)
	if st.User != nil {
		fmt.Fprintf(a.out, "user:  %s (%s)\n", st.User.ID, displayName(st.User))
	}
	if st.Session != nil && !st.Session.ExpiresAt.IsZero() {
		fmt.Fprintf(a.out, "token expires: %s\n", st.Session.ExpiresAt.Local().Format(time.RFC3339))
	}
	return nil
}

// User fetches the current user record from the backend.
func (a *App) User(ctx context.Context) error {
	u, err := a.users.GetUser(ctx)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "id:    %s\nemail: %s\n", u.ID, u.Email)
	for _, id := range u.Identities {
		fmt.Fprintf(a.out, "  identity: %s\n", id.Provider)
	}
	return nil
}

// Logout signs out. If the backend cannot be reached the session is kept.
func (a *App) Logout(ctx context.Context) error {
	return a.report(a.auth.SignOut(ctx))
}

// report prints err for the user and returns it unchanged. Validation
// failures are shown as their bare message.
func (a *App) report(err error) error {
	if err == nil {
		return nil
	}
	if msg, ok := services.IsValidation(err); ok {
		fmt.Fprintln(a.out, msg)
		return err
	}
	if errors.Is(err, common.ErrSessionAbsent) {
		fmt.Fprintln(a.out, "Not signed in")
		return err
	}
	if errors.Is(err, client.ErrUnauthorized) {
		fmt.Fprintln(a.out, "The server rejected the session, please sign in again")
		return err
	}
	fmt.Fprintf(a.out, "error: %v\n", err)
	return err
}
