package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dmitrijs2005/gophauth/internal/buildinfo"
	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/client/config"
	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/client/repositories"
	"github.com/dmitrijs2005/gophauth/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophauth/internal/client/repositories/session"
	"github.com/dmitrijs2005/gophauth/internal/client/services"
	"github.com/dmitrijs2005/gophauth/internal/client/strategies"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/telemetry"
)

const appleIssuer = "https://appleid.apple.com"

// userFetcher is the slice of client.Client the "user" command needs.
type userFetcher interface {
	GetUser(ctx context.Context) (*models.User, error)
}

type App struct {
	auth    services.AuthService
	users   userFetcher
	log     logging.Logger
	reader  *bufio.Reader
	out     io.Writer
	closers []func(context.Context) error
}

// NewApp wires storage, the backend client, sign-in strategies and the auth
// context from cfg. Call Close when done.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	a := &App{log: log, reader: bufio.NewReader(os.Stdin), out: os.Stdout}

	shutdown, err := telemetry.Setup(ctx, "gophauth-cli", buildinfo.Version, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	db, err := repositories.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		a.Close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })

	var keys session.KeySource = session.NewKeyringKeySource()
	if cfg.KeyBackend == config.KeyBackendPassphrase {
		keys = session.NewPassphraseKeySource(db, cfg.StorePassphrase)
	}
	store := session.NewEncryptedRepository(metadata.NewSQLiteRepository(db), keys, log)

	backend, err := client.NewHTTPClient(client.Options{
		BaseURL:       cfg.BackendURL,
		AnonKey:       cfg.AnonKey,
		Store:         store,
		Logger:        log,
		Timeout:       cfg.RequestTimeout,
		RefreshMargin: cfg.RefreshMargin,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	backend.StartAutoRefresh(cfg.RefreshInterval)
	a.closers = append(a.closers, func(context.Context) error { return backend.Close() })
	a.users = backend

	browser := &strategies.LoopbackBrowser{Show: a.showURL, Log: log}

	appleRedirect := strategies.BrowserRedirectConfig{
		ClientID:    cfg.AppleServiceID,
		RedirectURI: cfg.AppleRedirectURI,
		Endpoint:    strategies.AppleEndpoint,
		Scopes:      []string{"name", "email"},
	}
	if cfg.VerifyIDTokens && cfg.AppleServiceID != "" {
		provider, err := oidc.NewProvider(ctx, appleIssuer)
		if err != nil {
			// the backend still checks the token; only the local check is lost
			log.Warn(ctx, "apple id token verification disabled", "error", err)
		} else {
			appleRedirect.Verifier = provider.Verifier(&oidc.Config{ClientID: cfg.AppleServiceID})
		}
	}

	selector, err := strategies.NewSelector(models.Platform(cfg.Platform), strategies.DefaultTable(strategies.Hosts{
		Browser:       browser,
		AppleRedirect: appleRedirect,
		RedirectURI:   cfg.RedirectURL,
	}))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.auth = services.NewAuthContext(backend, selector, browser, log)
	return a, nil
}

func (a *App) showURL(authURL string) error {
	_, err := fmt.Fprintf(a.out, "Open this URL in your browser to continue:\n  %s\n", authURL)
	return err
}

// Run restores any saved session, then serves the REPL until the user exits
// or stdin closes. A session that cannot be restored leaves the user signed
// out rather than stopping the CLI.
func (a *App) Run(ctx context.Context) error {
	if err := a.auth.Initialize(ctx); err != nil {
		// the auth context has settled to signed out; a fresh sign-in still works
		a.log.Warn(ctx, "could not restore saved session", "error", err)
		fmt.Fprintln(a.out, "Saved session could not be restored, please sign in")
	}
	stop := a.auth.Watch(a.announce)
	defer stop()

	fmt.Fprintln(a.out, "Welcome to GophAuth CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
	return nil
}

// announce reports settled transitions; loading states are not printed.
func (a *App) announce(st models.AuthState) {
	switch st.Phase {
	case models.PhaseAuthenticated:
		fmt.Fprintf(a.out, "Signed in as %s\n", displayName(st.User))
	case models.PhaseUnauthenticated:
		fmt.Fprintln(a.out, "Signed out")
	}
}

func (a *App) isLoggedIn() bool {
	return a.auth.State().IsAuthenticated
}

func (a *App) getStatus() string {
	st := a.auth.State()
	switch {
	case st.Loading:
		return "(loading)"
	case st.IsAuthenticated:
		return fmt.Sprintf("(%s)", displayName(st.User))
	default:
		return "(signed out)"
	}
}

func displayName(u *models.User) string {
	if u == nil {
		return "?"
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// Close releases everything NewApp opened, last opened first.
func (a *App) Close(ctx context.Context) error {
	if a.auth != nil {
		a.auth.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
