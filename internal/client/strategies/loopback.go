package strategies

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/gin-gonic/gin"
)

const defaultLoopbackTimeout = 5 * time.Minute

var ErrLoopbackTimeout = errors.New("timed out waiting for browser redirect")

const closeTabPage = `<!doctype html><html><body><p>Signed in. You can close this window.</p></body></html>`

// LoopbackBrowser is the terminal Browser: it shows the authorize URL through
// Show and receives the provider redirect on a local gin listener.
//
// The redirect URI must be an http URL on a loopback host with an explicit
// port. Both GET (query) and POST (form_post) callbacks are accepted; only the
// first one is used.
type LoopbackBrowser struct {
	Show    func(authURL string) error
	Timeout time.Duration
	Log     logging.Logger
}

var _ Browser = (*LoopbackBrowser)(nil)

func (b *LoopbackBrowser) Open(ctx context.Context, authURL, redirectURI string) (url.Values, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("redirect uri: %w", err)
	}
	if u.Scheme != "http" || !isLoopback(u.Hostname()) || u.Port() == "" {
		return nil, fmt.Errorf("redirect uri %q is not a loopback http address with a port", redirectURI)
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", u.Host, err)
	}

	results := make(chan url.Values, 1)
	srv := &http.Server{Handler: b.router(u.Path, results), ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if b.Show != nil {
		if err := b.Show(authURL); err != nil {
			return nil, err
		}
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = defaultLoopbackTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case params := <-results:
		return params, nil
	case <-timer.C:
		return nil, ErrLoopbackTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *LoopbackBrowser) router(path string, results chan<- url.Values) http.Handler {
	if path == "" {
		path = "/"
	}

	r := gin.New()
	r.Use(gin.Recovery())

	handle := func(c *gin.Context) {
		params := url.Values{}
		for k, v := range c.Request.URL.Query() {
			params[k] = append(params[k], v...)
		}
		if c.Request.Method == http.MethodPost {
			if err := c.Request.ParseForm(); err == nil {
				for k, v := range c.Request.PostForm {
					params[k] = append(params[k], v...)
				}
			}
		}

		select {
		case results <- params:
			if b.Log != nil {
				b.Log.Debug(c.Request.Context(), "redirect received", "method", c.Request.Method)
			}
		default:
		}

		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(closeTabPage))
	}

	r.GET(path, handle)
	r.POST(path, handle)
	return r
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
