package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// Destination is where the UI goes after a redirect completes.
type Destination string

const (
	DestinationWelcome Destination = "welcome"
	DestinationLogin   Destination = "login"
)

// CallbackHandler finishes a browser redirect once control returns to the
// app. The backend session is the only evidence of success; the callback
// parameters are never trusted on their own.
type CallbackHandler struct {
	client client.Client
	log    logging.Logger
}

func NewCallbackHandler(c client.Client, log logging.Logger) *CallbackHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &CallbackHandler{client: c, log: log}
}

// Handle validates params against expectedState, exchanges the returned code
// when there is one, and then asks the backend for the session.
//
// An empty expectedState means no attempt is pending (for example the app
// was reopened on the callback route): any code is ignored and only the
// existing session decides the destination.
func (h *CallbackHandler) Handle(ctx context.Context, params url.Values, expectedState string) (dest Destination, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error(ctx, "callback check panicked", "panic", fmt.Sprint(r))
			dest, err = DestinationLogin, fmt.Errorf("callback check failed: %w", common.ErrSessionAbsent)
		}
	}()

	if e := params.Get("error"); e != "" {
		desc := params.Get("error_description")
		if desc == "" {
			desc = e
		}
		return DestinationLogin, fmt.Errorf("redirect: %s: %w", desc, common.ErrProvider)
	}

	if expectedState != "" {
		if subtle.ConstantTimeCompare([]byte(params.Get("state")), []byte(expectedState)) != 1 {
			return DestinationLogin, fmt.Errorf("redirect: state mismatch: %w", common.ErrCsrfMismatch)
		}
		if code := params.Get("code"); code != "" {
			if _, err := h.client.ExchangeCodeForSession(ctx, code); err != nil {
				h.log.Warn(ctx, "code exchange failed", "error", err)
			}
		}
	}

	s, err := h.client.GetSession(ctx)
	if err != nil {
		h.log.Warn(ctx, "session check failed", "error", err)
		return DestinationLogin, fmt.Errorf("%w: %w", common.ErrSessionAbsent, err)
	}
	if s == nil {
		return DestinationLogin, common.ErrSessionAbsent
	}
	return DestinationWelcome, nil
}
