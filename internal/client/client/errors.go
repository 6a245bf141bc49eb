package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

var (
	ErrUnavailable       = fmt.Errorf("server unavailable: %w", common.ErrBackend)
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNoPendingExchange = fmt.Errorf("no pending code exchange: %w", common.ErrBackend)
)

// APIError is a non-2xx answer from the identity backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() []error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return []error{common.ErrBackend, ErrUnauthorized}
	}
	return []error{common.ErrBackend}
}

// clientError reports whether the backend rejected the request itself
// (as opposed to failing to answer).
func clientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}

// GoTrue has used several error shapes over time; all of them are accepted.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Message          string          `json:"message"`
}

func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var code string
	_ = json.Unmarshal(body.Code, &code)

	apiErr.Code = firstNonEmpty(body.ErrorCode, code, body.Error)
	apiErr.Message = firstNonEmpty(body.Msg, body.ErrorDescription, body.Message, body.Error, http.StatusText(resp.StatusCode))
	return apiErr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
