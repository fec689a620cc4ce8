package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// ErrUnsupported reports an endpoint the backend does not serve.
var ErrUnsupported = errors.New("endpoint not supported by the backend")

// APIError is a non-2xx backend response. Detail carries the backend's
// {"detail": ...} payload untouched when it is a string.
type APIError struct {
	StatusCode int
	Detail     string
	Method     string
	Route      string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Route, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Route, e.StatusCode, http.StatusText(e.StatusCode))
}

const maxErrorBody = 64 << 10

func newAPIError(method, route string, resp *http.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode, Method: method, Route: route}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(b) == 0 {
		return e
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(b, &payload); err != nil || len(payload.Detail) == 0 {
		return e
	}
	e.Detail = decodeDetail(payload.Detail)
	return e
}

// decodeDetail handles both the plain string form and the validation-error
// list form ([{"loc": [...], "msg": "..."}]).
func decodeDetail(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg == "" {
				continue
			}
			if len(it.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return strings.Trim(string(raw), `"`)
}

// Message is the text a view shows for err: the backend's detail when there
// is one, otherwise fallback.
func Message(err error, fallback string) string {
	var ae *APIError
	if errors.As(err, &ae) && ae.Detail != "" {
		return ae.Detail
	}
	return fallback
}

// StatusCode returns the HTTP status behind err, or 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}
