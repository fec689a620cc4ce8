package api

import (
	"context"
	"net/http"
	"net/url"

	"inboxai/internal/model"
)

type AuthAPI struct {
	c *Client
}

// GoogleLoginURL is the page the browser must open to start Google login.
// The backend answers it with a redirect, so it is never fetched here.
func (a *AuthAPI) GoogleLoginURL() string {
	return a.c.base.JoinPath("auth", "google", "login").String()
}

// GoogleCallback exchanges an authorization code for a bearer token.
func (a *AuthAPI) GoogleCallback(ctx context.Context, code, state string) (*model.AuthToken, error) {
	q := url.Values{"code": {code}}
	if state != "" {
		q.Set("state", state)
	}
	var tok model.AuthToken
	err := a.c.do(ctx, call{
		method: http.MethodGet,
		route:  "/auth/google/callback",
		path:   "/auth/google/callback",
		query:  q,
	}, &tok)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}
