package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"inboxai/internal/model"
)

type AccountsAPI struct {
	c *Client
}

// ErrNoRedirectURL is returned when the Gmail connect endpoint answers
// without a redirect_url.
var ErrNoRedirectURL = errors.New("failed to get Gmail connect URL")

func (a *AccountsAPI) List(ctx context.Context) ([]model.EmailAccount, error) {
	var out []model.EmailAccount
	err := a.c.do(ctx, call{
		method: http.MethodGet,
		route:  "/auth/email-accounts",
		path:   "/auth/email-accounts",
	}, &out)
	return out, err
}

// GmailConnectURL returns the Google consent URL that connects a Gmail
// mailbox to the signed-in user.
func (a *AccountsAPI) GmailConnectURL(ctx context.Context) (string, error) {
	var out struct {
		RedirectURL string `json:"redirect_url"`
	}
	err := a.c.do(ctx, call{
		method: http.MethodGet,
		route:  "/auth/email-accounts/gmail/connect",
		path:   "/auth/email-accounts/gmail/connect",
	}, &out)
	if err != nil {
		return "", err
	}
	if out.RedirectURL == "" {
		return "", ErrNoRedirectURL
	}
	return out.RedirectURL, nil
}

type connectResponse struct {
	EmailAccountID string `json:"email_account_id"`
	Email          string `json:"email"`
	Message        string `json:"message"`
}

// GmailCallback completes a Gmail connection. state carries the user id.
func (a *AccountsAPI) GmailCallback(ctx context.Context, code, state string) (*model.EmailAccount, error) {
	var out connectResponse
	err := a.c.do(ctx, call{
		method: http.MethodGet,
		route:  "/auth/email-accounts/gmail/callback",
		path:   "/auth/email-accounts/gmail/callback",
		query:  url.Values{"code": {code}, "state": {state}},
	}, &out)
	if err != nil {
		return nil, err
	}
	userID, _ := strconv.ParseInt(state, 10, 64)
	return connectedAccount(out, userID, "gmail"), nil
}

// ConnectNaver connects a Naver mailbox over IMAP credentials.
func (a *AccountsAPI) ConnectNaver(ctx context.Context, email, password string) (*model.EmailAccount, error) {
	var out connectResponse
	err := a.c.do(ctx, call{
		method: http.MethodPost,
		route:  "/auth/email-accounts/naver/connect",
		path:   "/auth/email-accounts/naver/connect",
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		return nil, err
	}
	return connectedAccount(out, 0, "naver"), nil
}

// Disconnect removes a connected account. Backends without the route answer
// 404 or 405, reported as ErrUnsupported.
func (a *AccountsAPI) Disconnect(ctx context.Context, id string) error {
	err := a.c.do(ctx, call{
		method: http.MethodDelete,
		route:  "/auth/email-accounts/{id}",
		path:   "/auth/email-accounts/" + url.PathEscape(id),
	}, nil)
	switch StatusCode(err) {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	return err
}

// connectedAccount fills the fields the connect endpoints do not return
// with the values the backend assigns to new accounts.
func connectedAccount(r connectResponse, userID int64, provider string) *model.EmailAccount {
	return &model.EmailAccount{
		ID:            r.EmailAccountID,
		UserID:        userID,
		ProviderType:  provider,
		EmailAddress:  r.Email,
		IsActive:      true,
		FetchInterval: model.DefaultFetchInterval,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
}
