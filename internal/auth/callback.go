// Package auth completes the backend's Google OAuth login on the client
// side: it interprets the redirect the backend sends the browser to and
// records the outcome in the session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"inboxai/internal/api"
	"inboxai/internal/model"
	"inboxai/internal/session"
)

type State int

const (
	StateInitial State = iota
	StateError
	StateRedirecting
)

func (s State) String() string {
	switch s {
	case StateError:
		return "error"
	case StateRedirecting:
		return "redirecting"
	}
	return "initial"
}

// Messages shown on the callback page.
const (
	MsgAuthStateFailed = "인증 상태 설정에 실패했습니다."
	MsgNoToken         = "토큰을 받아오지 못했습니다."
	MsgLoginFailed     = "로그인 처리 중 오류가 발생했습니다."
	MsgNoCredentials   = "인증 정보가 없습니다."
)

// Query parameters that carry credentials and must not survive the
// callback.
var (
	tokenParams = []string{"token", "user_id", "email", "display_name", "profile_image_url"}
	codeParams  = []string{"code", "state"}
)

// Result is the outcome of one callback. CleanURL is the callback URL with
// every credential parameter removed.
type Result struct {
	State    State
	Message  string
	CleanURL *url.URL
}

// OK reports whether the user may continue to the inbox.
func (r Result) OK() bool { return r.State == StateRedirecting }

// TokenExchanger trades an authorization code for a backend token.
type TokenExchanger interface {
	GoogleCallback(ctx context.Context, code, state string) (*model.AuthToken, error)
}

type Callback struct {
	session  *session.Store
	exchange TokenExchanger
	log      *zap.Logger
	now      func() time.Time
}

func NewCallback(s *session.Store, ex TokenExchanger, log *zap.Logger) *Callback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Callback{session: s, exchange: ex, log: log, now: time.Now}
}

// Handle runs the callback for the redirect URL u. The session is written
// and then read back directly; a redirect is only reported when the read
// confirms an authenticated session.
func (c *Callback) Handle(ctx context.Context, u *url.URL) Result {
	q := u.Query()

	if raw := q.Get("error"); raw != "" {
		msg, err := url.PathUnescape(raw)
		if err != nil {
			msg = raw
		}
		c.log.Info("callback error from backend", zap.String("error", msg))
		return Result{State: StateError, Message: msg, CleanURL: stripped(u)}
	}

	if token, userID := q.Get("token"), q.Get("user_id"); token != "" && userID != "" {
		return c.handleToken(ctx, u, q, token, userID)
	}

	if code := q.Get("code"); code != "" {
		return c.handleCode(ctx, u, code, q.Get("state"))
	}

	return Result{State: StateError, Message: MsgNoCredentials, CleanURL: stripped(u)}
}

func (c *Callback) handleToken(ctx context.Context, u *url.URL, q url.Values, token, userID string) Result {
	clean := stripped(u)

	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		c.log.Warn("callback user_id not numeric", zap.String("user_id", userID))
		return Result{State: StateError, Message: MsgAuthStateFailed, CleanURL: clean}
	}

	if err := c.session.SetToken(ctx, token); err != nil {
		c.log.Error("store token", zap.Error(err))
		return Result{State: StateError, Message: MsgAuthStateFailed, CleanURL: clean}
	}
	user := &model.User{
		ID:              id,
		OAuthProvider:   "google",
		OAuthEmail:      q.Get("email"),
		DisplayName:     optional(q.Get("display_name")),
		ProfileImageURL: optional(q.Get("profile_image_url")),
		IsActive:        true,
		CreatedAt:       c.now().UTC().Format(time.RFC3339),
	}
	if err := c.session.SetUser(ctx, user); err != nil {
		c.log.Error("store user", zap.Error(err))
		return Result{State: StateError, Message: MsgAuthStateFailed, CleanURL: clean}
	}
	return c.verify(clean)
}

func (c *Callback) handleCode(ctx context.Context, u *url.URL, code, state string) Result {
	clean := stripped(u)

	tok, err := c.exchange.GoogleCallback(ctx, code, state)
	if err != nil {
		c.log.Warn("code exchange failed", zap.Error(err))
		return Result{State: StateError, Message: api.Message(err, MsgLoginFailed), CleanURL: clean}
	}
	if tok == nil || tok.AccessToken == "" {
		return Result{State: StateError, Message: MsgNoToken, CleanURL: clean}
	}

	if err := c.session.SetToken(ctx, tok.AccessToken); err != nil {
		c.log.Error("store token", zap.Error(err))
		return Result{State: StateError, Message: MsgAuthStateFailed, CleanURL: clean}
	}
	if tok.User != nil {
		err = c.session.SetUser(ctx, tok.User)
	} else {
		err = c.session.CheckAuth(ctx)
	}
	if err != nil {
		c.log.Error("store user", zap.Error(err))
		return Result{State: StateError, Message: MsgAuthStateFailed, CleanURL: clean}
	}
	return c.verify(clean)
}

func (c *Callback) verify(clean *url.URL) Result {
	if !c.session.IsAuthenticated() {
		return Result{State: StateError, Message: MsgAuthStateFailed, CleanURL: clean}
	}
	c.log.Info("login complete", zap.Int64("user_id", c.session.User().ID))
	return Result{State: StateRedirecting, CleanURL: clean}
}

// stripped copies u without any credential parameter, whichever branch
// the callback took.
func stripped(u *url.URL) *url.URL {
	out := *u
	q := u.Query()
	for _, p := range tokenParams {
		q.Del(p)
	}
	for _, p := range codeParams {
		q.Del(p)
	}
	out.RawQuery = q.Encode()
	return &out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ErrEmptyInput is returned by ParseRedirect for blank input.
var ErrEmptyInput = errors.New("empty callback input")

// ParseRedirect accepts what a user pastes after a failed loopback: the
// full redirect URL, just its query string, or a bare authorization code.
func ParseRedirect(input string) (*url.URL, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		u, err := url.Parse(input)
		if err != nil {
			return nil, fmt.Errorf("parse redirect URL: %w", err)
		}
		return u, nil
	}
	if q := strings.TrimPrefix(input, "?"); strings.Contains(q, "=") {
		if _, err := url.ParseQuery(q); err != nil {
			return nil, fmt.Errorf("parse query: %w", err)
		}
		return &url.URL{Path: "/callback", RawQuery: q}, nil
	}
	return &url.URL{Path: "/callback", RawQuery: url.Values{"code": {input}}.Encode()}, nil
}
