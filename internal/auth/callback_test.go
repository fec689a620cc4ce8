package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxai/internal/api"
	"inboxai/internal/model"
	"inboxai/internal/session"
)

type fakeExchanger struct {
	calls []string
	tok   *model.AuthToken
	err   error
}

func (f *fakeExchanger) GoogleCallback(_ context.Context, code, state string) (*model.AuthToken, error) {
	f.calls = append(f.calls, code+"|"+state)
	return f.tok, f.err
}

func newCallback(t *testing.T, ex TokenExchanger) (*Callback, *session.Store, *session.MemoryStorage) {
	t.Helper()
	mem := session.NewMemoryStorage()
	s, err := session.New(context.Background(), mem, nil, nil)
	require.NoError(t, err)
	return NewCallback(s, ex, nil), s, mem
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestCallbackError(t *testing.T) {
	ex := &fakeExchanger{}
	cb, s, _ := newCallback(t, ex)

	res := cb.Handle(context.Background(), mustURL(t, "http://127.0.0.1:3000/callback?error=foo&code=abc"))
	assert.Equal(t, StateError, res.State)
	assert.Equal(t, "foo", res.Message)
	assert.False(t, res.OK())
	assert.Empty(t, ex.calls)
	assert.False(t, s.IsAuthenticated())
}

func TestCallbackStripsEveryCredential(t *testing.T) {
	ex := &fakeExchanger{err: errors.New("exchange failed")}
	cb, _, _ := newCallback(t, ex)

	for _, raw := range []string{
		"/callback?error=x&token=T&user_id=5&code=c&state=s",
		"/callback?code=c&token=T&email=a@b.com",
		"/callback?token=T&user_id=abc&code=c",
		"/callback?token=T&next=inbox",
	} {
		res := cb.Handle(context.Background(), mustURL(t, raw))
		require.Equal(t, StateError, res.State, raw)
		q := res.CleanURL.Query()
		for _, p := range append(append([]string{}, tokenParams...), codeParams...) {
			assert.False(t, q.Has(p), "%s: param %s must be stripped", raw, p)
		}
	}

	res := cb.Handle(context.Background(), mustURL(t, "/callback?error=x&token=T&next=inbox"))
	assert.Equal(t, "x", res.CleanURL.Query().Get("error"))
	assert.Equal(t, "inbox", res.CleanURL.Query().Get("next"))
}

func TestCallbackErrorDecodedTwice(t *testing.T) {
	cb, _, _ := newCallback(t, &fakeExchanger{})
	// The backend percent-encodes the message before putting it in the query.
	res := cb.Handle(context.Background(), mustURL(t, "/callback?error=access%2520denied"))
	assert.Equal(t, "access denied", res.Message)

	res = cb.Handle(context.Background(), mustURL(t, "/callback?error=100%25"))
	assert.Equal(t, "100%", res.Message)
}

func TestCallbackToken(t *testing.T) {
	cb, s, mem := newCallback(t, &fakeExchanger{})

	res := cb.Handle(context.Background(), mustURL(t,
		"http://127.0.0.1:3000/callback?token=T&user_id=5&email=a@b.com&display_name=Kim&next=inbox"))
	require.True(t, res.OK(), res.Message)

	tok, ok, err := mem.Get(context.Background(), session.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "T", tok)

	u := s.User()
	require.NotNil(t, u)
	assert.Equal(t, int64(5), u.ID)
	assert.Equal(t, "a@b.com", u.OAuthEmail)
	assert.Equal(t, "Kim", u.Name())
	assert.Equal(t, "google", u.OAuthProvider)
	assert.Nil(t, u.ProfileImageURL)

	q := res.CleanURL.Query()
	for _, p := range tokenParams {
		assert.False(t, q.Has(p), "param %s must be stripped", p)
	}
	assert.Equal(t, "inbox", q.Get("next"))
}

func TestCallbackTokenBadUserID(t *testing.T) {
	cb, s, _ := newCallback(t, &fakeExchanger{})
	res := cb.Handle(context.Background(), mustURL(t, "/callback?token=T&user_id=abc"))
	assert.Equal(t, StateError, res.State)
	assert.Equal(t, MsgAuthStateFailed, res.Message)
	assert.False(t, s.IsAuthenticated())
	assert.False(t, res.CleanURL.Query().Has("token"))
}

func TestCallbackCode(t *testing.T) {
	ex := &fakeExchanger{tok: &model.AuthToken{
		AccessToken: "jwt",
		TokenType:   "bearer",
		User:        &model.User{ID: 9, OAuthEmail: "x@y.com"},
	}}
	cb, s, _ := newCallback(t, ex)

	res := cb.Handle(context.Background(), mustURL(t, "/callback?code=abc&state=st"))
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, []string{"abc|st"}, ex.calls)
	assert.Equal(t, "jwt", s.Token())
	assert.Equal(t, int64(9), s.User().ID)
	assert.Empty(t, res.CleanURL.RawQuery)
}

func TestCallbackCodeWithoutAccessToken(t *testing.T) {
	ex := &fakeExchanger{tok: &model.AuthToken{}}
	cb, s, _ := newCallback(t, ex)

	res := cb.Handle(context.Background(), mustURL(t, "/callback?code=abc"))
	assert.Equal(t, []string{"abc|"}, ex.calls)
	assert.Equal(t, StateError, res.State)
	assert.Equal(t, MsgNoToken, res.Message)
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Token())
}

func TestCallbackCodeWithoutUserFallsBackToStorage(t *testing.T) {
	ex := &fakeExchanger{tok: &model.AuthToken{AccessToken: "jwt"}}
	cb, _, _ := newCallback(t, ex)

	// Nothing stored for the user, so the session stays anonymous.
	res := cb.Handle(context.Background(), mustURL(t, "/callback?code=abc"))
	assert.Equal(t, StateError, res.State)
	assert.Equal(t, MsgAuthStateFailed, res.Message)
}

func TestCallbackCodeExchangeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"backend detail", &api.APIError{StatusCode: 400, Detail: "invalid_grant"}, "invalid_grant"},
		{"network", errors.New("dial tcp: refused"), MsgLoginFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, _, _ := newCallback(t, &fakeExchanger{err: tt.err})
			res := cb.Handle(context.Background(), mustURL(t, "/callback?code=abc"))
			assert.Equal(t, StateError, res.State)
			assert.Equal(t, tt.want, res.Message)
		})
	}
}

func TestCallbackNoCredentials(t *testing.T) {
	cb, _, _ := newCallback(t, &fakeExchanger{})
	res := cb.Handle(context.Background(), mustURL(t, "/callback"))
	assert.Equal(t, StateError, res.State)
	assert.Equal(t, MsgNoCredentials, res.Message)

	// token without user_id is not enough
	res = cb.Handle(context.Background(), mustURL(t, "/callback?token=T"))
	assert.Equal(t, MsgNoCredentials, res.Message)
}

func TestParseRedirect(t *testing.T) {
	tests := []struct {
		in       string
		wantCode string
		wantErr  bool
	}{
		{"http://127.0.0.1:3000/callback?code=abc&state=1", "abc", false},
		{"?code=xyz", "xyz", false},
		{"code=xyz&state=2", "xyz", false},
		{"  rawcode  ", "rawcode", false},
		{"", "", true},
	}
	for _, tt := range tests {
		u, err := ParseRedirect(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.wantCode, u.Query().Get("code"), tt.in)
	}
}
