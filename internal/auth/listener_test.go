package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxai/internal/model"
)

type fakeAccounts struct {
	acct *model.EmailAccount
	err  error
}

func (f *fakeAccounts) GmailCallback(_ context.Context, code, state string) (*model.EmailAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.acct, nil
}

func startListener(t *testing.T, accounts AccountConnector) *Listener {
	t.Helper()
	cb, _, _ := newCallback(t, &fakeExchanger{})
	l, err := Listen("127.0.0.1:0", cb, accounts, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.Close(ctx)
	})
	return l
}

func noFollow() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func TestListenerStripsCredentialsWith303(t *testing.T) {
	l := startListener(t, nil)

	resp, err := noFollow().Get(l.CallbackURL() + "?token=T&user_id=5&email=a@b.com")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err := resp.Location()
	require.NoError(t, err)
	assert.Equal(t, CompletePath, loc.Path)
	q := loc.Query()
	assert.False(t, q.Has("token"))
	assert.False(t, q.Has("user_id"))
	assert.False(t, q.Has("email"))
	assert.NotEmpty(t, q.Get("outcome"))

	select {
	case res := <-l.Results():
		assert.True(t, res.OK(), res.Message)
	case <-time.After(time.Second):
		t.Fatal("no callback result published")
	}

	// Following the redirect renders the outcome once.
	page, err := http.Get(loc.String())
	require.NoError(t, err)
	body, _ := io.ReadAll(page.Body)
	page.Body.Close()
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(body), "로그인되었습니다")
}

func TestListenerErrorPage(t *testing.T) {
	l := startListener(t, nil)

	resp, err := http.Get(l.CallbackURL() + "?error=denied")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "오류 발생")
	assert.Contains(t, string(body), "denied")

	res := <-l.Results()
	assert.Equal(t, StateError, res.State)
}

func TestListenerErrorRedirectDropsToken(t *testing.T) {
	l := startListener(t, nil)

	resp, err := noFollow().Get(l.CallbackURL() + "?error=x&token=T&user_id=5")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err := resp.Location()
	require.NoError(t, err)
	q := loc.Query()
	assert.Equal(t, "x", q.Get("error"))
	assert.False(t, q.Has("token"))
	assert.False(t, q.Has("user_id"))

	res := <-l.Results()
	assert.Equal(t, StateError, res.State)
}

func TestListenerUnknownOutcome(t *testing.T) {
	l := startListener(t, nil)
	resp, err := http.Get("http://" + l.Addr() + CompletePath + "?outcome=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListenerGmailCallback(t *testing.T) {
	acct := &model.EmailAccount{ID: "enc", EmailAddress: "me@gmail.com", ProviderType: "gmail"}
	l := startListener(t, &fakeAccounts{acct: acct})

	resp, err := http.Get("http://" + l.Addr() + GmailCallbackPath + "?code=c&state=7")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "me@gmail.com")

	res := <-l.AccountResults()
	require.NoError(t, res.Err)
	assert.Equal(t, "enc", res.Account.ID)
}

func TestListenerGmailCallbackFailure(t *testing.T) {
	l := startListener(t, &fakeAccounts{err: errors.New("boom")})

	resp, err := http.Get("http://" + l.Addr() + GmailCallbackPath + "?code=c&state=7")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	res := <-l.AccountResults()
	assert.Error(t, res.Err)
}
