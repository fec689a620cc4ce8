package tui

import (
	"time"

	"inboxai/internal/auth"
	"inboxai/internal/model"
	"inboxai/internal/querycache"
)

// Async message types for Bubble Tea commands.

type emailsLoadedMsg struct {
	kind listKind
	key  querycache.Key
	page *model.Page[model.Email]
	err  error
}

type emailLoadedMsg struct {
	id    string
	email *model.Email
	err   error
}

type summaryLoadedMsg struct {
	id      string
	summary string
	err     error
}

type accountsLoadedMsg struct {
	accounts []model.EmailAccount
	err      error
}

type rulesLoadedMsg struct {
	key   querycache.Key
	rules []model.UserRule
	err   error
}

type processingLoadedMsg struct {
	gen  int
	snap processingSnapshot
	err  error
}

type pollTickMsg struct{ gen int }

type processNowMsg struct {
	id  string
	err error
}

// batchResultMsg carries the ids a batch request marked busy.
type batchResultMsg struct {
	ids    []string
	result actionResultMsg
}

// actionResultMsg reports a finished mutation. invalidate names the cached
// resources it made stale; after delays the invalidation for work the
// backend finishes in the background.
type actionResultMsg struct {
	action     string
	message    string
	fallback   string
	err        error
	invalidate []string
	after      time.Duration
	back       bool
}

type invalidateMsg struct{ resources []string }

type loginResultMsg struct {
	res          auth.Result
	fromListener bool
}

type accountConnectedMsg auth.AccountResult

type naverResultMsg struct{ err error }

type ruleSavedMsg struct {
	created bool
	err     error
}

type gmailURLMsg struct {
	url string
	err error
}

type downloadMsg struct {
	path string
	err  error
}

type loggedOutMsg struct{ err error }

type statusMsg string
