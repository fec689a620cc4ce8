package auth

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inboxai/internal/api"
	"inboxai/internal/model"
)

const (
	CallbackPath        = "/callback"
	CompletePath        = "/complete"
	GmailCallbackPath   = "/accounts/gmail/callback"
	DefaultCallbackAddr = "127.0.0.1:3000"
)

// AccountConnector finishes a Gmail mailbox connection.
type AccountConnector interface {
	GmailCallback(ctx context.Context, code, state string) (*model.EmailAccount, error)
}

// AccountResult is the outcome of a Gmail connection redirect.
type AccountResult struct {
	Account *model.EmailAccount
	Err     error
}

// Listener is the local HTTP server the backend redirects the browser to.
// Outcomes are published on Results and AccountResults.
type Listener struct {
	cb       *Callback
	accounts AccountConnector
	log      *zap.Logger

	ln  net.Listener
	srv *http.Server

	results        chan Result
	accountResults chan AccountResult

	mu       sync.Mutex
	outcomes map[string]Result
}

// Listen starts serving on addr. An addr with port 0 picks a free port.
func Listen(addr string, cb *Callback, accounts AccountConnector, log *zap.Logger) (*Listener, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	l := &Listener{
		cb:             cb,
		accounts:       accounts,
		log:            log,
		ln:             ln,
		results:        make(chan Result, 4),
		accountResults: make(chan AccountResult, 4),
		outcomes:       make(map[string]Result),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+CallbackPath, l.handleCallback)
	mux.HandleFunc("GET "+CompletePath, l.handleComplete)
	mux.HandleFunc("GET "+GmailCallbackPath, l.handleGmail)
	l.srv = &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("callback listener stopped", zap.Error(err))
		}
	}()
	log.Info("callback listener started", zap.String("addr", ln.Addr().String()))
	return l, nil
}

// Addr is the address actually bound.
func (l *Listener) Addr() string { return l.ln.Addr().String() }

// CallbackURL is the URL the backend must redirect logins to.
func (l *Listener) CallbackURL() string {
	return "http://" + l.Addr() + CallbackPath
}

func (l *Listener) Results() <-chan Result { return l.results }

func (l *Listener) AccountResults() <-chan AccountResult { return l.accountResults }

// Close shuts the server down, waiting for in-flight requests.
func (l *Listener) Close(ctx context.Context) error {
	return l.srv.Shutdown(ctx)
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	res := l.cb.Handle(r.Context(), r.URL)
	l.publish(res)

	id := uuid.NewString()
	l.mu.Lock()
	l.outcomes[id] = res
	l.mu.Unlock()

	// Redirect so the credentials leave the address bar and history.
	q := res.CleanURL.Query()
	q.Set("outcome", id)
	target := url.URL{Path: CompletePath, RawQuery: q.Encode()}
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

func (l *Listener) publish(res Result) {
	select {
	case l.results <- res:
	default:
		l.log.Warn("callback result dropped, nobody listening")
	}
}

func (l *Listener) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("outcome")
	l.mu.Lock()
	res, ok := l.outcomes[id]
	delete(l.outcomes, id)
	l.mu.Unlock()
	if !ok {
		res = Result{State: StateError, Message: MsgNoCredentials}
	}
	render(w, page{
		Title:   "로그인 완료",
		Message: "로그인되었습니다. 이 창을 닫고 터미널로 돌아가세요.",
		Error:   !res.OK(),
		Detail:  res.Message,
	})
}

func (l *Listener) handleGmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")

	var res AccountResult
	switch {
	case q.Get("error") != "":
		res.Err = errors.New(q.Get("error"))
	case code == "" || state == "":
		res.Err = errors.New("Gmail 연동 정보가 없습니다.")
	case l.accounts == nil:
		res.Err = errors.New("Gmail 연동을 처리할 수 없습니다.")
	default:
		res.Account, res.Err = l.accounts.GmailCallback(r.Context(), code, state)
	}

	select {
	case l.accountResults <- res:
	default:
		l.log.Warn("account result dropped, nobody listening")
	}

	p := page{Title: "Gmail 연동", Message: "Gmail 계정이 연동되었습니다. 이 창을 닫아도 됩니다."}
	if res.Err != nil {
		p.Error = true
		p.Detail = api.Message(res.Err, res.Err.Error())
	} else if res.Account != nil {
		p.Detail = res.Account.EmailAddress
	}
	render(w, p)
}

type page struct {
	Title   string
	Message string
	Error   bool
	Detail  string
}

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="ko"><head><meta charset="utf-8"><title>inboxai</title></head>
<body style="font-family:sans-serif;text-align:center;margin-top:20vh">
{{if .Error}}<h1 style="color:#dc2626">오류 발생</h1>
<p>{{.Detail}}</p>
<p>터미널에서 다시 로그인해주세요.</p>
{{else}}<h1>{{.Title}}</h1>
<p>{{.Message}}</p>{{if .Detail}}<p>{{.Detail}}</p>{{end}}
{{end}}</body></html>
`))

func render(w http.ResponseWriter, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if p.Error {
		w.WriteHeader(http.StatusBadRequest)
	}
	_ = pageTmpl.Execute(w, p)
}
