package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"inboxai/internal/auth"
)

type loginView struct {
	input  textinput.Model
	result auth.Result
}

func newLoginView() loginView {
	ti := textinput.New()
	ti.Placeholder = "리다이렉트된 주소 또는 인증 코드"
	ti.CharLimit = 4096
	return loginView{input: ti}
}

func (m *AppModel) waitForLogin() tea.Cmd {
	l := m.deps.Listener
	if l == nil {
		return nil
	}
	return func() tea.Msg {
		return loginResultMsg{res: <-l.Results(), fromListener: true}
	}
}

func (m *AppModel) loginKey(msg tea.KeyMsg) tea.Cmd {
	in := &m.login.input
	if in.Focused() {
		switch msg.String() {
		case "esc":
			in.Blur()
			return nil
		case "enter":
			val := in.Value()
			in.Reset()
			in.Blur()
			return m.submitRedirect(val)
		}
		var cmd tea.Cmd
		*in, cmd = in.Update(msg)
		return cmd
	}

	switch msg.String() {
	case "enter", "o":
		return m.openLogin()
	case "p":
		return in.Focus()
	}
	return nil
}

func (m *AppModel) openLogin() tea.Cmd {
	if m.authenticated() {
		return m.navigate(viewInbox)
	}
	u := m.deps.API.Auth.GoogleLoginURL()
	if err := m.deps.Browser.Open(u); err != nil {
		m.log.Warn("open browser", zap.Error(err))
		return m.setStatus("브라우저를 열 수 없습니다: " + u)
	}
	return m.setStatus("브라우저에서 Google 로그인을 진행해주세요.")
}

// submitRedirect completes a login from a redirect URL the user copied out
// of the browser, for when the callback listener is unreachable.
func (m *AppModel) submitRedirect(input string) tea.Cmd {
	u, err := auth.ParseRedirect(input)
	if err != nil {
		return m.setStatus(auth.MsgNoCredentials)
	}
	cb := m.deps.Callback
	return m.cmd(func(ctx context.Context) tea.Msg {
		return loginResultMsg{res: cb.Handle(ctx, u)}
	})
}

func (m *AppModel) onLoginResult(res auth.Result) tea.Cmd {
	m.login.result = res
	if !res.OK() {
		m.log.Info("login failed", zap.String("state", res.State.String()), zap.String("message", res.Message))
		m.view = viewCallback
		return nil
	}
	// A different user may have signed in; nothing cached is theirs.
	if err := m.deps.Cache.Clear(m.ctx); err != nil {
		m.log.Warn("clear cache", zap.Error(err))
	}
	m.resetViews()
	return tea.Batch(m.navigate(viewInbox), m.setStatus("로그인되었습니다."))
}

func (m *AppModel) callbackKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter", "esc":
		m.login.result = auth.Result{}
		m.view = viewLogin
	}
	return nil
}

func (m *AppModel) loginView() (string, string) {
	var b strings.Builder
	b.WriteString(headerStyle.Render("InboxAI"))
	b.WriteString("\n\n")
	b.WriteString("AI가 이메일을 요약하고 분류합니다.\n")
	b.WriteString("Google 계정으로 로그인하세요.\n\n")
	if l := m.deps.Listener; l != nil {
		b.WriteString(dimStyle.Render("로그인이 끝나면 " + l.CallbackURL() + " 에서 자동으로 돌아옵니다."))
		b.WriteString("\n")
	}
	if m.login.input.Focused() {
		b.WriteString("\n")
		b.WriteString(m.login.input.View())
		return b.String(), "enter: 확인 • esc: 취소"
	}
	return b.String(), "enter: Google 로그인 • p: 리다이렉트 주소 붙여넣기 • q: 종료"
}

func (m *AppModel) callbackView() (string, string) {
	var b strings.Builder
	res := m.login.result
	if res.State == auth.StateError {
		b.WriteString(errorStyle.Render("오류 발생"))
		b.WriteString("\n\n")
		b.WriteString(res.Message)
	} else {
		b.WriteString("로그인 처리 중...")
	}
	return b.String(), "enter: 로그인 페이지로 돌아가기 • q: 종료"
}
