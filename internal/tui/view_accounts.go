package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"inboxai/internal/api"
	"inboxai/internal/auth"
	"inboxai/internal/model"
	"inboxai/internal/querycache"
	"inboxai/internal/util"
)

const (
	MsgGmailConnectFailed    = "Gmail 계정 연결에 실패했습니다."
	MsgConfirmDisconnect     = "정말 이 계정 연결을 해제하시겠습니까?"
	MsgDisconnectFailed      = "계정 연결 해제에 실패했습니다."
	MsgDisconnectUnsupported = "백엔드에서 계정 연결 해제를 지원하지 않습니다."
	MsgNaverRequired         = "이메일과 비밀번호를 입력해주세요."
	MsgNaverAddress          = "네이버 이메일 주소(@naver.com)를 입력해주세요."
	MsgNaverConnected        = "네이버 계정이 성공적으로 연결되었습니다."
	MsgNaverFailed           = "네이버 계정 연결에 실패했습니다."
	msgLoadAccounts          = "계정 목록을 불러오지 못했습니다."
)

type accountItem struct {
	acct model.EmailAccount
	now  time.Time
}

func (i accountItem) FilterValue() string { return i.acct.EmailAddress }

func (i accountItem) Title() string {
	return fmt.Sprintf("%s  [%s]", i.acct.EmailAddress, providerLabel(i.acct.ProviderType))
}

func (i accountItem) Description() string {
	state := "활성"
	if !i.acct.IsActive {
		state = "비활성"
	}
	last := "동기화 기록 없음"
	if i.acct.LastFetchAt != nil {
		last = "마지막 동기화 " + util.Relative(i.acct.LastFetchAt, i.now)
	}
	return fmt.Sprintf("%s · %s · %d분 간격", state, last, i.acct.FetchInterval/60)
}

func providerLabel(p string) string {
	switch p {
	case "gmail":
		return "Gmail"
	case "naver":
		return "네이버"
	}
	return p
}

type accountsView struct {
	list    list.Model
	loaded  bool
	loading bool
	err     string
}

func newAccountsView() accountsView {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "연결된 이메일 계정"
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetKeys("q")
	return accountsView{list: l}
}

func (m *AppModel) loadAccounts() tea.Cmd {
	accounts, c := m.deps.API.Accounts, m.deps.Cache
	m.accounts.loading = true
	return m.cmd(func(ctx context.Context) tea.Msg {
		accts, err := querycache.Fetch(ctx, c, querycache.NewKey(querycache.Accounts), accounts.List)
		return accountsLoadedMsg{accounts: accts, err: err}
	})
}

func (m *AppModel) onAccountsLoaded(msg accountsLoadedMsg) {
	a := &m.accounts
	a.loading = false
	if msg.err != nil {
		a.err = api.Message(msg.err, msgLoadAccounts)
		return
	}
	a.err = ""
	a.loaded = true
	now := m.now()
	items := make([]list.Item, len(msg.accounts))
	for i, acct := range msg.accounts {
		items[i] = accountItem{acct: acct, now: now}
	}
	a.list.SetItems(items)
}

func (m *AppModel) accountsKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "g":
		return m.connectGmail()
	case "n":
		m.naver.reset()
		m.view = viewNaverForm
		return m.naver.email.Focus()
	case "d":
		it, ok := m.accounts.list.SelectedItem().(accountItem)
		if !ok {
			return nil
		}
		id := it.acct.ID
		m.ask(MsgConfirmDisconnect, func(m *AppModel) tea.Cmd {
			return m.disconnect(id)
		})
		return nil
	case "s":
		if it, ok := m.accounts.list.SelectedItem().(accountItem); ok {
			return m.syncAccount(it.acct.ID)
		}
		return nil
	case "r":
		m.invalidate(querycache.Accounts)
		return m.loadAccounts()
	}
	var cmd tea.Cmd
	m.accounts.list, cmd = m.accounts.list.Update(msg)
	return cmd
}

// connectGmail fetches the backend's consent URL and opens it. The backend
// redirects back to the callback listener when the user is done.
func (m *AppModel) connectGmail() tea.Cmd {
	accounts := m.deps.API.Accounts
	m.status = "Gmail 연결 준비 중..."
	return m.cmd(func(ctx context.Context) tea.Msg {
		u, err := accounts.GmailConnectURL(ctx)
		return gmailURLMsg{url: u, err: err}
	})
}

func (m *AppModel) onGmailURL(msg gmailURLMsg) tea.Cmd {
	if msg.err != nil {
		m.log.Warn("gmail connect url", zap.Error(msg.err))
		return m.setStatus(api.Message(msg.err, MsgGmailConnectFailed))
	}
	if err := m.deps.Browser.Open(msg.url); err != nil {
		m.log.Warn("open browser", zap.Error(err))
		return m.setStatus("브라우저를 열 수 없습니다: " + msg.url)
	}
	return m.setStatus("브라우저에서 Gmail 접근을 허용해주세요.")
}

func (m *AppModel) waitForAccount() tea.Cmd {
	l := m.deps.Listener
	if l == nil {
		return nil
	}
	return func() tea.Msg {
		return accountConnectedMsg(<-l.AccountResults())
	}
}

func (m *AppModel) onAccountConnected(res auth.AccountResult) tea.Cmd {
	if res.Err != nil {
		m.log.Warn("gmail connect", zap.Error(res.Err))
		return m.setStatus(api.Message(res.Err, MsgGmailConnectFailed))
	}
	m.invalidate(querycache.Accounts)
	var cmds []tea.Cmd
	if res.Account != nil {
		cmds = append(cmds, m.setStatus(res.Account.EmailAddress+" 계정이 연결되었습니다."))
	}
	if m.view == viewAccounts {
		cmds = append(cmds, m.loadAccounts())
	}
	return tea.Batch(cmds...)
}

func (m *AppModel) disconnect(id string) tea.Cmd {
	accounts := m.deps.API.Accounts
	return m.cmd(func(ctx context.Context) tea.Msg {
		err := accounts.Disconnect(ctx, id)
		if errors.Is(err, api.ErrUnsupported) {
			// The generic "Not Found" detail would hide what happened.
			return actionResultMsg{
				action:   "disconnect",
				fallback: MsgDisconnectUnsupported,
				err:      fmt.Errorf("%w (status %d)", api.ErrUnsupported, api.StatusCode(err)),
			}
		}
		return actionResultMsg{
			action:     "disconnect",
			message:    "계정 연결이 해제되었습니다.",
			fallback:   MsgDisconnectFailed,
			err:        err,
			invalidate: []string{querycache.Accounts, querycache.Emails},
		}
	})
}

func (m *AppModel) syncAccount(id string) tea.Cmd {
	emails := m.deps.API.Emails
	return m.cmd(func(ctx context.Context) tea.Msg {
		_, err := emails.Ingest(ctx, id)
		return actionResultMsg{
			action:     "sync account",
			message:    MsgSyncStarted,
			fallback:   MsgSyncFailed,
			err:        err,
			invalidate: []string{querycache.Emails, querycache.Accounts},
			after:      syncSettle,
		}
	})
}

func (m *AppModel) accountsView() (string, string) {
	a := &m.accounts
	help := "g: Gmail 연결 • n: 네이버 연결 • d: 연결 해제 • s: 동기화 • r: 새로고침 • q: 종료"
	switch {
	case a.err != "":
		return errorStyle.Render(a.err), help
	case !a.loaded:
		return "불러오는 중...", help
	case len(a.list.Items()) == 0:
		return dimStyle.Render("연결된 계정이 없습니다. g 또는 n 으로 계정을 연결하세요."), help
	}
	return a.list.View(), help
}

// naverForm collects Naver IMAP credentials. The password goes straight to
// the backend and is never stored locally.
type naverForm struct {
	email    textinput.Model
	password textinput.Model
	err      string
	busy     bool
}

func newNaverForm() naverForm {
	e := textinput.New()
	e.Prompt = "이메일: "
	e.Placeholder = "example@naver.com"
	e.CharLimit = 254

	p := textinput.New()
	p.Prompt = "비밀번호: "
	p.Placeholder = "애플리케이션 비밀번호"
	p.EchoMode = textinput.EchoPassword
	p.EchoCharacter = '•'
	p.CharLimit = 128
	return naverForm{email: e, password: p}
}

func (f *naverForm) reset() {
	f.email.Reset()
	f.password.Reset()
	f.email.Blur()
	f.password.Blur()
	f.err = ""
	f.busy = false
}

func (f *naverForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if f.password.Focused() {
		f.password, cmd = f.password.Update(msg)
	} else {
		f.email, cmd = f.email.Update(msg)
	}
	return cmd
}

// validateNaver checks the credentials before anything is sent.
func validateNaver(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return errors.New(MsgNaverRequired)
	}
	if !strings.Contains(email, "@naver.com") {
		return errors.New(MsgNaverAddress)
	}
	return nil
}

func (m *AppModel) naverKey(msg tea.KeyMsg) tea.Cmd {
	f := &m.naver
	switch msg.String() {
	case "esc":
		f.reset()
		m.view = viewAccounts
		return nil
	case "tab", "shift+tab", "up", "down":
		if f.email.Focused() {
			f.email.Blur()
			return f.password.Focus()
		}
		f.password.Blur()
		return f.email.Focus()
	case "enter":
		if f.busy {
			return nil
		}
		email, password := strings.TrimSpace(f.email.Value()), f.password.Value()
		if err := validateNaver(email, password); err != nil {
			f.err = err.Error()
			return nil
		}
		f.err = ""
		f.busy = true
		accounts := m.deps.API.Accounts
		return m.cmd(func(ctx context.Context) tea.Msg {
			_, err := accounts.ConnectNaver(ctx, email, password)
			return naverResultMsg{err: err}
		})
	}
	return f.update(msg)
}

func (m *AppModel) onNaverResult(msg naverResultMsg) tea.Cmd {
	f := &m.naver
	f.busy = false
	if msg.err != nil {
		m.log.Warn("naver connect", zap.Error(msg.err))
		f.err = api.Message(msg.err, MsgNaverFailed)
		return nil
	}
	f.reset()
	m.invalidate(querycache.Accounts)
	return tea.Batch(m.navigate(viewAccounts), m.setStatus(MsgNaverConnected))
}

func (m *AppModel) naverView() (string, string) {
	f := &m.naver
	var b strings.Builder
	b.WriteString(headerStyle.Render("네이버 계정 연결"))
	b.WriteString("\n\n")
	b.WriteString(f.email.View())
	b.WriteString("\n")
	b.WriteString(f.password.View())
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("네이버 메일 설정에서 IMAP 사용을 켜고 애플리케이션 비밀번호를 발급받아 입력하세요."))
	if f.busy {
		b.WriteString("\n\n연결 중...")
	}
	if f.err != "" {
		b.WriteString("\n\n")
		b.WriteString(errorStyle.Render(f.err))
	}
	return b.String(), "enter: 연결 • tab: 다음 칸 • esc: 취소"
}
