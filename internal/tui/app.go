package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"inboxai/internal/api"
	"inboxai/internal/auth"
	"inboxai/internal/browser"
	"inboxai/internal/config"
	"inboxai/internal/querycache"
	"inboxai/internal/session"
)

type viewState int

const (
	viewLogin    viewState = iota
	viewCallback           // outcome of a login attempt
	viewInbox
	viewImportant
	viewSearch
	viewDetail
	viewAccounts
	viewNaverForm
	viewRules
	viewRuleForm
	viewProcessing
)

// dashboard reports whether v requires a signed-in session.
func (v viewState) dashboard() bool { return v >= viewInbox }

type route struct {
	key   string
	label string
	view  viewState
}

var routes = []route{
	{"I", "받은편지함", viewInbox},
	{"M", "중요 메일", viewImportant},
	{"S", "검색", viewSearch},
	{"A", "계정 관리", viewAccounts},
	{"R", "스마트 필터", viewRules},
	{"P", "AI 처리 현황", viewProcessing},
}

const (
	requestTimeout = 2 * time.Minute
	statusDuration = 2 * time.Second

	// Delays before re-reading data the backend updates in the background.
	syncSettle    = 2 * time.Second
	asyncSettle   = 3 * time.Second
	processSettle = 1 * time.Second

	sidebarWidth = 21
)

// Deps are the collaborators the views talk to.
type Deps struct {
	API      *api.Client
	Session  *session.Store
	Cache    *querycache.Cache
	Callback *auth.Callback
	// Listener is nil when the callback address could not be bound; login
	// then relies on pasting the redirect URL.
	Listener *auth.Listener
	Browser  browser.Opener
	Config   *config.Config
	Log      *zap.Logger
}

type confirmation struct {
	prompt string
	onYes  func(m *AppModel) tea.Cmd
}

type AppModel struct {
	deps Deps
	ctx  context.Context
	log  *zap.Logger
	now  func() time.Time

	Err     error
	status  string
	view    viewState
	confirm *confirmation

	login      loginView
	inbox      emailList
	important  emailList
	search     emailList
	detail     detailView
	accounts   accountsView
	naver      naverForm
	rules      rulesView
	form       ruleFormView
	processing processingView

	width, height int
}

func NewAppModel(ctx context.Context, deps Deps) AppModel {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Browser == nil {
		deps.Browser = browser.System{}
	}
	return AppModel{
		deps:       deps,
		ctx:        ctx,
		log:        deps.Log.Named("tui"),
		now:        time.Now,
		view:       viewLogin,
		login:      newLoginView(),
		inbox:      newEmailList(kindInbox, "받은편지함"),
		important:  newEmailList(kindImportant, "중요 메일"),
		search:     newEmailList(kindSearch, "검색"),
		detail:     newDetailView(),
		accounts:   newAccountsView(),
		naver:      newNaverForm(),
		rules:      newRulesView(),
		form:       newRuleFormView(),
		processing: newProcessingView(),
	}
}

func (m *AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.waitForLogin(), m.waitForAccount()}
	if m.deps.Session.IsAuthenticated() {
		cmds = append(cmds, m.navigate(viewInbox))
	}
	return tea.Batch(cmds...)
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case loginResultMsg:
		cmd := m.onLoginResult(msg.res)
		if msg.fromListener {
			cmd = tea.Batch(cmd, m.waitForLogin())
		}
		return m, cmd

	case accountConnectedMsg:
		return m, tea.Batch(m.onAccountConnected(auth.AccountResult(msg)), m.waitForAccount())

	case emailsLoadedMsg:
		return m, m.onEmailsLoaded(msg)

	case emailLoadedMsg:
		return m, m.onEmailLoaded(msg)

	case summaryLoadedMsg:
		return m, m.onSummaryLoaded(msg)

	case accountsLoadedMsg:
		m.onAccountsLoaded(msg)
		return m, nil

	case gmailURLMsg:
		return m, m.onGmailURL(msg)

	case naverResultMsg:
		return m, m.onNaverResult(msg)

	case rulesLoadedMsg:
		m.onRulesLoaded(msg)
		return m, nil

	case processingLoadedMsg:
		m.onProcessingLoaded(msg)
		return m, nil

	case pollTickMsg:
		return m, m.onPollTick(msg)

	case processNowMsg:
		return m, m.onProcessNow(msg)

	case batchResultMsg:
		return m, m.onBatchResult(msg)

	case ruleSavedMsg:
		return m, m.onRuleSaved(msg)

	case actionResultMsg:
		return m, m.onActionResult(msg)

	case invalidateMsg:
		m.invalidate(msg.resources...)
		return m, m.reload()

	case downloadMsg:
		if msg.err != nil {
			m.log.Warn("download attachment", zap.Error(msg.err))
			return m, m.setStatus(api.Message(msg.err, MsgDownloadFailed))
		}
		return m, m.setStatus("저장됨: " + msg.path)

	case loggedOutMsg:
		if msg.err != nil {
			m.log.Warn("logout", zap.Error(msg.err))
		}
		m.resetViews()
		m.view = viewLogin
		return m, m.setStatus("로그아웃되었습니다.")

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	return m, m.updateActive(msg)
}

// updateActive hands messages nobody else claimed (cursor blinks, mouse)
// to the focused sub-model.
func (m *AppModel) updateActive(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.view {
	case viewLogin:
		m.login.input, cmd = m.login.input.Update(msg)
	case viewInbox:
		cmd = m.inbox.update(msg)
	case viewImportant:
		cmd = m.important.update(msg)
	case viewSearch:
		cmd = m.search.update(msg)
	case viewDetail:
		if m.detail.blocking {
			m.detail.name, cmd = m.detail.name.Update(msg)
		} else {
			m.detail.vp, cmd = m.detail.vp.Update(msg)
		}
	case viewAccounts:
		m.accounts.list, cmd = m.accounts.list.Update(msg)
	case viewNaverForm:
		cmd = m.naver.update(msg)
	case viewRules:
		m.rules.list, cmd = m.rules.list.Update(msg)
	case viewRuleForm:
		cmd = m.form.update(msg)
	}
	return cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.confirm != nil {
		c := m.confirm
		m.confirm = nil
		if key == "y" || key == "Y" {
			return m, c.onYes(m)
		}
		return m, nil
	}

	if !m.typing() {
		if key == "q" {
			return m, tea.Quit
		}
		if m.view.dashboard() {
			for _, r := range routes {
				if key == r.key {
					return m, m.navigate(r.view)
				}
			}
			if key == "L" {
				return m, m.logout()
			}
		}
	}

	var cmd tea.Cmd
	switch m.view {
	case viewLogin:
		cmd = m.loginKey(msg)
	case viewCallback:
		cmd = m.callbackKey(msg)
	case viewInbox:
		cmd = m.emailListKey(&m.inbox, msg)
	case viewImportant:
		cmd = m.emailListKey(&m.important, msg)
	case viewSearch:
		cmd = m.emailListKey(&m.search, msg)
	case viewDetail:
		cmd = m.detailKey(msg)
	case viewAccounts:
		cmd = m.accountsKey(msg)
	case viewNaverForm:
		cmd = m.naverKey(msg)
	case viewRules:
		cmd = m.rulesKey(msg)
	case viewRuleForm:
		cmd = m.ruleFormKey(msg)
	case viewProcessing:
		cmd = m.processingKey(msg)
	}
	return m, cmd
}

// typing reports whether a text input has the keyboard, which turns off
// the single-letter shortcuts.
func (m *AppModel) typing() bool {
	switch m.view {
	case viewLogin:
		return m.login.input.Focused()
	case viewInbox:
		return m.inbox.input.Focused()
	case viewSearch:
		return m.search.input.Focused()
	case viewDetail:
		return m.detail.blocking
	case viewNaverForm, viewRuleForm:
		return true
	}
	return false
}

// navigate switches to v and starts loading its data. Dashboard views are
// guarded: an anonymous session lands on the login view instead.
func (m *AppModel) navigate(v viewState) tea.Cmd {
	if v.dashboard() && !m.authenticated() {
		m.view = viewLogin
		return nil
	}
	m.confirm = nil
	m.view = v

	switch v {
	case viewSearch:
		return tea.Batch(m.search.input.Focus(), m.reload())
	case viewProcessing:
		m.processing.gen++
		return tea.Batch(m.reload(), m.pollAfter(m.processing.gen))
	}
	return m.reload()
}

func (m *AppModel) authenticated() bool {
	if err := m.deps.Session.CheckAuth(m.ctx); err != nil {
		m.log.Warn("check auth", zap.Error(err))
	}
	return m.deps.Session.IsAuthenticated()
}

// reload fetches the data of the active view.
func (m *AppModel) reload() tea.Cmd {
	switch m.view {
	case viewInbox:
		return m.loadEmails(&m.inbox)
	case viewImportant:
		return m.loadEmails(&m.important)
	case viewSearch:
		return m.loadEmails(&m.search)
	case viewDetail:
		return m.loadEmail()
	case viewAccounts, viewNaverForm:
		return m.loadAccounts()
	case viewRules:
		return m.loadRules()
	case viewProcessing:
		return m.loadProcessing()
	}
	return nil
}

func (m *AppModel) invalidate(resources ...string) {
	if err := m.deps.Cache.Invalidate(m.ctx, resources...); err != nil {
		m.log.Warn("invalidate cache", zap.Strings("resources", resources), zap.Error(err))
	}
}

func (m *AppModel) onActionResult(msg actionResultMsg) tea.Cmd {
	if msg.err != nil {
		m.log.Warn("action failed", zap.String("action", msg.action), zap.Error(msg.err))
		return m.setStatus(api.Message(msg.err, msg.fallback))
	}
	m.log.Debug("action complete", zap.String("action", msg.action))

	var cmds []tea.Cmd
	if msg.message != "" {
		cmds = append(cmds, m.setStatus(msg.message))
	}
	switch {
	case len(msg.invalidate) > 0 && msg.after > 0:
		cmds = append(cmds, invalidateAfter(msg.after, msg.invalidate...))
	case len(msg.invalidate) > 0:
		m.invalidate(msg.invalidate...)
		if !msg.back {
			cmds = append(cmds, m.reload())
		}
	}
	if msg.back && m.view == viewDetail {
		cmds = append(cmds, m.navigate(m.detail.from))
	}
	return tea.Batch(cmds...)
}

func (m *AppModel) logout() tea.Cmd {
	s, c := m.deps.Session, m.deps.Cache
	return m.cmd(func(ctx context.Context) tea.Msg {
		// The cache is scoped to the user, so clear it while they are known.
		cerr := c.Clear(ctx)
		err := s.Logout(ctx)
		if err == nil {
			err = cerr
		}
		return loggedOutMsg{err: err}
	})
}

func (m *AppModel) resetViews() {
	m.inbox = newEmailList(kindInbox, "받은편지함")
	m.important = newEmailList(kindImportant, "중요 메일")
	m.search = newEmailList(kindSearch, "검색")
	m.detail = newDetailView()
	m.accounts = newAccountsView()
	m.rules = newRulesView()
	m.processing.gen++
	m.confirm = nil
	m.resize()
}

// cmd runs f off the update loop with a bounded context. f must not touch
// the model; capture what it needs first.
func (m *AppModel) cmd(f func(ctx context.Context) tea.Msg) tea.Cmd {
	base := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(base, requestTimeout)
		defer cancel()
		return f(ctx)
	}
}

func (m *AppModel) setStatus(s string) tea.Cmd {
	m.status = s
	return clearStatusAfter(statusDuration)
}

func (m *AppModel) ask(prompt string, onYes func(m *AppModel) tea.Cmd) {
	m.confirm = &confirmation{prompt: prompt, onYes: onYes}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

func invalidateAfter(d time.Duration, resources ...string) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return invalidateMsg{resources: resources}
	})
}

func (m *AppModel) resize() {
	w := m.width - sidebarWidth
	if w < 20 {
		w = 20
	}
	h := m.height - 8 // header, filters, footer, status
	if h < 5 {
		h = 5
	}
	for _, l := range []*emailList{&m.inbox, &m.important, &m.search} {
		l.list.SetSize(w, h-2)
		l.input.Width = w - 10
	}
	m.detail.vp.Width = w
	m.detail.vp.Height = h
	if m.detail.email != nil {
		m.detail.render(m.now())
	}
	m.accounts.list.SetSize(w, h-2)
	m.rules.list.SetSize(w, h-4)
	m.login.input.Width = m.width - 4
}

func (m *AppModel) View() string {
	if m.Err != nil {
		return fmt.Sprintf("Error: %v\n", m.Err)
	}

	var body, help string
	switch m.view {
	case viewLogin:
		body, help = m.loginView()
	case viewCallback:
		body, help = m.callbackView()
	case viewInbox:
		body, help = m.emailListView(&m.inbox)
	case viewImportant:
		body, help = m.emailListView(&m.important)
	case viewSearch:
		body, help = m.emailListView(&m.search)
	case viewDetail:
		body, help = m.detailView()
	case viewAccounts:
		body, help = m.accountsView()
	case viewNaverForm:
		body, help = m.naverView()
	case viewRules:
		body, help = m.rulesView()
	case viewRuleForm:
		body, help = m.ruleFormView()
	case viewProcessing:
		body, help = m.processingView()
	}

	var b strings.Builder
	if m.view.dashboard() {
		b.WriteString(m.header())
		b.WriteString("\n")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.sidebar(), body))
		help += " • I/M/S/A/R/P: 이동 • L: 로그아웃"
	} else {
		b.WriteString(body)
	}
	if m.confirm != nil {
		b.WriteString("\n\n")
		b.WriteString(promptStyle.Render(m.confirm.prompt + " (y/N)"))
	}
	b.WriteString("\n")
	b.WriteString(footer(help))
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}
	return b.String()
}

func (m *AppModel) header() string {
	title := headerStyle.Render("InboxAI")
	u := m.deps.Session.User()
	if u == nil {
		return title
	}
	who := u.Name()
	if who != u.OAuthEmail {
		who += " <" + u.OAuthEmail + ">"
	}
	return title + "  " + dimStyle.Render(who)
}

func (m *AppModel) sidebar() string {
	current := m.view
	switch current {
	case viewDetail:
		current = m.detail.from
	case viewNaverForm:
		current = viewAccounts
	case viewRuleForm:
		current = viewRules
	}
	var lines []string
	for _, r := range routes {
		line := r.key + "  " + r.label
		if r.view == current {
			lines = append(lines, activeNavStyle.Render("> "+line))
		} else {
			lines = append(lines, navStyle.Render("  "+line))
		}
	}
	return sidebarStyle.Render(strings.Join(lines, "\n"))
}
