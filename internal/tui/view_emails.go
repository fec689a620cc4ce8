package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/text/unicode/norm"

	"inboxai/internal/api"
	"inboxai/internal/model"
	"inboxai/internal/querycache"
	"inboxai/internal/util"
)

const (
	MsgSyncStarted = "이메일 동기화가 시작되었습니다. 잠시 후 새로고침해주세요."
	MsgSyncFailed  = "이메일 동기화에 실패했습니다."
	msgLoadEmails  = "이메일을 불러오지 못했습니다."
)

type listKind int

const (
	kindInbox listKind = iota
	kindImportant
	kindSearch
)

type inboxFilter struct {
	value string
	label string
}

var inboxFilters = []inboxFilter{
	{"all", "전체"},
	{"unread", "읽지 않음"},
	{"important", "중요"},
	{"processed", "AI 처리됨"},
	{"pending", "미처리"},
	{"deleted", "삭제됨"},
}

// applyFilter maps an inbox filter chip onto list parameters. Chips that
// are not flags are email statuses.
func applyFilter(p *api.ListParams, filter string) {
	t, f := true, false
	switch filter {
	case "", "all":
	case "unread":
		p.IsRead = &f
	case "important":
		p.IsImportant = &t
	case "deleted":
		p.IsDeleted = &t
	default:
		p.Status = model.EmailStatus(filter)
	}
}

func statusLabel(s model.EmailStatus) string {
	switch s {
	case model.StatusProcessed:
		return "AI 처리됨"
	case model.StatusProcessing:
		return "처리 중"
	case model.StatusPending:
		return "미처리"
	case model.StatusFailed:
		return "실패"
	}
	return string(s)
}

// emailItem wraps an email for the bubbles list.
type emailItem struct {
	email model.Email
	now   time.Time
}

func (i emailItem) FilterValue() string { return i.email.Subject }

func (i emailItem) Title() string {
	mark := "  "
	switch {
	case i.email.IsImportant:
		mark = "★ "
	case !i.email.IsRead:
		mark = "● "
	}
	subject := i.email.Subject
	if subject == "" {
		subject = "(제목 없음)"
	}
	return mark + subject
}

func (i emailItem) Description() string {
	parts := []string{
		util.SenderDisplay(i.email.Sender),
		util.ShortDate(i.email.EmailDate, i.now),
		statusLabel(i.email.Status),
	}
	if i.email.HasAttachments || i.email.AttachmentCount > 0 {
		parts = append(parts, fmt.Sprintf("첨부 %d", i.email.AttachmentCount))
	}
	if i.email.Summary != nil && *i.email.Summary != "" {
		parts = append(parts, *i.email.Summary)
	}
	return strings.Join(parts, " · ")
}

type emailList struct {
	kind  listKind
	list  list.Model
	input textinput.Model

	filter int // index into inboxFilters
	query  string
	page   int

	total      int
	totalPages int
	key        querycache.Key
	loading    bool
	err        string
}

func newEmailList(kind listKind, title string) emailList {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	// Remove esc from the list's built-in Quit binding so it doesn't exit on back
	l.KeyMap.Quit.SetKeys("q")

	ti := textinput.New()
	ti.Prompt = "검색: "
	ti.Placeholder = "제목, 발신자, 본문"
	ti.CharLimit = 200
	return emailList{kind: kind, list: l, input: ti, page: 1}
}

// params builds the request for the current page. The search view sends
// only the query and page.
func (l *emailList) params(pageSize int) api.ListParams {
	p := api.ListParams{Page: l.page}
	switch l.kind {
	case kindInbox:
		p.PageSize = pageSize
		p.Search = l.query
		applyFilter(&p, inboxFilters[l.filter].value)
	case kindImportant:
		p.PageSize = pageSize
		t := true
		p.IsImportant = &t
	case kindSearch:
		p.Search = l.query
	}
	return p
}

func (l *emailList) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if l.input.Focused() {
		l.input, cmd = l.input.Update(msg)
		return cmd
	}
	l.list, cmd = l.list.Update(msg)
	return cmd
}

func (m *AppModel) listOf(kind listKind) *emailList {
	switch kind {
	case kindImportant:
		return &m.important
	case kindSearch:
		return &m.search
	}
	return &m.inbox
}

func (m *AppModel) pageSize() int {
	if m.deps.Config != nil && m.deps.Config.PageSize > 0 {
		return m.deps.Config.PageSize
	}
	return 20
}

func (m *AppModel) loadEmails(l *emailList) tea.Cmd {
	if l.kind == kindSearch && l.query == "" {
		l.key = ""
		l.total, l.totalPages = 0, 0
		return l.list.SetItems(nil)
	}
	p := l.params(m.pageSize())
	key := querycache.NewKey(querycache.Emails, p.Values().Encode())
	l.key = key
	l.loading = true

	kind := l.kind
	emails, c := m.deps.API.Emails, m.deps.Cache
	return m.cmd(func(ctx context.Context) tea.Msg {
		page, err := querycache.Fetch(ctx, c, key, func(ctx context.Context) (*model.Page[model.Email], error) {
			return emails.List(ctx, p)
		})
		return emailsLoadedMsg{kind: kind, key: key, page: page, err: err}
	})
}

func (m *AppModel) onEmailsLoaded(msg emailsLoadedMsg) tea.Cmd {
	l := m.listOf(msg.kind)
	if msg.key != l.key {
		return nil // superseded by a newer filter or page
	}
	l.loading = false
	if msg.err != nil {
		l.err = api.Message(msg.err, msgLoadEmails)
		return nil
	}
	l.err = ""
	l.total = msg.page.Total
	l.totalPages = msg.page.TotalPages
	now := m.now()
	items := make([]list.Item, len(msg.page.Items))
	for i, e := range msg.page.Items {
		items[i] = emailItem{email: e, now: now}
	}
	return l.list.SetItems(items)
}

func (m *AppModel) emailListKey(l *emailList, msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if l.input.Focused() {
		switch key {
		case "esc":
			l.input.Blur()
			if l.kind == kindInbox && l.query != "" {
				l.input.Reset()
				l.query = ""
				l.page = 1
				return m.loadEmails(l)
			}
			return nil
		case "enter":
			l.input.Blur()
			l.query = norm.NFC.String(strings.TrimSpace(l.input.Value()))
			l.page = 1
			return m.loadEmails(l)
		}
		var cmd tea.Cmd
		l.input, cmd = l.input.Update(msg)
		return cmd
	}

	switch key {
	case "enter":
		if it, ok := l.list.SelectedItem().(emailItem); ok {
			return m.openEmail(it.email, m.view)
		}
		return nil
	case "/":
		if l.kind != kindImportant {
			return l.input.Focus()
		}
	case "n", "]":
		if l.page < l.totalPages {
			l.page++
			return m.loadEmails(l)
		}
		return nil
	case "p", "[":
		if l.page > 1 {
			l.page--
			return m.loadEmails(l)
		}
		return nil
	case "r":
		m.invalidate(querycache.Emails)
		return m.loadEmails(l)
	case "tab", "shift+tab":
		if l.kind == kindInbox {
			n := len(inboxFilters)
			if key == "tab" {
				l.filter = (l.filter + 1) % n
			} else {
				l.filter = (l.filter + n - 1) % n
			}
			l.page = 1
			return m.loadEmails(l)
		}
	case "s":
		if l.kind == kindInbox {
			return m.syncEmails()
		}
	}

	var cmd tea.Cmd
	l.list, cmd = l.list.Update(msg)
	return cmd
}

// syncEmails asks the backend to fetch new mail from every connected
// account. Fetching runs in the background, so the lists are re-read after
// a short delay.
func (m *AppModel) syncEmails() tea.Cmd {
	emails := m.deps.API.Emails
	m.status = "동기화 요청 중..."
	return m.cmd(func(ctx context.Context) tea.Msg {
		_, err := emails.Ingest(ctx, "")
		return actionResultMsg{
			action:     "sync",
			message:    MsgSyncStarted,
			fallback:   MsgSyncFailed,
			err:        err,
			invalidate: []string{querycache.Emails},
			after:      syncSettle,
		}
	})
}

func filterChips(selected int) string {
	chips := make([]string, len(inboxFilters))
	for i, f := range inboxFilters {
		if i == selected {
			chips[i] = activeChipStyle.Render(f.label)
		} else {
			chips[i] = chipStyle.Render(f.label)
		}
	}
	return strings.Join(chips, " ")
}

func (m *AppModel) emailListView(l *emailList) (string, string) {
	var b strings.Builder
	if l.kind == kindInbox {
		b.WriteString(filterChips(l.filter))
		b.WriteString("\n")
	}
	if l.kind != kindImportant && (l.input.Focused() || l.query != "") {
		b.WriteString(l.input.View())
		b.WriteString("\n")
	}

	switch {
	case l.err != "":
		b.WriteString(errorStyle.Render(l.err))
	case l.kind == kindSearch && l.query == "":
		b.WriteString(dimStyle.Render("검색어를 입력하세요."))
	case l.loading && len(l.list.Items()) == 0:
		b.WriteString("불러오는 중...")
	case len(l.list.Items()) == 0:
		if l.kind == kindSearch {
			b.WriteString(dimStyle.Render("검색 결과가 없습니다."))
		} else {
			b.WriteString(dimStyle.Render("이메일이 없습니다."))
		}
	default:
		b.WriteString(l.list.View())
		pages := l.totalPages
		if pages < 1 {
			pages = 1
		}
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%d / %d 페이지 · 총 %d개", l.page, pages, l.total)))
	}

	if l.input.Focused() {
		return b.String(), "enter: 검색 • esc: 취소"
	}
	help := "enter: 열기 • n/p: 다음/이전 페이지 • r: 새로고침"
	switch l.kind {
	case kindInbox:
		help += " • tab: 필터 • /: 검색 • s: 동기화"
	case kindSearch:
		help += " • /: 검색어 입력"
	}
	return b.String(), help + " • q: 종료"
}
