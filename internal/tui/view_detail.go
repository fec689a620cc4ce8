package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"inboxai/internal/api"
	"inboxai/internal/model"
	"inboxai/internal/querycache"
	"inboxai/internal/ruleform"
	"inboxai/internal/util"
)

const (
	MsgConfirmDelete    = "이메일을 삭제하시겠습니까?"
	MsgDeleteFailed     = "이메일 삭제에 실패했습니다."
	MsgProcessDone      = "AI 처리가 완료되었습니다."
	MsgProcessStarted   = "AI 처리가 백그라운드에서 시작되었습니다. 잠시 후 새로고침해주세요."
	MsgProcessError     = "AI 처리 중 오류가 발생했습니다."
	MsgDownloadFailed   = "첨부파일 다운로드 중 오류가 발생했습니다."
	MsgNeedsProcessing  = "이 이메일이 아직 AI 처리되지 않았습니다. 스마트 필터 규칙을 생성하려면 먼저 AI 처리가 필요합니다.\n\nAI 처리를 진행하시겠습니까?"
	MsgRuleFromEmail    = "스마트 필터 규칙이 생성되었습니다. 앞으로 이와 유사한 메일은 자동으로 차단됩니다."
	MsgRuleCreateFailed = "규칙 생성 중 오류가 발생했습니다."
	msgLoadEmail        = "이메일을 불러오지 못했습니다."
	msgFlagFailed       = "이메일 상태 변경에 실패했습니다."
)

type detailView struct {
	id             string
	from           viewState
	includeDeleted bool
	wasUnread      bool

	email   *model.Email
	summary string
	loading bool
	err     string
	vp      viewport.Model

	// "block similar mail" dialog
	blocking bool
	block    ruleform.FromEmailForm
	name     textinput.Model
}

func newDetailView() detailView {
	ti := textinput.New()
	ti.Prompt = "규칙 이름: "
	ti.Placeholder = "예: 스팸 메일 삭제"
	ti.CharLimit = 100
	return detailView{vp: viewport.New(0, 0), name: ti, block: ruleform.NewFromEmailForm()}
}

func (m *AppModel) openEmail(e model.Email, from viewState) tea.Cmd {
	d := &m.detail
	d.id = e.ID
	d.from = from
	d.includeDeleted = e.IsDeleted || (from == viewInbox && inboxFilters[m.inbox.filter].value == "deleted")
	d.wasUnread = !e.IsRead
	d.email = nil
	d.summary = ""
	d.err = ""
	d.blocking = false
	return m.navigate(viewDetail)
}

func (m *AppModel) loadEmail() tea.Cmd {
	d := &m.detail
	id, inc := d.id, d.includeDeleted
	key := querycache.NewKey(querycache.Email, id, inc)
	emails, c := m.deps.API.Emails, m.deps.Cache
	d.loading = true
	return m.cmd(func(ctx context.Context) tea.Msg {
		e, err := querycache.Fetch(ctx, c, key, func(ctx context.Context) (*model.Email, error) {
			return emails.Get(ctx, id, inc)
		})
		return emailLoadedMsg{id: id, email: e, err: err}
	})
}

func (m *AppModel) onEmailLoaded(msg emailLoadedMsg) tea.Cmd {
	d := &m.detail
	if msg.id != d.id {
		return nil
	}
	d.loading = false
	if msg.err != nil {
		d.err = api.Message(msg.err, msgLoadEmail)
		return nil
	}
	d.err = ""
	d.email = msg.email
	d.render(m.now())
	d.vp.GotoTop()

	// Reading an unread email marks it read on the backend.
	if d.wasUnread {
		d.wasUnread = false
		m.invalidate(querycache.Emails)
	}
	return nil
}

func (m *AppModel) loadSummary(id string) tea.Cmd {
	emails := m.deps.API.Emails
	m.status = "요약 불러오는 중..."
	return m.cmd(func(ctx context.Context) tea.Msg {
		s, err := emails.Summary(ctx, id)
		return summaryLoadedMsg{id: id, summary: s, err: err}
	})
}

func (m *AppModel) onSummaryLoaded(msg summaryLoadedMsg) tea.Cmd {
	if msg.err != nil {
		return m.setStatus(api.Message(msg.err, "요약을 불러오지 못했습니다."))
	}
	if msg.id != m.detail.id {
		return nil
	}
	m.detail.summary = msg.summary
	m.detail.render(m.now())
	m.status = ""
	return nil
}

func (m *AppModel) detailKey(msg tea.KeyMsg) tea.Cmd {
	d := &m.detail
	if d.blocking {
		return m.blockKey(msg)
	}
	key := msg.String()
	if key == "esc" || key == "backspace" {
		return m.navigate(d.from)
	}
	if d.email == nil {
		return nil
	}
	e := *d.email

	switch key {
	case "i":
		return m.setFlag("important", e.ID, !e.IsImportant)
	case "a":
		return m.setFlag("archive", e.ID, !e.IsArchived)
	case "u":
		return m.setFlag("read", e.ID, !e.IsRead)
	case "d":
		m.ask(MsgConfirmDelete, func(m *AppModel) tea.Cmd {
			return m.deleteEmail(e.ID)
		})
		return nil
	case "x":
		return m.processEmail(e.ID, false)
	case "X":
		return m.processEmail(e.ID, true)
	case "s":
		return m.loadSummary(e.ID)
	case "b":
		d.blocking = true
		d.block = ruleform.NewFromEmailForm()
		d.name.Reset()
		return d.name.Focus()
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		idx := int(key[0] - '1')
		if idx < len(e.Attachments) {
			return m.download(e.ID, idx, e.Attachments[idx].Filename)
		}
		return nil
	case "r":
		m.invalidate(querycache.Email)
		return m.loadEmail()
	}

	var cmd tea.Cmd
	d.vp, cmd = d.vp.Update(msg)
	return cmd
}

func (m *AppModel) setFlag(flag, id string, v bool) tea.Cmd {
	emails := m.deps.API.Emails
	return m.cmd(func(ctx context.Context) tea.Msg {
		var err error
		switch flag {
		case "important":
			err = emails.MarkImportant(ctx, id, v)
		case "archive":
			err = emails.Archive(ctx, id, v)
		case "read":
			err = emails.MarkRead(ctx, id, v)
		}
		return actionResultMsg{
			action:     flag,
			fallback:   msgFlagFailed,
			err:        err,
			invalidate: []string{querycache.Email, querycache.Emails},
		}
	})
}

func (m *AppModel) deleteEmail(id string) tea.Cmd {
	emails := m.deps.API.Emails
	return m.cmd(func(ctx context.Context) tea.Msg {
		return actionResultMsg{
			action:     "delete",
			message:    "이메일이 삭제되었습니다.",
			fallback:   MsgDeleteFailed,
			err:        emails.Delete(ctx, id),
			invalidate: []string{querycache.Email, querycache.Emails},
			back:       true,
		}
	})
}

// processEmail runs the AI pipeline on one email. In async mode the backend
// only queues it, so the email is re-read after a delay.
func (m *AppModel) processEmail(id string, async bool) tea.Cmd {
	agent := m.deps.API.Agent
	m.status = "AI 처리 중..."
	return m.cmd(func(ctx context.Context) tea.Msg {
		res, err := agent.Process(ctx, id, async)
		out := actionResultMsg{action: "process", fallback: MsgProcessError, err: err}
		switch {
		case err != nil:
		case async:
			out.message = MsgProcessStarted
			out.invalidate = []string{querycache.Email, querycache.Emails}
			out.after = asyncSettle
		case res.Success:
			out.message = MsgProcessDone
			out.invalidate = []string{querycache.Email, querycache.Emails}
		default:
			out.err = processError(res.Errors)
			out.fallback = out.err.Error()
		}
		return out
	})
}

func processError(errs []model.NodeError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error)
	}
	detail := strings.Join(msgs, ", ")
	if detail == "" {
		detail = "알 수 없는 오류"
	}
	return errors.New("AI 처리 중 오류가 발생했습니다: " + detail)
}

func (m *AppModel) download(id string, index int, name string) tea.Cmd {
	dir := os.TempDir()
	if m.deps.Config != nil && m.deps.Config.DownloadDir != "" {
		dir = m.deps.Config.DownloadDir
	}
	emails := m.deps.API.Emails
	m.status = "다운로드 중: " + name
	return m.cmd(func(ctx context.Context) tea.Msg {
		dl, err := emails.DownloadAttachment(ctx, id, index)
		if err != nil {
			return downloadMsg{err: err}
		}
		path, err := saveDownload(dir, dl, name)
		return downloadMsg{path: path, err: err}
	})
}

// saveDownload writes dl into dir without overwriting existing files.
func saveDownload(dir string, dl *api.Download, fallback string) (string, error) {
	name := filepath.Base(dl.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = filepath.Base(fallback)
	}
	if name == "." || name == "" {
		name = "attachment"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		if _, err := f.Write(dl.Data); err != nil {
			f.Close()
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		return path, f.Close()
	}
}

func (m *AppModel) blockKey(msg tea.KeyMsg) tea.Cmd {
	d := &m.detail
	switch msg.String() {
	case "esc":
		d.blocking = false
		d.name.Blur()
		return nil
	case "up":
		d.block.SetThreshold(d.block.SimilarityThreshold + ruleform.ThresholdStep)
		return nil
	case "down":
		d.block.SetThreshold(d.block.SimilarityThreshold - ruleform.ThresholdStep)
		return nil
	case "enter":
		return m.createRuleFromEmail()
	}
	var cmd tea.Cmd
	d.name, cmd = d.name.Update(msg)
	return cmd
}

// createRuleFromEmail needs the email's vector embedding, which exists only
// after AI processing; without it the user is offered processing first.
func (m *AppModel) createRuleFromEmail() tea.Cmd {
	d := &m.detail
	d.block.Name = d.name.Value()
	req, err := d.block.Request()
	if err != nil {
		return m.setStatus(err.Error())
	}
	d.block.SimilarityThreshold = *req.SimilarityThreshold
	if d.email == nil {
		return nil
	}
	id := d.email.ID
	if d.email.VectorDBID == nil || *d.email.VectorDBID == "" {
		m.ask(MsgNeedsProcessing, func(m *AppModel) tea.Cmd {
			return m.processEmail(id, false)
		})
		return nil
	}

	rules := m.deps.API.Rules
	d.blocking = false
	d.name.Blur()
	return m.cmd(func(ctx context.Context) tea.Msg {
		_, err := rules.CreateFromEmail(ctx, id, req)
		return actionResultMsg{
			action:     "rule from email",
			message:    MsgRuleFromEmail,
			fallback:   MsgRuleCreateFailed,
			err:        err,
			invalidate: []string{querycache.Rules},
		}
	})
}

// render lays the email out into the viewport.
func (d *detailView) render(now time.Time) {
	e := d.email
	if e == nil {
		return
	}
	var b strings.Builder
	subject := e.Subject
	if subject == "" {
		subject = "(제목 없음)"
	}
	b.WriteString(headerStyle.Render(subject))
	b.WriteString("\n")
	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(labelStyle.Render(label+": ") + value + "\n")
	}
	field("보낸 사람", e.Sender)
	field("받는 사람", e.Recipient)
	field("날짜", util.FormatDateTime(e.EmailDate))

	var flags []string
	flags = append(flags, statusLabel(e.Status))
	if e.IsImportant {
		flags = append(flags, "★ 중요")
	}
	if e.IsArchived {
		flags = append(flags, "보관됨")
	}
	if e.IsDeleted {
		flags = append(flags, "삭제됨")
	}
	field("상태", strings.Join(flags, " · "))
	if e.ProcessedAt != nil {
		field("AI 처리", util.Relative(e.ProcessedAt, now))
	}

	summary := d.summary
	if summary == "" && e.Summary != nil {
		summary = *e.Summary
	}
	if summary != "" || e.ImportanceLevel != nil || e.Classification != nil {
		b.WriteString("\n" + headerStyle.Render("AI 분석") + "\n")
		field("요약", summary)
		if e.ImportanceLevel != nil {
			level := *e.ImportanceLevel
			if e.ImportanceScore != nil {
				level += fmt.Sprintf(" (%.2f)", *e.ImportanceScore)
			}
			field("중요도", level)
		}
		if c := e.Classification; c != nil {
			field("분류", c.Category)
			field("태그", strings.Join(c.Tags, ", "))
		}
		if e.Sentiment != nil {
			field("감정", *e.Sentiment)
		}
	}

	if len(e.Attachments) > 0 {
		b.WriteString("\n" + headerStyle.Render(fmt.Sprintf("첨부파일 (%d)", len(e.Attachments))) + "\n")
		for i, a := range e.Attachments {
			fmt.Fprintf(&b, "%d. %s  %s  %s\n", i+1, a.Filename, dimStyle.Render(util.Size(a.Size)), dimStyle.Render(a.MimeType))
		}
	}

	b.WriteString("\n" + headerStyle.Render("본문") + "\n")
	b.WriteString(util.BodyText(e.BodyText, e.BodyHTML))

	content := b.String()
	if d.vp.Width > 0 {
		content = lipgloss.NewStyle().Width(d.vp.Width).Render(content)
	}
	d.vp.SetContent(content)
}

func (m *AppModel) detailView() (string, string) {
	d := &m.detail
	switch {
	case d.err != "":
		return errorStyle.Render(d.err), "r: 다시 시도 • esc: 뒤로"
	case d.email == nil:
		return "불러오는 중...", "esc: 뒤로"
	}
	if d.blocking {
		var b strings.Builder
		b.WriteString(headerStyle.Render("스마트 필터 규칙 생성"))
		b.WriteString("\n\n")
		b.WriteString(d.name.View())
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "유사도 임계값: %.2f\n", d.block.SimilarityThreshold)
		b.WriteString(dimStyle.Render("낮을수록 더 유사한 메일만 차단합니다."))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("참고: 이 이메일과 유사한 메일이 자동으로 차단됩니다."))
		return b.String(), "enter: 생성 • ↑/↓: 임계값 • esc: 취소"
	}
	help := "i: 중요 • a: 보관 • u: 읽음 • d: 삭제 • x/X: AI 처리(동기/백그라운드) • s: 요약 • b: 유사 메일 차단"
	if len(d.email.Attachments) > 0 {
		help += " • 1-9: 첨부 저장"
	}
	return d.vp.View(), help + " • esc: 뒤로"
}
