package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"inboxai/internal/api"
	"inboxai/internal/model"
	"inboxai/internal/querycache"
	"inboxai/internal/util"
)

const (
	MsgProcessNowFailed = "처리 시작에 실패했습니다."
	MsgBatchFailed      = "일괄 처리 시작에 실패했습니다."
	msgLoadProcessing   = "처리 현황을 불러오지 못했습니다."
	defaultPollInterval = 5 * time.Second
)

type processingSnapshot struct {
	Stats      *model.ProcessingStats  `json:"stats"`
	Processing []model.ProcessingEmail `json:"processing"`
	Pending    []model.ProcessingEmail `json:"pending"`
}

// rows is the processing queue followed by the pending queue, the order
// the cursor walks.
func (s processingSnapshot) rows() []model.ProcessingEmail {
	out := make([]model.ProcessingEmail, 0, len(s.Processing)+len(s.Pending))
	out = append(out, s.Processing...)
	return append(out, s.Pending...)
}

// processingView polls while it is the active view. gen identifies the
// current visit; ticks from an earlier visit stop rescheduling.
type processingView struct {
	gen    int
	snap   processingSnapshot
	loaded bool
	err    string
	cursor int
	busy   map[string]bool
}

func newProcessingView() processingView {
	return processingView{busy: map[string]bool{}}
}

func (m *AppModel) pollInterval() time.Duration {
	if m.deps.Config != nil && m.deps.Config.PollInterval > 0 {
		return m.deps.Config.PollInterval
	}
	return defaultPollInterval
}

func (m *AppModel) pollAfter(gen int) tea.Cmd {
	return tea.Tick(m.pollInterval(), func(time.Time) tea.Msg {
		return pollTickMsg{gen: gen}
	})
}

func (m *AppModel) onPollTick(msg pollTickMsg) tea.Cmd {
	if m.view != viewProcessing || msg.gen != m.processing.gen {
		return nil
	}
	m.invalidate(querycache.Agent)
	return tea.Batch(m.loadProcessing(), m.pollAfter(msg.gen))
}

// loadProcessing reads the stats and both queues concurrently.
func (m *AppModel) loadProcessing() tea.Cmd {
	agent, c := m.deps.API.Agent, m.deps.Cache
	gen := m.processing.gen
	key := querycache.NewKey(querycache.Agent, "snapshot")
	return m.cmd(func(ctx context.Context) tea.Msg {
		snap, err := querycache.Fetch(ctx, c, key, func(ctx context.Context) (processingSnapshot, error) {
			var s processingSnapshot
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() (err error) {
				s.Stats, err = agent.Stats(ctx)
				return err
			})
			g.Go(func() (err error) {
				s.Processing, err = agent.Processing(ctx)
				return err
			})
			g.Go(func() (err error) {
				s.Pending, err = agent.Pending(ctx)
				return err
			})
			return s, g.Wait()
		})
		return processingLoadedMsg{gen: gen, snap: snap, err: err}
	})
}

func (m *AppModel) onProcessingLoaded(msg processingLoadedMsg) {
	p := &m.processing
	if msg.gen != p.gen {
		return
	}
	if msg.err != nil {
		p.err = api.Message(msg.err, msgLoadProcessing)
		return
	}
	p.err = ""
	p.loaded = true
	p.snap = msg.snap
	pending := make(map[string]bool, len(p.snap.Pending))
	for _, e := range p.snap.Pending {
		pending[e.ID] = true
	}
	for id := range p.busy {
		if !pending[id] {
			delete(p.busy, id)
		}
	}
	if n := len(p.snap.rows()); p.cursor >= n {
		p.cursor = max(n-1, 0)
	}
}

func (m *AppModel) processingKey(msg tea.KeyMsg) tea.Cmd {
	p := &m.processing
	rows := p.snap.rows()
	switch msg.String() {
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(rows)-1 {
			p.cursor++
		}
	case "r":
		m.invalidate(querycache.Agent)
		return m.loadProcessing()
	case "enter":
		if p.cursor < len(rows) {
			row := rows[p.cursor]
			return m.openEmail(model.Email{ID: row.ID, IsRead: true}, viewProcessing)
		}
	case "x":
		if p.cursor >= len(p.snap.Processing) && p.cursor < len(rows) {
			return m.processNow(rows[p.cursor].ID)
		}
	case "a":
		return m.processPending()
	}
	return nil
}

// processPending queues every pending email in one batch request.
func (m *AppModel) processPending() tea.Cmd {
	p := &m.processing
	var ids []string
	for _, e := range p.snap.Pending {
		if !p.busy[e.ID] {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		p.busy[id] = true
	}
	agent := m.deps.API.Agent
	return m.cmd(func(ctx context.Context) tea.Msg {
		res, err := agent.ProcessBatch(ctx, ids, true)
		out := actionResultMsg{
			action:     "process batch",
			fallback:   MsgBatchFailed,
			err:        err,
			invalidate: []string{querycache.Agent, querycache.Emails, querycache.Email},
			after:      asyncSettle,
		}
		if err == nil {
			out.message = res.Message
			if out.message == "" {
				out.message = fmt.Sprintf("%d개 이메일의 AI 처리를 시작했습니다.", len(ids))
			}
		}
		return batchResultMsg{ids: ids, result: out}
	})
}

// onBatchResult releases the ids when the batch was refused so they can be
// retried. Accepted ids stay busy until they leave the pending queue.
func (m *AppModel) onBatchResult(msg batchResultMsg) tea.Cmd {
	if msg.result.err != nil {
		for _, id := range msg.ids {
			delete(m.processing.busy, id)
		}
	}
	return m.onActionResult(msg.result)
}

// processNow runs the pipeline on a pending email and refreshes the queues
// shortly after.
func (m *AppModel) processNow(id string) tea.Cmd {
	p := &m.processing
	if p.busy[id] {
		return nil
	}
	p.busy[id] = true
	agent := m.deps.API.Agent
	return m.cmd(func(ctx context.Context) tea.Msg {
		_, err := agent.Process(ctx, id, false)
		return processNowMsg{id: id, err: err}
	})
}

func (m *AppModel) onProcessNow(msg processNowMsg) tea.Cmd {
	delete(m.processing.busy, msg.id)
	return m.onActionResult(actionResultMsg{
		action:     "process now",
		fallback:   MsgProcessNowFailed,
		err:        msg.err,
		invalidate: []string{querycache.Agent, querycache.Emails, querycache.Email},
		after:      processSettle,
	})
}

func (m *AppModel) processingView() (string, string) {
	p := &m.processing
	help := "↑/↓: 이동 • enter: 상세 보기 • x: 지금 처리 • a: 대기 중 모두 처리 • r: 새로고침 • q: 종료"
	var b strings.Builder
	b.WriteString(headerStyle.Render("AI 처리 상태"))
	b.WriteString("\n")
	switch {
	case p.err != "":
		b.WriteString(errorStyle.Render(p.err))
		return b.String(), help
	case !p.loaded:
		b.WriteString("불러오는 중...")
		return b.String(), help
	}

	if s := p.snap.Stats; s != nil {
		fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n\n",
			labelStyle.Render("처리됨"), successStyle.Render(fmt.Sprint(s.Processed)),
			labelStyle.Render("처리 중"), fmt.Sprint(s.Processing),
			labelStyle.Render("대기 중"), fmt.Sprint(s.Pending))
	}

	now := m.now()
	row := 0
	section := func(title string, items []model.ProcessingEmail, state func(model.ProcessingEmail) string) {
		if len(items) == 0 {
			return
		}
		b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", title, len(items))))
		b.WriteString("\n")
		for _, e := range items {
			cursor := "  "
			if row == p.cursor {
				cursor = activeNavStyle.Render("> ")
			}
			started := e.StartedAt
			fmt.Fprintf(&b, "%s%s\n    %s · %s · %s\n", cursor, e.Subject,
				dimStyle.Render("From: "+e.Sender), state(e),
				dimStyle.Render(util.Relative(&started, now)))
			row++
		}
		b.WriteString("\n")
	}
	section("처리 중인 이메일", p.snap.Processing, func(e model.ProcessingEmail) string {
		if e.CurrentStep != "" {
			return "⏳ " + e.CurrentStep
		}
		return "⏳ 처리 중..."
	})
	section("대기 중인 이메일", p.snap.Pending, func(e model.ProcessingEmail) string {
		if p.busy[e.ID] {
			return "⏳ 처리 중..."
		}
		return "⏸ 처리 대기 중"
	})
	if row == 0 {
		b.WriteString(dimStyle.Render("처리 중이거나 대기 중인 이메일이 없습니다."))
	}
	return b.String(), help
}
