package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"inboxai/internal/api"
	"inboxai/internal/model"
	"inboxai/internal/querycache"
	"inboxai/internal/ruleform"
	"inboxai/internal/util"
)

const (
	MsgToggleFailed     = "규칙 상태 변경 중 오류가 발생했습니다."
	MsgConfirmRuleDel   = "이 규칙을 삭제하시겠습니까?"
	MsgRuleDeleted      = "규칙이 삭제되었습니다."
	MsgRuleDeleteFailed = "규칙 삭제 중 오류가 발생했습니다."
	MsgNoRules          = "등록된 스마트 필터 규칙이 없습니다."
	msgLoadRules        = "규칙을 불러오지 못했습니다."
)

type ruleItem struct{ rule model.UserRule }

func (i ruleItem) FilterValue() string { return i.rule.RuleName }

func (i ruleItem) Title() string {
	t := i.rule.RuleName
	if !i.rule.IsActive {
		t += "  (비활성화)"
	}
	return t
}

func (i ruleItem) Description() string {
	return ruleform.TypeLabel(i.rule.RuleType) + " · " + ruleform.ActionLabel(i.rule.Action)
}

// ruleDetails lists the fields worth showing for r's type.
func ruleDetails(r model.UserRule) []string {
	var out []string
	add := func(label, value string) {
		if value != "" {
			out = append(out, label+": "+value)
		}
	}
	switch r.RuleType {
	case model.RuleSimilarity:
		if r.ReferenceEmailID != nil {
			add("예시 이메일 ID", strconv.FormatInt(*r.ReferenceEmailID, 10))
		}
		if r.SimilarityThreshold != nil {
			add("유사도 임계값", fmt.Sprintf("%.2f", *r.SimilarityThreshold))
		}
	case model.RuleMetadata:
		add("발신자", r.SenderFilter)
		add("제목 키워드", strings.Join(r.SubjectKeywords, ", "))
		add("카테고리", r.CategoryFilter)
	case model.RuleClassification:
		add("카테고리", r.ClassificationCategory)
		add("태그", strings.Join(r.ClassificationTags, ", "))
	}
	add("우선순위", strconv.Itoa(r.Priority))
	add("생성일", util.FormatDateTime(r.CreatedAt))
	return out
}

type rulesView struct {
	list     list.Model
	active   *bool
	ruleType model.RuleType
	key      querycache.Key
	loaded   bool
	err      string
}

func newRulesView() rulesView {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "스마트 필터 규칙"
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetKeys("q")
	return rulesView{list: l}
}

func (r *rulesView) filter() api.RuleFilter {
	return api.RuleFilter{IsActive: r.active, RuleType: r.ruleType}
}

// cycleActive steps through all, active, inactive.
func (r *rulesView) cycleActive() {
	switch {
	case r.active == nil:
		t := true
		r.active = &t
	case *r.active:
		f := false
		r.active = &f
	default:
		r.active = nil
	}
}

// cycleType steps through all and then each rule type.
func (r *rulesView) cycleType() {
	if r.ruleType == "" {
		r.ruleType = model.RuleTypes[0]
		return
	}
	for i, t := range model.RuleTypes {
		if t == r.ruleType {
			if i+1 < len(model.RuleTypes) {
				r.ruleType = model.RuleTypes[i+1]
			} else {
				r.ruleType = ""
			}
			return
		}
	}
	r.ruleType = ""
}

func (m *AppModel) loadRules() tea.Cmd {
	r := &m.rules
	f := r.filter()
	key := querycache.NewKey(querycache.Rules, f.IsActive, string(f.RuleType))
	r.key = key
	rules, c := m.deps.API.Rules, m.deps.Cache
	return m.cmd(func(ctx context.Context) tea.Msg {
		found, err := querycache.Fetch(ctx, c, key, func(ctx context.Context) ([]model.UserRule, error) {
			return rules.List(ctx, f)
		})
		return rulesLoadedMsg{key: key, rules: found, err: err}
	})
}

func (m *AppModel) onRulesLoaded(msg rulesLoadedMsg) {
	r := &m.rules
	if msg.key != r.key {
		return
	}
	if msg.err != nil {
		r.err = api.Message(msg.err, msgLoadRules)
		return
	}
	r.err = ""
	r.loaded = true
	items := make([]list.Item, len(msg.rules))
	for i, rule := range msg.rules {
		items[i] = ruleItem{rule: rule}
	}
	r.list.SetItems(items)
}

func (m *AppModel) selectedRule() (model.UserRule, bool) {
	it, ok := m.rules.list.SelectedItem().(ruleItem)
	return it.rule, ok
}

func (m *AppModel) rulesKey(msg tea.KeyMsg) tea.Cmd {
	r := &m.rules
	switch msg.String() {
	case "a":
		r.cycleActive()
		return m.loadRules()
	case "t":
		r.cycleType()
		return m.loadRules()
	case "c":
		r.active, r.ruleType = nil, ""
		return m.loadRules()
	case "r":
		m.invalidate(querycache.Rules)
		return m.loadRules()
	case "n":
		return m.openRuleForm(nil)
	case "e", "enter":
		if rule, ok := m.selectedRule(); ok {
			return m.openRuleForm(&rule)
		}
		return nil
	case " ", "space":
		if rule, ok := m.selectedRule(); ok {
			return m.toggleRule(rule.ID)
		}
		return nil
	case "d":
		rule, ok := m.selectedRule()
		if !ok {
			return nil
		}
		id := rule.ID
		m.ask(MsgConfirmRuleDel, func(m *AppModel) tea.Cmd {
			return m.deleteRule(id)
		})
		return nil
	}
	var cmd tea.Cmd
	r.list, cmd = r.list.Update(msg)
	return cmd
}

func (m *AppModel) toggleRule(id int64) tea.Cmd {
	rules := m.deps.API.Rules
	return m.cmd(func(ctx context.Context) tea.Msg {
		_, err := rules.Toggle(ctx, id)
		return actionResultMsg{
			action:     "toggle rule",
			fallback:   MsgToggleFailed,
			err:        err,
			invalidate: []string{querycache.Rules},
		}
	})
}

func (m *AppModel) deleteRule(id int64) tea.Cmd {
	rules := m.deps.API.Rules
	return m.cmd(func(ctx context.Context) tea.Msg {
		return actionResultMsg{
			action:     "delete rule",
			message:    MsgRuleDeleted,
			fallback:   MsgRuleDeleteFailed,
			err:        rules.Delete(ctx, id),
			invalidate: []string{querycache.Rules},
		}
	})
}

func (m *AppModel) rulesView() (string, string) {
	r := &m.rules
	var b strings.Builder

	state := "전체"
	if r.active != nil {
		state = "비활성화"
		if *r.active {
			state = "활성화"
		}
	}
	typ := "전체"
	if r.ruleType != "" {
		typ = ruleform.TypeLabel(r.ruleType)
	}
	fmt.Fprintf(&b, "%s %s   %s %s   %s\n",
		labelStyle.Render("상태:"), state,
		labelStyle.Render("타입:"), typ,
		dimStyle.Render(fmt.Sprintf("총 %d개의 규칙", len(r.list.Items()))))

	help := "a: 상태 필터 • t: 타입 필터 • c: 필터 초기화 • space: 활성/비활성 • e: 수정 • d: 삭제 • n: 새 규칙 • q: 종료"
	switch {
	case r.err != "":
		b.WriteString(errorStyle.Render(r.err))
		return b.String(), help
	case !r.loaded:
		b.WriteString("불러오는 중...")
		return b.String(), help
	case len(r.list.Items()) == 0:
		b.WriteString(dimStyle.Render(MsgNoRules))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("이메일 상세 화면에서 b 키로 유사 메일 차단 규칙을 만들 수 있습니다."))
		return b.String(), help
	}

	b.WriteString(r.list.View())
	if rule, ok := m.selectedRule(); ok {
		b.WriteString("\n")
		if rule.Description != "" {
			b.WriteString(rule.Description)
			b.WriteString("\n")
		}
		b.WriteString(dimStyle.Render(strings.Join(ruleDetails(rule), " · ")))
	}
	return b.String(), help
}
