package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"inboxai/internal/api"
	"inboxai/internal/model"
	"inboxai/internal/querycache"
	"inboxai/internal/ruleform"
)

const (
	MsgRuleCreated     = "규칙이 생성되었습니다."
	MsgRuleUpdated     = "규칙이 수정되었습니다."
	MsgRuleSaveFailed  = "규칙 저장 중 오류가 발생했습니다."
	msgNoImportance    = "(선택 안 함)"
	msgNoAttachmentSet = "(상관 없음)"
)

type fieldID int

const (
	fName fieldID = iota
	fType
	fAction
	fReference
	fThreshold
	fSender
	fSenderPattern
	fKeywords
	fSubjectPattern
	fCategory
	fImportance
	fFolder
	fAttachments
	fClassCategory
	fClassTags
	fDescription
	fPriority
	fieldCount
)

var fieldLabels = [fieldCount]string{
	fName:           "규칙 이름",
	fType:           "규칙 타입",
	fAction:         "동작",
	fReference:      "예시 이메일 ID",
	fThreshold:      "유사도 임계값",
	fSender:         "발신자",
	fSenderPattern:  "발신자 패턴 (정규식)",
	fKeywords:       "제목 키워드 (쉼표 구분)",
	fSubjectPattern: "제목 패턴 (정규식)",
	fCategory:       "카테고리",
	fImportance:     "중요도",
	fFolder:         "폴더",
	fAttachments:    "첨부파일 여부",
	fClassCategory:  "분류 카테고리",
	fClassTags:      "분류 태그 (쉼표 구분)",
	fDescription:    "설명",
	fPriority:       "우선순위",
}

// visibleFields is the field order for a rule type. Fields of the other
// types keep their values but are hidden.
func visibleFields(t model.RuleType) []fieldID {
	fields := []fieldID{fName, fType, fAction}
	switch t {
	case model.RuleSimilarity:
		fields = append(fields, fReference, fThreshold)
	case model.RuleMetadata:
		fields = append(fields, fSender, fSenderPattern, fKeywords, fSubjectPattern,
			fCategory, fImportance, fFolder, fAttachments)
	case model.RuleClassification:
		fields = append(fields, fClassCategory, fClassTags)
	}
	return append(fields, fDescription, fPriority)
}

func isChoice(f fieldID) bool {
	switch f {
	case fType, fAction, fThreshold, fImportance, fAttachments:
		return true
	}
	return false
}

// validationField maps a validation error onto the field to focus.
func validationField(field string) fieldID {
	switch field {
	case "rule_name":
		return fName
	case "reference_email_id":
		return fReference
	case "metadata":
		return fSender
	case "classification":
		return fClassCategory
	}
	return fName
}

type ruleFormView struct {
	editID *int64
	form   ruleform.Form
	inputs [fieldCount]textinput.Model
	focus  int // index into visibleFields(form.RuleType)
	err    string
	busy   bool
}

func newRuleFormView() ruleFormView {
	var v ruleFormView
	for i := range v.inputs {
		if isChoice(fieldID(i)) {
			continue
		}
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 500
		v.inputs[i] = ti
	}
	v.inputs[fPriority].CharLimit = 6
	v.inputs[fName].Placeholder = "예: 스팸 메일 삭제"
	v.inputs[fSender].Placeholder = "example@spam.com"
	v.inputs[fKeywords].Placeholder = "광고, 이벤트"
	v.load(ruleform.New())
	return v
}

// load copies f into the inputs.
func (v *ruleFormView) load(f ruleform.Form) {
	v.form = f
	v.inputs[fName].SetValue(f.Name)
	v.inputs[fDescription].SetValue(f.Description)
	v.inputs[fPriority].SetValue(strconv.Itoa(f.Priority))
	v.inputs[fReference].SetValue(f.ReferenceEmailID)
	v.inputs[fSender].SetValue(f.SenderFilter)
	v.inputs[fSenderPattern].SetValue(f.SenderPattern)
	v.inputs[fKeywords].SetValue(f.SubjectKeywords)
	v.inputs[fSubjectPattern].SetValue(f.SubjectPattern)
	v.inputs[fCategory].SetValue(f.CategoryFilter)
	v.inputs[fFolder].SetValue(f.FolderFilter)
	v.inputs[fClassCategory].SetValue(f.ClassificationCategory)
	v.inputs[fClassTags].SetValue(f.ClassificationTags)
}

// collect copies the inputs back into the form.
func (v *ruleFormView) collect() ruleform.Form {
	f := v.form
	f.Name = v.inputs[fName].Value()
	f.Description = v.inputs[fDescription].Value()
	f.SetPriority(v.inputs[fPriority].Value())
	f.ReferenceEmailID = v.inputs[fReference].Value()
	f.SenderFilter = v.inputs[fSender].Value()
	f.SenderPattern = v.inputs[fSenderPattern].Value()
	f.SubjectKeywords = v.inputs[fKeywords].Value()
	f.SubjectPattern = v.inputs[fSubjectPattern].Value()
	f.CategoryFilter = v.inputs[fCategory].Value()
	f.FolderFilter = v.inputs[fFolder].Value()
	f.ClassificationCategory = v.inputs[fClassCategory].Value()
	f.ClassificationTags = v.inputs[fClassTags].Value()
	return f
}

func (v *ruleFormView) current() fieldID {
	fields := visibleFields(v.form.RuleType)
	if v.focus >= len(fields) {
		v.focus = len(fields) - 1
	}
	return fields[v.focus]
}

// setFocus moves the cursor to index i and gives the keyboard to its input.
func (v *ruleFormView) setFocus(i int) tea.Cmd {
	fields := visibleFields(v.form.RuleType)
	n := len(fields)
	v.focus = ((i % n) + n) % n
	for j := range v.inputs {
		v.inputs[j].Blur()
	}
	if f := fields[v.focus]; !isChoice(f) {
		return v.inputs[f].Focus()
	}
	return nil
}

func (v *ruleFormView) focusField(id fieldID) tea.Cmd {
	for i, f := range visibleFields(v.form.RuleType) {
		if f == id {
			return v.setFocus(i)
		}
	}
	return nil
}

// cycle changes the value of a choice field. dir is +1 or -1; only the
// threshold moves backwards.
func (v *ruleFormView) cycle(dir int) {
	f := &v.form
	switch v.current() {
	case fType:
		f.RuleType = ruleform.NextType(f.RuleType)
	case fAction:
		f.Action = ruleform.NextAction(f.Action)
	case fThreshold:
		f.SetThreshold(f.SimilarityThreshold + float64(dir)*ruleform.ThresholdStep)
	case fImportance:
		f.ImportanceLevelFilter = ruleform.NextImportance(f.ImportanceLevelFilter)
	case fAttachments:
		f.CycleHasAttachments()
	}
}

func (v *ruleFormView) update(msg tea.Msg) tea.Cmd {
	f := v.current()
	if isChoice(f) {
		return nil
	}
	var cmd tea.Cmd
	v.inputs[f], cmd = v.inputs[f].Update(msg)
	return cmd
}

func (m *AppModel) openRuleForm(rule *model.UserRule) tea.Cmd {
	v := &m.form
	v.err = ""
	v.busy = false
	if rule == nil {
		v.editID = nil
		v.load(ruleform.New())
	} else {
		id := rule.ID
		v.editID = &id
		v.load(ruleform.FromRule(*rule))
	}
	m.view = viewRuleForm
	return v.setFocus(0)
}

func (m *AppModel) ruleFormKey(msg tea.KeyMsg) tea.Cmd {
	v := &m.form
	f := v.current()
	switch msg.String() {
	case "esc":
		m.view = viewRules
		return nil
	case "ctrl+s":
		return m.submitRule()
	case "tab", "down":
		return v.setFocus(v.focus + 1)
	case "shift+tab", "up":
		return v.setFocus(v.focus - 1)
	case "enter":
		if isChoice(f) {
			v.cycle(1)
			return nil
		}
		return v.setFocus(v.focus + 1)
	case "right", " ":
		if isChoice(f) {
			v.cycle(1)
			return nil
		}
	case "left":
		if isChoice(f) {
			v.cycle(-1)
			return nil
		}
	}
	return v.update(msg)
}

func (m *AppModel) submitRule() tea.Cmd {
	v := &m.form
	if v.busy {
		return nil
	}
	form := v.collect()
	v.form = form
	rules := m.deps.API.Rules

	var run func(ctx context.Context) error
	if v.editID == nil {
		req, err := form.CreateRequest()
		if err != nil {
			return v.invalid(err)
		}
		run = func(ctx context.Context) error {
			_, err := rules.Create(ctx, req)
			return err
		}
	} else {
		id := *v.editID
		req, err := form.UpdateRequest()
		if err != nil {
			return v.invalid(err)
		}
		run = func(ctx context.Context) error {
			_, err := rules.Update(ctx, id, req)
			return err
		}
	}

	v.err = ""
	v.busy = true
	created := v.editID == nil
	return m.cmd(func(ctx context.Context) tea.Msg {
		return ruleSavedMsg{created: created, err: run(ctx)}
	})
}

func (v *ruleFormView) invalid(err error) tea.Cmd {
	v.err = err.Error()
	var ve *ruleform.ValidationError
	if errors.As(err, &ve) {
		return v.focusField(validationField(ve.Field))
	}
	return nil
}

func (m *AppModel) onRuleSaved(msg ruleSavedMsg) tea.Cmd {
	v := &m.form
	v.busy = false
	if msg.err != nil {
		m.log.Warn("save rule", zap.Error(msg.err))
		v.err = api.Message(msg.err, MsgRuleSaveFailed)
		return nil
	}
	m.invalidate(querycache.Rules)
	text := MsgRuleUpdated
	if msg.created {
		text = MsgRuleCreated
	}
	if m.view != viewRuleForm {
		return m.setStatus(text)
	}
	return tea.Batch(m.navigate(viewRules), m.setStatus(text))
}

func (v *ruleFormView) choiceValue(f fieldID) string {
	switch f {
	case fType:
		return ruleform.TypeLabel(v.form.RuleType)
	case fAction:
		return ruleform.ActionLabel(v.form.Action)
	case fThreshold:
		return fmt.Sprintf("%.2f", v.form.SimilarityThreshold)
	case fImportance:
		if v.form.ImportanceLevelFilter == "" {
			return msgNoImportance
		}
		return v.form.ImportanceLevelFilter
	case fAttachments:
		switch {
		case v.form.HasAttachments == nil:
			return msgNoAttachmentSet
		case *v.form.HasAttachments:
			return "있음"
		}
		return "없음"
	}
	return ""
}

func (m *AppModel) ruleFormView() (string, string) {
	v := &m.form
	var b strings.Builder
	title := "스마트 필터 규칙 생성"
	if v.editID != nil {
		title = "스마트 필터 규칙 수정"
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n\n")

	for i, f := range visibleFields(v.form.RuleType) {
		cursor := "  "
		if i == v.focus {
			cursor = activeNavStyle.Render("> ")
		}
		b.WriteString(cursor)
		b.WriteString(labelStyle.Render(fieldLabels[f] + ": "))
		if isChoice(f) {
			val := v.choiceValue(f)
			if i == v.focus {
				val = "‹ " + val + " ›"
			}
			b.WriteString(val)
		} else {
			b.WriteString(v.inputs[f].View())
		}
		b.WriteString("\n")
	}

	switch v.form.RuleType {
	case model.RuleSimilarity:
		b.WriteString(dimStyle.Render("이메일 상세 화면의 유사 메일 차단(b)을 사용하는 것을 권장합니다."))
		b.WriteString("\n")
	case model.RuleMetadata:
		b.WriteString(dimStyle.Render("최소 하나 이상의 메타데이터 필터가 필요합니다."))
		b.WriteString("\n")
	}
	if v.busy {
		b.WriteString("\n저장 중...")
	}
	if v.err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(v.err))
	}
	return b.String(), "tab/↑↓: 이동 • ←/→: 선택 변경 • ctrl+s: 저장 • esc: 취소"
}
