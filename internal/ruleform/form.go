// Package ruleform turns the smart filter rule form into backend requests.
// Each rule type carries its own predicate fields; only the fields of the
// selected type are validated and serialized.
package ruleform

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"inboxai/internal/model"
)

const (
	DefaultPriority  = 100
	DefaultThreshold = 0.3
	ThresholdStep    = 0.05

	FromEmailDescription = "이 이메일과 유사한 이메일을 자동 삭제하는 규칙"
)

// ValidationError is a form error shown to the user before any request is
// sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Messages shown for validation failures.
const (
	MsgNameRequired           = "규칙 이름을 입력해주세요."
	MsgReferenceRequired      = "예시 이메일 ID를 입력해주세요."
	MsgReferenceInvalid       = "예시 이메일 ID는 숫자여야 합니다."
	MsgMetadataFilterRequired = "최소 하나 이상의 메타데이터 필터를 입력해주세요."
	MsgClassificationRequired = "분류 카테고리 또는 태그를 입력해주세요."
)

// Form holds every input as typed. Fields belonging to rule types other
// than RuleType are kept so switching type back and forth loses nothing,
// but they are never sent.
type Form struct {
	RuleType    model.RuleType
	Name        string
	Action      model.RuleAction
	Description string
	Priority    int

	// similarity_based
	ReferenceEmailID    string
	SimilarityThreshold float64

	// metadata_based
	SenderFilter          string
	SenderPattern         string
	SubjectKeywords       string // comma separated
	SubjectPattern        string
	CategoryFilter        string
	ImportanceLevelFilter string
	FolderFilter          string
	HasAttachments        *bool

	// classification_based
	ClassificationCategory string
	ClassificationTags     string // comma separated
}

// New returns a form with the defaults of a fresh create dialog.
func New() Form {
	return Form{
		RuleType:            model.RuleMetadata,
		Action:              model.ActionDelete,
		Priority:            DefaultPriority,
		SimilarityThreshold: DefaultThreshold,
	}
}

// SetThreshold clamps v to [0,1] and snaps it to the nearest step.
func (f *Form) SetThreshold(v float64) {
	f.SimilarityThreshold = snapThreshold(v)
}

func snapThreshold(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return math.Round(v/ThresholdStep) * ThresholdStep
}

// SetPriority parses s, falling back to the default when it is not a number.
func (f *Form) SetPriority(s string) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		p = DefaultPriority
	}
	f.Priority = p
}

// CycleHasAttachments steps through unset, true, false.
func (f *Form) CycleHasAttachments() {
	switch {
	case f.HasAttachments == nil:
		t := true
		f.HasAttachments = &t
	case *f.HasAttachments:
		v := false
		f.HasAttachments = &v
	default:
		f.HasAttachments = nil
	}
}

// Validate reports the first problem in the order the user sees the fields.
func (f Form) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return &ValidationError{Field: "rule_name", Message: MsgNameRequired}
	}
	switch f.RuleType {
	case model.RuleSimilarity:
		ref := strings.TrimSpace(f.ReferenceEmailID)
		if ref == "" {
			return &ValidationError{Field: "reference_email_id", Message: MsgReferenceRequired}
		}
		if _, err := strconv.ParseInt(ref, 10, 64); err != nil {
			return &ValidationError{Field: "reference_email_id", Message: MsgReferenceInvalid}
		}
	case model.RuleMetadata:
		if !f.hasMetadataFilter() {
			return &ValidationError{Field: "metadata", Message: MsgMetadataFilterRequired}
		}
	case model.RuleClassification:
		if strings.TrimSpace(f.ClassificationCategory) == "" && len(splitList(f.ClassificationTags)) == 0 {
			return &ValidationError{Field: "classification", Message: MsgClassificationRequired}
		}
	}
	return nil
}

func (f Form) hasMetadataFilter() bool {
	for _, s := range []string{
		f.SenderFilter, f.SenderPattern, f.SubjectKeywords, f.SubjectPattern,
		f.CategoryFilter, f.ImportanceLevelFilter, f.FolderFilter,
	} {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return f.HasAttachments != nil
}

// CreateRequest validates the form and builds the POST /rules body.
func (f Form) CreateRequest() (model.CreateRuleRequest, error) {
	if err := f.Validate(); err != nil {
		return model.CreateRuleRequest{}, err
	}
	prio := f.Priority
	return model.CreateRuleRequest{
		RuleName:       clean(f.Name),
		RuleType:       f.RuleType,
		Action:         f.Action,
		Description:    clean(f.Description),
		Priority:       &prio,
		RulePredicates: f.predicates(),
	}, nil
}

// UpdateRequest validates the form and builds the PUT /rules/{id} body.
func (f Form) UpdateRequest() (model.UpdateRuleRequest, error) {
	if err := f.Validate(); err != nil {
		return model.UpdateRuleRequest{}, err
	}
	prio := f.Priority
	desc := clean(f.Description)
	return model.UpdateRuleRequest{
		RuleName:        clean(f.Name),
		RuleType:        f.RuleType,
		Action:          f.Action,
		Description:     &desc,
		Priority:        &prio,
		PredicateUpdate: f.predicates().Update(),
	}, nil
}

// predicates serializes only the selected variant. Validate has run, so
// the reference id parses.
func (f Form) predicates() model.RulePredicates {
	var p model.RulePredicates
	switch f.RuleType {
	case model.RuleSimilarity:
		id, _ := strconv.ParseInt(strings.TrimSpace(f.ReferenceEmailID), 10, 64)
		th := snapThreshold(f.SimilarityThreshold)
		p.ReferenceEmailID = &id
		p.SimilarityThreshold = &th
	case model.RuleMetadata:
		p.SenderFilter = clean(f.SenderFilter)
		p.SenderPattern = strings.TrimSpace(f.SenderPattern)
		p.SubjectKeywords = splitList(f.SubjectKeywords)
		p.SubjectPattern = strings.TrimSpace(f.SubjectPattern)
		p.CategoryFilter = clean(f.CategoryFilter)
		p.ImportanceLevelFilter = strings.TrimSpace(f.ImportanceLevelFilter)
		p.FolderFilter = clean(f.FolderFilter)
		if f.HasAttachments != nil {
			v := *f.HasAttachments
			p.HasAttachmentsFilter = &v
		}
	case model.RuleClassification:
		p.ClassificationCategory = clean(f.ClassificationCategory)
		p.ClassificationTags = splitList(f.ClassificationTags)
	}
	return p
}

// FromRule prefills a form for editing r.
func FromRule(r model.UserRule) Form {
	f := New()
	f.RuleType = r.RuleType
	f.Name = r.RuleName
	f.Action = r.Action
	f.Description = r.Description
	f.Priority = r.Priority
	if r.ReferenceEmailID != nil {
		f.ReferenceEmailID = strconv.FormatInt(*r.ReferenceEmailID, 10)
	}
	if r.SimilarityThreshold != nil {
		f.SimilarityThreshold = *r.SimilarityThreshold
	}
	f.SenderFilter = r.SenderFilter
	f.SenderPattern = r.SenderPattern
	f.SubjectKeywords = strings.Join(r.SubjectKeywords, ", ")
	f.SubjectPattern = r.SubjectPattern
	f.CategoryFilter = r.CategoryFilter
	f.ImportanceLevelFilter = r.ImportanceLevelFilter
	f.FolderFilter = r.FolderFilter
	if r.HasAttachmentsFilter != nil {
		v := *r.HasAttachmentsFilter
		f.HasAttachments = &v
	}
	f.ClassificationCategory = r.ClassificationCategory
	f.ClassificationTags = strings.Join(r.ClassificationTags, ", ")
	return f
}

// FromEmailForm is the short "block similar mail" dialog of the detail view.
type FromEmailForm struct {
	Name                string
	SimilarityThreshold float64
}

func NewFromEmailForm() FromEmailForm {
	return FromEmailForm{SimilarityThreshold: DefaultThreshold}
}

// SetThreshold clamps v to [0,1] and snaps it to the nearest step.
func (f *FromEmailForm) SetThreshold(v float64) {
	f.SimilarityThreshold = snapThreshold(v)
}

// Request builds the body for POST /rules/from-email/{id}. The created rule
// always deletes matching mail.
func (f FromEmailForm) Request() (model.CreateRuleFromEmailRequest, error) {
	if strings.TrimSpace(f.Name) == "" {
		return model.CreateRuleFromEmailRequest{}, &ValidationError{Field: "rule_name", Message: MsgNameRequired}
	}
	th := snapThreshold(f.SimilarityThreshold)
	return model.CreateRuleFromEmailRequest{
		RuleName:            clean(f.Name),
		Action:              model.ActionDelete,
		SimilarityThreshold: &th,
		Description:         FromEmailDescription,
	}, nil
}

// splitList splits a comma separated input, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := clean(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// clean trims s and puts it in NFC so text typed through different input
// methods compares equal on the backend.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
