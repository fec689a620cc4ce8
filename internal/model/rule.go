package model

type RuleType string

const (
	RuleSimilarity     RuleType = "similarity_based"
	RuleMetadata       RuleType = "metadata_based"
	RuleClassification RuleType = "classification_based"
)

// RuleTypes lists the variants in the order the form offers them.
var RuleTypes = []RuleType{RuleMetadata, RuleClassification, RuleSimilarity}

type RuleAction string

const (
	ActionDelete        RuleAction = "delete"
	ActionArchive       RuleAction = "archive"
	ActionTag           RuleAction = "tag"
	ActionMove          RuleAction = "move"
	ActionMarkRead      RuleAction = "mark_read"
	ActionMarkImportant RuleAction = "mark_important"
)

var RuleActions = []RuleAction{ActionDelete, ActionArchive, ActionTag, ActionMove, ActionMarkRead, ActionMarkImportant}

// ImportanceLevels are the values accepted by importance_level_filter.
var ImportanceLevels = []string{"low", "medium", "high", "urgent"}

// UserRule is a smart filter rule. Its lifecycle is owned by the backend.
type UserRule struct {
	ID                     int64          `json:"id"`
	UserID                 int64          `json:"user_id"`
	RuleName               string         `json:"rule_name"`
	RuleType               RuleType       `json:"rule_type"`
	Action                 RuleAction     `json:"action"`
	IsActive               bool           `json:"is_active"`
	ReferenceEmailID       *int64         `json:"reference_email_id,omitempty"`
	SimilarityThreshold    *float64       `json:"similarity_threshold,omitempty"`
	SenderFilter           string         `json:"sender_filter,omitempty"`
	SenderPattern          string         `json:"sender_pattern,omitempty"`
	SubjectKeywords        []string       `json:"subject_keywords,omitempty"`
	SubjectPattern         string         `json:"subject_pattern,omitempty"`
	CategoryFilter         string         `json:"category_filter,omitempty"`
	ImportanceLevelFilter  string         `json:"importance_level_filter,omitempty"`
	FolderFilter           string         `json:"folder_filter,omitempty"`
	HasAttachmentsFilter   *bool          `json:"has_attachments_filter,omitempty"`
	ClassificationCategory string         `json:"classification_category,omitempty"`
	ClassificationTags     []string       `json:"classification_tags,omitempty"`
	ActionDetails          map[string]any `json:"action_details,omitempty"`
	Priority               int            `json:"priority"`
	Description            string         `json:"description,omitempty"`
	CreatedAt              string         `json:"created_at"`
	UpdatedAt              string         `json:"updated_at"`
}

// RulePredicates carries the variant-specific fields shared by the create
// and update bodies. Unset fields are omitted from the JSON.
type RulePredicates struct {
	ReferenceEmailID       *int64   `json:"reference_email_id,omitempty"`
	SimilarityThreshold    *float64 `json:"similarity_threshold,omitempty"`
	SenderFilter           string   `json:"sender_filter,omitempty"`
	SenderPattern          string   `json:"sender_pattern,omitempty"`
	SubjectKeywords        []string `json:"subject_keywords,omitempty"`
	SubjectPattern         string   `json:"subject_pattern,omitempty"`
	CategoryFilter         string   `json:"category_filter,omitempty"`
	ImportanceLevelFilter  string   `json:"importance_level_filter,omitempty"`
	FolderFilter           string   `json:"folder_filter,omitempty"`
	HasAttachmentsFilter   *bool    `json:"has_attachments_filter,omitempty"`
	ClassificationCategory string   `json:"classification_category,omitempty"`
	ClassificationTags     []string `json:"classification_tags,omitempty"`
}

type CreateRuleRequest struct {
	RuleName      string         `json:"rule_name"`
	RuleType      RuleType       `json:"rule_type"`
	Action        RuleAction     `json:"action"`
	Description   string         `json:"description,omitempty"`
	Priority      *int           `json:"priority,omitempty"`
	ActionDetails map[string]any `json:"action_details,omitempty"`
	RulePredicates
}

// UpdateRuleRequest is a partial update: the backend keeps any field that
// is left out. The predicate keys are always sent so a cleared predicate,
// or one belonging to a variant the rule no longer uses, is reset.
type UpdateRuleRequest struct {
	RuleName      string         `json:"rule_name,omitempty"`
	RuleType      RuleType       `json:"rule_type,omitempty"`
	Action        RuleAction     `json:"action,omitempty"`
	IsActive      *bool          `json:"is_active,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Priority      *int           `json:"priority,omitempty"`
	ActionDetails map[string]any `json:"action_details,omitempty"`
	PredicateUpdate
}

// PredicateUpdate is RulePredicates with every key present. nil encodes as
// null, which clears the stored value.
type PredicateUpdate struct {
	ReferenceEmailID       *int64   `json:"reference_email_id"`
	SimilarityThreshold    *float64 `json:"similarity_threshold"`
	SenderFilter           *string  `json:"sender_filter"`
	SenderPattern          *string  `json:"sender_pattern"`
	SubjectKeywords        []string `json:"subject_keywords"`
	SubjectPattern         *string  `json:"subject_pattern"`
	CategoryFilter         *string  `json:"category_filter"`
	ImportanceLevelFilter  *string  `json:"importance_level_filter"`
	FolderFilter           *string  `json:"folder_filter"`
	HasAttachmentsFilter   *bool    `json:"has_attachments_filter"`
	ClassificationCategory *string  `json:"classification_category"`
	ClassificationTags     []string `json:"classification_tags"`
}

// Update converts p to its PUT form. Empty strings and lists become null.
func (p RulePredicates) Update() PredicateUpdate {
	str := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	list := func(l []string) []string {
		if len(l) == 0 {
			return nil
		}
		return l
	}
	return PredicateUpdate{
		ReferenceEmailID:       p.ReferenceEmailID,
		SimilarityThreshold:    p.SimilarityThreshold,
		SenderFilter:           str(p.SenderFilter),
		SenderPattern:          str(p.SenderPattern),
		SubjectKeywords:        list(p.SubjectKeywords),
		SubjectPattern:         str(p.SubjectPattern),
		CategoryFilter:         str(p.CategoryFilter),
		ImportanceLevelFilter:  str(p.ImportanceLevelFilter),
		FolderFilter:           str(p.FolderFilter),
		HasAttachmentsFilter:   p.HasAttachmentsFilter,
		ClassificationCategory: str(p.ClassificationCategory),
		ClassificationTags:     list(p.ClassificationTags),
	}
}

type CreateRuleFromEmailRequest struct {
	RuleName            string         `json:"rule_name"`
	Action              RuleAction     `json:"action"`
	SimilarityThreshold *float64       `json:"similarity_threshold,omitempty"`
	Description         string         `json:"description,omitempty"`
	Priority            *int           `json:"priority,omitempty"`
	ActionDetails       map[string]any `json:"action_details,omitempty"`
}
