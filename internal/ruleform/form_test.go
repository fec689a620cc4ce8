package ruleform

import (
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxai/internal/model"
)

func validationMessage(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "want *ValidationError, got %v", err)
	return ve.Message
}

func TestNewDefaults(t *testing.T) {
	f := New()
	assert.Equal(t, model.RuleMetadata, f.RuleType)
	assert.Equal(t, model.ActionDelete, f.Action)
	assert.Equal(t, 100, f.Priority)
	assert.InDelta(t, 0.3, f.SimilarityThreshold, 1e-9)
}

func TestValidate(t *testing.T) {
	tr := true
	tests := []struct {
		name string
		edit func(*Form)
		want string
	}{
		{"missing name", func(f *Form) { f.SenderFilter = "a@b.com" }, MsgNameRequired},
		{"blank name", func(f *Form) { f.Name = "   "; f.SenderFilter = "a@b.com" }, MsgNameRequired},
		{"metadata empty", func(f *Form) { f.Name = "r" }, MsgMetadataFilterRequired},
		{"metadata has attachments", func(f *Form) { f.Name = "r"; f.HasAttachments = &tr }, ""},
		{"metadata folder", func(f *Form) { f.Name = "r"; f.FolderFilter = "promo" }, ""},
		{"similarity no ref", func(f *Form) { f.Name = "r"; f.RuleType = model.RuleSimilarity }, MsgReferenceRequired},
		{"similarity bad ref", func(f *Form) {
			f.Name = "r"
			f.RuleType = model.RuleSimilarity
			f.ReferenceEmailID = "abc"
		}, MsgReferenceInvalid},
		{"similarity ok", func(f *Form) {
			f.Name = "r"
			f.RuleType = model.RuleSimilarity
			f.ReferenceEmailID = " 12 "
		}, ""},
		{"classification empty", func(f *Form) {
			f.Name = "r"
			f.RuleType = model.RuleClassification
			f.ClassificationTags = " , "
		}, MsgClassificationRequired},
		{"classification tags", func(f *Form) {
			f.Name = "r"
			f.RuleType = model.RuleClassification
			f.ClassificationTags = "ads"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New()
			tt.edit(&f)
			err := f.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, validationMessage(t, err))
		})
	}
}

func TestCreateRequestSendsOnlySelectedVariant(t *testing.T) {
	f := New()
	f.Name = "newsletters"
	f.RuleType = model.RuleClassification
	f.ClassificationCategory = "marketing"
	f.ClassificationTags = "ads, , promo ,"
	// Left over from switching types; must not be sent.
	f.SenderFilter = "x@y.com"
	f.ReferenceEmailID = "3"

	req, err := f.CreateRequest()
	require.NoError(t, err)
	assert.Equal(t, model.RuleClassification, req.RuleType)
	assert.Equal(t, "marketing", req.ClassificationCategory)
	assert.Equal(t, []string{"ads", "promo"}, req.ClassificationTags)
	assert.Empty(t, req.SenderFilter)
	assert.Nil(t, req.ReferenceEmailID)
	assert.Nil(t, req.SimilarityThreshold)
	require.NotNil(t, req.Priority)
	assert.Equal(t, 100, *req.Priority)
}

func TestCreateRequestSimilarity(t *testing.T) {
	f := New()
	f.Name = "spam"
	f.RuleType = model.RuleSimilarity
	f.ReferenceEmailID = "42"
	f.SetThreshold(0.72)

	req, err := f.CreateRequest()
	require.NoError(t, err)
	require.NotNil(t, req.ReferenceEmailID)
	assert.Equal(t, int64(42), *req.ReferenceEmailID)
	require.NotNil(t, req.SimilarityThreshold)
	assert.InDelta(t, 0.7, *req.SimilarityThreshold, 1e-9)
	assert.Nil(t, req.SubjectKeywords)
}

func TestCreateRequestBlockedByValidation(t *testing.T) {
	_, err := New().CreateRequest()
	assert.Equal(t, MsgNameRequired, validationMessage(t, err))
}

func TestCleanNormalizesNFC(t *testing.T) {
	decomposed := "\u1100\u1172" // conjoining jamo
	assert.Equal(t, "\uADDC", clean(" "+decomposed+" "))
}

func TestSetThresholdClampsAndSnaps(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, 0}, {0.01, 0}, {0.03, 0.05}, {0.3, 0.3}, {0.99, 1}, {4, 1},
	}
	for _, tt := range tests {
		f := New()
		f.SetThreshold(tt.in)
		assert.InDelta(t, tt.want, f.SimilarityThreshold, 1e-9, "in=%v", tt.in)
	}
}

func TestSetPriority(t *testing.T) {
	f := New()
	f.SetPriority("7")
	assert.Equal(t, 7, f.Priority)
	f.SetPriority("abc")
	assert.Equal(t, DefaultPriority, f.Priority)
}

func TestCycleHasAttachments(t *testing.T) {
	f := New()
	f.CycleHasAttachments()
	require.NotNil(t, f.HasAttachments)
	assert.True(t, *f.HasAttachments)
	f.CycleHasAttachments()
	require.NotNil(t, f.HasAttachments)
	assert.False(t, *f.HasAttachments)
	f.CycleHasAttachments()
	assert.Nil(t, f.HasAttachments)
}

func TestFromRuleRoundTrip(t *testing.T) {
	ref := int64(9)
	th := 0.45
	rule := model.UserRule{
		ID:                  1,
		RuleName:            "similar",
		RuleType:            model.RuleSimilarity,
		Action:              model.ActionArchive,
		ReferenceEmailID:    &ref,
		SimilarityThreshold: &th,
		Priority:            5,
	}
	f := FromRule(rule)
	assert.Equal(t, "9", f.ReferenceEmailID)

	req, err := f.UpdateRequest()
	require.NoError(t, err)
	assert.Equal(t, "similar", req.RuleName)
	assert.Equal(t, model.ActionArchive, req.Action)
	assert.Equal(t, int64(9), *req.ReferenceEmailID)
	assert.InDelta(t, 0.45, *req.SimilarityThreshold, 1e-9)
	assert.Equal(t, 5, *req.Priority)
}

func updateBody(t *testing.T, f Form) map[string]any {
	t.Helper()
	req, err := f.UpdateRequest()
	require.NoError(t, err)
	b, err := json.Marshal(req)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(b, &body))
	return body
}

func TestUpdateClearsPredicates(t *testing.T) {
	rule := model.UserRule{
		ID:             3,
		RuleName:       "r",
		RuleType:       model.RuleMetadata,
		Action:         model.ActionDelete,
		SenderFilter:   "a@b.com",
		SubjectPattern: "^\\[AD\\]",
		Priority:       100,
	}

	t.Run("cleared field", func(t *testing.T) {
		f := FromRule(rule)
		f.SubjectPattern = ""
		body := updateBody(t, f)
		assert.Equal(t, "a@b.com", body["sender_filter"])
		require.Contains(t, body, "subject_pattern")
		assert.Nil(t, body["subject_pattern"])
	})

	t.Run("type switch", func(t *testing.T) {
		f := FromRule(rule)
		f.RuleType = model.RuleClassification
		f.ClassificationCategory = "promotion"
		body := updateBody(t, f)
		assert.Equal(t, "classification_based", body["rule_type"])
		assert.Equal(t, "promotion", body["classification_category"])
		for _, key := range []string{"sender_filter", "subject_pattern", "reference_email_id", "similarity_threshold"} {
			require.Contains(t, body, key)
			assert.Nil(t, body[key], key)
		}
	})

	t.Run("cleared description", func(t *testing.T) {
		r := rule
		r.Description = "old"
		f := FromRule(r)
		f.Description = "  "
		body := updateBody(t, f)
		assert.Equal(t, "", body["description"])
	})
}

func TestFromEmailForm(t *testing.T) {
	f := NewFromEmailForm()
	_, err := f.Request()
	assert.Equal(t, MsgNameRequired, validationMessage(t, err))

	f.Name = "block ads"
	req, err := f.Request()
	require.NoError(t, err)
	assert.Equal(t, model.ActionDelete, req.Action)
	assert.Equal(t, FromEmailDescription, req.Description)
	assert.InDelta(t, 0.3, *req.SimilarityThreshold, 1e-9)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "유사도 기반", TypeLabel(model.RuleSimilarity))
	assert.Equal(t, "읽음 표시", ActionLabel(model.ActionMarkRead))
	assert.Equal(t, "custom", ActionLabel("custom"))
	assert.Equal(t, model.RuleClassification, NextType(model.RuleMetadata))
	assert.Equal(t, model.RuleMetadata, NextType(model.RuleSimilarity))
	assert.Equal(t, "low", NextImportance(""))
	assert.Equal(t, "", NextImportance("urgent"))
}

// A metadata rule is blocked exactly when every one of its eight predicate
// inputs is empty.
func TestProperty_MetadataRequiresOneFilter(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	choices := []string{"", "", "", "a@b.com", "news", "  "}

	properties.Property("blocked_iff_all_empty", prop.ForAll(
		func(picks []int, attach int) bool {
			values := make([]string, len(picks))
			for i, p := range picks {
				values[i] = choices[p]
			}
			f := New()
			f.Name = "rule"
			f.SenderFilter = values[0]
			f.SenderPattern = values[1]
			f.SubjectKeywords = values[2]
			f.SubjectPattern = values[3]
			f.CategoryFilter = values[4]
			f.ImportanceLevelFilter = values[5]
			f.FolderFilter = values[6]
			switch attach {
			case 1:
				v := true
				f.HasAttachments = &v
			case 2:
				v := false
				f.HasAttachments = &v
			}

			empty := f.HasAttachments == nil
			for _, v := range values {
				if v != "" && v != "  " {
					empty = false
				}
			}

			err := f.Validate()
			if empty {
				var ve *ValidationError
				return errors.As(err, &ve) && ve.Message == MsgMetadataFilterRequired
			}
			return err == nil
		},
		gen.SliceOfN(7, gen.IntRange(0, len(choices)-1)),
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}

// Serialized requests never carry fields of another rule type.
func TestProperty_NoCrossVariantFields(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("only_selected_variant", prop.ForAll(
		func(typeIdx int, text string) bool {
			f := New()
			f.Name = "rule"
			f.RuleType = model.RuleTypes[typeIdx]
			f.ReferenceEmailID = "1"
			f.SenderFilter = "s" + text
			f.ClassificationCategory = "c" + text

			req, err := f.CreateRequest()
			if err != nil {
				return false
			}
			switch f.RuleType {
			case model.RuleSimilarity:
				return req.SenderFilter == "" && req.ClassificationCategory == "" && req.ReferenceEmailID != nil
			case model.RuleMetadata:
				return req.ReferenceEmailID == nil && req.SimilarityThreshold == nil && req.ClassificationCategory == ""
			default:
				return req.ReferenceEmailID == nil && req.SenderFilter == "" && req.ClassificationCategory != ""
			}
		},
		gen.IntRange(0, len(model.RuleTypes)-1),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
