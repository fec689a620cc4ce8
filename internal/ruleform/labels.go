package ruleform

import "inboxai/internal/model"

func TypeLabel(t model.RuleType) string {
	switch t {
	case model.RuleSimilarity:
		return "유사도 기반"
	case model.RuleMetadata:
		return "메타데이터 기반"
	case model.RuleClassification:
		return "분류 기반"
	}
	return string(t)
}

func ActionLabel(a model.RuleAction) string {
	switch a {
	case model.ActionDelete:
		return "삭제"
	case model.ActionArchive:
		return "아카이브"
	case model.ActionTag:
		return "태그"
	case model.ActionMove:
		return "이동"
	case model.ActionMarkRead:
		return "읽음 표시"
	case model.ActionMarkImportant:
		return "중요 표시"
	}
	return string(a)
}

// NextType returns the rule type after t in form order, wrapping around.
func NextType(t model.RuleType) model.RuleType {
	return next(model.RuleTypes, t)
}

func NextAction(a model.RuleAction) model.RuleAction {
	return next(model.RuleActions, a)
}

// NextImportance cycles "", low, medium, high, urgent.
func NextImportance(level string) string {
	return next(append([]string{""}, model.ImportanceLevels...), level)
}

func next[T comparable](all []T, cur T) T {
	for i, v := range all {
		if v == cur {
			return all[(i+1)%len(all)]
		}
	}
	return all[0]
}
