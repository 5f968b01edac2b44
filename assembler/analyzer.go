// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package assembler

import "strings"

// Action types a query can be classified into. First keyword match wins,
// in declaration order; anything unmatched stays ActionUnknown.
const (
	ActionCreate  = "create"
	ActionReview  = "review"
	ActionModify  = "modify"
	ActionDelete  = "delete"
	ActionUnknown = "unknown"
)

// Context entity types.
const (
	ContextCourse   = "course"
	ContextUser     = "user"
	ContextQuestion = "question"
)

// QueryAnalysis is the pure classification of an operator query: what the
// operator wants to do, which entity families matter, and the keywords to
// score candidates against.
type QueryAnalysis struct {
	ActionType   string
	ContextTypes []string
	Keywords     []string
	Entities     []string
}

// actionKeywords is checked in order; creation wins over review wins over
// modify wins over delete for ambiguous queries.
var actionKeywords = []struct {
	action   string
	keywords []string
}{
	{ActionCreate, []string{"create", "add", "new"}},
	{ActionReview, []string{"review", "analyze", "check"}},
	{ActionModify, []string{"modify", "update", "change"}},
	{ActionDelete, []string{"delete", "remove"}},
}

var contextKeywords = []struct {
	contextType string
	triggers    []string
	keywords    []string
}{
	{ContextCourse, []string{"course"}, []string{"course"}},
	{ContextUser, []string{"user", "student", "enroll"}, []string{"user", "student", "enrollment"}},
	{ContextQuestion, []string{"question", "quiz", "test"}, []string{"question", "quiz", "assessment"}},
}

// entityTerms are domain words worth calling out as entities in the
// analysis summary (course subjects the installation teaches).
var entityTerms = []string{"course", "electronics", "embedded", "programming", "java", "python", "c++"}

// AnalyzeQuery classifies a query without touching any store. It is
// deterministic: same input text, same analysis.
func AnalyzeQuery(query string) QueryAnalysis {
	lower := strings.ToLower(query)

	analysis := QueryAnalysis{ActionType: ActionUnknown}

	for _, a := range actionKeywords {
		if containsAny(lower, a.keywords) {
			analysis.ActionType = a.action
			break
		}
	}

	for _, c := range contextKeywords {
		if containsAny(lower, c.triggers) {
			analysis.ContextTypes = append(analysis.ContextTypes, c.contextType)
			analysis.Keywords = append(analysis.Keywords, c.keywords...)
		}
	}

	for _, term := range entityTerms {
		if strings.Contains(lower, term) {
			analysis.Entities = append(analysis.Entities, term)
		}
	}

	return analysis
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
