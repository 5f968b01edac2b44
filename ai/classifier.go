// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package ai

import "strings"

// DetermineTaskType classifies a query into a routing task type. Rules
// are checked in order; the first match wins and anything unmatched is
// TaskGeneral. Ambiguity is never an error.
func DetermineTaskType(query string) string {
	lower := strings.ToLower(query)

	switch {
	case strings.Contains(lower, "course") && (strings.Contains(lower, "create") || strings.Contains(lower, "new")):
		return TaskCourseCreation
	case strings.Contains(lower, "course") && (strings.Contains(lower, "review") || strings.Contains(lower, "analyze")):
		return TaskContentReview
	case strings.Contains(lower, "question") && strings.Contains(lower, "generate"):
		return TaskQuestionGeneration
	case strings.Contains(lower, "question") && (strings.Contains(lower, "review") || strings.Contains(lower, "duplicate")):
		return TaskContentReview
	case strings.Contains(lower, "user") || strings.Contains(lower, "student") || strings.Contains(lower, "enroll"):
		return TaskUserManagement
	case strings.Contains(lower, "analyze") || strings.Contains(lower, "performance") || strings.Contains(lower, "stats"):
		return TaskDataAnalysis
	case strings.Contains(lower, "code") || strings.Contains(lower, "config") || strings.Contains(lower, "setting"):
		return TaskCodeAnalysis
	default:
		return TaskGeneral
	}
}
