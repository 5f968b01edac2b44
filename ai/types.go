// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package ai

// Task types a query can be routed by. Classification is best-effort;
// anything unmatched falls through to TaskGeneral.
const (
	TaskCourseCreation     = "course_creation"
	TaskQuestionGeneration = "question_generation"
	TaskCodeAnalysis       = "code_analysis"
	TaskUserManagement     = "user_management"
	TaskContentReview      = "content_review"
	TaskDataAnalysis       = "data_analysis"
	TaskGeneral            = "general"
)

// Provider describes one AI backend in the registry. Priority is a rank
// (1 is highest); Enabled gates routing.
type Provider struct {
	Name         string   `json:"name"`
	Priority     int      `json:"priority"`
	Enabled      bool     `json:"enabled"`
	URL          string   `json:"url"`
	Capabilities []string `json:"capabilities"`
}

// Request is one unit of work for a provider: the operator's query plus
// the assembled memory context.
type Request struct {
	Query     string `json:"query"`
	Context   string `json:"context"`
	TaskType  string `json:"task_type"`
	SessionID string `json:"session_id"`
	MaxTokens int    `json:"max_tokens"`
}

// Response is what a provider produced. Provider always names whichever
// backend actually answered, which after fallback may differ from the one
// originally selected.
type Response struct {
	Content          string  `json:"content"`
	Provider         string  `json:"provider"`
	TokensUsed       int     `json:"tokens_used,omitempty"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	Confidence       float64 `json:"confidence,omitempty"`
}

// ProviderStat is one row of the registry's stats surface.
type ProviderStat struct {
	Name         string   `json:"name"`
	Enabled      bool     `json:"enabled"`
	Priority     int      `json:"priority"`
	Capabilities []string `json:"capabilities"`
}

// DefaultProviders returns the stock provider set in registration order.
func DefaultProviders() []Provider {
	return []Provider{
		{
			Name:         "claude",
			Priority:     1,
			Enabled:      true,
			URL:          "https://claude.ai",
			Capabilities: []string{"reasoning", "analysis", "planning", "code"},
		},
		{
			Name:         "chatgpt",
			Priority:     2,
			Enabled:      true,
			URL:          "https://chat.openai.com",
			Capabilities: []string{"general", "creative", "technical", "questions"},
		},
		{
			Name:         "gemini",
			Priority:     3,
			Enabled:      true,
			URL:          "https://gemini.google.com",
			Capabilities: []string{"analysis", "technical", "multimodal"},
		},
	}
}
