// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

// Package assembler builds the bounded, relevance-ranked context block that
// accompanies every AI request: classified intent, scored entity snippets,
// learned admin patterns, and recent conversation turns, rendered in a
// fixed order downstream prompts depend on.
package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MFTechStaffs/moodle-ai-assistant/memory"
	"github.com/MFTechStaffs/moodle-ai-assistant/shared/logger"
)

const (
	// maxCandidates bounds how many entities of each type are scored.
	maxCandidates = 5
	// historyTurns is how many recent conversation turns are included.
	historyTurns = 3
	// keywordIncrement is added per keyword found in an entity's
	// serialized form.
	keywordIncrement = 0.3
	// acceptThreshold drops entities that barely match.
	acceptThreshold = 0.3
	// usageBoost is added to an item's score after it was actually used.
	usageBoost = 0.1
)

// Store is the slice of the memory store the assembler needs.
type Store interface {
	GetCourses(ctx context.Context) ([]memory.Course, error)
	GetUsers(ctx context.Context) ([]memory.User, error)
	GetQuestions(ctx context.Context, categoryID int64) ([]memory.Question, error)
	GetConversationHistory(ctx context.Context, sessionID string, limit int) ([]memory.ConversationRecord, error)
	GetAdminPattern(ctx context.Context, patternType string) (*memory.AdminPattern, error)
	SaveConversation(ctx context.Context, rec memory.ConversationRecord) error
	SaveContext(ctx context.Context, contextType string, entityID int64, data any, relevanceScore float64) error
	SaveAdminPattern(ctx context.Context, patternType string, data any) error
}

// ContextItem is a scored, typed snippet of remembered entity data.
type ContextItem struct {
	Type           string  `json:"type"`
	EntityID       int64   `json:"entity_id"`
	Data           any     `json:"data"`
	RelevanceScore float64 `json:"relevance_score"`
}

// matchedPattern pairs a pattern type with its stored row for rendering.
type matchedPattern struct {
	patternType string
	pattern     *memory.AdminPattern
}

// Assembler turns a query plus remembered state into a single prompt
// context string.
type Assembler struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

// New creates an Assembler over the given store.
func New(store Store) *Assembler {
	return &Assembler{
		store: store,
		log:   logger.New("assembler"),
		now:   time.Now,
	}
}

// BuildContext assembles the context block for a query. Store read errors
// surface; an empty store produces a valid (if sparse) block.
func (a *Assembler) BuildContext(ctx context.Context, query, sessionID string) (string, []ContextItem, error) {
	analysis := AnalyzeQuery(query)

	var items []ContextItem
	for _, contextType := range analysis.ContextTypes {
		typed, err := a.gatherContext(ctx, contextType, analysis.Keywords)
		if err != nil {
			return "", nil, err
		}
		items = append(items, typed...)
	}

	history, err := a.store.GetConversationHistory(ctx, sessionID, historyTurns)
	if err != nil {
		return "", nil, err
	}

	patterns, err := a.matchPatterns(ctx, analysis.ActionType)
	if err != nil {
		return "", nil, err
	}

	a.log.Debug(sessionID, "", "context assembled", map[string]interface{}{
		"action_type": analysis.ActionType,
		"items":       len(items),
		"patterns":    len(patterns),
		"turns":       len(history),
	})

	return formatContext(items, history, patterns, analysis), items, nil
}

// gatherContext fetches a bounded candidate set for one entity type and
// keeps the candidates that score above the acceptance threshold, sorted
// by descending relevance.
func (a *Assembler) gatherContext(ctx context.Context, contextType string, keywords []string) ([]ContextItem, error) {
	var items []ContextItem

	switch contextType {
	case ContextCourse:
		courses, err := a.store.GetCourses(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range bounded(courses) {
			if score := a.scoreEntity(c, c.UpdatedAt, keywords); score > acceptThreshold {
				items = append(items, ContextItem{Type: ContextCourse, EntityID: c.ID, Data: c, RelevanceScore: score})
			}
		}

	case ContextUser:
		users, err := a.store.GetUsers(ctx)
		if err != nil {
			return nil, err
		}
		for _, u := range bounded(users) {
			if score := a.scoreEntity(u, u.UpdatedAt, keywords); score > acceptThreshold {
				items = append(items, ContextItem{Type: ContextUser, EntityID: u.ID, Data: u, RelevanceScore: score})
			}
		}

	case ContextQuestion:
		questions, err := a.store.GetQuestions(ctx, 0)
		if err != nil {
			return nil, err
		}
		for _, q := range bounded(questions) {
			if score := a.scoreEntity(q, q.UpdatedAt, keywords); score > acceptThreshold {
				items = append(items, ContextItem{Type: ContextQuestion, EntityID: q.ID, Data: q, RelevanceScore: score})
			}
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RelevanceScore > items[j].RelevanceScore
	})
	return items, nil
}

func bounded[T any](entities []T) []T {
	if len(entities) > maxCandidates {
		return entities[:maxCandidates]
	}
	return entities
}

// scoreEntity computes keyword + recency relevance, clamped to [0, 1].
func (a *Assembler) scoreEntity(entity any, updatedAt time.Time, keywords []string) float64 {
	serialized, err := json.Marshal(entity)
	if err != nil {
		return 0
	}
	return Relevance(strings.ToLower(string(serialized)), updatedAt, keywords, a.now())
}

// Relevance is the pure scoring function: keywordIncrement per keyword
// whose lowercase text appears in the serialized entity, +0.2 for updates
// within 7 days, a further +0.3 within 1 day, clamped to 1.0.
func Relevance(serialized string, updatedAt time.Time, keywords []string, now time.Time) float64 {
	score := 0.0
	for _, keyword := range keywords {
		if strings.Contains(serialized, strings.ToLower(keyword)) {
			score += keywordIncrement
		}
	}

	if !updatedAt.IsZero() {
		age := now.Sub(updatedAt)
		if age < 7*24*time.Hour {
			score += 0.2
		}
		if age < 24*time.Hour {
			score += 0.3
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// matchPatterns returns the pattern for the classified action type plus
// the generic pattern, when either exists.
func (a *Assembler) matchPatterns(ctx context.Context, actionType string) ([]matchedPattern, error) {
	var patterns []matchedPattern

	pattern, err := a.store.GetAdminPattern(ctx, actionType)
	if err != nil {
		return nil, err
	}
	if pattern != nil {
		patterns = append(patterns, matchedPattern{patternType: actionType, pattern: pattern})
	}

	general, err := a.store.GetAdminPattern(ctx, "general")
	if err != nil {
		return nil, err
	}
	if general != nil {
		patterns = append(patterns, matchedPattern{patternType: "general", pattern: general})
	}

	return patterns, nil
}

// formatContext renders the context block. The category order
// (classification, entities, patterns, history, instructions) is part of
// the contract; downstream prompts rely on it.
func formatContext(items []ContextItem, history []memory.ConversationRecord, patterns []matchedPattern, analysis QueryAnalysis) string {
	var b strings.Builder

	b.WriteString("=== MOODLE CONTEXT ===\n\n")

	b.WriteString("SYSTEM OVERVIEW:\n")
	fmt.Fprintf(&b, "- Action Type: %s\n", analysis.ActionType)
	fmt.Fprintf(&b, "- Context Types: %s\n", strings.Join(analysis.ContextTypes, ", "))
	fmt.Fprintf(&b, "- Keywords: %s\n\n", strings.Join(analysis.Keywords, ", "))

	if len(items) > 0 {
		b.WriteString("RELEVANT DATA:\n")

		writeGroup(&b, "Courses", items, ContextCourse, func(item ContextItem) string {
			c := item.Data.(memory.Course)
			return fmt.Sprintf("- %s (%s): %d students", c.FullName, c.ShortName, c.EnrolledUsers)
		})
		writeGroup(&b, "Users", items, ContextUser, func(item ContextItem) string {
			u := item.Data.(memory.User)
			return fmt.Sprintf("- %s %s (%s): %d courses", u.FirstName, u.LastName, u.Username, u.EnrolledCourses)
		})
		writeGroup(&b, "Questions", items, ContextQuestion, func(item ContextItem) string {
			q := item.Data.(memory.Question)
			return fmt.Sprintf("- %s (%s): %g marks", q.Name, q.QType, q.DefaultMark)
		})
	}

	if len(patterns) > 0 {
		b.WriteString("\nADMIN PATTERNS:\n")
		for _, p := range patterns {
			fmt.Fprintf(&b, "- %s: Used %d times\n", p.patternType, p.pattern.Frequency)
			if prefs := extractPreferences(p.pattern.Data); prefs != "" {
				fmt.Fprintf(&b, "  Preferences: %s\n", prefs)
			}
		}
	}

	if len(history) > 0 {
		b.WriteString("\nRECENT CONVERSATION:\n")
		// History arrives most-recent-first; render oldest first.
		for i := len(history) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "User: %s\n", history[i].UserInput)
			fmt.Fprintf(&b, "AI: %s...\n\n", truncate(history[i].AIResponse, 100))
		}
	}

	b.WriteString("=== END CONTEXT ===\n\n")
	b.WriteString("Based on this context, please provide a helpful response that:\n")
	b.WriteString("1. Uses the relevant data from above\n")
	b.WriteString("2. Follows established admin patterns\n")
	b.WriteString("3. Asks for confirmation before making changes\n")
	b.WriteString("4. Provides specific, actionable suggestions\n\n")

	return b.String()
}

func writeGroup(b *strings.Builder, heading string, items []ContextItem, contextType string, render func(ContextItem) string) {
	var lines []string
	for _, item := range items {
		if item.Type == contextType {
			lines = append(lines, render(item))
		}
	}
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", heading)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func extractPreferences(data json.RawMessage) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	prefs, ok := payload["preferences"]
	if !ok {
		return ""
	}
	return string(prefs)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// SaveInteraction persists a finished exchange and boosts the relevance of
// every context item that fed it.
func (a *Assembler) SaveInteraction(ctx context.Context, sessionID, userInput, aiResponse string, contextUsed []ContextItem, actionTaken, provider string) error {
	serialized, err := json.Marshal(contextUsed)
	if err != nil {
		return fmt.Errorf("failed to encode used context: %w", err)
	}

	rec := memory.ConversationRecord{
		SessionID:   sessionID,
		UserInput:   userInput,
		AIResponse:  aiResponse,
		ContextUsed: string(serialized),
		ActionTaken: actionTaken,
		Provider:    provider,
	}
	if err := a.store.SaveConversation(ctx, rec); err != nil {
		return err
	}

	for _, item := range contextUsed {
		boosted := item.RelevanceScore + usageBoost
		if boosted > 1.0 {
			boosted = 1.0
		}
		if err := a.store.SaveContext(ctx, item.Type, item.EntityID, item.Data, boosted); err != nil {
			return err
		}
	}
	return nil
}

// LearnFromInteraction records operator preferences for an action family.
func (a *Assembler) LearnFromInteraction(ctx context.Context, actionType string, preferences any) error {
	return a.store.SaveAdminPattern(ctx, actionType, map[string]any{
		"preferences": preferences,
		"timestamp":   a.now().UTC().Format(time.RFC3339),
	})
}
