// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MFTechStaffs/moodle-ai-assistant/assembler"
	"github.com/MFTechStaffs/moodle-ai-assistant/memory"
	"github.com/MFTechStaffs/moodle-ai-assistant/shared/logger"
)

// MaxTokens is the per-query token budget.
const MaxTokens = 2000

// ContextBuilder is the assembler surface the orchestrator uses.
type ContextBuilder interface {
	BuildContext(ctx context.Context, query, sessionID string) (string, []assembler.ContextItem, error)
	SaveInteraction(ctx context.Context, sessionID, userInput, aiResponse string, contextUsed []assembler.ContextItem, actionTaken, provider string) error
}

// PatternStore is the memory surface the orchestrator uses directly.
type PatternStore interface {
	SaveAdminPattern(ctx context.Context, patternType string, data any) error
	GetStats(ctx context.Context) (*memory.Stats, error)
}

// browserFallbackOrder is the fixed order the browser fallback tries
// when the router fails entirely. First success wins.
var browserFallbackOrder = []struct {
	provider   string
	confidence float64
}{
	{"claude", 0.85},
	{"chatgpt", 0.80},
	{"gemini", 0.75},
}

// ActionResult acknowledges an executed admin action.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// BrowserStatus reports the automation engine's state.
type BrowserStatus struct {
	Initialized bool   `json:"initialized"`
	Status      string `json:"status"`
}

// ServiceStats is the orchestrator's stats surface.
type ServiceStats struct {
	Providers          []ProviderStat `json:"providers"`
	TotalConversations int            `json:"totalConversations"`
	BrowserAutomation  BrowserStatus  `json:"browserAutomation"`
}

// Orchestrator runs the full query pipeline: classify, assemble context,
// route, fall back to browser automation, persist the exchange.
type Orchestrator struct {
	router    *Router
	registry  *Registry
	engine    BrowserEngine
	assembler ContextBuilder
	store     PatternStore
	log       *logger.Logger
}

// NewOrchestrator wires the orchestrator together.
func NewOrchestrator(router *Router, registry *Registry, engine BrowserEngine, builder ContextBuilder, store PatternStore) *Orchestrator {
	return &Orchestrator{
		router:    router,
		registry:  registry,
		engine:    engine,
		assembler: builder,
		store:     store,
		log:       logger.New("ai-orchestrator"),
	}
}

// ProcessQuery handles one operator query end to end. A store failure
// while persisting the exchange surfaces as an error even when a provider
// answered.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query, sessionID string) (*Response, error) {
	contextBlock, items, err := o.assembler.BuildContext(ctx, query, sessionID)
	if err != nil {
		promQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to build context: %w", err)
	}

	req := Request{
		Query:     query,
		Context:   contextBlock,
		TaskType:  DetermineTaskType(query),
		SessionID: sessionID,
		MaxTokens: MaxTokens,
	}

	resp, err := o.router.Route(ctx, req)
	if err != nil {
		o.log.Warn(sessionID, "", "router failed, trying browser automation", map[string]interface{}{
			"error": err.Error(),
		})
		resp, err = o.browserFallback(ctx, req)
		if err != nil {
			promQueriesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	action := extractAction(resp.Content)
	if err := o.assembler.SaveInteraction(ctx, sessionID, query, resp.Content, items, action, resp.Provider); err != nil {
		promQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	promQueriesTotal.WithLabelValues("success").Inc()
	return resp, nil
}

// browserFallback drives each provider's web interface in fixed order
// and takes the first success. Responses are stamped with a
// "<provider>-browser" name so callers can tell the channel apart.
func (o *Orchestrator) browserFallback(ctx context.Context, req Request) (*Response, error) {
	promBrowserFallbacks.Inc()
	start := time.Now()

	var lastErr error
	for _, candidate := range browserFallbackOrder {
		content, err := o.engine.Send(ctx, candidate.provider, req.Query, req.Context)
		if err != nil {
			o.log.Warn(req.SessionID, "", "browser provider failed", map[string]interface{}{
				"provider": candidate.provider,
				"error":    err.Error(),
			})
			lastErr = err
			continue
		}

		return &Response{
			Content:          content,
			Provider:         candidate.provider + "-browser",
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Confidence:       candidate.confidence,
		}, nil
	}

	return nil, newProviderError("", CodeAutomationFailed, "all browser providers failed", lastErr)
}

// extractAction derives the action a response committed to from its
// phrasing. Empty means no recognizable action.
func extractAction(response string) string {
	lower := strings.ToLower(response)

	switch {
	case strings.Contains(lower, "creating") || strings.Contains(lower, "will create"):
		return "create"
	case strings.Contains(lower, "updating") || strings.Contains(lower, "will update"):
		return "update"
	case strings.Contains(lower, "deleting") || strings.Contains(lower, "will delete"):
		return "delete"
	case strings.Contains(lower, "analyzing") || strings.Contains(lower, "analysis"):
		return "analyze"
	default:
		return ""
	}
}

// ExecuteAction records the pattern behind a confirmed admin action.
// Actual Moodle writes happen out of band; the pattern drives future
// context assembly.
func (o *Orchestrator) ExecuteAction(ctx context.Context, action string, params map[string]any, sessionID string) (*ActionResult, error) {
	o.log.Info(sessionID, "", "executing action", map[string]interface{}{"action": action})

	timestamp := time.Now().UTC().Format(time.RFC3339)

	switch action {
	case "create_course":
		if err := o.store.SaveAdminPattern(ctx, "course_creation", map[string]any{
			"template": params, "timestamp": timestamp,
		}); err != nil {
			return nil, err
		}
		return &ActionResult{Success: true, Message: "Course creation pattern saved"}, nil

	case "enroll_users":
		if err := o.store.SaveAdminPattern(ctx, "user_enrollment", map[string]any{
			"pattern": params, "timestamp": timestamp,
		}); err != nil {
			return nil, err
		}
		return &ActionResult{Success: true, Message: "User enrollment pattern saved"}, nil

	case "create_questions":
		if err := o.store.SaveAdminPattern(ctx, "question_creation", map[string]any{
			"template": params, "timestamp": timestamp,
		}); err != nil {
			return nil, err
		}
		return &ActionResult{Success: true, Message: "Question creation pattern saved"}, nil

	case "update_quiz":
		if err := o.store.SaveAdminPattern(ctx, "quiz_update", map[string]any{
			"changes": params, "timestamp": timestamp,
		}); err != nil {
			return nil, err
		}
		return &ActionResult{Success: true, Message: "Quiz update pattern saved"}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

// Stats reports provider, conversation, and automation state.
func (o *Orchestrator) Stats(ctx context.Context) (*ServiceStats, error) {
	stats, err := o.store.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	status := "ready"
	if o.engine.Active() {
		status = "active"
	}

	return &ServiceStats{
		Providers:          o.registry.Stats(),
		TotalConversations: stats.Conversations,
		BrowserAutomation: BrowserStatus{
			Initialized: o.engine.Active(),
			Status:      status,
		},
	}, nil
}

// Close tears down the browser engine.
func (o *Orchestrator) Close() error {
	return o.engine.Close()
}
