// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MFTechStaffs/moodle-ai-assistant/assembler"
	"github.com/MFTechStaffs/moodle-ai-assistant/memory"
)

// fakeEngine scripts per-provider browser outcomes.
type fakeEngine struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
	closed    bool
}

func (f *fakeEngine) Send(ctx context.Context, provider, prompt, contextBlock string) (string, error) {
	f.calls = append(f.calls, provider)
	if err, ok := f.errs[provider]; ok {
		return "", err
	}
	if resp, ok := f.responses[provider]; ok {
		return resp, nil
	}
	return "", errors.New("no session")
}

func (f *fakeEngine) Active() bool { return true }
func (f *fakeEngine) Close() error { f.closed = true; return nil }

// fakeBuilder is a scripted ContextBuilder.
type fakeBuilder struct {
	contextBlock string
	items        []assembler.ContextItem
	buildErr     error
	saveErr      error

	savedResponse string
	savedAction   string
	savedProvider string
}

func (f *fakeBuilder) BuildContext(ctx context.Context, query, sessionID string) (string, []assembler.ContextItem, error) {
	return f.contextBlock, f.items, f.buildErr
}

func (f *fakeBuilder) SaveInteraction(ctx context.Context, sessionID, userInput, aiResponse string, contextUsed []assembler.ContextItem, actionTaken, provider string) error {
	f.savedResponse = aiResponse
	f.savedAction = actionTaken
	f.savedProvider = provider
	return f.saveErr
}

// fakePatternStore records saved patterns.
type fakePatternStore struct {
	patterns map[string]any
	stats    memory.Stats
}

func newFakePatternStore() *fakePatternStore {
	return &fakePatternStore{patterns: make(map[string]any)}
}

func (f *fakePatternStore) SaveAdminPattern(ctx context.Context, patternType string, data any) error {
	f.patterns[patternType] = data
	return nil
}

func (f *fakePatternStore) GetStats(ctx context.Context) (*memory.Stats, error) {
	return &f.stats, nil
}

func newTestOrchestrator(adapters map[string]*fakeAdapter, engine *fakeEngine, builder *fakeBuilder, store *fakePatternStore) (*Orchestrator, *Registry) {
	registry := NewRegistry()
	byName := make(map[string]ProviderAdapter)
	for name, a := range adapters {
		byName[name] = a
	}
	router := NewRouter(registry, byName)
	return NewOrchestrator(router, registry, engine, builder, store), registry
}

func allFailingAdapters() map[string]*fakeAdapter {
	return map[string]*fakeAdapter{
		"claude":  {name: "claude", err: errors.New("claude down")},
		"chatgpt": {name: "chatgpt", err: errors.New("chatgpt down")},
		"gemini":  {name: "gemini", err: errors.New("gemini down")},
	}
}

func TestProcessQuerySuccessPersistsExchange(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"claude":  {name: "claude", content: "I am creating the course now."},
		"chatgpt": {name: "chatgpt", content: "x"},
		"gemini":  {name: "gemini", content: "x"},
	}
	builder := &fakeBuilder{contextBlock: "=== MOODLE CONTEXT ===\n"}
	o, _ := newTestOrchestrator(adapters, &fakeEngine{}, builder, newFakePatternStore())

	resp, err := o.ProcessQuery(context.Background(), "Create a new course", "s1")
	require.NoError(t, err)

	assert.Equal(t, "claude", resp.Provider)
	assert.Equal(t, "I am creating the course now.", builder.savedResponse)
	assert.Equal(t, "create", builder.savedAction)
	assert.Equal(t, "claude", builder.savedProvider)
}

func TestProcessQueryBrowserFallbackFirstSuccess(t *testing.T) {
	engine := &fakeEngine{responses: map[string]string{"claude": "browser answer"}}
	builder := &fakeBuilder{}
	o, _ := newTestOrchestrator(allFailingAdapters(), engine, builder, newFakePatternStore())

	resp, err := o.ProcessQuery(context.Background(), "Review my course", "s1")
	require.NoError(t, err)

	assert.Equal(t, "claude-browser", resp.Provider)
	assert.InDelta(t, 0.85, resp.Confidence, 1e-9)
	assert.Equal(t, "browser answer", resp.Content)
}

func TestProcessQueryBrowserFallbackOrder(t *testing.T) {
	engine := &fakeEngine{
		errs:      map[string]error{"claude": errors.New("no claude session")},
		responses: map[string]string{"chatgpt": "second choice"},
	}
	o, _ := newTestOrchestrator(allFailingAdapters(), engine, &fakeBuilder{}, newFakePatternStore())

	resp, err := o.ProcessQuery(context.Background(), "Review my course", "s1")
	require.NoError(t, err)

	assert.Equal(t, "chatgpt-browser", resp.Provider)
	assert.InDelta(t, 0.80, resp.Confidence, 1e-9)
	assert.Equal(t, []string{"claude", "chatgpt"}, engine.calls)
}

func TestProcessQueryAllChannelsFail(t *testing.T) {
	engine := &fakeEngine{errs: map[string]error{
		"claude":  errors.New("a"),
		"chatgpt": errors.New("b"),
		"gemini":  errors.New("c"),
	}}
	o, _ := newTestOrchestrator(allFailingAdapters(), engine, &fakeBuilder{}, newFakePatternStore())

	_, err := o.ProcessQuery(context.Background(), "Review my course", "s1")
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, CodeAutomationFailed, provErr.Code)
	assert.Equal(t, []string{"claude", "chatgpt", "gemini"}, engine.calls)
}

func TestProcessQuerySurfacesStoreFailure(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"claude":  {name: "claude", content: "answer"},
		"chatgpt": {name: "chatgpt", content: "x"},
		"gemini":  {name: "gemini", content: "x"},
	}
	builder := &fakeBuilder{saveErr: errors.New("disk full")}
	o, _ := newTestOrchestrator(adapters, &fakeEngine{}, builder, newFakePatternStore())

	_, err := o.ProcessQuery(context.Background(), "hello", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestExtractAction(t *testing.T) {
	tests := []struct {
		response string
		expected string
	}{
		{"I am creating the course structure", "create"},
		{"I will create three quizzes", "create"},
		{"Updating the deadline as requested", "update"},
		{"I will update the enrollment list", "update"},
		{"Deleting the duplicate questions", "delete"},
		{"Analyzing the quiz results", "analyze"},
		{"Here is my analysis of the data", "analyze"},
		{"Here is some information", ""},
	}

	for _, tt := range tests {
		if got := extractAction(tt.response); got != tt.expected {
			t.Errorf("extractAction(%q) = %q, want %q", tt.response, got, tt.expected)
		}
	}
}

func TestExecuteActionSavesPatterns(t *testing.T) {
	store := newFakePatternStore()
	o, _ := newTestOrchestrator(allFailingAdapters(), &fakeEngine{}, &fakeBuilder{}, store)

	tests := []struct {
		action      string
		patternType string
		message     string
	}{
		{"create_course", "course_creation", "Course creation pattern saved"},
		{"enroll_users", "user_enrollment", "User enrollment pattern saved"},
		{"create_questions", "question_creation", "Question creation pattern saved"},
		{"update_quiz", "quiz_update", "Quiz update pattern saved"},
	}

	for _, tt := range tests {
		result, err := o.ExecuteAction(context.Background(), tt.action, map[string]any{"k": "v"}, "s1")
		require.NoError(t, err, tt.action)
		assert.True(t, result.Success)
		assert.Equal(t, tt.message, result.Message)
		assert.Contains(t, store.patterns, tt.patternType)
	}
}

func TestExecuteActionUnknown(t *testing.T) {
	o, _ := newTestOrchestrator(allFailingAdapters(), &fakeEngine{}, &fakeBuilder{}, newFakePatternStore())

	_, err := o.ExecuteAction(context.Background(), "launch_rockets", nil, "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestStats(t *testing.T) {
	store := newFakePatternStore()
	store.stats = memory.Stats{Conversations: 7}
	o, registry := newTestOrchestrator(allFailingAdapters(), &fakeEngine{}, &fakeBuilder{}, store)
	registry.SetEnabled("gemini", false)

	stats, err := o.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, stats.TotalConversations)
	assert.Len(t, stats.Providers, 3)
	assert.True(t, stats.BrowserAutomation.Initialized)
	assert.Equal(t, "active", stats.BrowserAutomation.Status)
}

func TestCloseShutsDownEngine(t *testing.T) {
	engine := &fakeEngine{}
	o, _ := newTestOrchestrator(allFailingAdapters(), engine, &fakeBuilder{}, newFakePatternStore())

	require.NoError(t, o.Close())
	assert.True(t, engine.closed)
}
