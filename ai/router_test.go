// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter answers or fails on demand and counts calls.
type fakeAdapter struct {
	name    string
	content string
	err     error
	calls   int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Send(ctx context.Context, req Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Content: f.content, Confidence: 0.9}, nil
}

func newTestRouter(adapters ...*fakeAdapter) (*Router, *Registry) {
	registry := NewRegistry()
	byName := make(map[string]ProviderAdapter)
	for _, a := range adapters {
		byName[a.name] = a
	}
	return NewRouter(registry, byName), registry
}

func TestRouteSuccessStampsProvider(t *testing.T) {
	claude := &fakeAdapter{name: "claude", content: "course plan"}
	router, _ := newTestRouter(claude,
		&fakeAdapter{name: "chatgpt", content: "x"},
		&fakeAdapter{name: "gemini", content: "x"})

	resp, err := router.Route(context.Background(), Request{TaskType: TaskCourseCreation})
	require.NoError(t, err)

	assert.Equal(t, "course plan", resp.Content)
	assert.Equal(t, "claude", resp.Provider)
	assert.GreaterOrEqual(t, resp.ProcessingTimeMs, int64(0))
	assert.Equal(t, 1, claude.calls)
}

func TestRouteFallsBackOnce(t *testing.T) {
	claude := &fakeAdapter{name: "claude", err: errors.New("backend down")}
	chatgpt := &fakeAdapter{name: "chatgpt", content: "fallback answer"}
	gemini := &fakeAdapter{name: "gemini", content: "unused"}
	router, _ := newTestRouter(claude, chatgpt, gemini)

	resp, err := router.Route(context.Background(), Request{TaskType: TaskCourseCreation})
	require.NoError(t, err)

	assert.Equal(t, "fallback answer", resp.Content)
	assert.Equal(t, "chatgpt", resp.Provider)
	assert.Equal(t, 1, claude.calls)
	assert.Equal(t, 1, chatgpt.calls)
	assert.Equal(t, 0, gemini.calls, "fallback is single-hop")
}

func TestRouteFallbackAlsoFailsKeepsOriginalError(t *testing.T) {
	original := errors.New("claude exploded")
	claude := &fakeAdapter{name: "claude", err: original}
	chatgpt := &fakeAdapter{name: "chatgpt", err: errors.New("chatgpt exploded")}
	gemini := &fakeAdapter{name: "gemini", err: errors.New("gemini exploded")}
	router, _ := newTestRouter(claude, chatgpt, gemini)

	_, err := router.Route(context.Background(), Request{TaskType: TaskCourseCreation})
	require.Error(t, err)

	assert.ErrorIs(t, err, original)
	assert.Equal(t, 0, gemini.calls, "never a chain beyond two providers")
}

func TestRouteNoFallbackPropagatesOriginalError(t *testing.T) {
	original := errors.New("claude exploded")
	claude := &fakeAdapter{name: "claude", err: original}
	router, registry := newTestRouter(claude,
		&fakeAdapter{name: "chatgpt"},
		&fakeAdapter{name: "gemini"})
	registry.SetEnabled("chatgpt", false)
	registry.SetEnabled("gemini", false)

	_, err := router.Route(context.Background(), Request{TaskType: TaskCourseCreation})
	require.Error(t, err)
	assert.ErrorIs(t, err, original)
}

func TestRouteAllDisabled(t *testing.T) {
	router, registry := newTestRouter(
		&fakeAdapter{name: "claude"},
		&fakeAdapter{name: "chatgpt"},
		&fakeAdapter{name: "gemini"})
	for _, name := range []string{"claude", "chatgpt", "gemini"} {
		registry.SetEnabled(name, false)
	}

	_, err := router.Route(context.Background(), Request{TaskType: TaskGeneral})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrNoProvider)
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, CodeProviderUnavailable, provErr.Code)
}

func TestRouteDisabledPreferredUsesRegistrationOrder(t *testing.T) {
	claude := &fakeAdapter{name: "claude", content: "x"}
	chatgpt := &fakeAdapter{name: "chatgpt", content: "second choice"}
	router, registry := newTestRouter(claude, chatgpt, &fakeAdapter{name: "gemini", content: "x"})
	registry.SetEnabled("claude", false)

	resp, err := router.Route(context.Background(), Request{TaskType: TaskCourseCreation})
	require.NoError(t, err)

	assert.Equal(t, "chatgpt", resp.Provider)
	assert.Equal(t, 0, claude.calls)
}
