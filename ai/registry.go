// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"log"
	"os"
	"sync"
)

var registryLogger = log.New(os.Stdout, "[AI-REGISTRY] ", log.LstdFlags)

// taskProviderMap routes task types to their preferred provider.
// Unmatched task types use the "general" entry.
var taskProviderMap = map[string]string{
	TaskCourseCreation:     "claude",
	TaskQuestionGeneration: "chatgpt",
	TaskCodeAnalysis:       "gemini",
	TaskUserManagement:     "claude",
	TaskContentReview:      "chatgpt",
	TaskDataAnalysis:       "claude",
	TaskGeneral:            "claude",
}

// Registry holds the known providers. Registration order is preserved:
// when the task-mapped provider is disabled, the first enabled provider
// in registration order wins, regardless of priority.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Provider
	order     []string
}

// NewRegistry creates a registry seeded with the default providers.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]*Provider)}
	for _, p := range DefaultProviders() {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider. A replaced provider keeps its
// original position in registration order.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name]; !exists {
		r.order = append(r.order, p.Name)
	}
	stored := p
	r.providers[p.Name] = &stored
}

// Get returns a copy of the named provider, or nil if unknown.
func (r *Registry) Get(name string) *Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil
	}
	copied := *p
	return &copied
}

// SelectProvider picks the provider for a task type: the task-mapped
// provider when it exists and is enabled, otherwise the first enabled
// provider in registration order. Returns nil when nothing is enabled.
func (r *Registry) SelectProvider(taskType string) *Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	preferred, ok := taskProviderMap[taskType]
	if !ok {
		preferred = taskProviderMap[TaskGeneral]
	}

	if p, exists := r.providers[preferred]; exists && p.Enabled {
		copied := *p
		return &copied
	}

	for _, name := range r.order {
		if p := r.providers[name]; p.Enabled {
			copied := *p
			return &copied
		}
	}

	return nil
}

// FallbackProvider returns the enabled provider with the lowest priority
// rank, excluding the named one. Returns nil when no candidate exists.
func (r *Registry) FallbackProvider(exclude string) *Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Provider
	for _, name := range r.order {
		p := r.providers[name]
		if !p.Enabled || p.Name == exclude {
			continue
		}
		if best == nil || p.Priority < best.Priority {
			best = p
		}
	}

	if best == nil {
		return nil
	}
	copied := *best
	return &copied
}

// SetEnabled flips a provider's enabled flag. Unknown names are ignored.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[name]; ok {
		p.Enabled = enabled
		registryLogger.Printf("Provider %s enabled=%t", name, enabled)
	}
}

// SetPriority updates a provider's priority rank. Unknown names are
// ignored.
func (r *Registry) SetPriority(name string, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[name]; ok {
		p.Priority = priority
	}
}

// Stats reports all providers in registration order.
func (r *Registry) Stats() []ProviderStat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]ProviderStat, 0, len(r.order))
	for _, name := range r.order {
		p := r.providers[name]
		stats = append(stats, ProviderStat{
			Name:         p.Name,
			Enabled:      p.Enabled,
			Priority:     p.Priority,
			Capabilities: append([]string(nil), p.Capabilities...),
		})
	}
	return stats
}
