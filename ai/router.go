// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"context"
	"time"

	"github.com/MFTechStaffs/moodle-ai-assistant/shared/logger"
)

// Router sends requests to the provider the registry selects, with a
// single-hop fallback: on a provider failure, exactly one retry against
// the best remaining enabled provider, never a chain.
type Router struct {
	registry *Registry
	adapters map[string]ProviderAdapter
	log      *logger.Logger
}

// NewRouter creates a router over a registry and its adapter set.
func NewRouter(registry *Registry, adapters map[string]ProviderAdapter) *Router {
	return &Router{
		registry: registry,
		adapters: adapters,
		log:      logger.New("ai-router"),
	}
}

// Route sends the request to the selected provider. The returned response
// is stamped with elapsed wall-clock time and the name of whichever
// provider actually answered.
func (r *Router) Route(ctx context.Context, req Request) (*Response, error) {
	provider := r.registry.SelectProvider(req.TaskType)
	if provider == nil {
		return nil, newProviderError("", CodeProviderUnavailable, "registry has no enabled provider", ErrNoProvider)
	}

	r.log.Info(req.SessionID, "", "routing query", map[string]interface{}{
		"task_type": req.TaskType,
		"provider":  provider.Name,
	})

	start := time.Now()

	resp, err := r.callAdapter(ctx, provider.Name, req)
	if err == nil {
		return stamp(resp, provider.Name, start), nil
	}

	r.log.Error(req.SessionID, "", "provider failed", map[string]interface{}{
		"provider": provider.Name,
		"error":    err.Error(),
	})

	fallback := r.registry.FallbackProvider(provider.Name)
	if fallback == nil {
		return nil, err
	}

	r.log.Warn(req.SessionID, "", "falling back", map[string]interface{}{
		"from": provider.Name,
		"to":   fallback.Name,
	})

	resp, fbErr := r.callAdapter(ctx, fallback.Name, req)
	if fbErr != nil {
		return nil, newProviderError(fallback.Name, CodeProviderCallFailed,
			"fallback failed after "+provider.Name, err)
	}

	return stamp(resp, fallback.Name, start), nil
}

func (r *Router) callAdapter(ctx context.Context, name string, req Request) (*Response, error) {
	adapter, ok := r.adapters[name]
	if !ok {
		promProviderCalls.WithLabelValues(name, "error").Inc()
		return nil, newProviderError(name, CodeProviderUnavailable, "no adapter registered", nil)
	}

	start := time.Now()
	resp, err := adapter.Send(ctx, req)
	elapsed := float64(time.Since(start).Milliseconds())
	promProviderDuration.WithLabelValues(name).Observe(elapsed)

	if err != nil {
		promProviderCalls.WithLabelValues(name, "error").Inc()
		return nil, err
	}
	promProviderCalls.WithLabelValues(name, "success").Inc()
	return resp, nil
}

func stamp(resp *Response, provider string, start time.Time) *Response {
	resp.Provider = provider
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp
}
