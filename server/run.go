// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MFTechStaffs/moodle-ai-assistant/ai"
	"github.com/MFTechStaffs/moodle-ai-assistant/assembler"
	"github.com/MFTechStaffs/moodle-ai-assistant/browser"
	"github.com/MFTechStaffs/moodle-ai-assistant/config"
	"github.com/MFTechStaffs/moodle-ai-assistant/memory"
	"github.com/MFTechStaffs/moodle-ai-assistant/moodle"
	"github.com/MFTechStaffs/moodle-ai-assistant/shared/logger"
)

const shutdownTimeout = 10 * time.Second

// Run loads configuration, wires the assistant together, and serves HTTP
// until SIGINT or SIGTERM. The memory store and browser engine are closed
// on the way out.
func Run() error {
	log := logger.New("server")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := memory.NewStore(cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}

	var cache *memory.HistoryCache
	if cfg.Memory.RedisURL != "" {
		cache, err = memory.NewHistoryCache(cfg.Memory.RedisURL)
		if err != nil {
			// Redis is an accelerator, not a dependency.
			log.Warn("", "", "running without history cache", map[string]interface{}{
				"error": err.Error(),
			})
			cache = nil
		}
	}
	cached := memory.NewCachedStore(store, cache)

	engine := browser.NewEngine(browser.Config{
		UserDataDir: cfg.Browser.UserDataDir,
		Headless:    cfg.Browser.Headless,
	})

	builder := assembler.New(cached)

	registry := ai.NewRegistry()
	adapters := ai.NewAdapters(ai.AdapterConfig{
		AnthropicKey: cfg.Providers.AnthropicKey,
		OpenAIKey:    cfg.Providers.OpenAIKey,
		GeminiKey:    cfg.Providers.GeminiKey,
	}, engine)
	router := ai.NewRouter(registry, adapters)
	orchestrator := ai.NewOrchestrator(router, registry, engine, builder, cached)

	factory := ConnectorFactory(func(mc moodle.Config) SyncService {
		return moodle.NewConnector(mc, cached)
	})

	srv := NewServer(orchestrator, builder, cached, factory, cfg.Moodle, cfg.Server.AllowedOrigins)

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "", "listening", map[string]interface{}{"port": cfg.Server.Port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		log.Info("", "", "shutting down", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("", "", "shutdown did not complete cleanly", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := orchestrator.Close(); err != nil {
		log.Error("", "", "browser engine close failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := cache.Close(); err != nil {
		log.Error("", "", "history cache close failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to close memory store: %w", err)
	}

	log.Info("", "", "shutdown complete", nil)
	return nil
}
