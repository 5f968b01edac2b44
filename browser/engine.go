// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

// Package browser drives provider web interfaces through one shared
// headless-capable Chrome process. Sessions persist in a user-data
// directory so login cookies survive restarts; each provider gets its
// own cached tab.
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/MFTechStaffs/moodle-ai-assistant/shared/logger"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	viewportWidth  = 1280
	viewportHeight = 720

	loginWait    = 60 * time.Second
	loginPoll    = 1 * time.Second
	responseWait = 30 * time.Second
	responsePoll = 1 * time.Second
	settleWait   = 2 * time.Second
	inputWait    = 10 * time.Second

	// noResponse is returned when the provider rendered no assistant
	// message by extraction time.
	noResponse = "No response received"
)

// target describes how to drive one provider's web interface.
type target struct {
	url             string
	host            string
	inputSelector   string
	messageSelector string
	loginFragment   string
}

var targets = map[string]target{
	"claude": {
		url:             "https://claude.ai",
		host:            "claude.ai",
		inputSelector:   `[contenteditable="true"], textarea, input[type="text"]`,
		messageSelector: `[data-testid="message"]`,
		loginFragment:   "login",
	},
	"chatgpt": {
		url:             "https://chat.openai.com",
		host:            "chat.openai.com",
		inputSelector:   `#prompt-textarea, textarea[placeholder*="message"]`,
		messageSelector: `[data-message-author-role="assistant"]`,
		loginFragment:   "auth",
	},
	"gemini": {
		url:             "https://gemini.google.com",
		host:            "gemini.google.com",
		inputSelector:   `[contenteditable="true"], textarea`,
		messageSelector: `[data-response-index]`,
		loginFragment:   "accounts",
	},
}

// AutomationError wraps a failure in one provider's automation flow. The
// caller decides whether to try the next provider.
type AutomationError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *AutomationError) Error() string {
	return fmt.Sprintf("%s automation failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *AutomationError) Unwrap() error {
	return e.Err
}

// Config controls the shared browser process.
type Config struct {
	// UserDataDir is the persistent profile directory. Login cookies
	// live here across restarts.
	UserDataDir string
	// Headless disables the visible window. Interactive logins need a
	// visible browser, so this defaults off.
	Headless bool
}

// Engine owns the shared browser process and the per-provider tab cache.
// The process launches lazily on the first Send; concurrent first users
// observe one launch, never two.
type Engine struct {
	cfg Config
	log *logger.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
	tabs        map[string]*tab
	active      bool
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates an engine. The browser process is not started until
// the first Send.
func NewEngine(cfg Config) *Engine {
	if cfg.UserDataDir == "" {
		cfg.UserDataDir = "./browser-sessions"
	}
	return &Engine{
		cfg:  cfg,
		log:  logger.New("browser"),
		tabs: make(map[string]*tab),
	}
}

// Active reports whether the shared browser process is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// ensureBrowser launches the shared process once. Failure here is fatal
// to every provider sharing the process and surfaces to the caller.
func (e *Engine) ensureBrowser() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return nil
	}

	if err := os.MkdirAll(e.cfg.UserDataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create user data dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(e.cfg.UserDataDir),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(viewportWidth, viewportHeight),
		chromedp.Flag("headless", e.cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	// Start the process now so launch failures surface here, not on the
	// first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	e.allocCancel = allocCancel
	e.browserCtx = browserCtx
	e.browserStop = browserStop
	e.active = true

	e.log.Info("", "", "browser automation initialized", map[string]interface{}{
		"user_data_dir": e.cfg.UserDataDir,
		"headless":      e.cfg.Headless,
	})
	return nil
}

// getTab returns the cached tab for a provider, creating it on first use.
func (e *Engine) getTab(provider string) (*tab, error) {
	if err := e.ensureBrowser(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.tabs[provider]; ok {
		return t, nil
	}

	tabCtx, tabCancel := chromedp.NewContext(e.browserCtx)
	t := &tab{ctx: tabCtx, cancel: tabCancel}
	e.tabs[provider] = t
	return t, nil
}

// Send drives one provider through the full protocol: navigate when off
// the provider's host, wait out login, submit the combined context and
// prompt with a single Enter, wait for the response to render, extract
// the last assistant message.
func (e *Engine) Send(ctx context.Context, provider, prompt, contextBlock string) (string, error) {
	tgt, ok := targets[provider]
	if !ok {
		return "", &AutomationError{Provider: provider, Err: fmt.Errorf("unknown provider")}
	}

	t, err := e.getTab(provider)
	if err != nil {
		return "", &AutomationError{Provider: provider, Err: err}
	}

	response, err := e.send(ctx, t, provider, tgt, prompt, contextBlock)
	if err != nil {
		e.log.Error("", "", "automation failed", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		return "", &AutomationError{Provider: provider, Err: err}
	}
	return response, nil
}

func (e *Engine) send(ctx context.Context, t *tab, provider string, tgt target, prompt, contextBlock string) (string, error) {
	var currentURL string
	if err := e.run(ctx, t, 10*time.Second, chromedp.Location(&currentURL)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}

	if !strings.Contains(currentURL, tgt.host) {
		if err := e.run(ctx, t, 30*time.Second, chromedp.Navigate(tgt.url)); err != nil {
			return "", fmt.Errorf("navigation failed: %w", err)
		}
		e.waitForLogin(ctx, t, provider, tgt)
	}

	fullPrompt := contextBlock + "\n\nUser Request: " + prompt

	if err := e.run(ctx, t, inputWait, chromedp.WaitVisible(tgt.inputSelector, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("input control not found: %w", err)
	}

	clearScript := fmt.Sprintf(`(() => {
		const input = document.querySelector(%q);
		if (input) {
			if (input.tagName === 'INPUT' || input.tagName === 'TEXTAREA') {
				input.value = '';
			} else {
				input.innerHTML = '';
			}
			input.focus();
		}
	})()`, tgt.inputSelector)

	err := e.run(ctx, t, 30*time.Second,
		chromedp.Evaluate(clearScript, nil),
		chromedp.SendKeys(tgt.inputSelector, fullPrompt, chromedp.ByQuery),
		chromedp.KeyEvent(kb.Enter),
	)
	if err != nil {
		return "", fmt.Errorf("prompt submission failed: %w", err)
	}

	e.waitForResponse(ctx, t, provider, tgt)

	extractScript := fmt.Sprintf(`(() => {
		const messages = document.querySelectorAll(%q);
		const last = messages[messages.length - 1];
		return last ? (last.textContent || '') : %q;
	})()`, tgt.messageSelector, noResponse)

	var response string
	if err := e.run(ctx, t, 10*time.Second, chromedp.Evaluate(extractScript, &response)); err != nil {
		return "", fmt.Errorf("extraction failed: %w", err)
	}
	return response, nil
}

// waitForLogin polls the tab URL until it is on the provider host and off
// the login path, or the wait expires. A timeout is not an error; the
// flow proceeds and fails later if the session is genuinely absent.
func (e *Engine) waitForLogin(ctx context.Context, t *tab, provider string, tgt target) {
	e.log.Info("", "", "waiting for login", map[string]interface{}{"provider": provider})

	deadline := time.Now().Add(loginWait)
	for time.Now().Before(deadline) {
		var url string
		if err := e.run(ctx, t, 5*time.Second, chromedp.Location(&url)); err == nil {
			if strings.Contains(url, tgt.host) && !strings.Contains(url, tgt.loginFragment) {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(loginPoll):
		}
	}

	e.log.Info("", "", "login wait finished", map[string]interface{}{"provider": provider})
}

// waitForResponse polls for the provider's assistant-message selector,
// then waits a settle period for content to finish rendering. A timeout
// degrades to extraction rather than failing.
func (e *Engine) waitForResponse(ctx context.Context, t *tab, provider string, tgt target) {
	countScript := fmt.Sprintf(`document.querySelectorAll(%q).length`, tgt.messageSelector)

	deadline := time.Now().Add(responseWait)
	for time.Now().Before(deadline) {
		var count int
		if err := e.run(ctx, t, 5*time.Second, chromedp.Evaluate(countScript, &count)); err == nil && count > 0 {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(responsePoll):
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(settleWait):
	}
}

// run executes chromedp actions against a tab, bounded by both the
// caller's context and a step timeout.
func (e *Engine) run(ctx context.Context, t *tab, timeout time.Duration, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(stepCtx, actions...)
	}()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Close tears down every cached tab and the shared browser process.
// Partial close is not supported.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return nil
	}

	for _, t := range e.tabs {
		t.cancel()
	}
	e.tabs = make(map[string]*tab)

	e.browserStop()
	e.allocCancel()
	e.active = false

	e.log.Info("", "", "browser automation closed", nil)
	return nil
}
