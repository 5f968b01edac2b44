// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"errors"
	"fmt"
)

// Error codes carried by ProviderError.
const (
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeProviderCallFailed  = "PROVIDER_CALL_FAILED"
	CodeAutomationFailed    = "AUTOMATION_FAILED"
)

// ErrNoProvider means the registry has no enabled provider to route to.
var ErrNoProvider = errors.New("no suitable AI provider available")

// ErrUnknownAction means ExecuteAction was asked for an action it does
// not implement.
var ErrUnknownAction = errors.New("unknown action")

// ProviderError wraps a routing or provider failure with the provider
// name and an error code.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.Provider, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

func newProviderError(provider, code, message string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Message: message, Cause: cause}
}
