package providers

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureReason
	}{
		{"nil", nil, FailureUnknown},
		{"rate limit text", errors.New("rate limit exceeded"), FailureRateLimit},
		{"429 status", errors.New("unexpected status 429"), FailureRateLimit},
		{"timeout", errors.New("request timeout"), FailureTimeout},
		{"deadline", errors.New("context deadline exceeded"), FailureTimeout},
		{"auth", errors.New("invalid api key provided"), FailureAuth},
		{"forbidden", errors.New("status 403 forbidden"), FailureAuth},
		{"billing", errors.New("insufficient quota for request"), FailureBilling},
		{"server", errors.New("502 bad gateway"), FailureServerError},
		{"connection", errors.New("connection refused"), FailureServerError},
		{"model", errors.New("model not found"), FailureModelUnavailable},
		{"unknown", errors.New("something odd"), FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFailureReasonIsRetryable(t *testing.T) {
	retryable := []FailureReason{FailureRateLimit, FailureTimeout, FailureServerError}
	for _, reason := range retryable {
		if !reason.IsRetryable() {
			t.Errorf("%v should be retryable", reason)
		}
	}

	permanent := []FailureReason{FailureAuth, FailureBilling, FailureInvalidRequest, FailureModelUnavailable, FailureUnknown}
	for _, reason := range permanent {
		if reason.IsRetryable() {
			t.Errorf("%v should not be retryable", reason)
		}
	}
}

func TestProviderErrorFormat(t *testing.T) {
	err := NewProviderError("anthropic", "claude-3-5-sonnet-20241022", errors.New("boom")).
		WithStatus(500).
		WithCode("internal_error").
		WithRequestID("req_123")

	msg := err.Error()
	for _, want := range []string{"[server_error]", "anthropic", "model=claude-3-5-sonnet-20241022", "status=500", "code=internal_error"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error string %q missing %q", msg, want)
		}
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := fmt.Errorf("outer: %w", NewProviderError("openai", "gpt-4o", cause))

	var providerErr *ProviderError
	if !errors.As(wrapped, &providerErr) {
		t.Fatal("expected ProviderError in chain")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected cause to survive wrapping")
	}
}

func TestIsRetryableUsesClassification(t *testing.T) {
	if !IsRetryable(errors.New("503 service unavailable")) {
		t.Error("server errors should be retryable")
	}
	if IsRetryable(errors.New("status 401 unauthorized")) {
		t.Error("auth errors should not be retryable")
	}

	providerErr := NewProviderError("openai", "gpt-4o", errors.New("x")).WithStatus(429)
	if !IsRetryable(providerErr) {
		t.Error("rate-limited provider error should be retryable")
	}
}

func TestWithStatusReclassifies(t *testing.T) {
	tests := []struct {
		status int
		want   FailureReason
	}{
		{400, FailureInvalidRequest},
		{401, FailureAuth},
		{402, FailureBilling},
		{404, FailureModelUnavailable},
		{429, FailureRateLimit},
		{500, FailureServerError},
		{503, FailureServerError},
	}

	for _, tt := range tests {
		err := NewProviderError("anthropic", "m", errors.New("x")).WithStatus(tt.status)
		if err.Reason != tt.want {
			t.Errorf("status %d: reason = %v, want %v", tt.status, err.Reason, tt.want)
		}
	}
}
