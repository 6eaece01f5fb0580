package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		code      int
		wantType  string
		retryable bool
	}{
		{401, "*llm.AuthError", false},
		{403, "*llm.AuthError", false},
		{413, "*llm.ContextLengthError", false},
		{429, "*llm.RateLimitError", true},
		{408, "*llm.TimeoutError", true},
		{500, "*llm.ServerError", true},
		{503, "*llm.ServerError", true},
		{400, "*llm.ProviderError", false},
	}

	for _, tc := range cases {
		err := ClassifyStatus("test", tc.code, "boom")
		if got := fmt.Sprintf("%T", err); got != tc.wantType {
			t.Errorf("code %d: expected %s, got %s", tc.code, tc.wantType, got)
		}
		if IsRetryable(err) != tc.retryable {
			t.Errorf("code %d: expected retryable=%v", tc.code, tc.retryable)
		}
	}
}

func TestIsRetryableUnwraps(t *testing.T) {
	inner := &RateLimitError{ProviderError{Message: "slow down", Retry: true}}
	wrapped := fmt.Errorf("call failed: %w", inner)
	if !IsRetryable(wrapped) {
		t.Error("expected wrapped retryable error to be retryable")
	}

	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors must not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil must not be retryable")
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Provider: "anthropic", StatusCode: 429, Message: "rate limited"}
	want := "anthropic: rate limited (status 429)"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	bare := &ProviderError{Message: "no provider"}
	if bare.Error() != "no provider" {
		t.Errorf("unexpected message: %q", bare.Error())
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &ProviderError{Message: "outer", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}
