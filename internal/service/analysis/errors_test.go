package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestFriendlyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"seconds", errors.New("Rate limit reached for gpt-4o-mini. Please try again in 20s."), "Rate limit reached, try again in 20s"},
		{"fractional seconds", errors.New("rate_limit_exceeded: Please try again in 1.2s"), "Rate limit reached, try again in 2s"},
		{"milliseconds", errors.New("Rate limit reached. Please try again in 450ms."), "Rate limit reached, try again in 1s"},
		{"no hint", &UpstreamError{Status: 429, Message: "slow down"}, "Rate limit reached, try again shortly"},
		{"too many requests", errors.New("429 Too Many Requests"), "Rate limit reached, try again shortly"},
		{"wrapped", fmt.Errorf("coaching: %w", errors.New("rate limit, try again in 7 seconds")), "Rate limit reached, try again in 7s"},
		{"other", errors.New("connection refused"), "connection refused"},
		{"timeout", fmt.Errorf("tone: %w", context.DeadlineExceeded), "Analysis timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FriendlyError(tt.err); got != tt.want {
				t.Errorf("FriendlyError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("rate limit"), "rate_limit"},
		{context.DeadlineExceeded, "timeout"},
		{fmt.Errorf("tone: %w", ErrMalformed), "malformed"},
		{&UpstreamError{Status: 500, Message: "boom"}, "upstream"},
		{errors.New("dial tcp: refused"), "transport"},
	}
	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Errorf("errorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestClampScore(t *testing.T) {
	for in, want := range map[float64]float64{-3: -1, -1: -1, 0.25: 0.25, 1: 1, 7: 1} {
		if got := ClampScore(in); got != want {
			t.Errorf("ClampScore(%v) = %v, want %v", in, got, want)
		}
	}
}
