package analysis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformed marks a response that did not match the expected shape.
var ErrMalformed = errors.New("malformed analysis response")

// UpstreamError is an error payload or non-2xx status returned by the backend.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
}

var (
	rateLimitPattern = regexp.MustCompile(`(?i)rate.?limit|too many requests|\b429\b`)
	retryPattern     = regexp.MustCompile(`(?i)try again in\s+([0-9]+(?:\.[0-9]+)?)\s*(ms|s|sec|seconds)?`)
)

// IsRateLimit reports whether err looks like a rate-limit rejection.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Status == 429 {
		return true
	}
	return rateLimitPattern.MatchString(err.Error())
}

// FriendlyError renders err for display next to the affected pass.
// Rate-limit messages become a short "try again in Xs" string.
func FriendlyError(err error) string {
	if err == nil {
		return ""
	}
	if !IsRateLimit(err) {
		if errors.Is(err, context.DeadlineExceeded) {
			return "Analysis timed out"
		}
		return err.Error()
	}

	m := retryPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return "Rate limit reached, try again shortly"
	}
	secs, perr := strconv.ParseFloat(m[1], 64)
	if perr != nil {
		return "Rate limit reached, try again shortly"
	}
	if strings.EqualFold(m[2], "ms") {
		secs /= 1000
	}
	wait := int(secs + 0.999)
	if wait < 1 {
		wait = 1
	}
	return fmt.Sprintf("Rate limit reached, try again in %ds", wait)
}

// errorKind is the metrics label for a failed pass.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsRateLimit(err):
		return "rate_limit"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return "upstream"
	}
	return "transport"
}
