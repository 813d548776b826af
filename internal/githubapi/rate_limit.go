package githubapi

import (
	"bytes"
	"net/http"
	"strconv"
	"time"
)

var rateLimitMarkers = [][]byte{
	[]byte("rate limit"),
	[]byte("secondary rate limit"),
}

// diagnosticHeaders are echoed in non-success diagnostics when present.
var diagnosticHeaders = []string{
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"Retry-After",
}

// RateLimitHeaders contains parsed GitHub rate-limit response headers.
type RateLimitHeaders struct {
	Remaining        int
	ResetUnix        int64
	Used             int
	RetryAfter       time.Duration
	SecondaryLimited bool
}

// ParseRateLimitHeaders parses rate-limit and retry headers.
func ParseRateLimitHeaders(header http.Header, statusCode int) RateLimitHeaders {
	parsed := RateLimitHeaders{}
	parsed.Remaining = parseInt(header.Get("X-RateLimit-Remaining"))
	parsed.Used = parseInt(header.Get("X-RateLimit-Used"))
	parsed.ResetUnix = parseInt64(header.Get("X-RateLimit-Reset"))

	retryAfterSeconds := parseInt(header.Get("Retry-After"))
	if retryAfterSeconds > 0 {
		parsed.RetryAfter = time.Duration(retryAfterSeconds) * time.Second
	}

	if statusCode == http.StatusTooManyRequests {
		parsed.SecondaryLimited = true
	}
	if statusCode == http.StatusForbidden && parsed.RetryAfter > 0 {
		parsed.SecondaryLimited = true
	}

	return parsed
}

// IsRateLimited reports whether a response is a GitHub rate-limit rejection:
// HTTP 403 with a rate-limit message in the body.
func IsRateLimited(statusCode int, body []byte) bool {
	if statusCode != http.StatusForbidden {
		return false
	}
	lowered := bytes.ToLower(body)
	for _, marker := range rateLimitMarkers {
		if bytes.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func presentDiagnosticHeaders(header http.Header) map[string]string {
	present := make(map[string]string, len(diagnosticHeaders))
	for _, name := range diagnosticHeaders {
		if values := header.Values(name); len(values) > 0 {
			present[name] = values[0]
		}
	}
	return present
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
