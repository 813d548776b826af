package githubapi

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRateLimitHeaders(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		headers    map[string]string
		want       RateLimitHeaders
	}{
		{
			name:       "parses_standard_headers",
			statusCode: http.StatusOK,
			headers: map[string]string{
				"X-RateLimit-Remaining": "4999",
				"X-RateLimit-Reset":     "1739837000",
				"X-RateLimit-Used":      "1",
			},
			want: RateLimitHeaders{
				Remaining: 4999,
				Used:      1,
				ResetUnix: 1739837000,
			},
		},
		{
			name:       "detects_secondary_limit_from_retry_after",
			statusCode: http.StatusForbidden,
			headers: map[string]string{
				"Retry-After": "60",
			},
			want: RateLimitHeaders{
				RetryAfter:       60 * time.Second,
				SecondaryLimited: true,
			},
		},
		{
			name:       "handles_invalid_values_safely",
			statusCode: http.StatusTooManyRequests,
			headers: map[string]string{
				"X-RateLimit-Remaining": "abc",
				"X-RateLimit-Reset":     "xyz",
				"Retry-After":           "nan",
			},
			want: RateLimitHeaders{
				SecondaryLimited: true,
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			header := make(http.Header)
			for key, value := range tc.headers {
				header.Set(key, value)
			}

			got := ParseRateLimitHeaders(header, tc.statusCode)
			if got != tc.want {
				t.Fatalf("ParseRateLimitHeaders() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		body       string
		want       bool
	}{
		{name: "primary_limit_message", statusCode: http.StatusForbidden, body: `{"message":"API rate limit exceeded for user"}`, want: true},
		{name: "secondary_limit_mixed_case", statusCode: http.StatusForbidden, body: `You have exceeded a Secondary Rate Limit.`, want: true},
		{name: "forbidden_without_marker", statusCode: http.StatusForbidden, body: `{"message":"Resource not accessible by integration"}`, want: false},
		{name: "marker_on_other_status", statusCode: http.StatusBadGateway, body: `rate limit`, want: false},
		{name: "empty_body", statusCode: http.StatusForbidden, body: ``, want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := IsRateLimited(tc.statusCode, []byte(tc.body)); got != tc.want {
				t.Fatalf("IsRateLimited(%d, %q) = %t, want %t", tc.statusCode, tc.body, got, tc.want)
			}
		})
	}
}

func TestPresentDiagnosticHeaders(t *testing.T) {
	t.Parallel()

	header := make(http.Header)
	header.Set("X-RateLimit-Remaining", "0")
	header.Set("Retry-After", "30")
	header.Set("X-GitHub-Request-Id", "abc")

	got := presentDiagnosticHeaders(header)
	if len(got) != 2 {
		t.Fatalf("len(presentDiagnosticHeaders()) = %d, want 2 (%v)", len(got), got)
	}
	if got["X-RateLimit-Remaining"] != "0" || got["Retry-After"] != "30" {
		t.Fatalf("presentDiagnosticHeaders() = %v, want remaining=0 retry-after=30", got)
	}
	if _, ok := got["X-RateLimit-Reset"]; ok {
		t.Fatalf("presentDiagnosticHeaders() included absent X-RateLimit-Reset")
	}
}
