package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/github-activity-report/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultGraphQLURL is the public GitHub GraphQL endpoint.
	DefaultGraphQLURL = "https://api.github.com/graphql"

	diagnosticBodyLimit = 1000
)

// RetryConfig configures GraphQL client retry behavior.
type RetryConfig struct {
	MaxAttempts            int
	TransientBackoff       time.Duration
	RateLimitBackoff       time.Duration
	RateLimitRepeatBackoff time.Duration
}

// DefaultRetryConfig returns the stock retry budget: 5 attempts, 5s after
// transient failures, 60s then 120s after rate limits.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:            5,
		TransientBackoff:       5 * time.Second,
		RateLimitBackoff:       60 * time.Second,
		RateLimitRepeatBackoff: 120 * time.Second,
	}
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchErrorKind classifies why a GraphQL call failed.
type FetchErrorKind string

const (
	// FetchErrorExhausted means the retry budget ran out.
	FetchErrorExhausted FetchErrorKind = "exhausted"
	// FetchErrorGraphQL means the server answered with a GraphQL errors array.
	FetchErrorGraphQL FetchErrorKind = "graphql"
)

// FetchError is returned by GraphQLClient.Execute when a call fails for good.
type FetchError struct {
	Kind     FetchErrorKind
	Attempts int
	Messages []string
	Err      error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchErrorGraphQL:
		return fmt.Sprintf("graphql errors: %s", strings.Join(e.Messages, "; "))
	default:
		if e.Err != nil {
			return fmt.Sprintf("exhausted after %d attempts: %v", e.Attempts, e.Err)
		}
		return fmt.Sprintf("exhausted after %d attempts", e.Attempts)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// GraphQLClient posts GraphQL documents with retry and rate-limit handling.
type GraphQLClient struct {
	doer     HTTPDoer
	endpoint string
	machine  RetryStateMachine
	logger   *zap.Logger
	// Sleep is injected for testability.
	Sleep func(duration time.Duration)
}

// NewGraphQLClient creates a GraphQL client. An empty endpoint uses DefaultGraphQLURL.
func NewGraphQLClient(doer HTTPDoer, endpoint string, retry RetryConfig, logger *zap.Logger) (*GraphQLClient, error) {
	if doer == nil {
		return nil, fmt.Errorf("http doer is required")
	}
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		trimmed = DefaultGraphQLURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphQLClient{
		doer:     doer,
		endpoint: trimmed,
		machine: RetryStateMachine{
			MaxAttempts:            retry.MaxAttempts,
			TransientBackoff:       retry.TransientBackoff,
			RateLimitBackoff:       retry.RateLimitBackoff,
			RateLimitRepeatBackoff: retry.RateLimitRepeatBackoff,
		},
		logger: logger,
		Sleep:  time.Sleep,
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type graphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path"`
}

type attemptResult struct {
	data     json.RawMessage
	outcome  AttemptOutcome
	err      error
	messages []string
}

// Execute runs one GraphQL query and returns its data object.
func (c *GraphQLClient) Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	if variables == nil {
		variables = map[string]any{}
	}
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("encode graphql request: %w", err)
	}

	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer("github-activity-report/internal/githubapi").Start(
			ctx,
			"githubapi.graphql.execute",
			trace.WithAttributes(
				attribute.String("http.url", c.endpoint),
				attribute.Int("github.max_attempts", c.machine.maxAttempts()),
			),
		)
		defer span.End()
	}

	state := c.machine.Start()
	var last attemptResult
	for !state.Done() {
		last = c.attempt(ctx, body, variables, state.Attempts+1)
		state = c.machine.Apply(state, last.outcome)
		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", state.Attempts),
				attribute.String("github.outcome", string(last.outcome)),
				attribute.String("github.retry_mode", string(state.Mode)),
			))
		}

		switch state.Mode {
		case RetryModeBackoffRateLimit:
			c.logger.Warn("rate limit hit, backing off",
				zap.Duration("wait", state.WaitFor),
				zap.Int("attempt", state.Attempts),
				zap.Int("max_attempts", c.machine.maxAttempts()),
			)
			c.Sleep(state.WaitFor)
			state = c.machine.Resume(state)
		case RetryModeBackoffTransient:
			c.logger.Warn("graphql attempt failed, retrying",
				zap.Duration("wait", state.WaitFor),
				zap.Int("attempt", state.Attempts),
				zap.Int("max_attempts", c.machine.maxAttempts()),
				zap.Error(last.err),
			)
			c.Sleep(state.WaitFor)
			state = c.machine.Resume(state)
		}
	}

	if state.Mode == RetryModeSucceeded {
		if span != nil {
			span.SetStatus(codes.Ok, "request completed")
		}
		return last.data, nil
	}

	fetchErr := &FetchError{Kind: FetchErrorExhausted, Attempts: state.Attempts, Err: last.err}
	if last.outcome == OutcomeFatal {
		fetchErr.Kind = FetchErrorGraphQL
		fetchErr.Messages = last.messages
	}
	if span != nil {
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, fetchErr.Error())
	}
	return nil, fetchErr
}

func (c *GraphQLClient) attempt(ctx context.Context, body []byte, variables map[string]any, attempt int) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return attemptResult{outcome: OutcomeTransient, err: fmt.Errorf("build graphql request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		c.logger.Warn("graphql transport error", zap.Int("attempt", attempt), zap.Error(err))
		return attemptResult{outcome: OutcomeTransient, err: err}
	}
	if resp == nil {
		return attemptResult{outcome: OutcomeTransient, err: errors.New("nil response")}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptResult{outcome: OutcomeTransient, err: fmt.Errorf("read graphql response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logDiagnostics(req, resp, variables, payload)
		statusErr := fmt.Errorf("http status %d", resp.StatusCode)
		if IsRateLimited(resp.StatusCode, payload) {
			return attemptResult{outcome: OutcomeRateLimited, err: statusErr}
		}
		return attemptResult{outcome: OutcomeTransient, err: statusErr}
	}

	var envelope graphQLEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return attemptResult{outcome: OutcomeTransient, err: fmt.Errorf("decode graphql response: %w", err)}
	}

	if hasJSONValue(envelope.Errors) {
		messages := c.logGraphQLErrors(envelope.Errors, variables)
		return attemptResult{outcome: OutcomeFatal, messages: messages, err: errors.New("graphql errors in response")}
	}
	return attemptResult{outcome: OutcomeSuccess, data: envelope.Data}
}

func (c *GraphQLClient) logDiagnostics(req *http.Request, resp *http.Response, variables map[string]any, body []byte) {
	fields := []zap.Field{
		zap.Int("status", resp.StatusCode),
		zap.String("reason", http.StatusText(resp.StatusCode)),
		zap.String("url", req.URL.String()),
		zap.String("variables", encodeVariables(variables)),
		zap.Any("headers", presentDiagnosticHeaders(resp.Header)),
		zap.String("body", truncate(body, diagnosticBodyLimit)),
	}
	headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
	fields = append(fields,
		zap.Int("rate_limit_remaining", headers.Remaining),
		zap.Int("rate_limit_used", headers.Used),
	)
	if headers.ResetUnix > 0 {
		fields = append(fields, zap.Time("rate_limit_reset", time.Unix(headers.ResetUnix, 0).UTC()))
	}
	if headers.RetryAfter > 0 {
		fields = append(fields, zap.Duration("retry_after", headers.RetryAfter))
	}
	if headers.SecondaryLimited {
		fields = append(fields, zap.Bool("secondary_limited", true))
	}
	c.logger.Warn("graphql non-success response", fields...)
}

func (c *GraphQLClient) logGraphQLErrors(raw json.RawMessage, variables map[string]any) []string {
	var graphErrors []graphQLError
	if err := json.Unmarshal(raw, &graphErrors); err != nil {
		message := truncate(raw, diagnosticBodyLimit)
		c.logger.Error("graphql errors", zap.String("errors", message), zap.String("variables", encodeVariables(variables)))
		return []string{message}
	}

	messages := make([]string, 0, len(graphErrors))
	for _, graphErr := range graphErrors {
		c.logger.Error("graphql error",
			zap.Any("path", graphErr.Path),
			zap.String("message", graphErr.Message),
		)
		messages = append(messages, graphErr.Message)
	}
	c.logger.Error("graphql errors in response", zap.String("variables", encodeVariables(variables)))
	return messages
}

func hasJSONValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func encodeVariables(variables map[string]any) string {
	encoded, err := json.Marshal(variables)
	if err != nil {
		return fmt.Sprintf("%v", variables)
	}
	return string(encoded)
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit])
}
