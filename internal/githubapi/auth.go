package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// RESTClient wraps the go-github REST client.
type RESTClient struct {
	Client *github.Client
}

// RateBudget is the remaining request budget reported by the REST rate_limit endpoint.
type RateBudget struct {
	CoreRemaining    int
	CoreReset        time.Time
	GraphQLLimit     int
	GraphQLRemaining int
	GraphQLReset     time.Time
}

// NewTokenHTTPClient creates an HTTP client that sends token as a bearer credential.
func NewTokenHTTPClient(ctx context.Context, token string, timeout time.Duration) (*http.Client, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, fmt.Errorf("github token is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: trimmed}))
	client.Timeout = timeout
	return client, nil
}

// NewGitHubRESTClient creates a go-github client with optional API base URL override.
func NewGitHubRESTClient(httpClient *http.Client, apiBaseURL string) (*RESTClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	client := github.NewClient(httpClient)
	trimmedBaseURL := strings.TrimSpace(apiBaseURL)
	if trimmedBaseURL == "" {
		return &RESTClient{Client: client}, nil
	}

	parsedURL, err := url.Parse(trimmedBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}

	client.BaseURL = parsedURL
	return &RESTClient{Client: client}, nil
}

// RateBudget fetches the current core and GraphQL rate limit budget.
func (c *RESTClient) RateBudget(ctx context.Context) (RateBudget, error) {
	if c == nil || c.Client == nil {
		return RateBudget{}, fmt.Errorf("rest client is not configured")
	}

	limits, _, err := c.Client.RateLimit.Get(ctx)
	if err != nil {
		return RateBudget{}, fmt.Errorf("get rate limits: %w", err)
	}

	budget := RateBudget{}
	if limits == nil {
		return budget, nil
	}
	if limits.Core != nil {
		budget.CoreRemaining = limits.Core.Remaining
		budget.CoreReset = limits.Core.Reset.Time
	}
	if limits.GraphQL != nil {
		budget.GraphQLLimit = limits.GraphQL.Limit
		budget.GraphQLRemaining = limits.GraphQL.Remaining
		budget.GraphQLReset = limits.GraphQL.Reset.Time
	}
	return budget, nil
}
