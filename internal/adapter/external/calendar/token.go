package calendar

import "context"

// StaticTokenSource returns the same configured API key for every
// owner and every refresh attempt. It's the TokenSource used when the
// calendar provider is reached with a single service-level credential
// rather than a per-user OAuth flow.
type StaticTokenSource struct {
	APIKey string
}

func (s StaticTokenSource) Token(ctx context.Context, ownerID string) (string, error) {
	return s.APIKey, nil
}

func (s StaticTokenSource) Refresh(ctx context.Context, ownerID string) (string, error) {
	return s.APIKey, nil
}
