// Package auth verifies the credentials carried on incoming S3 API requests.
// Two schemes are supported: HTTP Basic (convenient for curl and tests) and
// AWS Signature Version 4, which is what real S3 SDKs send.
package auth

import (
	"context"
	"net/http"
)

// User identifies the principal a request authenticated as.
type User struct {
	AccessKeyID string
}

type Engine interface {

	// Authenticate inspects the given HTTP request for credentials it
	// understands. It returns the authenticated user, or nil when the
	// request carries no valid credentials for this scheme. An error is
	// returned only when the request could not be processed.
	Authenticate(ctx context.Context, r *http.Request) (*User, error)
}

// ChainEngine tries each wrapped engine in order and accepts the first match.
type ChainEngine struct {
	engines []Engine
}

// NewChainEngine creates an Engine that accepts a request if any of the given
// engines does.
func NewChainEngine(engines ...Engine) *ChainEngine {
	return &ChainEngine{
		engines: engines,
	}
}

func (e *ChainEngine) Authenticate(ctx context.Context, r *http.Request) (*User, error) {
	for _, engine := range e.engines {
		if user, err := engine.Authenticate(ctx, r); user != nil && err == nil {
			return user, nil
		}
	}

	return nil, nil
}
