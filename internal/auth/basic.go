package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
)

const basicAuthPrefix = "Basic "

// BasicEngine authenticates HTTP Basic credentials against a single
// configured key pair.
type BasicEngine struct {
	AccessKeyID     string
	SecretAccessKey string
}

// NewBasicEngine creates a BasicEngine for the given access key pair.
func NewBasicEngine(accessKeyID string, secretAccessKey string) *BasicEngine {
	return &BasicEngine{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
	}
}

// Authenticate checks the Authorization header for valid Basic Auth
// credentials. It returns the matching user, or nil when the header is
// absent, malformed, or carries the wrong credentials.
func (e *BasicEngine) Authenticate(ctx context.Context, r *http.Request) (*User, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, basicAuthPrefix) {
		return nil, nil
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(basicAuthPrefix):]))
	if err != nil {
		return nil, nil
	}

	username, password, ok := strings.Cut(string(payload), ":")
	if !ok {
		return nil, nil
	}

	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(e.AccessKeyID))
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(e.SecretAccessKey))
	if userMatch != 1 || passMatch != 1 {
		return nil, nil
	}

	return &User{AccessKeyID: username}, nil
}
