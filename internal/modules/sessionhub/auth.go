package sessionhub

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned when a request carries no acceptable
// credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator maps an incoming request to a subject.
type Authenticator interface {
	Authenticate(r *http.Request) (subject string, err error)
}

// StaticTokenAuth authenticates bearer tokens against a fixed token to
// subject mapping from the configuration.
type StaticTokenAuth struct {
	subjects map[string]string
}

// NewStaticTokenAuth creates an authenticator from a token -> subject map.
func NewStaticTokenAuth(tokens map[string]string) StaticTokenAuth {
	subjects := make(map[string]string, len(tokens))
	for token, subject := range tokens {
		subjects[token] = subject
	}
	return StaticTokenAuth{subjects: subjects}
}

func (a StaticTokenAuth) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrUnauthorized
	}
	subject, ok := a.subjects[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return subject, nil
}

// AnonymousAuth accepts every request under a single shared subject. Meant
// for single-user deployments with no tokens configured.
type AnonymousAuth struct{}

func (AnonymousAuth) Authenticate(*http.Request) (string, error) {
	return "anonymous", nil
}
