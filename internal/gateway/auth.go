package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"project_handoff/internal/entities"
)

// ServiceTokenHeader carries the worker's shared secret.
const ServiceTokenHeader = "X-Service-Token"

// TokenParser validates an admin bearer token and returns the admin id.
type TokenParser interface {
	ParseToken(token string) (string, error)
}

// TokensEqual compares two secrets in constant time. Empty never matches.
func TokensEqual(expected, actual string) bool {
	expected = strings.TrimSpace(expected)
	actual = strings.TrimSpace(actual)
	if expected == "" || actual == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}

// RequestToken returns the bearer token from the Authorization header or,
// for browsers that cannot set headers on a websocket, the token query param.
func RequestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Authenticate resolves the principal behind an upgrade request. A request
// that presents the service header is judged on that header alone.
func Authenticate(r *http.Request, serviceToken string, tokens TokenParser) (Principal, error) {
	if secret := r.Header.Get(ServiceTokenHeader); secret != "" {
		if !TokensEqual(serviceToken, secret) {
			return Principal{}, entities.ErrUnauthorized
		}
		return Principal{Kind: PrincipalService}, nil
	}

	token := RequestToken(r)
	if token == "" || tokens == nil {
		return Principal{}, entities.ErrUnauthorized
	}
	adminID, err := tokens.ParseToken(token)
	if err != nil || adminID == "" {
		return Principal{}, entities.ErrUnauthorized
	}
	return Principal{Kind: PrincipalAdmin, AdminID: adminID}, nil
}
