package sharing

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// newToken returns a random 128-bit link token.
func newToken() (string, error) {
	token, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("sharing: generate token: %w", err)
	}
	return token.String(), nil
}

// canonicalToken normalizes a caller supplied token. Malformed tokens are reported as not found.
func canonicalToken(raw string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrShareNotFound
	}
	return parsed.String(), nil
}
