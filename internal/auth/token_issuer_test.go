package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestIssuer(t *testing.T, clock func() time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret:   []byte("super-secret"),
		Issuer:          "ree-auth",
		Audience:        "ree-api",
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Clock:           clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return issuer
}

func TestTokenIssuerIssuesTokenPair(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	pair, err := issuer.IssueTokenPair(context.Background(), Subject{UserID: 42, Username: "tariro"})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if pair.AccessExpiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected access expiry %d", pair.AccessExpiresIn)
	}
	if pair.RefreshExpiresIn <= pair.AccessExpiresIn {
		t.Fatalf("expected refresh token to outlive access token")
	}

	claims := &TokenClaims{}
	_, err = jwt.ParseWithClaims(pair.AccessToken, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != "42" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Fatalf("unexpected token type %s", claims.TokenType)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != "ree-api" {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
}

func TestTokenIssuerValidatesTokenTypes(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	pair, err := issuer.IssueTokenPair(context.Background(), Subject{UserID: 7, Username: "rudo"})
	if err != nil {
		t.Fatalf("unexpected error issuing tokens: %v", err)
	}

	subject, err := issuer.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("expected access validation success: %v", err)
	}
	if subject.UserID != 7 || subject.Username != "rudo" {
		t.Fatalf("unexpected subject %#v", subject)
	}

	if _, err := issuer.ValidateAccessToken(pair.RefreshToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected wrong token type for refresh token, got %v", err)
	}
	if _, err := issuer.ValidateRefreshToken(pair.RefreshToken); err != nil {
		t.Fatalf("expected refresh validation success: %v", err)
	}
	if _, err := issuer.ValidateAccessToken("invalid.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestTokenIssuerRejectsExpiredTokens(t *testing.T) {
	issuedAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	current := issuedAt
	issuer := newTestIssuer(t, func() time.Time { return current })

	token, _, err := issuer.IssueAccessToken(context.Background(), Subject{UserID: 3})
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	current = issuedAt.Add(time.Hour)
	if _, err := issuer.ValidateAccessToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestTokenIssuerRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	other, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("other-secret"),
		Issuer:        "ree-auth",
		Audience:      "ree-api",
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	token, _, err := other.IssueAccessToken(context.Background(), Subject{UserID: 5})
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	if _, err := issuer.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature mismatch to be rejected, got %v", err)
	}
}

func TestNewTokenIssuerRequiresConfiguration(t *testing.T) {
	testCases := []struct {
		name string
		cfg  TokenIssuerConfig
	}{
		{name: "missing-secret", cfg: TokenIssuerConfig{Issuer: "ree-auth", Audience: "ree-api"}},
		{name: "missing-issuer", cfg: TokenIssuerConfig{SigningSecret: []byte("s"), Audience: "ree-api"}},
		{name: "blank-audience", cfg: TokenIssuerConfig{SigningSecret: []byte("s"), Issuer: "ree-auth", Audience: " "}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := NewTokenIssuer(testCase.cfg); err == nil {
				t.Fatalf("expected constructor error")
			}
		})
	}
}

func TestIssueRejectsMissingSubject(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	if _, _, err := issuer.IssueAccessToken(context.Background(), Subject{}); err == nil {
		t.Fatalf("expected error for missing subject")
	}
}
