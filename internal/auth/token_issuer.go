package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTokenTTL  = 30 * time.Minute
	defaultRefreshTokenTTL = 24 * time.Hour

	// TokenTypeAccess marks tokens accepted by the API middleware.
	TokenTypeAccess = "access"
	// TokenTypeRefresh marks tokens accepted only by the refresh endpoint.
	TokenTypeRefresh = "refresh"
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingIssuer        = errors.New("issuer must be provided")
	errMissingAudience      = errors.New("audience must be provided")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")

	// ErrInvalidToken indicates the token failed signature, audience or structural validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrExpiredToken indicates the token is well formed but past its expiry.
	ErrExpiredToken = errors.New("auth: token expired")
	// ErrWrongTokenType indicates a refresh token was presented where an access token is required, or vice versa.
	ErrWrongTokenType = errors.New("auth: wrong token type")
)

// Subject identifies the account a token was issued for.
type Subject struct {
	UserID   uint
	Username string
}

// TokenClaims is the JWT payload issued for REE accounts.
type TokenClaims struct {
	TokenType string `json:"token_type"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

// TokenPair bundles freshly issued access and refresh tokens.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  int64
	RefreshExpiresIn int64
}

// TokenIssuerConfig configures the backend JWT issuer.
type TokenIssuerConfig struct {
	SigningSecret   []byte
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Clock           func() time.Time
}

// TokenIssuer issues and validates HS256 JWTs for local accounts.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with validated configuration.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errMissingIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, errMissingAudience
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		audience:      audience,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		clock:         clock,
	}, nil
}

// IssueTokenPair produces signed access and refresh tokens for the subject.
func (i *TokenIssuer) IssueTokenPair(ctx context.Context, subject Subject) (TokenPair, error) {
	access, accessExpiresIn, err := i.IssueAccessToken(ctx, subject)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExpiresIn, err := i.issue(subject, TokenTypeRefresh, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresIn:  accessExpiresIn,
		RefreshExpiresIn: refreshExpiresIn,
	}, nil
}

// IssueAccessToken produces a signed access token and its expiry (seconds).
func (i *TokenIssuer) IssueAccessToken(_ context.Context, subject Subject) (string, int64, error) {
	return i.issue(subject, TokenTypeAccess, i.accessTTL)
}

// ValidateAccessToken ensures the token is a valid access token and returns its subject.
func (i *TokenIssuer) ValidateAccessToken(tokenString string) (Subject, error) {
	return i.validate(tokenString, TokenTypeAccess)
}

// ValidateRefreshToken ensures the token is a valid refresh token and returns its subject.
func (i *TokenIssuer) ValidateRefreshToken(tokenString string) (Subject, error) {
	return i.validate(tokenString, TokenTypeRefresh)
}

func (i *TokenIssuer) issue(subject Subject, tokenType string, ttl time.Duration) (string, int64, error) {
	if subject.UserID == 0 {
		return "", 0, errMissingSubjectClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(ttl).UTC()

	claims := TokenClaims{
		TokenType: tokenType,
		Username:  subject.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(subject.UserID), 10),
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

func (i *TokenIssuer) validate(tokenString string, expectedType string) (Subject, error) {
	trimmed := strings.TrimSpace(tokenString)
	if trimmed == "" {
		return Subject{}, ErrInvalidToken
	}

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(
		trimmed,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Subject{}, fmt.Errorf("%w: %w", ErrExpiredToken, err)
		}
		return Subject{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TokenType != expectedType {
		return Subject{}, ErrWrongTokenType
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return Subject{}, fmt.Errorf("%w: %v", ErrInvalidToken, errMissingSubjectClaim)
	}
	return Subject{UserID: uint(userID), Username: claims.Username}, nil
}
