package service

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"merchant-ledger/internal/core/ports"
	"merchant-ledger/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
)

// JWTTokenService implements ports.TokenService using HS256 JWT.
// The subject claim carries the bank slug the token was issued to.
type JWTTokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

// NewJWTTokenService creates a new JWT token service.
func NewJWTTokenService(secret string, expiry time.Duration, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
		now:    time.Now,
	}
}

// Generate creates a signed webhook token for the given bank.
func (s *JWTTokenService) Generate(bankSlug string) (string, time.Time, error) {
	if bankSlug == "" {
		return "", time.Time{}, fmt.Errorf("bank slug is required")
	}
	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := jwt.RegisteredClaims{
		Subject:   bankSlug,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate parses and validates a webhook token. Expired tokens yield
// TokenExpired; every other failure yields InvalidToken.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	if tokenString == "" {
		return nil, apperror.ErrInvalidToken()
	}

	claims := &jwt.RegisteredClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.ErrTokenExpired()
		}
		return nil, apperror.Wrap(apperror.CodeInvalidToken, "Invalid webhook token", http.StatusUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, apperror.ErrInvalidToken()
	}

	return &ports.TokenClaims{
		BankSlug:  claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
