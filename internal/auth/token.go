package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTypeService = "service"

type serviceClaims struct {
	jwt.RegisteredClaims
	Scopes    []string `json:"scopes,omitempty"`
	TokenType string   `json:"type"`
}

// TokenService handles service JWT creation and validation.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewTokenService(signingKey, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
	}
}

// CreateServiceToken mints a token for an internal caller such as the
// request-lifecycle backend.
func (s *TokenService) CreateServiceToken(subject string, scopes ...string) (string, error) {
	now := time.Now()

	claims := serviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Scopes:    scopes,
		TokenType: tokenTypeService,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

func (s *TokenService) ValidateToken(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &serviceClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*serviceClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return &Identity{
		Subject:   claims.Subject,
		Scopes:    claims.Scopes,
		TokenType: claims.TokenType,
	}, nil
}
