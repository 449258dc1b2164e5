package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for missing, malformed, expired or unverifiable tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims for chat sessions.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
//
// Tokens are signed with Keys[KeyID] and carry the key id in the "kid"
// header. Any key in Keys verifies, so old keys stay valid while rotating.
type JWTConfig struct {
	Keys   map[string][]byte
	KeyID  string
	Issuer string
	TTL    time.Duration
}

// NewJWTConfig builds a config with one active signing key plus verification-only keys.
func NewJWTConfig(keyID, secret string, previous map[string]string, issuer string, ttl time.Duration) *JWTConfig {
	keys := make(map[string][]byte, len(previous)+1)
	for kid, s := range previous {
		keys[kid] = []byte(s)
	}
	keys[keyID] = []byte(secret)
	return &JWTConfig{Keys: keys, KeyID: keyID, Issuer: issuer, TTL: ttl}
}

// GenerateToken creates a new signed token for the given user.
func GenerateToken(cfg *JWTConfig, userID, email string) (string, error) {
	secret, ok := cfg.Keys[cfg.KeyID]
	if !ok || len(secret) == 0 {
		return "", fmt.Errorf("signing key %q not configured", cfg.KeyID)
	}

	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = cfg.KeyID
	return token.SignedString(secret)
}

// ValidateToken parses and validates a token. Tokens without a kid header
// are checked against the active key.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			kid = cfg.KeyID
		}
		secret, ok := cfg.Keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Email == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
