package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/roomchat-server/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := NewJWTConfig("k1", "test-secret-change-me", nil, "test", time.Hour)
	return NewService(st, jwtConfig)
}

func TestRegister_RejectsInvalidInput(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "not-an-email", "password123"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, _, err := svc.Register(ctx, "a@x.com", "12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_NormalizesEmailAndRejectsDuplicate(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "  A@X.com ", "password123")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
	if user.Email != "a@x.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}

	if _, _, err := svc.Register(ctx, "a@x.com", "password123"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginAndVerify(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@x.com", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "a@x.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@x.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	_, token, err := svc.Login(ctx, "a@x.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	user, err := svc.Verify(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.Email != "a@x.com" {
		t.Fatalf("expected a@x.com, got %q", user.Email)
	}

	identity, err := svc.VerifyToken(token)
	if err != nil || identity != "a@x.com" {
		t.Fatalf("expected identity a@x.com, got %q (%v)", identity, err)
	}
}

func TestValidateToken_KeyRotation(t *testing.T) {
	oldCfg := NewJWTConfig("k1", "old-secret", nil, "", time.Hour)
	oldToken, err := GenerateToken(oldCfg, "u1", "a@x.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	rotated := NewJWTConfig("k2", "new-secret", map[string]string{"k1": "old-secret"}, "", time.Hour)
	claims, err := ValidateToken(rotated, oldToken)
	if err != nil {
		t.Fatalf("old token should still verify: %v", err)
	}
	if claims.Email != "a@x.com" || claims.UserID != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	retired := NewJWTConfig("k2", "new-secret", nil, "", time.Hour)
	if _, err := ValidateToken(retired, oldToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after key retirement, got %v", err)
	}
}

func TestValidateToken_RejectsExpiredAndForeign(t *testing.T) {
	cfg := NewJWTConfig("k1", "secret", nil, "roomchat", time.Hour)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: "a@x.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "roomchat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ValidateToken(cfg, signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	foreign := NewJWTConfig("k1", "other-secret", nil, "roomchat", time.Hour)
	token, err := GenerateToken(foreign, "u1", "a@x.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(cfg, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	if _, err := ValidateToken(cfg, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}
