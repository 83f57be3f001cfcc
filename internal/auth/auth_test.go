package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wuwenbin0122/agent-platform/internal/auth"
	"github.com/wuwenbin0122/agent-platform/internal/db"
)

func newService(t *testing.T) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(db.NewMemory(), auth.Options{
		Secret:            "test-secret",
		TTL:               time.Hour,
		BcryptCost:        4,
		PasswordMinLength: 6,
	})
	if err != nil {
		t.Fatalf("unexpected error creating auth service: %v", err)
	}
	return svc
}

func TestAuthServiceRegisterAndLogin(t *testing.T) {
	svc := newService(t)

	registerResult, err := svc.Register(context.Background(), auth.RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "s3cret!",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if registerResult.Token == "" {
		t.Fatalf("expected token on registration")
	}

	if registerResult.User.Username != "alice" {
		t.Fatalf("expected username alice, got %s", registerResult.User.Username)
	}

	if registerResult.User.PasswordHash != "" {
		t.Fatalf("expected password hash to be stripped")
	}

	claims, err := svc.VerifyToken(registerResult.Token)
	if err != nil {
		t.Fatalf("verify token failed: %v", err)
	}

	if claims.Subject != registerResult.User.ID {
		t.Fatalf("expected token subject %s, got %s", registerResult.User.ID, claims.Subject)
	}

	if _, err := svc.Register(context.Background(), auth.RegisterInput{
		Username: "alice",
		Email:    "other@example.com",
		Password: "another!",
	}); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("expected duplicate username error, got %v", err)
	}

	if _, err := svc.Register(context.Background(), auth.RegisterInput{
		Username: "bob",
		Email:    "ALICE@example.com",
		Password: "another!",
	}); !errors.Is(err, auth.ErrEmailExists) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	loginResult, err := svc.Login(context.Background(), auth.LoginInput{
		Identifier: "alice@example.com",
		Password:   "s3cret!",
	})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}

	if loginResult.User.Username != "alice" {
		t.Fatalf("expected login user to be alice, got %s", loginResult.User.Username)
	}

	if _, err := svc.Login(context.Background(), auth.LoginInput{
		Identifier: "alice",
		Password:   "wrong",
	}); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials error, got %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := newService(t)

	_, err := svc.Register(context.Background(), auth.RegisterInput{Username: "carol", Password: "abc"})
	if !errors.Is(err, auth.ErrPasswordTooWeak) {
		t.Fatalf("expected weak password error, got %v", err)
	}
}

func TestVerifyTokenRejectsTamperedAndForeignTokens(t *testing.T) {
	svc := newService(t)

	result, err := svc.Register(context.Background(), auth.RegisterInput{Username: "dave", Password: "password1"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if _, err := svc.VerifyToken(result.Token + "x"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected tampered token to fail, got %v", err)
	}

	foreign, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   result.User.ID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	if _, err := svc.VerifyToken(foreign); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected foreign token to fail, got %v", err)
	}

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   result.User.ID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("test-secret"))
	if _, err := svc.VerifyToken(expired); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestNewServiceRejectsUnsupportedAlgorithm(t *testing.T) {
	_, err := auth.NewService(db.NewMemory(), auth.Options{Secret: "s", Algorithm: "RS256"})
	if !errors.Is(err, auth.ErrUnsupportedAlg) {
		t.Fatalf("expected unsupported algorithm error, got %v", err)
	}
}

func TestUpdateUserChangesPassword(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, auth.RegisterInput{Username: "erin", Password: "password1"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	newPassword := "password2"
	if _, err := svc.UpdateUser(ctx, result.User.ID, auth.UpdateInput{Password: &newPassword}); err != nil {
		t.Fatalf("update returned error: %v", err)
	}

	if _, err := svc.Login(ctx, auth.LoginInput{Identifier: "erin", Password: "password1"}); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected old password to be rejected, got %v", err)
	}
	if _, err := svc.Login(ctx, auth.LoginInput{Identifier: "erin", Password: newPassword}); err != nil {
		t.Fatalf("expected new password to work, got %v", err)
	}
}

func TestRequireUserMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newService(t)

	result, err := svc.Register(context.Background(), auth.RegisterInput{Username: "frank", Password: "password1"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	router := gin.New()
	router.GET("/me", svc.RequireUser(), func(c *gin.Context) {
		c.String(http.StatusOK, auth.UserID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != result.User.ID {
		t.Fatalf("expected user id in response, got %d %q", rec.Code, rec.Body.String())
	}
}
