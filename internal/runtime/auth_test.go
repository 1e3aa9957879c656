package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/onchainos/steward/config"
)

func TestLoadJWTSecretPreference(t *testing.T) {
	if _, err := LoadJWTSecret(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}

	cfg := &config.Config{}
	if _, err := LoadJWTSecret(cfg); err == nil {
		t.Fatalf("expected error when no secret configured")
	}

	cfg.General.JWTSecret = "general-secret"
	secret, err := LoadJWTSecret(cfg)
	if err != nil {
		t.Fatalf("LoadJWTSecret: %v", err)
	}
	if string(secret) != "general-secret" {
		t.Fatalf("expected general secret, got %q", secret)
	}

	cfg.Server.JWTSecret = "server-secret"
	secret, _ = LoadJWTSecret(cfg)
	if string(secret) != "server-secret" {
		t.Fatalf("server secret wins, got %q", secret)
	}
}

func TestEchoAuthMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	e := echo.New()
	handler := EchoAuthMiddleware(secret)(func(c echo.Context) error {
		sub, ok := SubjectFromContext(c.Request().Context())
		if !ok {
			t.Fatalf("subject missing from context")
		}
		return c.String(http.StatusOK, sub)
	})

	// No token.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	err := handler(e.NewContext(req, rec))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}

	// Garbage token.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	err = handler(e.NewContext(req, rec))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %v", err)
	}

	// Valid bearer token.
	token, err := SignJWT("user-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := handler(c); err != nil {
		t.Fatalf("expected success with valid token: %v", err)
	}
	if rec.Body.String() != "user-1" {
		t.Fatalf("expected subject user-1, got %q", rec.Body.String())
	}
	if got, _ := c.Get("user_id").(string); got != "user-1" {
		t.Fatalf("expected user_id set, got %q", got)
	}

	// Cookie flow.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth", Value: token})
	rec = httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("expected success with cookie token: %v", err)
	}

	// Expired token.
	expired, err := SignJWT("user-1", secret, -time.Minute)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec = httptest.NewRecorder()
	err = handler(e.NewContext(req, rec))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %v", err)
	}
}
