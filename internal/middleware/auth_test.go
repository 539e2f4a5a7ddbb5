package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"greenroom/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuthApp(t *testing.T, handler fiber.Handler) *fiber.App {
	t.Helper()
	InitMiddleware(&config.Config{
		JWTSecret:     "test-jwt-secret",
		WebhookSecret: "test-webhook-secret",
	})

	app := fiber.New()
	app.Get("/protected", handler, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAdminRequired(t *testing.T) {
	app := setupAuthApp(t, AdminRequired)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{
			name:       "missing header",
			authHeader: "",
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			authHeader: "Token abc",
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			authHeader: "Bearer not.a.jwt",
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name: "wrong secret",
			authHeader: "Bearer " + signToken(t, "other-secret", jwt.MapClaims{
				"sub": "admin",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name: "expired token",
			authHeader: "Bearer " + signToken(t, "test-jwt-secret", jwt.MapClaims{
				"sub": "admin",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name: "wrong subject",
			authHeader: "Bearer " + signToken(t, "test-jwt-secret", jwt.MapClaims{
				"sub": "someone-else",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name: "valid admin token",
			authHeader: "Bearer " + signToken(t, "test-jwt-secret", jwt.MapClaims{
				"sub": "admin",
				"iat": time.Now().Unix(),
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantStatus: fiber.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestWebhookSecretRequired(t *testing.T) {
	app := setupAuthApp(t, WebhookSecretRequired)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"wrong secret", "Bearer wrong-secret", fiber.StatusUnauthorized},
		{"valid secret", "Bearer test-webhook-secret", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestWebhookSecretUnconfigured(t *testing.T) {
	InitMiddleware(&config.Config{JWTSecret: "test-jwt-secret"})
	app := fiber.New()
	app.Get("/protected", WebhookSecretRequired, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
