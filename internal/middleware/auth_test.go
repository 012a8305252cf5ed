package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amai2222/shipment-data-view-sub002/internal/config"
	"github.com/amai2222/shipment-data-view-sub002/internal/utils"

	"github.com/gofiber/fiber/v2"
)

func newApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Get("/me", AuthMiddleware(cfg), func(c *fiber.Ctx) error {
		return c.SendString(Username(c))
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{AppEnv: "development", JWTSecret: "secret"}
	valid, err := utils.GenerateAccessToken("u-1", "dispatcher", "operator", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	tests := []struct {
		name   string
		env    string
		header string
		want   int
	}{
		{"missing header", "development", "", fiber.StatusUnauthorized},
		{"wrong scheme", "development", "Basic abc", fiber.StatusUnauthorized},
		{"bad token", "development", "Bearer abc", fiber.StatusUnauthorized},
		{"valid token", "development", "Bearer " + valid, fiber.StatusOK},
		{"dev token", "development", "Bearer dev-token-1", fiber.StatusOK},
		{"dev token in production", "production", "Bearer dev-token-1", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg.AppEnv = tt.env
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := newApp(cfg).Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
