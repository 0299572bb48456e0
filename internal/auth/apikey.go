package auth

import (
	"crypto/subtle"

	"dietlog/internal/models"
	"dietlog/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// APIKeyHeader carries the admin key.
const APIKeyHeader = "x-api-key"

// APIKeyGate admits requests presenting the configured admin key.
type APIKeyGate struct {
	key []byte
}

// NewAPIKeyGate returns a gate for key. An empty key admits nobody.
func NewAPIKeyGate(key string) *APIKeyGate {
	return &APIKeyGate{key: []byte(key)}
}

// Valid reports whether presented equals the configured key, in constant time.
func (g *APIKeyGate) Valid(presented string) bool {
	if len(g.key) == 0 || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), g.key) == 1
}

// Middleware rejects requests without the admin key before the handler runs.
func (g *APIKeyGate) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !g.Valid(c.Get(APIKeyHeader)) {
			observability.RecordAuthFailure("api_key", "invalid_key")
			return models.RespondWithAppError(c, models.NewUnauthorizedError("Invalid API Key"))
		}
		return c.Next()
	}
}
