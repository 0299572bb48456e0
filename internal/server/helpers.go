package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dietlog/internal/auth"
	"dietlog/internal/models"
	"dietlog/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

const requestTimeout = 15 * time.Second

// requestContext derives the handler context from the enriched user context.
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// session wraps an identity-aware handler with the session gate.
func (s *Server) session(h auth.IdentityHandler) fiber.Handler {
	return s.sessionGate.Handler(h)
}

// parseID extracts a UUID route parameter.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func parseID(c *fiber.Ctx, param string) (string, error) {
	id := strings.TrimSpace(c.Params(param))
	if err := validation.UUID(param, id); err != nil {
		_ = models.RespondWithAppError(c, err)
		return "", errResponseWritten
	}
	return id, nil
}

// parseBody decodes and validates the JSON body into dst. An empty body decodes as {}.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if len(bytes.TrimSpace(c.Body())) > 0 {
		if !strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) {
			c.Request().Header.SetContentType(fiber.MIMEApplicationJSON)
		}
		if err := c.BodyParser(dst); err != nil {
			_ = models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
			return errResponseWritten
		}
	}
	if err := validation.Struct(dst); err != nil {
		_ = models.RespondWithAppError(c, err)
		return errResponseWritten
	}
	return nil
}

// formatUptime renders d as "<d>d <h>h <m>m <s>s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
