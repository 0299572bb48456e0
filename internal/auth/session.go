// Package auth resolves caller identity: the session gate for user routes and the API-key gate for admin routes.
package auth

import (
	"context"
	"errors"
	"strings"

	"dietlog/internal/cache"
	"dietlog/internal/middleware"
	"dietlog/internal/models"
	"dietlog/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "sessionId"

// SessionHeader is the header alternative to the cookie.
const SessionHeader = "x-session-id"

const (
	msgLoginRequired    = "You must be logged in to access this resource"
	msgActivationNeeded = "You must activate your account to access this resource"
)

var (
	ErrNoToken        = errors.New("auth: no session token")
	ErrUnknownSession = errors.New("auth: session does not match a user")
	ErrUnverified     = errors.New("auth: email not verified")
)

// Identity is the resolved caller of a session-protected route.
type Identity struct {
	UserID string
	Email  string
}

// IdentityHandler is a route handler that receives the caller explicitly.
type IdentityHandler func(c *fiber.Ctx, who Identity) error

// UserLookup is the subset of the user repository the gate needs.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// SessionGate turns a session token into an Identity.
type SessionGate struct {
	users UserLookup
}

// NewSessionGate returns a gate backed by users.
func NewSessionGate(users UserLookup) *SessionGate {
	return &SessionGate{users: users}
}

// ExtractToken reads the session token from the cookie, then the x-session-id header, then a Bearer token.
func ExtractToken(c *fiber.Ctx) string {
	if v := strings.TrimSpace(c.Cookies(SessionCookieName)); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Get(SessionHeader)); v != "" {
		return v
	}
	authHeader := c.Get(fiber.HeaderAuthorization)
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// Resolve maps token to an Identity. It returns ErrNoToken, ErrUnknownSession, ErrUnverified
// or a storage error.
func (g *SessionGate) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoToken
	}
	if _, err := uuid.Parse(token); err != nil {
		return Identity{}, ErrUnknownSession
	}

	var cached models.CachedUser
	err := cache.Aside(ctx, cache.SessionUserKey(token), &cached, cache.SessionUserTTL, func() error {
		user, err := g.users.GetByID(ctx, token)
		if err != nil {
			return err
		}
		cached = models.CachedUser{ID: user.ID, Email: user.Email, EmailVerified: user.EmailVerified}
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Kind == models.KindNotFound {
			return Identity{}, ErrUnknownSession
		}
		return Identity{}, err
	}

	if !cached.EmailVerified {
		return Identity{}, ErrUnverified
	}
	return Identity{UserID: cached.ID, Email: cached.Email}, nil
}

// Handler wraps h so it only runs for a resolved, verified caller.
func (g *SessionGate) Handler(h IdentityHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		who, err := g.Resolve(ctx, ExtractToken(c))
		switch {
		case errors.Is(err, ErrNoToken):
			observability.RecordAuthFailure("session", "missing_token")
			return models.RespondWithAppError(c, models.NewUnauthorizedError(msgLoginRequired))
		case errors.Is(err, ErrUnknownSession):
			observability.RecordAuthFailure("session", "unknown_session")
			return models.RespondWithAppError(c, models.NewUnauthorizedError(msgLoginRequired))
		case errors.Is(err, ErrUnverified):
			observability.RecordAuthFailure("session", "unverified")
			return models.RespondWithAppError(c, models.NewForbiddenError(msgActivationNeeded).WithCode("EMAIL_NOT_VERIFIED"))
		case err != nil:
			middleware.Logger.ErrorContext(ctx, "session resolution failed", "error", err)
			return models.RespondWithAppError(c, err)
		}

		c.SetUserContext(middleware.WithUserID(ctx, who.UserID))
		return h(c, who)
	}
}
