package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/gofiber/fiber/v2"
)

// SessionMaxAge is the lifetime of the session cookie.
const SessionMaxAge = 7 * 24 * time.Hour

// CodeTTL is how long a verification code stays valid.
const CodeTTL = 15 * time.Minute

// SessionCookie builds the cookie issued on verify and login.
func SessionCookie(token string, secure bool) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionMaxAge / time.Second),
		Expires:  time.Now().Add(SessionMaxAge),
		Secure:   secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(secure bool) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}

var codeLimit = big.NewInt(1_000_000)

// GenerateCode returns a uniformly random six-digit verification code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeLimit)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
