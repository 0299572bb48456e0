package server

import (
	"dietlog/internal/auth"
	"dietlog/internal/models"
	"dietlog/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListUsers godoc
// @Summary List all users
// @Description Returns every user, newest first. Requires the admin API key.
// @Tags users
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} models.UsersEnvelope
// @Failure 401 {object} models.ErrorResponse
// @Router /users [get]
func (s *Server) ListUsers(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	users, err := s.userService.ListUsers(ctx)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(models.UsersEnvelope{Users: models.UsersToResponse(users)})
}

// Register godoc
// @Summary Register a new user
// @Description Creates an unverified account and emails a six-digit verification code.
// @Tags users
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Registration data"
// @Success 201 {object} models.RegisterResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /users [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := s.userService.Register(ctx, req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(models.RegisterResponse{
		Message: service.MsgRegistered,
		Email:   user.Email,
	})
}

// Verify godoc
// @Summary Verify an email address
// @Description Checks the verification code, activates the account and starts a session.
// @Tags users
// @Accept json
// @Produce json
// @Param request body models.VerifyRequest true "Email and code"
// @Success 200 {object} models.SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /users/verify [post]
func (s *Server) Verify(c *fiber.Ctx) error {
	var req models.VerifyRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := s.userService.Verify(ctx, req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return s.startSession(c, user)
}

// ResendCode godoc
// @Summary Resend the verification code
// @Tags users
// @Accept json
// @Produce json
// @Param request body models.ResendCodeRequest true "Email"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /users/resend-code [post]
func (s *Server) ResendCode(c *fiber.Ctx) error {
	var req models.ResendCodeRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := s.userService.ResendCode(ctx, req); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(models.MessageResponse{Message: service.MsgCodeSent})
}

// Login godoc
// @Summary Log in
// @Description Checks credentials of a verified user and starts a session.
// @Tags users
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /users/session [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := s.userService.Login(ctx, req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return s.startSession(c, user)
}

// Logout godoc
// @Summary Log out
// @Description Clears the session cookie.
// @Tags users
// @Success 204
// @Router /users/session [delete]
func (s *Server) Logout(c *fiber.Ctx) error {
	c.Cookie(auth.ClearSessionCookie(s.config.CookieSecure))
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMe godoc
// @Summary Current user
// @Tags users
// @Produce json
// @Security SessionCookie
// @Success 200 {object} models.UserEnvelope
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /users/me [get]
func (s *Server) GetMe(c *fiber.Ctx, who auth.Identity) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := s.userService.GetUserByID(ctx, who.UserID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(models.UserEnvelope{User: user.ToResponse()})
}

func (s *Server) startSession(c *fiber.Ctx, user *models.User) error {
	c.Cookie(auth.SessionCookie(user.ID, s.config.CookieSecure))
	return c.JSON(models.SessionResponse{
		User:      user.ToResponse(),
		SessionID: user.ID,
	})
}
