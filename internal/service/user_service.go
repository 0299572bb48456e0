// Package service holds the business rules of the user lifecycle, meal log and metrics.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dietlog/internal/auth"
	"dietlog/internal/cache"
	"dietlog/internal/middleware"
	"dietlog/internal/models"
	"dietlog/internal/notify"
	"dietlog/internal/observability"
	"dietlog/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

const (
	MsgRegistered = "User created successfully. Please check your email to verify your account."
	MsgCodeSent   = "Verification code successfully sent!"

	msgInvalidCredentials = "Please enter a valid email or password"
)

type UserService struct {
	userRepo repository.UserRepository
	mailer   notify.Mailer

	now      func() time.Time
	newCode  func() (string, error)
	hashCost int
}

func NewUserService(userRepo repository.UserRepository, mailer notify.Mailer) *UserService {
	return &UserService{
		userRepo: userRepo,
		mailer:   mailer,
		now:      time.Now,
		newCode:  auth.GenerateCode,
		hashCost: bcrypt.DefaultCost,
	}
}

// NormalizeEmail is the canonical form used for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.userRepo.List(ctx)
}

func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// Register creates an unverified user and mails the verification code. A failed email
// leaves the user in place; the caller recovers through ResendCode.
func (s *UserService) Register(ctx context.Context, in models.RegisterRequest) (_ *models.User, err error) {
	ctx, span := observability.StartSpan(ctx, "user_service", "Register")
	defer func() { observability.EndSpan(span, err) }()

	email := NormalizeEmail(in.Email)
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("Email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, models.NewValidationError("password must be at most 72 bytes")
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	code, expires, err := s.issueCode()
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:             strings.TrimSpace(in.Name),
		Email:            email,
		Password:         string(hash),
		VerificationCode: &code,
		CodeExpiresAt:    &expires,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	observability.RecordUserEvent("registered")
	observability.LogServiceCall(ctx, "user", "Register", map[string]interface{}{"user_id": user.ID})

	if err := s.sendCode(ctx, user.Email, user.Name, code); err != nil {
		return nil, err
	}
	return user, nil
}

// Verify checks the code for email and activates the account.
func (s *UserService) Verify(ctx context.Context, in models.VerifyRequest) (_ *models.User, err error) {
	ctx, span := observability.StartSpan(ctx, "user_service", "Verify")
	defer func() { observability.EndSpan(span, err) }()

	user, err := s.userRepo.GetByEmail(ctx, NormalizeEmail(in.Email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("User not found").WithCode("USER_NOT_FOUND")
	}
	if user.EmailVerified {
		return nil, models.NewUnauthorizedError("Email already verified").WithCode("EMAIL_ALREADY_VERIFIED")
	}
	if user.VerificationCode == nil ||
		subtle.ConstantTimeCompare([]byte(*user.VerificationCode), []byte(in.Code)) != 1 {
		observability.RecordAuthFailure("verify", "invalid_code")
		return nil, models.NewUnauthorizedError("Invalid code").WithCode("INVALID_CODE")
	}
	if user.CodeExpiresAt == nil || s.now().After(*user.CodeExpiresAt) {
		observability.RecordAuthFailure("verify", "code_expired")
		return nil, models.NewUnauthorizedError("Code expired").WithCode("CODE_EXPIRED")
	}

	if err := s.userRepo.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	cache.InvalidateSessionUser(ctx, user.ID)
	observability.RecordUserEvent("verified")

	return s.userRepo.GetByID(ctx, user.ID)
}

// ResendCode issues and mails a fresh code to an unverified user.
func (s *UserService) ResendCode(ctx context.Context, in models.ResendCodeRequest) (err error) {
	ctx, span := observability.StartSpan(ctx, "user_service", "ResendCode")
	defer func() { observability.EndSpan(span, err) }()

	user, err := s.userRepo.GetByEmail(ctx, NormalizeEmail(in.Email))
	if err != nil {
		return err
	}
	if user == nil {
		return models.NewBadRequestError("USER_NOT_FOUND", "User not found, please try again!")
	}
	if user.EmailVerified {
		return models.NewBadRequestError("EMAIL_ALREADY_VERIFIED", "Email was already verified")
	}

	code, expires, err := s.issueCode()
	if err != nil {
		return err
	}
	if err := s.userRepo.SetVerificationCode(ctx, user.ID, code, expires); err != nil {
		return err
	}
	observability.RecordUserEvent("code_resent")

	return s.sendCode(ctx, user.Email, user.Name, code)
}

// Login checks credentials. Every failure returns the same error, and a bcrypt comparison
// runs even for unknown emails.
func (s *UserService) Login(ctx context.Context, in models.LoginRequest) (_ *models.User, err error) {
	ctx, span := observability.StartSpan(ctx, "user_service", "Login")
	defer func() { observability.EndSpan(span, err) }()

	user, err := s.userRepo.GetByEmail(ctx, NormalizeEmail(in.Email))
	if err != nil {
		return nil, err
	}

	hash := dummyHash()
	if user != nil {
		hash = []byte(user.Password)
	}
	passwordErr := bcrypt.CompareHashAndPassword(hash, []byte(in.Password))

	if user == nil || passwordErr != nil || !user.EmailVerified {
		observability.RecordAuthFailure("login", "invalid_credentials")
		return nil, invalidCredentials()
	}

	observability.RecordUserEvent("logged_in")
	return user, nil
}

func invalidCredentials() *models.AppError {
	return models.NewUnauthorizedError(msgInvalidCredentials).
		WithCode("INVALID_CREDENTIALS").
		WithTitle("Invalid credentials")
}

func (s *UserService) issueCode() (string, time.Time, error) {
	code, err := s.newCode()
	if err != nil {
		return "", time.Time{}, models.NewInternalError(err)
	}
	return code, s.now().Add(auth.CodeTTL).UTC(), nil
}

func (s *UserService) sendCode(ctx context.Context, to, name, code string) error {
	if err := s.mailer.SendVerificationCode(ctx, to, name, code); err != nil {
		middleware.Logger.ErrorContext(ctx, "verification email failed",
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		return &models.AppError{
			Kind:    models.KindInternal,
			Code:    "EMAIL_DELIVERY_FAILED",
			Message: "Failed to send verification email",
			Err:     err,
		}
	}
	return nil
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

func dummyHash() []byte {
	dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("dietlog-dummy-password"), bcrypt.DefaultCost)
		if err != nil {
			panic(fmt.Sprintf("generate dummy hash: %v", err))
		}
		dummy = h
	})
	return dummy
}
