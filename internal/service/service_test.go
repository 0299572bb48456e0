package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"dietlog/internal/models"
	"dietlog/internal/repository"
	"dietlog/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type userRepoStub struct {
	getByIDFn             func(ctx context.Context, id string) (*models.User, error)
	getByEmailFn          func(ctx context.Context, email string) (*models.User, error)
	listFn                func(ctx context.Context) ([]models.User, error)
	createFn              func(ctx context.Context, user *models.User) error
	markVerifiedFn        func(ctx context.Context, id string) error
	setVerificationCodeFn func(ctx context.Context, id, code string, expiresAt time.Time) error
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id string) (*models.User, error) {
			return nil, models.NewNotFoundError("User", id)
		},
		getByEmailFn:          func(context.Context, string) (*models.User, error) { return nil, nil },
		listFn:                func(context.Context) ([]models.User, error) { return nil, nil },
		createFn:              func(context.Context, *models.User) error { return nil },
		markVerifiedFn:        func(context.Context, string) error { return nil },
		setVerificationCodeFn: func(context.Context, string, string, time.Time) error { return nil },
	}
}

func (s *userRepoStub) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) List(ctx context.Context) ([]models.User, error) { return s.listFn(ctx) }
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) MarkVerified(ctx context.Context, id string) error {
	return s.markVerifiedFn(ctx, id)
}
func (s *userRepoStub) SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	return s.setVerificationCodeFn(ctx, id, code, expiresAt)
}

type sentMail struct{ to, name, code string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendVerificationCode(_ context.Context, to, name, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, name, code})
	return nil
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestUserService(repo repository.UserRepository, mailer *fakeMailer) *UserService {
	svc := NewUserService(repo, mailer)
	svc.now = func() time.Time { return fixedNow }
	svc.newCode = func() (string, error) { return "123456", nil }
	svc.hashCost = bcrypt.MinCost
	return svc
}

func assertAppError(t *testing.T, err error, kind models.ErrorKind, code string) {
	t.Helper()
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, kind, appErr.Kind)
	assert.Equal(t, code, appErr.Code)
}

func strptr(s string) *string { return &s }
func timeptr(t time.Time) *time.Time { return &t }

func TestUserService_Register(t *testing.T) {
	t.Parallel()

	t.Run("stores hash and mails code", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		var created *models.User
		repo.createFn = func(_ context.Context, u *models.User) error {
			u.ID = "u-1"
			created = u
			return nil
		}
		mailer := &fakeMailer{}
		svc := newTestUserService(repo, mailer)

		user, err := svc.Register(context.Background(), models.RegisterRequest{
			Name: "Ana Maria", Email: " Ana@Example.com ", Password: "secret1",
		})
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, "ana@example.com", user.Email)
		assert.NotEqual(t, "secret1", created.Password)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.Password), []byte("secret1")))
		assert.False(t, created.EmailVerified)
		assert.Equal(t, "123456", *created.VerificationCode)
		assert.Equal(t, fixedNow.Add(15*time.Minute), *created.CodeExpiresAt)
		require.Len(t, mailer.sent, 1)
		assert.Equal(t, sentMail{"ana@example.com", "Ana Maria", "123456"}, mailer.sent[0])
	})

	t.Run("existing email is a conflict", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		repo.getByEmailFn = func(_ context.Context, email string) (*models.User, error) {
			return &models.User{ID: "u-0", Email: email}, nil
		}
		repo.createFn = func(context.Context, *models.User) error {
			t.Fatal("create must not run")
			return nil
		}
		mailer := &fakeMailer{}
		_, err := newTestUserService(repo, mailer).Register(context.Background(), models.RegisterRequest{
			Name: "Ana", Email: "ana@example.com", Password: "secret1",
		})
		assertAppError(t, err, models.KindConflict, "CONFLICT")
		assert.Empty(t, mailer.sent)
	})

	t.Run("password over bcrypt limit is a validation error", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		repo.createFn = func(context.Context, *models.User) error {
			t.Fatal("create must not run")
			return nil
		}
		mailer := &fakeMailer{}
		_, err := newTestUserService(repo, mailer).Register(context.Background(), models.RegisterRequest{
			Name: "Ana", Email: "ana@example.com", Password: strings.Repeat("é", 40),
		})
		assertAppError(t, err, models.KindBadRequest, "VALIDATION_ERROR")
		assert.Empty(t, mailer.sent)
	})

	t.Run("email failure keeps the user", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		createCalls := 0
		repo.createFn = func(context.Context, *models.User) error {
			createCalls++
			return nil
		}
		svc := newTestUserService(repo, &fakeMailer{err: errors.New("ses down")})

		_, err := svc.Register(context.Background(), models.RegisterRequest{
			Name: "Ana", Email: "ana@example.com", Password: "secret1",
		})
		assertAppError(t, err, models.KindInternal, "EMAIL_DELIVERY_FAILED")
		assert.Equal(t, 1, createCalls)
	})
}

func TestUserService_Verify(t *testing.T) {
	t.Parallel()

	pending := func() *models.User {
		return &models.User{
			ID:               "u-1",
			Email:            "ana@example.com",
			VerificationCode: strptr("123456"),
			CodeExpiresAt:    timeptr(fixedNow.Add(5 * time.Minute)),
		}
	}

	tests := []struct {
		name     string
		user     func() *models.User
		code     string
		wantCode string
	}{
		{name: "missing user", user: func() *models.User { return nil }, code: "123456", wantCode: "USER_NOT_FOUND"},
		{name: "already verified", user: func() *models.User {
			u := pending()
			u.EmailVerified = true
			return u
		}, code: "123456", wantCode: "EMAIL_ALREADY_VERIFIED"},
		{name: "wrong code", user: pending, code: "000000", wantCode: "INVALID_CODE"},
		{name: "expired code", user: func() *models.User {
			u := pending()
			u.CodeExpiresAt = timeptr(fixedNow.Add(-time.Second))
			return u
		}, code: "123456", wantCode: "CODE_EXPIRED"},
		{name: "success", user: pending, code: "123456"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := noopUserRepo()
			repo.getByEmailFn = func(context.Context, string) (*models.User, error) { return tt.user(), nil }
			marked := false
			repo.markVerifiedFn = func(context.Context, string) error {
				marked = true
				return nil
			}
			repo.getByIDFn = func(_ context.Context, id string) (*models.User, error) {
				return &models.User{ID: id, Email: "ana@example.com", EmailVerified: true}, nil
			}

			user, err := newTestUserService(repo, &fakeMailer{}).Verify(context.Background(), models.VerifyRequest{
				Email: "ana@example.com", Code: tt.code,
			})
			if tt.wantCode != "" {
				assertAppError(t, err, models.KindUnauthorized, tt.wantCode)
				assert.False(t, marked, "failed attempts never touch the stored code")
				return
			}
			require.NoError(t, err)
			assert.True(t, marked)
			assert.True(t, user.EmailVerified)
		})
	}
}

func TestUserService_ResendCode(t *testing.T) {
	t.Parallel()

	t.Run("unknown email", func(t *testing.T) {
		t.Parallel()
		err := newTestUserService(noopUserRepo(), &fakeMailer{}).
			ResendCode(context.Background(), models.ResendCodeRequest{Email: "x@example.com"})
		assertAppError(t, err, models.KindBadRequest, "USER_NOT_FOUND")
	})

	t.Run("verified user", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		repo.getByEmailFn = func(context.Context, string) (*models.User, error) {
			return &models.User{ID: "u-1", EmailVerified: true}, nil
		}
		err := newTestUserService(repo, &fakeMailer{}).
			ResendCode(context.Background(), models.ResendCodeRequest{Email: "x@example.com"})
		assertAppError(t, err, models.KindBadRequest, "EMAIL_ALREADY_VERIFIED")
	})

	t.Run("issues fresh code", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		repo.getByEmailFn = func(_ context.Context, email string) (*models.User, error) {
			return &models.User{ID: "u-1", Name: "Ana", Email: email}, nil
		}
		var gotCode string
		var gotExpiry time.Time
		repo.setVerificationCodeFn = func(_ context.Context, _ string, code string, exp time.Time) error {
			gotCode, gotExpiry = code, exp
			return nil
		}
		mailer := &fakeMailer{}
		svc := newTestUserService(repo, mailer)
		svc.newCode = func() (string, error) { return "654321", nil }

		require.NoError(t, svc.ResendCode(context.Background(), models.ResendCodeRequest{Email: "ana@example.com"}))
		assert.Equal(t, "654321", gotCode)
		assert.Equal(t, fixedNow.Add(15*time.Minute), gotExpiry)
		require.Len(t, mailer.sent, 1)
		assert.Equal(t, "654321", mailer.sent[0].code)
	})
}

func TestUserService_Login(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		user     *models.User
		password string
		wantErr  bool
	}{
		{name: "unknown email", user: nil, password: "secret1", wantErr: true},
		{name: "wrong password", user: &models.User{ID: "u", Password: string(hash), EmailVerified: true}, password: "nope12", wantErr: true},
		{name: "unverified", user: &models.User{ID: "u", Password: string(hash)}, password: "secret1", wantErr: true},
		{name: "success", user: &models.User{ID: "u", Password: string(hash), EmailVerified: true}, password: "secret1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := noopUserRepo()
			repo.getByEmailFn = func(context.Context, string) (*models.User, error) { return tt.user, nil }

			user, err := newTestUserService(repo, &fakeMailer{}).Login(context.Background(), models.LoginRequest{
				Email: "ana@example.com", Password: tt.password,
			})
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "u", user.ID)
				return
			}
			assertAppError(t, err, models.KindUnauthorized, "INVALID_CREDENTIALS")
			resp := models.AsAppError(err).Response(false)
			assert.Equal(t, "Invalid credentials", resp.Error)
			assert.Equal(t, "Please enter a valid email or password", resp.Message)
		})
	}
}

func TestMealService_WithSQLite(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()

	owner := &models.User{Name: "Owner", Email: "owner@example.com", Password: "hash", EmailVerified: true}
	require.NoError(t, repository.NewUserRepository(db).Create(ctx, owner))

	meals := repository.NewMealRepository(db)
	svc := NewMealService(meals)
	metrics := NewMetricsService(meals)

	on, off := true, false
	meal, err := svc.CreateMeal(ctx, owner.ID, models.CreateMealRequest{
		Name: "Oats", Date: "2024-01-01T00:00:00.000Z", IsOnDiet: &on,
	})
	require.NoError(t, err)
	assert.Nil(t, meal.Description)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", meal.Date.UTC().Format(models.TimestampLayout))

	blank, err := svc.CreateMeal(ctx, owner.ID, models.CreateMealRequest{
		Name: "Toast", Description: strptr(""), Date: "2024-01-01T08:00:00.000Z", IsOnDiet: &on,
	})
	require.NoError(t, err)
	stored, err := svc.GetMeal(ctx, owner.ID, blank.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Description)
	require.NoError(t, svc.DeleteMeal(ctx, owner.ID, blank.ID))

	updated, err := svc.UpdateMeal(ctx, owner.ID, meal.ID, models.UpdateMealRequest{IsOnDiet: &off})
	require.NoError(t, err)
	assert.False(t, updated.IsOnDiet)
	assert.Equal(t, "Oats", updated.Name)

	unchanged, err := svc.UpdateMeal(ctx, owner.ID, meal.ID, models.UpdateMealRequest{})
	require.NoError(t, err)
	assert.Equal(t, updated.IsOnDiet, unchanged.IsOnDiet)

	_, err = svc.GetMeal(ctx, "someone-else", meal.ID)
	assertAppError(t, err, models.KindNotFound, "NOT_FOUND")

	m, err := metrics.DietMetrics(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DietMetrics{TotalMeals: 1, MealsOffDiet: 1}, m)

	require.NoError(t, svc.DeleteMeal(ctx, owner.ID, meal.ID))
	err = svc.DeleteMeal(ctx, owner.ID, meal.ID)
	assertAppError(t, err, models.KindNotFound, "NOT_FOUND")
}
