package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dietlog/internal/auth"
	"dietlog/internal/config"
	"dietlog/internal/service"
	"dietlog/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-admin-key-0123456789abcdef0123"

// captureMailer records the last code sent to each address.
type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
	sends int
}

func (m *captureMailer) SendVerificationCode(_ context.Context, to, _, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[to] = code
	m.sends++
	return nil
}

func (m *captureMailer) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

type testAPI struct {
	app    *fiber.App
	mailer *captureMailer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db := testutil.NewSQLiteDB(t)
	mailer := &captureMailer{}
	srv, err := NewServerWithDeps(&config.Config{
		Env:         "test",
		AdminAPIKey: testAPIKey,
	}, db, nil, mailer)
	require.NoError(t, err)

	return &testAPI{app: srv.NewApp(), mailer: mailer}
}

type apiResponse struct {
	status  int
	raw     string
	body    map[string]interface{}
	cookies []*http.Cookie
}

func (a *testAPI) do(t *testing.T, method, path string, payload interface{}, headers map[string]string) apiResponse {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := apiResponse{status: resp.StatusCode, raw: string(raw), cookies: resp.Cookies()}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out.body)
	}
	return out
}

func withSession(token string) map[string]string {
	return map[string]string{"Cookie": auth.SessionCookieName + "=" + token}
}

func sessionCookie(t *testing.T, r apiResponse) *http.Cookie {
	t.Helper()
	for _, c := range r.cookies {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", auth.SessionCookieName)
	return nil
}

// signUp registers and verifies an account, returning its session token.
func (a *testAPI) signUp(t *testing.T, name, email string) string {
	t.Helper()

	r := a.do(t, http.MethodPost, "/users", map[string]string{
		"name": name, "email": email, "password": "secret123",
	}, nil)
	require.Equal(t, fiber.StatusCreated, r.status, r.raw)

	r = a.do(t, http.MethodPost, "/users/verify", map[string]string{
		"email": email, "code": a.mailer.code(email),
	}, nil)
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	return sessionCookie(t, r).Value
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	r := api.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, fiber.StatusOK, r.status)
	assert.Equal(t, "ok", r.body["status"])
	assert.NotEmpty(t, r.body["uptime"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, r.body["timestamp"])

	r = api.do(t, http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	checks := r.body["checks"].(map[string]interface{})
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "unavailable", checks["redis"])
}

func TestRegistrationVerificationFlow(t *testing.T) {
	api := newTestAPI(t)

	r := api.do(t, http.MethodPost, "/users", map[string]string{
		"name": "Ann Smith", "email": "Ann@Example.com", "password": "secret123",
	}, nil)
	require.Equal(t, fiber.StatusCreated, r.status, r.raw)
	assert.Equal(t, service.MsgRegistered, r.body["message"])
	assert.Equal(t, "ann@example.com", r.body["email"])
	assert.NotContains(t, r.raw, "password")

	code := api.mailer.code("ann@example.com")
	require.Len(t, code, 6)

	t.Run("unverified login is rejected", func(t *testing.T) {
		r := api.do(t, http.MethodPost, "/users/session", map[string]string{
			"email": "ann@example.com", "password": "secret123",
		}, nil)
		assert.Equal(t, fiber.StatusUnauthorized, r.status)
		assert.Equal(t, "Invalid credentials", r.body["error"])
	})

	t.Run("resend issues a new code", func(t *testing.T) {
		r := api.do(t, http.MethodPost, "/users/resend-code", map[string]string{"email": "ann@example.com"}, nil)
		require.Equal(t, fiber.StatusOK, r.status, r.raw)
		assert.Equal(t, service.MsgCodeSent, r.body["message"])
		code = api.mailer.code("ann@example.com")
	})

	t.Run("wrong code", func(t *testing.T) {
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		r := api.do(t, http.MethodPost, "/users/verify", map[string]string{
			"email": "ann@example.com", "code": wrong,
		}, nil)
		assert.Equal(t, fiber.StatusUnauthorized, r.status)
		assert.Equal(t, "Invalid code", r.body["message"])
	})

	var token string
	t.Run("verify starts a session", func(t *testing.T) {
		r := api.do(t, http.MethodPost, "/users/verify", map[string]string{
			"email": "ann@example.com", "code": code,
		}, nil)
		require.Equal(t, fiber.StatusOK, r.status, r.raw)

		cookie := sessionCookie(t, r)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, "/", cookie.Path)
		token = cookie.Value
		assert.Equal(t, token, r.body["sessionId"])

		user := r.body["user"].(map[string]interface{})
		assert.Equal(t, true, user["emailVerified"])
		assert.NotContains(t, r.raw, "password")
		assert.NotContains(t, r.raw, "verificationCode")
	})

	t.Run("verify again reports already verified", func(t *testing.T) {
		r := api.do(t, http.MethodPost, "/users/verify", map[string]string{
			"email": "ann@example.com", "code": code,
		}, nil)
		assert.Equal(t, fiber.StatusUnauthorized, r.status)
		assert.Equal(t, "Email already verified", r.body["message"])
	})

	t.Run("resend after verification", func(t *testing.T) {
		r := api.do(t, http.MethodPost, "/users/resend-code", map[string]string{"email": "ann@example.com"}, nil)
		assert.Equal(t, fiber.StatusBadRequest, r.status)
		assert.Equal(t, "Email was already verified", r.body["message"])
	})

	t.Run("me", func(t *testing.T) {
		r := api.do(t, http.MethodGet, "/users/me", nil, withSession(token))
		require.Equal(t, fiber.StatusOK, r.status, r.raw)
		user := r.body["user"].(map[string]interface{})
		assert.Equal(t, "ann@example.com", user["email"])
	})

	t.Run("session header and bearer token", func(t *testing.T) {
		r := api.do(t, http.MethodGet, "/users/me", nil, map[string]string{auth.SessionHeader: token})
		assert.Equal(t, fiber.StatusOK, r.status)
		r = api.do(t, http.MethodGet, "/users/me", nil, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, fiber.StatusOK, r.status)
	})

	t.Run("login", func(t *testing.T) {
		r := api.do(t, http.MethodPost, "/users/session", map[string]string{
			"email": "ANN@example.com", "password": "secret123",
		}, nil)
		require.Equal(t, fiber.StatusOK, r.status, r.raw)
		assert.Equal(t, token, sessionCookie(t, r).Value)

		r = api.do(t, http.MethodPost, "/users/session", map[string]string{
			"email": "ann@example.com", "password": "wrong-pass",
		}, nil)
		assert.Equal(t, fiber.StatusUnauthorized, r.status)
	})

	t.Run("logout clears the cookie", func(t *testing.T) {
		r := api.do(t, http.MethodDelete, "/users/session", nil, withSession(token))
		require.Equal(t, fiber.StatusNoContent, r.status)
		cookie := sessionCookie(t, r)
		assert.Empty(t, cookie.Value)
		assert.True(t, cookie.Expires.Before(time.Now()))
	})
}

func TestRegister_Validation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name    string
		payload map[string]string
		message string
	}{
		{"short name", map[string]string{"name": "Al", "email": "al@example.com", "password": "secret123"}, "name must be at least 3 characters"},
		{"bad email", map[string]string{"name": "Alice", "email": "nope", "password": "secret123"}, "email must be a valid email"},
		{"short password", map[string]string{"name": "Alice", "email": "al@example.com", "password": "123"}, "password must be at least 6 characters"},
		{"missing fields", map[string]string{}, "name is required"},
		{"padded short name", map[string]string{"name": " ab ", "email": "al@example.com", "password": "secret123"}, "name must be at least 3 characters"},
		{"multibyte password over 72 bytes", map[string]string{"name": "Alice", "email": "al@example.com", "password": strings.Repeat("é", 40)}, "password must be at most 72 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := api.do(t, http.MethodPost, "/users", tt.payload, nil)
			assert.Equal(t, fiber.StatusBadRequest, r.status)
			assert.Equal(t, tt.message, r.body["message"])
		})
	}
	assert.Zero(t, api.mailer.sends)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	api := newTestAPI(t)
	payload := map[string]string{"name": "Bob Jones", "email": "bob@example.com", "password": "secret123"}

	r := api.do(t, http.MethodPost, "/users", payload, nil)
	require.Equal(t, fiber.StatusCreated, r.status)

	payload["email"] = "BOB@example.com"
	r = api.do(t, http.MethodPost, "/users", payload, nil)
	assert.Equal(t, fiber.StatusConflict, r.status)
	assert.Equal(t, "Email already exists", r.body["message"])
}

func TestRegister_ConcurrentDuplicates(t *testing.T) {
	api := newTestAPI(t)
	payload := map[string]string{"name": "Cleo Park", "email": "cleo@example.com", "password": "secret123"}

	const n = 2
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, _ := json.Marshal(payload)
			req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(b))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			resp, err := api.app.Test(req, -1)
			if err != nil {
				return
			}
			statuses[i] = resp.StatusCode
			_ = resp.Body.Close()
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{fiber.StatusCreated, fiber.StatusConflict}, statuses)
}

func TestSessionGate_Routes(t *testing.T) {
	api := newTestAPI(t)

	r := api.do(t, http.MethodGet, "/meals", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, r.status)
	assert.Equal(t, "You must be logged in to access this resource", r.body["message"])

	r = api.do(t, http.MethodGet, "/meals", nil, withSession("6f1c2a52-3f0e-4c6a-9d7e-0b8f6a1d2c3e"))
	assert.Equal(t, fiber.StatusUnauthorized, r.status)

	r = api.do(t, http.MethodPost, "/users", map[string]string{
		"name": "Dana Lee", "email": "dana@example.com", "password": "secret123",
	}, nil)
	require.Equal(t, fiber.StatusCreated, r.status)

	r = api.do(t, http.MethodPost, "/users/resend-code", map[string]string{"email": "nobody@example.com"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, r.status)
	assert.Equal(t, "User not found, please try again!", r.body["message"])

	r = api.do(t, http.MethodGet, "/users", nil, map[string]string{auth.APIKeyHeader: testAPIKey})
	require.Equal(t, fiber.StatusOK, r.status)
	users := r.body["users"].([]interface{})
	require.Len(t, users, 1)
	id := users[0].(map[string]interface{})["id"].(string)

	r = api.do(t, http.MethodGet, "/meals", nil, withSession(id))
	assert.Equal(t, fiber.StatusForbidden, r.status)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", r.body["code"])
}

func TestListUsers_RequiresAPIKey(t *testing.T) {
	api := newTestAPI(t)
	api.signUp(t, "Eve Adams", "eve@example.com")

	r := api.do(t, http.MethodGet, "/users", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, r.status)
	assert.Equal(t, "Invalid API Key", r.body["message"])

	r = api.do(t, http.MethodGet, "/users", nil, map[string]string{auth.APIKeyHeader: "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, r.status)

	r = api.do(t, http.MethodGet, "/users", nil, map[string]string{auth.APIKeyHeader: testAPIKey})
	require.Equal(t, fiber.StatusOK, r.status)
	assert.Len(t, r.body["users"], 1)
	assert.NotContains(t, r.raw, "password")
}

func TestMealsCRUD(t *testing.T) {
	api := newTestAPI(t)
	owner := api.signUp(t, "Fay Green", "fay@example.com")
	other := api.signUp(t, "Gus Hill", "gus@example.com")

	r := api.do(t, http.MethodPost, "/meals", map[string]interface{}{
		"name":        "Salad",
		"description": "Greens and olive oil",
		"date":        "2024-01-01T00:00:00.000Z",
		"isOnDiet":    true,
	}, withSession(owner))
	require.Equal(t, fiber.StatusCreated, r.status, r.raw)
	meal := r.body["meal"].(map[string]interface{})
	id := meal["id"].(string)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", meal["date"])
	assert.Equal(t, true, meal["isOnDiet"])

	t.Run("validation", func(t *testing.T) {
		r := api.do(t, http.MethodPost, "/meals", map[string]interface{}{
			"name": "Toast", "date": "yesterday", "isOnDiet": false,
		}, withSession(owner))
		assert.Equal(t, fiber.StatusBadRequest, r.status)

		r = api.do(t, http.MethodPost, "/meals", map[string]interface{}{
			"name": "Toast", "date": "2024-01-01T00:00:00.000Z",
		}, withSession(owner))
		assert.Equal(t, fiber.StatusBadRequest, r.status)
		assert.Equal(t, "isOnDiet is required", r.body["message"])
	})

	t.Run("get", func(t *testing.T) {
		r := api.do(t, http.MethodGet, "/meals/"+id, nil, withSession(owner))
		require.Equal(t, fiber.StatusOK, r.status)
		assert.Equal(t, "Salad", r.body["meal"].(map[string]interface{})["name"])
	})

	t.Run("other users cannot see it", func(t *testing.T) {
		r := api.do(t, http.MethodGet, "/meals/"+id, nil, withSession(other))
		assert.Equal(t, fiber.StatusNotFound, r.status)

		r = api.do(t, http.MethodPut, "/meals/"+id, map[string]interface{}{"name": "Mine"}, withSession(other))
		assert.Equal(t, fiber.StatusNotFound, r.status)

		r = api.do(t, http.MethodDelete, "/meals/"+id, nil, withSession(other))
		assert.Equal(t, fiber.StatusNotFound, r.status)

		r = api.do(t, http.MethodGet, "/meals", nil, withSession(other))
		require.Equal(t, fiber.StatusOK, r.status)
		assert.Empty(t, r.body["meals"])
	})

	t.Run("malformed id", func(t *testing.T) {
		r := api.do(t, http.MethodGet, "/meals/not-a-uuid", nil, withSession(owner))
		assert.Equal(t, fiber.StatusBadRequest, r.status)
	})

	t.Run("partial update", func(t *testing.T) {
		r := api.do(t, http.MethodPut, "/meals/"+id, map[string]interface{}{"isOnDiet": false}, withSession(owner))
		require.Equal(t, fiber.StatusOK, r.status, r.raw)
		updated := r.body["meal"].(map[string]interface{})
		assert.Equal(t, false, updated["isOnDiet"])
		assert.Equal(t, "Salad", updated["name"])
		assert.Equal(t, "2024-01-01T00:00:00.000Z", updated["date"])
	})

	t.Run("empty update returns the meal", func(t *testing.T) {
		r := api.do(t, http.MethodPut, "/meals/"+id, nil, withSession(owner))
		require.Equal(t, fiber.StatusOK, r.status, r.raw)
		assert.Equal(t, id, r.body["meal"].(map[string]interface{})["id"])
	})

	t.Run("list", func(t *testing.T) {
		r := api.do(t, http.MethodGet, "/meals", nil, withSession(owner))
		require.Equal(t, fiber.StatusOK, r.status)
		assert.Len(t, r.body["meals"], 1)
	})

	t.Run("delete", func(t *testing.T) {
		r := api.do(t, http.MethodDelete, "/meals/"+id, nil, withSession(owner))
		require.Equal(t, fiber.StatusNoContent, r.status)

		r = api.do(t, http.MethodGet, "/meals/"+id, nil, withSession(owner))
		assert.Equal(t, fiber.StatusNotFound, r.status)
	})
}

func TestDietMetrics(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp(t, "Hal Irwin", "hal@example.com")

	r := api.do(t, http.MethodGet, "/metrics", nil, withSession(token))
	require.Equal(t, fiber.StatusOK, r.status, r.raw)
	assert.Equal(t, map[string]interface{}{
		"totalMeals": float64(0), "mealsOnDiet": float64(0), "mealsOffDiet": float64(0), "bestStreak": float64(0),
	}, r.body["metrics"])

	for _, onDiet := range []bool{true, true, false, true, true, true} {
		r := api.do(t, http.MethodPost, "/meals", map[string]interface{}{
			"name": "Meal", "date": "2024-01-01T12:00:00.000Z", "isOnDiet": onDiet,
		}, withSession(token))
		require.Equal(t, fiber.StatusCreated, r.status, r.raw)
	}

	r = api.do(t, http.MethodGet, "/metrics", nil, withSession(token))
	require.Equal(t, fiber.StatusOK, r.status)
	assert.Equal(t, map[string]interface{}{
		"totalMeals": float64(6), "mealsOnDiet": float64(5), "mealsOffDiet": float64(1), "bestStreak": float64(3),
	}, r.body["metrics"])
}

func TestLoginRateLimit_FollowsConfiguredEnv(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv, err := NewServerWithDeps(&config.Config{Env: "production", AdminAPIKey: testAPIKey},
		testutil.NewSQLiteDB(t), rdb, &captureMailer{})
	require.NoError(t, err)
	api := &testAPI{app: srv.NewApp()}

	creds := map[string]string{"email": "nobody@example.com", "password": "secret123"}
	for i := 0; i < 10; i++ {
		r := api.do(t, http.MethodPost, "/users/session", creds, nil)
		require.Equal(t, fiber.StatusUnauthorized, r.status, "attempt %d", i+1)
	}
	r := api.do(t, http.MethodPost, "/users/session", creds, nil)
	assert.Equal(t, fiber.StatusTooManyRequests, r.status)
}
