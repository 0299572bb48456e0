package server

import (
	"context"
	"time"

	"dietlog/internal/auth"
	"dietlog/internal/database"
	"dietlog/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ReadinessResponse reports dependency health.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp models.Timestamp  `json:"timestamp"`
}

// HealthCheck godoc
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /health [get]
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(models.HealthResponse{
		Status:    "ok",
		Timestamp: models.Timestamp(time.Now()),
		Uptime:    formatUptime(time.Since(s.startedAt)),
	})
}

// ReadinessCheck godoc
// @Summary Readiness check
// @Description Pings the database and Redis. Fails only when the database is unreachable.
// @Tags health
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /health/ready [get]
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "ok"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unavailable"
	}

	return c.Status(status).JSON(ReadinessResponse{
		Status: overall,
		Checks: map[string]string{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		Timestamp: models.Timestamp(time.Now()),
	})
}

// GetDietMetrics godoc
// @Summary Diet metrics
// @Description Totals and the best on-diet streak over the caller's meals in creation order.
// @Tags metrics
// @Produce json
// @Security SessionCookie
// @Success 200 {object} models.MetricsEnvelope
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /metrics [get]
func (s *Server) GetDietMetrics(c *fiber.Ctx, who auth.Identity) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	m, err := s.metricsService.DietMetrics(ctx, who.UserID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(models.MetricsEnvelope{Metrics: m})
}
