package service

import (
	"context"

	"dietlog/internal/models"
	"dietlog/internal/observability"
	"dietlog/internal/repository"
)

type MetricsService struct {
	mealRepo repository.MealRepository
}

func NewMetricsService(mealRepo repository.MealRepository) *MetricsService {
	return &MetricsService{mealRepo: mealRepo}
}

// DietMetrics folds the caller's meals in creation order.
func (s *MetricsService) DietMetrics(ctx context.Context, userID string) (_ models.DietMetrics, err error) {
	ctx, span := observability.StartSpan(ctx, "metrics_service", "DietMetrics")
	defer func() { observability.EndSpan(span, err) }()

	meals, err := s.mealRepo.ListForMetrics(ctx, userID)
	if err != nil {
		return models.DietMetrics{}, err
	}
	return models.ComputeMealMetrics(meals), nil
}
