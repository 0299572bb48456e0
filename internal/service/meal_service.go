package service

import (
	"context"
	"strings"

	"dietlog/internal/models"
	"dietlog/internal/observability"
	"dietlog/internal/repository"
)

type MealService struct {
	mealRepo repository.MealRepository
}

func NewMealService(mealRepo repository.MealRepository) *MealService {
	return &MealService{mealRepo: mealRepo}
}

func (s *MealService) ListMeals(ctx context.Context, userID string) ([]models.Meal, error) {
	return s.mealRepo.ListByUser(ctx, userID)
}

// CreateMeal stores a meal owned by userID. An empty description is stored as NULL.
// The request must already be validated.
func (s *MealService) CreateMeal(ctx context.Context, userID string, in models.CreateMealRequest) (*models.Meal, error) {
	date, err := models.ParseTimestamp(in.Date)
	if err != nil {
		return nil, models.NewValidationError("date must be an ISO 8601 UTC datetime")
	}

	description := in.Description
	if description != nil && *description == "" {
		description = nil
	}

	meal := &models.Meal{
		Name:        strings.TrimSpace(in.Name),
		Description: description,
		Date:        date,
		UserID:      userID,
	}
	if in.IsOnDiet != nil {
		meal.IsOnDiet = *in.IsOnDiet
	}
	if err := s.mealRepo.Create(ctx, meal); err != nil {
		return nil, err
	}
	observability.LogServiceCall(ctx, "meal", "CreateMeal", map[string]interface{}{"meal_id": meal.ID})
	return meal, nil
}

func (s *MealService) GetMeal(ctx context.Context, userID, id string) (*models.Meal, error) {
	return s.mealRepo.GetByIDForUser(ctx, id, userID)
}

// UpdateMeal applies the supplied fields and returns the stored meal.
func (s *MealService) UpdateMeal(ctx context.Context, userID, id string, in models.UpdateMealRequest) (*models.Meal, error) {
	patch, err := in.Patch()
	if err != nil {
		return nil, models.NewValidationError("date must be an ISO 8601 UTC datetime")
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
	}
	if err := s.mealRepo.UpdateForUser(ctx, id, userID, patch); err != nil {
		return nil, err
	}
	return s.mealRepo.GetByIDForUser(ctx, id, userID)
}

func (s *MealService) DeleteMeal(ctx context.Context, userID, id string) error {
	return s.mealRepo.DeleteForUser(ctx, id, userID)
}
