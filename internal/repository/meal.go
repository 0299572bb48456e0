package repository

import (
	"context"
	"errors"

	"dietlog/internal/models"
	"dietlog/internal/observability"

	"gorm.io/gorm"
)

// MealRepository defines persistence operations for meals. Every query is scoped to the owner.
type MealRepository interface {
	ListByUser(ctx context.Context, userID string) ([]models.Meal, error)
	ListForMetrics(ctx context.Context, userID string) ([]models.Meal, error)
	Create(ctx context.Context, meal *models.Meal) error
	GetByIDForUser(ctx context.Context, id, userID string) (*models.Meal, error)
	UpdateForUser(ctx context.Context, id, userID string, patch models.MealPatch) error
	DeleteForUser(ctx context.Context, id, userID string) error
}

type mealRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewMealRepository returns a new MealRepository implementation.
func NewMealRepository(db *gorm.DB) MealRepository {
	return &mealRepository{db: db, log: observability.NewRepoLogger("meals")}
}

// ListByUser returns the owner's meals, newest first. Ties break on id.
func (r *mealRepository) ListByUser(ctx context.Context, userID string) ([]models.Meal, error) {
	return r.list(ctx, userID, "created_at DESC, id DESC")
}

// ListForMetrics returns the owner's meals in creation order, the exact reverse of ListByUser.
func (r *mealRepository) ListForMetrics(ctx context.Context, userID string) ([]models.Meal, error) {
	return r.list(ctx, userID, "created_at ASC, id ASC")
}

func (r *mealRepository) list(ctx context.Context, userID, order string) ([]models.Meal, error) {
	defer observability.TrackQuery("select", "meals")()

	var meals []models.Meal
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(order).
		Find(&meals).Error; err != nil {
		r.log.LogError(ctx, err, "list")
		return nil, models.NewInternalError(err)
	}
	return meals, nil
}

func (r *mealRepository) Create(ctx context.Context, meal *models.Meal) error {
	defer observability.TrackQuery("insert", "meals")()

	if err := r.db.WithContext(ctx).Create(meal).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"id": meal.ID, "user_id": meal.UserID})
	return nil
}

// GetByIDForUser returns a NotFound error both for missing meals and for meals of another user.
func (r *mealRepository) GetByIDForUser(ctx context.Context, id, userID string) (*models.Meal, error) {
	defer observability.TrackQuery("select", "meals")()

	var meal models.Meal
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&meal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Meal", id)
		}
		r.log.LogError(ctx, err, "get_by_id")
		return nil, models.NewInternalError(err)
	}
	return &meal, nil
}

// UpdateForUser writes only the columns set in patch. An empty patch only checks ownership.
func (r *mealRepository) UpdateForUser(ctx context.Context, id, userID string, patch models.MealPatch) error {
	if patch.IsEmpty() {
		_, err := r.GetByIDForUser(ctx, id, userID)
		return err
	}

	defer observability.TrackQuery("update", "meals")()

	res := r.db.WithContext(ctx).
		Model(&models.Meal{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(patch.Columns())
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "update")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Meal", id)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"id": id, "user_id": userID})
	return nil
}

func (r *mealRepository) DeleteForUser(ctx context.Context, id, userID string) error {
	defer observability.TrackQuery("delete", "meals")()

	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Meal{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Meal", id)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"id": id, "user_id": userID})
	return nil
}
