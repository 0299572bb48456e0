package server

import (
	"dietlog/internal/auth"
	"dietlog/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListMeals godoc
// @Summary List meals
// @Description Returns the caller's meals, newest first.
// @Tags meals
// @Produce json
// @Security SessionCookie
// @Success 200 {object} models.MealsEnvelope
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /meals [get]
func (s *Server) ListMeals(c *fiber.Ctx, who auth.Identity) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	meals, err := s.mealService.ListMeals(ctx, who.UserID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(models.MealsEnvelope{Meals: models.MealsToResponse(meals)})
}

// CreateMeal godoc
// @Summary Log a meal
// @Tags meals
// @Accept json
// @Produce json
// @Security SessionCookie
// @Param request body models.CreateMealRequest true "Meal"
// @Success 201 {object} models.MealEnvelope
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /meals [post]
func (s *Server) CreateMeal(c *fiber.Ctx, who auth.Identity) error {
	var req models.CreateMealRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	meal, err := s.mealService.CreateMeal(ctx, who.UserID, req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(models.MealEnvelope{Meal: meal.ToResponse()})
}

// GetMeal godoc
// @Summary Get a meal
// @Tags meals
// @Produce json
// @Security SessionCookie
// @Param id path string true "Meal ID"
// @Success 200 {object} models.MealEnvelope
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /meals/{id} [get]
func (s *Server) GetMeal(c *fiber.Ctx, who auth.Identity) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	meal, err := s.mealService.GetMeal(ctx, who.UserID, id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(models.MealEnvelope{Meal: meal.ToResponse()})
}

// UpdateMeal godoc
// @Summary Update a meal
// @Description Updates only the supplied fields. An empty body returns the meal unchanged.
// @Tags meals
// @Accept json
// @Produce json
// @Security SessionCookie
// @Param id path string true "Meal ID"
// @Param request body models.UpdateMealRequest false "Fields to change"
// @Success 200 {object} models.MealEnvelope
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /meals/{id} [put]
func (s *Server) UpdateMeal(c *fiber.Ctx, who auth.Identity) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req models.UpdateMealRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	meal, err := s.mealService.UpdateMeal(ctx, who.UserID, id, req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(models.MealEnvelope{Meal: meal.ToResponse()})
}

// DeleteMeal godoc
// @Summary Delete a meal
// @Tags meals
// @Security SessionCookie
// @Param id path string true "Meal ID"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /meals/{id} [delete]
func (s *Server) DeleteMeal(c *fiber.Ctx, who auth.Identity) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := s.mealService.DeleteMeal(ctx, who.UserID, id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
