package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Meal is a single logged meal. It is only ever read or written through its owner.
type Meal struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description *string   `gorm:"type:text" json:"description"`
	Date        time.Time `gorm:"not null" json:"date"`
	IsOnDiet    bool      `gorm:"not null" json:"isOnDiet"`
	UserID      string    `gorm:"size:36;not null;index" json:"userId"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BeforeCreate assigns a random UUID when none was set.
func (m *Meal) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MealResponse is the public shape of a meal.
type MealResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Date        Timestamp `json:"date"`
	IsOnDiet    bool      `json:"isOnDiet"`
	UserID      string    `json:"userId"`
	CreatedAt   Timestamp `json:"createdAt"`
	UpdatedAt   Timestamp `json:"updatedAt"`
}

// ToResponse projects the meal onto its public shape.
func (m *Meal) ToResponse() MealResponse {
	return MealResponse{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Date:        Timestamp(m.Date),
		IsOnDiet:    m.IsOnDiet,
		UserID:      m.UserID,
		CreatedAt:   Timestamp(m.CreatedAt),
		UpdatedAt:   Timestamp(m.UpdatedAt),
	}
}

// MealsToResponse projects a slice of meals.
func MealsToResponse(meals []Meal) []MealResponse {
	out := make([]MealResponse, 0, len(meals))
	for i := range meals {
		out = append(out, meals[i].ToResponse())
	}
	return out
}

// MealPatch carries the fields of a partial meal update. Nil fields are left unchanged.
type MealPatch struct {
	Name        *string
	Description *string
	Date        *time.Time
	IsOnDiet    *bool
}

// Columns returns the column/value pairs the patch would write.
func (p MealPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{}, 4)
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.Date != nil {
		cols["date"] = p.Date.UTC()
	}
	if p.IsOnDiet != nil {
		cols["is_on_diet"] = *p.IsOnDiet
	}
	return cols
}

// IsEmpty reports whether the patch changes nothing.
func (p MealPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Date == nil && p.IsOnDiet == nil
}
