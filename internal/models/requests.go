package models

// RegisterRequest is the body of POST /users.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,notblank,mintrimmed=3,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
}

// VerifyRequest is the body of POST /users/verify.
type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

// ResendCodeRequest is the body of POST /users/resend-code.
type ResendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// LoginRequest is the body of POST /users/session.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// CreateMealRequest is the body of POST /meals.
type CreateMealRequest struct {
	Name        string  `json:"name" validate:"required,notblank,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Date        string  `json:"date" validate:"required,isodatetime"`
	IsOnDiet    *bool   `json:"isOnDiet" validate:"required"`
}

// UpdateMealRequest is the body of PUT /meals/:id. Every field is optional.
type UpdateMealRequest struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Date        *string `json:"date" validate:"omitempty,isodatetime"`
	IsOnDiet    *bool   `json:"isOnDiet"`
}

// Patch converts the request into a MealPatch. Date must already be validated.
func (r UpdateMealRequest) Patch() (MealPatch, error) {
	patch := MealPatch{
		Name:        r.Name,
		Description: r.Description,
		IsOnDiet:    r.IsOnDiet,
	}
	if r.Date != nil {
		d, err := ParseTimestamp(*r.Date)
		if err != nil {
			return MealPatch{}, err
		}
		patch.Date = &d
	}
	return patch, nil
}

// Response bodies.

// RegisterResponse is returned by a successful registration.
type RegisterResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// SessionResponse is returned by verify and login.
type SessionResponse struct {
	User      UserResponse `json:"user"`
	SessionID string       `json:"sessionId"`
}

// MessageResponse carries a single human-readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserEnvelope wraps a single user.
type UserEnvelope struct {
	User UserResponse `json:"user"`
}

// UsersEnvelope wraps the user list.
type UsersEnvelope struct {
	Users []UserResponse `json:"users"`
}

// MealEnvelope wraps a single meal.
type MealEnvelope struct {
	Meal MealResponse `json:"meal"`
}

// MealsEnvelope wraps the meal list.
type MealsEnvelope struct {
	Meals []MealResponse `json:"meals"`
}

// MetricsEnvelope wraps the diet metrics.
type MetricsEnvelope struct {
	Metrics DietMetrics `json:"metrics"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp Timestamp `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}
