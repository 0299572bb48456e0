// Package validation checks request bodies against their declared contracts.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"dietlog/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator with the custom tags registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Report fields by their JSON name.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		_ = v.RegisterValidation("isodatetime", func(fl validator.FieldLevel) bool {
			_, err := models.ParseTimestamp(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})

		// maxbytes caps the encoded length, as bcrypt does.
		_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
			limit, err := strconv.Atoi(fl.Param())
			return err == nil && len(fl.Field().String()) <= limit
		})
		// mintrimmed applies a rune minimum to the value that is actually stored.
		_ = v.RegisterValidation("mintrimmed", func(fl validator.FieldLevel) bool {
			limit, err := strconv.Atoi(fl.Param())
			return err == nil && utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= limit
		})

		validate = v
	})
	return validate
}

// Struct validates s and converts the first failure into a 400 AppError.
func Struct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return models.NewValidationError(describe(verrs[0]))
	}
	return models.NewValidationError(err.Error())
}

// UUID validates a path identifier.
func UUID(param, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return models.NewValidationError(fmt.Sprintf("%s must be a valid UUID", param))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "mintrimmed":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "maxbytes":
		return fmt.Sprintf("%s must be at most %s bytes", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.String || isStringPtr(fe) {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String || isStringPtr(fe) {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "isodatetime":
		return fmt.Sprintf("%s must be an ISO 8601 UTC datetime", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func isStringPtr(fe validator.FieldError) bool {
	t := fe.Type()
	return t != nil && t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.String
}
