package validator

import (
	"sync"

	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateRequest validates a struct against its `validate` tags and
// converts failures into a validation-marked error.
func ValidateRequest(req interface{}) error {
	if err := getValidator().Struct(req); err != nil {
		details := map[string]interface{}{}
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, verr := range verrs {
				details[verr.Field()] = verr.Tag()
			}
		}
		return ierr.WithError(err).
			WithHint("Request validation failed").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}
