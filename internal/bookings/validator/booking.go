package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"exambook/pkg/logger"
	"exambook/pkg/model"

	"github.com/go-playground/validator/v10"
)

// identifiers end up inside colon-delimited lock and cache keys
var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("identifier", validateIdentifier); err != nil {
		log.Fatal("Failed to register 'identifier' validator",
			"error", err,
		)
	}

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func validateIdentifier(fl validator.FieldLevel) bool {
	return identifierRegex.MatchString(fl.Field().String())
}

func (v *BookingValidator) ValidateIntent(intent *model.BookingIntent) error {
	if err := v.validate.Struct(intent); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

// ValidateIdentifier checks a path parameter such as a session or requester id.
func (v *BookingValidator) ValidateIdentifier(field, value string) error {
	if err := v.validate.Var(value, "required,identifier,max=64"); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			var out ValidationErrors
			for _, fe := range validationErrs {
				out = append(out, ValidationError{
					Field:   field,
					Message: message(field, fe),
				})
			}
			return out
		}
		return err
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors
	for _, err := range errs {
		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message(err.Field(), err),
		})
	}
	return validationErrors
}

func message(field string, err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, err.Param())
	case "identifier":
		return fmt.Sprintf("%s may only contain letters, digits, '.', '_' and '-'", field)
	case "datetime":
		return fmt.Sprintf("%s must be a date in %s format", field, err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, err.Param())
	default:
		return err.Error()
	}
}
