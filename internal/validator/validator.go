package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with the engine's business rules.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents one failed field.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

func New() *Validator {
	validate := validator.New()

	v := &Validator{validate: validate}
	v.registerBusinessRules()

	return v
}

// Validate validates a struct and returns nil or a ValidationErrors value.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var errs ValidationErrors
	for _, fe := range fieldErrors {
		errs = append(errs, ValidationError{
			Field:   fe.Field(),
			Message: v.errorMessage(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return errs
}

func (v *Validator) registerBusinessRules() {
	// Write sessions shorter than 30 seconds or longer than 6 hours are
	// authoring mistakes.
	v.validate.RegisterValidation("test_duration", func(fl validator.FieldLevel) bool {
		d := fl.Field().Int()
		return d >= 30 && d <= 21600
	})

	v.validate.RegisterValidation("question_amount", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n >= 1 && n <= 100
	})

	// Window order is a struct-level rule; field tags cannot compare fields.
	v.validate.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(TestCreateRequest)
		if !req.AvailableUntil.After(req.AvailableFrom) {
			sl.ReportError(req.AvailableUntil, "AvailableUntil", "available_until", "window_order", "")
		}
	}, TestCreateRequest{})
}

func (v *Validator) errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "test_duration":
		return "must be between 30 seconds and 6 hours"
	case "question_amount":
		return "must be between 1 and 100"
	case "window_order":
		return "must be after the availability start"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed rule %q", fe.Tag())
	}
}
