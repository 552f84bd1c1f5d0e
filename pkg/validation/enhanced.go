// Package validation: go-playground/validator integration for request DTOs.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate is the shared validator instance with engine-specific rules
// registered.
var Validate *validator.Validate

var nodeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func init() {
	Validate = validator.New()

	Validate.RegisterValidation("node_id", validateNodeID)
	Validate.RegisterValidation("port_id", validatePortID)
	Validate.RegisterValidation("step_mode", validateStepMode)
	Validate.RegisterValidation("value_kind", validateValueKind)

	// report field names from JSON tags
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidateRequest validates a DTO through the shared validator and converts
// failures into ValidationErrors.
func ValidateRequest(s any) error {
	if err := Validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) ValidationErrors {
	var errs ValidationErrors
	if fieldErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrors {
			errs = append(errs, ValidationError{
				Field:   fe.Field(),
				Value:   fe.Value(),
				Message: errorMessage(fe),
			})
		}
	}
	return errs
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "node_id":
		return "must be a valid node identifier (alphanumeric, underscore, hyphen)"
	case "port_id":
		return "must be a valid port identifier (alphanumeric, underscore, hyphen)"
	case "step_mode":
		return "must be one of: none, over, into, out"
	case "value_kind":
		return "must be a valid value kind (boolean, number, string, array, object, secret, stream)"
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}

func validateNodeID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return id != "" && len(id) <= 100 && nodeIDPattern.MatchString(id)
}

func validatePortID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return id != "" && len(id) <= 100 && nodeIDPattern.MatchString(id)
}

func validateStepMode(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "none", "over", "into", "out":
		return true
	}
	return false
}

func validateValueKind(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "boolean", "number", "string", "array", "object", "secret", "stream":
		return true
	}
	return false
}
