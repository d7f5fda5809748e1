// Package utils carries small shared helpers.
package utils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"rserv/pkg/errors"
)

var validate = validator.New()

// ValidateStruct checks request DTOs against their `validate` tags and folds
// violations into a single validation error.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.NewValidationError(err.Error())
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, describeFieldError(fe))
	}
	return errors.NewValidationErrors(messages)
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Missing required field: %s", field)
	case "oneof":
		return fmt.Sprintf("Field %s must be one of: %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("Field %s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("Field %s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("Field %s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("Field %s is invalid (%s)", field, fe.Tag())
	}
}
