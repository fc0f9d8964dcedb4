// Package validation wraps go-playground/validator with JSON field naming so
// service-level input errors read the same way clients spell their payloads.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
		mustRegister(validate, customRules)
	})
	return validate
}

var customRules = map[string]validator.Func{
	"notblank": func(level validator.FieldLevel) bool {
		return strings.TrimSpace(level.Field().String()) != ""
	},
}

// mustRegister panics when a rule cannot be registered; a broken rule set is a programming error.
func mustRegister(target *validator.Validate, rules map[string]validator.Func) {
	for tag, rule := range rules {
		if err := target.RegisterValidation(tag, rule); err != nil {
			panic(fmt.Sprintf("validation: register %q: %v", tag, err))
		}
	}
}

// Struct validates a tagged struct and flattens failures into a single error
// whose message lists each offending field.
func Struct(value any) error {
	err := Validator().Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	return &Error{Fields: describe(fieldErrors)}
}

// Error reports per-field validation failures keyed by JSON field name.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, e.Fields[key]))
	}
	return strings.Join(parts, "; ")
}

func describe(fieldErrors validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		fields[fieldError.Field()] = message(fieldError)
	}
	return fields
}

func message(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required", "notblank":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fieldError.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fieldError.Param())
	case "eqfield":
		return "Values do not match."
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", fieldError.Param())
	default:
		return fmt.Sprintf("Failed the %s check.", fieldError.Tag())
	}
}
