package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance
var validate = validator.New()

// formatValidationError converts the first validator error into a short
// message naming the field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "gte", "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "gt":
			return fmt.Errorf("%s: must be greater than %s", field, param)
		case "lt":
			return fmt.Errorf("%s: must be less than %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: %q must be one of [%s]", field, e.Value(), param)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}

// checker collects cross-field validation errors rather than failing on the
// first one.
type checker struct {
	name   string
	errors []error
}

func newChecker(name string) *checker {
	return &checker{name: name}
}

// Require records msg when cond does not hold.
func (c *checker) Require(field string, cond bool, msg string) *checker {
	if !cond {
		c.errors = append(c.errors, fmt.Errorf("%s.%s: %s", c.name, field, msg))
	}
	return c
}

// Custom applies a custom validation function.
func (c *checker) Custom(field string, fn func() error) *checker {
	if err := fn(); err != nil {
		c.errors = append(c.errors, fmt.Errorf("%s.%s: %w", c.name, field, err))
	}
	return c
}

// When conditionally applies validations if the condition is true.
func (c *checker) When(condition bool, validations func(*checker)) *checker {
	if condition {
		validations(c)
	}
	return c
}

// Validate joins every recorded error.
func (c *checker) Validate() error {
	return errors.Join(c.errors...)
}
