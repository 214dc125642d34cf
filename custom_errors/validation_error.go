package custom_errors

import (
	"errors"
	"fmt"
)

// ValidationError collects every problem found while validating a request.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (c *ValidationError) Add(err error) {
	c.Errors = append(c.Errors, err)
}

// Addf appends a formatted field error.
func (c *ValidationError) Addf(format string, args ...any) {
	c.Errors = append(c.Errors, fmt.Errorf(format, args...))
}

func (c *ValidationError) HasError() bool {
	return len(c.Errors) > 0
}

func (c *ValidationError) Error() string {
	if len(c.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", errors.Join(c.Errors...))
}

// OrNil returns c as an error if it holds anything, nil otherwise.
func (c *ValidationError) OrNil() error {
	if c.HasError() {
		return c
	}
	return nil
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
