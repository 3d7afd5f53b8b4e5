// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"fmt"
	"unicode"
)

// PasswordValidator validates passwords against various criteria.
type PasswordValidator struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
}

// DefaultPasswordValidator returns a validator with the account policy:
// at least 8 characters with one uppercase letter, one lowercase letter
// and one digit.
func DefaultPasswordValidator() *PasswordValidator {
	return &PasswordValidator{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
	}
}

// ValidationError represents a single password validation error.
type ValidationError struct {
	Code    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// PasswordValidationError wraps multiple validation errors.
type PasswordValidationError struct {
	Errors []ValidationError
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return e.Errors[0].Message
}

// Messages returns all error messages.
func (e *PasswordValidationError) Messages() []string {
	messages := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		messages[i] = err.Message
	}
	return messages
}

// ValidationResult holds all validation errors.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// Validate checks a password against all configured rules.
func (v *PasswordValidator) Validate(password string) ValidationResult {
	var errors []ValidationError

	if len(password) < v.MinLength {
		errors = append(errors, ValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("Password must be at least %d characters long.", v.MinLength),
		})
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if v.RequireUppercase && !hasUpper {
		errors = append(errors, ValidationError{
			Code:    "no_uppercase",
			Message: "Password must contain at least one uppercase letter.",
		})
	}

	if v.RequireLowercase && !hasLower {
		errors = append(errors, ValidationError{
			Code:    "no_lowercase",
			Message: "Password must contain at least one lowercase letter.",
		})
	}

	if v.RequireDigit && !hasDigit {
		errors = append(errors, ValidationError{
			Code:    "no_digit",
			Message: "Password must contain at least one digit.",
		})
	}

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

// GetHelpTexts returns help texts for password requirements.
func (v *PasswordValidator) GetHelpTexts() []string {
	texts := []string{fmt.Sprintf("At least %d characters", v.MinLength)}

	if v.RequireUppercase {
		texts = append(texts, "At least one uppercase letter")
	}
	if v.RequireLowercase {
		texts = append(texts, "At least one lowercase letter")
	}
	if v.RequireDigit {
		texts = append(texts, "At least one digit")
	}

	return texts
}
