package services

import (
	"errors"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/go-playground/validator/v10"
)

// ValidationError is the first rule an email/password form failed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return common.ErrValidation }

type credentialsForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

var messages = map[string]map[string]string{
	"Email": {
		"required": "Email can't be blank",
		"email":    "Must be a valid email address",
	},
	"Password": {
		"required": "Password can't be blank",
		"min":      "Password must be at least 6 characters",
	},
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validateCredentials checks the form before any network call. Email rules
// are reported before password rules.
func validateCredentials(v *validator.Validate, email, password string) error {
	err := v.Struct(credentialsForm{Email: email, Password: password})
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	fe := fieldErrs[0]
	msg, ok := messages[fe.Field()][fe.Tag()]
	if !ok {
		msg = fe.Error()
	}
	return &ValidationError{Field: fe.Field(), Message: msg}
}
