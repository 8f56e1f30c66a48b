package config

import (
	"github.com/go-playground/validator/v10"

	"github.com/rybkr/logarc/internal/errs"
)

var validate = validator.New()

// Validate checks every tagged field of cfg as a whole. A single invalid
// field fails the entire configuration: there is no partial application.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return errs.New(errs.Validation, "invalid configuration value").
				WithContext("field", first.Namespace()).
				WithContext("constraint", first.Tag()).
				WithContext("value", first.Value())
		}
		return errs.Wrap(errs.Validation, "invalid configuration", err)
	}
	return nil
}
