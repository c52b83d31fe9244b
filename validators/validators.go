package validators

import "github.com/go-playground/validator/v10"

// Validator wraps go-playground/validator so it satisfies
// echo.Validator and can also be used directly by services.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}
