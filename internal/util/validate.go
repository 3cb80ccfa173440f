package util

import (
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return ValidCPF(fl.Field().String())
	})
	return v
}

// ValidateStruct aplica as tags `validate` de um payload de entrada,
// incluindo a regra customizada cpf.
func ValidateStruct(s any) error {
	return validate.Struct(s)
}
