package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var inputValidator = validator.New()

// validateInput 结构体字段校验，失败归为 ErrValidation
func validateInput(input interface{}) error {
	err := inputValidator.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s failed on %s", toSnakeCase(fe.Field()), fe.Tag()))
		}
		return validationError("%s", strings.Join(parts, "; "))
	}
	return validationError("%v", err)
}

func toSnakeCase(name string) string {
	var b strings.Builder
	for idx, r := range name {
		if r >= 'A' && r <= 'Z' {
			if idx > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
