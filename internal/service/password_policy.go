package service

import (
	"fmt"
	"unicode"

	"github.com/zhiyin-next/internal/config"
)

func validatePassword(policy config.PasswordPolicyConfig, password string) error {
	if policy.MinLength > 0 && len([]rune(password)) < policy.MinLength {
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, policy.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		default:
			hasSpecial = true
		}
	}

	switch {
	case policy.RequireUpper && !hasUpper:
		return fmt.Errorf("%w: upper case letter required", ErrWeakPassword)
	case policy.RequireLower && !hasLower:
		return fmt.Errorf("%w: lower case letter required", ErrWeakPassword)
	case policy.RequireNumber && !hasNumber:
		return fmt.Errorf("%w: digit required", ErrWeakPassword)
	case policy.RequireSpecial && !hasSpecial:
		return fmt.Errorf("%w: special character required", ErrWeakPassword)
	}
	return nil
}
