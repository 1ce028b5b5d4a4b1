package service

import (
	"errors"
	"fmt"
)

// 错误类别，调用方通过 errors.Is 判定
var (
	ErrValidation             = errors.New("validation error")
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrSystem                 = errors.New("system error")
)

// 具体业务错误
var (
	ErrPartnerNotFound             = fmt.Errorf("%w: partner not found", ErrNotFound)
	ErrBookingNotFound             = fmt.Errorf("%w: booking not found", ErrNotFound)
	ErrPayoutNotFound              = fmt.Errorf("%w: payout not found", ErrNotFound)
	ErrPartnerCodeExists           = fmt.Errorf("%w: partner code already exists", ErrValidation)
	ErrPartnerStatusInvalid        = fmt.Errorf("%w: partner status invalid", ErrValidation)
	ErrCommissionPreferenceInvalid = fmt.Errorf("%w: commission preference invalid", ErrValidation)
	ErrPartnerLevelInvalid         = fmt.Errorf("%w: partner level invalid", ErrValidation)
	ErrAmountInvalid               = fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	ErrCancelActionInvalid         = fmt.Errorf("%w: cancel action invalid", ErrValidation)
	ErrCommissionAlreadyCalculated = fmt.Errorf("%w: commission already calculated", ErrInvalidStateTransition)
	ErrBookingLockedByPayout       = fmt.Errorf("%w: booking is attached to an active payout", ErrInvalidStateTransition)
	ErrPartnerDisabled             = fmt.Errorf("%w: partner disabled", ErrInvalidStateTransition)
	ErrPendingCommissionShort      = fmt.Errorf("%w: pending commission not enough", ErrInsufficientBalance)
	ErrAvailablePointsShort        = fmt.Errorf("%w: available points not enough", ErrInsufficientBalance)
	ErrLedgerLockTimeout           = fmt.Errorf("%w: partner ledger is busy", ErrSystem)
	ErrInvalidCredentials          = fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
	ErrInvalidToken                = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrInvalidPassword             = fmt.Errorf("%w: old password mismatch", ErrValidation)
	ErrWeakPassword                = fmt.Errorf("%w: password does not meet policy", ErrValidation)
)

// validationError 构造字段校验错误
func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// stateError 构造状态流转错误
func stateError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidStateTransition, fmt.Sprintf(format, args...))
}

// wrapSystemError 将非业务错误归为系统错误
func wrapSystemError(err error) error {
	if err == nil {
		return nil
	}
	if IsLedgerError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrSystem, err)
}

// IsLedgerError 判断是否已归类
func IsLedgerError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrSystem)
}
