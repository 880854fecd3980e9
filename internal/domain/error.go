package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrForbidden          = errors.New("forbidden")

	// Plans
	ErrUnknownPlan = errors.New("unknown or inactive plan")

	// Coupons
	ErrCouponNotFound        = errors.New("coupon not found")
	ErrCouponInactive        = errors.New("coupon is inactive")
	ErrCouponOutOfWindow     = errors.New("coupon is outside its validity window")
	ErrCouponUsageCapReached = errors.New("coupon has reached its usage limit")
	ErrCouponAlreadyUsed     = errors.New("coupon already used by this user")

	// Subscriptions
	ErrTrialAlreadyUsed            = errors.New("trial already used")
	ErrActiveSubscriptionExists    = errors.New("user already has an active subscription")
	ErrActivePaidSubscriptionExist = errors.New("user already has an active paid subscription")
	ErrInvalidTransition           = errors.New("invalid status transition")

	// Payments
	ErrDuplicateNotesCode = errors.New("notes code already used")
	ErrPaymentNotLinked   = errors.New("payment has no pending subscription")

	// Devices and sessions
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDeviceRequired     = errors.New("device id is required")
	ErrTooManyDevices     = errors.New("two devices already registered")
	ErrDeviceMismatch     = errors.New("account is active on another device")
	ErrTooManyAttempts    = errors.New("too many login attempts")

	// Quota
	ErrAIQuotaExceeded      = errors.New("daily AI limit reached")
	ErrSubscriptionRequired = errors.New("an active subscription is required")
)

// LimitError reports a resource-exhaustion denial together with the limit
// and the usage observed when the request was rejected.
type LimitError struct {
	Err   error
	Limit int
	Used  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%v (limit=%d used=%d)", e.Err, e.Limit, e.Used)
}

func (e *LimitError) Unwrap() error { return e.Err }
