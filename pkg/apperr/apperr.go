package apperr

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable error class surfaced to callers.
type Kind string

const (
	KindUnauthorized            Kind = "Unauthorized"
	KindForbidden               Kind = "Forbidden"
	KindMissingFields           Kind = "MissingFields"
	KindProductNotFound         Kind = "ProductNotFound"
	KindCouponNotFound          Kind = "CouponNotFound"
	KindNotEligibleNewUserOnly  Kind = "NotEligibleNewUserOnly"
	KindNotEligiblePlanRequired Kind = "NotEligiblePlanRequired"
	KindCouponExpired           Kind = "CouponExpired"
	KindCouponExists            Kind = "CouponExists"
	KindPaymentGatewayError     Kind = "PaymentGatewayError"
	KindStoreWriteError         Kind = "StoreWriteError"
	KindDuplicateRequest        Kind = "DuplicateRequest"
	KindNotFound                Kind = "NotFound"
	KindInternal                Kind = "Internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Error values by Kind so callers can compare against
// sentinel values like apperr.New(KindCouponNotFound, "").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
