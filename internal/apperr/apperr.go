// Package apperr is the application error taxonomy. Every error that reaches the HTTP
// layer is classified into a Kind, which decides the status code, the envelope code and
// the log severity.
package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindAuthentication  Kind = "AUTHENTICATION"
	KindAuthorization   Kind = "AUTHORIZATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindRateLimit       Kind = "RATE_LIMIT"
	KindExternalService Kind = "EXTERNAL_SERVICE"
	KindDatabase        Kind = "DATABASE"
	KindFileUpload      Kind = "FILE_UPLOAD"
	KindPayment         Kind = "PAYMENT"
	KindInternal        Kind = "INTERNAL"
)

type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

type Error struct {
	Kind    Kind
	Code    int
	Message string
	Details map[string]string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: DefaultCode(kind), Message: message}
}

// WithCode returns a sentinel with an envelope code more specific than the kind default.
func WithCode(kind Kind, code int, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Code: DefaultCode(kind), Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Status() int { return HTTPStatus(e.Kind) }

func (e *Error) Severity() Severity { return SeverityOf(e.Kind) }

// WithDetails returns a copy carrying field level details.
func (e *Error) WithDetails(details map[string]string) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindExternalService:
		return http.StatusBadGateway
	case KindFileUpload:
		return http.StatusBadRequest
	case KindPayment:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func DefaultCode(kind Kind) int {
	switch kind {
	case KindValidation:
		return 40000
	case KindAuthentication:
		return 40100
	case KindPayment:
		return 40200
	case KindAuthorization:
		return 40300
	case KindNotFound:
		return 40400
	case KindConflict:
		return 40900
	case KindFileUpload:
		return 41300
	case KindRateLimit:
		return 42900
	case KindDatabase:
		return 50001
	case KindExternalService:
		return 50200
	default:
		return 50000
	}
}

func SeverityOf(kind Kind) Severity {
	switch kind {
	case KindValidation, KindNotFound, KindConflict, KindFileUpload:
		return SeverityLow
	case KindAuthentication, KindAuthorization, KindRateLimit, KindPayment:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// Classify maps any error into the taxonomy. Unknown errors become INTERNAL with a
// generic message; the original error stays reachable through Cause.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			details[strings.ToLower(fe.Field())] = fe.Tag()
		}
		return &Error{Kind: KindValidation, Code: DefaultCode(KindValidation), Message: "invalid request payload", Details: details, Cause: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return Wrap(KindValidation, "invalid request payload", err)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Wrap(KindNotFound, "resource not found", err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Wrap(KindConflict, "resource already exists", err)
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if mysqlErr.Number == 1062 {
			return Wrap(KindConflict, "resource already exists", err)
		}
		return Wrap(KindDatabase, "database error", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindExternalService, "upstream timed out", err)
	}

	return Wrap(KindInternal, "internal server error", err)
}

// IsKind reports whether err classifies to kind.
func IsKind(err error, kind Kind) bool {
	c := Classify(err)
	return c != nil && c.Kind == kind
}
