package models

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a domain failure so callers can map it to an
// external response without matching message strings.
type ErrorCode string

const (
	// Validation failures: deterministic, caller-correctable, never retried.
	CodeEmptyTransaction      ErrorCode = "EMPTY_TRANSACTION"
	CodeUnbalancedTransaction ErrorCode = "UNBALANCED_TRANSACTION"
	CodeCommodityMismatch     ErrorCode = "COMMODITY_MISMATCH"
	CodePeriodClosed          ErrorCode = "PERIOD_CLOSED"
	CodeInvalidInput          ErrorCode = "INVALID_INPUT"

	// Reference failures: caller used an unknown identifier.
	CodeLedgerNotFound      ErrorCode = "LEDGER_NOT_FOUND"
	CodeAccountNotFound     ErrorCode = "ACCOUNT_NOT_FOUND"
	CodeUnknownCommodity    ErrorCode = "UNKNOWN_COMMODITY"
	CodeTransactionNotFound ErrorCode = "TRANSACTION_NOT_FOUND"

	// Conflict failures: state already disagrees with the request.
	CodeDuplicateCommodity ErrorCode = "DUPLICATE_COMMODITY"
	CodeCommodityLocked    ErrorCode = "COMMODITY_LOCKED"
	CodeInvalidParent      ErrorCode = "INVALID_PARENT"
	CodeDuplicateName      ErrorCode = "DUPLICATE_NAME"
	CodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
	CodeAlreadyReversed    ErrorCode = "ALREADY_REVERSED"

	// CodeWriteConflict marks a storage-level serialization conflict. The
	// whole validate-commit sequence may be retried against fresh state.
	CodeWriteConflict ErrorCode = "WRITE_CONFLICT"

	// CodeInternal marks invariant violations detected after commit.
	// These require operator intervention; history is never auto-adjusted.
	CodeInternal ErrorCode = "INTERNAL"
)

// Error is a typed domain error. Commodity and Residual are populated for
// UNBALANCED_TRANSACTION so the caller can see which commodity failed to
// sum to zero and by how much.
type Error struct {
	Code      ErrorCode
	Field     string
	Message   string
	Commodity string
	Residual  int64
}

func (e Error) Error() string {
	if e.Code == CodeUnbalancedTransaction {
		return fmt.Sprintf("%s: %s: %s (commodity=%s residual=%d)", e.Code, e.Field, e.Message, e.Commodity, e.Residual)
	}

	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

// Is reports whether target is a models.Error with the same code, so
// errors.Is can match against a bare code-only Error value.
func (e Error) Is(target error) bool {
	var other Error
	if !errors.As(target, &other) {
		return false
	}

	return e.Code == other.Code
}

// NewError builds a typed domain error.
func NewError(code ErrorCode, field, message string) error {
	return Error{Code: code, Field: field, Message: message}
}

// NewUnbalancedError reports the commodity whose postings do not sum to
// zero and the nonzero residual, for diagnosability.
func NewUnbalancedError(commodity string, residual int64) error {
	return Error{
		Code:      CodeUnbalancedTransaction,
		Field:     "postings",
		Message:   "postings do not sum to zero",
		Commodity: commodity,
		Residual:  residual,
	}
}

// IsCode reports whether err carries the given domain error code.
func IsCode(err error, code ErrorCode) bool {
	var domainErr Error
	if !errors.As(err, &domainErr) {
		return false
	}

	return domainErr.Code == code
}

// Retryable reports whether the failure is a transient storage conflict
// that may be retried with a fresh read of current state.
func Retryable(err error) bool {
	return IsCode(err, CodeWriteConflict)
}
