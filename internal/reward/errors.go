package reward

import (
	"errors"
	"fmt"
)

// Stores return these sentinels, wrapped, for conditions the service
// translates into domain errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateCheckin = errors.New("checkin already recorded")
	ErrAlreadySeeded    = errors.New("pool already seeded")
)

// Validation codes.
const (
	CodeInvalidArgument  = "invalid_argument"
	CodeUnknownSite      = "unknown_site"
	CodeAlreadyCheckedIn = "already_checked_in"
	CodeNotFound         = "not_found"
	CodeNotOwner         = "not_owner"
	CodeWrongKind        = "wrong_item_kind"
	CodeItemUsed         = "item_used"
	CodeItemUnclaimed    = "item_unclaimed"
	CodeCardPlayed       = "card_played"
	CodeSameTeam         = "same_team"
	CodeTargetEmpty      = "target_empty"
)

// ValidationError is a request the rules refuse. It is reported as-is and
// never retried.
type ValidationError struct {
	Code string
	Msg  string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// notFound turns a store ErrNotFound into a not_found ValidationError and
// passes any other error through.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return invalid(CodeNotFound, format, args...)
	}
	return err
}

// ConflictError means the operation lost a race against a concurrent one.
// Callers retry the whole operation.
type ConflictError struct {
	Op  string
	Err error
}

func (e *ConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: concurrent update, retry", e.Op)
	}
	return fmt.Sprintf("%s: concurrent update, retry: %v", e.Op, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// ExhaustionError means no supply remains for the request.
type ExhaustionError struct {
	Pool string
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("%s exhausted", e.Pool)
}

// IntegrityError is a broken invariant in stored state.
type IntegrityError struct {
	Msg string
}

func (e *IntegrityError) Error() string {
	return "integrity violation: " + e.Msg
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsExhausted reports whether err is an ExhaustionError.
func IsExhausted(err error) bool {
	var e *ExhaustionError
	return errors.As(err, &e)
}

// IsIntegrity reports whether err is an IntegrityError.
func IsIntegrity(err error) bool {
	var i *IntegrityError
	return errors.As(err, &i)
}

// ValidationCode returns the code of a ValidationError, or "".
func ValidationCode(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Code
	}
	return ""
}
