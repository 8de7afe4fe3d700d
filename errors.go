package dues

import (
	"errors"
	"fmt"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/plan"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("dues: not found")
	ErrAlreadyExists = errors.New("dues: already exists")
	ErrInvalidInput  = errors.New("dues: invalid input")

	// Entity lookups
	ErrTenantNotFound      = errors.New("dues: tenant not found")
	ErrFamilyNotFound      = errors.New("dues: family not found")
	ErrMemberNotFound      = errors.New("dues: member not found")
	ErrPlanNotFound        = errors.New("dues: payment plan not found")
	ErrEventTypeNotFound   = errors.New("dues: lifecycle event type not found")
	ErrStatementNotFound   = errors.New("dues: statement not found")
	ErrTenantMismatch      = errors.New("dues: record belongs to another tenant")
	ErrFamilyInactive      = errors.New("dues: family is inactive")
	ErrParentAlreadyLinked = errors.New("dues: family already has a parent family")

	// Idempotence guards
	ErrDuplicateStatement    = errors.New("dues: statement already exists for period")
	ErrStatementVoided       = errors.New("dues: statement is void")
	ErrTriggerAlreadyApplied = errors.New("dues: lifecycle trigger already applied")

	// Configuration errors
	ErrConfiguration = errors.New("dues: tenant configuration error")

	// Store errors
	ErrStoreNotReady = errors.New("dues: store not ready")
	ErrStoreClosed   = errors.New("dues: store is closed")
	ErrStoreFailure  = errors.New("dues: store operation failed")
)

// ConfigurationError reports tenant setup that makes a computation
// impossible, such as an age no payment plan covers. It is fatal for the
// affected family only.
type ConfigurationError struct {
	TenantID id.TenantID
	Age      int
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("dues: tenant %s misconfigured", e.TenantID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransientStoreError wraps a persistence failure. Every engine operation
// is idempotent, so callers may retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("dues: %s: %v", e.Op, e.Err)
}

// Is matches ErrStoreFailure.
func (e *TransientStoreError) Is(target error) bool { return target == ErrStoreFailure }

func (e *TransientStoreError) Unwrap() error { return e.Err }

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("dues: validation failed for %s: %s", e.Field, e.Message)
}

// Is matches ErrInvalidInput.
func (e ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "dues: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("dues: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrFamilyNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrEventTypeNotFound) ||
		errors.Is(err, ErrStatementNotFound)
}

// IsConfiguration returns true for tenant setup defects.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, plan.ErrNoBracket) ||
		errors.Is(err, plan.ErrOverlap)
}

// IsDuplicate returns true when an idempotence guard rejected a write.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateStatement) ||
		errors.Is(err, ErrTriggerAlreadyApplied) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreFailure) ||
		errors.Is(err, ErrStoreNotReady)
}

// FamilyFailure records one family that failed inside a batch.
type FamilyFailure struct {
	FamilyID id.FamilyID `json:"family_id"`
	Err      error       `json:"-"`
	Message  string      `json:"error"`
}

func newFamilyFailure(familyID id.FamilyID, err error) FamilyFailure {
	return FamilyFailure{FamilyID: familyID, Err: err, Message: err.Error()}
}

// storeErr classifies an error returned by the store. Domain sentinels
// pass through; anything else is treated as a transient I/O failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsDuplicate(err) || errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrStatementVoided) || errors.Is(err, ErrStoreClosed) {
		return err
	}
	return &TransientStoreError{Op: op, Err: err}
}
