package domain

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnknownDrug   = "UNKNOWN_DRUG"
	ErrCodeKnowledgeBase = "KNOWLEDGE_BASE_ERROR"
	ErrCodeStore         = "STORE_ERROR"
	ErrCodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInvariant     = "INVARIANT_VIOLATION"
	ErrCodeInternal      = "INTERNAL_SERVER_ERROR"
	ErrCodeJobNotFound   = "JOB_NOT_FOUND"
)

// ErrInvariantViolation marks a pipeline defect: an internal guarantee
// (score bounds, contraindication floor, key uniqueness) was broken.
// Never expected in correct operation and never caused by user input.
var ErrInvariantViolation = errors.New("interpretation invariant violated")

// InputError represents a rejected patient payload. It aborts the
// analysis of that patient only; batch runs record it and continue.
type InputError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input for field '%s': %s", e.Field, e.Message)
}

// NewInputError creates a new InputError
func NewInputError(field, message string, value interface{}) *InputError {
	return &InputError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// IsInputError reports whether err is (or wraps) an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// InternalError represents a fatal engine defect, wrapping the violated
// invariant. It is surfaced to operators, never to end users.
type InternalError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *InternalError) Error() string {
	return fmt.Sprintf("internal defect in %s: %v", e.Op, e.Err)
}

// Unwrap exposes the wrapped invariant error to errors.Is/As.
func (e *InternalError) Unwrap() error {
	return e.Err
}

// NewInternalError creates a new InternalError wrapping ErrInvariantViolation.
func NewInternalError(op string, err error) *InternalError {
	return &InternalError{Op: op, Err: fmt.Errorf("%w: %w", ErrInvariantViolation, err)}
}

// UnknownDrugWarning flags a medication with no knowledge base coverage.
// Non-fatal: the drug is skipped for rule and interaction evaluation but
// stays in the medication list for phenoconversion scanning of others.
type UnknownDrugWarning struct {
	Drug string `json:"drug"`
}

// Error implements the error interface so the warning can travel through
// error-returning call sites when needed.
func (w *UnknownDrugWarning) Error() string {
	return fmt.Sprintf("drug '%s' not present in knowledge base", w.Drug)
}

// AsWarning converts the warning into its report representation.
func (w *UnknownDrugWarning) AsWarning() AnalysisWarning {
	return AnalysisWarning{
		Code:    ErrCodeUnknownDrug,
		Drug:    w.Drug,
		Message: w.Error(),
	}
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}
