// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// LLM client
const (
	ErrCodeCircuitOpen             ErrorCode = "CIRCUIT_OPEN"
	ErrCodeDuplicateRequest        ErrorCode = "DUPLICATE_REQUEST"
	ErrCodeStructuredOutputInvalid ErrorCode = "STRUCTURED_OUTPUT_INVALID"
	ErrCodeLLMTimeout              ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMUpstreamFailed       ErrorCode = "LLM_UPSTREAM_FAILED"
)

// Quota and usage
const (
	ErrCodeQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeQuotaCheckFailed  ErrorCode = "QUOTA_CHECK_FAILED"
	ErrCodeUsageRecordFailed ErrorCode = "USAGE_RECORD_FAILED"
)

// Retrieval and tools
const (
	ErrCodeRetrievalFailed      ErrorCode = "RETRIEVAL_FAILED"
	ErrCodeWebSearchFailed      ErrorCode = "WEB_SEARCH_FAILED"
	ErrCodeWebSearchRateLimited ErrorCode = "WEB_SEARCH_RATE_LIMITED"
	ErrCodeFinanceInputInvalid  ErrorCode = "FINANCE_INPUT_INVALID"
	ErrCodeUnknownTool          ErrorCode = "UNKNOWN_TOOL"
)

const (
	ErrCodeValidationFailed         ErrorCode = "VALIDATION_FAILED"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a StandardError with the same code, so that
// errors.Is(err, errors.New...Error(...)) matches by code alone.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns the error with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// AsStandardError finds the first StandardError in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries a StandardError with the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewCircuitOpenError is returned without contacting the upstream while the breaker is open.
func NewCircuitOpenError(retryAfter time.Duration) *StandardError {
	e := newError(ErrCodeCircuitOpen, "LLM circuit breaker is open",
		fmt.Sprintf("retry after %s", retryAfter.Round(time.Millisecond)), true, nil)
	return e.WithMetadata("retryAfterMs", retryAfter.Milliseconds())
}

// NewDuplicateRequestError creates a non-retryable idempotency error.
func NewDuplicateRequestError(key string) *StandardError {
	return newError(ErrCodeDuplicateRequest, "Duplicate request within the deduplication window",
		fmt.Sprintf("idempotencyKey: %s", key), false, nil)
}

// NewStructuredOutputInvalidError creates a non-retryable schema violation error.
func NewStructuredOutputInvalidError(details string, cause error) *StandardError {
	return newError(ErrCodeStructuredOutputInvalid, "Model output did not match the requested schema",
		details, false, cause)
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError(err error) *StandardError {
	return newError(ErrCodeLLMTimeout, "LLM call timed out", detailsOf(err), true, err)
}

// NewLLMUpstreamFailedError wraps a provider failure. Retryable reflects the transport classification.
func NewLLMUpstreamFailedError(err error, retryable bool) *StandardError {
	return newError(ErrCodeLLMUpstreamFailed, "LLM provider request failed", detailsOf(err), retryable, err)
}

// NewQuotaExceededError creates a non-retryable quota error; resetAt is exposed in the metadata.
func NewQuotaExceededError(reason string, resetAt time.Time) *StandardError {
	e := newError(ErrCodeQuotaExceeded, "Usage quota exceeded", reason, false, nil)
	return e.WithMetadata("resetAt", resetAt.UTC().Format(time.RFC3339))
}

// NewQuotaCheckFailedError creates a retryable error for a failed usage lookup.
func NewQuotaCheckFailedError(err error) *StandardError {
	return newError(ErrCodeQuotaCheckFailed, "Quota check could not read usage", detailsOf(err), true, err)
}

// NewUsageRecordFailedError is raised after the model call was paid for, so
// it is thrown rather than retried.
func NewUsageRecordFailedError(err error) *StandardError {
	return newError(ErrCodeUsageRecordFailed, "Usage record could not be persisted", detailsOf(err), false, err)
}

// NewRetrievalFailedError creates a retryable retrieval backend error.
func NewRetrievalFailedError(backend string, err error) *StandardError {
	return newError(ErrCodeRetrievalFailed, "Retrieval backend error",
		fmt.Sprintf("backend: %s, error: %s", backend, detailsOf(err)), true, err)
}

// NewWebSearchFailedError creates a retryable web search error.
func NewWebSearchFailedError(provider string, err error) *StandardError {
	return newError(ErrCodeWebSearchFailed, "Web search provider error",
		fmt.Sprintf("provider: %s, error: %s", provider, detailsOf(err)), true, err)
}

// NewWebSearchRateLimitedError creates a non-retryable per-tenant rate limit error.
func NewWebSearchRateLimitedError(tenantID string) *StandardError {
	return newError(ErrCodeWebSearchRateLimited, "Web search rate limit reached",
		fmt.Sprintf("tenantId: %s", tenantID), false, nil)
}

// NewFinanceInputInvalidError creates a non-retryable finance validation error.
func NewFinanceInputInvalidError(details string) *StandardError {
	return newError(ErrCodeFinanceInputInvalid, "Finance inputs are invalid", details, false, nil)
}

// NewUnknownToolError creates a non-retryable tool dispatch error.
func NewUnknownToolError(name string) *StandardError {
	return newError(ErrCodeUnknownTool, "Unknown tool", fmt.Sprintf("tool: %s", name), false, nil)
}

// NewValidationFailedError creates a non-retryable input validation error.
func NewValidationFailedError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Input validation failed", details, false, nil)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", detailsOf(err), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", detailsOf(err), false, err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeCircuitOpen:              "CIRCUIT_OPEN",
	ErrCodeDuplicateRequest:         "DUPLICATE_REQUEST",
	ErrCodeStructuredOutputInvalid:  "STRUCTURED_OUTPUT_INVALID",
	ErrCodeLLMTimeout:               "LLM_TIMEOUT",
	ErrCodeLLMUpstreamFailed:        "LLM_UPSTREAM_FAILED",
	ErrCodeQuotaExceeded:            "QUOTA_EXCEEDED",
	ErrCodeQuotaCheckFailed:         "QUOTA_CHECK_FAILED",
	ErrCodeUsageRecordFailed:        "USAGE_RECORD_FAILED",
	ErrCodeRetrievalFailed:          "RETRIEVAL_FAILED",
	ErrCodeWebSearchFailed:          "WEB_SEARCH_FAILED",
	ErrCodeWebSearchRateLimited:     "WEB_SEARCH_RATE_LIMITED",
	ErrCodeFinanceInputInvalid:      "FINANCE_INPUT_INVALID",
	ErrCodeUnknownTool:              "UNKNOWN_TOOL",
	ErrCodeValidationFailed:         "VALIDATION_FAILED",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeLLMUpstreamFailed,
		ErrCodeQuotaCheckFailed,
		ErrCodeDatabaseConnectionFailed:
		return 3

	case ErrCodeRetrievalFailed,
		ErrCodeWebSearchFailed:
		return 2

	case ErrCodeLLMTimeout,
		ErrCodeCircuitOpen:
		return 1

	default:
		return 0 // business errors: throw, no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "QUOTA") || strings.Contains(codeStr, "USAGE"):
		return "QUOTA"
	case strings.Contains(codeStr, "LLM") || codeStr == string(ErrCodeCircuitOpen) ||
		codeStr == string(ErrCodeDuplicateRequest) || codeStr == string(ErrCodeStructuredOutputInvalid):
		return "LLM"
	case strings.Contains(codeStr, "RETRIEVAL") || strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "FINANCE") || strings.Contains(codeStr, "TOOL"):
		return "TOOLS"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
