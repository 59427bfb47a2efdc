// Package errors provides standardized error handling for the voice pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Linguistic errors are always resolved locally into a clarification
// response; they never escape the pipeline as hard failures.
const (
	ErrCodeNoMatch               ErrorCode = "NO_MATCH"
	ErrCodeAmbiguousEntity       ErrorCode = "AMBIGUOUS_ENTITY"
	ErrCodeMissingRequiredEntity ErrorCode = "MISSING_REQUIRED_ENTITY"
	ErrCodeInvalidEntityValue    ErrorCode = "INVALID_ENTITY_VALUE"
	ErrCodeUnknownIntentType     ErrorCode = "UNKNOWN_INTENT_TYPE"

	ErrCodeVocabularyLoadFailed ErrorCode = "VOCABULARY_LOAD_FAILED"
	ErrCodeEmptyWhitelist       ErrorCode = "EMPTY_WHITELIST"

	ErrCodeAnalyticsUnavailable ErrorCode = "ANALYTICS_UNAVAILABLE"
	ErrCodeAnalyticsTimeout     ErrorCode = "ANALYTICS_TIMEOUT"
	ErrCodeCacheUnavailable     ErrorCode = "CACHE_UNAVAILABLE"

	ErrCodeTemplateNotFound         ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateValidationFailed ErrorCode = "TEMPLATE_VALIDATION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewNoMatchError creates the error surfaced when neither tier produced a
// candidate intent.
func NewNoMatchError(utterance string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoMatch,
		Message:   "No intent matched the utterance",
		Details:   utterance,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAmbiguousEntityError creates the error for multiple plausible machine
// matches above the fuzzy threshold.
func NewAmbiguousEntityError(candidates []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAmbiguousEntity,
		Message:   "Multiple machines match the utterance",
		Details:   strings.Join(candidates, ", "),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingRequiredEntityError creates the error for an intent type missing
// a required entity.
func NewMissingRequiredEntityError(field string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingRequiredEntity,
		Message:   "Required entity missing from utterance",
		Details:   fmt.Sprintf("field: %s", field),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidEntityValueError creates the error for structurally malformed
// entities such as non-positive durations.
func NewInvalidEntityValueError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidEntityValue,
		Message:   "Entity value failed structural validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownIntentTypeError should never occur in practice; the intent enum
// is closed. Treated as NO_MATCH by callers.
func NewUnknownIntentTypeError(intentType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownIntentType,
		Message:   "Intent type is not a known enum member",
		Details:   fmt.Sprintf("intentType: %s", intentType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewVocabularyLoadFailedError creates a fatal initialization error.
func NewVocabularyLoadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeVocabularyLoadFailed,
		Message:   "Vocabulary store failed to load",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmptyWhitelistError creates a fatal initialization error; with no known
// machines no machine-scoped query could ever validate.
func NewEmptyWhitelistError() *StandardError {
	return &StandardError{
		Code:      ErrCodeEmptyWhitelist,
		Message:   "Machine whitelist is empty",
		Details:   "refresh produced zero machine names",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAnalyticsUnavailableError creates a retryable analytics API error.
func NewAnalyticsUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAnalyticsUnavailable,
		Message:   "Analytics API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAnalyticsTimeoutError creates a retryable analytics API timeout error.
func NewAnalyticsTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeAnalyticsTimeout,
		Message:   "Analytics API timeout",
		Details:   "call exceeded timeout threshold",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a retryable cache error. Cache failures
// degrade to a direct API call, they never fail a request.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Cache unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(intentType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Response template not found in registry",
		Details:   fmt.Sprintf("intentType: %s", intentType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateValidationFailedError creates a non-retryable template
// validation error.
func NewTemplateValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateValidationFailed,
		Message:   "Data validation failed for response template",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeAnalyticsUnavailable, ErrCodeCacheUnavailable:
		return 3
	case ErrCodeAnalyticsTimeout:
		return 2
	default:
		return 0 // linguistic and fatal errors: no retry
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsLinguistic reports whether the code belongs to the conversational
// taxonomy resolved locally via clarification.
func IsLinguistic(code ErrorCode) bool {
	switch code {
	case ErrCodeNoMatch, ErrCodeAmbiguousEntity, ErrCodeMissingRequiredEntity,
		ErrCodeInvalidEntityValue, ErrCodeUnknownIntentType:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case IsLinguistic(code):
		return "LINGUISTIC"
	case strings.Contains(codeStr, "VOCABULARY") || strings.Contains(codeStr, "WHITELIST"):
		return "VOCABULARY"
	case strings.Contains(codeStr, "ANALYTICS") || strings.Contains(codeStr, "CACHE"):
		return "UPSTREAM"
	case strings.Contains(codeStr, "TEMPLATE"):
		return "TEMPLATE"
	default:
		return "OTHER"
	}
}
