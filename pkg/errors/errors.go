package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Error codes
const (
	CodeAvatarError   = "AVATAR_ERROR"
	CodeTransport     = "TRANSPORT_ERROR"
	CodeFormat        = "FORMAT_ERROR"
	CodeConstraint    = "CONSTRAINT_VIOLATION"
	CodeQuotaExceeded = "QUOTA_EXCEEDED"
	CodePersistence   = "PERSISTENCE_ERROR"
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeCache         = "CACHE_ERROR"
)

type AvatarError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *AvatarError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AvatarError) Unwrap() error {
	return e.Cause
}

// ErrorCode is promoted to every typed error embedding AvatarError.
func (e *AvatarError) ErrorCode() string {
	return e.Code
}

// TransportError covers timeouts, connection failures and non-2xx responses.
type TransportError struct {
	*AvatarError
	URL string
}

func NewTransportError(message, url string, statusCode int, cause error) *TransportError {
	return &TransportError{
		AvatarError: &AvatarError{
			Message:    message,
			Code:       CodeTransport,
			StatusCode: statusCode,
			Context: map[string]any{
				"url": url,
			},
			Cause: cause,
		},
		URL: url,
	}
}

// FormatError is raised for payloads that are not images at all.
type FormatError struct {
	*AvatarError
	ContentType string
}

func NewFormatError(message, contentType string, cause error) *FormatError {
	return &FormatError{
		AvatarError: &AvatarError{
			Message: message,
			Code:    CodeFormat,
			Context: map[string]any{
				"content_type": contentType,
			},
			Cause: cause,
		},
		ContentType: contentType,
	}
}

// ConstraintViolation is raised when a decoded image is outside size/shape bounds.
type ConstraintViolation struct {
	*AvatarError
	Constraint string
	Value      any
}

func NewConstraintViolation(message, constraint string, value any) *ConstraintViolation {
	return &ConstraintViolation{
		AvatarError: &AvatarError{
			Message: message,
			Code:    CodeConstraint,
			Context: map[string]any{
				"constraint": constraint,
				"value":      value,
			},
		},
		Constraint: constraint,
		Value:      value,
	}
}

type QuotaExceededError struct {
	*AvatarError
	Query string
}

func NewQuotaExceededError(query string, statusCode int, cause error) *QuotaExceededError {
	return &QuotaExceededError{
		AvatarError: &AvatarError{
			Message:    "image search quota exceeded",
			Code:       CodeQuotaExceeded,
			StatusCode: statusCode,
			Context: map[string]any{
				"query":       query,
				"detected_at": time.Now().Format(time.RFC3339),
			},
			Cause: cause,
		},
		Query: query,
	}
}

// PersistenceError wraps failures writing artifacts or patching records.
type PersistenceError struct {
	*AvatarError
	RecordID  string
	Operation string
}

func NewPersistenceError(message, recordID, operation string, cause error) *PersistenceError {
	return &PersistenceError{
		AvatarError: &AvatarError{
			Message: message,
			Code:    CodePersistence,
			Context: map[string]any{
				"record_id": recordID,
				"operation": operation,
			},
			Cause: cause,
		},
		RecordID:  recordID,
		Operation: operation,
	}
}

type ConfigurationError struct {
	*AvatarError
	Field string
}

func NewConfigurationError(message, field string) *ConfigurationError {
	return &ConfigurationError{
		AvatarError: &AvatarError{
			Message: message,
			Code:    CodeConfiguration,
			Context: map[string]any{
				"field": field,
			},
		},
		Field: field,
	}
}

type CacheError struct {
	*AvatarError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		AvatarError: &AvatarError{
			Message: message,
			Code:    CodeCache,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

func IsTransport(err error) bool {
	var target *TransportError
	return stderrors.As(err, &target)
}

func IsFormat(err error) bool {
	var target *FormatError
	return stderrors.As(err, &target)
}

func IsConstraint(err error) bool {
	var target *ConstraintViolation
	return stderrors.As(err, &target)
}

func IsQuota(err error) bool {
	var target *QuotaExceededError
	return stderrors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target *PersistenceError
	return stderrors.As(err, &target)
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return stderrors.As(err, &target)
}

// CodeOf returns the taxonomy code of err, or CodeAvatarError when err is untyped.
func CodeOf(err error) string {
	var target interface{ ErrorCode() string }
	if stderrors.As(err, &target) {
		return target.ErrorCode()
	}
	return CodeAvatarError
}
