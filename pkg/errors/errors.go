package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Pipeline errors. Match them with errors.Is; AppError unwraps to them.
var (
	// Data errors
	ErrEmptyInput          = errors.New("empty input")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrNoDataForProduct    = errors.New("no data for product")
	ErrInvalidInputData    = errors.New("invalid input data")
	ErrInvalidScenario     = errors.New("invalid scenario")

	// Artifact errors
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrArtifactInvalid  = errors.New("artifact invalid")

	// Inference errors
	ErrInference = errors.New("inference failed")

	// Storage errors
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageReadFailed       = errors.New("storage read failed")
	ErrStorageWriteFailed      = errors.New("storage write failed")
	ErrCacheMiss               = errors.New("cache miss")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Rate limiting errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeData          ErrorType = "data"
	ErrorTypeArtifact      ErrorType = "artifact"
	ErrorTypeInference     ErrorType = "inference"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeInternal      ErrorType = "internal"
)

// Error codes
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidScenario     = "INVALID_SCENARIO"
	CodeEmptyInput          = "EMPTY_INPUT"
	CodeInsufficientHistory = "INSUFFICIENT_HISTORY"
	CodeNoDataForProduct    = "NO_DATA_FOR_PRODUCT"
	CodeArtifactNotFound    = "ARTIFACT_NOT_FOUND"
	CodeArtifactInvalid     = "ARTIFACT_INVALID"
	CodeInferenceFailed     = "INFERENCE_FAILED"
	CodeConnectionFailed    = "CONNECTION_FAILED"
	CodeReadFailed          = "READ_FAILED"
	CodeWriteFailed         = "WRITE_FAILED"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeInternalError       = "INTERNAL_ERROR"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Cause:      err,
		Retryable:  isRetryable(err),
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return WrapError(ErrInvalidInputData, ErrorTypeValidation, code, message)
}

// NewScenarioError reports an unknown promotion or holiday class.
func NewScenarioError(message string) *AppError {
	return WrapError(ErrInvalidScenario, ErrorTypeValidation, CodeInvalidScenario, message)
}

// NewEmptyInputError reports a product whose filtered rows are all gone.
func NewEmptyInputError(product string) *AppError {
	return WrapError(ErrEmptyInput, ErrorTypeData, CodeEmptyInput, "no valid rows to aggregate").
		WithContext("product", product)
}

// NewInsufficientHistoryError reports a series too short for one full feature vector.
func NewInsufficientHistoryError(periods, required int) *AppError {
	return WrapError(ErrInsufficientHistory, ErrorTypeData, CodeInsufficientHistory,
		fmt.Sprintf("%d periods available, %d required", periods, required))
}

// NewNoDataForProductError reports a product absent from the dataset.
func NewNoDataForProductError(product string) *AppError {
	return WrapError(ErrNoDataForProduct, ErrorTypeData, CodeNoDataForProduct,
		fmt.Sprintf("no data for product %q", product)).
		WithContext("product", product)
}

// NewArtifactNotFoundError reports a missing model or scaler file.
func NewArtifactNotFoundError(path string) *AppError {
	return WrapError(ErrArtifactNotFound, ErrorTypeArtifact, CodeArtifactNotFound,
		fmt.Sprintf("artifact not found: %s", path)).
		WithContext("path", path)
}

// NewArtifactInvalidError reports an artifact that exists but cannot be decoded.
func NewArtifactInvalidError(path string, cause error) *AppError {
	e := WrapError(ErrArtifactInvalid, ErrorTypeArtifact, CodeArtifactInvalid,
		fmt.Sprintf("artifact invalid: %s", path)).
		WithContext("path", path)
	if cause != nil {
		e.Cause = fmt.Errorf("%w: %w", ErrArtifactInvalid, cause)
	}
	return e
}

// NewInferenceError wraps a model call failure.
func NewInferenceError(step int, cause error) *AppError {
	e := WrapError(ErrInference, ErrorTypeInference, CodeInferenceFailed,
		fmt.Sprintf("model inference failed at step %d", step)).
		WithContext("step", step)
	if cause != nil {
		e.Cause = fmt.Errorf("%w: %w", ErrInference, cause)
	}
	return e
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	var cause error
	switch code {
	case CodeConnectionFailed:
		cause = ErrStorageConnectionFailed
	case CodeReadFailed:
		cause = ErrStorageReadFailed
	case CodeWriteFailed:
		cause = ErrStorageWriteFailed
	}
	if cause == nil {
		return NewAppError(ErrorTypeStorage, code, message)
	}
	return WrapError(cause, ErrorTypeStorage, code, message)
}

// WrapStorageError wraps a driver or OS error. Both err and the storage
// sentinel for code stay in the chain.
func WrapStorageError(err error, code, message string) *AppError {
	e := NewStorageError(code, message)
	if err == nil {
		return e
	}
	if e.Cause != nil {
		e.Cause = fmt.Errorf("%w: %w", e.Cause, err)
	} else {
		e.Cause = err
	}
	e.Retryable = isRetryable(e.Cause)
	return e
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string) *AppError {
	return WrapError(ErrInvalidConfiguration, ErrorTypeConfiguration, CodeInvalidConfig, message)
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Code:       CodeRateLimitExceeded,
		Message:    message,
		Cause:      ErrRateLimitExceeded,
		Retryable:  true,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       CodeInternalError,
		Message:    message,
		Cause:      ErrInternal,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// HTTPStatusOf returns the HTTP status for any error, defaulting to 500.
func HTTPStatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsFatal reports whether err must abort a multi-product run instead of
// being skipped.
func IsFatal(err error) bool {
	return errors.Is(err, ErrArtifactNotFound) || errors.Is(err, ErrArtifactInvalid)
}

// getDefaultHTTPStatus returns the default HTTP status for an error type
func getDefaultHTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeData:
		return http.StatusUnprocessableEntity
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeArtifact, ErrorTypeConfiguration:
		return http.StatusServiceUnavailable
	case ErrorTypeStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// isRetryable determines if an error is retryable
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrStorageConnectionFailed):
		return true
	case errors.Is(err, ErrRateLimitExceeded):
		return true
	default:
		return false
	}
}

// ErrorResponse represents an error response for APIs
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
