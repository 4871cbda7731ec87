package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Model gateway errors
	ErrorTransportFailure         ErrorCode = "TRANSPORT_FAILURE"
	ErrorMalformedModelResponse   ErrorCode = "MALFORMED_MODEL_RESPONSE"
	ErrorModelUnavailable         ErrorCode = "MODEL_UNAVAILABLE"
	ErrorStandardizationAmbiguous ErrorCode = "STANDARDIZATION_AMBIGUOUS"

	// Document errors
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrorOCRFailed         ErrorCode = "OCR_FAILED"
	ErrorExtractionFailed  ErrorCode = "EXTRACTION_FAILED"
	ErrorEmptyExtraction   ErrorCode = "EMPTY_EXTRACTION"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// DocumentStatus is the operator-visible outcome recorded per source document
type DocumentStatus string

const (
	StatusProcessed         DocumentStatus = "PROCESSED"
	StatusOCRError          DocumentStatus = "OCR_ERROR"
	StatusExtractionError   DocumentStatus = "EXTRACTION_ERROR"
	StatusEmptyExtraction   DocumentStatus = "EMPTY_EXTRACTION"
	StatusUnsupportedFormat DocumentStatus = "UNSUPPORTED_FORMAT"
	StatusUnknownError      DocumentStatus = "UNKNOWN_ERROR"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Is matches any ProcessingError carrying the same code, so callers can test
// against the sentinels below with errors.Is.
func (e *ProcessingError) Is(target error) bool {
	var other *ProcessingError
	if !stderrors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Sentinels for errors.Is checks
var (
	ErrTransportFailure       = &ProcessingError{Code: ErrorTransportFailure}
	ErrMalformedModelResponse = &ProcessingError{Code: ErrorMalformedModelResponse}
	ErrModelUnavailable       = &ProcessingError{Code: ErrorModelUnavailable}
	ErrUnsupportedFormat      = &ProcessingError{Code: ErrorUnsupportedFormat}
	ErrOCRFailed              = &ProcessingError{Code: ErrorOCRFailed}
	ErrExtractionFailed       = &ProcessingError{Code: ErrorExtractionFailed}
	ErrEmptyExtraction        = &ProcessingError{Code: ErrorEmptyExtraction}
)

// Factory functions for common errors

func NewTransportError(operation string, statusCode int, cause error) *ProcessingError {
	details := map[string]interface{}{
		"operation": operation,
	}
	if statusCode > 0 {
		details["status_code"] = statusCode
	}
	return &ProcessingError{
		Code:      ErrorTransportFailure,
		Message:   fmt.Sprintf("Transport failure during %s", operation),
		Timestamp: time.Now(),
		Details:   details,
		Cause:     cause,
	}
}

func NewMalformedResponseError(reason string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorMalformedModelResponse,
		Message:   fmt.Sprintf("Malformed model response: %s", reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"reason": reason,
		},
		Cause: cause,
	}
}

func NewModelUnavailableError(model string, attempts int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorModelUnavailable,
		Message:   fmt.Sprintf("Model %s unavailable after %d attempts", model, attempts),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"model":    model,
			"attempts": attempts,
		},
		Cause: cause,
	}
}

func NewStandardizationAmbiguousError(entityType, value, answer string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStandardizationAmbiguous,
		Message:   fmt.Sprintf("Model answer %q for %s value %q is not an allowed choice", answer, entityType, value),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"entity_type": entityType,
			"value":       value,
			"answer":      answer,
		},
	}
}

func NewUnsupportedFormatError(jobID string, mimeType string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported file format: %s", mimeType),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
	}
}

func NewOCRFailedError(jobID string, engine string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed with engine: %s", engine),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_engine": engine,
		},
		Cause: cause,
	}
}

func NewExtractionFailedError(jobID string, pages int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorExtractionFailed,
		Message:   fmt.Sprintf("Model extraction failed on all %d pages", pages),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"pages": pages,
		},
	}
}

func NewEmptyExtractionError(jobID string, levels int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEmptyExtraction,
		Message:   "No textbook extracted from document",
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"levels": levels,
		},
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store processing results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// CodeOf returns the code of the first ProcessingError in the chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsRetryable reports whether the model gateway should try again.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrorTransportFailure, ErrorMalformedModelResponse:
		return true
	}
	return false
}

// IsTerminal reports whether re-running the document cannot change its outcome.
func IsTerminal(err error) bool {
	switch CodeOf(err) {
	case ErrorUnsupportedFormat, ErrorEmptyExtraction, ErrorExtractionFailed:
		return true
	}
	return false
}

// StatusForError maps a document failure onto the status recorded for operators.
func StatusForError(err error) DocumentStatus {
	if err == nil {
		return StatusProcessed
	}
	switch CodeOf(err) {
	case ErrorOCRFailed:
		return StatusOCRError
	case ErrorExtractionFailed, ErrorModelUnavailable:
		return StatusExtractionError
	case ErrorEmptyExtraction:
		return StatusEmptyExtraction
	case ErrorUnsupportedFormat:
		return StatusUnsupportedFormat
	}
	return StatusUnknownError
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}
	if e.JobID != "" {
		result["job_id"] = e.JobID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
