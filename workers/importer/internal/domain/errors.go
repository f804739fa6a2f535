package domain

import (
	"errors"
	"fmt"
)

// Error codes for the per-record taxonomy. Skip codes are not failures.
const (
	ErrCodeMissingID      = "MISSING_ID"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeNoPhotos       = "NO_PHOTOS"
	ErrCodeAlreadyInDB    = "ALREADY_IN_DB"
	ErrCodeDownloadFailed = "DOWNLOAD_FAILED"
	ErrCodeUploadFailed   = "UPLOAD_FAILED"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeUpsertFailed   = "UPSERT_FAILED"
	ErrCodeInvalidURL     = "INVALID_URL"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code      string
	Message   string
	Err       error
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error, retryable bool) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Common domain errors
var (
	ErrInvalidURL = &DomainError{
		Code:      ErrCodeInvalidURL,
		Message:   "The asset URL is not a valid http(s) URL",
		Retryable: false,
	}

	ErrMissingID = &DomainError{
		Code:      ErrCodeMissingID,
		Message:   "Record has no ad archive id",
		Retryable: false,
	}
)
