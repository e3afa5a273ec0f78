package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a persistence error with a structured error code.
//
// Codes have the form SV-<AREA>-<NNNN>; two DomainErrors compare equal under
// errors.Is when their codes match, regardless of details or cause.
type DomainError struct {
	Code    string // Error code (e.g., "SV-ENV-4222")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// Wrapf wraps cause and attaches formatted details.
func (e *DomainError) Wrapf(cause error, format string, args ...any) *DomainError {
	return e.WithCause(cause).WithDetails(fmt.Sprintf(format, args...))
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Storage Errors (STOR)
// ============================================================================

var (
	// ErrBackendUnavailable indicates a slot backend get/set/remove failed.
	ErrBackendUnavailable = NewDomainError("SV-STOR-5030", "storage backend unavailable")
)

// ============================================================================
// Envelope Errors (ENV)
//
// Every error in this group is recoverable during load by a single retry
// against the backup slot.
// ============================================================================

var (
	// ErrDecompressionFailure indicates a blob could not be unpacked.
	ErrDecompressionFailure = NewDomainError("SV-ENV-4220", "envelope decompression failed")

	// ErrParseFailure indicates malformed envelope text or payload tree.
	ErrParseFailure = NewDomainError("SV-ENV-4221", "envelope parse failed")

	// ErrDigestMismatch indicates the payload does not match its digest.
	ErrDigestMismatch = NewDomainError("SV-ENV-4222", "envelope digest mismatch")

	// ErrUnsupportedVersion indicates an envelope from a newer schema.
	ErrUnsupportedVersion = NewDomainError("SV-ENV-4223", "unsupported envelope version")
)

// ============================================================================
// Partition Errors (PART)
// ============================================================================

var (
	// ErrPartitionApplyFailure indicates a partition rejected its decoded slice.
	ErrPartitionApplyFailure = NewDomainError("SV-PART-4224", "partition apply failed")

	// ErrPartitionSnapshotFailure indicates a partition could not produce a snapshot.
	ErrPartitionSnapshotFailure = NewDomainError("SV-PART-5000", "partition snapshot failed")
)

// ============================================================================
// Save Errors (SAVE)
// ============================================================================

var (
	// ErrNoSave indicates the requested slot holds no envelope.
	ErrNoSave = NewDomainError("SV-SAVE-4040", "no save found")

	// ErrBusy indicates another save/load operation is in flight.
	ErrBusy = NewDomainError("SV-SAVE-4290", "save manager busy")
)

// ============================================================================
// Configuration Errors (CONF)
// ============================================================================

var (
	// ErrInvalidConfig indicates invalid construction options or configuration.
	ErrInvalidConfig = NewDomainError("SV-CONF-4000", "invalid configuration")
)

// IsRecoverable reports whether err is an envelope error that load recovers
// from by retrying once against the backup slot.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrDecompressionFailure) ||
		errors.Is(err, ErrParseFailure) ||
		errors.Is(err, ErrDigestMismatch) ||
		errors.Is(err, ErrUnsupportedVersion)
}

// kindNames maps error codes to their short kind names.
var kindNames = map[string]string{
	ErrBackendUnavailable.Code:       "BackendUnavailable",
	ErrDecompressionFailure.Code:     "DecompressionFailure",
	ErrParseFailure.Code:             "ParseFailure",
	ErrDigestMismatch.Code:           "DigestMismatch",
	ErrUnsupportedVersion.Code:       "UnsupportedVersion",
	ErrPartitionApplyFailure.Code:    "PartitionApplyFailure",
	ErrPartitionSnapshotFailure.Code: "PartitionSnapshotFailure",
	ErrNoSave.Code:                   "NoSave",
	ErrBusy.Code:                     "Busy",
	ErrInvalidConfig.Code:            "InvalidConfig",
}

// Kind returns the short kind name of err ("DigestMismatch", ...), "" for
// nil and "Unknown" for errors outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if name, ok := kindNames[GetErrorCode(err)]; ok {
		return name
	}
	return "Unknown"
}
