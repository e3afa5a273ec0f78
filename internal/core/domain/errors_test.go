package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("SV-TEST-1000", "test message"),
			expected: "[SV-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("SV-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[SV-TEST-1001] test message: extra info",
		},
		{
			name:     "error with details and cause",
			err:      NewDomainError("SV-TEST-1002", "test message").Wrapf(fmt.Errorf("disk full"), "slot %s", SlotPrimary),
			expected: "[SV-TEST-1002] test message: slot primary: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("SV-TEST-1000", "message 1")
	err2 := NewDomainError("SV-TEST-1000", "message 2")
	err3 := NewDomainError("SV-TEST-1001", "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := ErrBackendUnavailable.WithCause(cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
	if errors.Unwrap(ErrNoSave) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_WithDetailsLeavesOriginal(t *testing.T) {
	withDetails := ErrDigestMismatch.WithDetails("slot=primary")

	if ErrDigestMismatch.Details != "" {
		t.Error("WithDetails should not modify original error")
	}
	if withDetails.Details != "slot=primary" {
		t.Errorf("Details = %q, want %q", withDetails.Details, "slot=primary")
	}
	if !errors.Is(withDetails, ErrDigestMismatch) {
		t.Error("errors.Is should match after WithDetails")
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"domain error", ErrNoSave, "SV-SAVE-4040"},
		{"wrapped domain error", fmt.Errorf("load: %w", ErrParseFailure), "SV-ENV-4221"},
		{"regular error", fmt.Errorf("regular error"), ""},
		{"nil error", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrDecompressionFailure, true},
		{ErrParseFailure.WithDetails("bad json"), true},
		{fmt.Errorf("wrapped: %w", ErrDigestMismatch), true},
		{ErrUnsupportedVersion, true},
		{ErrBackendUnavailable, false},
		{ErrPartitionApplyFailure, false},
		{ErrNoSave, false},
		{fmt.Errorf("plain"), false},
	}

	for _, tt := range tests {
		if got := IsRecoverable(tt.err); got != tt.want {
			t.Errorf("IsRecoverable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrBackendUnavailable.WithCause(fmt.Errorf("io")), "BackendUnavailable"},
		{fmt.Errorf("x: %w", ErrUnsupportedVersion), "UnsupportedVersion"},
		{ErrPartitionApplyFailure, "PartitionApplyFailure"},
		{ErrBusy, "Busy"},
		{fmt.Errorf("plain"), "Unknown"},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err  *DomainError
		code string
	}{
		{ErrBackendUnavailable, "SV-STOR-5030"},
		{ErrDecompressionFailure, "SV-ENV-4220"},
		{ErrParseFailure, "SV-ENV-4221"},
		{ErrDigestMismatch, "SV-ENV-4222"},
		{ErrUnsupportedVersion, "SV-ENV-4223"},
		{ErrPartitionApplyFailure, "SV-PART-4224"},
		{ErrPartitionSnapshotFailure, "SV-PART-5000"},
		{ErrNoSave, "SV-SAVE-4040"},
		{ErrBusy, "SV-SAVE-4290"},
		{ErrInvalidConfig, "SV-CONF-4000"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Error code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Error message should not be empty")
			}
		})
	}
}
