package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"ErrConnectionFailed is retryable", ErrConnectionFailed, true},
		{"ErrTimeout is retryable", ErrTimeout, true},
		{"ErrRateLimited is retryable", ErrRateLimited, true},
		{"ErrDeadlock is retryable", ErrDeadlock, true},
		{"ErrBrokerUnavailable is retryable", ErrBrokerUnavailable, true},
		{"wrapped retryable error is retryable", fmt.Errorf("operation failed: %w", ErrTimeout), true},
		{"ErrUnknownEntityKey is not retryable", ErrUnknownEntityKey, false},
		{"ErrInvalidConfiguration is not retryable", ErrInvalidConfiguration, false},
		{"custom error is not retryable", errors.New("custom error"), false},
		{"nil error is not retryable", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsInputError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"ErrMissingEnvelopeField is input error", ErrMissingEnvelopeField, true},
		{"ErrUnknownEntityKey is input error", ErrUnknownEntityKey, true},
		{"ErrMalformedEntityID is input error", ErrMalformedEntityID, true},
		{"ErrInvalidTaskKind is input error", ErrInvalidTaskKind, true},
		{"wrapped input error is detected", fmt.Errorf("validation: %w", ErrMissingEnvelopeField), true},
		{"ErrTimeout is not an input error", ErrTimeout, false},
		{"ErrInvalidConfiguration is not an input error", ErrInvalidConfiguration, false},
		{"custom error is not an input error", errors.New("something else"), false},
		{"nil error is not an input error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInputError(tt.err); got != tt.expected {
				t.Errorf("IsInputError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsIntegrityError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"ErrEntityUpsertFailed is integrity error", ErrEntityUpsertFailed, true},
		{"ErrTaskRowConflict is integrity error", ErrTaskRowConflict, true},
		{"wrapped integrity error is detected", fmt.Errorf("upsert: %w", ErrEntityUpsertFailed), true},
		{"ErrTimeout is not integrity error", ErrTimeout, false},
		{"nil error is not integrity error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIntegrityError(tt.err); got != tt.expected {
				t.Errorf("IsIntegrityError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsConfigurationError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"ErrInvalidConfiguration is configuration error", ErrInvalidConfiguration, true},
		{"ErrMissingConfiguration is configuration error", ErrMissingConfiguration, true},
		{"wrapped configuration error is detected", fmt.Errorf("config validation failed: %w", ErrInvalidConfiguration), true},
		{"ErrPortOutOfRange is not checked as configuration error", ErrPortOutOfRange, false},
		{"ErrUnknownEntityKey is not configuration error", ErrUnknownEntityKey, false},
		{"custom error is not configuration error", errors.New("random error"), false},
		{"nil error is not configuration error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConfigurationError(tt.err); got != tt.expected {
				t.Errorf("IsConfigurationError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := ErrUnknownEntityKey
	wrappedOnce := fmt.Errorf("failed to resolve entity key 'x': %w", baseErr)
	wrappedTwice := fmt.Errorf("operation failed: %w", wrappedOnce)

	if !IsInputError(baseErr) {
		t.Error("Base error should be detected as input error")
	}
	if !IsInputError(wrappedOnce) {
		t.Error("Once-wrapped error should be detected as input error")
	}
	if !IsInputError(wrappedTwice) {
		t.Error("Twice-wrapped error should be detected as input error")
	}
	if !errors.Is(wrappedTwice, ErrUnknownEntityKey) {
		t.Error("errors.Is should work through multiple wrapping layers")
	}
}

func TestErrorCombinations(t *testing.T) {
	if !IsRetryable(ErrBrokerUnavailable) {
		t.Error("ErrBrokerUnavailable should be retryable")
	}
	if IsInputError(ErrBrokerUnavailable) {
		t.Error("ErrBrokerUnavailable should not be classified as input error")
	}
	if IsConfigurationError(ErrTimeout) {
		t.Error("ErrTimeout should not be a configuration error")
	}
	if IsIntegrityError(ErrInvalidConfiguration) {
		t.Error("ErrInvalidConfiguration should not be an integrity error")
	}
}

func BenchmarkIsRetryable(b *testing.B) {
	err := fmt.Errorf("wrapped: %w", ErrTimeout)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = IsRetryable(err)
	}
}

func BenchmarkIsInputError(b *testing.B) {
	err := fmt.Errorf("wrapped: %w", ErrUnknownEntityKey)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = IsInputError(err)
	}
}

func BenchmarkIsConfigurationError(b *testing.B) {
	err := fmt.Errorf("wrapped: %w", ErrInvalidConfiguration)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = IsConfigurationError(err)
	}
}
