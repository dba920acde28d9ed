package pkg

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrStringIDsExhausted(t *testing.T) {
	if !errors.Is(ErrStringIDsExhausted, ErrResourceExhausted) {
		t.Errorf("ErrStringIDsExhausted does not wrap ErrResourceExhausted")
	}
}

func TestAssemblyErrorWrapping(t *testing.T) {
	tests := []struct {
		stage error
		cause error
	}{
		{ErrInstanceCreation, ErrCapabilityUnavailable},
		{ErrStorageInit, ErrInvalidConfig},
		{ErrDescriptorAllocation, ErrStringIDsExhausted},
		{ErrAttach, ErrBandwidthExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.stage.Error(), func(t *testing.T) {
			err := fmt.Errorf("%w: step: %w", tt.stage, tt.cause)
			if !errors.Is(err, tt.stage) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.stage)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.cause)
			}
		})
	}
}

func TestSentinelsDistinct(t *testing.T) {
	sentinels := []error{
		ErrResourceExhausted, ErrCapabilityUnavailable, ErrBandwidthExceeded,
		ErrAlreadyAttached, ErrAlreadyReleased, ErrInvalidState,
		ErrInvalidConfig, ErrInstanceBusy, ErrNotConnected,
		ErrRegistryClosed, ErrRegistryOpen, ErrNoHIDFunctions,
		ErrInstanceCreation, ErrStorageInit, ErrDescriptorAllocation, ErrAttach,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v matches %v", a, b)
			}
		}
	}
}
