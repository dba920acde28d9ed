package pkg

import (
	"errors"
	"fmt"
)

// Resource and capability errors reported by the enumeration engine.
var (
	// ErrResourceExhausted indicates an allocation could not be satisfied.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrCapabilityUnavailable indicates the requested function kind is not
	// supported by the environment.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrBandwidthExceeded indicates the controller has no endpoints left
	// for the function being attached.
	ErrBandwidthExceeded = errors.New("bandwidth exceeded")

	// ErrAlreadyAttached indicates the function is already part of a
	// configuration.
	ErrAlreadyAttached = errors.New("function already attached")

	// ErrStringIDsExhausted indicates the device string table is full.
	ErrStringIDsExhausted = fmt.Errorf("%w: string IDs exhausted", ErrResourceExhausted)

	// ErrAlreadyReleased indicates a handle was returned twice.
	ErrAlreadyReleased = errors.New("handle already released")

	// ErrInvalidState indicates the operation is not valid in the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidConfig indicates invalid function or module parameters.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInstanceBusy indicates a function instance can no longer be
	// reconfigured because it has a live function.
	ErrInstanceBusy = errors.New("function instance busy")

	// ErrNotConnected indicates the controller is not attached to a bus.
	ErrNotConnected = errors.New("controller not attached")
)

// Registry errors.
var (
	// ErrRegistryClosed indicates registration was attempted after the
	// registration phase completed.
	ErrRegistryClosed = errors.New("function registry closed")

	// ErrRegistryOpen indicates assembly was attempted before the
	// registration phase completed.
	ErrRegistryOpen = errors.New("function registry still open")
)

// Assembly errors. Every failure surfaced by the configuration assembler
// wraps exactly one of these together with its cause.
var (
	// ErrNoHIDFunctions indicates no HID function was registered.
	ErrNoHIDFunctions = errors.New("no HID functions registered")

	// ErrInstanceCreation indicates a function instance could not be
	// created or configured.
	ErrInstanceCreation = errors.New("function instance creation failed")

	// ErrStorageInit indicates the mass-storage function could not be set up.
	ErrStorageInit = errors.New("mass storage initialization failed")

	// ErrDescriptorAllocation indicates device string IDs or the OTG
	// descriptor could not be allocated.
	ErrDescriptorAllocation = errors.New("descriptor allocation failed")

	// ErrAttach indicates a function could not be attached to the
	// configuration.
	ErrAttach = errors.New("function attach failed")
)
