// Package pkg provides shared utilities for the softgadget composite
// device assembler.
//
// This package contains:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for the assembly error taxonomy
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component tag:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentAssembler, "configuration published", "functions", 2)
//
// # Errors
//
// Assembly failures wrap one sentinel kind and the underlying cause, so
// both can be tested:
//
//	if errors.Is(err, pkg.ErrStorageInit) && errors.Is(err, pkg.ErrCapabilityUnavailable) {
//	    // mass storage is not compiled into this environment
//	}
package pkg
