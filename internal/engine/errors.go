package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gantry-io/gantry/internal/ir"
)

// ConfigurationError reports invalid desired-state input: a duplicate
// identity, an unresolved reference, or contradictory ordering constraints.
// It is fatal and aborts the run before any remote call.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Detail
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Detail: fmt.Sprintf(format, args...)}
}

// CyclicDependencyError reports a dependency cycle in the resource graph.
// Path holds the full cycle, starting and ending at the same address.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// ProviderError wraps a failed provider call for one operation.
type ProviderError struct {
	ID        ir.ID
	Op        ir.Op
	Err       error
	Transient bool // retryable throttling or network failure
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// InternalError reports a violated engine invariant, such as a residual
// cycle surviving into scheduling. Never expected in normal operation.
type InternalError struct {
	Detail string
}

func (e *InternalError) Error() string {
	return "internal invariant violation: " + e.Detail
}

// IsFatal reports whether err is a planning-time error that aborts the run
// before any remote call.
func IsFatal(err error) bool {
	var ce *ConfigurationError
	var cy *CyclicDependencyError
	var ie *InternalError
	return errors.As(err, &ce) || errors.As(err, &cy) || errors.As(err, &ie)
}

// IsTransient reports whether err looks like a transient provider failure
// worth retrying: either the provider flagged it, or the message matches a
// known throttling/network pattern.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

var transientPatterns = []string{
	"throttl",
	"rate exceed",
	"too many requests",
	"request limit",
	"service unavailable",
	"internal server error",
	"connection reset",
	"connection refused",
	"timeout",
	"i/o timeout",
	"temporary failure",
}
