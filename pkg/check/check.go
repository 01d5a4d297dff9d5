// Package check defines the contract between the monitor and the checks it
// runs.
//
// A Check is a named unit that inspects one aspect of the host (reachability
// of a set of addresses, disk usage, DNS answers, ...) and reports its
// findings as a ResultSet: one Entry per observed key, each carrying a
// boolean status, a human readable message and whether a change of that
// status should be announced.
//
// Checks are built from configuration through a Registry of factories, so
// the set of available check types is fixed at startup rather than
// discovered at runtime.
package check

import (
	"context"
	"errors"
)

// FailureKey is the key under which the monitor records a check that could
// not produce a ResultSet (error, panic or timeout).
const FailureKey = "check"

// ErrCheckPanic is wrapped by the monitor when a check panics during Run.
var ErrCheckPanic = errors.New("check panicked")

// Check is the interface that all check types must implement.
type Check interface {
	// Type returns the registered type name of this check (e.g. "ping").
	Type() string

	// Run executes the check and returns its findings.
	// An error is reserved for truly exceptional failures; expected
	// conditions such as an unreachable host are reported as entries
	// with Status false.
	Run(ctx context.Context) (*ResultSet, error)
}

// Descriptor binds a configured Check instance to the name its state is
// tracked under. Two descriptors may share a type but never a name.
type Descriptor struct {
	Name  string
	Check Check
}

// Func adapts an ordinary function to the Check interface.
type Func struct {
	typeName string
	fn       func(context.Context) (*ResultSet, error)
}

// NewFunc creates a Check that calls fn on every Run.
func NewFunc(typeName string, fn func(context.Context) (*ResultSet, error)) *Func {
	return &Func{typeName: typeName, fn: fn}
}

// Type returns the type name given to NewFunc.
func (f *Func) Type() string {
	return f.typeName
}

// Run calls the wrapped function.
func (f *Func) Run(ctx context.Context) (*ResultSet, error) {
	return f.fn(ctx)
}
