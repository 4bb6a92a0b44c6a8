package sim

import (
	"errors"
	"fmt"
)

// ErrUndefinedArithmetic is returned when an arithmetic operation on times or
// durations has no defined result (infinity minus infinity).
var ErrUndefinedArithmetic = errors.New("undefined arithmetic: infinity minus infinity")

// ErrFixpointNotReached is returned when fixpoint variable initialisation
// stops making progress or exceeds its iteration bound.
var ErrFixpointNotReached = errors.New("variable initialisation did not reach a fixpoint")

// ErrRunAborted is returned by every Simulator operation once a contract
// violation has terminated the run.
var ErrRunAborted = errors.New("simulation run aborted by an earlier contract violation")

// ContractViolation reports a failed precondition, postcondition or invariant.
// It always indicates a logic defect in a model or in the architecture and is
// never retried. Kernel code raises it by panicking; the Simulator recovers
// it at its public boundary and returns it as an error.
type ContractViolation struct {
	ModelURI  string
	Condition string
}

func (e *ContractViolation) Error() string {
	if e.ModelURI == "" {
		return "contract violation: " + e.Condition
	}
	return fmt.Sprintf("contract violation in %s: %s", e.ModelURI, e.Condition)
}

// ConfigurationError reports a malformed architecture or run configuration
// detected before any step executes.
type ConfigurationError struct {
	ModelURI string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.ModelURI == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error in %s: %s", e.ModelURI, e.Reason)
}

// MissingParameterError is the named condition for a required run parameter
// absent from the supplied run parameters.
type MissingParameterError struct {
	Key string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing run parameter %q", e.Key)
}

// assertf panics with a ContractViolation when cond is false.
func assertf(cond bool, uri string, format string, args ...any) {
	if !cond {
		panic(&ContractViolation{ModelURI: uri, Condition: fmt.Sprintf(format, args...)})
	}
}

// Violation panics with a ContractViolation. Models and events use it to
// fail loudly on illegal transitions.
func Violation(uri string, format string, args ...any) {
	panic(&ContractViolation{ModelURI: uri, Condition: fmt.Sprintf(format, args...)})
}

func configErrorf(uri string, format string, args ...any) error {
	return &ConfigurationError{ModelURI: uri, Reason: fmt.Sprintf(format, args...)}
}

// recoverViolation converts a recovered ContractViolation into *err.
// Any other panic value is re-raised.
func recoverViolation(r any, err *error) {
	if r == nil {
		return
	}
	if cv, ok := r.(*ContractViolation); ok {
		*err = cv
		return
	}
	panic(r)
}
