// File: internal/automation/errors.go
package automation

import (
	"fmt"
	"strings"
)

// ErrorKind is the stable failure category surfaced to callers. Every failed
// automation run maps to exactly one kind.
type ErrorKind string

const (
	// KindAutomationFailed covers everything that went wrong while driving
	// the browser: unresolvable elements, driver faults, and classified
	// authentication failures.
	KindAutomationFailed ErrorKind = "AUTOMATION_FAILED"

	// KindAuthCodeMissing means the login flow completed but no authorization
	// code appeared at the redirect within the extraction timeout.
	KindAuthCodeMissing ErrorKind = "AUTH_CODE_MISSING"
)

// FlowError is the terminal error of an automation session.
type FlowError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.cause
}

// newAutomationError wraps an unexpected fault from a browser-driven step.
func newAutomationError(step string, cause error) *FlowError {
	return &FlowError{
		Kind:    KindAutomationFailed,
		Message: fmt.Sprintf("%s: %v", step, cause),
		cause:   cause,
	}
}

// newClassifiedError converts a classified authentication failure into the
// session's terminal error.
func newClassifiedError(c Classification) *FlowError {
	msg := string(c.Outcome)
	if c.Evidence != "" {
		msg = fmt.Sprintf("%s (matched: %q)", c.Outcome, c.Evidence)
	}
	return &FlowError{Kind: KindAutomationFailed, Message: msg}
}

// ElementNotFoundError reports that no candidate selector for a UI role
// resolved to a visible, enabled element.
type ElementNotFoundError struct {
	Role       Role
	Candidates []string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("no usable element for role %q (tried: %s)",
		e.Role, strings.Join(e.Candidates, ", "))
}
