package driver

import "fmt"

// ErrKind classifies a failure per the error taxonomy: each kind carries its
// own cancel/reset/raise policy, decided by the recovery controller.
type ErrKind int

const (
	ErrParse          ErrKind = iota // Stream.Error / Syntax error / CLexer.Error / Invalid_argument
	ErrNoSuchGoal                    // NoSuchGoals
	ErrNotFound                      // Not_found
	ErrUnification                   // Unable to unify / CErrors.UserError / EvaluatedError
	ErrReservedIdent                 // "identifier ... is reserved"
	ErrOverflow                      // Overflowed / Stack overflow, unrecoverable
	ErrAnomaly                       // Anomaly, unrecoverable
	ErrTimeout                       // no response after two interrupts, unrecoverable
	ErrBrokenPipe                    // writer EPIPE, unrecoverable
	ErrBadResponse                   // classifier couldn't match the message shape, unrecoverable
)

func (k ErrKind) String() string {
	switch k {
	case ErrParse:
		return "parse"
	case ErrNoSuchGoal:
		return "no-such-goal"
	case ErrNotFound:
		return "not-found"
	case ErrUnification:
		return "unification"
	case ErrReservedIdent:
		return "reserved-identifier"
	case ErrOverflow:
		return "overflow"
	case ErrAnomaly:
		return "anomaly"
	case ErrTimeout:
		return "timeout"
	case ErrBrokenPipe:
		return "broken-pipe"
	case ErrBadResponse:
		return "bad-response"
	default:
		return "unknown"
	}
}

// Unrecoverable reports whether this error kind forces a full reset+replay
// rather than a plain cancel.
func (k ErrKind) Unrecoverable() bool {
	switch k {
	case ErrOverflow, ErrAnomaly, ErrTimeout, ErrBrokenPipe, ErrBadResponse:
		return true
	default:
		return false
	}
}

// DriverError is the single error type this package raises. Stmt is the
// offending statement text (empty for errors not tied to one), Payload is
// the classifier's raw message text.
type DriverError struct {
	Kind    ErrKind
	Stmt    string
	Payload string
}

func (e *DriverError) Error() string {
	if e.Stmt != "" {
		return fmt.Sprintf("%s: %s (in %q)", e.Kind, e.Payload, e.Stmt)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Payload)
}

// Is supports errors.Is(err, driver.KindError(k)) by comparing Kind.
func (e *DriverError) Is(target error) bool {
	te, ok := target.(*DriverError)
	return ok && te.Stmt == "" && te.Payload == "" && te.Kind == e.Kind
}

// KindError builds a sentinel usable with errors.Is to test only the kind.
func KindError(k ErrKind) error { return &DriverError{Kind: k} }
