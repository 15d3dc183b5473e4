// Package errs defines the engine's fault taxonomy (spec §7): a single
// Fault type carrying a stable code, a human-readable reason, and whatever
// sequence/version/cursor the operator needs to reproduce the failure.
package errs

import "fmt"

// Code is a stable, machine-checkable fault identifier.
type Code string

const (
	InvalidEventForState       Code = "INVALID_EVENT_FOR_STATE"
	ChipConservation           Code = "CHIP_CONSERVATION"
	NegativeBalance            Code = "NEGATIVE_BALANCE"
	SettlementAlreadyProcessed Code = "SETTLEMENT_ALREADY_PROCESSED"
	SessionNotFound            Code = "SESSION_NOT_FOUND"
	InvalidResumeToken         Code = "INVALID_RESUME_TOKEN"
	ResumeTokenExpired         Code = "RESUME_TOKEN_EXPIRED"
	MaxReconnectAttempts       Code = "MAX_RECONNECT_ATTEMPTS_EXCEEDED"
	SessionNotResumable        Code = "SESSION_NOT_RESUMABLE"
	VersionDrift               Code = "VERSION_DRIFT"
	CursorDrift                Code = "CURSOR_DRIFT"
	IntegrityBroken            Code = "INTEGRITY_BROKEN"
	TransactionFailed          Code = "TRANSACTION_FAILED"
)

// Fault is the engine's shared error type, carrying a stable code plus
// the offending coordinate, per spec §7 ("stable code, human-readable reason,
// and, where applicable, the offending version/cursor/sequence"). Errors
// raised by the ledger and snapshot packages are not Faults and reach
// callers unchanged.
type Fault struct {
	Code     Code
	Message  string
	Sequence *uint64
	Version  *uint64
	Cursor   *uint64
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// New creates a bare Fault with no positional detail.
func New(code Code, format string, args ...interface{}) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithSequence attaches the ledger/event sequence number that produced the fault.
func (f *Fault) WithSequence(seq uint64) *Fault {
	f.Sequence = &seq
	return f
}

// WithVersion attaches the snapshot version that produced the fault.
func (f *Fault) WithVersion(v uint64) *Fault {
	f.Version = &v
	return f
}

// WithCursor attaches the timeline cursor that produced the fault.
func (f *Fault) WithCursor(c uint64) *Fault {
	f.Cursor = &c
	return f
}

// Is allows errors.Is(err, errs.New(code, "")) style matching by code alone.
func (f *Fault) Is(target error) bool {
	other, ok := target.(*Fault)
	if !ok {
		return false
	}
	return f.Code == other.Code
}
