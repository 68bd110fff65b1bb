package battle

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ValidationError.
type ErrorKind string

const (
	KindStaleVersion    ErrorKind = "stale_version"
	KindWrongPhase      ErrorKind = "wrong_phase"
	KindIllegalAction   ErrorKind = "illegal_action"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindNotParticipant  ErrorKind = "not_participant"
	KindInvalidTeam     ErrorKind = "invalid_team"
	KindInvalidArgument ErrorKind = "invalid_argument"
)

// ValidationError rejects a request synchronously. No state was mutated and
// the caller should retry with fresh state.
type ValidationError struct {
	Kind ErrorKind
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Invalid builds a ValidationError.
func Invalid(kind ErrorKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a ValidationError of kind.
func IsKind(err error, kind ErrorKind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == kind
}

// ErrConcurrencyConflict is returned when a guarded transition lost the race
// to another invocation. Callers treat it as a silent no-op.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ErrBattleNotFound is returned when no meta exists for a battle id.
var ErrBattleNotFound = errors.New("battle not found")

// ErrBattleExists is returned when creating a battle whose id is taken.
var ErrBattleExists = errors.New("battle already exists")

// ReferenceDataError reports a missing species, move, ability or item entry.
type ReferenceDataError struct {
	Kind string
	ID   string
}

func (e *ReferenceDataError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.ID)
}
