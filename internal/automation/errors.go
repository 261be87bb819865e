package automation

import (
	"errors"
	"fmt"
)

// Kind names a failure class of the submission pipeline.
type Kind string

const (
	KindSessionInit           Kind = "SessionInitError"
	KindFieldNotFound         Kind = "FieldNotFoundError"
	KindSubmitControlNotFound Kind = "SubmitControlNotFoundError"
	KindResetControlNotFound  Kind = "ResetControlNotFoundError"
	// KindAckTimeout is only raised when ack timeouts are not tolerated.
	KindAckTimeout Kind = "AckTimeoutError"
	// KindAborted covers cancellation of the batch context (process shutdown).
	KindAborted Kind = "BatchAbortedError"

	KindCategorySelection Kind = "CategorySelectionWarning"
	KindAckTimeoutWarning Kind = "AckTimeoutWarning"
	KindPersistence       Kind = "PersistenceError"
)

// Fatal reports whether an error of this kind ends the batch.
func (k Kind) Fatal() bool {
	switch k {
	case KindCategorySelection, KindAckTimeoutWarning, KindPersistence:
		return false
	default:
		return true
	}
}

// StepError is a failure of one step of the submission cycle.
type StepError struct {
	Kind     Kind
	RecordID string
	Step     string
	Err      error
}

func (e *StepError) Error() string {
	msg := string(e.Kind)
	if e.RecordID != "" {
		msg += fmt.Sprintf(": record %s", e.RecordID)
	}
	if e.Step != "" {
		msg += fmt.Sprintf(": %s", e.Step)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// KindOf extracts the Kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IsFatal reports whether err should end the batch. Errors without a kind are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	k, ok := KindOf(err)
	return !ok || k.Fatal()
}
