package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNavigationInProgress = errors.New("session: navigation already in progress")
	ErrSubmitInProgress     = errors.New("session: submission already in progress")
	ErrNotFinalStep         = errors.New("session: submit is only allowed from the final step")
	ErrStepUnreachable      = errors.New("session: step has not been reached yet")
	ErrAlreadySubmitted     = errors.New("session: already submitted")
	ErrClosed               = errors.New("session: closed")
	ErrNoStore              = errors.New("session: no entity store configured")
	ErrNoRefData            = errors.New("session: no reference data provider configured")
	ErrNoOptions            = errors.New("session: field has no option source")
	ErrAttachmentField      = errors.New("session: attachment fields are written with Attach")
	ErrWizardMismatch       = errors.New("session: snapshot belongs to another wizard")
)

// GenericSubmissionMessage is shown when the backend gave no usable reason.
const GenericSubmissionMessage = "could not save your details, please try again"

// SubmissionError wraps a failed store call. The session stays on the final
// step with every value intact, so the call can be retried.
type SubmissionError struct {
	Status  int
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *SubmissionError) Error() string {
	msg := e.UserMessage()
	if e.Status > 0 {
		return fmt.Sprintf("session: submission failed (%d): %s", e.Status, msg)
	}
	return "session: submission failed: " + msg
}

// UserMessage returns the backend message, or GenericSubmissionMessage.
func (e *SubmissionError) UserMessage() string {
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	return GenericSubmissionMessage
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// HydrationError reports that an edit session could not be seeded from its
// entity. It is fatal for the session.
type HydrationError struct {
	EntityID string
	Err      error
}

func (e *HydrationError) Error() string {
	return fmt.Sprintf("session: hydrate entity %q: %v", e.EntityID, e.Err)
}

func (e *HydrationError) Unwrap() error {
	return e.Err
}
