package assembler

import (
	"errors"
	"strings"
)

// ErrIncompleteSubmission is matched by every *IncompleteSubmissionError.
var ErrIncompleteSubmission = errors.New("assembler: incomplete submission")

// ErrNoRegistry is returned when Input carries no registry to read from.
var ErrNoRegistry = errors.New("assembler: input has no registry")

// IncompleteSubmissionMessage is the user-facing text for an incomplete
// submission.
const IncompleteSubmissionMessage = "please complete all required fields"

// IncompleteSubmissionError reports required fields that were empty when
// the payload was assembled. Step validation normally prevents this; the
// assembler refuses to build a partial DTO when it slips through.
type IncompleteSubmissionError struct {
	Fields []string
}

func (e *IncompleteSubmissionError) Error() string {
	if len(e.Fields) == 0 {
		return IncompleteSubmissionMessage
	}
	return IncompleteSubmissionMessage + " (missing: " + strings.Join(e.Fields, ", ") + ")"
}

// Message returns the text shown to the user.
func (e *IncompleteSubmissionError) Message() string {
	return IncompleteSubmissionMessage
}

func (e *IncompleteSubmissionError) Is(target error) bool {
	return target == ErrIncompleteSubmission
}
