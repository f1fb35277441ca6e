package attachments

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownField is returned for fields that are not attachment slots.
	ErrUnknownField = errors.New("attachments: unknown attachment field")
	// ErrReleased is returned once the manager has been released.
	ErrReleased = errors.New("attachments: manager released")
)

// Code classifies a rejected file.
type Code string

const (
	CodeTooLarge        Code = "TOO_LARGE"
	CodeUnsupportedType Code = "UNSUPPORTED_TYPE"
)

// Error describes a file the manager refused. The prior attachment of the
// slot, if any, is retained.
type Error struct {
	Field       string
	Code        Code
	Size        int64
	Limit       int64
	ContentType string
	Accept      []string
}

func (e *Error) Error() string {
	switch e.Code {
	case CodeTooLarge:
		return fmt.Sprintf("attachments: %s is %d bytes, limit is %d", e.Field, e.Size, e.Limit)
	case CodeUnsupportedType:
		return fmt.Sprintf("attachments: %s does not accept %s (allowed: %s)", e.Field, e.ContentType, strings.Join(e.Accept, ", "))
	default:
		return "attachments: " + e.Field + " rejected"
	}
}

// Message is the user-facing text for the rejection.
func (e *Error) Message() string {
	switch e.Code {
	case CodeTooLarge:
		return fmt.Sprintf("File must be smaller than %s", humanBytes(e.Limit))
	case CodeUnsupportedType:
		return "File type is not supported"
	default:
		return "File was rejected"
	}
}

// IsCode reports whether err is an attachment rejection with code.
func IsCode(err error, code Code) bool {
	var attErr *Error
	return errors.As(err, &attErr) && attErr.Code == code
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
