package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Failures surfaced by the generation workflow wrap one of
// these.
var (
	ErrValidation  = errors.New("validation error")
	ErrNetwork     = errors.New("network error")
	ErrProtocol    = errors.New("protocol error")
	ErrApplication = errors.New("application error")
)

var (
	ErrEmptyImage    = &UserError{Kind: ErrValidation, Message: "Please select a fridge image first."}
	ErrImageTooLarge = &UserError{Kind: ErrValidation, Message: fmt.Sprintf("Image is too large. Maximum size is %dMB.", MaxImageSize/1024/1024)}
	ErrUnreadable    = &UserError{Kind: ErrValidation, Message: "Failed to read image."}

	ErrUpload   = errors.New("upload failed")
	ErrNotFound = errors.New("not found")
)

// UserError is a classified error whose Error text is fit to show the user.
type UserError struct {
	Kind    error
	Message string
	Cause   error
}

func NewUserError(kind error, message string, cause error) *UserError {
	return &UserError{Kind: kind, Message: message, Cause: cause}
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Message returns the user-facing text carried by err, falling back to
// fallback when err has none.
func Message(err error, fallback string) string {
	var ue *UserError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	return fallback
}

// Classify returns the error kind err belongs to, or nil if it wraps none of
// them.
func Classify(err error) error {
	for _, kind := range []error{ErrValidation, ErrNetwork, ErrProtocol, ErrApplication} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
