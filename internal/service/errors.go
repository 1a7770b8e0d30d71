package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of them.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal error")
)

var (
	ErrMissingIdentity       = fmt.Errorf("%w: identity is required", ErrInvalidArgument)
	ErrSameParticipant       = fmt.Errorf("%w: participants must be distinct", ErrInvalidArgument)
	ErrEmptyText             = fmt.Errorf("%w: text is required", ErrInvalidArgument)
	ErrInvalidConversationID = fmt.Errorf("%w: malformed conversation id", ErrInvalidArgument)
	ErrEmptyQuery            = fmt.Errorf("%w: search query is required", ErrInvalidArgument)

	ErrUserNotFound         = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrConversationNotFound = fmt.Errorf("%w: conversation not found", ErrNotFound)
	ErrNotParticipant       = fmt.Errorf("%w: identity is not a participant of the conversation", ErrNotFound)
)

func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}
