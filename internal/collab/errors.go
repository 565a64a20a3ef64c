package collab

import "errors"

var (
	ErrNotAuthorized     = errors.New("not authorized")
	ErrInvalidTransition = errors.New("status transition not allowed for current progress")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrNotFound          = errors.New("not found")
	ErrEmptyResponse     = errors.New("empty response body")
	ErrInvalidMilestone  = errors.New("invalid milestone")
	ErrInvalidInvitation = errors.New("invalid invitation")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrNotParticipant    = errors.New("user is not a party to this invitation")
	ErrEmptyMessage      = errors.New("message content is required")
)
