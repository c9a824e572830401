package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room id or code resolves to nothing,
	// or to a room that already finished.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidTransition is returned for illegal lifecycle transitions.
	ErrInvalidTransition = errors.New("invalid room status transition")
	// ErrRoomNotActive rejects answer events while a room is pending or finished.
	ErrRoomNotActive = errors.New("room is not active")
	// ErrInvalidMessage is returned for malformed or misrouted envelopes; it is
	// surfaced to the sender only.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrDuplicateCode signals that code generation exhausted its attempts;
	// callers may retry room creation.
	ErrDuplicateCode = errors.New("could not allocate a unique room code")
	// ErrParticipantNotFound is returned when a client acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
)
