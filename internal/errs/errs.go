package errs

import "errors"

// Domain sentinel errors, mapped to HTTP codes in handlers and to
// drop-or-log decisions in the websocket dispatch loop.
var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionFinished         = errors.New("session already finished")
	ErrRoomClosed              = errors.New("room closed")
	ErrNotAMember              = errors.New("not a member of this room")
	ErrStaleWrite              = errors.New("stale document revision")
	ErrDuplicateGeneration     = errors.New("generation already in flight")
	ErrSignalTargetUnreachable = errors.New("signaling target not reachable")
	ErrProducerFailure         = errors.New("ai producer failure")
	ErrNotInterviewSession     = errors.New("not an ai interview session")
)
