package domain

import "errors"

var (
	// ErrParticipantNotFound is returned when no participant record exists for an id.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrCatalogUnavailable means the question catalog could not be loaded; the engine must not start.
	ErrCatalogUnavailable = errors.New("question catalog unavailable")
	// ErrInvalidCatalog indicates loaded questions break numbering or scene bounds.
	ErrInvalidCatalog = errors.New("invalid question catalog")
	// ErrInvalidInput rejects an empty or non-numeric answer before evaluation.
	ErrInvalidInput = errors.New("answer must be a finite number")
	// ErrStream is matched by every playback failure.
	ErrStream = errors.New("video stream unavailable")
	// ErrStreamHalted rejects input while progression waits for the stream to recover.
	ErrStreamHalted = errors.New("progression halted until the video stream recovers")
	// ErrCommitFailure wraps store errors hit while writing a score or attempt.
	ErrCommitFailure = errors.New("could not save result")
	// ErrDuplicateAttempt marks a retried attempt-log write. It is tolerated, never fatal.
	ErrDuplicateAttempt = errors.New("duplicate answer attempt")
	// ErrBusy rejects input while a resolution or cooldown is in flight.
	ErrBusy = errors.New("previous answer is still being processed")
	// ErrNoOpenQuestion rejects answers when no question panel is open.
	ErrNoOpenQuestion = errors.New("no question is open")
	// ErrCompleted rejects input after the last question was resolved.
	ErrCompleted = errors.New("competition completed")
)
