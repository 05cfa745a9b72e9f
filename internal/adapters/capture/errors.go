package capture

import "errors"

// ErrNotDirectory is returned when a frames path is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Capture session errors.
var (
	ErrSessionNotFound  = errors.New("capture session not found")
	ErrTooManySessions  = errors.New("too many capture sessions")
	ErrSessionFinished  = errors.New("capture session finished")
	ErrSessionPending   = errors.New("capture session still running")
	ErrFrameRejected    = errors.New("frame rejected: buffer full")
	ErrSessionsShutdown = errors.New("capture sessions shut down")
)
