package domain

import "time"

// ResponseRecord is the persisted success record for a completed job. The
// response and error collections are disjoint: a job id appears in exactly
// one of the two.
type ResponseRecord struct {
	ID          string
	Email       string
	ImagePaths  []string
	RequestedAt string
	CreatedAt   time.Time
	Title       string
	UserID      string
}

// ErrorRecord is the persisted failure record for a job that did not
// complete. ID is UnknownJobID when the message could not be decoded.
type ErrorRecord struct {
	ID        string
	Error     string
	CreatedAt time.Time
}
