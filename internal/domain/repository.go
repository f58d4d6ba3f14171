package domain

import "context"

// ResponseRepository persists success records. A job id lands here exactly
// when it does not land in ErrorRepository.
type ResponseRepository interface {
	Create(ctx context.Context, rec *ResponseRecord) error
	GetByID(ctx context.Context, id string) (*ResponseRecord, error)
}

// ErrorRepository persists failure records, keyed by job id (or the
// UnknownJobID sentinel).
type ErrorRepository interface {
	Create(ctx context.Context, rec *ErrorRecord) error
}
