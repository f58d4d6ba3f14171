package domain

import "errors"

var (
	ErrInvalidBackground  = errors.New("invalid background")
	ErrInvalidVariant     = errors.New("invalid variant")
	ErrInvalidGender      = errors.New("invalid gender")
	ErrNoFaceDetected     = errors.New("no face detected")
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	ErrBackendRejected    = errors.New("generation backend rejected request")
	ErrInsufficientImages = errors.New("insufficient generated images for frame slots")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrNotFound           = errors.New("record not found")
)

// Kind classifies a job failure by the stage that produced it. The queue
// consumer persists it in the error record and it decides nothing else:
// every kind ends the job the same way (reject without requeue).
type Kind string

const (
	KindDownloadFail   Kind = "DownloadFail"
	KindPreprocessFail Kind = "PreprocessFail"
	KindBuildFail      Kind = "BuildFail"
	KindGenerateFail   Kind = "GenerateFail"
	KindCompositeFail  Kind = "CompositeFail"
	KindUploadFail     Kind = "UploadFail"
	KindMalformed      Kind = "MalformedMessage"
	KindUnknown        Kind = "UnknownError"
)

// Failure pairs a stage classification with the underlying error.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Fail wraps err with a stage classification.
func Fail(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// ClassifyFailure extracts the Kind from err, falling back to KindUnknown
// for anything the pipeline did not classify itself.
func ClassifyFailure(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, ErrMalformedMessage) {
		return KindMalformed
	}
	return KindUnknown
}
