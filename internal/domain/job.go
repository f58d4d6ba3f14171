package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Gender enumerates the supported portrait categories. The value selects the
// base prompt and the pose preset used by the generation backend.
type Gender string

const (
	GenderFemale    Gender = "FEMALE"
	GenderMale      Gender = "MALE"
	GenderMaleYoung Gender = "MALE_YOUNG"
)

// Valid reports whether g is a known gender category.
func (g Gender) Valid() bool {
	switch g {
	case GenderFemale, GenderMale, GenderMaleYoung:
		return true
	}
	return false
}

// RenderParams carries per-job generation options. Background, when set,
// restricts the run to a single variant instead of the full enumeration.
type RenderParams struct {
	Gender     Gender   `json:"gender"`
	Background *Variant `json:"background,omitempty"`
}

// JobRequest identifies one unit of work. ID doubles as the idempotency key
// and the storage-path prefix for every artifact the job produces;
// reprocessing the same ID overwrites prior artifacts in place.
type JobRequest struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	UserID      string       `json:"userId"`
	ImagePaths  []string     `json:"imagePaths"`
	RequestedAt string       `json:"requestedAt"`
	Title       string       `json:"title"`
	Param       RenderParams `json:"param"`
}

// UnknownJobID is the sentinel used for failure records when the job id
// could not be recovered from a malformed message.
const UnknownJobID = "unknown"

// DecodeJobRequest parses and validates a queue message body or HTTP request
// payload. The returned request is ready for pipeline execution.
func DecodeJobRequest(body []byte) (*JobRequest, error) {
	var req JobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode job request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks the request invariants shared by the queue and HTTP paths.
func (r *JobRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("job request: %w: missing id", ErrMalformedMessage)
	}
	if len(r.ImagePaths) == 0 {
		return fmt.Errorf("job request %s: %w: no source images", r.ID, ErrMalformedMessage)
	}
	if !r.Param.Gender.Valid() {
		return fmt.Errorf("job request %s: %w: unknown gender %q", r.ID, ErrMalformedMessage, r.Param.Gender)
	}
	if r.Param.Background != nil {
		if _, ok := VariantTable[*r.Param.Background]; !ok {
			return fmt.Errorf("job request %s: %w: unknown background %q", r.ID, ErrMalformedMessage, *r.Param.Background)
		}
	}
	return nil
}

// Variants returns the background variants this job runs over, in
// enumeration order. A background override narrows the run to one variant.
func (r *JobRequest) Variants() []Variant {
	if r.Param.Background != nil {
		return []Variant{*r.Param.Background}
	}
	return AllVariants()
}

// OutputPath names the n-th (1-based) deliverable of a job.
func OutputPath(jobID string, n int) string {
	return fmt.Sprintf("%s/%d.png", jobID, n)
}
