package domain

// ModelHandle is the opaque token for a backend-side identity model. It is
// created once per job, reused for every generation call of that job, and
// discarded when the job ends; it is never persisted.
type ModelHandle string
