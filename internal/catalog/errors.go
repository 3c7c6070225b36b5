package catalog

import "errors"

// Every failure in the catalog core is classified into exactly one of these.
var (
	// ErrMalformedInput marks input the caller must fix before retrying,
	// e.g. a record without coordinates. Never retried.
	ErrMalformedInput = errors.New("malformed input")

	// ErrTransientProvider marks a provider fetch failure worth retrying
	// (timeout, rate limit, 5xx).
	ErrTransientProvider = errors.New("transient provider error")

	// ErrIngestFailed is surfaced after transient retries are exhausted.
	ErrIngestFailed = errors.New("ingest failed")

	// ErrInvalidQuery marks a caller error in filter/pagination parameters.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound marks an absent external identifier.
	ErrNotFound = errors.New("not found")
)

// PossibleDuplicate is an advisory raised when a newly ingested record looks
// like the same physical place as an existing record under a different
// external id. It never blocks ingestion and is never auto-merged; provider
// identifiers are the only reliable dedup key.
type PossibleDuplicate struct {
	ExternalID      string  `json:"external_id"`
	OtherExternalID string  `json:"other_external_id"`
	DistanceMeters  float64 `json:"distance_meters"`
}
