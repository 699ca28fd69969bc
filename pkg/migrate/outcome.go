package migrate

import "time"

// Status classifies a terminal per-contract migration outcome.
type Status string

const (
	// StatusVerified means the target explorer verified the submission.
	StatusVerified Status = "verified"
	// StatusAlreadyVerified means the target already held verified source.
	StatusAlreadyVerified Status = "already_verified"
	// StatusSourceNotFound means the source explorer has no verified
	// source for the address.
	StatusSourceNotFound Status = "source_not_found"
	// StatusExhausted means transient failures or a still-pending job
	// outlived the retry/poll budget.
	StatusExhausted Status = "exhausted"
	// StatusFailed covers definitive failures: rejected submissions,
	// normalization errors, cancellation, skipped fail-fast entries.
	StatusFailed Status = "failed"
)

// Success reports whether the status is a terminal success.
func (s Status) Success() bool {
	return s == StatusVerified || s == StatusAlreadyVerified
}

// Outcome is the terminal result of one contract's migration. Reason is
// empty on success. Polls counts the status polls issued before the
// terminal state; a short-circuited submission never polls.
type Outcome struct {
	Address string
	Status  Status
	Reason  string
	Polls   int
	Elapsed time.Duration
}

// Report aggregates one batch's outcomes in input order: Outcomes[i] always
// belongs to the i-th input address.
type Report struct {
	Outcomes []Outcome
}

// Counts returns the number of verified, already-verified, and failed
// outcomes. Every non-success status counts as failed.
func (r *Report) Counts() (verified, alreadyVerified, failed int) {
	for _, o := range r.Outcomes {
		switch {
		case o.Status == StatusVerified:
			verified++
		case o.Status == StatusAlreadyVerified:
			alreadyVerified++
		default:
			failed++
		}
	}
	return verified, alreadyVerified, failed
}

// HasFailures reports whether any outcome is not a success.
func (r *Report) HasFailures() bool {
	for _, o := range r.Outcomes {
		if !o.Status.Success() {
			return true
		}
	}
	return false
}
