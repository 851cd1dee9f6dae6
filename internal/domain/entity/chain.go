package entity

import "time"

type Outcome string

const (
	OutcomeSolved           Outcome = "solved"
	OutcomeTimedOut         Outcome = "timed_out"
	OutcomeExhaustedRetries Outcome = "exhausted_retries"
	OutcomeAborted          Outcome = "aborted"
)

// Credential is the opaque pair carried by the inbound request. The agent
// only ever compares it against configured values at admission; answers go
// back through the page form, which needs no credentials.
type Credential struct {
	Email  string
	Secret string
}

// ChainTask is one accepted quiz chain. Deadline is absolute, fixed at
// creation, and never extended.
type ChainTask struct {
	ID         string
	StartURL   string
	Credential Credential
	Deadline   time.Time
}

// ChainResult is the final output of a chain run. LinksCompleted counts
// successful ADVANCE transitions regardless of how the loop ended.
type ChainResult struct {
	Outcome        Outcome
	LinksCompleted int
	LastError      error
}
