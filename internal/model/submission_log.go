package model

import "time"

// Outcome is the terminal state of one submission's CRM interaction.
type Outcome string

const (
	OutcomeCreated             Outcome = "created"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeDuplicateUnresolved Outcome = "duplicate_unresolved"
	OutcomeFailed              Outcome = "failed"

	// Outcomes recorded for submissions rejected before reaching the CRM.
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeInvalid     Outcome = "invalid"
)

// SubmissionLog is one entry of the submission ledger.
type SubmissionLog struct {
	ID            string    `json:"id"`
	ClientIP      string    `json:"client_ip"`
	Email         string    `json:"email,omitempty"`
	ServiceType   string    `json:"service_type,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	ContactID     string    `json:"contact_id,omitempty"`
	OpportunityID string    `json:"opportunity_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
