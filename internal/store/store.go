// Package store persists the submission ledger: one row per webhook
// submission with its terminal outcome.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/lead-webhook/internal/model"
)

const defaultListLimit = 100

// SubmissionFilter specifies criteria for listing ledger entries.
type SubmissionFilter struct {
	Outcome model.Outcome `json:"outcome,omitempty"`
	Limit   int           `json:"limit,omitempty"`
	Offset  int           `json:"offset,omitempty"`
}

// OutcomeCount is one row of the ledger summary.
type OutcomeCount struct {
	Outcome model.Outcome `json:"outcome"`
	Count   int           `json:"count"`
}

// Store defines the persistence interface for the submission ledger.
type Store interface {
	RecordSubmission(ctx context.Context, entry *model.SubmissionLog) error
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.SubmissionLog, error)
	CountByOutcome(ctx context.Context) ([]OutcomeCount, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// prepare fills the generated columns of an entry before insert.
func prepare(entry *model.SubmissionLog) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}

func listLimit(filter SubmissionFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}
