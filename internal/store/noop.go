package store

import (
	"context"

	"github.com/sells-group/lead-webhook/internal/model"
)

// Noop discards every entry. It backs the "none" driver.
type Noop struct{}

func (Noop) RecordSubmission(context.Context, *model.SubmissionLog) error { return nil }

func (Noop) ListSubmissions(context.Context, SubmissionFilter) ([]model.SubmissionLog, error) {
	return nil, nil
}

func (Noop) CountByOutcome(context.Context) ([]OutcomeCount, error) { return nil, nil }

func (Noop) Migrate(context.Context) error { return nil }

func (Noop) Close() error { return nil }
