// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/askhr/internal/domain"
)

// Ledger persists an audit trail of leave submissions. It is not chat state:
// sessions and histories stay in memory.
type Ledger interface {
	// RecordSubmission inserts a submission, assigning ID and timestamps when unset.
	RecordSubmission(ctx context.Context, sub *domain.Submission) error

	// UnresolvedUncertain returns uncertain submissions for a worker that have
	// not been followed by a fresh date check.
	UnresolvedUncertain(ctx context.Context, workerID string) ([]*domain.Submission, error)

	// MarkRequeried resolves uncertain submissions whose whole range lies in
	// [start, end].
	MarkRequeried(ctx context.Context, workerID, start, end string) (int64, error)

	// RecentSubmissions returns the newest submissions, newest first.
	RecentSubmissions(ctx context.Context, limit int) ([]*domain.Submission, error)

	// Cleanup removes rows older than retention.
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
