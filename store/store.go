// Package store is the persistence boundary for issues, users and the XP
// ledger. Drivers return apperrors.ErrNotFound for unknown ids and wrap driver
// failures in *apperrors.StorageError.
package store

import (
	"context"
	"time"

	"civicreport-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultLeaderboardSize is the number of citizens returned when n <= 0.
const DefaultLeaderboardSize = 5

type IssueStore interface {
	Append(ctx context.Context, issue *models.Issue) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Issue, error)
	// ListByReporter returns the reporter's issues in insertion order.
	ListByReporter(ctx context.Context, reporterID primitive.ObjectID) ([]models.Issue, error)
	// ListByStatus returns up to limit issues ordered by priority, highest first.
	ListByStatus(ctx context.Context, status models.IssueStatus, limit int) ([]models.Issue, error)
	CountByStatus(ctx context.Context) (map[models.IssueStatus]int64, error)
	// Resolve moves a pending issue to a terminal status.
	Resolve(ctx context.Context, id primitive.ObjectID, r Resolution) (*models.Issue, error)
}

// Resolution is the terminal state written by the resolution workflow.
type Resolution struct {
	Status           models.IssueStatus
	SolverID         primitive.ObjectID
	SolutionImageURL *string
	SolvedAt         time.Time
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// ScoreLedger owns the per-user XP balance.
type ScoreLedger interface {
	// ApplyDelta atomically adds delta to the user's balance and returns the new balance.
	ApplyDelta(ctx context.Context, userID primitive.ObjectID, delta int64) (int64, error)
	// TopCitizens ranks citizens by XP descending, ties in registration order.
	TopCitizens(ctx context.Context, n int) ([]models.User, error)
}

// Store bundles the collections behind one lifecycle.
type Store interface {
	Issues() IssueStore
	Users() UserStore
	Ledger() ScoreLedger
	// Transactional reports whether WithTransaction commits atomically.
	Transactional() bool
	// WithTransaction runs fn so that all writes made through ctx commit or
	// roll back together. Non-transactional drivers simply call fn.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Close(ctx context.Context) error
}

func leaderboardSize(n int) int {
	if n <= 0 {
		return DefaultLeaderboardSize
	}
	return n
}
