// Package services holds the issue lifecycle: submission, resolution, report
// history, the dashboard and the leaderboard.
package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"civicreport-be/apperrors"
	"civicreport-be/models"
	"civicreport-be/scoring"
	"civicreport-be/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const dashboardQueueSize = 10

// IssueService drives an issue from draft to a terminal status and keeps the
// reporter's XP in step with every transition.
type IssueService struct {
	store       store.Store
	credits     CreditQueue
	logger      *slog.Logger
	solveReward int64
	now         func() time.Time
}

type IssueServiceOption func(*IssueService)

func WithSolveReward(xp int64) IssueServiceOption {
	return func(s *IssueService) { s.solveReward = xp }
}

func WithClock(now func() time.Time) IssueServiceOption {
	return func(s *IssueService) { s.now = now }
}

func NewIssueService(st store.Store, credits CreditQueue, logger *slog.Logger, opts ...IssueServiceOption) *IssueService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &IssueService{
		store:       st,
		credits:     credits,
		logger:      logger,
		solveReward: DefaultSolveXP,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitResult is the persisted issue plus the reporter's balance after the
// reward. Balance is nil when the reward was deferred to reconciliation.
type SubmitResult struct {
	Issue   *models.Issue
	Balance *int64
}

// Submit validates the draft, scores it, stores the issue and credits the
// reporter. No XP is awarded unless the issue is persisted.
func (s *IssueService) Submit(ctx context.Context, reporterID primitive.ObjectID, draft models.IssueDraft) (*SubmitResult, error) {
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.Users().GetByID(ctx, reporterID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrForbidden
		}
		return nil, err
	}

	rating := scoring.Score(models.Severity(draft.Severity), draft.Description)
	issue, err := models.NewIssue(reporterID, draft, rating, s.now())
	if err != nil {
		return nil, err
	}

	balance, err := s.writeWithCredit(ctx, func(ctx context.Context) error {
		return s.store.Issues().Append(ctx, issue)
	}, Credit{UserID: reporterID, IssueID: issue.ID, Delta: SubmitReward, Reason: reasonSubmitted})
	if err != nil {
		s.logger.ErrorContext(ctx, "issue submission failed", "user_id", reporterID.Hex(), "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "issue submitted",
		"issue_id", issue.ID.Hex(), "user_id", reporterID.Hex(),
		"severity", issue.Severity, "priority", issue.PriorityRating)
	return &SubmitResult{Issue: issue, Balance: balance}, nil
}

// ResolveInput is the outcome chosen by the resolving organisation.
type ResolveInput struct {
	Outcome          models.IssueStatus `json:"outcome"`
	SolutionImageURL *string            `json:"solutionImageUrl,omitempty"`
}

// Resolve moves a pending issue to solved or rejected. Only ngo accounts may
// resolve. The reporter earns the solve reward or takes the reject penalty.
func (s *IssueService) Resolve(ctx context.Context, solverID, issueID primitive.ObjectID, in ResolveInput) (*models.Issue, error) {
	if !in.Outcome.Terminal() {
		return nil, apperrors.NewValidationError("outcome")
	}

	solver, err := s.store.Users().GetByID(ctx, solverID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrForbidden
		}
		return nil, err
	}
	if solver.Role != models.RoleNGO {
		return nil, apperrors.ErrForbidden
	}

	current, err := s.store.Issues().Get(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.Pending {
		return nil, apperrors.ErrInvalidTransition
	}

	delta, reason := s.solveReward, reasonSolved
	if in.Outcome == models.Rejected {
		delta, reason = RejectPenalty, reasonRejected
	}

	var resolved *models.Issue
	_, err = s.writeWithCredit(ctx, func(ctx context.Context) error {
		var err error
		resolved, err = s.store.Issues().Resolve(ctx, issueID, store.Resolution{
			Status:           in.Outcome,
			SolverID:         solverID,
			SolutionImageURL: in.SolutionImageURL,
			SolvedAt:         s.now().UTC().Truncate(time.Millisecond),
		})
		return err
	}, Credit{UserID: current.ReporterID, IssueID: issueID, Delta: delta, Reason: reason})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "issue resolved",
		"issue_id", issueID.Hex(), "solver_id", solverID.Hex(), "outcome", in.Outcome, "xp_delta", delta)
	return resolved, nil
}

func (s *IssueService) Get(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	return s.store.Issues().Get(ctx, id)
}

func (s *IssueService) ListByReporter(ctx context.Context, reporterID primitive.ObjectID) ([]models.Issue, error) {
	return s.store.Issues().ListByReporter(ctx, reporterID)
}

// Dashboard is the aggregated view shown to organisations.
type Dashboard struct {
	Counts      map[models.IssueStatus]int64 `json:"counts"`
	Total       int64                        `json:"total"`
	PendingTop  []models.Issue               `json:"pendingQueue"`
	Leaderboard []LeaderboardEntry           `json:"leaderboard"`
}

func (s *IssueService) Dashboard(ctx context.Context) (*Dashboard, error) {
	counts, err := s.store.Issues().CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	full := map[models.IssueStatus]int64{models.Pending: 0, models.Solved: 0, models.Rejected: 0}
	var total int64
	for status, n := range counts {
		full[status] = n
		total += n
	}

	queue, err := s.store.Issues().ListByStatus(ctx, models.Pending, dashboardQueueSize)
	if err != nil {
		return nil, err
	}

	leaders, err := NewLeaderboardService(s.store.Ledger()).TopCitizens(ctx, store.DefaultLeaderboardSize)
	if err != nil {
		return nil, err
	}

	return &Dashboard{Counts: full, Total: total, PendingTop: queue, Leaderboard: leaders}, nil
}

// writeWithCredit runs write and the XP credit as one unit. On a
// transactional store both commit or neither does. Otherwise a failed write
// skips the credit, and a failed credit is queued for the reconciler.
func (s *IssueService) writeWithCredit(ctx context.Context, write func(ctx context.Context) error, credit Credit) (*int64, error) {
	ledger := s.store.Ledger()

	if s.store.Transactional() {
		var balance int64
		err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
			if err := write(ctx); err != nil {
				return err
			}
			var err error
			balance, err = ledger.ApplyDelta(ctx, credit.UserID, credit.Delta)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &balance, nil
	}

	if err := write(ctx); err != nil {
		return nil, err
	}
	balance, err := ledger.ApplyDelta(ctx, credit.UserID, credit.Delta)
	if err == nil {
		return &balance, nil
	}

	s.logger.ErrorContext(ctx, "xp credit failed after write; queued for reconciliation",
		"user_id", credit.UserID.Hex(), "issue_id", credit.IssueID.Hex(),
		"delta", credit.Delta, "reason", credit.Reason, "error", err)
	credit.QueuedAt = s.now().UTC()
	if qerr := s.credits.Push(ctx, credit); qerr != nil {
		s.logger.ErrorContext(ctx, "failed to queue xp credit",
			"user_id", credit.UserID.Hex(), "issue_id", credit.IssueID.Hex(),
			"delta", credit.Delta, "error", qerr)
	}
	return nil, nil
}
