package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"civicreport-be/apperrors"
	"civicreport-be/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps everything in process. Issues and users are held in
// insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	issues []models.Issue
	users  []models.User

	transactional bool
}

type MemoryOption func(*MemoryStore)

// WithTransactions toggles snapshot/rollback transactions (on by default).
func WithTransactions(enabled bool) MemoryOption {
	return func(s *MemoryStore) { s.transactional = enabled }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{transactional: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Issues() IssueStore  { return memoryIssues{s} }
func (s *MemoryStore) Users() UserStore    { return memoryUsers{s} }
func (s *MemoryStore) Ledger() ScoreLedger { return memoryLedger{s} }

func (s *MemoryStore) Transactional() bool { return s.transactional }

// WithTransaction records an undo step for every write made through ctx and
// replays them in reverse if fn fails. Writes from other callers are left
// alone. A nested call joins the outer transaction.
func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactional {
		return fn(ctx)
	}
	if tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx); ok && tx.store == s {
		return fn(ctx)
	}

	tx := &memoryTx{store: s}
	if err := fn(context.WithValue(ctx, memoryTxKey{}, tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

type memoryTxKey struct{}

type memoryTx struct {
	store *MemoryStore
	mu    sync.Mutex
	undo  []func() // run with s.mu held
}

// onRollback registers undo for the transaction carried by ctx, if any.
// Callers hold s.mu.
func (s *MemoryStore) onRollback(ctx context.Context, undo func()) {
	tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx)
	if !ok || tx.store != s {
		return
	}
	tx.mu.Lock()
	tx.undo = append(tx.undo, undo)
	tx.mu.Unlock()
}

func (s *MemoryStore) issueIndex(id primitive.ObjectID) int {
	return slices.IndexFunc(s.issues, func(i models.Issue) bool { return i.ID == id })
}

func (s *MemoryStore) userIndex(id primitive.ObjectID) int {
	return slices.IndexFunc(s.users, func(u models.User) bool { return u.ID == id })
}

func (s *MemoryStore) Close(context.Context) error { return nil }

// cloneIssue copies the pointer fields so callers cannot mutate stored state.
func cloneIssue(in models.Issue) models.Issue {
	out := in
	if in.SolverID != nil {
		v := *in.SolverID
		out.SolverID = &v
	}
	if in.ImageURL != nil {
		v := *in.ImageURL
		out.ImageURL = &v
	}
	if in.SolutionImageURL != nil {
		v := *in.SolutionImageURL
		out.SolutionImageURL = &v
	}
	if in.SolvedAt != nil {
		v := *in.SolvedAt
		out.SolvedAt = &v
	}
	return out
}

type memoryIssues struct{ s *MemoryStore }

func (m memoryIssues) Append(ctx context.Context, issue *models.Issue) error {
	if err := issue.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperrors.Storage("issues.append", err)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.issues {
		if existing.ID == issue.ID {
			return apperrors.ErrAlreadyExists
		}
	}
	m.s.issues = append(m.s.issues, cloneIssue(*issue))
	id := issue.ID
	m.s.onRollback(ctx, func() {
		if i := m.s.issueIndex(id); i >= 0 {
			m.s.issues = slices.Delete(m.s.issues, i, i+1)
		}
	})
	return nil
}

func (m memoryIssues) Get(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, issue := range m.s.issues {
		if issue.ID == id {
			out := cloneIssue(issue)
			return &out, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m memoryIssues) ListByReporter(ctx context.Context, reporterID primitive.ObjectID) ([]models.Issue, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []models.Issue{}
	for _, issue := range m.s.issues {
		if issue.ReporterID == reporterID {
			out = append(out, cloneIssue(issue))
		}
	}
	return out, nil
}

func (m memoryIssues) ListByStatus(ctx context.Context, status models.IssueStatus, limit int) ([]models.Issue, error) {
	m.s.mu.RLock()
	out := []models.Issue{}
	for _, issue := range m.s.issues {
		if issue.Status == status {
			out = append(out, cloneIssue(issue))
		}
	}
	m.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PriorityRating > out[j].PriorityRating
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memoryIssues) CountByStatus(ctx context.Context) (map[models.IssueStatus]int64, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	counts := make(map[models.IssueStatus]int64)
	for _, issue := range m.s.issues {
		counts[issue.Status]++
	}
	return counts, nil
}

func (m memoryIssues) Resolve(ctx context.Context, id primitive.ObjectID, r Resolution) (*models.Issue, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := range m.s.issues {
		issue := &m.s.issues[i]
		if issue.ID != id {
			continue
		}
		if issue.Status != models.Pending {
			return nil, apperrors.ErrInvalidTransition
		}
		prev := cloneIssue(*issue)
		m.s.onRollback(ctx, func() {
			if i := m.s.issueIndex(id); i >= 0 {
				m.s.issues[i] = prev
			}
		})
		solver := r.SolverID
		solvedAt := r.SolvedAt
		issue.Status = r.Status
		issue.SolverID = &solver
		issue.SolvedAt = &solvedAt
		issue.SolutionImageURL = r.SolutionImageURL
		out := cloneIssue(*issue)
		return &out, nil
	}
	return nil, apperrors.ErrNotFound
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(ctx context.Context, user *models.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.users {
		if existing.Email == user.Email || existing.ID == user.ID {
			return apperrors.ErrAlreadyExists
		}
	}
	m.s.users = append(m.s.users, *user)
	id := user.ID
	m.s.onRollback(ctx, func() {
		if i := m.s.userIndex(id); i >= 0 {
			m.s.users = slices.Delete(m.s.users, i, i+1)
		}
	})
	return nil
}

func (m memoryUsers) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID == id })
}

func (m memoryUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m memoryUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for i := range m.s.users {
		if match(&m.s.users[i]) {
			u := m.s.users[i]
			return &u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

type memoryLedger struct{ s *MemoryStore }

func (m memoryLedger) ApplyDelta(ctx context.Context, userID primitive.ObjectID, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperrors.Storage("users.applyDelta", err)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	i := m.s.userIndex(userID)
	if i < 0 {
		return 0, apperrors.ErrNotFound
	}
	m.s.users[i].XPPoints += delta
	m.s.users[i].UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	balance := m.s.users[i].XPPoints

	// reverse only this delta so concurrent credits survive a rollback
	m.s.onRollback(ctx, func() {
		if i := m.s.userIndex(userID); i >= 0 {
			m.s.users[i].XPPoints -= delta
		}
	})
	return balance, nil
}

func (m memoryLedger) TopCitizens(ctx context.Context, n int) ([]models.User, error) {
	m.s.mu.RLock()
	citizens := []models.User{}
	for _, u := range m.s.users {
		if u.Role == models.RoleCitizen {
			citizens = append(citizens, u)
		}
	}
	m.s.mu.RUnlock()

	sort.SliceStable(citizens, func(i, j int) bool {
		return citizens[i].XPPoints > citizens[j].XPPoints
	})
	if n = leaderboardSize(n); len(citizens) > n {
		citizens = citizens[:n]
	}
	return citizens, nil
}
