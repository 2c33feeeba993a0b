package services

import (
	"context"
	"testing"
	"time"

	"civicreport-be/apperrors"
	"civicreport-be/models"
	"civicreport-be/store"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errDown = apperrors.Storage("test", context.DeadlineExceeded)

// -------- test fakes --------

type failingLedger struct {
	store.ScoreLedger
	failures int // remaining failing calls; negative fails forever
	calls    int
}

func (f *failingLedger) ApplyDelta(ctx context.Context, userID primitive.ObjectID, delta int64) (int64, error) {
	f.calls++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return 0, errDown
	}
	return f.ScoreLedger.ApplyDelta(ctx, userID, delta)
}

type failingIssues struct {
	store.IssueStore
}

func (failingIssues) Append(context.Context, *models.Issue) error { return errDown }

type wrappedStore struct {
	store.Store
	issues store.IssueStore
	ledger store.ScoreLedger
}

func (w wrappedStore) Issues() store.IssueStore {
	if w.issues != nil {
		return w.issues
	}
	return w.Store.Issues()
}

func (w wrappedStore) Ledger() store.ScoreLedger {
	if w.ledger != nil {
		return w.ledger
	}
	return w.Store.Ledger()
}

// -------- helpers --------

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newUser(t *testing.T, st store.Store, email string, role models.Role) *models.User {
	t.Helper()
	u, err := models.NewUser(models.Registration{Name: email, Email: email, Password: "secret123", Role: role}, fixedNow)
	require.NoError(t, err)
	require.NoError(t, st.Users().Create(context.Background(), u))
	return u
}

func balanceOf(t *testing.T, st store.Store, id primitive.ObjectID) int64 {
	t.Helper()
	u, err := st.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.XPPoints
}

func draft() models.IssueDraft {
	return models.IssueDraft{
		Title:       "Overflowing bin",
		Description: "The public bin at the bus stop has not been emptied for days.",
		Severity:    "high",
		Location:    "Bus stop 14, Elm Road",
		Verified:    true,
	}
}

func newService(st store.Store, q CreditQueue) *IssueService {
	return NewIssueService(st, q, nil, WithClock(func() time.Time { return fixedNow }), WithSolveReward(30))
}

// txRecorder reports itself as transactional and counts the writes that
// reach the issue store and ledger inside WithTransaction.
type txRecorder struct {
	store.Store
	transactions int
	inTx         map[string]bool
}

type txMarker struct{}

func newTxRecorder(st store.Store) *txRecorder {
	return &txRecorder{Store: st, inTx: map[string]bool{}}
}

func (r *txRecorder) Transactional() bool { return true }

func (r *txRecorder) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.transactions++
	return r.Store.WithTransaction(context.WithValue(ctx, txMarker{}, true), fn)
}

func (r *txRecorder) mark(ctx context.Context, op string) {
	r.inTx[op] = ctx.Value(txMarker{}) == true
}

func (r *txRecorder) Issues() store.IssueStore  { return recordedIssues{r.Store.Issues(), r} }
func (r *txRecorder) Ledger() store.ScoreLedger { return recordedLedger{r.Store.Ledger(), r} }

type recordedIssues struct {
	store.IssueStore
	r *txRecorder
}

func (i recordedIssues) Append(ctx context.Context, issue *models.Issue) error {
	i.r.mark(ctx, "append")
	return i.IssueStore.Append(ctx, issue)
}

func (i recordedIssues) Resolve(ctx context.Context, id primitive.ObjectID, res store.Resolution) (*models.Issue, error) {
	i.r.mark(ctx, "resolve")
	return i.IssueStore.Resolve(ctx, id, res)
}

type recordedLedger struct {
	store.ScoreLedger
	r *txRecorder
}

func (l recordedLedger) ApplyDelta(ctx context.Context, userID primitive.ObjectID, delta int64) (int64, error) {
	l.r.mark(ctx, "applyDelta")
	return l.ScoreLedger.ApplyDelta(ctx, userID, delta)
}
