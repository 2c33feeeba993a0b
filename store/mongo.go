package store

import (
	"context"
	"errors"
	"time"

	"civicreport-be/apperrors"
	"civicreport-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps issues and users in two collections of one database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	issues *mongo.Collection
	users  *mongo.Collection

	transactional bool
	timeout       time.Duration
}

// NewMongoStore wraps an already connected client. Transactions require a
// replica set; pass transactional=false against a standalone server.
func NewMongoStore(client *mongo.Client, database string, transactional bool, timeout time.Duration) *MongoStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	db := client.Database(database)
	return &MongoStore{
		client:        client,
		db:            db,
		issues:        db.Collection(models.IssuesCollection),
		users:         db.Collection(models.UsersCollection),
		transactional: transactional,
		timeout:       timeout,
	}
}

func (s *MongoStore) Database() *mongo.Database { return s.db }

func (s *MongoStore) Issues() IssueStore  { return mongoIssues{s} }
func (s *MongoStore) Users() UserStore    { return mongoUsers{s} }
func (s *MongoStore) Ledger() ScoreLedger { return mongoLedger{s} }

func (s *MongoStore) Transactional() bool { return s.transactional }

func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactional {
		return fn(ctx)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return apperrors.Storage("session.start", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// withTimeout bounds a single store call. A session context is kept as the
// parent so the call still joins the surrounding transaction.
func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

type mongoIssues struct{ s *MongoStore }

func (m mongoIssues) Append(ctx context.Context, issue *models.Issue) error {
	if err := issue.Validate(); err != nil {
		return err
	}
	ctx, cancel := m.s.withTimeout(ctx)
	defer cancel()

	if _, err := m.s.issues.InsertOne(ctx, issue); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrAlreadyExists
		}
		return apperrors.Storage("issues.insert", err)
	}
	return nil
}

func (m mongoIssues) Get(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	ctx, cancel := m.s.withTimeout(ctx)
	defer cancel()

	var issue models.Issue
	err := m.s.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&issue)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Storage("issues.get", err)
	}
	return &issue, nil
}

func (m mongoIssues) ListByReporter(ctx context.Context, reporterID primitive.ObjectID) ([]models.Issue, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return m.find(ctx, "issues.listByReporter", bson.M{"reporterId": reporterID}, opts)
}

func (m mongoIssues) ListByStatus(ctx context.Context, status models.IssueStatus, limit int) ([]models.Issue, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "priorityRating", Value: -1},
		{Key: "createdAt", Value: 1},
		{Key: "_id", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return m.find(ctx, "issues.listByStatus", bson.M{"status": status}, opts)
}

func (m mongoIssues) find(ctx context.Context, op string, filter bson.M, opts *options.FindOptions) ([]models.Issue, error) {
	ctx, cancel := m.s.withTimeout(ctx)
	defer cancel()

	cursor, err := m.s.issues.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperrors.Storage(op, err)
	}
	defer cursor.Close(ctx)

	issues := []models.Issue{}
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, apperrors.Storage(op, err)
	}
	return issues, nil
}

func (m mongoIssues) CountByStatus(ctx context.Context) (map[models.IssueStatus]int64, error) {
	ctx, cancel := m.s.withTimeout(ctx)
	defer cancel()

	pipeline := []bson.M{
		{
			"$group": bson.M{
				"_id":   "$status",
				"count": bson.M{"$sum": 1},
			},
		},
	}
	cursor, err := m.s.issues.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperrors.Storage("issues.countByStatus", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.IssueStatus `bson:"_id"`
		Count  int64              `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, apperrors.Storage("issues.countByStatus", err)
	}
	counts := make(map[models.IssueStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (m mongoIssues) Resolve(ctx context.Context, id primitive.ObjectID, r Resolution) (*models.Issue, error) {
	ctx, cancel := m.s.withTimeout(ctx)
	defer cancel()

	set := bson.M{
		"status":   r.Status,
		"solverId": r.SolverID,
		"solvedAt": r.SolvedAt.UTC().Truncate(time.Millisecond),
	}
	if r.SolutionImageURL != nil {
		set["solutionImageUrl"] = *r.SolutionImageURL
	}

	var issue models.Issue
	err := m.s.issues.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.Pending},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&issue)
	if err == nil {
		return &issue, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.Storage("issues.resolve", err)
	}

	// no pending match: either unknown or already resolved
	if _, getErr := m.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, apperrors.ErrInvalidTransition
}

type mongoUsers struct{ s *MongoStore }

func (m mongoUsers) Create(ctx context.Context, user *models.User) error {
	ctx, cancel := m.s.withTimeout(ctx)
	defer cancel()

	if _, err := m.s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrAlreadyExists
		}
		return apperrors.Storage("users.insert", err)
	}
	return nil
}

func (m mongoUsers) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m mongoUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findOne(ctx, bson.M{"email": email})
}

func (m mongoUsers) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := m.s.withTimeout(ctx)
	defer cancel()

	var user models.User
	if err := m.s.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Storage("users.find", err)
	}
	return &user, nil
}

type mongoLedger struct{ s *MongoStore }

// ApplyDelta is a single $inc so concurrent credits for one user never lose an update.
func (m mongoLedger) ApplyDelta(ctx context.Context, userID primitive.ObjectID, delta int64) (int64, error) {
	ctx, cancel := m.s.withTimeout(ctx)
	defer cancel()

	var user models.User
	err := m.s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{"xpPoints": delta},
			"$set": bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)},
		},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"xpPoints": 1}),
	).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, apperrors.ErrNotFound
		}
		return 0, apperrors.Storage("users.applyDelta", err)
	}
	return user.XPPoints, nil
}

func (m mongoLedger) TopCitizens(ctx context.Context, n int) ([]models.User, error) {
	ctx, cancel := m.s.withTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{
			{Key: "xpPoints", Value: -1},
			{Key: "createdAt", Value: 1},
			{Key: "_id", Value: 1},
		}).
		SetLimit(int64(leaderboardSize(n))).
		SetProjection(bson.M{"password": 0})

	cursor, err := m.s.users.Find(ctx, bson.M{"role": models.RoleCitizen}, opts)
	if err != nil {
		return nil, apperrors.Storage("users.topCitizens", err)
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, apperrors.Storage("users.topCitizens", err)
	}
	return users, nil
}
