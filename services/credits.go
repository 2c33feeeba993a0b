package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// XP deltas applied by the lifecycle. The solve reward is configurable.
const (
	SubmitReward    int64 = 50
	RejectPenalty   int64 = -10
	DefaultSolveXP  int64 = 100
	reasonSubmitted       = "submitted"
	reasonSolved          = "solved"
	reasonRejected        = "rejected"
)

// Credit is an XP delta that still has to reach the ledger.
type Credit struct {
	UserID   primitive.ObjectID `json:"userId"`
	IssueID  primitive.ObjectID `json:"issueId"`
	Delta    int64              `json:"delta"`
	Reason   string             `json:"reason"`
	QueuedAt time.Time          `json:"queuedAt"`
}

// CreditQueue holds credits that failed after their issue write succeeded.
type CreditQueue interface {
	Push(ctx context.Context, c Credit) error
	// Pop returns the oldest credit; ok is false when the queue is empty.
	Pop(ctx context.Context) (c Credit, ok bool, err error)
}

// RedisCreditQueue is a FIFO on a Redis list: LPUSH to enqueue, RPOP to dequeue.
type RedisCreditQueue struct {
	client *redis.Client
	key    string
}

func NewRedisCreditQueue(client *redis.Client, key string) *RedisCreditQueue {
	return &RedisCreditQueue{client: client, key: key}
}

func (q *RedisCreditQueue) Push(ctx context.Context, c Credit) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("redis error queueing credit: %w", err)
	}
	return nil
}

func (q *RedisCreditQueue) Pop(ctx context.Context) (Credit, bool, error) {
	payload, err := q.client.RPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Credit{}, false, nil
	}
	if err != nil {
		return Credit{}, false, fmt.Errorf("redis error popping credit: %w", err)
	}
	var c Credit
	if err := json.Unmarshal(payload, &c); err != nil {
		if derr := q.client.LPush(ctx, q.DeadLetterKey(), payload).Err(); derr != nil {
			return Credit{}, false, fmt.Errorf("decode credit %q: %w (dead-letter push failed: %v)", payload, err, derr)
		}
		return Credit{}, false, fmt.Errorf("decode credit %q, moved to %s: %w", payload, q.DeadLetterKey(), err)
	}
	return c, true, nil
}

// DeadLetterKey is the list holding payloads that could not be decoded.
func (q *RedisCreditQueue) DeadLetterKey() string {
	return q.key + ":dead"
}

// Len reports the number of queued credits.
func (q *RedisCreditQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

type MemoryCreditQueue struct {
	mu      sync.Mutex
	credits []Credit
}

func NewMemoryCreditQueue() *MemoryCreditQueue {
	return &MemoryCreditQueue{}
}

func (q *MemoryCreditQueue) Push(_ context.Context, c Credit) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.credits = append(q.credits, c)
	return nil
}

func (q *MemoryCreditQueue) Pop(_ context.Context) (Credit, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.credits) == 0 {
		return Credit{}, false, nil
	}
	c := q.credits[0]
	q.credits = q.credits[1:]
	return c, true, nil
}

func (q *MemoryCreditQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.credits)), nil
}
