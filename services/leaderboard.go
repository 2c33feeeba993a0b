package services

import (
	"context"

	"civicreport-be/models"
	"civicreport-be/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const MaxLeaderboardSize = 100

type LeaderboardEntry struct {
	Rank     int                `json:"rank"`
	UserID   primitive.ObjectID `json:"userId"`
	Name     string             `json:"name"`
	XPPoints int64              `json:"xpPoints"`
}

type LeaderboardService struct {
	ledger store.ScoreLedger
}

func NewLeaderboardService(ledger store.ScoreLedger) *LeaderboardService {
	return &LeaderboardService{ledger: ledger}
}

// TopCitizens ranks at most n citizens by XP. n outside 1..MaxLeaderboardSize
// falls back to the default of 5.
func (l *LeaderboardService) TopCitizens(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	if n < 1 || n > MaxLeaderboardSize {
		n = store.DefaultLeaderboardSize
	}
	users, err := l.ledger.TopCitizens(ctx, n)
	if err != nil {
		return nil, err
	}
	return rank(users), nil
}

func rank(users []models.User) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, LeaderboardEntry{
			Rank:     i + 1,
			UserID:   u.ID,
			Name:     u.Name,
			XPPoints: u.XPPoints,
		})
	}
	return entries
}
