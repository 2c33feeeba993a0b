package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Severity enum
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// IssueStatus enum
type IssueStatus string

const (
	Pending  IssueStatus = "pending"
	Solved   IssueStatus = "solved"
	Rejected IssueStatus = "rejected"
)

func (s IssueStatus) Valid() bool {
	switch s {
	case Pending, Solved, Rejected:
		return true
	}
	return false
}

// Terminal reports whether the status ends the issue lifecycle.
func (s IssueStatus) Terminal() bool {
	return s == Solved || s == Rejected
}

// Issue represents a community problem reported by a citizen
type Issue struct {
	ID               primitive.ObjectID  `bson:"_id" json:"id"`
	Title            string              `bson:"title" json:"title" validate:"required"`
	Description      string              `bson:"description" json:"description" validate:"required"`
	Severity         Severity            `bson:"severity" json:"severity" validate:"required,oneof=low medium high"`
	Location         string              `bson:"location" json:"location" validate:"required"`
	Status           IssueStatus         `bson:"status" json:"status" validate:"required,oneof=pending solved rejected"`
	ReporterID       primitive.ObjectID  `bson:"reporterId" json:"reporterId"`
	SolverID         *primitive.ObjectID `bson:"solverId,omitempty" json:"solverId"`
	ImageURL         *string             `bson:"imageUrl,omitempty" json:"imageUrl"`
	SolutionImageURL *string             `bson:"solutionImageUrl,omitempty" json:"solutionImageUrl"`
	PriorityRating   float64             `bson:"priorityRating" json:"priorityRating"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	SolvedAt         *time.Time          `bson:"solvedAt,omitempty" json:"solvedAt"`
}

// IssueDraft is the raw submission collected by the report form.
type IssueDraft struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"required,max=5000"`
	Severity    string   `json:"severity" validate:"required,oneof=low medium high"`
	Location    string   `json:"location" validate:"required,max=200"`
	ImageURL    *string  `json:"imageUrl,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Verified    bool     `json:"verified" validate:"required"`
}

// Normalize trims text fields and fills an empty location from coordinates.
func (d *IssueDraft) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Severity = strings.ToLower(strings.TrimSpace(d.Severity))
	d.Location = strings.TrimSpace(d.Location)
	if d.Location == "" && d.Latitude != nil && d.Longitude != nil {
		d.Location = FormatLocation(*d.Latitude, *d.Longitude)
	}
	if d.ImageURL != nil && strings.TrimSpace(*d.ImageURL) == "" {
		d.ImageURL = nil
	}
}

// Validate checks the draft and returns a *apperrors.ValidationError naming
// every missing or invalid field.
func (d *IssueDraft) Validate() error {
	return validateStruct(d)
}

// NewIssue builds a pending issue from a validated draft. The timestamp is
// truncated to milliseconds so it survives a round trip through the store.
func NewIssue(reporterID primitive.ObjectID, draft IssueDraft, rating float64, now time.Time) (*Issue, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	issue := &Issue{
		ID:             primitive.NewObjectID(),
		Title:          draft.Title,
		Description:    draft.Description,
		Severity:       Severity(draft.Severity),
		Location:       draft.Location,
		Status:         Pending,
		ReporterID:     reporterID,
		ImageURL:       draft.ImageURL,
		PriorityRating: rating,
		CreatedAt:      now.UTC().Truncate(time.Millisecond),
	}
	if err := issue.Validate(); err != nil {
		return nil, err
	}
	return issue, nil
}

// Validate enforces the required fields and the status invariants:
// a pending issue has no solver and no solvedAt, a terminal one has solvedAt.
func (i *Issue) Validate() error {
	if err := validateStruct(i); err != nil {
		return err
	}
	if i.ReporterID.IsZero() {
		return validationError("reporterId")
	}
	switch {
	case i.Status == Pending && (i.SolverID != nil || i.SolvedAt != nil):
		return validationError("status")
	case i.Status.Terminal() && i.SolvedAt == nil:
		return validationError("solvedAt")
	}
	return nil
}

// FormatLocation renders coordinates the way the geolocation capture stores them.
func FormatLocation(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}
