// Package scoring computes the triage priority of an issue report.
package scoring

import (
	"math"
	"unicode/utf8"

	"civicreport-be/models"
)

const (
	descriptionUnit = 100.0
	maxDescription  = 2.0
)

var severityScores = map[models.Severity]float64{
	models.SeverityLow:    1,
	models.SeverityMedium: 2,
	models.SeverityHigh:   3,
}

// Score rates an issue from its severity and description length, rounded to
// one decimal place. The description adds one point per 100 characters, capped
// at 2. Severity must already be validated; an unknown value contributes 0.
func Score(severity models.Severity, description string) float64 {
	descriptionScore := math.Min(float64(utf8.RuneCountInString(description))/descriptionUnit, maxDescription)
	return math.Round((severityScores[severity]+descriptionScore)*10) / 10
}
