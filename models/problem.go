package models

import "fmt"

// CatalogProblem is a row in the local mirror of the Codeforces problemset,
// maintained by the problemset sync worker. The (contest, index) pair is the
// natural key used everywhere else in the system.
type CatalogProblem struct {
	ContestID int     `json:"contest_id" gorm:"primaryKey;autoIncrement:false"`
	Index     string  `json:"index" gorm:"primaryKey;column:problem_index"`
	Name      string  `json:"name"`
	Type      string  `json:"type" gorm:"default:'PROGRAMMING'"`
	Rating    int     `json:"rating" gorm:"index"`
	Points    float64 `json:"points,omitempty"`
	Tags      string  `json:"tags"` // comma-separated, as delivered

	Timestamps
}

// Key returns the catalog identifier, e.g. "1700A".
func (p CatalogProblem) Key() string {
	return ProblemKey(p.ContestID, p.Index)
}

// ProblemKey builds the canonical catalog identifier for a contest/index pair.
func ProblemKey(contestID int, index string) string {
	return fmt.Sprintf("%d%s", contestID, index)
}
