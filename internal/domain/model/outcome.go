package model

import (
	"time"

	"github.com/avetra/prospect/internal/domain/faults"
)

// Grade is the ordinal quality bucket derived from an overall score.
type Grade string

const (
	GradeAPlus  Grade = "A+"
	GradeA      Grade = "A"
	GradeAMinus Grade = "A-"
	GradeBPlus  Grade = "B+"
	GradeB      Grade = "B"
	GradeBMinus Grade = "B-"
	GradeCPlus  Grade = "C+"
	GradeC      Grade = "C"
	GradeF      Grade = "F"
)

// CategoryScore is one category's contribution to a quality score.
type CategoryScore struct {
	Points  int `json:"points"`
	Max     int `json:"max"`
	Measure int `json:"measure"` // raw measurement: words, chars, entries, presence
}

// QualityScore is the deterministic completeness measurement of a Profile.
// Never mutated after creation.
type QualityScore struct {
	Overall        int                      `json:"overall"`
	Grade          Grade                    `json:"grade"`
	Categories     map[string]CategoryScore `json:"categories"`
	Threshold      int                      `json:"threshold"`
	MeetsThreshold bool                     `json:"meets_threshold"`
}

// ProviderAttempt records one provider try for one Identifier, in attempt
// order. Retained only while that Identifier is processed.
type ProviderAttempt struct {
	Provider string        `json:"provider"`
	OK       bool          `json:"ok"`
	Elapsed  time.Duration `json:"elapsed"`
	Err      *faults.Fault `json:"error,omitempty"`
}

// Outcome is the single result every Identifier yields per invocation.
// Attempted is false only when the processing budget expired before the
// identifier was started.
type Outcome struct {
	NodeID           string            `json:"node_id"`
	UserID           string            `json:"user_id,omitempty"`
	Success          bool              `json:"success"`
	Attempted        bool              `json:"attempted"`
	AlreadyProcessed bool              `json:"already_processed"`
	NewlyScraped     bool              `json:"newly_scraped"`
	Deleted          bool              `json:"deleted,omitempty"`
	Score            *QualityScore     `json:"score,omitempty"`
	Fault            *faults.Fault     `json:"fault,omitempty"`
	Attempts         []ProviderAttempt `json:"attempts,omitempty"`
	Elapsed          time.Duration     `json:"elapsed"`
}

// Retryable reports whether this outcome should put its identifier on the
// redelivery list.
func (o Outcome) Retryable() bool {
	return !o.Success && o.Fault != nil && o.Fault.Retryable()
}

// BatchResult is the aggregated response payload for one invocation.
// Outcomes preserve the input identifier order.
type BatchResult struct {
	InvocationID    string        `json:"invocation_id"`
	Processed       int           `json:"processed"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	ProfilesScraped int           `json:"profiles_scraped"`
	Outcomes        []Outcome     `json:"outcomes"`
	Redeliver       []string      `json:"redeliver,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
}
