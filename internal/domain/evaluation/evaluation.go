// Package evaluation defines evaluation suites, runs, and the scoring
// strategies that grade candidate agent versions before promotion.
package evaluation

import (
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain"
)

// PassThreshold is the pass-rate a run must reach for the owning version to
// gate PASS. It is the single source of truth for the TESTING→CANDIDATE
// promotion guard.
const PassThreshold = 0.8

// DefaultSimilarityThreshold applies when a similarity criterion omits one.
const DefaultSimilarityThreshold = 0.8

// CriteriaType names a scoring strategy.
type CriteriaType string

const (
	CriteriaExactMatch CriteriaType = "exact_match"
	CriteriaContains   CriteriaType = "contains"
	CriteriaSimilarity CriteriaType = "similarity"
	CriteriaCustom     CriteriaType = "custom"
)

// ScoringCriteria configures how a test case's output is graded.
type ScoringCriteria struct {
	Type      CriteriaType `json:"type"`
	Threshold *float64     `json:"threshold,omitempty"`
}

// TestCase is one input/expected-output pair in a suite.
type TestCase struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Input           string           `json:"input"`
	ExpectedOutput  string           `json:"expected_output"`
	ScoringCriteria *ScoringCriteria `json:"scoring_criteria,omitempty"`
}

// Suite is a named, ordered collection of test cases. Treated as immutable
// once referenced by a completed run.
type Suite struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id,omitempty"`
	Name      string     `json:"name"`
	IsDefault bool       `json:"is_default"`
	TestCases []TestCase `json:"test_cases"`
	CreatedAt time.Time  `json:"created_at"`
}

// Validate checks that a Suite has all required fields.
func (s *Suite) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	for i := range s.TestCases {
		if s.TestCases[i].ID == "" {
			return fmt.Errorf("test_cases[%d].id is required: %w", i, domain.ErrValidation)
		}
	}
	return nil
}

// RunStatus is the execution state of an evaluation run.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// CaseResult is the graded outcome of one test case. Execution failures are
// captured here as Error rather than aborting the remaining suite.
type CaseResult struct {
	TestCaseID    string   `json:"test_case_id"`
	Passed        bool     `json:"passed"`
	Score         *float64 `json:"score,omitempty"`
	Output        string   `json:"output"`
	Error         string   `json:"error,omitempty"`
	ExecutionTime int64    `json:"execution_time_ms,omitempty"`
}

// Run is one timed execution of a suite against a version.
type Run struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id,omitempty"`
	SuiteID      string       `json:"suite_id"`
	VersionID    string       `json:"version_id"`
	Status       RunStatus    `json:"status"`
	Results      []CaseResult `json:"results,omitempty"`
	OverallScore float64      `json:"overall_score"`
	PassRate     float64      `json:"pass_rate"`
	Version      int          `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// Aggregate computes the pass rate and overall score across case results.
// Pass rate is passed/total (0 for an empty set). Overall score averages
// only the results that produced a score; unscored results are excluded
// from the denominator, not treated as zero.
func Aggregate(results []CaseResult) (passRate, overallScore float64) {
	if len(results) == 0 {
		return 0, 0
	}

	passed := 0
	scoreSum := 0.0
	scored := 0
	for i := range results {
		if results[i].Passed {
			passed++
		}
		if results[i].Score != nil {
			scoreSum += *results[i].Score
			scored++
		}
	}

	passRate = float64(passed) / float64(len(results))
	if scored > 0 {
		overallScore = scoreSum / float64(scored)
	}
	return passRate, overallScore
}
