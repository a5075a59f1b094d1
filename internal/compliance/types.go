package compliance

import (
	"encoding/json"
	"math"
)

// Compliance status buckets.
const (
	StatusCompliant = "Compliant"
	StatusWarning   = "Warning"
	StatusCritical  = "Critical"
)

// FailingThreshold is the score at or below which a control or application
// counts as failing.
const FailingThreshold = 50.0

// StatusForScore buckets a score: >=80 Compliant, >=50 Warning, else Critical.
func StatusForScore(score float64) string {
	switch {
	case score >= 80:
		return StatusCompliant
	case score >= 50:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// round1 rounds raw scores to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// roundPct rounds percentages to the nearest integer.
func roundPct(v float64) int {
	return int(math.Round(v))
}

// OverviewKPIs is the object result of overview_kpis.
type OverviewKPIs struct {
	OverallScore      float64 `json:"overallScore"`
	TotalApplications int     `json:"totalApplications"`
	Compliant         int     `json:"compliant"`
	Warning           int     `json:"warning"`
	Critical          int     `json:"critical"`
	TotalControls     int     `json:"totalControls"`
	FailingControls   int     `json:"failingControls"`
	MasterFramework   string  `json:"masterFramework"`
}

// DomainScore is one row of compliance_by_domain.
type DomainScore struct {
	Domain   string  `json:"domain"`
	Score    float64 `json:"score"`
	Controls int     `json:"controls"`
	Failing  int     `json:"failing"`
}

// ApplicationSummary is one row of applications_list and top_risk_applications.
type ApplicationSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Owner       string  `json:"owner,omitempty"`
	Criticality string  `json:"criticality,omitempty"`
	Score       float64 `json:"score"`
	Status      string  `json:"status"`
}

// ApplicationDetail is the object result of application_detail.
type ApplicationDetail struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Owner              string           `json:"owner,omitempty"`
	Criticality        string           `json:"criticality,omitempty"`
	Score              float64          `json:"score"`
	Status             string           `json:"status"`
	ControlsEvaluated  int              `json:"controlsEvaluated"`
	FailingControls    int              `json:"failingControls"`
	OtherCandidates    []CandidateMatch `json:"otherCandidates,omitempty"`
}

// CandidateMatch names an alternative match for a partial application lookup.
type CandidateMatch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ControlResult is one row of application_controls.
type ControlResult struct {
	ControlID string  `json:"controlId"`
	Code      string  `json:"code"`
	Title     string  `json:"title"`
	Domain    string  `json:"domain"`
	Score     float64 `json:"score"`
	Status    string  `json:"status"`
}

// FailingControl is one row of failing_controls.
type FailingControl struct {
	ControlID            string  `json:"controlId"`
	Code                 string  `json:"code"`
	Title                string  `json:"title"`
	Domain               string  `json:"domain"`
	Score                float64 `json:"score"`
	ApplicationsAffected int     `json:"applicationsAffected"`
}

// ControlDetail is the object result of control_detail.
type ControlDetail struct {
	ID                    string  `json:"id"`
	Code                  string  `json:"code"`
	Title                 string  `json:"title"`
	Domain                string  `json:"domain"`
	Description           string  `json:"description,omitempty"`
	Score                 float64 `json:"score"`
	Status                string  `json:"status"`
	ApplicationsEvaluated int     `json:"applicationsEvaluated"`
	FailingApplications   int     `json:"failingApplications"`
}

// FrameworkInfo is one row of frameworks_list.
type FrameworkInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	IsMaster bool   `json:"isMaster"`
	Controls int    `json:"controls"`
}

// FrameworkCoverage is one row of framework_coverage.
type FrameworkCoverage struct {
	FrameworkID    string `json:"frameworkId"`
	Framework      string `json:"framework"`
	Version        string `json:"version,omitempty"`
	MappedControls int    `json:"mappedControls"`
	TotalControls  int    `json:"totalControls"`
	CoveragePct    int    `json:"coveragePct"`
}

// IntegrationInfo is one row of integrations_list.
type IntegrationInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Active   bool   `json:"active"`
	LastSync string `json:"lastSync,omitempty"`
}

// ScorePoint is one row of score_trend, ordered by period ascending.
type ScorePoint struct {
	Period string  `json:"period"`
	Score  float64 `json:"score"`
}

// IntegrationChange is the result of manageIntegrationStatus.
type IntegrationChange struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Active  bool   `json:"active"`
	Changed bool   `json:"changed"`
}

// rowsOf flattens a slice of typed rows into the generic row shape shared by
// the request cache, the analysis engine and the chart builder.
func rowsOf(v interface{}) []map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil
	}
	return rows
}
