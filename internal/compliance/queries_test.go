package compliance

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO frameworks (id, name, version, is_master) VALUES
			('fw-master', 'Internal Controls Baseline', '2.1', 1),
			('fw-iso', 'ISO 27001', '2022', 0)`,
		`INSERT INTO controls (id, framework_id, code, title, domain, description) VALUES
			('c1', 'fw-master', 'AC-1', 'Account provisioning', 'Access Control', 'Joiners and leavers'),
			('c2', 'fw-master', 'AC-2', 'Access reviews', 'Access Control', 'Quarterly reviews'),
			('c3', 'fw-master', 'EN-1', 'Encryption at rest', 'Encryption', NULL),
			('c4', 'fw-master', 'VM-1', 'Vulnerability scanning', 'Vulnerability Management', NULL)`,
		`INSERT INTO applications (id, name, owner, criticality) VALUES
			('app-1', 'Billing Portal', 'payments', 'high'),
			('app-2', 'Data Warehouse', 'data', 'high'),
			('app-3', 'Billing Admin', 'payments', 'medium')`,
		`INSERT INTO app_control_scores (app_id, control_id, score) VALUES
			('app-1', 'c1', 90), ('app-1', 'c2', 72), ('app-1', 'c3', 81), ('app-1', 'c4', 30),
			('app-2', 'c1', 40), ('app-2', 'c2', 45), ('app-2', 'c3', 50), ('app-2', 'c4', 20),
			('app-3', 'c1', 60), ('app-3', 'c2', 55)`,
		`INSERT INTO control_mappings (framework_id, control_id, mapped_code) VALUES
			('fw-iso', 'c1', 'A.5.16'), ('fw-iso', 'c2', 'A.5.18')`,
		`INSERT INTO integrations (id, name, kind, active) VALUES
			('int-1', 'Jira Cloud', 'ticketing', 1),
			('int-2', 'AWS Config', 'cloud', 0)`,
		`INSERT INTO score_snapshots (app_id, taken_at, score) VALUES
			(NULL, '2026-08-01 21:00:00', 50.0),
			(NULL, '2026-08-02 21:00:00', 55.0),
			(NULL, '2026-08-03 21:00:00', 60.0),
			('app-1', '2026-08-03 21:00:00', 68.3)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
}

func newTestService(t *testing.T) *Service {
	db := newTestDB(t)
	seed(t, db)
	return NewService(db)
}

func queryErr(t *testing.T, err error) *QueryError {
	t.Helper()
	var qe *QueryError
	require.True(t, errors.As(err, &qe), "expected QueryError, got %v", err)
	return qe
}

func TestStatusBucketing(t *testing.T) {
	assert.Equal(t, StatusCompliant, StatusForScore(81))
	assert.Equal(t, StatusCompliant, StatusForScore(80))
	assert.Equal(t, StatusWarning, StatusForScore(79.9))
	assert.Equal(t, StatusWarning, StatusForScore(50))
	assert.Equal(t, StatusCritical, StatusForScore(49))
}

func TestOverviewKPIs(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), "overview_kpis", Params{})
	require.NoError(t, err)

	kpis := res.Data.(OverviewKPIs)
	assert.Equal(t, "Internal Controls Baseline", kpis.MasterFramework)
	assert.Equal(t, 3, kpis.TotalApplications)
	assert.Equal(t, 4, kpis.TotalControls)
	assert.Equal(t, 1, kpis.FailingControls) // only VM-1 averages <= 50
	assert.Equal(t, 0, kpis.Compliant)
	assert.Equal(t, 2, kpis.Warning)
	assert.Equal(t, 1, kpis.Critical)
	assert.InDelta(t, 54.9, kpis.OverallScore, 0.001)
	assert.Nil(t, res.Rows, "object-shaped result must not be cacheable")
}

func TestMissingMasterFrameworkIsHardError(t *testing.T) {
	svc := NewService(newTestDB(t))

	for _, q := range []string{"overview_kpis", "compliance_by_domain", "failing_controls", "top_risk_applications"} {
		_, err := svc.Run(context.Background(), q, Params{})
		require.Error(t, err, q)
		assert.Equal(t, ErrKindNoData, queryErr(t, err).Kind, q)
	}
}

func TestUnknownQuery(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Run(context.Background(), "users_list", Params{})
	require.Error(t, err)
	assert.Equal(t, ErrKindUnknownQuery, queryErr(t, err).Kind)
}

func TestApplicationsList(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), "applications_list", Params{})
	require.NoError(t, err)

	apps := res.Data.([]ApplicationSummary)
	require.Len(t, apps, 3)
	require.NotNil(t, res.Rows)
	assert.Len(t, res.Rows, 3)

	byName := map[string]ApplicationSummary{}
	for _, a := range apps {
		byName[a.Name] = a
	}
	assert.InDelta(t, 68.3, byName["Billing Portal"].Score, 0.001)
	assert.Equal(t, StatusWarning, byName["Billing Portal"].Status)
	assert.InDelta(t, 38.8, byName["Data Warehouse"].Score, 0.001)
	assert.Equal(t, StatusCritical, byName["Data Warehouse"].Status)
	assert.InDelta(t, 57.5, byName["Billing Admin"].Score, 0.001)
}

func TestApplicationsListDomainFilter(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), "applications_list", Params{Domain: "encryption"})
	require.NoError(t, err)

	apps := res.Data.([]ApplicationSummary)
	require.Len(t, apps, 2) // app-3 has no Encryption scores
	for _, a := range apps {
		assert.NotEqual(t, "Billing Admin", a.Name)
	}
}

func TestApplicationDetailPartialNameMatch(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), "application_detail", Params{ApplicationName: "billing"})
	require.NoError(t, err)

	detail := res.Data.(ApplicationDetail)
	// Two candidates match; alphabetical order puts Billing Admin first.
	assert.Equal(t, "Billing Admin", detail.Name)
	require.Len(t, detail.OtherCandidates, 1)
	assert.Equal(t, "Billing Portal", detail.OtherCandidates[0].Name)
	assert.Equal(t, 2, detail.ControlsEvaluated)
	assert.Equal(t, 0, detail.FailingControls)
}

func TestApplicationLookupErrors(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Run(context.Background(), "application_detail", Params{ApplicationName: "nonexistent"})
	require.Error(t, err)
	qe := queryErr(t, err)
	assert.Equal(t, ErrKindNoData, qe.Kind)
	assert.Contains(t, qe.Message, "nonexistent")

	_, err = svc.Run(context.Background(), "application_detail", Params{})
	require.Error(t, err)
	assert.Equal(t, ErrKindMissingParams, queryErr(t, err).Kind)
}

func TestApplicationControls(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), "application_controls", Params{ApplicationID: "app-1"})
	require.NoError(t, err)

	controls := res.Data.([]ControlResult)
	require.Len(t, controls, 4)
	assert.Equal(t, "AC-1", controls[0].Code)
	assert.Equal(t, StatusCompliant, controls[0].Status)
	assert.Equal(t, "VM-1", controls[3].Code)
	assert.Equal(t, StatusCritical, controls[3].Status)
}

func TestFailingControls(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), "failing_controls", Params{})
	require.NoError(t, err)

	failing := res.Data.([]FailingControl)
	require.Len(t, failing, 1)
	assert.Equal(t, "VM-1", failing[0].Code)
	assert.InDelta(t, 25.0, failing[0].Score, 0.001)
	assert.Equal(t, 2, failing[0].ApplicationsAffected)
}

func TestControlDetailByCodeCaseInsensitive(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), "control_detail", Params{ControlCode: "vm-1"})
	require.NoError(t, err)

	detail := res.Data.(ControlDetail)
	assert.Equal(t, "VM-1", detail.Code)
	assert.Equal(t, 2, detail.ApplicationsEvaluated)
	assert.Equal(t, 2, detail.FailingApplications)
	assert.Equal(t, StatusCritical, detail.Status)
}

func TestControlDetailErrors(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Run(context.Background(), "control_detail", Params{})
	require.Error(t, err)
	assert.Equal(t, ErrKindMissingParams, queryErr(t, err).Kind)

	_, err = svc.Run(context.Background(), "control_detail", Params{ControlCode: "XX-9"})
	require.Error(t, err)
	assert.Equal(t, ErrKindNoData, queryErr(t, err).Kind)
}

func TestFrameworksListAndCoverage(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), "frameworks_list", Params{})
	require.NoError(t, err)
	frameworks := res.Data.([]FrameworkInfo)
	require.Len(t, frameworks, 2)
	assert.True(t, frameworks[0].IsMaster) // master sorts first
	assert.Equal(t, 4, frameworks[0].Controls)

	res, err = svc.Run(context.Background(), "framework_coverage", Params{})
	require.NoError(t, err)
	coverage := res.Data.([]FrameworkCoverage)
	require.Len(t, coverage, 1)
	assert.Equal(t, "ISO 27001", coverage[0].Framework)
	assert.Equal(t, 2, coverage[0].MappedControls)
	assert.Equal(t, 4, coverage[0].TotalControls)
	assert.Equal(t, 50, coverage[0].CoveragePct)
}

func TestScoreTrend(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), "score_trend", Params{})
	require.NoError(t, err)

	points := res.Data.([]ScorePoint)
	require.Len(t, points, 3)
	assert.Equal(t, "2026-08-01", points[0].Period)
	assert.Equal(t, "2026-08-03", points[2].Period)
	assert.Equal(t, 50.0, points[0].Score)
	assert.Equal(t, 60.0, points[2].Score)
}

func TestScoreTrendPerApplication(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), "score_trend", Params{ApplicationName: "billing portal"})
	require.NoError(t, err)

	points := res.Data.([]ScorePoint)
	require.Len(t, points, 1)
	assert.InDelta(t, 68.3, points[0].Score, 0.001)
}

func TestTopRiskApplications(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), "top_risk_applications", Params{Limit: 2})
	require.NoError(t, err)

	apps := res.Data.([]ApplicationSummary)
	require.Len(t, apps, 2)
	assert.Equal(t, "Data Warehouse", apps[0].Name) // lowest score first
	assert.Equal(t, "Billing Admin", apps[1].Name)
}

func TestRecordSnapshots(t *testing.T) {
	svc := newTestService(t)

	before := snapshotCount(t, svc.db)
	takenAt := time.Date(2026, 8, 23, 21, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RecordSnapshots(context.Background(), takenAt))
	// One row per scored application plus the overall row.
	assert.Equal(t, before+4, snapshotCount(t, svc.db))
}

func snapshotCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM score_snapshots`).Scan(&n))
	return n
}
