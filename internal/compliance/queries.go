package compliance

import (
	"context"
	"database/sql"
	"sort"
	"strings"
)

func (s *Service) overviewKPIs(ctx context.Context) (*QueryResult, error) {
	master, err := s.masterFramework(ctx)
	if err != nil {
		return nil, err
	}

	apps, err := s.appScores(ctx, master.ID, "")
	if err != nil {
		return nil, err
	}

	kpis := OverviewKPIs{MasterFramework: master.Name}

	var total float64
	for _, a := range apps {
		total += a.Score
		switch a.Status {
		case StatusCompliant:
			kpis.Compliant++
		case StatusWarning:
			kpis.Warning++
		default:
			kpis.Critical++
		}
	}
	if len(apps) > 0 {
		kpis.OverallScore = round1(total / float64(len(apps)))
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications`).Scan(&kpis.TotalApplications); err != nil {
		return nil, dbError(err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM controls WHERE framework_id = ?`, master.ID).Scan(&kpis.TotalControls); err != nil {
		return nil, dbError(err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (
			SELECT s.control_id FROM app_control_scores s
			JOIN controls c ON c.id = s.control_id
			WHERE c.framework_id = ?
			GROUP BY s.control_id
			HAVING AVG(s.score) <= ?
		)`, master.ID, FailingThreshold).Scan(&kpis.FailingControls); err != nil {
		return nil, dbError(err)
	}

	return &QueryResult{Data: kpis}, nil
}

func (s *Service) complianceByDomain(ctx context.Context, p Params) (*QueryResult, error) {
	master, err := s.masterFramework(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT domain, AVG(control_score), COUNT(*),
			SUM(CASE WHEN control_score <= ? THEN 1 ELSE 0 END)
		FROM (
			SELECT c.domain AS domain, c.id, AVG(s.score) AS control_score
			FROM controls c
			JOIN app_control_scores s ON s.control_id = c.id
			WHERE c.framework_id = ?
			GROUP BY c.domain, c.id
		)
		GROUP BY domain ORDER BY domain`
	rows, err := s.db.QueryContext(ctx, query, FailingThreshold, master.ID)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var out []DomainScore
	for rows.Next() {
		var d DomainScore
		var score float64
		if err := rows.Scan(&d.Domain, &score, &d.Controls, &d.Failing); err != nil {
			return nil, dbError(err)
		}
		d.Score = round1(score)
		if p.Domain == "" || strings.EqualFold(d.Domain, p.Domain) {
			out = append(out, d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}

	return &QueryResult{Data: out, Rows: rowsOf(out)}, nil
}

func (s *Service) applicationsList(ctx context.Context, p Params) (*QueryResult, error) {
	master, err := s.masterFramework(ctx)
	if err != nil {
		return nil, err
	}
	apps, err := s.appScores(ctx, master.ID, p.Domain)
	if err != nil {
		return nil, err
	}
	if p.Limit > 0 && len(apps) > p.Limit {
		apps = apps[:p.Limit]
	}
	return &QueryResult{Data: apps, Rows: rowsOf(apps)}, nil
}

func (s *Service) applicationDetail(ctx context.Context, p Params) (*QueryResult, error) {
	master, err := s.masterFramework(ctx)
	if err != nil {
		return nil, err
	}
	app, others, err := s.resolveApplication(ctx, p)
	if err != nil {
		return nil, err
	}

	detail := ApplicationDetail{ID: app.ID, Name: app.Name}
	for _, m := range others {
		detail.OtherCandidates = append(detail.OtherCandidates, CandidateMatch{ID: m.ID, Name: m.Name})
	}

	var owner, criticality sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT owner, criticality FROM applications WHERE id = ?`, app.ID).
		Scan(&owner, &criticality); err != nil {
		return nil, dbError(err)
	}
	detail.Owner = owner.String
	detail.Criticality = criticality.String

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG(s.score), COUNT(*), SUM(CASE WHEN s.score <= ? THEN 1 ELSE 0 END)
		 FROM app_control_scores s
		 JOIN controls c ON c.id = s.control_id
		 WHERE s.app_id = ? AND c.framework_id = ?`,
		FailingThreshold, app.ID, master.ID).
		Scan(&avg, &detail.ControlsEvaluated, &detail.FailingControls); err != nil {
		return nil, dbError(err)
	}
	detail.Score = round1(avg.Float64)
	detail.Status = StatusForScore(detail.Score)

	return &QueryResult{Data: detail}, nil
}

func (s *Service) applicationControls(ctx context.Context, p Params) (*QueryResult, error) {
	master, err := s.masterFramework(ctx)
	if err != nil {
		return nil, err
	}
	app, _, err := s.resolveApplication(ctx, p)
	if err != nil {
		return nil, err
	}

	query := `SELECT c.id, c.code, c.title, c.domain, s.score
		FROM app_control_scores s
		JOIN controls c ON c.id = s.control_id
		WHERE s.app_id = ? AND c.framework_id = ?`
	args := []interface{}{app.ID, master.ID}
	if p.Domain != "" {
		query += ` AND LOWER(c.domain) = LOWER(?)`
		args = append(args, p.Domain)
	}
	query += ` ORDER BY c.code`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var out []ControlResult
	for rows.Next() {
		var r ControlResult
		var score float64
		if err := rows.Scan(&r.ControlID, &r.Code, &r.Title, &r.Domain, &score); err != nil {
			return nil, dbError(err)
		}
		r.Score = round1(score)
		r.Status = StatusForScore(r.Score)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}

	return &QueryResult{Data: out, Rows: rowsOf(out)}, nil
}

func (s *Service) failingControls(ctx context.Context, p Params) (*QueryResult, error) {
	master, err := s.masterFramework(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT c.id, c.code, c.title, c.domain, AVG(s.score),
			SUM(CASE WHEN s.score <= ? THEN 1 ELSE 0 END)
		FROM controls c
		JOIN app_control_scores s ON s.control_id = c.id
		WHERE c.framework_id = ?`
	args := []interface{}{FailingThreshold, master.ID}
	if p.Domain != "" {
		query += ` AND LOWER(c.domain) = LOWER(?)`
		args = append(args, p.Domain)
	}
	query += ` GROUP BY c.id, c.code, c.title, c.domain
		HAVING AVG(s.score) <= ?
		ORDER BY AVG(s.score) ASC`
	args = append(args, FailingThreshold)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var out []FailingControl
	for rows.Next() {
		var f FailingControl
		var score float64
		if err := rows.Scan(&f.ControlID, &f.Code, &f.Title, &f.Domain, &score, &f.ApplicationsAffected); err != nil {
			return nil, dbError(err)
		}
		f.Score = round1(score)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}

	return &QueryResult{Data: out, Rows: rowsOf(out)}, nil
}

func (s *Service) controlDetail(ctx context.Context, p Params) (*QueryResult, error) {
	master, err := s.masterFramework(ctx)
	if err != nil {
		return nil, err
	}
	if p.ControlID == "" && p.ControlCode == "" {
		return nil, missingParams("controlId or controlCode is required")
	}

	var detail ControlDetail
	var description sql.NullString
	var row *sql.Row
	if p.ControlID != "" {
		row = s.db.QueryRowContext(ctx,
			`SELECT id, code, title, domain, description FROM controls WHERE framework_id = ? AND id = ?`,
			master.ID, p.ControlID)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT id, code, title, domain, description FROM controls WHERE framework_id = ? AND LOWER(code) = LOWER(?)`,
			master.ID, p.ControlCode)
	}
	err = row.Scan(&detail.ID, &detail.Code, &detail.Title, &detail.Domain, &description)
	if err == sql.ErrNoRows {
		term := p.ControlID
		if term == "" {
			term = p.ControlCode
		}
		return nil, noData("no control found for %q", term)
	}
	if err != nil {
		return nil, dbError(err)
	}
	detail.Description = description.String

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG(score), COUNT(*), SUM(CASE WHEN score <= ? THEN 1 ELSE 0 END)
		 FROM app_control_scores WHERE control_id = ?`,
		FailingThreshold, detail.ID).
		Scan(&avg, &detail.ApplicationsEvaluated, &detail.FailingApplications); err != nil {
		return nil, dbError(err)
	}
	detail.Score = round1(avg.Float64)
	detail.Status = StatusForScore(detail.Score)

	return &QueryResult{Data: detail}, nil
}

func (s *Service) frameworksList(ctx context.Context) (*QueryResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.name, f.version, f.is_master, COUNT(c.id)
		 FROM frameworks f
		 LEFT JOIN controls c ON c.framework_id = f.id
		 GROUP BY f.id, f.name, f.version, f.is_master
		 ORDER BY f.is_master DESC, f.name`)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var out []FrameworkInfo
	for rows.Next() {
		var f FrameworkInfo
		var version sql.NullString
		var isMaster int
		if err := rows.Scan(&f.ID, &f.Name, &version, &isMaster, &f.Controls); err != nil {
			return nil, dbError(err)
		}
		f.Version = version.String
		f.IsMaster = isMaster != 0
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}

	return &QueryResult{Data: out, Rows: rowsOf(out)}, nil
}

func (s *Service) frameworkCoverage(ctx context.Context) (*QueryResult, error) {
	master, err := s.masterFramework(ctx)
	if err != nil {
		return nil, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM controls WHERE framework_id = ?`, master.ID).Scan(&total); err != nil {
		return nil, dbError(err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.name, f.version, COUNT(cm.control_id)
		 FROM frameworks f
		 LEFT JOIN control_mappings cm ON cm.framework_id = f.id
		 LEFT JOIN controls c ON c.id = cm.control_id AND c.framework_id = ?
		 WHERE f.is_master = 0
		 GROUP BY f.id, f.name, f.version
		 ORDER BY f.name`, master.ID)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var out []FrameworkCoverage
	for rows.Next() {
		var fc FrameworkCoverage
		var version sql.NullString
		if err := rows.Scan(&fc.FrameworkID, &fc.Framework, &version, &fc.MappedControls); err != nil {
			return nil, dbError(err)
		}
		fc.Version = version.String
		fc.TotalControls = total
		if total > 0 {
			fc.CoveragePct = roundPct(float64(fc.MappedControls) / float64(total) * 100)
		}
		out = append(out, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}

	return &QueryResult{Data: out, Rows: rowsOf(out)}, nil
}

func (s *Service) integrationsList(ctx context.Context) (*QueryResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, active, last_sync_at FROM integrations ORDER BY name`)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var out []IntegrationInfo
	for rows.Next() {
		var in IntegrationInfo
		var active int
		var lastSync sql.NullString
		if err := rows.Scan(&in.ID, &in.Name, &in.Kind, &active, &lastSync); err != nil {
			return nil, dbError(err)
		}
		in.Active = active != 0
		in.LastSync = lastSync.String
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}

	return &QueryResult{Data: out, Rows: rowsOf(out)}, nil
}

func (s *Service) scoreTrend(ctx context.Context, p Params) (*QueryResult, error) {
	query := `SELECT taken_at, score FROM score_snapshots WHERE app_id IS NULL`
	args := []interface{}{}

	if p.ApplicationID != "" || p.ApplicationName != "" {
		app, _, err := s.resolveApplication(ctx, p)
		if err != nil {
			return nil, err
		}
		query = `SELECT taken_at, score FROM score_snapshots WHERE app_id = ?`
		args = append(args, app.ID)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 30
	}
	// Most recent N points, returned oldest-first for trend analysis.
	query += ` ORDER BY taken_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var out []ScorePoint
	for rows.Next() {
		var takenAt string
		var score float64
		if err := rows.Scan(&takenAt, &score); err != nil {
			return nil, dbError(err)
		}
		if len(takenAt) > 10 {
			takenAt = takenAt[:10]
		}
		out = append(out, ScorePoint{Period: takenAt, Score: round1(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return &QueryResult{Data: out, Rows: rowsOf(out)}, nil
}

func (s *Service) topRiskApplications(ctx context.Context, p Params) (*QueryResult, error) {
	master, err := s.masterFramework(ctx)
	if err != nil {
		return nil, err
	}
	apps, err := s.appScores(ctx, master.ID, p.Domain)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(apps, func(i, j int) bool { return apps[i].Score < apps[j].Score })

	limit := p.Limit
	if limit <= 0 {
		limit = 5
	}
	if len(apps) > limit {
		apps = apps[:limit]
	}

	return &QueryResult{Data: apps, Rows: rowsOf(apps)}, nil
}

// appScores computes per-application average scores against the master
// framework, optionally restricted to one control domain.
func (s *Service) appScores(ctx context.Context, masterID, domain string) ([]ApplicationSummary, error) {
	query := `SELECT a.id, a.name, a.owner, a.criticality, AVG(s.score)
		FROM applications a
		JOIN app_control_scores s ON s.app_id = a.id
		JOIN controls c ON c.id = s.control_id
		WHERE c.framework_id = ?`
	args := []interface{}{masterID}
	if domain != "" {
		query += ` AND LOWER(c.domain) = LOWER(?)`
		args = append(args, domain)
	}
	query += ` GROUP BY a.id, a.name, a.owner, a.criticality ORDER BY a.name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var out []ApplicationSummary
	for rows.Next() {
		var a ApplicationSummary
		var owner, criticality sql.NullString
		var score float64
		if err := rows.Scan(&a.ID, &a.Name, &owner, &criticality, &score); err != nil {
			return nil, dbError(err)
		}
		a.Owner = owner.String
		a.Criticality = criticality.String
		a.Score = round1(score)
		a.Status = StatusForScore(a.Score)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}
