package compliance

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// maxNameCandidates bounds how many applications a partial name lookup keeps.
const maxNameCandidates = 5

// Params is the optional parameter bag accepted by every named query.
type Params struct {
	Domain          string
	ApplicationName string
	ApplicationID   string
	ControlCode     string
	ControlID       string
	Limit           int
}

// ParamsFromMap extracts the known parameters from a raw argument map,
// ignoring anything it does not recognize.
func ParamsFromMap(m map[string]interface{}) Params {
	p := Params{}
	if m == nil {
		return p
	}
	p.Domain = stringParam(m, "domain")
	p.ApplicationName = stringParam(m, "applicationName")
	p.ApplicationID = stringParam(m, "applicationId")
	p.ControlCode = stringParam(m, "controlCode")
	p.ControlID = stringParam(m, "controlId")
	if v, ok := m["limit"]; ok {
		switch n := v.(type) {
		case float64:
			p.Limit = int(n)
		case int:
			p.Limit = n
		}
	}
	return p
}

func stringParam(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// QueryResult carries a named query's payload. Rows is non-nil exactly when
// the result is array-shaped, which is what makes it cacheable for reuse by
// analysis and chart calls later in the same turn.
type QueryResult struct {
	Data interface{}
	Rows []map[string]interface{}
}

// Service is the named-query catalog over the compliance datastore.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Run resolves a named query. Unknown names yield an unknown_query error;
// all other failures come back as typed QueryErrors so the dispatcher can
// surface them to the model instead of failing the turn.
func (s *Service) Run(ctx context.Context, queryType string, p Params) (*QueryResult, error) {
	switch queryType {
	case "overview_kpis":
		return s.overviewKPIs(ctx)
	case "compliance_by_domain":
		return s.complianceByDomain(ctx, p)
	case "applications_list":
		return s.applicationsList(ctx, p)
	case "application_detail":
		return s.applicationDetail(ctx, p)
	case "application_controls":
		return s.applicationControls(ctx, p)
	case "failing_controls":
		return s.failingControls(ctx, p)
	case "control_detail":
		return s.controlDetail(ctx, p)
	case "frameworks_list":
		return s.frameworksList(ctx)
	case "framework_coverage":
		return s.frameworkCoverage(ctx)
	case "integrations_list":
		return s.integrationsList(ctx)
	case "score_trend":
		return s.scoreTrend(ctx, p)
	case "top_risk_applications":
		return s.topRiskApplications(ctx, p)
	default:
		return nil, &QueryError{Kind: ErrKindUnknownQuery, Message: fmt.Sprintf("unknown query type %q", queryType)}
	}
}

type framework struct {
	ID      string
	Name    string
	Version string
}

// masterFramework resolves the single reference framework every score and
// mapping is computed against. Its absence is a hard no_data error for every
// query that depends on it.
func (s *Service) masterFramework(ctx context.Context) (*framework, error) {
	var fw framework
	var version sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, version FROM frameworks WHERE is_master = 1 LIMIT 1`).
		Scan(&fw.ID, &fw.Name, &version)
	if err == sql.ErrNoRows {
		return nil, noData("no master framework configured")
	}
	if err != nil {
		return nil, dbError(err)
	}
	fw.Version = version.String
	return &fw, nil
}

type appRef struct {
	ID   string
	Name string
}

// resolveApplication finds an application by exact id or by case-insensitive
// partial name. Partial lookups keep up to maxNameCandidates matches and
// operate on the first; the remainder is returned so callers can surface the
// ambiguity.
func (s *Service) resolveApplication(ctx context.Context, p Params) (*appRef, []appRef, error) {
	if p.ApplicationID != "" {
		var ref appRef
		err := s.db.QueryRowContext(ctx,
			`SELECT id, name FROM applications WHERE id = ?`, p.ApplicationID).
			Scan(&ref.ID, &ref.Name)
		if err == sql.ErrNoRows {
			return nil, nil, noData("no application found for id %q", p.ApplicationID)
		}
		if err != nil {
			return nil, nil, dbError(err)
		}
		return &ref, nil, nil
	}

	if p.ApplicationName == "" {
		return nil, nil, missingParams("applicationId or applicationName is required")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM applications WHERE LOWER(name) LIKE ? ORDER BY name LIMIT ?`,
		"%"+strings.ToLower(p.ApplicationName)+"%", maxNameCandidates)
	if err != nil {
		return nil, nil, dbError(err)
	}
	defer rows.Close()

	var matches []appRef
	for rows.Next() {
		var ref appRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, nil, dbError(err)
		}
		matches = append(matches, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, dbError(err)
	}
	if len(matches) == 0 {
		return nil, nil, noData("no application matched %q", p.ApplicationName)
	}
	return &matches[0], matches[1:], nil
}
