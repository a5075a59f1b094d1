package compliance

import (
	"context"
	"database/sql"
	"strings"
)

// SetIntegrationStatus activates or deactivates an integration. The operation
// is idempotent: when the requested state already holds it reports
// Changed=false and issues no write.
func (s *Service) SetIntegrationStatus(ctx context.Context, action, integrationID, integrationName string) (*IntegrationChange, error) {
	var desired bool
	switch action {
	case "activate":
		desired = true
	case "deactivate":
		desired = false
	default:
		return nil, missingParams("action must be 'activate' or 'deactivate', got %q", action)
	}

	ref, err := s.resolveIntegration(ctx, integrationID, integrationName)
	if err != nil {
		return nil, err
	}

	change := &IntegrationChange{ID: ref.id, Name: ref.name, Active: desired}
	if ref.active == desired {
		change.Changed = false
		return change, nil
	}

	activeVal := 0
	if desired {
		activeVal = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE integrations SET active = ? WHERE id = ?`, activeVal, ref.id); err != nil {
		return nil, dbError(err)
	}
	change.Changed = true
	return change, nil
}

type integrationRef struct {
	id     string
	name   string
	active bool
}

func (s *Service) resolveIntegration(ctx context.Context, id, name string) (*integrationRef, error) {
	var ref integrationRef
	var active int

	if id != "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT id, name, active FROM integrations WHERE id = ?`, id).
			Scan(&ref.id, &ref.name, &active)
		if err == sql.ErrNoRows {
			return nil, noData("no integration found for id %q", id)
		}
		if err != nil {
			return nil, dbError(err)
		}
		ref.active = active != 0
		return &ref, nil
	}

	if name == "" {
		return nil, missingParams("integrationId or integrationName is required")
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, active FROM integrations WHERE LOWER(name) LIKE ? ORDER BY name LIMIT 1`,
		"%"+strings.ToLower(name)+"%").
		Scan(&ref.id, &ref.name, &active)
	if err == sql.ErrNoRows {
		return nil, noData("no integration matched %q", name)
	}
	if err != nil {
		return nil, dbError(err)
	}
	ref.active = active != 0
	return &ref, nil
}
