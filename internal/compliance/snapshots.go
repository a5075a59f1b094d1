package compliance

import (
	"context"
	"fmt"
	"time"
)

// RecordSnapshots writes one overall snapshot row plus one row per scored
// application, stamped with the given time. The scheduler runs this daily so
// score_trend has a time series to serve.
func (s *Service) RecordSnapshots(ctx context.Context, takenAt time.Time) error {
	master, err := s.masterFramework(ctx)
	if err != nil {
		return fmt.Errorf("snapshot aborted: %w", err)
	}

	apps, err := s.appScores(ctx, master.ID, "")
	if err != nil {
		return fmt.Errorf("snapshot aborted: %w", err)
	}
	if len(apps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot tx: %w", err)
	}
	defer tx.Rollback()

	stamp := takenAt.UTC().Format("2006-01-02 15:04:05")

	var total float64
	for _, a := range apps {
		total += a.Score
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO score_snapshots (app_id, taken_at, score) VALUES (?, ?, ?)`,
			a.ID, stamp, a.Score); err != nil {
			return fmt.Errorf("snapshot insert: %w", err)
		}
	}
	overall := round1(total / float64(len(apps)))
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO score_snapshots (app_id, taken_at, score) VALUES (NULL, ?, ?)`,
		stamp, overall); err != nil {
		return fmt.Errorf("snapshot insert: %w", err)
	}

	return tx.Commit()
}
