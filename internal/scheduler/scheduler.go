package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler owns the daily compliance-score snapshot job that feeds the
// score_trend query.
type Scheduler struct {
	cron         *cron.Cron
	ctx          context.Context
	cancel       context.CancelFunc
	snapshotFunc func(ctx context.Context) error
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetSnapshotFunction sets the job executed on the daily schedule.
func (s *Scheduler) SetSnapshotFunction(f func(ctx context.Context) error) {
	s.snapshotFunc = f
}

// Start registers the daily job at 21:00 UTC and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.snapshotFunc == nil {
		log.Println("⚠️ Snapshot function not set, scheduler will not record score snapshots")
		return nil
	}

	_, err := s.cron.AddFunc("0 21 * * *", func() {
		log.Println("🕘 Triggered daily score snapshot at 21:00 UTC")
		if err := s.snapshotFunc(s.ctx); err != nil {
			log.Printf("❌ Daily score snapshot failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Println("📅 Scheduler started - score snapshots will be recorded at 21:00 UTC")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("📅 Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
