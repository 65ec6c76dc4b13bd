// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartSeasonScheduler runs ResetSeason on the given cron expression
// (standard five fields). Stop it with Shutdown on the returned scheduler.
func (s *SeasonService) StartSeasonScheduler(ctx context.Context, cronExpr string) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			report, err := s.ResetSeason(ctx, "")
			if err != nil {
				s.Log.Error("[Scheduler] season reset failed", zap.Error(err))
				return
			}
			s.Log.Info("[Scheduler] season closed", zap.String("label", report.Label), zap.Int64("users", report.Users))
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("invalid season reset schedule %q: %w", cronExpr, err)
	}

	sched.Start()
	return sched, nil
}
