// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// StartArchiveScheduler archives finished events on a fixed interval.
// The caller owns the returned scheduler and must shut it down.
func StartArchiveScheduler(ctx context.Context, events *EventService, every time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			n, err := events.ArchiveFinished(ctx)
			if err != nil {
				log.Error().Err(err).Msg("[Scheduler] archive finished events failed")
				return
			}
			if n > 0 {
				log.Info().Int64("count", n).Msg("✅ [Scheduler] archived finished events")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
