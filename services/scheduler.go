// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartExpirySweep runs the recurring-quest reset on a schedule. It stands in
// for a store-side TTL index: expired daily/weekly completion records are
// removed so those quests become completable again.
func (s *RecorderService) StartExpirySweep() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			removed, err := s.ExpireRecurring(context.Background())
			if err != nil {
				log.Printf("[Sweep] DB error: %v", err)
				return
			}
			if removed > 0 {
				log.Printf("✅ Reset %d expired recurring completion(s)", removed)
			}
		}),
	)
}
