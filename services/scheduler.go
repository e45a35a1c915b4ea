// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartClaimExpiryScheduler sweeps overdue ACTIVE claims on a fixed
// interval, expiring them and reopening bounties left without a live
// claim.
func (s *BountyService) StartClaimExpiryScheduler() {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("❌ [Scheduler] failed to start claim expiry scheduler: %v", err)
		return
	}
	sched.Start()

	_, err = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			expired, err := s.ExpireOverdueClaims()
			if err != nil {
				log.Printf("[Scheduler] claim expiry sweep failed: %v", err)
				return
			}
			if expired > 0 {
				log.Printf("⏰ [Scheduler] expired %d overdue claims", expired)
			}
		}),
	)
	if err != nil {
		log.Printf("❌ [Scheduler] failed to register claim expiry job: %v", err)
	}
}
