// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartDuelSweeper runs the background reconciliation loop: duels whose time
// boundaries passed with nobody polling them still reach their clock-derived
// status. Each sweep is the same idempotent CAS the read path uses, so
// sweeps and pollers never fight.
func StartDuelSweeper(store DuelStore, lifecycle *Lifecycle) gocron.Scheduler {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 30s: reconcile duels that reached a boundary
	_, _ = sched.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
			defer cancel()

			duels, err := store.DuelsDue(ctx, time.Now())
			if err != nil {
				log.Printf("[SWEEP] listing due duels failed: %v", err)
				return
			}
			for i := range duels {
				if _, err := lifecycle.Reconcile(ctx, &duels[i], time.Now()); err != nil {
					log.Printf("[SWEEP] reconciling duel %s failed: %v", duels[i].DuelID, err)
				}
			}
		}),
	)

	return sched
}
