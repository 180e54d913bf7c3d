// workers/problemset_sync_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"duel-arena/services"
)

// ProblemsetSyncWorker keeps the local problemset mirror fresh. It refreshes
// once on boot (the selector is useless against an empty mirror) and then on
// an interval; Codeforces publishes new problems a few times a week, so the
// default is generous.
type ProblemsetSyncWorker struct {
	judge    services.JudgeClient
	catalog  services.CatalogStore
	interval time.Duration
}

func NewProblemsetSyncWorker(judge services.JudgeClient, catalog services.CatalogStore, interval time.Duration) *ProblemsetSyncWorker {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &ProblemsetSyncWorker{
		judge:    judge,
		catalog:  catalog,
		interval: interval,
	}
}

func (w *ProblemsetSyncWorker) Start(ctx context.Context) {
	log.Println("[SYNC] Starting Problemset Sync Worker (codeforces → catalog mirror)…")
	go w.run(ctx)
}

func (w *ProblemsetSyncWorker) run(ctx context.Context) {
	if err := w.syncOnce(ctx); err != nil {
		log.Printf("[SYNC] Initial problemset sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncOnce(ctx); err != nil {
				log.Printf("[SYNC] Problemset sync failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("[SYNC] Problemset Sync Worker stopped")
			return
		}
	}
}

func (w *ProblemsetSyncWorker) syncOnce(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	problems, err := w.judge.ProblemList(fetchCtx)
	if err != nil {
		return err
	}

	written, err := w.catalog.UpsertProblems(fetchCtx, problems)
	if err != nil {
		return err
	}

	log.Printf("[SYNC] Problemset mirror refreshed: %d problems fetched, %d rows written", len(problems), written)
	return nil
}
