package services

import (
	"context"
	"log"
	"sync"
	"time"

	"duel-arena/models"
)

// precedes lists the stored statuses a clock-derived transition may replace.
// A duel that was never polled can jump straight from waiting to completed;
// terminal statuses are never replaced.
var precedes = map[string][]string{
	models.DuelStatusStarting:  {models.DuelStatusWaiting},
	models.DuelStatusActive:    {models.DuelStatusWaiting, models.DuelStatusStarting},
	models.DuelStatusCompleted: {models.DuelStatusWaiting, models.DuelStatusStarting, models.DuelStatusActive},
}

// Lifecycle applies clock-derived status transitions to stored duels. The
// derivation itself lives on models.Duel (EffectiveStatusAt); this type owns
// the persistence side: compare-and-swap transitions, the explicit start and
// cancel operations, and the deferred starting→active promotion timer.
type Lifecycle struct {
	store DuelStore

	// activationDelay is the starting window length; tests shrink it.
	activationDelay time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewLifecycle(store DuelStore) *Lifecycle {
	return &Lifecycle{
		store:           store,
		activationDelay: models.StartingWindow,
		timers:          make(map[string]*time.Timer),
	}
}

// Reconcile aligns the stored status with the clock and pins the matching
// transition timestamp. Every step is a conditional swap in the store, so
// any number of pollers may reconcile the same duel concurrently; losers of
// the race simply observe the winner's write. Returns the fresh record.
func (l *Lifecycle) Reconcile(ctx context.Context, duel *models.Duel, now time.Time) (*models.Duel, error) {
	if duel.Status == models.DuelStatusCancelled || duel.Status == models.DuelStatusCompleted {
		return duel, nil
	}
	effective := duel.EffectiveStatusAt(now)
	if effective == duel.Status {
		return duel, nil
	}
	from, ok := precedes[effective]
	if !ok {
		return duel, nil
	}
	swapped, err := l.store.TransitionStatus(ctx, duel.DuelID, from, effective, now)
	if err != nil {
		return nil, err
	}
	if swapped {
		log.Printf("[LIFECYCLE] duel %s: %s → %s", duel.DuelID, duel.Status, effective)
	}
	return l.store.Get(ctx, duel.DuelID)
}

// Start is the creator-triggered shortcut out of waiting. It pulls the
// scheduled start forward so that the duel enters its 10-second countdown
// immediately; from there the timing math is identical to the clock-driven
// path. Fails with ErrInvalidTransition unless the duel is still waiting,
// and with ErrForbidden when a requester is given and is not the creator.
func (l *Lifecycle) Start(ctx context.Context, duelID, requester string) (*models.Duel, error) {
	duel, err := l.store.Get(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if requester != "" && requester != duel.CreatorHandle {
		return nil, ErrForbidden
	}
	swapped, err := l.store.BeginStart(ctx, duelID, time.Now())
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrInvalidTransition
	}
	l.scheduleActivation(duelID)
	return l.store.Get(ctx, duelID)
}

// scheduleActivation arms the one-shot starting→active promotion. The fire
// path re-checks status via the store's swap guard, so a timer that outlives
// a cancellation is a no-op.
func (l *Lifecycle) scheduleActivation(duelID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, armed := l.timers[duelID]; armed {
		return
	}
	l.timers[duelID] = time.AfterFunc(l.activationDelay, func() {
		l.mu.Lock()
		delete(l.timers, duelID)
		l.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		swapped, err := l.store.TransitionStatus(ctx, duelID,
			[]string{models.DuelStatusStarting}, models.DuelStatusActive, time.Now())
		if err != nil {
			log.Printf("[LIFECYCLE] duel %s: deferred activation failed: %v", duelID, err)
			return
		}
		if swapped {
			log.Printf("[LIFECYCLE] duel %s: starting → active (timer)", duelID)
		}
	})
}

// Cancel moves a waiting or active duel to the terminal cancelled status and
// disarms any pending activation timer.
func (l *Lifecycle) Cancel(ctx context.Context, duelID string) (*models.Duel, error) {
	swapped, err := l.store.TransitionStatus(ctx, duelID,
		[]string{models.DuelStatusWaiting, models.DuelStatusActive},
		models.DuelStatusCancelled, time.Now())
	if err != nil {
		return nil, err
	}
	if !swapped {
		if _, getErr := l.store.Get(ctx, duelID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}

	l.mu.Lock()
	if timer, ok := l.timers[duelID]; ok {
		timer.Stop()
		delete(l.timers, duelID)
	}
	l.mu.Unlock()

	return l.store.Get(ctx, duelID)
}

// StopTimers disarms all pending activation timers, for shutdown.
func (l *Lifecycle) StopTimers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, timer := range l.timers {
		timer.Stop()
		delete(l.timers, id)
	}
}
