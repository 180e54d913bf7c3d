package services

import (
	"context"
	"log"
	"sync"
	"time"

	"duel-arena/models"
)

// CheckResult is what one scoring pass reports back to the poller.
type CheckResult struct {
	Scores     map[string]int64 `json:"scores"`
	Completed  bool             `json:"completed"`
	Winner     string           `json:"winner,omitempty"`
	NewCredits int              `json:"new_credits"`
}

// Scorer turns externally observed verdicts into duel scores. It owns the
// critical idempotence boundary: a (problem, participant) pair is credited
// at most once, ever, no matter how many clients poll concurrently; the
// store's conflict-guarded CreditProblem is the arbiter.
type Scorer struct {
	Store DuelStore
	Judge JudgeClient
}

func NewScorer(store DuelStore, judge JudgeClient) *Scorer {
	return &Scorer{Store: store, Judge: judge}
}

// CheckSubmissions runs one scoring pass over the duel: fetch each
// participant's submission history, credit first-observed accepted verdicts,
// and finalize the duel once every problem has been solved by somebody.
// Safe to invoke repeatedly and concurrently; once the duel is terminal the
// pass is a read-only no-op. Individual upstream failures skip that
// participant for this pass only.
func (s *Scorer) CheckSubmissions(ctx context.Context, duelID string) (*CheckResult, error) {
	duel, err := s.Store.Get(ctx, duelID)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{Scores: duel.Scores}
	if duel.Status == models.DuelStatusCancelled {
		return result, nil
	}
	if duel.Status == models.DuelStatusCompleted {
		result.Completed = true
		result.Winner = duel.WinnerHandle
		return result, nil
	}
	if !duel.ProblemsGenerated || len(duel.Problems) == 0 {
		return result, nil
	}

	credited := s.creditedPairs(ctx, duelID)

	// Fetch each participant's history once per pass, concurrently, but
	// only for participants with uncredited problems left.
	pending := make([]string, 0, len(duel.Participants))
	for _, p := range duel.Participants {
		if s.hasUncredited(duel, credited, p.Handle) {
			pending = append(pending, p.Handle)
		}
	}

	histories := make(map[string][]Submission, len(pending))
	failures := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, handle := range pending {
		wg.Add(1)
		go func(handle string) {
			defer wg.Done()
			submissions, err := s.Judge.UserSubmissions(ctx, handle)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Retry on the next poll; never abort the pass.
				log.Printf("[SCORER] duel %s: submissions for %s unavailable: %v", duelID, handle, err)
				failures++
				return
			}
			histories[handle] = submissions
		}(handle)
	}
	wg.Wait()

	if len(pending) > 0 && failures == len(pending) {
		return nil, ErrUpstream
	}

	for handle, submissions := range histories {
		latest := latestByProblem(submissions)
		for _, problem := range duel.Problems {
			key := problem.Key()
			if credited[key][handle] {
				continue
			}
			sub, ok := latest[key]
			if !ok || sub.Verdict != VerdictAccepted {
				continue
			}
			won, err := s.Store.CreditProblem(ctx, models.ProblemCredit{
				DuelID:     duelID,
				ProblemKey: key,
				Handle:     handle,
				Points:     int64(problem.Rating),
			})
			if err != nil {
				log.Printf("[SCORER] duel %s: crediting %s for %s failed: %v", duelID, handle, key, err)
				continue
			}
			if won {
				result.NewCredits++
				log.Printf("[SCORER] duel %s: %s solved %s (+%d)", duelID, handle, key, problem.Rating)
			}
		}
	}

	// Re-read so concurrent passes' credits are visible before deciding
	// completion.
	duel, err = s.Store.Get(ctx, duelID)
	if err != nil {
		return nil, err
	}
	result.Scores = duel.Scores

	credited = s.creditedPairs(ctx, duelID)
	if !allProblemsCredited(duel, credited) {
		return result, nil
	}

	winner := determineWinner(duel)
	if winner != "" {
		if err := s.Store.SetWinner(ctx, duelID, winner); err != nil {
			log.Printf("[SCORER] duel %s: recording winner failed: %v", duelID, err)
		}
	}
	swapped, err := s.Store.TransitionStatus(ctx, duelID,
		[]string{models.DuelStatusWaiting, models.DuelStatusStarting, models.DuelStatusActive},
		models.DuelStatusCompleted, time.Now())
	if err != nil {
		return nil, err
	}
	if swapped {
		log.Printf("[SCORER] duel %s: all problems solved, completed (winner %s)", duelID, winner)
	}

	duel, err = s.Store.Get(ctx, duelID)
	if err != nil {
		return nil, err
	}
	result.Scores = duel.Scores
	result.Completed = true
	result.Winner = duel.WinnerHandle
	return result, nil
}

// creditedPairs indexes existing credits as problemKey → handle → true.
func (s *Scorer) creditedPairs(ctx context.Context, duelID string) map[string]map[string]bool {
	index := make(map[string]map[string]bool)
	credits, err := s.Store.Credits(ctx, duelID)
	if err != nil {
		log.Printf("[SCORER] duel %s: loading credits failed: %v", duelID, err)
		return index
	}
	for _, credit := range credits {
		if index[credit.ProblemKey] == nil {
			index[credit.ProblemKey] = make(map[string]bool)
		}
		index[credit.ProblemKey][credit.Handle] = true
	}
	return index
}

func (s *Scorer) hasUncredited(duel *models.Duel, credited map[string]map[string]bool, handle string) bool {
	for _, problem := range duel.Problems {
		if !credited[problem.Key()][handle] {
			return true
		}
	}
	return false
}

// latestByProblem keeps only the most recent submission per problem key.
func latestByProblem(submissions []Submission) map[string]Submission {
	latest := make(map[string]Submission)
	for _, sub := range submissions {
		current, ok := latest[sub.Key()]
		if !ok || sub.SubmittedAt.After(current.SubmittedAt) {
			latest[sub.Key()] = sub
		}
	}
	return latest
}

func allProblemsCredited(duel *models.Duel, credited map[string]map[string]bool) bool {
	if len(duel.Problems) == 0 {
		return false
	}
	for _, problem := range duel.Problems {
		if len(credited[problem.Key()]) == 0 {
			return false
		}
	}
	return true
}

// determineWinner picks the strictly highest score; exact ties go to the
// participant who joined first. Participants are loaded in join order.
func determineWinner(duel *models.Duel) string {
	winner := ""
	var best int64 = -1
	for _, p := range duel.Participants {
		if p.Score > best {
			best = p.Score
			winner = p.Handle
		}
	}
	return winner
}
