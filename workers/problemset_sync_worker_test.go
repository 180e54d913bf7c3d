package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"duel-arena/models"
	"duel-arena/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJudge struct {
	problems []models.CatalogProblem
	err      error
	calls    int
}

func (s *stubJudge) ProblemList(ctx context.Context) ([]models.CatalogProblem, error) {
	s.calls++
	return s.problems, s.err
}

func (s *stubJudge) UserSubmissions(ctx context.Context, handle string) ([]services.Submission, error) {
	return nil, errors.New("not implemented")
}

func (s *stubJudge) UserInfo(ctx context.Context, handle string) (*services.UserProfile, error) {
	return nil, errors.New("not implemented")
}

func TestSyncOnceRefreshesMirror(t *testing.T) {
	judge := &stubJudge{problems: []models.CatalogProblem{
		{ContestID: 100, Index: "A", Name: "Alpha", Rating: 900},
		{ContestID: 200, Index: "B", Name: "Beta", Rating: 1100},
	}}
	catalog := services.NewMemoryCatalogStore()
	worker := NewProblemsetSyncWorker(judge, catalog, time.Hour)

	require.NoError(t, worker.syncOnce(context.Background()))

	count, err := catalog.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 1, judge.calls)
}

func TestSyncOncePropagatesFetchError(t *testing.T) {
	judge := &stubJudge{err: errors.New("down")}
	catalog := services.NewMemoryCatalogStore()
	worker := NewProblemsetSyncWorker(judge, catalog, time.Hour)

	assert.Error(t, worker.syncOnce(context.Background()))
	count, err := catalog.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestNewWorkerDefaultsInterval(t *testing.T) {
	worker := NewProblemsetSyncWorker(&stubJudge{}, services.NewMemoryCatalogStore(), 0)
	assert.Equal(t, 6*time.Hour, worker.interval)
}
