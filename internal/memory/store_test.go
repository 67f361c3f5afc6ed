package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memorylane/internal/domain"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "history.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func outcome(job, user string, status domain.OutcomeStatus, at time.Time) domain.DeliveryOutcome {
	return domain.DeliveryOutcome{
		JobID:          job,
		EventID:        "Ev" + job,
		Channel:        "C1",
		ThreadTS:       "1700000000.000100",
		User:           user,
		Prompt:         "3 year old at the beach",
		EnhancedPrompt: "A vintage photograph of VISHYFACE as a 3-year-old child, 3 year old at the beach",
		ImageURL:       "https://replicate.delivery/out.webp",
		Status:         status,
		Duration:       1500 * time.Millisecond,
		CreatedAt:      at,
	}
}

func TestStore_RecordAndListRecent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, s.RecordOutcome(ctx, outcome("j1", "U1", domain.OutcomeSucceeded, base)))
	require.NoError(t, s.RecordOutcome(ctx, outcome("j2", "U2", domain.OutcomeFailed, base.Add(time.Minute))))
	require.NoError(t, s.RecordOutcome(ctx, outcome("j3", "U1", domain.OutcomeSucceeded, base.Add(2*time.Minute))))

	got, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "j3", got[0].JobID)
	assert.Equal(t, "j2", got[1].JobID)

	assert.Equal(t, domain.OutcomeFailed, got[1].Status)
	assert.Equal(t, "C1", got[1].Channel)
	assert.Equal(t, 1500*time.Millisecond, got[1].Duration)
	assert.Equal(t, base.Add(time.Minute).UnixMilli(), got[1].CreatedAt.UnixMilli())
}

func TestStore_RecordReplacesSameJob(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	o := outcome("j1", "U1", domain.OutcomeFailed, time.Now())
	o.Error = "boom"
	require.NoError(t, s.RecordOutcome(ctx, o))
	o.Status = domain.OutcomeSucceeded
	o.Error = ""
	require.NoError(t, s.RecordOutcome(ctx, o))

	got, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.OutcomeSucceeded, got[0].Status)
	assert.Empty(t, got[0].Error)
}

func TestStore_RecordRequiresJobID(t *testing.T) {
	s := testStore(t)
	err := s.RecordOutcome(context.Background(), domain.DeliveryOutcome{Channel: "C1"})
	assert.Error(t, err)
}

func TestStore_ListByUserAndStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordOutcome(ctx, outcome("j1", "U1", domain.OutcomeSucceeded, now)))
	require.NoError(t, s.RecordOutcome(ctx, outcome("j2", "U2", domain.OutcomeFailed, now)))
	require.NoError(t, s.RecordOutcome(ctx, outcome("j3", "U1", domain.OutcomeFailed, now)))

	mine, err := s.ListByUser(ctx, "U1", 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, o := range mine {
		assert.Equal(t, "U1", o.User)
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []StatusCount{
		{Status: domain.OutcomeFailed, Count: 2},
		{Status: domain.OutcomeSucceeded, Count: 1},
	}, stats)
}

func TestStore_Prune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordOutcome(ctx, outcome("old", "U1", domain.OutcomeSucceeded, now.Add(-48*time.Hour))))
	require.NoError(t, s.RecordOutcome(ctx, outcome("new", "U1", domain.OutcomeSucceeded, now)))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	left, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].JobID)
}

func TestStore_Ping(t *testing.T) {
	s := testStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

type fakePruner struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestRetention_RunOnceUsesMaxAge(t *testing.T) {
	p := &fakePruner{n: 3}
	r := NewRetention(RetentionConfig{Pruner: p, MaxAge: 30 * 24 * time.Hour, Logger: testLogger()})
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), p.cutoff)
}

func TestRetention_RunOnceError(t *testing.T) {
	p := &fakePruner{err: errors.New("disk I/O error")}
	r := NewRetention(RetentionConfig{Pruner: p, MaxAge: time.Hour, Logger: testLogger()})
	_, err := r.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRetention_StartStop(t *testing.T) {
	r := NewRetention(RetentionConfig{Pruner: &fakePruner{}, MaxAge: time.Hour, Logger: testLogger()})
	require.NoError(t, r.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}

func TestRetention_InvalidSchedule(t *testing.T) {
	r := NewRetention(RetentionConfig{Pruner: &fakePruner{}, MaxAge: time.Hour, Schedule: "not a schedule", Logger: testLogger()})
	assert.Error(t, r.Start())
}

func TestRetention_DisabledWithoutMaxAge(t *testing.T) {
	r := NewRetention(RetentionConfig{Pruner: &fakePruner{}, Logger: testLogger()})
	assert.NoError(t, r.Start())
}
