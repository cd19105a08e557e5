package storage_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/c360studio/semtrip/storage"
	"github.com/c360studio/semtrip/trip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("wrong last sequence")

// fakeBucket is an in-memory Bucket with JetStream-like revisions.
type fakeBucket struct {
	mu   sync.Mutex
	seq  uint64
	data map[string][]byte
	revs map[string]uint64
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{data: map[string][]byte{}, revs: map[string]uint64{}}
}

func (b *fakeBucket) Get(_ context.Context, key string) ([]byte, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, 0, storage.ErrNotFound
	}
	return v, b.revs[key], nil
}

func (b *fakeBucket) Put(_ context.Context, key string, value []byte, revision uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revs[key] != revision {
		return errConflict
	}
	b.seq++
	b.data[key] = value
	b.revs[key] = b.seq
	return nil
}

func (b *fakeBucket) Keys(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func stores(t *testing.T) map[string]storage.Store {
	t.Helper()
	sqlite, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "data", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]storage.Store{
		"memory": storage.NewMemoryStore(),
		"sqlite": sqlite,
		"kv":     storage.NewKVStore(newFakeBucket()),
	}
}

var base = time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)

func newRun(id string, offset time.Duration) *storage.Run {
	start := trip.NewDate(2026, time.May, 1)
	created := base.Add(offset)
	return &storage.Run{
		ID:       id,
		Status:   storage.StatusProcessing,
		Progress: 10,
		Stage:    trip.StageValidating,
		Message:  "开始生成",
		Request: trip.PlanRequest{
			Destination: "杭州",
			StartDate:   start,
			EndDate:     start.AddDays(2),
			PartySize:   2,
			Tier:        trip.TierComfort,
			Styles:      []string{"美食之旅"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestStores_CreateGet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, newRun("run-1", 0)))

			got, err := s.Get(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, storage.StatusProcessing, got.Status)
			assert.Equal(t, 10, got.Progress)
			assert.Equal(t, trip.StageValidating, got.Stage)
			assert.Equal(t, "杭州", got.Request.Destination)
			assert.Equal(t, "2026-05-03", got.Request.EndDate.String())
			assert.Equal(t, trip.TierComfort, got.Request.Tier)
			assert.True(t, base.Equal(got.CreatedAt))
			assert.Nil(t, got.Result)
			assert.Nil(t, got.CompletedAt)

			assert.ErrorIs(t, s.Create(ctx, newRun("run-1", time.Minute)), storage.ErrExists)
		})
	}
}

func TestStores_NotFound(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, storage.ErrNotFound)
			assert.ErrorIs(t, s.Update(ctx, newRun("missing", 0)), storage.ErrNotFound)
		})
	}
}

func TestStores_UpdateToCompleted(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newRun("run-2", 0)
			require.NoError(t, s.Create(ctx, r))

			done := base.Add(90 * time.Second)
			r.Transition(storage.StatusCompleted, done)
			r.Progress = 100
			r.Stage = trip.StageDone
			r.Errors = []trip.StageError{{Stage: trip.StageAnalyzing, Message: "destination analysis: timeout", At: base}}
			r.Result = &trip.FinishedPlan{
				PlanID:         "plan-1",
				Title:          "杭州之旅",
				Destination:    "杭州",
				BudgetEstimate: 1065,
				Itinerary:      []trip.DayPlan{{Day: 1, Theme: "抵达适应日", TotalCost: 355}},
			}
			require.NoError(t, s.Update(ctx, r))

			got, err := s.Get(ctx, "run-2")
			require.NoError(t, err)
			assert.Equal(t, storage.StatusCompleted, got.Status)
			assert.Equal(t, 100, got.Progress)
			require.NotNil(t, got.CompletedAt)
			assert.True(t, done.Equal(*got.CompletedAt))
			require.Len(t, got.StatusChanges, 1)
			assert.Equal(t, storage.StatusProcessing, got.StatusChanges[0].From)
			require.Len(t, got.Errors, 1)
			assert.Equal(t, trip.StageAnalyzing, got.Errors[0].Stage)
			require.NotNil(t, got.Result)
			assert.Equal(t, "杭州之旅", got.Result.Title)
			assert.Equal(t, 355.0, got.Result.Itinerary[0].TotalCost)
		})
	}
}

func TestStores_ListNewestFirst(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				require.NoError(t, s.Create(ctx, newRun(fmt.Sprintf("run-%d", i), time.Duration(i)*time.Minute)))
			}

			all, err := s.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Equal(t, "run-4", all[0].ID)
			assert.Equal(t, "run-0", all[4].ID)

			top, err := s.List(ctx, 2)
			require.NoError(t, err)
			require.Len(t, top, 2)
			assert.Equal(t, "run-4", top[0].ID)
			assert.Equal(t, "run-3", top[1].ID)
		})
	}
}

func TestStores_ReturnedRunsAreCopies(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newRun("run-copy", 0)
			require.NoError(t, s.Create(ctx, r))
			r.Message = "changed after create"

			got, err := s.Get(ctx, "run-copy")
			require.NoError(t, err)
			assert.Equal(t, "开始生成", got.Message)
		})
	}
}

func TestRun_Transition(t *testing.T) {
	r := newRun("run-t", 0)
	r.Transition(storage.StatusProcessing, base.Add(time.Second))
	assert.Empty(t, r.StatusChanges)
	assert.Nil(t, r.CompletedAt)

	r.Transition(storage.StatusFailed, base.Add(2*time.Second))
	require.Len(t, r.StatusChanges, 1)
	assert.Equal(t, storage.StatusFailed, r.StatusChanges[0].To)
	require.NotNil(t, r.CompletedAt)
	assert.True(t, storage.StatusFailed.IsTerminal())
	assert.False(t, storage.StatusProcessing.IsTerminal())
}

func TestKVStore_ConcurrentUpdateConflicts(t *testing.T) {
	bucket := newFakeBucket()
	s := storage.NewKVStore(bucket)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newRun("run-kv", 0)))

	// a write that lands between Update's read and write is detected
	data, rev, err := bucket.Get(ctx, "run-kv")
	require.NoError(t, err)
	require.NoError(t, bucket.Put(ctx, "run-kv", data, rev))
	assert.ErrorIs(t, bucket.Put(ctx, "run-kv", data, rev), errConflict)

	require.NoError(t, s.Update(ctx, newRun("run-kv", 0)))
}
