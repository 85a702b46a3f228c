package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Popie52/offlinesync/internal/clock"
	"github.com/Popie52/offlinesync/internal/model"
)

// storeFactory builds a fresh, empty store driven by the given clock.
type storeFactory func(t *testing.T, c clock.Clock) ActionStore

// runStoreSuite checks the ActionStore contract against one implementation.
func runStoreSuite(t *testing.T, newStore storeFactory) {
	t.Run("EnqueueSmall", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))

		a, err := s.Enqueue(context.Background(), model.KindSmall, "test payload")
		require.NoError(t, err)

		assert.Equal(t, model.KindSmall, a.Kind)
		assert.Equal(t, "test payload", a.Payload)
		assert.Equal(t, model.StatusPending, a.Status)
		assert.Equal(t, 1, a.Priority)
		assert.Equal(t, 0, a.RetryCount)
		assert.Equal(t, int64(1000), a.CreatedAt)
		assert.Nil(t, a.CompletedAt)
		assert.Positive(t, a.Seq)

		parsed, err := uuid.Parse(a.ID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(4), parsed.Version())
	})

	t.Run("EnqueueLarge", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))

		a, err := s.Enqueue(context.Background(), model.KindLarge, "large payload")
		require.NoError(t, err)
		assert.Equal(t, 2, a.Priority)

		stored, err := s.Get(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, a, stored)
	})

	t.Run("EnqueueUnknownKind", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))

		_, err := s.Enqueue(context.Background(), model.Kind("medium"), "x")
		assert.ErrorIs(t, err, ErrUnknownKind)

		pending, err := s.ListPending(context.Background())
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("ListPendingEmpty", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))

		pending, err := s.ListPending(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, pending)
		assert.Empty(t, pending)
	})

	t.Run("ListPendingOrder", func(t *testing.T) {
		c := clock.NewManual(1000)
		s := newStore(t, c)
		ctx := context.Background()

		large1 := enqueueAt(t, s, c, 1000, model.KindLarge)
		small1 := enqueueAt(t, s, c, 1002, model.KindSmall)
		small0 := enqueueAt(t, s, c, 1001, model.KindSmall)
		large0 := enqueueAt(t, s, c, 999, model.KindLarge)
		// exact duplicate keys keep insertion order
		dupA := enqueueAt(t, s, c, 1005, model.KindSmall)
		dupB := enqueueAt(t, s, c, 1005, model.KindSmall)

		pending, err := s.ListPending(ctx)
		require.NoError(t, err)
		assert.Equal(t,
			[]string{small0.ID, small1.ID, dupA.ID, dupB.ID, large0.ID, large1.ID},
			ids(pending),
		)
	})

	t.Run("ListPendingOrderRandomized", func(t *testing.T) {
		c := clock.NewManual(1000)
		s := newStore(t, c)
		rng := rand.New(rand.NewPCG(1, 2))

		kinds := []model.Kind{model.KindSmall, model.KindLarge}
		inserted := make([]*model.Action, 0, 60)
		for i := 0; i < 60; i++ {
			// a narrow window forces many equal timestamps
			at := 1000 + rng.Int64N(8)
			inserted = append(inserted, enqueueAt(t, s, c, at, kinds[rng.IntN(len(kinds))]))
		}

		want := append([]*model.Action(nil), inserted...)
		sort.SliceStable(want, func(i, j int) bool {
			if want[i].Priority != want[j].Priority {
				return want[i].Priority < want[j].Priority
			}
			return want[i].CreatedAt < want[j].CreatedAt
		})

		pending, err := s.ListPending(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ids(want), ids(pending))
	})

	t.Run("ListPendingReflectsLatestState", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))
		ctx := context.Background()

		a, err := s.Enqueue(ctx, model.KindSmall, "a")
		require.NoError(t, err)

		pending, err := s.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)

		require.NoError(t, s.MarkCompleted(ctx, a.ID))

		pending, err = s.ListPending(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("MarkCompleted", func(t *testing.T) {
		c := clock.NewManual(1000)
		s := newStore(t, c)
		ctx := context.Background()

		a, err := s.Enqueue(ctx, model.KindSmall, "a")
		require.NoError(t, err)

		c.Set(2000)
		require.NoError(t, s.MarkCompleted(ctx, a.ID))

		got, err := s.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, got.Status)
		require.NotNil(t, got.CompletedAt)
		assert.Equal(t, int64(2000), *got.CompletedAt)
	})

	t.Run("MarkCompletedIdempotent", func(t *testing.T) {
		c := clock.NewManual(1000)
		s := newStore(t, c)
		ctx := context.Background()

		a, err := s.Enqueue(ctx, model.KindSmall, "a")
		require.NoError(t, err)

		c.Set(2000)
		require.NoError(t, s.MarkCompleted(ctx, a.ID))
		once, err := s.Get(ctx, a.ID)
		require.NoError(t, err)

		c.Set(3000)
		require.NoError(t, s.MarkCompleted(ctx, a.ID))
		twice, err := s.Get(ctx, a.ID)
		require.NoError(t, err)

		assert.Equal(t, once, twice)
	})

	t.Run("MarkCompletedUnknownID", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))
		assert.NoError(t, s.MarkCompleted(context.Background(), "does-not-exist"))
	})

	t.Run("IncrementRetry", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))
		ctx := context.Background()

		a, err := s.Enqueue(ctx, model.KindSmall, "a")
		require.NoError(t, err)

		require.NoError(t, s.IncrementRetry(ctx, a.ID))
		require.NoError(t, s.IncrementRetry(ctx, a.ID))

		n, err := s.RetryCountOf(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := s.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, got.Status)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("IncrementRetryUnknownID", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))
		assert.NoError(t, s.IncrementRetry(context.Background(), "does-not-exist"))
	})

	t.Run("IncrementRetryIgnoresCompleted", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))
		ctx := context.Background()

		a, err := s.Enqueue(ctx, model.KindSmall, "a")
		require.NoError(t, err)
		require.NoError(t, s.MarkCompleted(ctx, a.ID))
		require.NoError(t, s.IncrementRetry(ctx, a.ID))

		n, err := s.RetryCountOf(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("IncrementRetryConcurrent", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))
		ctx := context.Background()

		a, err := s.Enqueue(ctx, model.KindSmall, "a")
		require.NoError(t, err)

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.IncrementRetry(ctx, a.ID)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		n, err := s.RetryCountOf(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, workers, n)
	})

	t.Run("RetryCountOfUnknownID", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))

		n, err := s.RetryCountOf(context.Background(), "does-not-exist")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("GetUnknownID", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))

		_, err := s.Get(context.Background(), "does-not-exist")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListCompletedNewestFirst", func(t *testing.T) {
		c := clock.NewManual(1000)
		s := newStore(t, c)
		ctx := context.Background()

		a := enqueueAt(t, s, c, 1000, model.KindSmall)
		b := enqueueAt(t, s, c, 1001, model.KindSmall)
		d := enqueueAt(t, s, c, 1002, model.KindLarge)

		c.Set(5000)
		require.NoError(t, s.MarkCompleted(ctx, b.ID))
		c.Set(6000)
		require.NoError(t, s.MarkCompleted(ctx, a.ID))

		completed, err := s.ListCompleted(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{a.ID, b.ID}, ids(completed))

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{d.ID, a.ID, b.ID}, ids(all))
	})

	t.Run("ListAllPendingFirst", func(t *testing.T) {
		c := clock.NewManual(1000)
		s := newStore(t, c)
		ctx := context.Background()

		done := enqueueAt(t, s, c, 1000, model.KindSmall)
		large := enqueueAt(t, s, c, 1001, model.KindLarge)
		small := enqueueAt(t, s, c, 1002, model.KindSmall)

		c.Set(1500)
		require.NoError(t, s.MarkCompleted(ctx, done.ID))

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{small.ID, large.ID, done.ID}, ids(all))
	})

	t.Run("Stats", func(t *testing.T) {
		s := newStore(t, clock.NewManual(1000))
		ctx := context.Background()

		a, err := s.Enqueue(ctx, model.KindSmall, "a")
		require.NoError(t, err)
		b, err := s.Enqueue(ctx, model.KindLarge, "b")
		require.NoError(t, err)
		_, err = s.Enqueue(ctx, model.KindLarge, "c")
		require.NoError(t, err)

		require.NoError(t, s.MarkCompleted(ctx, a.ID))
		for i := 0; i < 3; i++ {
			require.NoError(t, s.IncrementRetry(ctx, b.ID))
		}

		st, err := s.Stats(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, Stats{Pending: 2, Completed: 1, Exhausted: 1}, st)
		assert.Equal(t, 3, st.Total())
	})
}

func enqueueAt(t *testing.T, s ActionStore, c *clock.Manual, at int64, kind model.Kind) *model.Action {
	t.Helper()
	c.Set(at)
	a, err := s.Enqueue(context.Background(), kind, fmt.Sprintf("%s@%d", kind, at))
	require.NoError(t, err)
	return a
}

func ids(actions []*model.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.ID)
	}
	return out
}
