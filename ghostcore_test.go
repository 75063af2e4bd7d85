//go:build unix

package ghostcore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hupe1980/ghostcore/ghost"
	"github.com/hupe1980/ghostcore/internal/vectorize"
)

func newTestRuntime(t *testing.T, optFns ...Option) *Runtime {
	t.Helper()
	opts := append([]Option{
		WithArenaSize(16 << 20),
		WithLogRegionSize(1 << 20),
	}, optFns...)

	rt, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Shutdown() })
	return rt
}

func TestNewRuntime(t *testing.T) {
	t.Run("boots with a small arena", func(t *testing.T) {
		rt := newTestRuntime(t)

		stats := rt.Stats()
		assert.Equal(t, uint64(16<<20), stats.ArenaSize)
		assert.Equal(t, uint64(0), stats.DocumentsStored)
		assert.Greater(t, stats.FaultCount, uint64(0), "bootstrap must have healed at least one fault")
	})

	t.Run("rejects a log region that leaves no heap", func(t *testing.T) {
		_, err := New(
			WithArenaSize(1<<20),
			WithLogRegionSize(1<<20),
		)
		require.Error(t, err)
	})

	t.Run("reset discards prior records", func(t *testing.T) {
		rt := newTestRuntime(t, WithReset(true))
		assert.Equal(t, uint64(0), rt.Stats().DocumentsStored)
	})
}

func TestIngest(t *testing.T) {
	t.Run("requires a started runtime", func(t *testing.T) {
		rt := newTestRuntime(t)
		require.ErrorIs(t, rt.Ingest("too early"), ErrNotRunning)
	})

	t.Run("documents become stored records", func(t *testing.T) {
		rt := newTestRuntime(t)
		require.NoError(t, rt.Start(context.Background()))

		docs := []string{
			"the ghost haunts the machine",
			"slab by slab the arena fills",
			"pages appear exactly when touched",
		}
		for _, doc := range docs {
			require.NoError(t, rt.Ingest(doc))
		}

		require.Eventually(t, func() bool {
			return rt.Stats().DocumentsStored == uint64(len(docs))
		}, 5*time.Second, 10*time.Millisecond)

		stats := rt.Stats()
		assert.Greater(t, stats.VocabularySize, 0)
		assert.Equal(t, 0, stats.QueueLen)
	})

	t.Run("empty document is accepted and skipped", func(t *testing.T) {
		rt := newTestRuntime(t)
		require.NoError(t, rt.Start(context.Background()))

		require.NoError(t, rt.Ingest(""))
		assert.Equal(t, uint64(0), rt.Stats().DocumentsStored)
	})

	t.Run("oversized document is rejected", func(t *testing.T) {
		rt := newTestRuntime(t, WithMaxDocumentSize(16))
		require.NoError(t, rt.Start(context.Background()))

		err := rt.Ingest("this document is longer than sixteen bytes")
		var tooLarge *ErrDocumentTooLarge
		require.ErrorAs(t, err, &tooLarge)
		assert.Equal(t, 16, tooLarge.Limit)
	})

	t.Run("rate limit rejects the burst overflow", func(t *testing.T) {
		rt := newTestRuntime(t, WithIngestRate(rate.Limit(1), 1))
		require.NoError(t, rt.Start(context.Background()))

		require.NoError(t, rt.Ingest("first"))
		require.ErrorIs(t, rt.Ingest("second"), ErrRateLimited)
	})
}

func TestIngestSpool(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(context.Background()))

	path := filepath.Join(t.TempDir(), "spool.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha beta\ngamma delta\n"), 0o644))

	require.NoError(t, rt.IngestSpool(path))
	require.Eventually(t, func() bool {
		return rt.Stats().DocumentsStored == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStoredRecordFormat(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(context.Background()))

	require.NoError(t, rt.Ingest("ghost ghost ghost machine"))
	require.Eventually(t, func() bool {
		return rt.Stats().DocumentsStored == 1
	}, 5*time.Second, 10*time.Millisecond)

	// The first record sits directly after the arena header.
	var buf [vectorize.RecordSize]byte
	rt.ghost.CopyOut(ghost.HeaderSize, buf[:])
	q := vectorize.Decode(buf[:])

	// Two distinct terms, counts 3 and 1: the dequantized vector must carry
	// mass in exactly two buckets.
	nonzero := 0
	for i := 0; i < vectorize.Dimension; i++ {
		if q.Dequantize(i) > 0.5 {
			nonzero++
		}
	}
	assert.Equal(t, 2, nonzero)
}

func TestAllocateFree(t *testing.T) {
	rt := newTestRuntime(t)

	off, err := rt.Allocate(1024)
	require.NoError(t, err)
	assert.NotZero(t, off)
	assert.Zero(t, off%64, "payloads are 64-byte aligned")

	p, err := rt.Pointer(off)
	require.NoError(t, err)
	assert.NotNil(t, p)

	rt.Free(off)
	assert.Equal(t, uint64(0), rt.Stats().Heap.InUseBytes)

	_, err = rt.Allocate(32 << 20) // larger than the whole arena
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestMetricsCollection(t *testing.T) {
	mc := &BasicMetricsCollector{}
	rt := newTestRuntime(t, WithMetricsCollector(mc))
	require.NoError(t, rt.Start(context.Background()))

	require.NoError(t, rt.Ingest("observable document"))
	require.Eventually(t, func() bool {
		return mc.GetStats().ProcessCount == 1
	}, 5*time.Second, 10*time.Millisecond)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.IngestCount)
	assert.Equal(t, int64(0), stats.IngestDropped)
	assert.Equal(t, int64(1), stats.AllocCount)
	assert.Equal(t, int64(1), stats.FreeCount)
}

func TestShutdown(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(context.Background()))

	require.NoError(t, rt.Shutdown())
	require.NoError(t, rt.Shutdown(), "shutdown is idempotent")
	require.ErrorIs(t, rt.Ingest("after shutdown"), ErrNotRunning)
}

func TestScheduler(t *testing.T) {
	rt := newTestRuntime(t)
	sched := rt.Scheduler()
	require.NotNil(t, sched)

	ran := false
	sched.Spawn("probe", func() { ran = true })
	sched.Yield()
	assert.True(t, ran)
}
