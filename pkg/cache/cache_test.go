package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/logprune/pkg/eventlog"
	"github.com/logflow/logprune/pkg/filter"
)

func testLog() *eventlog.Log {
	return eventlog.NewLog("t",
		[]eventlog.Activity{"a", "b", "c", "d"},
		[]eventlog.Activity{"a", "c", "b", "d"},
		[]eventlog.Activity{"a", "x", "b", "c", "d"},
	)
}

func TestFingerprint(t *testing.T) {
	log := testLog()
	fp := Fingerprint(log, 2)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint(log.Clone(), 2))

	assert.NotEqual(t, fp, Fingerprint(log, 3), "threshold is part of the key")

	renamed := log.Clone()
	renamed.Name = "other"
	renamed.Traces[0].ID = "zzz"
	assert.Equal(t, fp, Fingerprint(renamed, 2), "names and ids are ignored")

	// "ab"+"c" and "a"+"bc" must not collide.
	l1 := eventlog.NewLog("", []eventlog.Activity{"ab", "c"})
	l2 := eventlog.NewLog("", []eventlog.Activity{"a", "bc"})
	assert.NotEqual(t, Fingerprint(l1, 2), Fingerprint(l2, 2))
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }

	value := []byte("v1")
	require.NoError(t, c.Set(ctx, "k", value))
	value[0] = 'X'

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got, "Set must copy its input")

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func assertSameResult(t *testing.T, want, got *filter.Result) {
	t.Helper()
	assert.True(t, want.Initial.Equal(got.Initial))
	assert.Equal(t, want.MinSize, got.MinSize)
	require.Equal(t, want.Table.Sizes(), got.Table.Sizes())
	for size, w := range want.Table {
		g := got.Table[size]
		assert.True(t, w.Activities.Equal(g.Activities), "size %d", size)
		assert.Equal(t, w.Removed, g.Removed)
		assert.Equal(t, w.RawEntropy, g.RawEntropy)
		assert.Equal(t, w.AdjustedEntropy, g.AdjustedEntropy)
	}
}

func TestResults_RoundTrip(t *testing.T) {
	ctx := context.Background()
	log := testLog()
	res, err := filter.Search(ctx, log)
	require.NoError(t, err)

	results := NewResults(NewMemoryCache(0))
	key := Fingerprint(log, res.MinSize)

	_, ok, err := results.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, results.Save(ctx, key, res))
	cached, ok, err := results.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assertSameResult(t, res, cached)
}

func TestResults_Corrupt(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryCache(0)
	require.NoError(t, mem.Set(ctx, "bad", []byte("{not json")))

	_, _, err := NewResults(mem).Lookup(ctx, "bad")
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("LOGPRUNE_TEST_REDIS")
	if addr == "" {
		t.Skip("set LOGPRUNE_TEST_REDIS to run Redis tests")
	}
	ctx := context.Background()

	cfg := DefaultRedisConfig(addr)
	cfg.Prefix = "logprune:test:"
	cfg.TTL = time.Minute
	c, err := NewRedisCache(ctx, cfg)
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}
