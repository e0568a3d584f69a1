package freshcache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"adloader/internal/freshcache"
)

type item struct {
	Key     string
	Version int
	Tags    []string
}

func cloneItem(it *item) *item {
	if it == nil {
		return nil
	}
	out := *it
	out.Tags = append([]string(nil), it.Tags...)
	return &out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// source is a counting upstream. When gate is set every load waits for a
// token before answering.
type source struct {
	calls    atomic.Int32
	gate     chan struct{}
	mu       sync.Mutex
	err      error
	ctxErred atomic.Bool
}

func (s *source) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *source) load(ctx context.Context, key string) (*item, error) {
	n := s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if ctx.Err() != nil {
		s.ctxErred.Store(true)
	}
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &item{Key: key, Version: int(n), Tags: []string{"base"}}, nil
}

type countingMetrics struct {
	hit, stale, miss, failed, evicted atomic.Int32
}

func (m *countingMetrics) Hit()           { m.hit.Add(1) }
func (m *countingMetrics) Stale()         { m.stale.Add(1) }
func (m *countingMetrics) Miss()          { m.miss.Add(1) }
func (m *countingMetrics) RefreshFailed() { m.failed.Add(1) }
func (m *countingMetrics) Eviction()      { m.evicted.Add(1) }

func newCache(src *source, clock *fakeClock, metrics freshcache.Metrics) *freshcache.Cache[string, *item] {
	return freshcache.New(src.load, freshcache.Config[*item]{
		Name:     "test",
		FreshTTL: time.Minute,
		MaxTTL:   4 * time.Minute,
		Extract:  cloneItem,
		Now:      clock.Now,
		Metrics:  metrics,
	})
}

func TestFreshEntryServedWithoutLoad(t *testing.T) {
	src := &source{}
	clock := newClock()
	metrics := &countingMetrics{}
	c := newCache(src, clock, metrics)
	ctx := context.Background()

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, v.Version)

	clock.Advance(30 * time.Second)
	v, err = c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, v.Version)
	require.EqualValues(t, 1, src.calls.Load())
	require.EqualValues(t, 1, metrics.hit.Load())
	require.EqualValues(t, 1, metrics.miss.Load())
}

func TestStaleEntryServedWhileRefreshing(t *testing.T) {
	src := &source{}
	clock := newClock()
	metrics := &countingMetrics{}
	c := newCache(src, clock, metrics)
	ctx := context.Background()

	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	src.gate = make(chan struct{})
	clock.Advance(2 * time.Minute)

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, v.Version, "stale value is returned immediately")
	require.Eventually(t, func() bool { return src.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	// A second stale read does not start another refresh.
	v, err = c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, v.Version)
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 2, src.calls.Load())

	close(src.gate)
	require.Eventually(t, func() bool {
		v, err := c.Get(ctx, "a")
		return err == nil && v.Version == 2
	}, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 2, src.calls.Load())
	require.GreaterOrEqual(t, metrics.stale.Load(), int32(2))
}

func TestExpiredEntryBlocksOnLoad(t *testing.T) {
	src := &source{}
	clock := newClock()
	c := newCache(src, clock, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	src.gate = make(chan struct{})
	clock.Advance(5 * time.Minute)

	done := make(chan *item, 1)
	go func() {
		v, err := c.Get(ctx, "a")
		if err != nil {
			done <- nil
			return
		}
		done <- v
	}()

	select {
	case <-done:
		t.Fatal("expired read returned before the load completed")
	case <-time.After(30 * time.Millisecond):
	}

	src.gate <- struct{}{}
	v := <-done
	require.NotNil(t, v)
	require.Equal(t, 2, v.Version)
	require.EqualValues(t, 2, src.calls.Load())
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	src := &source{gate: make(chan struct{})}
	c := newCache(src, newClock(), nil)

	results := make(chan *item, 2)
	for i := 0; i < 2; i++ {
		go func() {
			v, err := c.Get(context.Background(), "a")
			if err != nil {
				results <- nil
				return
			}
			results <- v
		}()
	}

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(src.gate)

	a, b := <-results, <-results
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.EqualValues(t, 1, src.calls.Load())
	require.Equal(t, a, b)
	require.NotSame(t, a, b)
}

func TestCallersGetIndependentCopies(t *testing.T) {
	src := &source{}
	c := newCache(src, newClock(), nil)
	ctx := context.Background()

	first, err := c.Get(ctx, "a")
	require.NoError(t, err)
	first.Tags = append(first.Tags, "pixel")
	first.Tags[0] = "changed"

	second, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"base"}, second.Tags)
}

func TestFailedLoadIsNotCached(t *testing.T) {
	src := &source{}
	src.setErr(errors.New("upstream down"))
	c := newCache(src, newClock(), nil)
	ctx := context.Background()

	_, err := c.Get(ctx, "a")
	require.EqualError(t, err, "upstream down")
	require.Equal(t, 0, c.Len())

	src.setErr(nil)
	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 2, v.Version)
}

func TestBackgroundFailureKeepsStaleValue(t *testing.T) {
	src := &source{}
	clock := newClock()
	metrics := &countingMetrics{}
	c := newCache(src, clock, metrics)
	ctx := context.Background()

	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	src.setErr(errors.New("upstream down"))
	clock.Advance(2 * time.Minute)

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, v.Version)
	require.Eventually(t, func() bool { return metrics.failed.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Still stale: served again, and another refresh is attempted.
	require.Eventually(t, func() bool {
		v, err := c.Get(ctx, "a")
		return err == nil && v.Version == 1 && src.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	// Past max age the caller waits and sees the failure.
	clock.Advance(3 * time.Minute)
	_, err = c.Get(ctx, "a")
	require.EqualError(t, err, "upstream down")

	src.setErr(nil)
	v, err = c.Get(ctx, "a")
	require.NoError(t, err)
	require.Greater(t, v.Version, 1)
}

func TestAbandonedCallerDoesNotCancelLoad(t *testing.T) {
	src := &source{gate: make(chan struct{})}
	c := newCache(src, newClock(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "a")
		errs <- err
	}()

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)

	close(src.gate)
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.False(t, src.ctxErred.Load())

	v, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, 1, v.Version)
	require.EqualValues(t, 1, src.calls.Load())
}

func TestEntryLimitEvictsLeastRecentlyRead(t *testing.T) {
	src := &source{}
	metrics := &countingMetrics{}
	c := freshcache.New(src.load, freshcache.Config[*item]{
		MaxEntries: 2,
		Extract:    cloneItem,
		Now:        newClock().Now,
		Metrics:    metrics,
	})
	ctx := context.Background()

	for _, k := range []string{"a", "b", "a", "c"} {
		_, err := c.Get(ctx, k)
		require.NoError(t, err)
	}
	require.Equal(t, 2, c.Len())
	require.EqualValues(t, 1, metrics.evicted.Load())
	require.EqualValues(t, 3, src.calls.Load())

	// b was the least recently read and must be loaded again.
	_, err := c.Get(ctx, "b")
	require.NoError(t, err)
	require.EqualValues(t, 4, src.calls.Load())
}

type lookup struct {
	ID     string
	Params map[string]string
}

func TestKeyIsValueOfTuple(t *testing.T) {
	var calls atomic.Int32
	c := freshcache.New(func(ctx context.Context, k lookup) (string, error) {
		calls.Add(1)
		return fmt.Sprintf("%s:%d", k.ID, len(k.Params)), nil
	}, freshcache.Config[string]{})
	ctx := context.Background()

	_, err := c.Get(ctx, lookup{ID: "rc-1", Params: map[string]string{"a": "1", "b": "2"}})
	require.NoError(t, err)
	_, err = c.Get(ctx, lookup{ID: "rc-1", Params: map[string]string{"b": "2", "a": "1"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())

	_, err = c.Get(ctx, lookup{ID: "rc-1", Params: map[string]string{"a": "1"}})
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}
