package featured

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/models"
	"curator/services/cache"
	"curator/services/scheduler"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(offset time.Duration) {
	c.mu.Lock()
	c.t = testNow.Add(offset)
	c.mu.Unlock()
}

// countingBuilder returns a new document on every call.
type countingBuilder struct {
	calls atomic.Int32
	gate  chan struct{}
	enter chan struct{}
}

func (b *countingBuilder) Aggregate(context.Context) (*models.FeaturedContent, Outcome) {
	n := b.calls.Add(1)
	if b.enter != nil {
		b.enter <- struct{}{}
	}
	if b.gate != nil {
		<-b.gate
	}
	doc := &models.FeaturedContent{Source: SourceLive, GeneratedAt: testNow}
	for _, id := range CategoryIDs {
		doc.Categories = append(doc.Categories, models.ContentCategory{
			ID:    id,
			Items: []models.ContentItem{{SourceGUID: id, Title: id, DisplayTitle: id}},
		})
	}
	doc.Hero = doc.Categories[0].Items[0]
	doc.Hero.DisplayYear = int(n)
	return doc, OutcomeLive
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("backend unreachable")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("backend unreachable")
}

func (failingStore) DeletePrefix(context.Context, string) (int, error) {
	return 0, errors.New("backend unreachable")
}

func newMemoryStore(t *testing.T) *cache.MemoryStore {
	t.Helper()
	store, err := cache.NewMemoryStore(64)
	require.NoError(t, err)
	return store
}

func newTestOrchestrator(b Builder, store cache.Store, clock *testClock, ttl time.Duration) *Orchestrator {
	return NewOrchestrator(b, store, OrchestratorOptions{TTL: ttl, Now: clock.Now})
}

func TestOrchestratorTTL(t *testing.T) {
	clock := &testClock{t: testNow}
	builder := &countingBuilder{}
	o := newTestOrchestrator(builder, newMemoryStore(t), clock, 100*time.Second)
	ctx := context.Background()

	first := o.Get(ctx)
	assert.Equal(t, int32(1), builder.calls.Load())

	clock.Set(50 * time.Second)
	second := o.Get(ctx)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), builder.calls.Load())

	clock.Set(150 * time.Second)
	third := o.Get(ctx)
	assert.NotSame(t, first, third)
	assert.Equal(t, int32(2), builder.calls.Load())
}

func TestOrchestratorExpiresExactlyAtTTL(t *testing.T) {
	clock := &testClock{t: testNow}
	builder := &countingBuilder{}
	o := newTestOrchestrator(builder, nil, clock, 100*time.Second)

	o.Get(context.Background())
	clock.Set(100 * time.Second)
	o.Get(context.Background())
	assert.Equal(t, int32(2), builder.calls.Load())
}

func TestInvalidateForcesRebuild(t *testing.T) {
	clock := &testClock{t: testNow}
	builder := &countingBuilder{}
	store := newMemoryStore(t)
	o := newTestOrchestrator(builder, store, clock, time.Hour)
	ctx := context.Background()

	o.Get(ctx)
	assert.Equal(t, 1+len(CategoryIDs), store.Len())

	require.NoError(t, o.Invalidate(ctx))
	assert.Zero(t, store.Len())
	require.NoError(t, o.Invalidate(ctx), "invalidate is idempotent")

	o.Get(ctx)
	assert.Equal(t, int32(2), builder.calls.Load())
}

func TestInvalidateDuringBuildDoesNotCacheStaleResult(t *testing.T) {
	clock := &testClock{t: testNow}
	builder := &countingBuilder{gate: make(chan struct{}), enter: make(chan struct{}, 4)}
	o := newTestOrchestrator(builder, newMemoryStore(t), clock, time.Hour)
	ctx := context.Background()

	done := make(chan *models.FeaturedContent)
	go func() { done <- o.Get(ctx) }()
	<-builder.enter

	require.NoError(t, o.Invalidate(ctx))
	builder.gate <- struct{}{}
	stale := <-done
	require.NotNil(t, stale)

	close(builder.gate)
	fresh := o.Get(ctx)
	assert.NotSame(t, stale, fresh)
	assert.Equal(t, int32(2), builder.calls.Load())
}

func TestStoreFailureIsBestEffort(t *testing.T) {
	clock := &testClock{t: testNow}
	builder := &countingBuilder{}
	o := newTestOrchestrator(builder, failingStore{}, clock, time.Hour)
	ctx := context.Background()

	doc := o.Get(ctx)
	require.NotNil(t, doc)
	assert.Len(t, doc.Categories, 5)
	assert.Same(t, doc, o.Get(ctx))
	assert.Equal(t, int32(1), builder.calls.Load())

	status := o.Status()
	assert.True(t, status.Cached)
	assert.Contains(t, status.LastError, "backend unreachable")

	assert.Error(t, o.Invalidate(ctx))
	o.Get(ctx)
	assert.Equal(t, int32(2), builder.calls.Load())
}

func TestConcurrentMissesShareOneBuild(t *testing.T) {
	clock := &testClock{t: testNow}
	builder := &countingBuilder{gate: make(chan struct{}), enter: make(chan struct{}, 16)}
	o := newTestOrchestrator(builder, newMemoryStore(t), clock, time.Hour)

	var wg sync.WaitGroup
	results := make([]*models.FeaturedContent, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.Get(context.Background())
		}()
	}
	<-builder.enter
	time.Sleep(20 * time.Millisecond)
	close(builder.gate)
	wg.Wait()

	assert.Equal(t, int32(1), builder.calls.Load())
	for _, doc := range results {
		assert.Same(t, results[0], doc)
	}
}

func TestWarmStartReadsSharedStore(t *testing.T) {
	clock := &testClock{t: testNow}
	store := newMemoryStore(t)
	first := &countingBuilder{}
	newTestOrchestrator(first, store, clock, time.Hour).Get(context.Background())

	clock.Set(10 * time.Minute)
	second := &countingBuilder{}
	o := newTestOrchestrator(second, store, clock, time.Hour)

	cat, ok := o.GetCategory(context.Background(), CategoryDocumentaries)
	require.True(t, ok)
	assert.Equal(t, CategoryDocumentaries, cat.Items[0].SourceGUID)

	doc := o.Get(context.Background())
	assert.Equal(t, 1, doc.Hero.DisplayYear, "document built by the first instance")
	assert.Zero(t, second.calls.Load())

	status := o.Status()
	require.NotNil(t, status.ExpiresAt)
	assert.True(t, status.ExpiresAt.Equal(testNow.Add(time.Hour)))
	assert.Equal(t, OutcomeLive, status.Outcome)
}

func TestUndecodableEntryIsAMiss(t *testing.T) {
	clock := &testClock{t: testNow}
	store := newMemoryStore(t)
	require.NoError(t, store.Set(context.Background(), contentKey, []byte("{not json"), 0))
	builder := &countingBuilder{}

	doc := newTestOrchestrator(builder, store, clock, time.Hour).Get(context.Background())

	require.NotNil(t, doc)
	assert.Equal(t, int32(1), builder.calls.Load())
}

func TestGetCategory(t *testing.T) {
	clock := &testClock{t: testNow}
	builder := &countingBuilder{}
	o := newTestOrchestrator(builder, newMemoryStore(t), clock, time.Hour)
	ctx := context.Background()

	hero, ok := o.GetCategory(ctx, HeroCategoryID)
	require.True(t, ok)
	assert.Equal(t, HeroCategoryID, hero.ID)
	require.Len(t, hero.Items, 1)
	assert.Equal(t, CategoryTrendingMovies, hero.Items[0].SourceGUID)

	tv, ok := o.GetCategory(ctx, CategoryPopularTV)
	require.True(t, ok)
	assert.Equal(t, CategoryPopularTV, tv.ID)

	_, ok = o.GetCategory(ctx, "westerns")
	assert.False(t, ok)
	assert.Equal(t, int32(1), builder.calls.Load())
}

func TestRefreshResetsAge(t *testing.T) {
	clock := &testClock{t: testNow}
	builder := &countingBuilder{}
	o := newTestOrchestrator(builder, newMemoryStore(t), clock, 100*time.Second)
	ctx := context.Background()

	o.Get(ctx)
	clock.Set(90 * time.Second)
	summary, err := o.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "live", summary.Outcome)
	assert.Equal(t, 5, summary.Items)

	clock.Set(140 * time.Second)
	doc := o.Get(ctx)
	assert.Equal(t, 2, doc.Hero.DisplayYear)
	assert.Equal(t, int32(2), builder.calls.Load())
}

func TestRefreshReportsStoreError(t *testing.T) {
	clock := &testClock{t: testNow}
	o := newTestOrchestrator(&countingBuilder{}, failingStore{}, clock, time.Hour)

	summary, err := o.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "live", summary.Outcome)
	assert.True(t, o.Status().Cached)
}

// stallingBuilder blocks until its context ends, then reports every category
// empty the way Aggregate does when all queries were cut short.
type stallingBuilder struct {
	entered chan struct{}
}

func (b *stallingBuilder) Aggregate(ctx context.Context) (*models.FeaturedContent, Outcome) {
	close(b.entered)
	<-ctx.Done()
	return StaticContent(testNow), OutcomeFallbackEmpty
}

func TestStoppedRefreshKeepsLiveContent(t *testing.T) {
	clock := &testClock{t: testNow}
	store := newMemoryStore(t)
	o := newTestOrchestrator(&countingBuilder{}, store, clock, time.Hour)
	live := o.Get(context.Background())
	require.Equal(t, SourceLive, live.Source)

	stalling := &stallingBuilder{entered: make(chan struct{})}
	o.builder = stalling

	sched := scheduler.NewService(o, scheduler.Options{Interval: time.Hour, RunOnStart: true})
	require.NoError(t, sched.Start(context.Background()))
	<-stalling.entered

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))

	status := sched.Status()
	require.NotNil(t, status.LastRun)
	assert.Contains(t, status.LastRun.Error, "cancel")

	assert.Same(t, live, o.Get(context.Background()))

	var entry contentEntry
	ok, err := cache.GetJSON(context.Background(), store, contentKey, &entry)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, OutcomeLive, entry.Outcome)
	assert.Equal(t, SourceLive, entry.Document.Source)
}

func TestCancelledRefreshReturnsContextError(t *testing.T) {
	clock := &testClock{t: testNow}
	stalling := &stallingBuilder{entered: make(chan struct{})}
	o := newTestOrchestrator(stalling, newMemoryStore(t), clock, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := o.Refresh(ctx)
		errCh <- err
	}()
	<-stalling.entered
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, o.Status().Cached)
}

func TestRefreshOvertakenByInvalidateIsDiscarded(t *testing.T) {
	clock := &testClock{t: testNow}
	builder := &countingBuilder{gate: make(chan struct{}), enter: make(chan struct{}, 4)}
	store := newMemoryStore(t)
	o := newTestOrchestrator(builder, store, clock, time.Hour)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := o.Refresh(ctx)
		errCh <- err
	}()
	<-builder.enter

	require.NoError(t, o.Invalidate(ctx))
	builder.gate <- struct{}{}
	require.NoError(t, <-errCh)

	assert.False(t, o.Status().Cached)
	_, ok, err := store.Get(ctx, contentKey)
	require.NoError(t, err)
	assert.False(t, ok)

	close(builder.gate)
	o.Get(ctx)
	assert.Equal(t, int32(2), builder.calls.Load())
}

func TestOrchestratorMetrics(t *testing.T) {
	clock := &testClock{t: testNow}
	metrics := NewMetrics(prometheus.NewRegistry())
	o := NewOrchestrator(&countingBuilder{}, nil, OrchestratorOptions{Now: clock.Now, Metrics: metrics})

	o.Get(context.Background())
	o.Get(context.Background())
	o.Get(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("hit")))
	status := o.Status()
	assert.Equal(t, uint64(2), status.Hits)
	assert.Equal(t, uint64(1), status.Misses)
	assert.Equal(t, int64(3600), status.TTLSeconds)
}
