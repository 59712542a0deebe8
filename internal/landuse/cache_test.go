package landuse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/metrics"
)

func TestCacheHitIsFree(t *testing.T) {
	src := scenarioSource()
	st := newCountingStore()
	m := metrics.NewCacheMetrics(metrics.NewRegistry())
	c := NewCache(src, st, CacheOptions{Metrics: m})

	first, err := c.Resolve(context.Background(), "A")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	gets, puts := st.gets[TreeKey("A")], st.puts[TreeKey("A")]

	second, err := c.Resolve(context.Background(), "A")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if first != second {
		t.Error("repeated Resolve returned a different index")
	}
	if st.gets[TreeKey("A")] != gets || st.puts[TreeKey("A")] != puts || src.Reads("A") != 1 {
		t.Error("repeated Resolve performed I/O")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Rebuilds != 1 || stats.LoadNotFound != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if got := testutil.ToFloat64(m.Hits); got != 1 {
		t.Errorf("hits counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Loads.WithLabelValues("not_found")); got != 1 {
		t.Errorf("not_found loads = %v, want 1", got)
	}
}

func TestCacheSingleSlotEvicts(t *testing.T) {
	src := scenarioSource()
	c := NewCache(src, newCountingStore(), CacheOptions{})

	if _, ok := c.Resident(); ok {
		t.Error("empty cache reports a resident region")
	}

	a, _ := c.Resolve(context.Background(), "A")
	if id, ok := c.Resident(); !ok || id != "A" {
		t.Errorf("Resident() = %q, %v; want A", id, ok)
	}

	if _, err := c.Resolve(context.Background(), "B"); err != nil {
		t.Fatalf("Resolve(B) error: %v", err)
	}
	if id, _ := c.Resident(); id != "B" {
		t.Errorf("Resident() = %q, want B", id)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	// A comes back from the persisted store, not the source
	a2, err := c.Resolve(context.Background(), "A")
	if err != nil {
		t.Fatalf("Resolve(A) error: %v", err)
	}
	if a2 == a {
		t.Error("evicted index was returned from the cache")
	}
	if src.Reads("A") != 1 {
		t.Errorf("source reads of A = %d, want 1", src.Reads("A"))
	}

	stats := c.Stats()
	if stats.Evictions != 2 || stats.LoadHits != 1 || stats.Rebuilds != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCacheLRU(t *testing.T) {
	src := dataset.NewMemory()
	for _, id := range []string{"r1", "r2", "r3"} {
		src.AddRegion(dataset.Region{ID: id, Bounds: box(0, 0, 1, 1)},
			dataset.Feature{Bounds: box(0, 0, 1, 1), Label: "Friedhof"})
	}
	st := newCountingStore()
	c := NewCache(src, st, CacheOptions{Capacity: 2})
	ctx := context.Background()

	c.Resolve(ctx, "r1")
	c.Resolve(ctx, "r2")
	c.Resolve(ctx, "r1") // r2 is now least recently used
	c.Resolve(ctx, "r3") // evicts r2

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if id, _ := c.Resident(); id != "r3" {
		t.Errorf("Resident() = %q, want r3", id)
	}

	gets := st.gets[TreeKey("r1")]
	c.Resolve(ctx, "r1")
	if st.gets[TreeKey("r1")] != gets {
		t.Error("r1 should still be resident")
	}

	gets = st.gets[TreeKey("r2")]
	c.Resolve(ctx, "r2")
	if st.gets[TreeKey("r2")] != gets+1 {
		t.Error("r2 should have been evicted and reloaded")
	}
}

func TestCacheErrorKeepsResident(t *testing.T) {
	c := NewCache(scenarioSource(), newCountingStore(), CacheOptions{})
	ctx := context.Background()

	c.Resolve(ctx, "A")
	_, err := c.Resolve(ctx, "missing")
	if !errors.Is(err, dataset.ErrRegionNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrRegionNotFound", err)
	}
	if id, _ := c.Resident(); id != "A" {
		t.Errorf("Resident() = %q after failed resolve, want A", id)
	}
}

// slowSource blocks Features until the context is done
type slowSource struct {
	*dataset.Memory
}

func (s slowSource) Features(ctx context.Context, regionID string) ([]dataset.Feature, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCacheLoadTimeout(t *testing.T) {
	c := NewCache(slowSource{scenarioSource()}, newCountingStore(), CacheOptions{LoadTimeout: 20 * time.Millisecond})

	_, err := c.Resolve(context.Background(), "A")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Resolve() error = %v, want deadline exceeded", err)
	}
	if !strings.Contains(err.Error(), "exceeded") {
		t.Errorf("error should mention the timeout: %v", err)
	}
	if c.Len() != 0 {
		t.Error("failed load was installed")
	}
}

// stalledSource blocks Features until released and never looks at the context
type stalledSource struct {
	*dataset.Memory
	release chan struct{}
}

func (s stalledSource) Features(_ context.Context, regionID string) ([]dataset.Feature, error) {
	<-s.release
	return s.Memory.Features(context.Background(), regionID)
}

func TestCacheLoadTimeoutWithoutContextSupport(t *testing.T) {
	src := stalledSource{Memory: scenarioSource(), release: make(chan struct{})}
	c := NewCache(src, newCountingStore(), CacheOptions{LoadTimeout: 250 * time.Millisecond})

	start := time.Now()
	_, err := c.Resolve(context.Background(), "A")
	waited := time.Since(start)
	close(src.release)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Resolve() error = %v, want deadline exceeded", err)
	}
	if waited > 5*time.Second {
		t.Errorf("Resolve() returned after %v, want about the 250ms timeout", waited)
	}
	if c.Len() != 0 {
		t.Error("timed out load was installed")
	}
	if st := c.Stats(); st.Rebuilds != 0 || st.LoadNotFound != 0 {
		t.Errorf("timed out load was counted: %+v", st)
	}

	// Once the source responds again the region resolves normally
	fi, err := c.Resolve(context.Background(), "A")
	if err != nil {
		t.Fatalf("Resolve() after release error: %v", err)
	}
	if usable, match := Classify(box(1, 1, 2, 2), fi, DefaultLabelSet()); !usable || !match {
		t.Errorf("Classify() = (%v, %v), want (true, true)", usable, match)
	}
}

func TestCacheRecoversFromCorruptBlob(t *testing.T) {
	src := scenarioSource()
	st := newCountingStore()
	st.data[TreeKey("A")] = []byte("garbage")
	st.data[LabelsKey("A")] = []byte("garbage")

	c := NewCache(src, st, CacheOptions{})
	fi, err := c.Resolve(context.Background(), "A")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if usable, match := Classify(box(1, 1, 2, 2), fi, DefaultLabelSet()); !usable || !match {
		t.Errorf("Classify() = (%v, %v), want (true, true)", usable, match)
	}
	if c.Stats().LoadCorrupt != 1 {
		t.Errorf("stats = %+v", c.Stats())
	}
}
