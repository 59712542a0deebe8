package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestCollectorSample(t *testing.T) {
	reg := NewRegistry()
	c := NewCollector(time.Millisecond, zap.NewNop(), reg)
	if c.interval != 30*time.Second {
		t.Errorf("interval = %v, want fallback of 30s", c.interval)
	}
	if c.Last() != nil {
		t.Fatal("Last() before first sample should be nil")
	}

	c.collect()

	s := c.Last()
	if s == nil {
		t.Fatal("Last() after collect is nil")
	}
	if s.Timestamp.IsZero() {
		t.Error("sample has no timestamp")
	}
	n, err := testutil.GatherAndCount(reg.Prometheus(), "tilefilter_process_rss_bytes", "tilefilter_host_memory_percent")
	if err != nil {
		t.Fatalf("GatherAndCount() error: %v", err)
	}
	if n != 2 {
		t.Errorf("gathered %d gauges, want 2", n)
	}
}

func TestCollectorStopsOnCancel(t *testing.T) {
	c := NewCollector(time.Second, zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop after cancel")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{512 * 1024 * 1024, "512.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
