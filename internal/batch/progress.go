package batch

import (
	"fmt"
	"time"
)

// progress estimates completion of a manifest from the bytes consumed
type progress struct {
	totalBytes int64
	start      time.Time
}

func newProgress(totalBytes int64) *progress {
	return &progress{totalBytes: totalBytes, start: time.Now()}
}

// percent returns the completed share, or -1 when the size is unknown
func (p *progress) percent(offset int64) float64 {
	if p.totalBytes <= 0 {
		return -1
	}
	pct := float64(offset) / float64(p.totalBytes) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// eta extrapolates the remaining time from the byte rate so far
func (p *progress) eta(offset int64) time.Duration {
	elapsed := time.Since(p.start)
	if p.totalBytes <= 0 || offset <= 0 || offset >= p.totalBytes {
		return 0
	}
	rate := float64(offset) / elapsed.Seconds()
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(p.totalBytes-offset)/rate*float64(time.Second)).Round(time.Second)
}

// throughput returns tiles per second
func (p *progress) throughput(tiles int) float64 {
	secs := time.Since(p.start).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(tiles) / secs
}

func formatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
