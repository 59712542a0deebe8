package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/logger"
	"github.com/wegman-software/tilefilter/internal/metrics"
)

// Fetcher downloads dataset files into a directory
type Fetcher struct {
	client     *http.Client
	dir        string
	maxRetries int
	retryDelay time.Duration
	logEvery   time.Duration
}

// NewFetcher creates a fetcher writing into dir. The client has no overall
// timeout; the whole-state download of a large GeoPackage takes a while.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
		dir:        dir,
		maxRetries: 3,
		retryDelay: 5 * time.Second,
		logEvery:   10 * time.Second,
	}
}

// Path returns where a source is stored
func (f *Fetcher) Path(src *Source) string {
	return filepath.Join(f.dir, src.FileName)
}

// Fetch downloads src unless it is already present and returns its path.
// Failures wrap dataset.ErrDatasetUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, src *Source) (string, error) {
	log := logger.Named("fetch")
	dest := f.Path(src)

	if _, err := os.Stat(dest); err == nil {
		log.Info("File already exists, skipping download", zap.String("path", dest))
		return dest, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	log.Info("Downloading dataset", zap.String("source", src.Name), zap.String("url", src.URL))
	start := time.Now()

	resp, err := f.fetchWithRetry(ctx, src.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", dataset.ErrDatasetUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s returned status %d", dataset.ErrDatasetUnavailable, src.URL, resp.StatusCode)
	}

	tmpFile := dest + ".tmp"
	out, err := os.Create(tmpFile)
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}

	cw := &countingWriter{w: out}
	stop := f.logProgress(log, cw, resp.ContentLength)
	_, err = io.Copy(cw, resp.Body)
	stop()
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpFile)
		return "", fmt.Errorf("%w: download of %s interrupted: %v", dataset.ErrDatasetUnavailable, src.Name, err)
	}

	if err := os.Rename(tmpFile, dest); err != nil {
		os.Remove(tmpFile)
		return "", fmt.Errorf("failed to rename download file: %w", err)
	}

	log.Info("Download complete",
		zap.String("path", dest),
		zap.Int64("bytes", cw.n.Load()),
		zap.Duration("duration", time.Since(start).Round(time.Second)))
	return dest, nil
}

// fetchWithRetry performs an HTTP GET with retries on transport and server errors
func (f *Fetcher) fetchWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "tilefilter/1.0")

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// logProgress logs the downloaded size periodically until the returned func is called
func (f *Fetcher) logProgress(log *zap.Logger, cw *countingWriter, total int64) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(f.logEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fields := []zap.Field{zap.String("downloaded", metrics.FormatBytes(uint64(cw.n.Load())))}
				if total > 0 {
					fields = append(fields,
						zap.String("total", metrics.FormatBytes(uint64(total))),
						zap.String("progress", fmt.Sprintf("%.1f%%", float64(cw.n.Load())/float64(total)*100)))
				}
				log.Info("Downloading", fields...)
			}
		}
	}()
	return func() { close(done) }
}

type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}
