// Package probe measures mirror quality on demand: throughput by timing a
// small database download, latency with a single ICMP echo. Results are
// memoized in a side table keyed by mirror URL, so sorting many regions
// probes each mirror at most once.
package probe

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"syscall"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"pacmirror/internal/mirror"
	"pacmirror/internal/safety"
)

const (
	// speedTestObject is a small, always-present database file fetched to
	// time a download.
	speedTestObject = "core/os/x86_64/core.db"

	downloadTimeout = 5 * time.Second
	pingTimeout     = 2 * time.Second
	defaultRetries  = 3
)

// LatencyTimeout is the latency value recorded when the host does not
// answer the ICMP probe in time. Some hosts block ICMP entirely, so a
// timeout is an ordinary outcome, not an error.
const LatencyTimeout = -1

// Prober measures and caches per-mirror quality. Cached values are never
// invalidated; a fresh probe requires a fresh Prober.
type Prober struct {
	client  *http.Client
	retries int
	logger  *slog.Logger

	mu        sync.Mutex
	speeds    map[string]float64
	latencies map[string]float64
}

// New creates a Prober. retries bounds download attempts per mirror: zero
// means the default of 3, anything below one is clamped to a single attempt.
func New(retries int, logger *slog.Logger) *Prober {
	if retries == 0 {
		retries = defaultRetries
	} else if retries < 1 {
		retries = 1
	}

	return &Prober{
		client:    safety.NewHTTPClient(downloadTimeout),
		retries:   retries,
		logger:    logger,
		speeds:    make(map[string]float64),
		latencies: make(map[string]float64),
	}
}

// Speed returns the entry's download throughput in bytes per second,
// probing it on first use. A mirror that cannot be measured reports 0;
// probe failures never propagate.
func (p *Prober) Speed(entry *mirror.StatusEntry) float64 {
	if speed, ok := p.cached(p.speeds, entry.URL); ok {
		return speed
	}

	speed := p.measureSpeed(entry)
	p.store(p.speeds, entry.URL, speed)
	return speed
}

// Latency returns the entry's ICMP round-trip time in milliseconds,
// probing the host on first use. A timeout reports LatencyTimeout.
func (p *Prober) Latency(entry *mirror.StatusEntry) float64 {
	if latency, ok := p.cached(p.latencies, entry.URL); ok {
		return latency
	}

	p.logger.Debug("checking latency", "url", entry.URL)
	latency := p.measureLatency(entry.Hostname())
	p.logger.Debug("latency measured", "url", entry.URL, "latency_ms", latency)

	p.store(p.latencies, entry.URL, latency)
	return latency
}

func (p *Prober) measureSpeed(entry *mirror.StatusEntry) float64 {
	target := entry.URL + speedTestObject

	for attempt := 1; attempt <= p.retries; attempt++ {
		p.logger.Debug("checking download speed", "host", entry.Hostname(), "url", target, "attempt", attempt)

		speed, err := p.timedDownload(target)
		if err == nil {
			p.logger.Debug("speed measured", "url", target, "bytes_per_sec", speed)
			return speed
		}

		if isTransient(err) {
			p.logger.Debug("speed undetermined, retrying", "url", target, "error", err)
			continue
		}

		p.logger.Debug("speed undetermined, skipping", "url", target, "error", err)
		return 0
	}

	return 0
}

// timedDownload fetches the speed-test object and returns bytes per second.
func (p *Prober) timedDownload(url string) (float64, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "pacmirror/1.0")

	start := time.Now()

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// An error page downloads fast; it must not count as throughput.
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	size, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, err
	}

	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		return float64(size), nil
	}

	return float64(size) / elapsed, nil
}

func (p *Prober) measureLatency(host string) float64 {
	if host == "" {
		return LatencyTimeout
	}

	pinger, err := probing.NewPinger(host)
	if err != nil {
		return LatencyTimeout
	}

	pinger.Count = 1
	pinger.Timeout = pingTimeout
	// The installer runs as root; raw-socket ICMP avoids the unprivileged
	// ping sysctl requirement.
	pinger.SetPrivileged(true)

	if err := pinger.Run(); err != nil {
		return LatencyTimeout
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return LatencyTimeout
	}

	return stats.AvgRtt.Seconds() * 1000
}

// isTransient reports whether a download error is worth another attempt.
// Short reads and connection resets are retried; malformed URLs, refused
// connections, and everything else end the probe with zero speed.
func isTransient(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET)
}

func (p *Prober) cached(table map[string]float64, url string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	value, ok := table[url]
	return value, ok
}

func (p *Prober) store(table map[string]float64, url string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	table[url] = value
}
