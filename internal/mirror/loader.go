package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"pacmirror/internal/safety"
)

const (
	// DefaultStatusURL is the distribution's mirror-status feed.
	DefaultStatusURL = "https://archlinux.org/mirrors/status/json/"

	// DefaultMirrorlistPath is pacman's mirrorlist location, used both as
	// the local fallback source and as the default generation target.
	DefaultMirrorlistPath = "/etc/pacman.d/mirrorlist"

	// localRegion is the region assigned to mirrorlist entries that appear
	// before any region header.
	localRegion = "Local"

	remoteAttempts         = 3
	fetchTimeout           = 30 * time.Second
	maxStatusResponseBytes = int64(32 * 1024 * 1024)
	localMirrorDetails     = "Locally defined mirror"
	localMirrorCountryCode = "WW"
	mirrorlistRegionMarker = "## "
	mirrorlistServerMarker = "Server = "
)

// SpeedProber supplies throughput measurements for ordering mirrors within
// a region. Implementations are expected to memoize per URL.
type SpeedProber interface {
	Speed(entry *StatusEntry) float64
}

// Loader builds and owns the region→mirrors index. The index is rebuilt
// wholesale on each Load; callers must Load before reading region data.
// Loader is not safe for concurrent use during a reload.
type Loader struct {
	statusURL string
	localPath string
	client    *http.Client
	prober    SpeedProber
	logger    *slog.Logger

	// sleep is the retry backoff hook, replaced in tests.
	sleep func(time.Duration)

	mappings map[string][]*StatusEntry
}

// NewLoader creates a Loader reading the given status feed URL with the
// given local mirrorlist fallback. prober may be nil, in which case all
// mirrors rank with zero speed.
func NewLoader(statusURL, localPath string, prober SpeedProber, logger *slog.Logger) *Loader {
	if statusURL == "" {
		statusURL = DefaultStatusURL
	}
	if localPath == "" {
		localPath = DefaultMirrorlistPath
	}

	return &Loader{
		statusURL: statusURL,
		localPath: localPath,
		client:    safety.NewHTTPClient(fetchTimeout),
		prober:    prober,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Load populates the region index. In offline mode only the local
// mirrorlist is read. Otherwise the remote feed is attempted first and the
// local file is used only if every remote attempt fails. Load is the single
// entry point; Regions and EntriesForRegion read the result.
func (l *Loader) Load(ctx context.Context, offline bool) error {
	if offline {
		return l.loadLocal()
	}

	if !l.loadRemote(ctx) {
		return l.loadLocal()
	}

	return nil
}

// loadRemote fetches the mirror-status feed, retrying with linearly
// increasing backoff. Attempt failures are logged, never surfaced; the
// return value reports whether any attempt succeeded.
func (l *Loader) loadRemote(ctx context.Context) bool {
	for attempt := 1; attempt <= remoteAttempts; attempt++ {
		mappings, err := l.fetchStatus(ctx)
		if err == nil {
			l.mappings = mappings
			return true
		}

		l.logger.Warn("fetching mirror status failed", "attempt", attempt, "url", l.statusURL, "error", err)
		l.sleep(time.Duration(attempt) * time.Second)
	}

	l.logger.Warn("unable to fetch mirror status, falling back to local mirrorlist", "path", l.localPath)
	return false
}

// loadLocal reads the local mirrorlist file. There is no further fallback,
// so a read failure propagates to the caller.
func (l *Loader) loadLocal() error {
	data, err := os.ReadFile(l.localPath)
	if err != nil {
		return fmt.Errorf("reading local mirrorlist: %w", err)
	}

	l.mappings = parseLocalMirrorlist(string(data))
	return nil
}

// fetchStatus performs one GET of the status feed and builds the region
// mapping from it.
func (l *Loader) fetchStatus(ctx context.Context) (map[string][]*StatusEntry, error) {
	if _, err := safety.ValidateHTTPURL(l.statusURL); err != nil {
		return nil, fmt.Errorf("invalid status URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "pacmirror/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, l.statusURL)
	}

	body, err := safety.ReadAllWithLimit(resp.Body, maxStatusResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	list, err := parseStatus(body)
	if err != nil {
		return nil, err
	}

	return groupByRegion(list.URLs), nil
}

// Regions materializes one Region per loaded country, sorted by name, with
// mirrorlist-form server URLs.
func (l *Loader) Regions() []Region {
	names := make([]string, 0, len(l.mappings))
	for name := range l.mappings {
		names = append(names, name)
	}
	sort.Strings(names)

	regions := make([]Region, 0, len(names))
	for _, name := range names {
		entries := l.mappings[name]
		urls := make([]string, 0, len(entries))
		for _, entry := range entries {
			urls = append(urls, entry.ServerURL())
		}
		regions = append(regions, Region{Name: name, URLs: urls})
	}

	return regions
}

// EntriesForRegion returns the region's entries stably sorted ascending by
// (score, speed). speedSort is accepted for parity with the installer's
// call sites; ordering is the same either way.
func (l *Loader) EntriesForRegion(name string, speedSort bool) []*StatusEntry {
	entries := make([]*StatusEntry, len(l.mappings[name]))
	copy(entries, l.mappings[name])

	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i].sortScore(), entries[j].sortScore()
		if si != sj {
			return si < sj
		}
		return l.speed(entries[i]) < l.speed(entries[j])
	})

	return entries
}

func (l *Loader) speed(entry *StatusEntry) float64 {
	if l.prober == nil {
		return 0
	}
	return l.prober.Speed(entry)
}

// parseLocalMirrorlist parses pacman mirrorlist text. A "## " line opens a
// region; a "Server = " line appends a mirror to the current region,
// defaulting to the local region if none was opened yet. Feed-only fields
// (country code, capabilities) get fixed placeholder values.
func parseLocalMirrorlist(text string) map[string][]*StatusEntry {
	mappings := make(map[string][]*StatusEntry)
	currentRegion := ""

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, mirrorlistRegionMarker) {
			currentRegion = strings.TrimSpace(strings.TrimPrefix(line, mirrorlistRegionMarker))
			if _, ok := mappings[currentRegion]; !ok {
				mappings[currentRegion] = nil
			}
		}

		if strings.HasPrefix(line, mirrorlistServerMarker) {
			if currentRegion == "" {
				currentRegion = localRegion
			}

			serverURL := strings.TrimPrefix(line, mirrorlistServerMarker)
			baseURL := strings.TrimSuffix(serverURL, serverURLSuffix)

			scheme := ""
			if u, err := url.Parse(serverURL); err == nil {
				scheme = u.Scheme
			}

			mappings[currentRegion] = append(mappings[currentRegion], &StatusEntry{
				URL:         baseURL,
				Protocol:    scheme,
				Active:      true,
				Country:     currentRegion,
				CountryCode: localMirrorCountryCode,
				ISOs:        true,
				IPv4:        true,
				IPv6:        true,
				Details:     localMirrorDetails,
			})
		}
	}

	return mappings
}
