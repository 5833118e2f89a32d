package mirror

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const statusDoc = `{
	"cutoff": 86400,
	"last_check": "2024-01-01T00:00:00Z",
	"num_checks": 10,
	"version": 3,
	"urls": [
		{"url": "https://de1.example.org/", "protocol": "https", "active": true,
		 "country": "Germany", "last_sync": "2024-01-01T00:00:00Z", "score": 2.0},
		{"url": "https://de2.example.org/", "protocol": "https", "active": true,
		 "country": "Germany", "last_sync": "2024-01-01T00:00:00Z", "score": 1.0},
		{"url": "https://se1.example.org/", "protocol": "https", "active": true,
		 "country": "Sweden", "last_sync": "2024-01-01T00:00:00Z", "score": 1.0}
	]
}`

const mirrorlistText = `## Arch Linux mirrorlist

## Germany
Server = https://de.example.org/$repo/os/$arch

## Sweden
Server = https://se1.example.org/$repo/os/$arch
Server = https://se2.example.org/$repo/os/$arch
`

func writeMirrorlist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mirrorlist")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing mirrorlist: %v", err)
	}
	return path
}

// stubProber returns fixed speeds per mirror URL.
type stubProber struct {
	speeds map[string]float64
}

func (s *stubProber) Speed(entry *StatusEntry) float64 {
	return s.speeds[entry.URL]
}

func TestLoadRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(statusDoc))
	}))
	defer server.Close()

	l := NewLoader(server.URL, "/nonexistent/mirrorlist", nil, slog.Default())

	if err := l.Load(context.Background(), false); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	regions := l.Regions()
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(regions))
	}
	if regions[0].Name != "Germany" || regions[1].Name != "Sweden" {
		t.Errorf("regions not sorted by name: %v", regions)
	}
	if len(regions[0].URLs) != 2 {
		t.Errorf("expected 2 German mirrors, got %d", len(regions[0].URLs))
	}
	if regions[0].URLs[0] != "https://de1.example.org/$repo/os/$arch" {
		t.Errorf("unexpected server URL: %s", regions[0].URLs[0])
	}
}

func TestLoadFallsBackToLocal(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	localPath := writeMirrorlist(t, mirrorlistText)

	l := NewLoader(server.URL, localPath, nil, slog.Default())

	var sleeps []time.Duration
	l.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	if err := l.Load(context.Background(), false); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if attempts != 3 {
		t.Errorf("expected 3 remote attempts, got %d", attempts)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %d", len(want), len(sleeps))
	}
	for i, d := range want {
		if sleeps[i] != d {
			t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], d)
		}
	}

	regions := l.Regions()
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions from local mirrorlist, got %d", len(regions))
	}
	if regions[0].Name != "Germany" || regions[1].Name != "Sweden" {
		t.Errorf("unexpected regions: %v", regions)
	}
}

func TestLoadOfflineSkipsRemote(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte(statusDoc))
	}))
	defer server.Close()

	localPath := writeMirrorlist(t, mirrorlistText)

	l := NewLoader(server.URL, localPath, nil, slog.Default())

	if err := l.Load(context.Background(), true); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if attempts != 0 {
		t.Errorf("offline load contacted the feed %d times", attempts)
	}
	if len(l.Regions()) != 2 {
		t.Errorf("expected regions from local mirrorlist")
	}
}

func TestLoadLocalReadFailure(t *testing.T) {
	l := NewLoader("", filepath.Join(t.TempDir(), "missing"), nil, slog.Default())

	if err := l.Load(context.Background(), true); err == nil {
		t.Error("expected error for missing local mirrorlist")
	}
}

func TestParseLocalMirrorlist(t *testing.T) {
	mappings := parseLocalMirrorlist(mirrorlistText)

	if len(mappings["Germany"]) != 1 {
		t.Fatalf("expected 1 German mirror, got %d", len(mappings["Germany"]))
	}
	if len(mappings["Sweden"]) != 2 {
		t.Fatalf("expected 2 Swedish mirrors, got %d", len(mappings["Sweden"]))
	}

	de := mappings["Germany"][0]
	if de.URL != "https://de.example.org/" {
		t.Errorf("expected placeholder suffix stripped, got %s", de.URL)
	}
	if de.Protocol != "https" {
		t.Errorf("expected protocol https, got %s", de.Protocol)
	}
	if !de.Active {
		t.Error("local entries should be active")
	}
	if de.Country != "Germany" {
		t.Errorf("expected country Germany, got %s", de.Country)
	}
	if de.Score != nil {
		t.Error("local entries should have no score")
	}
}

func TestParseLocalMirrorlistDefaultRegion(t *testing.T) {
	mappings := parseLocalMirrorlist("Server = https://a.example.org/$repo/os/$arch\n")

	if len(mappings) != 1 {
		t.Fatalf("expected 1 region, got %d", len(mappings))
	}
	if len(mappings["Local"]) != 1 {
		t.Errorf("expected headerless server under the Local region, got %v", mappings)
	}
}

func TestEntriesForRegionOrdering(t *testing.T) {
	a := selectableEntry("https://a.example.org/", "Germany", 3.0)
	b := selectableEntry("https://b.example.org/", "Germany", 1.0)
	c := selectableEntry("https://c.example.org/", "Germany", 1.0)

	prober := &stubProber{speeds: map[string]float64{
		"https://a.example.org/": 100,
		"https://b.example.org/": 50,
		"https://c.example.org/": 10,
	}}

	l := &Loader{
		prober:   prober,
		logger:   slog.Default(),
		mappings: map[string][]*StatusEntry{"Germany": {a, b, c}},
	}

	entries := l.EntriesForRegion("Germany", true)

	// Ascending by score, speed breaking the tie between b and c.
	wantOrder := []string{"https://c.example.org/", "https://b.example.org/", "https://a.example.org/"}
	for i, want := range wantOrder {
		if entries[i].URL != want {
			t.Errorf("entries[%d] = %s, want %s", i, entries[i].URL, want)
		}
	}

	// speedSort only mirrors a caller-side switch; ordering is identical.
	plain := l.EntriesForRegion("Germany", false)
	for i := range entries {
		if plain[i].URL != entries[i].URL {
			t.Errorf("speedSort changed ordering at %d: %s vs %s", i, plain[i].URL, entries[i].URL)
		}
	}

	// The loaded mapping must not be reordered in place.
	if l.mappings["Germany"][0] != a {
		t.Error("EntriesForRegion mutated the loaded mapping")
	}
}

func TestEntriesForRegionStableForUnscored(t *testing.T) {
	first := &StatusEntry{URL: "https://x.example.org/", Active: true, Country: "Local"}
	second := &StatusEntry{URL: "https://y.example.org/", Active: true, Country: "Local"}

	l := &Loader{
		logger:   slog.Default(),
		mappings: map[string][]*StatusEntry{"Local": {first, second}},
	}

	entries := l.EntriesForRegion("Local", true)
	if entries[0] != first || entries[1] != second {
		t.Error("unscored entries with equal speed should keep their order")
	}
}

func TestEntriesForRegionUnknown(t *testing.T) {
	l := &Loader{logger: slog.Default(), mappings: map[string][]*StatusEntry{}}

	if entries := l.EntriesForRegion("Atlantis", true); len(entries) != 0 {
		t.Errorf("expected no entries for unknown region, got %d", len(entries))
	}
}
