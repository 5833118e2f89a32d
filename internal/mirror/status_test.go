package mirror

import (
	"strings"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func selectableEntry(url, country string, score float64) *StatusEntry {
	return &StatusEntry{
		URL:      url,
		Protocol: "https",
		Active:   true,
		Country:  country,
		LastSync: timePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Score:    floatPtr(score),
	}
}

func TestParseStatus(t *testing.T) {
	doc := `{
		"cutoff": 86400,
		"last_check": "2024-01-01T00:00:00Z",
		"num_checks": 10,
		"version": 3,
		"urls": [
			{"url": "https://mirror.example.org/", "protocol": "https", "active": true,
			 "country": "Germany", "last_sync": "2024-01-01T00:00:00Z", "score": 1.5}
		]
	}`

	list, err := parseStatus([]byte(doc))
	if err != nil {
		t.Fatalf("parseStatus failed: %v", err)
	}

	if list.Version != 3 {
		t.Errorf("expected version 3, got %d", list.Version)
	}
	if len(list.URLs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list.URLs))
	}
	if list.URLs[0].Country != "Germany" {
		t.Errorf("expected country Germany, got %s", list.URLs[0].Country)
	}
	if list.URLs[0].Score == nil || *list.URLs[0].Score != 1.5 {
		t.Errorf("expected score 1.5, got %v", list.URLs[0].Score)
	}
}

func TestParseStatusRejectsWrongVersion(t *testing.T) {
	for _, version := range []string{"2", "4", "0"} {
		doc := `{"version": ` + version + `, "urls": []}`

		_, err := parseStatus([]byte(doc))
		if err == nil {
			t.Errorf("expected error for version %s, got nil", version)
			continue
		}
		if !strings.Contains(err.Error(), "unsupported mirror status version") {
			t.Errorf("unexpected error for version %s: %v", version, err)
		}
	}
}

func TestParseStatusRejectsMissingURLs(t *testing.T) {
	doc := `{"cutoff": 86400, "last_check": "2024-01-01T00:00:00Z", "num_checks": 10, "version": 3}`

	_, err := parseStatus([]byte(doc))
	if err == nil {
		t.Fatal("expected error for document without urls")
	}
	if !strings.Contains(err.Error(), "no urls") {
		t.Errorf("unexpected error: %v", err)
	}

	// An empty list is still a valid document.
	if _, err := parseStatus([]byte(`{"version": 3, "urls": []}`)); err != nil {
		t.Errorf("empty urls list should parse: %v", err)
	}
}

func TestParseStatusInvalidJSON(t *testing.T) {
	if _, err := parseStatus([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestGroupByRegion(t *testing.T) {
	sync := timePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	entries := []*StatusEntry{
		selectableEntry("https://de1.example.org/", "Germany", 1.0),
		selectableEntry("https://de2.example.org/", "Germany", 2.0),
		// No country: grouped under the worldwide sentinel.
		selectableEntry("https://ww.example.org/", "", 1.0),
		// Inactive mirrors are dropped.
		{URL: "https://off.example.org/", Active: false, Country: "Germany", LastSync: sync, Score: floatPtr(1.0)},
		// Never-synced mirrors are dropped.
		{URL: "https://stale.example.org/", Active: true, Country: "Germany", Score: floatPtr(1.0)},
		// Score missing: dropped.
		{URL: "https://unscored.example.org/", Active: true, Country: "Germany", LastSync: sync},
		// Score at the cutoff: dropped. 99.5 rounds up to 100.
		selectableEntry("https://bad.example.org/", "Germany", 99.5),
		// Non-http transport: dropped even when otherwise healthy.
		selectableEntry("rsync://rs.example.org/", "Germany", 1.0),
	}

	mappings := groupByRegion(entries)

	if len(mappings) != 2 {
		t.Fatalf("expected 2 regions, got %d: %v", len(mappings), mappings)
	}
	if got := len(mappings["Germany"]); got != 2 {
		t.Errorf("expected 2 German mirrors, got %d", got)
	}
	if got := len(mappings["Worldwide"]); got != 1 {
		t.Errorf("expected 1 worldwide mirror, got %d", got)
	}
	if mappings["Worldwide"][0].URL != "https://ww.example.org/" {
		t.Errorf("wrong worldwide mirror: %s", mappings["Worldwide"][0].URL)
	}
}

func TestRoundedScore(t *testing.T) {
	tests := []struct {
		name   string
		score  *float64
		want   int
		wantOK bool
	}{
		{"missing", nil, 0, false},
		{"rounds down", floatPtr(1.4), 1, true},
		{"rounds up", floatPtr(1.5), 2, true},
		{"just below cutoff", floatPtr(99.4), 99, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &StatusEntry{Score: tt.score}
			got, ok := e.RoundedScore()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("RoundedScore() = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestServerURL(t *testing.T) {
	e := &StatusEntry{URL: "https://mirror.example.org/"}
	want := "https://mirror.example.org/$repo/os/$arch"
	if got := e.ServerURL(); got != want {
		t.Errorf("ServerURL() = %s, want %s", got, want)
	}
}

func TestHostname(t *testing.T) {
	e := &StatusEntry{URL: "https://mirror.example.org:8080/archlinux/"}
	if got := e.Hostname(); got != "mirror.example.org" {
		t.Errorf("Hostname() = %s, want mirror.example.org", got)
	}
}
