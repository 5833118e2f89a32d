package mirror

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// statusVersion is the only mirror-status document version this parser
// accepts. Any other version is a hard parse failure for that fetch attempt.
const statusVersion = 3

// worldwideRegion is the sentinel region for mirrors the feed reports
// without a country.
const worldwideRegion = "Worldwide"

// statusList is the top-level mirror-status feed document.
type statusList struct {
	Cutoff    int            `json:"cutoff"`
	LastCheck time.Time      `json:"last_check"`
	NumChecks int            `json:"num_checks"`
	Version   int            `json:"version"`
	URLs      []*StatusEntry `json:"urls"`
}

// parseStatus decodes a mirror-status feed document, rejecting any version
// other than the supported one.
func parseStatus(data []byte) (*statusList, error) {
	var list statusList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decoding mirror status: %w", err)
	}

	if list.Version != statusVersion {
		return nil, fmt.Errorf("unsupported mirror status version %d, want %d", list.Version, statusVersion)
	}

	if list.URLs == nil {
		return nil, fmt.Errorf("mirror status document has no urls list")
	}

	return &list, nil
}

// groupByRegion filters out unusable entries and groups the survivors by
// country. Mirrors without a country are grouped under the worldwide
// sentinel, and only http(s) mirrors are kept.
func groupByRegion(entries []*StatusEntry) map[string][]*StatusEntry {
	mappings := make(map[string][]*StatusEntry)

	for _, entry := range entries {
		if !entry.Selectable() {
			continue
		}

		if entry.Country == "" {
			// Some mirrors lack location data in the feed backend, so
			// they have to be assumed world-wide.
			entry.Country = worldwideRegion
		}

		if !strings.HasPrefix(entry.URL, "http") {
			continue
		}

		mappings[entry.Country] = append(mappings[entry.Country], entry)
	}

	return mappings
}
