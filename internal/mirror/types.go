package mirror

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// serverURLSuffix is the pacman placeholder appended to a mirror base URL
// in mirrorlist files.
const serverURLSuffix = "$repo/os/$arch"

// unusableScore is the feed-reported error-rate threshold at or above which
// a mirror is never offered for selection.
const unusableScore = 100

// StatusEntry is a single mirror as reported by the mirror-status feed.
// Optional fields are pointers; they are absent for mirrors the feed has no
// data for and for entries parsed from a local mirrorlist file.
type StatusEntry struct {
	URL            string     `json:"url"`
	Protocol       string     `json:"protocol"`
	Active         bool       `json:"active"`
	Country        string     `json:"country"`
	CountryCode    string     `json:"country_code"`
	ISOs           bool       `json:"isos"`
	IPv4           bool       `json:"ipv4"`
	IPv6           bool       `json:"ipv6"`
	Details        string     `json:"details"`
	Delay          *int       `json:"delay"`
	LastSync       *time.Time `json:"last_sync"`
	DurationAvg    *float64   `json:"duration_avg"`
	DurationStddev *float64   `json:"duration_stddev"`
	CompletionPct  *float64   `json:"completion_pct"`
	Score          *float64   `json:"score"`
}

// ServerURL returns the mirrorlist form of the entry's URL.
func (e *StatusEntry) ServerURL() string {
	return e.URL + serverURLSuffix
}

// Hostname returns the host part of the entry's URL, without any port.
func (e *StatusEntry) Hostname() string {
	u, err := url.Parse(e.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// RoundedScore returns the entry's score rounded to the nearest integer.
// The second return value is false when the feed reported no score.
func (e *StatusEntry) RoundedScore() (int, bool) {
	if e.Score == nil {
		return 0, false
	}
	return int(math.Round(*e.Score)), true
}

// Selectable reports whether the entry may be offered to the user. Mirrors
// that are disabled, have never synced, or carry an error-rate score at or
// above the cutoff are excluded.
func (e *StatusEntry) Selectable() bool {
	if !e.Active || e.LastSync == nil {
		return false
	}
	score, ok := e.RoundedScore()
	return ok && score < unusableScore
}

// sortScore is the score used for ordering. Entries without a score (local
// mirrorlist entries) all rank equal and fall through to the speed tie-break.
func (e *StatusEntry) sortScore() int {
	score, _ := e.RoundedScore()
	return score
}

// Region is a named grouping of mirror server URLs, keyed by country.
// Two regions are the same region iff their names match; the URL list is
// payload, not identity.
type Region struct {
	Name string
	URLs []string
}

// Equal reports whether r and other name the same region.
func (r Region) Equal(other Region) bool {
	return r.Name == other.Name
}

// CustomServer is a user-supplied mirror URL, unique by URL.
type CustomServer struct {
	URL string `json:"url"`
}

// SignCheck is pacman's signature verification requirement for a repository.
type SignCheck string

const (
	SignCheckNever    SignCheck = "Never"
	SignCheckOptional SignCheck = "Optional"
	SignCheckRequired SignCheck = "Required"
)

// ParseSignCheck validates a persisted sign-check value.
func ParseSignCheck(s string) (SignCheck, error) {
	switch SignCheck(s) {
	case SignCheckNever, SignCheckOptional, SignCheckRequired:
		return SignCheck(s), nil
	}
	return "", fmt.Errorf("invalid sign check %q", s)
}

// SignOption is pacman's signature trust policy for a repository.
type SignOption string

const (
	SignOptionTrustedOnly SignOption = "TrustedOnly"
	SignOptionTrustAll    SignOption = "TrustAll"
)

// ParseSignOption validates a persisted sign-option value.
func ParseSignOption(s string) (SignOption, error) {
	switch SignOption(s) {
	case SignOptionTrustedOnly, SignOptionTrustAll:
		return SignOption(s), nil
	}
	return "", fmt.Errorf("invalid sign option %q", s)
}

// CustomRepository is a user-defined pacman repository, unique by name.
type CustomRepository struct {
	Name       string
	URL        string
	SignCheck  SignCheck
	SignOption SignOption
}

// Repository identifies an optional official repository.
type Repository string

const (
	RepositoryMultilib Repository = "multilib"
	RepositoryTesting  Repository = "testing"
)

// ParseRepository validates a persisted optional-repository identifier.
func ParseRepository(s string) (Repository, error) {
	switch Repository(s) {
	case RepositoryMultilib, RepositoryTesting:
		return Repository(s), nil
	}
	return "", fmt.Errorf("invalid repository %q", s)
}

// SortOrder selects how the external ranking tool orders mirrors.
type SortOrder string

const (
	SortOrderAge     SortOrder = "age"
	SortOrderRate    SortOrder = "rate"
	SortOrderCountry SortOrder = "country"
	SortOrderScore   SortOrder = "score"
	SortOrderDelay   SortOrder = "delay"
)

// ParseSortOrder validates a persisted sort-order value.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case SortOrderAge, SortOrderRate, SortOrderCountry, SortOrderScore, SortOrderDelay:
		return SortOrder(s), nil
	}
	return "", fmt.Errorf("invalid sort order %q", s)
}

// TransferProtocol is a mirror transfer protocol the ranking tool may filter on.
type TransferProtocol string

const (
	ProtocolHTTP  TransferProtocol = "http"
	ProtocolHTTPS TransferProtocol = "https"
	ProtocolFTP   TransferProtocol = "ftp"
	ProtocolRsync TransferProtocol = "rsync"
)

// ParseTransferProtocol validates a persisted protocol value.
func ParseTransferProtocol(s string) (TransferProtocol, error) {
	switch TransferProtocol(s) {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolFTP, ProtocolRsync:
		return TransferProtocol(s), nil
	}
	return "", fmt.Errorf("invalid transfer protocol %q", s)
}

// ReflectorConfig configures the external mirror-ranking tool.
type ReflectorConfig struct {
	Enabled   bool
	Countries []string
	Protocols []TransferProtocol
	Age       int // hours
	Latest    int // number of mirrors to keep
	SortOrder SortOrder
	Verbose   bool
}

// DefaultReflectorConfig returns the defaults applied when no reflector
// settings were persisted: https only, 12h age limit, 20 mirrors, rate sort.
func DefaultReflectorConfig() ReflectorConfig {
	return ReflectorConfig{
		Protocols: []TransferProtocol{ProtocolHTTPS},
		Age:       12,
		Latest:    20,
		SortOrder: SortOrderRate,
		Verbose:   true,
	}
}

// CommandArgs builds the ranking tool's argument vector, tool name first.
// The destination path flag is appended by the runner.
func (c ReflectorConfig) CommandArgs() []string {
	args := []string{"reflector"}

	if c.Verbose {
		args = append(args, "--verbose")
	}

	if len(c.Countries) > 0 {
		args = append(args, "--country", strings.Join(c.Countries, ","))
	}

	if len(c.Protocols) > 0 {
		protocols := make([]string, len(c.Protocols))
		for i, p := range c.Protocols {
			protocols[i] = string(p)
		}
		args = append(args, "--protocol", strings.Join(protocols, ","))
	}

	args = append(args,
		"--age", strconv.Itoa(c.Age),
		"--latest", strconv.Itoa(c.Latest),
		"--sort", string(c.SortOrder),
	)

	return args
}
