package mirror

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Configuration is the composed mirror selection: chosen regions, custom
// servers and repositories, optional official repositories, and reflector
// settings. It is built from persisted state at start, mutated only through
// explicit selection, and read at install time to emit pacman's files.
type Configuration struct {
	Regions              []Region
	CustomServers        []CustomServer
	OptionalRepositories []Repository
	CustomRepositories   []CustomRepository
	Reflector            ReflectorConfig
}

// NewConfiguration returns an empty selection with default reflector
// settings.
func NewConfiguration() *Configuration {
	return &Configuration{
		Reflector: DefaultReflectorConfig(),
	}
}

// customRepositoryJSON is the wire form of a custom repository.
type customRepositoryJSON struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	SignCheck  string `json:"sign_check"`
	SignOption string `json:"sign_option"`
}

// reflectorJSON is the wire form of the reflector settings. Optional fields
// are pointers so that absent keys fall back to defaults on parse.
type reflectorJSON struct {
	Enabled   bool      `json:"enabled"`
	Countries []string  `json:"countries"`
	Protocols *[]string `json:"protocols"`
	Age       *int      `json:"age"`
	Latest    *int      `json:"latest"`
	SortOrder *string   `json:"sort_order"`
	Verbose   *bool     `json:"verbose"`
}

// configurationJSON is the persisted selection document.
type configurationJSON struct {
	MirrorRegions        map[string][]string    `json:"mirror_regions"`
	CustomServers        []CustomServer         `json:"custom_servers"`
	OptionalRepositories []string               `json:"optional_repositories"`
	CustomRepositories   []customRepositoryJSON `json:"custom_repositories"`
	// LegacyCustomMirrors is the historical spelling of custom_repositories,
	// still accepted on input and never written.
	LegacyCustomMirrors []customRepositoryJSON `json:"custom_mirrors,omitempty"`
	Reflector           *reflectorJSON         `json:"reflector,omitempty"`
}

// MarshalJSON emits the persisted selection document.
func (c Configuration) MarshalJSON() ([]byte, error) {
	regions := make(map[string][]string, len(c.Regions))
	for _, region := range c.Regions {
		regions[region.Name] = region.URLs
	}

	servers := c.CustomServers
	if servers == nil {
		servers = []CustomServer{}
	}

	optional := make([]string, 0, len(c.OptionalRepositories))
	for _, repo := range c.OptionalRepositories {
		optional = append(optional, string(repo))
	}

	repos := make([]customRepositoryJSON, 0, len(c.CustomRepositories))
	for _, repo := range c.CustomRepositories {
		repos = append(repos, customRepositoryJSON{
			Name:       repo.Name,
			URL:        repo.URL,
			SignCheck:  string(repo.SignCheck),
			SignOption: string(repo.SignOption),
		})
	}

	countries := c.Reflector.Countries
	if countries == nil {
		countries = []string{}
	}
	protocols := make([]string, 0, len(c.Reflector.Protocols))
	for _, p := range c.Reflector.Protocols {
		protocols = append(protocols, string(p))
	}
	sortOrder := string(c.Reflector.SortOrder)

	return json.Marshal(configurationJSON{
		MirrorRegions:        regions,
		CustomServers:        servers,
		OptionalRepositories: optional,
		CustomRepositories:   repos,
		Reflector: &reflectorJSON{
			Enabled:   c.Reflector.Enabled,
			Countries: countries,
			Protocols: &protocols,
			Age:       &c.Reflector.Age,
			Latest:    &c.Reflector.Latest,
			SortOrder: &sortOrder,
			Verbose:   &c.Reflector.Verbose,
		},
	})
}

// ParseConfiguration builds a Configuration from a persisted selection
// document. The legacy custom_mirrors key is migrated to custom
// repositories at this boundary, with the canonical key winning when both
// are present. backCompatRepos are merged into the optional repositories
// without duplication.
func ParseConfiguration(data []byte, backCompatRepos []Repository) (*Configuration, error) {
	var wire configurationJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding mirror configuration: %w", err)
	}

	config := NewConfiguration()

	// JSON object member order is not preserved by the decoder; region
	// order is normalized to name order, matching the remote feed's
	// region listing.
	names := make([]string, 0, len(wire.MirrorRegions))
	for name := range wire.MirrorRegions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		config.Regions = append(config.Regions, Region{Name: name, URLs: wire.MirrorRegions[name]})
	}

	config.CustomServers = wire.CustomServers

	repoWire := wire.CustomRepositories
	if repoWire == nil {
		repoWire = wire.LegacyCustomMirrors
	}
	for _, repo := range repoWire {
		signCheck, err := ParseSignCheck(repo.SignCheck)
		if err != nil {
			return nil, fmt.Errorf("custom repository %q: %w", repo.Name, err)
		}
		signOption, err := ParseSignOption(repo.SignOption)
		if err != nil {
			return nil, fmt.Errorf("custom repository %q: %w", repo.Name, err)
		}
		config.CustomRepositories = append(config.CustomRepositories, CustomRepository{
			Name:       repo.Name,
			URL:        repo.URL,
			SignCheck:  signCheck,
			SignOption: signOption,
		})
	}

	for _, raw := range wire.OptionalRepositories {
		repo, err := ParseRepository(raw)
		if err != nil {
			return nil, err
		}
		config.OptionalRepositories = append(config.OptionalRepositories, repo)
	}

	for _, repo := range backCompatRepos {
		if !containsRepository(config.OptionalRepositories, repo) {
			config.OptionalRepositories = append(config.OptionalRepositories, repo)
		}
	}

	if wire.Reflector != nil {
		reflector, err := parseReflector(wire.Reflector)
		if err != nil {
			return nil, err
		}
		config.Reflector = reflector
	}

	return config, nil
}

func parseReflector(wire *reflectorJSON) (ReflectorConfig, error) {
	config := DefaultReflectorConfig()
	config.Enabled = wire.Enabled

	if wire.Countries != nil {
		config.Countries = wire.Countries
	}

	if wire.Protocols != nil {
		protocols := make([]TransferProtocol, 0, len(*wire.Protocols))
		for _, raw := range *wire.Protocols {
			protocol, err := ParseTransferProtocol(raw)
			if err != nil {
				return ReflectorConfig{}, err
			}
			protocols = append(protocols, protocol)
		}
		config.Protocols = protocols
	}

	if wire.Age != nil {
		config.Age = *wire.Age
	}
	if wire.Latest != nil {
		config.Latest = *wire.Latest
	}
	if wire.SortOrder != nil {
		sortOrder, err := ParseSortOrder(*wire.SortOrder)
		if err != nil {
			return ReflectorConfig{}, err
		}
		config.SortOrder = sortOrder
	}
	if wire.Verbose != nil {
		config.Verbose = *wire.Verbose
	}

	return config, nil
}

func containsRepository(repos []Repository, repo Repository) bool {
	for _, r := range repos {
		if r == repo {
			return true
		}
	}
	return false
}

// RegionsConfig renders the mirrorlist body for the selected regions: a
// header per region followed by one Server line per mirror, in the
// loader's (score, speed) order.
func (c *Configuration) RegionsConfig(loader *Loader, speedSort bool) string {
	var b strings.Builder

	for _, region := range c.Regions {
		entries := loader.EntriesForRegion(region.Name, speedSort)

		b.WriteString("\n\n## " + region.Name + "\n")

		for _, entry := range entries {
			b.WriteString("Server = " + entry.ServerURL() + "\n")
		}
	}

	return b.String()
}

// CustomServersConfig renders the mirrorlist stanza for user-supplied
// servers, in insertion order. Empty when there are none.
func (c *Configuration) CustomServersConfig() string {
	if len(c.CustomServers) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Custom Servers\n")
	for _, server := range c.CustomServers {
		b.WriteString("Server = " + server.URL + "\n")
	}

	return strings.TrimSpace(b.String())
}

// RepositoriesConfig renders pacman.conf sections for the custom
// repositories.
func (c *Configuration) RepositoriesConfig() string {
	var b strings.Builder

	for _, repo := range c.CustomRepositories {
		fmt.Fprintf(&b, "\n\n[%s]\n", repo.Name)
		fmt.Fprintf(&b, "SigLevel = %s %s\n", repo.SignCheck, repo.SignOption)
		fmt.Fprintf(&b, "Server = %s\n", repo.URL)
	}

	return b.String()
}

// ReflectorRunner applies reflector settings by invoking the external
// ranking tool. Run reports success; failures are absorbed and logged by
// the implementation, never raised.
type ReflectorRunner interface {
	Run(config ReflectorConfig, targetPath string) bool
}

// ApplyReflector delegates mirrorlist generation to the ranking tool.
// Returns false without side effects when the reflector is disabled.
func (c *Configuration) ApplyReflector(runner ReflectorRunner, targetPath string) bool {
	if !c.Reflector.Enabled {
		return false
	}
	return runner.Run(c.Reflector, targetPath)
}
