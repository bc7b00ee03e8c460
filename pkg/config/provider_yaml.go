package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	var yamlConfig ConfigYAML
	if err := yaml.Unmarshal(cfgFile, &yamlConfig); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", y.filename, err)
	}

	config, err := yamlConfig.convert()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}

	y.config = config
	return config, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

func (c ConfigYAML) convert() (*ConfigData, error) {
	timeout, err := parseDuration("api timeout", c.API.Timeout)
	if err != nil {
		return nil, err
	}
	maxAge, err := parseDuration("snapshot max-age", c.Snapshot.MaxAge)
	if err != nil {
		return nil, err
	}

	config := &ConfigData{
		API: APIData{
			SiteInfoURL:       c.API.SiteInfoURL,
			AvailabilityURL:   c.API.AvailabilityURL,
			VariableLimitsURL: c.API.VariableLimitsURL,
			DownloadURL:       c.API.DownloadURL,
			Timeout:           timeout,
			UserID:            c.API.UserID,
			UserEmail:         c.API.UserEmail,
			IntendedUse:       c.API.IntendedUse,
			Description:       c.API.Description,
		},
		Catalog:  CatalogData{Path: c.Catalog.Path},
		Snapshot: SnapshotData{Path: c.Snapshot.Path, MaxAge: maxAge},
		Download: DownloadData{Dir: c.Download.Dir, Workers: c.Download.Workers},
		Filter:   FilterData{Buffer: DefaultFilterBuffer, Workers: c.Filter.Workers},
		Grammar: GrammarData{
			GapFillSentinel:   c.Grammar.GapFillSentinel,
			GapFillTokens:     c.Grammar.GapFillTokens,
			AggregateSentinel: c.Grammar.AggregateSentinel,
			StructuralColumns: c.Grammar.StructuralColumns,
			DefaultArity:      c.Grammar.DefaultArity,
			ArityOverrides:    c.Grammar.ArityOverrides,
		},
		REST: RESTServerData{ListenAddr: c.REST.ListenAddr, Port: c.REST.Port},
	}
	if c.Filter.Buffer != nil {
		config.Filter.Buffer = *c.Filter.Buffer
	}

	if len(c.Grammar.Conventions) > 0 {
		config.Grammar.Conventions = make(map[int]ConventionData, len(c.Grammar.Conventions))
		for arity, conv := range c.Grammar.Conventions {
			config.Grammar.Conventions[arity] = ConventionData{
				Roles:         conv.Roles,
				GapFillSlot:   conv.GapFillSlot,
				LayerSlot:     conv.LayerSlot,
				ReplicateSlot: conv.ReplicateSlot,
			}
		}
	}

	if c.TimescaleDB != nil {
		config.TimescaleDB = &TimescaleDBData{
			ConnectionString: c.TimescaleDB.ConnectionString,
			BatchSize:        c.TimescaleDB.BatchSize,
		}
	}

	return config, nil
}

// YAML-specific structs with proper YAML tags for parsing the file format
type ConfigYAML struct {
	API         APIYAML          `yaml:"api,omitempty"`
	Catalog     CatalogYAML      `yaml:"catalog,omitempty"`
	Snapshot    SnapshotYAML     `yaml:"snapshot,omitempty"`
	Download    DownloadYAML     `yaml:"download,omitempty"`
	Filter      FilterYAML       `yaml:"filter,omitempty"`
	Grammar     GrammarYAML      `yaml:"grammar,omitempty"`
	TimescaleDB *TimescaleDBYAML `yaml:"timescaledb,omitempty"`
	REST        RESTServerYAML   `yaml:"rest,omitempty"`
}

type APIYAML struct {
	SiteInfoURL       string `yaml:"site-info-url,omitempty"`
	AvailabilityURL   string `yaml:"availability-url,omitempty"`
	VariableLimitsURL string `yaml:"variable-limits-url,omitempty"`
	DownloadURL       string `yaml:"download-url,omitempty"`
	Timeout           string `yaml:"timeout,omitempty"`
	UserID            string `yaml:"user-id,omitempty"`
	UserEmail         string `yaml:"user-email,omitempty"`
	IntendedUse       string `yaml:"intended-use,omitempty"`
	Description       string `yaml:"description,omitempty"`
}

type CatalogYAML struct {
	Path string `yaml:"path,omitempty"`
}

type SnapshotYAML struct {
	Path   string `yaml:"path,omitempty"`
	MaxAge string `yaml:"max-age,omitempty"`
}

type DownloadYAML struct {
	Dir     string `yaml:"dir,omitempty"`
	Workers int    `yaml:"workers,omitempty"`
}

type FilterYAML struct {
	Buffer  *float64 `yaml:"buffer,omitempty"`
	Workers int      `yaml:"workers,omitempty"`
}

type GrammarYAML struct {
	GapFillSentinel   string                 `yaml:"gap-fill-sentinel,omitempty"`
	GapFillTokens     []string               `yaml:"gap-fill-tokens,omitempty"`
	AggregateSentinel string                 `yaml:"aggregate-sentinel,omitempty"`
	StructuralColumns []string               `yaml:"structural-columns,omitempty"`
	DefaultArity      int                    `yaml:"default-arity,omitempty"`
	Conventions       map[int]ConventionYAML `yaml:"conventions,omitempty"`
	ArityOverrides    map[string]int         `yaml:"arity-overrides,omitempty"`
}

type ConventionYAML struct {
	Roles         []string `yaml:"roles"`
	GapFillSlot   *int     `yaml:"gap-fill-slot,omitempty"`
	LayerSlot     *int     `yaml:"layer-slot,omitempty"`
	ReplicateSlot *int     `yaml:"replicate-slot,omitempty"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
	BatchSize        int    `yaml:"batch-size,omitempty"`
}

type RESTServerYAML struct {
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
}
