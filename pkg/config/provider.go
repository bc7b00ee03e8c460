package config

import (
	"fmt"
	"time"

	"github.com/chrissnell/fluxdata/pkg/varname"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration, with defaults applied
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	API         APIData          `json:"api"`
	Catalog     CatalogData      `json:"catalog"`
	Snapshot    SnapshotData     `json:"snapshot"`
	Download    DownloadData     `json:"download"`
	Filter      FilterData       `json:"filter"`
	Grammar     GrammarData      `json:"grammar"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
	REST        RESTServerData   `json:"rest"`
}

// APIData holds the repository endpoints and the requester identity sent
// with download requests
type APIData struct {
	SiteInfoURL       string        `json:"site_info_url,omitempty"`
	AvailabilityURL   string        `json:"availability_url,omitempty"`
	VariableLimitsURL string        `json:"variable_limits_url,omitempty"`
	DownloadURL       string        `json:"download_url,omitempty"`
	Timeout           time.Duration `json:"timeout,omitempty"`
	UserID            string        `json:"user_id,omitempty"`
	UserEmail         string        `json:"user_email,omitempty"`
	IntendedUse       string        `json:"intended_use,omitempty"`
	Description       string        `json:"description,omitempty"`
}

type CatalogData struct {
	Path string `json:"path"`
}

type SnapshotData struct {
	Path   string        `json:"path"`
	MaxAge time.Duration `json:"max_age,omitempty"`
}

type DownloadData struct {
	Dir     string `json:"dir"`
	Workers int    `json:"workers"`
}

type FilterData struct {
	Buffer  float64 `json:"buffer"`
	Workers int     `json:"workers"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
	BatchSize        int    `json:"batch_size,omitempty"`
}

type RESTServerData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
}

// Addr is the host:port the REST server listens on.
func (r RESTServerData) Addr() string {
	return fmt.Sprintf("%s:%d", r.ListenAddr, r.Port)
}

// GrammarData configures variable-name decoding. Omitted fields keep the
// stock grammar's values; a non-empty Conventions replaces the stock
// conventions entirely.
type GrammarData struct {
	GapFillSentinel   string                 `json:"gap_fill_sentinel,omitempty"`
	GapFillTokens     []string               `json:"gap_fill_tokens,omitempty"`
	AggregateSentinel string                 `json:"aggregate_sentinel,omitempty"`
	StructuralColumns []string               `json:"structural_columns,omitempty"`
	DefaultArity      int                    `json:"default_arity,omitempty"`
	Conventions       map[int]ConventionData `json:"conventions,omitempty"`
	ArityOverrides    map[string]int         `json:"arity_overrides,omitempty"`
}

// ConventionData is the slot layout for one arity. A nil slot means the
// convention has no such slot.
type ConventionData struct {
	Roles         []string `json:"roles"`
	GapFillSlot   *int     `json:"gap_fill_slot,omitempty"`
	LayerSlot     *int     `json:"layer_slot,omitempty"`
	ReplicateSlot *int     `json:"replicate_slot,omitempty"`
}

// Grammar converts the section into a validated decoder grammar.
func (g GrammarData) Grammar() (varname.Grammar, error) {
	out := varname.DefaultGrammar()
	if g.GapFillSentinel != "" {
		out.GapFillSentinel = g.GapFillSentinel
	}
	if g.GapFillTokens != nil {
		out.GapFillTokens = g.GapFillTokens
	}
	if g.AggregateSentinel != "" {
		out.AggregateSentinel = g.AggregateSentinel
	}
	if g.StructuralColumns != nil {
		out.StructuralColumns = g.StructuralColumns
	}
	if g.DefaultArity != 0 {
		out.DefaultArity = g.DefaultArity
	}
	if len(g.Conventions) > 0 {
		out.Conventions = make(map[int]varname.SlotConvention, len(g.Conventions))
		for arity, c := range g.Conventions {
			roles := make([]varname.SlotRole, len(c.Roles))
			for i, r := range c.Roles {
				roles[i] = varname.SlotRole(r)
			}
			out.Conventions[arity] = varname.SlotConvention{
				Roles:         roles,
				GapFillSlot:   slotOrNone(c.GapFillSlot),
				LayerSlot:     slotOrNone(c.LayerSlot),
				ReplicateSlot: slotOrNone(c.ReplicateSlot),
			}
		}
	}

	if err := out.Validate(); err != nil {
		return varname.Grammar{}, fmt.Errorf("invalid grammar configuration: %w", err)
	}
	return out, nil
}

func slotOrNone(p *int) int {
	if p == nil {
		return varname.NoSlot
	}
	return *p
}

// Defaults used for omitted settings.
const (
	DefaultCatalogPath     = "fluxdata.db"
	DefaultSnapshotPath    = "variables.msgpack"
	DefaultDownloadDir     = "downloads"
	DefaultDownloadWorkers = 4
	DefaultFilterBuffer    = 0.05
	DefaultRESTPort        = 8080
	DefaultExportBatchSize = 1000
)

// Default returns the configuration used when no file is given.
func Default() *ConfigData {
	c := &ConfigData{Filter: FilterData{Buffer: DefaultFilterBuffer}}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every omitted setting. The filter buffer is left
// alone since zero is a meaningful value; providers set it when the source
// omits it.
func (c *ConfigData) ApplyDefaults() {
	if c.API.Timeout == 0 {
		c.API.Timeout = 60 * time.Second
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = DefaultCatalogPath
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = DefaultSnapshotPath
	}
	if c.Download.Dir == "" {
		c.Download.Dir = DefaultDownloadDir
	}
	if c.Download.Workers == 0 {
		c.Download.Workers = DefaultDownloadWorkers
	}
	if c.TimescaleDB != nil && c.TimescaleDB.BatchSize == 0 {
		c.TimescaleDB.BatchSize = DefaultExportBatchSize
	}
	if c.REST.Port == 0 {
		c.REST.Port = DefaultRESTPort
	}
}

// Validate checks settings that have no sensible default.
func (c *ConfigData) Validate() error {
	if c.Filter.Buffer < 0 {
		return fmt.Errorf("filter buffer %v must not be negative", c.Filter.Buffer)
	}
	if c.Download.Workers < 0 || c.Filter.Workers < 0 {
		return fmt.Errorf("worker counts must not be negative")
	}
	if c.TimescaleDB != nil && c.TimescaleDB.ConnectionString == "" {
		return fmt.Errorf("timescaledb section requires a connection-string")
	}
	if _, err := c.Grammar.Grammar(); err != nil {
		return err
	}
	return nil
}
