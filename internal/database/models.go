package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
)

// Observation is one value of one variable at one time step.
type Observation struct {
	Time       time.Time    `gorm:"column:time;not null;index:idx_flux_site_time,priority:2"`
	SiteID     string       `gorm:"column:site_id;not null;index:idx_flux_site_time,priority:1"`
	Variable   string       `gorm:"column:variable;not null"`
	BaseName   string       `gorm:"column:base_name;not null;index"`
	Qualifiers pgtype.JSONB `gorm:"column:qualifiers;type:jsonb;default:'[]';not null"`
	GapFilled  bool         `gorm:"column:gap_filled;not null"`
	Value      float64      `gorm:"column:value;not null"`
	BatchID    uuid.UUID    `gorm:"column:batch_id;type:uuid;not null;index"`
}

// TableName specifies the table name for Observation
func (Observation) TableName() string {
	return "flux_observations"
}

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

const createHypertableSQL = `SELECT create_hypertable('flux_observations', 'time', if_not_exists => true);`

const createDailyViewSQL = `CREATE MATERIALIZED VIEW IF NOT EXISTS flux_observations_1d
WITH (timescaledb.continuous) AS
SELECT
    time_bucket('1 day', time) AS bucket,
    site_id,
    variable,
    avg(value) AS mean_value,
    min(value) AS min_value,
    max(value) AS max_value,
    count(*) AS samples
FROM flux_observations
GROUP BY bucket, site_id, variable
WITH NO DATA;`
