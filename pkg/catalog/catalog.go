// Package catalog keeps a local SQLite copy of the repository's site
// directory, data availability and variable limits so they can be searched
// offline.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chrissnell/fluxdata/internal/log"
	"github.com/chrissnell/fluxdata/pkg/client"
	"github.com/chrissnell/fluxdata/pkg/migrate"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Catalog is the local metadata store.
type Catalog struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Open opens (or creates) the catalog at path and brings its schema up to
// date.
func Open(path string, logger *zap.SugaredLogger) (*Catalog, error) {
	logger = log.OrNop(logger)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	// SQLite permits a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	m := migrate.NewMigrator(db, migrate.NewFSProvider(migrations, "migrations", ""), logger)
	if err := m.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}

	return &Catalog{db: db, logger: logger}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// SaveSites replaces the stored site directory.
func (c *Catalog) SaveSites(ctx context.Context, sites []client.Site) error {
	return c.replace(ctx, "sites", len(sites), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sites"); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sites (site_id, name, country, state, igbp, climate_koeppen,
				latitude, longitude, elevation, mat, map, tower_began, tower_end, url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range sites {
			if _, err := stmt.ExecContext(ctx, s.SiteID, s.Name, s.Country, s.State, s.IGBP, s.ClimateKoeppen,
				s.Latitude, s.Longitude, s.Elevation, s.MAT, s.MAP, s.TowerBegan, s.TowerEnd, s.URL); err != nil {
				return fmt.Errorf("inserting site %s: %w", s.SiteID, err)
			}
		}
		return nil
	})
}

// SaveAvailability replaces the stored years for one product and policy.
func (c *Catalog) SaveAvailability(ctx context.Context, product, policy string, avail []client.Availability) error {
	return c.replace(ctx, "availability:"+product+":"+policy, len(avail), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM availability WHERE product = ? AND policy = ?", product, policy); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO availability (site_id, product, policy, year) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range avail {
			for _, y := range a.Years {
				if _, err := stmt.ExecContext(ctx, a.SiteID, product, policy, y); err != nil {
					return fmt.Errorf("inserting availability for %s: %w", a.SiteID, err)
				}
			}
		}
		return nil
	})
}

// SaveVariables replaces the stored variable limits.
func (c *Catalog) SaveVariables(ctx context.Context, vl client.VariableLimits) error {
	return c.replace(ctx, "variables", len(vl), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM variables"); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO variables (name, description, units, min_value, max_value) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, v := range vl {
			if _, err := stmt.ExecContext(ctx, v.Name, v.Description, v.Units, nullFloat(v.Min), nullFloat(v.Max)); err != nil {
				return fmt.Errorf("inserting variable %s: %w", v.Name, err)
			}
		}
		return nil
	})
}

func (c *Catalog) replace(ctx context.Context, kind string, rows int, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO refresh_log (kind, rows, fetched_at) VALUES (?, ?, ?)",
		kind, rows, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to record refresh of %s: %w", kind, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", kind, err)
	}

	c.logger.Infow("catalog refreshed", "kind", kind, "rows", rows)
	return nil
}

// LastRefresh returns when kind was last saved. kind is "sites",
// "variables" or "availability:<product>:<policy>".
func (c *Catalog) LastRefresh(ctx context.Context, kind string) (time.Time, error) {
	var fetched string
	err := c.db.QueryRowContext(ctx, "SELECT fetched_at FROM refresh_log WHERE kind = ?", kind).Scan(&fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("refresh of %s: %w", kind, ErrNotFound)
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, fetched)
}

const siteColumns = `site_id, name, country, state, igbp, climate_koeppen,
	COALESCE(latitude, 0), COALESCE(longitude, 0), COALESCE(elevation, 0),
	COALESCE(mat, 0), COALESCE(map, 0), tower_began, tower_end, url`

func scanSite(row interface{ Scan(...any) error }) (client.Site, error) {
	var s client.Site
	err := row.Scan(&s.SiteID, &s.Name, &s.Country, &s.State, &s.IGBP, &s.ClimateKoeppen,
		&s.Latitude, &s.Longitude, &s.Elevation, &s.MAT, &s.MAP, &s.TowerBegan, &s.TowerEnd, &s.URL)
	return s, err
}

// Site returns a single site by id.
func (c *Catalog) Site(ctx context.Context, id string) (client.Site, error) {
	s, err := scanSite(c.db.QueryRowContext(ctx, "SELECT "+siteColumns+" FROM sites WHERE site_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return client.Site{}, fmt.Errorf("site %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return client.Site{}, fmt.Errorf("failed to query site %s: %w", id, err)
	}
	return s, nil
}

// BoundingBox limits a search to a latitude/longitude rectangle.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// SiteQuery holds search criteria. Zero fields are ignored.
type SiteQuery struct {
	Country  string
	IGBP     string
	Climate  string
	Product  string // defaults to BASE-BADM for the year filters
	Year     int    // site must have data for this year
	MinYears int    // site must have at least this many years of data
	Box      *BoundingBox
}

// SearchSites returns the sites matching q, ordered by id.
func (c *Catalog) SearchSites(ctx context.Context, q SiteQuery) ([]client.Site, error) {
	var (
		where []string
		args  []any
	)
	if q.Country != "" {
		where = append(where, "country = ?")
		args = append(args, q.Country)
	}
	if q.IGBP != "" {
		where = append(where, "igbp = ?")
		args = append(args, q.IGBP)
	}
	if q.Climate != "" {
		where = append(where, "climate_koeppen = ?")
		args = append(args, q.Climate)
	}
	product := q.Product
	if product == "" {
		product = client.ProductBaseBADM
	}
	if q.Year > 0 {
		where = append(where, "site_id IN (SELECT site_id FROM availability WHERE product = ? AND year = ?)")
		args = append(args, product, q.Year)
	}
	if q.MinYears > 0 {
		where = append(where, "site_id IN (SELECT site_id FROM availability WHERE product = ? GROUP BY site_id HAVING COUNT(DISTINCT year) >= ?)")
		args = append(args, product, q.MinYears)
	}
	if q.Box != nil {
		where = append(where, "latitude BETWEEN ? AND ?", "longitude BETWEEN ? AND ?")
		args = append(args, q.Box.MinLat, q.Box.MaxLat, q.Box.MinLon, q.Box.MaxLon)
	}

	query := "SELECT " + siteColumns + " FROM sites"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY site_id"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search sites: %w", err)
	}
	defer rows.Close()

	var sites []client.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site row: %w", err)
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

// AvailableYears lists the years published for a site under product, in
// ascending order.
func (c *Catalog) AvailableYears(ctx context.Context, siteID, product string) ([]int, error) {
	if product == "" {
		product = client.ProductBaseBADM
	}
	rows, err := c.db.QueryContext(ctx,
		"SELECT DISTINCT year FROM availability WHERE site_id = ? AND product = ? ORDER BY year", siteID, product)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// Variables returns the stored variable limits, ordered by name.
func (c *Catalog) Variables(ctx context.Context) (client.VariableLimits, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name, description, units, min_value, max_value FROM variables ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query variables: %w", err)
	}
	defer rows.Close()

	var vl client.VariableLimits
	for rows.Next() {
		var (
			v      client.VariableLimit
			lo, hi sql.NullFloat64
		)
		if err := rows.Scan(&v.Name, &v.Description, &v.Units, &lo, &hi); err != nil {
			return nil, fmt.Errorf("failed to scan variable row: %w", err)
		}
		if lo.Valid {
			v.Min = &lo.Float64
		}
		if hi.Valid {
			v.Max = &hi.Float64
		}
		vl = append(vl, v)
	}
	return vl, rows.Err()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
