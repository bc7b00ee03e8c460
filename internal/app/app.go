// Package app wires configuration into the decoder, filter, repository
// client, catalog and REST server.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chrissnell/fluxdata/internal/database"
	"github.com/chrissnell/fluxdata/internal/log"
	"github.com/chrissnell/fluxdata/internal/restserver"
	"github.com/chrissnell/fluxdata/pkg/catalog"
	"github.com/chrissnell/fluxdata/pkg/client"
	"github.com/chrissnell/fluxdata/pkg/config"
	"github.com/chrissnell/fluxdata/pkg/rangefilter"
	"github.com/chrissnell/fluxdata/pkg/snapshot"
	"github.com/chrissnell/fluxdata/pkg/varname"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:    cfg,
		logger: log.OrNop(logger),
	}
}

// Config returns the loaded configuration.
func (a *App) Config() *config.ConfigData {
	return a.cfg
}

// Client builds a repository client from the api section.
func (a *App) Client() *client.Client {
	api := a.cfg.API
	return client.New(client.Config{
		SiteInfoURL:       api.SiteInfoURL,
		AvailabilityURL:   api.AvailabilityURL,
		VariableLimitsURL: api.VariableLimitsURL,
		DownloadURL:       api.DownloadURL,
		Timeout:           api.Timeout,
	}, a.logger)
}

// OpenCatalog opens the local site catalog.
func (a *App) OpenCatalog() (*catalog.Catalog, error) {
	return catalog.Open(a.cfg.Catalog.Path, a.logger)
}

// RefreshVariables fetches the variable reference list, writes a new
// snapshot and stores it in the catalog.
func (a *App) RefreshVariables(ctx context.Context) (client.VariableLimits, error) {
	c := a.Client()
	vl, err := c.VariableLimits(ctx)
	if err != nil {
		return nil, err
	}

	snap := &snapshot.Snapshot{
		FetchedAt: time.Now().UTC(),
		Source:    a.cfg.API.VariableLimitsURL,
		Variables: vl,
		Arity:     a.cfg.Grammar.ArityOverrides,
	}
	if snap.Source == "" {
		snap.Source = client.DefaultConfig().VariableLimitsURL
	}
	if err := snapshot.Save(a.cfg.Snapshot.Path, snap); err != nil {
		return nil, err
	}
	a.logger.Infow("wrote variable snapshot", "path", a.cfg.Snapshot.Path, "variables", len(vl))

	cat, err := a.OpenCatalog()
	if err != nil {
		return nil, err
	}
	defer cat.Close()
	if err := cat.SaveVariables(ctx, vl); err != nil {
		return nil, err
	}
	return vl, nil
}

// RefreshSites fetches the site directory and the availability of product
// under policy into the catalog.
func (a *App) RefreshSites(ctx context.Context, product, policy string) (int, error) {
	c := a.Client()
	sites, err := c.SiteInfo(ctx)
	if err != nil {
		return 0, err
	}
	avail, err := c.DataAvailability(ctx, product, policy)
	if err != nil {
		return 0, err
	}
	if product == "" {
		product = client.ProductBaseBADM
	}
	if policy == "" {
		policy = client.PolicyCCBY4
	}

	cat, err := a.OpenCatalog()
	if err != nil {
		return 0, err
	}
	defer cat.Close()
	if err := cat.SaveSites(ctx, sites); err != nil {
		return 0, err
	}
	if err := cat.SaveAvailability(ctx, product, policy, avail); err != nil {
		return 0, err
	}
	return len(sites), nil
}

// ErrNoReference is returned when no variable snapshot exists yet.
var ErrNoReference = errors.New("no variable snapshot; run 'fluxdata variables refresh' first")

// Reference loads the variable snapshot. A snapshot older than the
// configured max age is still used, with a warning.
func (a *App) Reference() (*snapshot.Snapshot, error) {
	snap, err := snapshot.Load(a.cfg.Snapshot.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoReference
	}
	if err != nil {
		return nil, err
	}
	if maxAge := a.cfg.Snapshot.MaxAge; maxAge > 0 && snap.Age(time.Now()) > maxAge {
		a.logger.Warnw("variable snapshot is stale", "path", a.cfg.Snapshot.Path, "fetched_at", snap.FetchedAt)
	}
	return snap, nil
}

// Decoder builds a decoder over the snapshot's registry. Configured arity
// overrides win over those stored with the snapshot.
func (a *App) Decoder(snap *snapshot.Snapshot) (*varname.Decoder, error) {
	g, err := a.cfg.Grammar.Grammar()
	if err != nil {
		return nil, err
	}

	arity := make(map[string]int, len(snap.Arity)+len(a.cfg.Grammar.ArityOverrides))
	for k, v := range snap.Arity {
		arity[k] = v
	}
	for k, v := range a.cfg.Grammar.ArityOverrides {
		arity[k] = v
	}
	return varname.NewDecoder(snap.Variables.Registry(arity), g)
}

// Filter builds a range filter with the configured buffer.
func (a *App) Filter(d *varname.Decoder, buffer float64) *rangefilter.Filter {
	return rangefilter.New(d,
		rangefilter.WithBuffer(buffer),
		rangefilter.WithWorkers(a.cfg.Filter.Workers),
		rangefilter.WithLogger(a.logger))
}

// Database connects to TimescaleDB and migrates the observation table.
func (a *App) Database(ctx context.Context) (*database.Client, error) {
	if a.cfg.TimescaleDB == nil {
		return nil, errors.New("no timescaledb section in the configuration")
	}
	db := database.NewClient(a.cfg.TimescaleDB, a.logger)
	if err := db.Connect(); err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Serve runs the REST server and blocks until shutdown
func (a *App) Serve(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snap, err := a.Reference()
	if err != nil {
		return err
	}
	dec, err := a.Decoder(snap)
	if err != nil {
		return err
	}

	deps := restserver.Deps{
		Decoder:       dec,
		Bounds:        snap.Variables.Bounds(),
		FilterBuffer:  a.cfg.Filter.Buffer,
		FilterWorkers: a.cfg.Filter.Workers,
	}

	cat, err := a.OpenCatalog()
	if err != nil {
		a.logger.Warnw("site catalog unavailable; site endpoints disabled", "error", err)
	} else {
		defer cat.Close()
		deps.Sites = cat
	}

	ctrl, err := restserver.NewController(ctx, &wg, a.cfg.REST, deps, a.logger)
	if err != nil {
		return fmt.Errorf("could not create REST server: %w", err)
	}
	if err := ctrl.StartController(); err != nil {
		return err
	}

	a.logger.Info("application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	var serveErr error
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	case serveErr = <-ctrl.Errors():
		a.logger.Errorw("REST server stopped, shutting down...", "error", serveErr)
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	if serveErr != nil {
		return fmt.Errorf("REST server failed: %w", serveErr)
	}
	return nil
}
