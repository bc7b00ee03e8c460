// Package restserver exposes decoding, range filtering and the site
// catalog over HTTP.
package restserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/fluxdata/internal/log"
	"github.com/chrissnell/fluxdata/pkg/catalog"
	"github.com/chrissnell/fluxdata/pkg/client"
	"github.com/chrissnell/fluxdata/pkg/config"
	"github.com/chrissnell/fluxdata/pkg/rangefilter"
	"github.com/chrissnell/fluxdata/pkg/varname"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SiteStore is the part of the catalog the server reads from.
type SiteStore interface {
	SearchSites(ctx context.Context, q catalog.SiteQuery) ([]client.Site, error)
	Site(ctx context.Context, id string) (client.Site, error)
	AvailableYears(ctx context.Context, siteID, product string) ([]int, error)
	Variables(ctx context.Context) (client.VariableLimits, error)
}

// Deps are the components the handlers serve.
type Deps struct {
	Decoder       *varname.Decoder
	Bounds        []rangefilter.Bounds
	FilterBuffer  float64
	FilterWorkers int
	Sites         SiteStore // optional; site endpoints answer 503 without it
}

// Controller represents the REST server controller
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	Server   http.Server
	deps     Deps
	logger   *zap.SugaredLogger
	handlers *Handlers
	errc     chan error
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTServerData, deps Deps, logger *zap.SugaredLogger) (*Controller, error) {
	if deps.Decoder == nil {
		return nil, errors.New("REST server requires a decoder")
	}
	logger = log.OrNop(logger)

	ctrl := &Controller{
		ctx:    ctx,
		wg:     wg,
		deps:   deps,
		logger: logger,
		errc:   make(chan error, 1),
	}

	if rc.ListenAddr == "" {
		logger.Info("rest.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}
	if rc.Port == 0 {
		logger.Infof("rest.port not provided; defaulting to %d", config.DefaultRESTPort)
		rc.Port = config.DefaultRESTPort
	}

	ctrl.handlers = NewHandlers(ctrl)
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController binds the listen address and serves in the background.
// A bind failure is returned directly; a later serve failure is sent on
// Errors.
func (c *Controller) StartController() error {
	c.logger.Infof("starting REST server on %s...", c.Server.Addr)

	ln, err := net.Listen("tcp", c.Server.Addr)
	if err != nil {
		return fmt.Errorf("REST server could not listen on %s: %w", c.Server.Addr, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			c.logger.Errorf("REST server error: %v", err)
			c.errc <- err
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Errors delivers the error that stopped the server, if it stopped on its
// own.
func (c *Controller) Errors() <-chan error {
	return c.errc
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(c.logger))

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/decode", c.handlers.Decode).Methods(http.MethodGet)
	api.HandleFunc("/filter", c.handlers.Filter).Methods(http.MethodPost)
	api.HandleFunc("/sites", c.handlers.SearchSites).Methods(http.MethodGet)
	api.HandleFunc("/sites/{id}", c.handlers.GetSite).Methods(http.MethodGet)
	api.HandleFunc("/variables", c.handlers.Variables).Methods(http.MethodGet)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return router
}
