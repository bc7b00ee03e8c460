package restserver

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/chrissnell/fluxdata/pkg/catalog"
	"github.com/chrissnell/fluxdata/pkg/client"
	"github.com/chrissnell/fluxdata/pkg/rangefilter"
	"github.com/chrissnell/fluxdata/pkg/responseformat"
	"github.com/chrissnell/fluxdata/pkg/table"
	"github.com/chrissnell/fluxdata/pkg/varname"
	"github.com/gorilla/mux"
)

// maxUploadBytes caps the size of a BASE file posted to /filter.
const maxUploadBytes = 256 << 20

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

func (h *Handlers) fail(w http.ResponseWriter, req *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.controller.logger.Errorw("request failed", "path", req.URL.Path, "error", err)
	}
	h.formatter.WriteError(w, req, status, err.Error())
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, data any) {
	if err := h.formatter.WriteResponse(w, req, http.StatusOK, data); err != nil {
		h.controller.logger.Errorw("could not write response", "path", req.URL.Path, "error", err)
	}
}

// DecodeResponse is the body of GET /api/v1/decode.
type DecodeResponse struct {
	Descriptors []varname.Descriptor `json:"descriptors"`
	Degraded    int                  `json:"degraded"`
}

// Decode handles GET /api/v1/decode?name=TA_1_1_1&name=FC_F. Comma
// separated names are accepted too.
func (h *Handlers) Decode(w http.ResponseWriter, req *http.Request) {
	var names []string
	for _, v := range req.URL.Query()["name"] {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	if len(names) == 0 {
		h.fail(w, req, http.StatusBadRequest, errors.New("at least one name parameter is required"))
		return
	}

	ds := h.controller.deps.Decoder.DecodeAll(names)
	h.write(w, req, DecodeResponse{Descriptors: ds, Degraded: len(varname.Degraded(ds))})
}

// FilterResponse is the body of POST /api/v1/filter unless output=csv.
type FilterResponse struct {
	Rows     int                 `json:"rows"`
	Replaced int                 `json:"replaced"`
	Report   *rangefilter.Report `json:"report"`
}

// Filter handles POST /api/v1/filter. The body is a BASE csv file. The
// buffer query parameter overrides the configured buffer; output=csv
// returns the filtered file instead of the report.
func (h *Handlers) Filter(w http.ResponseWriter, req *http.Request) {
	deps := h.controller.deps
	buffer := deps.FilterBuffer
	if b := req.URL.Query().Get("buffer"); b != "" {
		v, err := strconv.ParseFloat(b, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			h.fail(w, req, http.StatusBadRequest, fmt.Errorf("invalid buffer %q", b))
			return
		}
		buffer = v
	}

	t, header, err := table.ReadBase(http.MaxBytesReader(w, req.Body, maxUploadBytes))
	if err != nil {
		h.fail(w, req, http.StatusBadRequest, err)
		return
	}

	f := rangefilter.New(deps.Decoder,
		rangefilter.WithBuffer(buffer),
		rangefilter.WithWorkers(deps.FilterWorkers),
		rangefilter.WithLogger(h.controller.logger))
	out, report, err := f.Apply(req.Context(), t, deps.Bounds)
	if err != nil {
		var shapeErr *table.ShapeError
		if errors.As(err, &shapeErr) {
			h.fail(w, req, http.StatusUnprocessableEntity, err)
			return
		}
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}

	if req.URL.Query().Get("output") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("X-Values-Replaced", strconv.Itoa(report.Replaced()))
		if err := table.WriteBase(w, out, header); err != nil {
			h.controller.logger.Errorw("could not write filtered table", "error", err)
		}
		return
	}

	h.write(w, req, FilterResponse{Rows: out.Rows(), Replaced: report.Replaced(), Report: report})
}

func (h *Handlers) sites(w http.ResponseWriter, req *http.Request) (SiteStore, bool) {
	s := h.controller.deps.Sites
	if s == nil {
		h.fail(w, req, http.StatusServiceUnavailable, errors.New("site catalog is not configured"))
		return nil, false
	}
	return s, true
}

// SearchSites handles GET /api/v1/sites. Query parameters: country, igbp,
// climate, product, year, min_years and bbox=minlat,maxlat,minlon,maxlon.
func (h *Handlers) SearchSites(w http.ResponseWriter, req *http.Request) {
	s, ok := h.sites(w, req)
	if !ok {
		return
	}
	q, err := parseSiteQuery(req)
	if err != nil {
		h.fail(w, req, http.StatusBadRequest, err)
		return
	}

	sites, err := s.SearchSites(req.Context(), q)
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	if sites == nil {
		sites = []client.Site{}
	}
	h.write(w, req, sites)
}

func parseSiteQuery(req *http.Request) (catalog.SiteQuery, error) {
	v := req.URL.Query()
	q := catalog.SiteQuery{
		Country: v.Get("country"),
		IGBP:    v.Get("igbp"),
		Climate: v.Get("climate"),
		Product: v.Get("product"),
	}

	var err error
	if s := v.Get("year"); s != "" {
		if q.Year, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("invalid year %q", s)
		}
	}
	if s := v.Get("min_years"); s != "" {
		if q.MinYears, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("invalid min_years %q", s)
		}
	}
	if s := v.Get("bbox"); s != "" {
		parts := strings.Split(s, ",")
		if len(parts) != 4 {
			return q, fmt.Errorf("bbox needs minlat,maxlat,minlon,maxlon, got %q", s)
		}
		var f [4]float64
		for i, p := range parts {
			if f[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
				return q, fmt.Errorf("invalid bbox value %q", p)
			}
		}
		q.Box = &catalog.BoundingBox{MinLat: f[0], MaxLat: f[1], MinLon: f[2], MaxLon: f[3]}
	}
	return q, nil
}

// SiteResponse is the body of GET /api/v1/sites/{id}.
type SiteResponse struct {
	Site  client.Site `json:"site"`
	Years []int       `json:"years"`
}

// GetSite handles GET /api/v1/sites/{id}.
func (h *Handlers) GetSite(w http.ResponseWriter, req *http.Request) {
	s, ok := h.sites(w, req)
	if !ok {
		return
	}
	id := mux.Vars(req)["id"]

	site, err := s.Site(req.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		h.fail(w, req, http.StatusNotFound, err)
		return
	}
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	years, err := s.AvailableYears(req.Context(), id, req.URL.Query().Get("product"))
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	if years == nil {
		years = []int{}
	}
	h.write(w, req, SiteResponse{Site: site, Years: years})
}

// Variables handles GET /api/v1/variables.
func (h *Handlers) Variables(w http.ResponseWriter, req *http.Request) {
	s, ok := h.sites(w, req)
	if !ok {
		return
	}
	vl, err := s.Variables(req.Context())
	if err != nil {
		h.fail(w, req, http.StatusInternalServerError, err)
		return
	}
	if vl == nil {
		vl = client.VariableLimits{}
	}
	h.write(w, req, vl)
}
