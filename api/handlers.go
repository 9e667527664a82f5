/*
handlers.go - HTTP API handlers for the fleet reporting engine

PURPOSE:
  Exposes the period aggregation and gap-detection engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  fleet loader and the generic engine.

ENDPOINTS:
  Directory:
    GET    /api/vehicles                List vehicles and display labels
    GET    /api/vehicles/{id}           One vehicle
    GET    /api/years                   Selectable report years

  Reports:
    GET    /api/reports                 Totals, groups and gaps for a filter
    GET    /api/reports/groups/{key}    Drill-down: events behind one group
    GET    /api/gaps                    Missing log days (month view only)
    GET    /api/dashboard               Month, quarter and year side by side

  Data:
    POST   /api/import                  Import a document-store snapshot

REPORT FILTER (query string):
  mode          month | quarter | year          (default: month)
  year          any positive year               (default: today's)
  month         1-12                            (default: today's)
  quarter       1-4                             (default: quarter of month)
  vehicle       vehicle id or "all"             (default: all)
  amortization  include amortization costs      (default: false)
  today         YYYY-MM-DD, the gap cut-off     (default: server clock)

REQUEST FLOW:
  1. Parse the filter (400 on contract violations)
  2. Look the report up in the cache
  3. On a miss, load + normalize records from the store and run the engine
  4. Serialize response

CACHING:
  Reports are cached per normalized filter. Every write (import, scenario
  load, reset) clears the cache and bumps a generation counter. Entries
  remember the generation they were loaded under and older ones are
  ignored, so a report computed from pre-write data is never served.

ERROR HANDLING:
  - 400: Invalid filter or import document
  - 404: Unknown vehicle or drill-down group
  - 413: Import document over the size limit
  - 500: Store failures

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/fleet-engine/factory"
	"github.com/warp/fleet-engine/fleet"
	"github.com/warp/fleet-engine/generic"
)

// maxImportBytes bounds the size of an import document.
const maxImportBytes = 16 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configures a Handler. Zero values fall back to defaults.
type Options struct {
	Location        *time.Location
	CacheSize       int
	CacheTTL        time.Duration
	MaxParallel     int
	SelectableYears func(now time.Time) []int
	Clock           func() time.Time
	Logger          zerolog.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      fleet.Store
	Factory    *factory.SnapshotFactory
	Normalizer *fleet.Normalizer
	Engine     *generic.Engine
	Reports    *LRUCache[cachedReport]

	location *time.Location
	clock    func() time.Time
	years    func(now time.Time) []int
	logger   zerolog.Logger

	// generation is bumped by every write.
	generation atomic.Uint64

	mu              sync.RWMutex
	currentScenario string
}

// cachedReport is an engine result plus the directory it was labeled with.
// Generation is the write generation the data was loaded under.
type cachedReport struct {
	Report     generic.Report
	Directory  generic.EntityDirectory
	Generation uint64
}

// NewHandler creates a new handler with the given store.
func NewHandler(store fleet.Store, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.SelectableYears == nil {
		opts.SelectableYears = func(now time.Time) []int {
			return []int{now.Year(), now.Year() + 1, now.Year() + 2}
		}
	}

	return &Handler{
		Store:      store,
		Factory:    factory.NewSnapshotFactory(),
		Normalizer: fleet.NewNormalizer(opts.Location, opts.Logger),
		Engine:     &generic.Engine{MaxParallel: opts.MaxParallel},
		Reports:    NewLRUCache[cachedReport](opts.CacheSize, opts.CacheTTL),
		location:   opts.Location,
		clock:      opts.Clock,
		years:      opts.SelectableYears,
		logger:     opts.Logger,
	}
}

// today is the server's calendar date in the configured location.
func (h *Handler) today() generic.TimePoint {
	return generic.DateIn(h.clock(), h.location)
}

// invalidate forgets every cached report.
func (h *Handler) invalidate() {
	h.generation.Add(1)
	h.Reports.Clear()
}

// =============================================================================
// DIRECTORY HANDLERS
// =============================================================================

// ListVehicles returns all vehicles, sorted by id.
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.Store.Vehicles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list vehicles", err)
		return
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].ID < vehicles[j].ID })

	dtos := make([]VehicleDTO, len(vehicles))
	for i, v := range vehicles {
		dtos[i] = toVehicleDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetVehicle returns one vehicle.
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	vehicles, err := h.Store.Vehicles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list vehicles", err)
		return
	}
	for _, v := range vehicles {
		if v.ID == id {
			writeJSON(w, http.StatusOK, toVehicleDTO(v))
			return
		}
	}
	writeError(w, http.StatusNotFound, "Vehicle not found", fmt.Errorf("%w: %s", generic.ErrUnknownEntity, id))
}

// ListYears returns the years offered by the year selector.
func (h *Handler) ListYears(w http.ResponseWriter, r *http.Request) {
	now := h.clock().In(h.location)
	writeJSON(w, http.StatusOK, YearsDTO{Current: now.Year(), Years: h.years(now)})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetReport returns totals, sorted groups and the gap report for a filter.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r, h.today())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	reports, err := h.reports(r.Context(), []reportQuery{q})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(q, reports[0].Report, reports[0].Directory))
}

// GetReportGroup returns the events behind one group, newest first.
func (h *Handler) GetReportGroup(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}

	q, err := parseReportQuery(r, h.today())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	reports, err := h.reports(r.Context(), []reportQuery{q})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	rep, dir := reports[0].Report, reports[0].Directory

	events, err := rep.Aggregate.EventsByGroup.Lookup(key)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	totals, _ := rep.Aggregate.Groups.Get(key)

	dto := GroupDetailDTO{
		Key:    key,
		Period: rep.Period.Label(),
		Totals: toTotalsDTO(totals),
		Events: make([]EventDTO, len(events)),
	}
	for i, e := range events {
		dto.Events[i] = toEventDTO(e, dir, q.Amortization)
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetGaps returns the missing-day report. Gaps only exist in month view, so
// the mode parameter is ignored.
func (h *Handler) GetGaps(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r, h.today())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	q = q.withMode(generic.ModeMonth)

	reports, err := h.reports(r.Context(), []reportQuery{q})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	rep := reports[0].Report

	writeJSON(w, http.StatusOK, GapsResponse{
		Label:          rep.Period.Label(),
		Today:          q.Today.String(),
		LastDayChecked: generic.LastDayToCheck(rep.Period, q.Today),
		Gaps:           toGapDTOs(rep.Gaps, reports[0].Directory),
	})
}

// GetDashboard returns the selected month, its quarter and its year. The
// three reports are computed in parallel from one dataset load.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r, h.today())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	month := q.withMode(generic.ModeMonth)
	queries := []reportQuery{
		month,
		month.withMode(generic.ModeQuarter),
		month.withMode(generic.ModeYear),
	}
	reports, err := h.reports(r.Context(), queries)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DashboardDTO{
		Month:   toReportDTO(queries[0], reports[0].Report, reports[0].Directory),
		Quarter: toReportDTO(queries[1], reports[1].Report, reports[1].Directory),
		Year:    toReportDTO(queries[2], reports[2].Report, reports[2].Directory),
	})
}

// reports returns one report per query, from the cache where possible. All
// misses share a single dataset load and run in parallel.
func (h *Handler) reports(ctx context.Context, queries []reportQuery) ([]cachedReport, error) {
	out := make([]cachedReport, len(queries))

	var missing []int
	for i, q := range queries {
		if c, ok := h.Reports.Get(q.key()); ok && c.Generation == h.generation.Load() {
			out[i] = c
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	generation := h.generation.Load()
	ds, err := fleet.Load(ctx, h.Store, h.Normalizer)
	if err != nil {
		return nil, err
	}

	inputs := make([]generic.ReportInput, len(missing))
	for j, i := range missing {
		inputs[j] = queries[i].input(ds)
	}
	results, err := h.Engine.RunMany(ctx, inputs)
	if err != nil {
		return nil, err
	}

	// An entry stored after a concurrent write carries the old generation
	// and is never served.
	for j, i := range missing {
		c := cachedReport{Report: results[j], Directory: ds.Directory, Generation: generation}
		if h.generation.Load() == generation {
			h.Reports.Set(queries[i].key(), c)
		}
		out[i] = c
	}
	return out, nil
}

// =============================================================================
// DATA HANDLERS
// =============================================================================

// Import decodes a snapshot document and writes it to the store. With
// ?replace=true the store is reset first.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	replace, err := parseBool(r.URL.Query().Get("replace"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid replace flag", err)
		return
	}

	snap, summary, err := h.Factory.Decode(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Snapshot too large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid snapshot", err)
		return
	}

	ctx := r.Context()
	defer h.invalidate()

	if replace {
		if err := h.Store.Reset(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
			return
		}
		h.setScenario("")
	}
	if err := fleet.WriteSnapshot(ctx, h.Store, snap); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to import snapshot", err)
		return
	}

	ds, err := fleet.Load(ctx, h.Store, h.Normalizer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load imported data", err)
		return
	}

	h.log(ctx).Info().
		Int("vehicles", summary.Vehicles).
		Int("daily", summary.Daily).
		Int("service", summary.Service).
		Int("dropped", ds.Stats.Dropped).
		Bool("replace", replace).
		Msg("snapshot imported")

	writeJSON(w, http.StatusCreated, ImportResponse{Imported: summary, Normalized: ds.Stats})
}

// =============================================================================
// REPORT QUERY
// =============================================================================

// reportQuery is a parsed, normalized report filter.
type reportQuery struct {
	Selection    generic.Selection
	Vehicle      generic.EntityID
	Amortization bool
	Today        generic.TimePoint
}

// parseReportQuery reads the filter from the query string. Missing values
// default from today.
func parseReportQuery(r *http.Request, today generic.TimePoint) (reportQuery, error) {
	values := r.URL.Query()

	q := reportQuery{Vehicle: generic.AllEntities, Today: today}

	if s := values.Get("today"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return reportQuery{}, &generic.SelectionError{Field: "today", Value: s, Err: generic.ErrInvalidSelection}
		}
		q.Today = generic.DateOf(t)
	}

	mode := generic.ModeMonth
	if s := values.Get("mode"); s != "" {
		m, err := generic.ParseMode(s)
		if err != nil {
			return reportQuery{}, err
		}
		mode = m
	}

	year, err := intParam(values.Get("year"), "year", q.Today.Year())
	if err != nil {
		return reportQuery{}, err
	}
	month, err := intParam(values.Get("month"), "month", int(q.Today.Month()))
	if err != nil {
		return reportQuery{}, err
	}
	defaultQuarter := generic.QuarterOf(q.Today.Month())
	if values.Get("month") != "" && month >= 1 && month <= 12 {
		defaultQuarter = generic.QuarterOf(time.Month(month))
	}
	quarter, err := intParam(values.Get("quarter"), "quarter", defaultQuarter)
	if err != nil {
		return reportQuery{}, err
	}

	q.Selection = generic.Selection{Mode: mode, Year: year, Month: time.Month(month), Quarter: quarter}

	if s := strings.TrimSpace(values.Get("vehicle")); s != "" {
		q.Vehicle = generic.EntityID(s)
	}

	q.Amortization, err = parseBool(values.Get("amortization"), false)
	if err != nil {
		return reportQuery{}, &generic.SelectionError{Field: "amortization", Value: values.Get("amortization"), Err: generic.ErrInvalidSelection}
	}

	// Range checks belong to the resolver; running it here turns a bad
	// filter into a 400 before any data is loaded.
	if _, err := generic.Resolve(q.Selection); err != nil {
		return reportQuery{}, err
	}

	return q.withMode(mode), nil
}

// withMode switches mode, deriving the quarter from the month when moving
// from month view and clearing fields the new mode ignores.
func (q reportQuery) withMode(mode generic.Mode) reportQuery {
	sel := q.Selection
	if sel.Month >= time.January && sel.Month <= time.December && sel.Mode == generic.ModeMonth {
		sel.Quarter = generic.QuarterOf(sel.Month)
	}
	sel.Mode = mode
	q.Selection = sel
	return q
}

// key identifies the query in the report cache. Fields the mode ignores are
// left out so equivalent filters share an entry; today only matters to the
// month view's gap report.
func (q reportQuery) key() string {
	sel := q.Selection
	var scope string
	switch sel.Mode {
	case generic.ModeMonth:
		scope = fmt.Sprintf("%d-%02d@%s", sel.Year, int(sel.Month), q.Today)
	case generic.ModeQuarter:
		scope = fmt.Sprintf("%d-Q%d", sel.Year, sel.Quarter)
	default:
		scope = strconv.Itoa(sel.Year)
	}
	return fmt.Sprintf("%s|%s|%s|%t", sel.Mode, scope, q.Vehicle, q.Amortization)
}

func (q reportQuery) input(ds fleet.Dataset) generic.ReportInput {
	return generic.ReportInput{
		Events:              ds.Events,
		Selection:           q.Selection,
		IncludeAmortization: q.Amortization,
		EntityFilter:        q.Vehicle,
		Tracked:             ds.Tracked,
		Directory:           ds.Directory,
		Now:                 q.Today,
	}
}

func intParam(s, field string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &generic.SelectionError{Field: field, Value: s, Err: generic.ErrInvalidSelection}
	}
	return n, nil
}

func parseBool(s string, def bool) (bool, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid report filter", err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "Request canceled", err)
	default:
		h.log(r.Context()).Error().Err(err).Msg("report failed")
		writeError(w, http.StatusInternalServerError, "Failed to compute report", err)
	}
}

// log returns the request-scoped logger, or the handler's own outside a
// request.
func (h *Handler) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.logger
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

func (h *Handler) scenario() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentScenario
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
