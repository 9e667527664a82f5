/*
handlers_test.go - HTTP tests for the report API

Tests for:
- Import of a snapshot document and the resulting report
- Amortization toggle
- Filter validation (400) and unknown vehicle/group (404)
- Gaps and dashboard endpoints
- Report cache invalidation on writes
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fleet-engine/fleet"
	memstore "github.com/warp/fleet-engine/fleet/store"
	"github.com/warp/fleet-engine/generic"
)

// March 5th 2025, noon UTC.
var fixedNow = time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC)

const marchSnapshot = `{
	"vehicles": [{"id": "V1", "label": "Truck 1"}, {"id": "V2", "plate": "XY-200"}],
	"daily_finance": [
		{"id": "d1", "vehicleId": "V1", "sales": "1000", "date": "2025-03-01"},
		{"id": "d3", "vehicleId": "V1", "isDayOff": true, "date": "2025-03-03"},
		{"id": "d4", "vehicleId": "V2", "sales": 400, "expenses": [{"category": "fuel", "amount": "50.5"}], "date": "2025-03-04"},
		{"id": "bad", "vehicleId": "V2", "sales": 999, "date": "not-a-date"}
	],
	"service_history": {
		"V1": [{"id": "s1", "date": "2025-03-02", "description": "Amortization payment", "cost": 1500}]
	}
}`

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *memstore.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.NewMemory()
	h := NewHandler(store, Options{
		CacheSize: 16,
		CacheTTL:  time.Minute,
		Clock:     func() time.Time { return fixedNow },
		Logger:    zerolog.Nop(),
	})
	return &testServer{handler: h, router: NewRouter(h, zerolog.Nop(), nil), store: store}
}

func (ts *testServer) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) importMarch(t *testing.T) ImportResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/import", marchSnapshot)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp ImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// =============================================================================
// IMPORT + REPORT
// =============================================================================

func TestImport_ReportsSummaryAndStats(t *testing.T) {
	// GIVEN: An empty store
	ts := newTestServer(t)

	// WHEN: Importing the March snapshot
	resp := ts.importMarch(t)

	// THEN: Counts reflect the document and the unreadable date is dropped
	assert.Equal(t, 2, resp.Imported.Vehicles)
	assert.Equal(t, 4, resp.Imported.Daily)
	assert.Equal(t, 1, resp.Imported.Service)
	assert.Equal(t, fleet.NormalizeStats{Daily: 3, Service: 1, Dropped: 1}, resp.Normalized)
}

func TestImport_InvalidDocument(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/import", `{"vehicles": 42}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/import?replace=maybe", marchSnapshot)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImport_ReplaceResetsStore(t *testing.T) {
	ts := newTestServer(t)
	ts.importMarch(t)

	rec := ts.do(t, http.MethodPost, "/api/import?replace=true", `{"vehicles": [{"id": "V9", "label": "Van"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	vehicles := decodeBody[[]VehicleDTO](t, ts.do(t, http.MethodGet, "/api/vehicles", ""))
	require.Len(t, vehicles, 1)
	assert.Equal(t, "V9", vehicles[0].ID)
}

func TestGetReport_MonthView(t *testing.T) {
	// GIVEN: The March snapshot and today = March 5th
	ts := newTestServer(t)
	ts.importMarch(t)

	// WHEN: Requesting the default report
	rec := ts.do(t, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody[ReportDTO](t, rec)

	// THEN: Income is summed, amortization excluded, groups are vehicle labels
	assert.Equal(t, "month", report.Mode)
	assert.Equal(t, "March 2025", report.Label)
	assert.Equal(t, "2025-03-01", report.Start)
	assert.Equal(t, "2025-03-31", report.End)
	assert.Equal(t, "all", report.Vehicle)
	assertAmount(t, "1400", report.Totals.Income)
	assertAmount(t, "50.5", report.Totals.Expenses)
	assertAmount(t, "1349.5", report.Totals.Net)
	assert.Equal(t, 4, report.EventCount)

	require.Len(t, report.Groups, 2)
	assert.Equal(t, "Truck 1", report.Groups[0].Key)
	assert.Equal(t, "XY-200", report.Groups[1].Key)
	assertAmount(t, "1000", report.Groups[0].Income)
	assert.Equal(t, 3, report.Groups[0].EventCount)

	// Day 1 sales and day 3 day off cover V1; V2 only logged day 4.
	require.Len(t, report.Gaps, 2)
	assert.Equal(t, GapDTO{VehicleID: "V1", Label: "Truck 1", MissingDays: []int{2, 4, 5}}, report.Gaps[0])
	assert.Equal(t, GapDTO{VehicleID: "V2", Label: "XY-200", MissingDays: []int{1, 2, 3, 5}}, report.Gaps[1])
}

func TestGetReport_AmortizationToggle(t *testing.T) {
	ts := newTestServer(t)
	ts.importMarch(t)

	without := decodeBody[ReportDTO](t, ts.do(t, http.MethodGet, "/api/reports?vehicle=V1", ""))
	with := decodeBody[ReportDTO](t, ts.do(t, http.MethodGet, "/api/reports?vehicle=V1&amortization=true", ""))

	assertAmount(t, "1000", without.Totals.Income)
	assertAmount(t, "0", without.Totals.Expenses)
	assertAmount(t, "1000", with.Totals.Income)
	assertAmount(t, "1500", with.Totals.Expenses)
	assert.True(t, with.IncludeAmortization)
}

func TestGetReport_QuarterView_GroupsByMonth(t *testing.T) {
	ts := newTestServer(t)
	ts.importMarch(t)

	rec := ts.do(t, http.MethodGet, "/api/reports?mode=quarter&year=2025&quarter=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody[ReportDTO](t, rec)

	assert.Equal(t, "Q1 2025", report.Label)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, "March", report.Groups[0].Key)
	assert.Empty(t, report.Gaps)
}

func TestGetReport_UnknownVehicleFilter_IsEmpty(t *testing.T) {
	ts := newTestServer(t)
	ts.importMarch(t)

	rec := ts.do(t, http.MethodGet, "/api/reports?vehicle=V42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[ReportDTO](t, rec)
	assertAmount(t, "0", report.Totals.Income)
	assert.Empty(t, report.Groups)
}

func TestGetReport_InvalidFilters(t *testing.T) {
	ts := newTestServer(t)

	for _, query := range []string{
		"mode=week",
		"month=13",
		"month=0",
		"mode=quarter&quarter=5",
		"year=abc",
		"year=0",
		"amortization=perhaps",
		"today=05/03/2025",
	} {
		rec := ts.do(t, http.MethodGet, "/api/reports?"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)

		resp := decodeBody[ErrorResponse](t, rec)
		assert.Equal(t, "Invalid report filter", resp.Error, query)
		assert.NotEmpty(t, resp.Details, query)
	}
}

// =============================================================================
// DRILL-DOWN
// =============================================================================

func TestGetReportGroup_NewestFirst(t *testing.T) {
	ts := newTestServer(t)
	ts.importMarch(t)

	rec := ts.do(t, http.MethodGet, "/api/reports/groups/"+url.PathEscape("Truck 1")+"?amortization=true", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail := decodeBody[GroupDetailDTO](t, rec)

	assert.Equal(t, "Truck 1", detail.Key)
	assert.Equal(t, "March 2025", detail.Period)
	assertAmount(t, "1500", detail.Totals.Expenses)

	require.Len(t, detail.Events, 3)
	assert.Equal(t, []string{"2025-03-03", "2025-03-02", "2025-03-01"},
		[]string{detail.Events[0].Date, detail.Events[1].Date, detail.Events[2].Date})
	assert.True(t, detail.Events[0].IsDayOff)
	assert.True(t, detail.Events[1].IsAmortization)
	assertAmount(t, "1500", detail.Events[1].Expenses)
}

func TestGetReportGroup_UnknownGroup(t *testing.T) {
	ts := newTestServer(t)
	ts.importMarch(t)

	rec := ts.do(t, http.MethodGet, "/api/reports/groups/Nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// GAPS / DASHBOARD / DIRECTORY
// =============================================================================

func TestGetGaps_IgnoresMode(t *testing.T) {
	ts := newTestServer(t)
	ts.importMarch(t)

	rec := ts.do(t, http.MethodGet, "/api/gaps?mode=year&vehicle=V1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	gaps := decodeBody[GapsResponse](t, rec)

	assert.Equal(t, "March 2025", gaps.Label)
	assert.Equal(t, 5, gaps.LastDayChecked)
	require.Len(t, gaps.Gaps, 1)
	assert.Equal(t, []int{2, 4, 5}, gaps.Gaps[0].MissingDays)
}

func TestGetGaps_PastMonthChecksWholeMonth(t *testing.T) {
	ts := newTestServer(t)
	ts.importMarch(t)

	gaps := decodeBody[GapsResponse](t, ts.do(t, http.MethodGet, "/api/gaps?month=3&today=2025-04-10&vehicle=V1", ""))
	assert.Equal(t, 31, gaps.LastDayChecked)
	require.Len(t, gaps.Gaps, 1)
	assert.Len(t, gaps.Gaps[0].MissingDays, 29)

	gaps = decodeBody[GapsResponse](t, ts.do(t, http.MethodGet, "/api/gaps?month=6", ""))
	assert.Equal(t, 0, gaps.LastDayChecked)
	assert.Empty(t, gaps.Gaps)
}

func TestGetDashboard(t *testing.T) {
	ts := newTestServer(t)
	ts.importMarch(t)

	rec := ts.do(t, http.MethodGet, "/api/dashboard?mode=year&month=3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dash := decodeBody[DashboardDTO](t, rec)

	assert.Equal(t, "March 2025", dash.Month.Label)
	assert.Equal(t, "Q1 2025", dash.Quarter.Label)
	assert.Equal(t, "2025", dash.Year.Label)
	assertAmount(t, "1400", dash.Month.Totals.Income)
	assertAmount(t, "1400", dash.Quarter.Totals.Income)
	assertAmount(t, "1400", dash.Year.Totals.Income)
	assert.NotEmpty(t, dash.Month.Gaps)
	assert.Empty(t, dash.Year.Gaps)
}

func TestVehicles(t *testing.T) {
	ts := newTestServer(t)
	ts.importMarch(t)

	vehicles := decodeBody[[]VehicleDTO](t, ts.do(t, http.MethodGet, "/api/vehicles", ""))
	assert.Equal(t, []VehicleDTO{
		{ID: "V1", Label: "Truck 1"},
		{ID: "V2", Label: "XY-200", Plate: "XY-200"},
	}, vehicles)

	rec := ts.do(t, http.MethodGet, "/api/vehicles/V2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "XY-200", decodeBody[VehicleDTO](t, rec).Label)

	rec = ts.do(t, http.MethodGet, "/api/vehicles/V42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "unknown entity")
}

func TestListYears(t *testing.T) {
	ts := newTestServer(t)

	years := decodeBody[YearsDTO](t, ts.do(t, http.MethodGet, "/api/years", ""))
	assert.Equal(t, 2025, years.Current)
	assert.Equal(t, []int{2025, 2026, 2027}, years.Years)
}

// =============================================================================
// CACHE
// =============================================================================

func TestReportCache_InvalidatedOnImport(t *testing.T) {
	// GIVEN: A cached March report
	ts := newTestServer(t)
	ts.importMarch(t)
	first := decodeBody[ReportDTO](t, ts.do(t, http.MethodGet, "/api/reports", ""))
	assert.Equal(t, 1, ts.handler.Reports.Size())

	// WHEN: Another sales day is imported
	rec := ts.do(t, http.MethodPost, "/api/import",
		`{"daily_finance": [{"id": "d2", "vehicleId": "V1", "sales": "250", "date": "2025-03-02"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 0, ts.handler.Reports.Size())

	// THEN: The next report sees it
	second := decodeBody[ReportDTO](t, ts.do(t, http.MethodGet, "/api/reports", ""))
	assertAmount(t, "1400", first.Totals.Income)
	assertAmount(t, "1650", second.Totals.Income)
	assert.Equal(t, []int{4, 5}, second.Gaps[0].MissingDays)
}

func TestReportCache_EquivalentFiltersShareEntry(t *testing.T) {
	ts := newTestServer(t)
	ts.importMarch(t)

	ts.do(t, http.MethodGet, "/api/reports?mode=year&year=2025", "")
	ts.do(t, http.MethodGet, "/api/reports?mode=year&year=2025&month=7&today=2025-01-01", "")
	assert.Equal(t, 1, ts.handler.Reports.Size())

	ts.do(t, http.MethodGet, "/api/reports?mode=year&year=2025&vehicle=all", "")
	assert.Equal(t, 1, ts.handler.Reports.Size())
}

func TestReportQuery_Key(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/reports?month=2", nil)
	today := generic.DateOf(fixedNow)

	q, err := parseReportQuery(req, today)
	require.NoError(t, err)
	assert.Equal(t, "month|2025-02@2025-03-05|all|false", q.key())
	assert.Equal(t, 1, q.Selection.Quarter)

	assert.True(t, strings.HasPrefix(q.withMode(generic.ModeQuarter).key(), "quarter|2025-Q1|"))
}

func TestReportCache_EntryFromOlderGeneration_NotServed(t *testing.T) {
	// GIVEN: A report cached, then a write that lands after the cache was
	// cleared but before that report was stored
	ts := newTestServer(t)
	ts.importMarch(t)
	first := decodeBody[ReportDTO](t, ts.do(t, http.MethodGet, "/api/reports", ""))
	require.Equal(t, 1, ts.handler.Reports.Size())

	require.NoError(t, ts.store.SaveDailyRecord(context.Background(), fleet.DailyFinanceRecord{
		ID: "d2", VehicleID: "V1", Sales: fleet.AmountText("250"), Date: fleet.TextDate("2025-03-02"),
	}))
	ts.handler.generation.Add(1)

	// WHEN: Requesting the same report
	second := decodeBody[ReportDTO](t, ts.do(t, http.MethodGet, "/api/reports", ""))

	// THEN: The stale entry is ignored and replaced
	assertAmount(t, "1400", first.Totals.Income)
	assertAmount(t, "1650", second.Totals.Income)

	q, err := parseReportQuery(httptest.NewRequest(http.MethodGet, "/api/reports", nil), generic.DateOf(fixedNow))
	require.NoError(t, err)
	c, ok := ts.handler.Reports.Get(q.key())
	require.True(t, ok)
	assert.Equal(t, ts.handler.generation.Load(), c.Generation)
}

func TestImport_TooLarge(t *testing.T) {
	ts := newTestServer(t)

	body := `{"vehicles": [{"id": "V1"` + strings.Repeat(" ", maxImportBytes) + `}]}`
	rec := ts.do(t, http.MethodPost, "/api/import", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Snapshot too large", decodeBody[ErrorResponse](t, rec).Error)

	vehicles := decodeBody[[]VehicleDTO](t, ts.do(t, http.MethodGet, "/api/vehicles", ""))
	assert.Empty(t, vehicles)
}
