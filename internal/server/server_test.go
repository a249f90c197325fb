package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingeii/binance-signal-bot/internal/metrics"
	"github.com/dingeii/binance-signal-bot/internal/report"
)

type fixedReports struct {
	r  report.Report
	ok bool
}

func (f fixedReports) LatestReport() (report.Report, bool) { return f.r, f.ok }

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(Options{Gatherer: prometheus.NewRegistry()}, nil, zerolog.Nop())
	rec := do(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg).RecordCycle("ok", time.Second, time.Now())

	s := New(Options{Gatherer: reg}, nil, zerolog.Nop())
	rec := do(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `signalbot_cycles_total{status="ok"} 1`)
}

func TestLatestReport(t *testing.T) {
	r := report.NoData("c1", "futures", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), "ticker fetch failed")

	s := New(Options{Gatherer: prometheus.NewRegistry()}, fixedReports{r: r, ok: true}, zerolog.Nop())
	rec := do(t, s.Handler(), "/api/report/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var got report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "c1", got.CycleID)
	assert.Equal(t, report.StatusNoData, got.Status)

	rec = do(t, s.Handler(), "/api/report/latest?format=markdown")
	assert.True(t, strings.Contains(rec.Body.String(), "No data available"))
}

func TestLatestReportMissing(t *testing.T) {
	s := New(Options{Gatherer: prometheus.NewRegistry()}, fixedReports{}, zerolog.Nop())
	rec := do(t, s.Handler(), "/api/report/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
