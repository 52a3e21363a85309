package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-ingest/internal/api/handlers"
	"github.com/wonny/aegis-ingest/internal/archive"
	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/internal/runs"
	"github.com/wonny/aegis-ingest/internal/scheduler"
	"github.com/wonny/aegis-ingest/pkg/logger"
	"github.com/wonny/aegis-ingest/pkg/metrics"
)

type fakeJobs struct {
	ran chan string
}

func (f *fakeJobs) GetAllJobs() []string { return []string{"daily_update"} }

func (f *fakeJobs) GetJobStats() map[string]scheduler.JobStats {
	return map[string]scheduler.JobStats{"daily_update": {JobName: "daily_update", Schedule: "0 0 18 * * 1-5"}}
}

func (f *fakeJobs) RunJob(_ context.Context, name string) (scheduler.JobResult, error) {
	f.ran <- name
	return scheduler.JobResult{JobName: name, Success: true}, nil
}

func day(s string) time.Time {
	d, err := contracts.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestRouter(t *testing.T, jobs handlers.JobRunner) (http.Handler, *runs.Store) {
	t.Helper()
	store := archive.NewMemoryStore()
	store.Seed("SH600000", []contracts.NormalizedBar{
		{Code: "SH600000", Date: day("2023-07-03"), Open: 10, High: 11, Low: 9, Close: 10, Volume: 100, Amount: 1000, Change: math.NaN(), Factor: 1},
		{Code: "SH600000", Date: day("2023-07-04"), Open: 10, High: 11, Low: 9, Close: 11, Volume: 100, Amount: 1100, Change: 0.1, Factor: 1},
	})

	log := logger.Nop()
	runStore := runs.NewStore(nil, "", log)
	router := NewRouter(
		handlers.NewRunsHandler(runStore, jobs, log),
		handlers.NewArchiveHandler(store, log),
		metrics.New().Handler(),
		log,
	)
	return router, runStore
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = get(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLatestReports(t *testing.T) {
	router, store := newTestRouter(t, nil)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/runs/update/latest").Code)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/health/latest").Code)

	ctx := context.Background()
	require.NoError(t, store.SaveUpdate(ctx, &contracts.UpdateReport{Total: 2, Success: 2, RowsAppended: 4}))
	hr := contracts.NewHealthReport()
	hr.Add(contracts.InstrumentResult{Code: "SH600000", MissingData: map[string]contracts.MissingCount{"open": {All: true}}})
	require.NoError(t, store.SaveHealth(ctx, hr))

	rec := get(t, router, "/api/runs/update/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var update contracts.UpdateReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &update))
	assert.Equal(t, 4, update.RowsAppended)

	rec = get(t, router, "/api/health/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"open":"all"`)
}

func TestArchiveEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := get(t, router, "/api/instruments")
	require.Equal(t, http.StatusOK, rec.Code)
	var instruments []handlers.InstrumentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &instruments))
	require.Len(t, instruments, 1)
	assert.Equal(t, handlers.InstrumentView{Code: "SH600000", Start: "2023-07-03", End: "2023-07-04"}, instruments[0])

	rec = get(t, router, "/api/instruments/sh600000/bars?start=2023-07-03")
	require.Equal(t, http.StatusOK, rec.Code)
	var bars []handlers.BarView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bars))
	require.Len(t, bars, 2)
	assert.Nil(t, bars[0].Change, "NaN is served as null")
	require.NotNil(t, bars[1].Close)
	assert.Equal(t, 11.0, *bars[1].Close)

	rec = get(t, router, "/api/instruments/SH600000/bars?end=2023-07-03")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bars))
	assert.Len(t, bars, 1)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/instruments/SH600000/bars?start=07-03").Code)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/instruments/SZ000001/bars").Code)

	rec = get(t, router, "/api/archive/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"calendar_end":"2023-07-04"`)
	assert.Contains(t, rec.Body.String(), `"instruments":1`)
}

func TestJobsEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/api/jobs").Code)

	jobs := &fakeJobs{ran: make(chan string, 1)}
	router, _ = newTestRouter(t, jobs)

	rec := get(t, router, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "daily_update")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/daily_update/run", strings.NewReader("")))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case name := <-jobs.ran:
		assert.Equal(t, "daily_update", name)
	case <-time.After(time.Second):
		t.Fatal("triggered job did not run")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/unknown/run", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
