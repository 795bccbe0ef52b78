package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/solarconsumer/pkg/inputs"
	"github.com/raterudder/solarconsumer/pkg/metrics"
	"github.com/raterudder/solarconsumer/pkg/pvsim"
	"github.com/raterudder/solarconsumer/pkg/runner"
	"github.com/raterudder/solarconsumer/pkg/storage"
	"github.com/raterudder/solarconsumer/pkg/types"
)

type fakeSimulator struct {
	err error
}

func (f fakeSimulator) Simulate(ctx context.Context, req pvsim.Request) (types.Simulation, error) {
	if f.err != nil {
		return types.Simulation{}, f.err
	}
	samples := make([]types.GenerationSample, types.HoursPerYear)
	for i := range samples {
		h := i % 24
		var w float64
		if h >= 6 && h < 18 {
			w = 700 * req.SystemSize * math.Sin(math.Pi*float64(h-6)/12)
		}
		samples[i] = types.GenerationSample{TS: types.HourTimestamp(i), Watts: w}
	}
	return types.Simulation{Site: types.Site{City: "Nevada", State: "MO"}, Samples: samples}, nil
}

func newTestServer(t *testing.T, sim pvsim.Simulator) (*Server, http.Handler) {
	t.Helper()
	reg := prometheus.NewRegistry()
	srv := &Server{
		runner:         runner.New(sim, storage.NewMemory(), metrics.New(reg)),
		metricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		serverName:     "solarconsumer-test",
	}
	return srv, srv.setupHandler()
}

func postRun(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRunLifecycle(t *testing.T) {
	_, h := newTestServer(t, fakeSimulator{})

	w := postRun(t, h, inputs.Defaults())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "solarconsumer-test", w.Header().Get("Server"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var run types.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	require.NotEmpty(t, run.ID)
	assert.Equal(t, types.RunStatusCompleted, run.Status)
	require.NotNil(t, run.Result)
	assert.Len(t, run.Result.Roof.MonthlyBills, 25*12)

	t.Run("get", func(t *testing.T) {
		w := get(h, "/api/runs/"+run.ID)
		require.Equal(t, http.StatusOK, w.Code)
		var got types.Run
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, "64735", got.RawInputs["zipCode"])
		require.NotNil(t, got.Result)
	})

	t.Run("list", func(t *testing.T) {
		w := get(h, "/api/runs?limit=5")
		require.Equal(t, http.StatusOK, w.Code)
		var runs []types.Run
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
		require.Len(t, runs, 1)
		assert.Equal(t, run.ID, runs[0].ID)
		assert.Nil(t, runs[0].Result)

		assert.Equal(t, http.StatusBadRequest, get(h, "/api/runs?limit=lots").Code)
	})

	t.Run("ledger", func(t *testing.T) {
		w := get(h, "/api/runs/"+run.ID+"/ledger.csv")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		assert.Len(t, lines, 25*12+1)
		assert.True(t, strings.HasPrefix(lines[0], "year,month,"))
	})

	t.Run("summary", func(t *testing.T) {
		w := get(h, "/api/runs/"+run.ID+"/summary")
		require.Equal(t, http.StatusOK, w.Code)
		var rows []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
		require.Len(t, rows, 4)
		assert.Equal(t, "Not Available", rows[0]["totalSaved"])
	})

	t.Run("not found", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(h, "/api/runs/missing").Code)
		assert.Equal(t, http.StatusNotFound, get(h, "/api/runs/missing/summary").Code)
	})

	t.Run("metrics", func(t *testing.T) {
		w := get(h, "/metrics")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `solarconsumer_runs_total{status="completed"} 1`)
	})
}

func TestCreateRunJSONValues(t *testing.T) {
	_, h := newTestServer(t, fakeSimulator{})

	body := map[string]any{}
	for k, v := range inputs.Defaults() {
		body[k] = v
	}
	body["systemSize"] = 6.5
	body["years"] = 10
	body["monthlyDemand"] = []float64{900, 850, 800, 700, 650, 800, 1000, 1000, 800, 700, 750, 900}

	w := postRun(t, h, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var run types.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	require.NotNil(t, run.Inputs)
	assert.Equal(t, 6.5, run.Inputs.SystemSize)
	assert.Equal(t, 10, run.Inputs.Years)
	assert.Equal(t, 650.0, run.Inputs.MonthlyDemand[4])
}

func TestCreateRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		sim    pvsim.Simulator
		body   any
		status int
		kind   types.ErrorKind
		hasRun bool
	}{
		{
			name:   "invalid input",
			sim:    fakeSimulator{},
			body:   inputs.Merge(inputs.Defaults(), map[string]string{"retailRate": "cheap"}),
			status: http.StatusBadRequest,
			kind:   types.ErrorKindInvalidInput,
			hasRun: true,
		},
		{
			name:   "too many years",
			sim:    fakeSimulator{},
			body:   inputs.Merge(inputs.Defaults(), map[string]string{"years": "1000000000000000000"}),
			status: http.StatusBadRequest,
			kind:   types.ErrorKindInvalidInput,
			hasRun: true,
		},
		{
			name:   "metering",
			sim:    fakeSimulator{},
			body:   inputs.Merge(inputs.Defaults(), map[string]string{"meteringType": "gross"}),
			status: http.StatusBadRequest,
			kind:   types.ErrorKindConfiguration,
			hasRun: true,
		},
		{
			name:   "upstream",
			sim:    fakeSimulator{err: types.UpstreamData(nil, "expected 8760 hourly values, got 12")},
			body:   inputs.Defaults(),
			status: http.StatusBadGateway,
			kind:   types.ErrorKindUpstreamData,
			hasRun: true,
		},
		{
			name:   "not an object",
			sim:    fakeSimulator{},
			body:   []string{"a"},
			status: http.StatusBadRequest,
			kind:   types.ErrorKindInvalidInput,
		},
		{
			name:   "nested value",
			sim:    fakeSimulator{},
			body:   map[string]any{"retailRate": map[string]any{"v": 1}},
			status: http.StatusBadRequest,
			kind:   types.ErrorKindInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestServer(t, tt.sim)
			w := postRun(t, h, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
			if !tt.hasRun {
				assert.Empty(t, resp.RunID)
				return
			}
			require.NotEmpty(t, resp.RunID)

			// the failed run is persisted and has no projection to report
			w = get(h, "/api/runs/"+resp.RunID)
			require.Equal(t, http.StatusOK, w.Code)
			var run types.Run
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
			assert.Equal(t, types.RunStatusFailed, run.Status)
			assert.Equal(t, tt.kind, run.ErrorKind)

			assert.Equal(t, http.StatusConflict, get(h, "/api/runs/"+resp.RunID+"/ledger.csv").Code)
		})
	}
}

func TestListMetering(t *testing.T) {
	_, h := newTestServer(t, fakeSimulator{})
	w := get(h, "/api/list/metering")
	require.Equal(t, http.StatusOK, w.Code)
	var list []types.MeteringTypeInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, types.MeteringNet, list[0].ID)
}

func TestHealthzAndGzip(t *testing.T) {
	_, h := newTestServer(t, fakeSimulator{})
	w := get(h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/list/metering", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, fakeSimulator{})
	srv.corsOrigins = []string{"https://solar.example.com"}
	h := srv.setupHandler()

	req := httptest.NewRequest(http.MethodOptions, "/api/runs", nil)
	req.Header.Set("Origin", "https://solar.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "https://solar.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/list/metering", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, splitList(" a@x.com, ,b@x.com "))
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusForKind(types.ErrorKindInvalidInput))
	assert.Equal(t, http.StatusBadRequest, statusForKind(types.ErrorKindConfiguration))
	assert.Equal(t, http.StatusBadGateway, statusForKind(types.ErrorKindUpstreamData))
	assert.Equal(t, http.StatusInternalServerError, statusForKind(types.ErrorKindInternal))
}
