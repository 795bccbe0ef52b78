package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/raterudder/solarconsumer/pkg/log"
	"github.com/raterudder/solarconsumer/pkg/report"
	"github.com/raterudder/solarconsumer/pkg/runner"
	"github.com/raterudder/solarconsumer/pkg/types"
)

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	raw, err := decodeInputs(r)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode run inputs", slog.Any("error", err))
		writeErrorResponse(w, errorResponse{Error: err.Error(), Kind: types.ErrorKindInvalidInput}, http.StatusBadRequest)
		return
	}
	if email := requestEmail(r); email != "" {
		raw["user"] = email
	}

	run, err := s.runner.Run(ctx, runner.Request{Inputs: raw})
	if err != nil {
		kind := types.KindOf(err)
		if run.ID == "" {
			log.Ctx(ctx).ErrorContext(ctx, "failed to start run", slog.Any("error", err))
			writeJSONError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		resp := errorResponse{Error: err.Error(), Kind: kind, RunID: run.ID}
		if kind == types.ErrorKindInternal {
			resp.Error = "internal server error"
		}
		writeErrorResponse(w, resp, statusForKind(kind))
		return
	}
	writeJSON(w, run)
}

// decodeInputs reads a JSON object of run inputs. Values may be strings or
// numbers, and monthlyDemand may also be an array of numbers.
func decodeInputs(r *http.Request) (map[string]string, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if body == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	out := make(map[string]string, len(body))
	for k, v := range body {
		s, err := inputText(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

func inputText(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			n, ok := e.(json.Number)
			if !ok {
				return "", fmt.Errorf("element %d must be a number", i)
			}
			parts[i] = n.String()
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value %v", v)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var limit int
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 0 {
			writeJSONError(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	runs, err := s.runner.List(ctx, limit)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list runs", slog.Any("error", err))
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	// listings omit the monthly series
	for i := range runs {
		runs[i].Result = nil
	}
	if runs == nil {
		runs = []types.Run{}
	}
	writeJSON(w, runs)
}

// loadRun fetches the run named in the path, writing the error response
// itself when it fails.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (types.Run, bool) {
	ctx := r.Context()
	id := r.PathValue("id")
	run, err := s.runner.Get(ctx, id)
	if err != nil {
		if runner.IsNotFound(err) {
			writeJSONError(w, "run not found", http.StatusNotFound)
			return types.Run{}, false
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get run", slog.String("runID", id), slog.Any("error", err))
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return types.Run{}, false
	}
	return run, true
}

// completedRun is loadRun for endpoints that need the projection.
func (s *Server) completedRun(w http.ResponseWriter, r *http.Request) (types.Run, bool) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return run, false
	}
	if run.Status != types.RunStatusCompleted || run.Result == nil {
		writeErrorResponse(w, errorResponse{
			Error: fmt.Sprintf("run is %s", run.Status),
			Kind:  run.ErrorKind,
			RunID: run.ID,
		}, http.StatusConflict)
		return run, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleRunLedger(w http.ResponseWriter, r *http.Request) {
	run, ok := s.completedRun(w, r)
	if !ok {
		return
	}

	// buffered so a failed write still produces a proper error response
	var buf bytes.Buffer
	if err := report.WriteLedgerCSV(&buf, report.Ledger(run.Result)); err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to write ledger", slog.Any("error", err))
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-ledger.csv"`, run.ID))
	if _, err := buf.WriteTo(w); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	run, ok := s.completedRun(w, r)
	if !ok {
		return
	}
	var greenFuelMix float64
	if run.Inputs != nil {
		greenFuelMix = run.Inputs.GreenFuelMix
	}
	writeJSON(w, report.SummaryTable(run.Result, greenFuelMix))
}

func (s *Server) handleListMetering(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.ListMeteringTypes())
}
