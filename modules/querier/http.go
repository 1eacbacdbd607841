package querier

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/gridstream/gridstream/griddb"
	"github.com/gridstream/gridstream/pkg/telemetry"
)

type apiError struct {
	Error string `json:"error"`
}

// VehicleLiveHandler returns the vehicle's current row, or null for an
// unknown device so fleet dashboards keep a stable shape.
func (q *Querier) VehicleLiveHandler(w http.ResponseWriter, r *http.Request) {
	cur, err := q.store.VehicleLive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		q.serverError(w, "vehicle live", err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

// MeterLiveHandler returns the meter's current row, or null when unknown.
func (q *Querier) MeterLiveHandler(w http.ResponseWriter, r *http.Request) {
	cur, err := q.store.MeterLive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		q.serverError(w, "meter live", err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

// VehicleHistoryHandler returns readings in [from, to), newest first. The
// range is mandatory; an empty window yields an empty list, not a 404.
func (q *Querier) VehicleHistoryHandler(w http.ResponseWriter, r *http.Request) {
	from, to, limit, err := rangeParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{err.Error()})
		return
	}
	readings, err := q.store.VehicleHistory(r.Context(), mux.Vars(r)["id"], from, to, limit)
	if err != nil {
		q.serverError(w, "vehicle history", err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// MeterHistoryHandler returns meter readings in [from, to), newest first.
func (q *Querier) MeterHistoryHandler(w http.ResponseWriter, r *http.Request) {
	from, to, limit, err := rangeParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{err.Error()})
		return
	}
	readings, err := q.store.MeterHistory(r.Context(), mux.Vars(r)["id"], from, to, limit)
	if err != nil {
		q.serverError(w, "meter history", err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// FleetSummaryHandler groups the class's hourly rollups over [from, to).
func (q *Querier) FleetSummaryHandler(w http.ResponseWriter, r *http.Request) {
	from, to, _, err := rangeParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{err.Error()})
		return
	}
	summaries, err := q.store.FleetSummary(r.Context(), classVar(r), from, to)
	if err != nil {
		q.serverError(w, "fleet summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// DashboardHandler serves the trailing-24h hourly buckets for a class.
func (q *Querier) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	summaries, err := q.store.Dashboard24h(r.Context(), classVar(r), q.now())
	if err != nil {
		q.serverError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// VehiclePerformanceHandler serves the joined 24h efficiency view. The
// default recomputes from the reading tables; ?source=summary serves the
// materialized row instead. An unlinked vehicle is a 404.
func (q *Querier) VehiclePerformanceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var (
		perf *telemetry.VehiclePerformance
		err  error
	)
	if r.URL.Query().Get("source") == "summary" {
		perf, err = q.store.VehiclePerformanceSummary(r.Context(), id)
	} else {
		perf, err = q.store.VehiclePerformance24h(r.Context(), id, q.now())
	}
	if errors.Is(err, griddb.ErrNoLink) {
		writeJSON(w, http.StatusNotFound, apiError{"vehicle has no meter link"})
		return
	}
	if err != nil {
		q.serverError(w, "vehicle performance", err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

// GetLinkHandler returns the vehicle's meter link.
func (q *Querier) GetLinkHandler(w http.ResponseWriter, r *http.Request) {
	link, err := q.store.GetLink(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, griddb.ErrNoLink) {
		writeJSON(w, http.StatusNotFound, apiError{"vehicle has no meter link"})
		return
	}
	if err != nil {
		q.serverError(w, "get link", err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// PutLinkHandler creates or replaces the vehicle's meter link.
func (q *Querier) PutLinkHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MeterID string `json:"meter_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MeterID == "" || len(body.MeterID) > 64 {
		writeJSON(w, http.StatusBadRequest, apiError{"meter_id is required (max 64 chars)"})
		return
	}
	if err := q.store.PutLink(r.Context(), mux.Vars(r)["id"], body.MeterID); err != nil {
		q.serverError(w, "put link", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"linked": true})
}

func classVar(r *http.Request) telemetry.Class {
	if mux.Vars(r)["class"] == "meters" {
		return telemetry.ClassMeter
	}
	return telemetry.ClassVehicle
}

// rangeParams parses the required from/to query parameters and an optional
// limit. Missing or malformed bounds reject the request.
func rangeParams(r *http.Request) (from, to time.Time, limit int, err error) {
	qs := r.URL.Query()
	if qs.Get("from") == "" || qs.Get("to") == "" {
		return time.Time{}, time.Time{}, 0, errors.New("from and to are required RFC3339 timestamps")
	}
	from, err = time.Parse(time.RFC3339, qs.Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, 0, errors.New("from is not a valid RFC3339 timestamp")
	}
	to, err = time.Parse(time.RFC3339, qs.Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, 0, errors.New("to is not a valid RFC3339 timestamp")
	}
	if v := qs.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return time.Time{}, time.Time{}, 0, errors.New("limit must be a non-negative integer")
		}
	}
	return from, to, limit, nil
}

func (q *Querier) serverError(w http.ResponseWriter, op string, err error) {
	level.Error(q.logger).Log("msg", "query failed", "op", op, "err", err)
	writeJSON(w, http.StatusInternalServerError, apiError{"internal error"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
