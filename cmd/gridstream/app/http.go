package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// router lays out the external surface: the write path, the buffer
// backpressure signal, the read contracts and the operational endpoints.
func (a *App) router() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()

	// Write path.
	api.HandleFunc("/readings", a.distributor.PushHandler).Methods(http.MethodPost)
	api.HandleFunc("/buffer", a.distributor.BufferStatusHandler).Methods(http.MethodGet)

	// Hot reads.
	api.HandleFunc("/vehicles/{id}/live", a.querier.VehicleLiveHandler).Methods(http.MethodGet)
	api.HandleFunc("/meters/{id}/live", a.querier.MeterLiveHandler).Methods(http.MethodGet)

	// Cold reads, mandatory time range.
	api.HandleFunc("/vehicles/{id}/history", a.querier.VehicleHistoryHandler).Methods(http.MethodGet)
	api.HandleFunc("/meters/{id}/history", a.querier.MeterHistoryHandler).Methods(http.MethodGet)

	// Rollup reads.
	api.HandleFunc("/fleet/{class:vehicles|meters}/summary", a.querier.FleetSummaryHandler).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/{class:vehicles|meters}", a.querier.DashboardHandler).Methods(http.MethodGet)

	// Links and the joined 24h performance view.
	api.HandleFunc("/vehicles/{id}/performance", a.querier.VehiclePerformanceHandler).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}/link", a.querier.GetLinkHandler).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}/link", a.querier.PutLinkHandler).Methods(http.MethodPut)

	// Operational.
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", a.readyHandler).Methods(http.MethodGet)

	return r
}
