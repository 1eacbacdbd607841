package distributor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-kit/log/level"
)

// PushHandler accepts one telemetry envelope. 202 means the reading is in
// a buffer; durability comes later, when its batch commits.
func (d *Distributor) PushHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, singleFieldError("body", "payload exceeds size limit"))
			return
		}
		writeJSON(w, http.StatusBadRequest, singleFieldError("body", "unreadable body"))
		return
	}

	if err := d.Push(body); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, verr)
			return
		}
		level.Error(d.logger).Log("msg", "push failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, singleFieldError("body", "internal error"))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// BufferStatusHandler reports per-class buffer depth, the backpressure
// signal operators watch.
func (d *Distributor) BufferStatusHandler(w http.ResponseWriter, _ *http.Request) {
	vehicles, meters := d.pusher.Depths()
	writeJSON(w, http.StatusOK, map[string]int{
		"vehicles": vehicles,
		"meters":   meters,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
