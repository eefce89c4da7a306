package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"agrismart-monitor/internal/ingest"
	"agrismart-monitor/internal/report"
)

type measurementRequest struct {
	SensorID   string     `json:"sensor_id"`
	Value      *float64   `json:"value"`
	Unit       string     `json:"unit"`
	MeasuredAt *time.Time `json:"measured_at"`
}

func (s *Server) postMeasurement(w http.ResponseWriter, r *http.Request) {
	var req measurementRequest
	if err := readBodyJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.SensorID == "" || req.Value == nil {
		badRequest(w, "sensor_id and value are required")
		return
	}

	m, err := s.opts.Ingestor.Ingest(r.Context(), req.SensorID, *req.Value, req.Unit, req.MeasuredAt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(m))
}

// postMeasurementBatch accepts either a bare array or {"measurements": [...]}.
func (s *Server) postMeasurementBatch(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := readBodyJSON(r, &raw); err != nil || len(raw) == 0 {
		badRequest(w, "invalid JSON body")
		return
	}
	var items []ingest.RawMeasurement
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			badRequest(w, "invalid measurements array")
			return
		}
	} else {
		var wrapped struct {
			Measurements []ingest.RawMeasurement `json:"measurements"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			badRequest(w, "invalid measurements object")
			return
		}
		items = wrapped.Measurements
	}
	if len(items) == 0 {
		badRequest(w, "measurements must not be empty")
		return
	}

	res, err := s.opts.Ingestor.IngestBatch(r.Context(), items)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// per-item failures are part of the result
	writeJSON(w, http.StatusOK, Ok(res))
}

func (s *Server) exportMeasurements(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		badRequest(w, "from must be RFC3339")
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		badRequest(w, "to must be RFC3339")
		return
	}

	data, err := s.opts.Exporter.Export(r.Context(), report.ExportRequest{
		ParcelID: r.URL.Query().Get("parcel_id"),
		SensorID: r.URL.Query().Get("sensor_id"),
		From:     from,
		To:       to,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=mesures.xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) getSensorStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.opts.Sensors.SensorStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(snap))
}
