package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"agrismart-monitor/internal/alerting"
	"agrismart-monitor/internal/models"
)

func (s *Server) getAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.opts.Alerts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	actor := actorFromReq(r)
	if actor == "" {
		badRequest(w, actorHeader+" header is required")
		return
	}
	alert, err := s.opts.Alerts.Acknowledge(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

func (s *Server) resolveAlert(w http.ResponseWriter, r *http.Request) {
	actor := actorFromReq(r)
	if actor == "" {
		badRequest(w, actorHeader+" header is required")
		return
	}
	var req struct {
		Notes *string `json:"notes"`
	}
	if err := readBodyJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	alert, err := s.opts.Alerts.Resolve(r.Context(), mux.Vars(r)["id"], actor, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

type manualAlertRequest struct {
	Recipients []string        `json:"recipients"`
	ParcelID   *string         `json:"parcel_id"`
	SensorID   *string         `json:"sensor_id"`
	Severity   models.Severity `json:"severity"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
}

func (s *Server) postManualAlert(w http.ResponseWriter, r *http.Request) {
	var req manualAlertRequest
	if err := readBodyJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	alerts, err := s.opts.Alerts.RaiseManual(r.Context(), alerting.ManualAlert{
		ActorID:    actorFromReq(r),
		Recipients: req.Recipients,
		ParcelID:   req.ParcelID,
		SensorID:   req.SensorID,
		Severity:   req.Severity,
		Title:      req.Title,
		Message:    req.Message,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(alerts))
}

func (s *Server) postTestAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := readBodyJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = actorFromReq(r)
	}
	alert, err := s.opts.Alerts.SendTest(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(alert))
}
