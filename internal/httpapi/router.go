// Package httpapi exposes ingestion, alert operations and the auxiliary
// weather, export and diagnosis endpoints over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"agrismart-monitor/internal/alerting"
	"agrismart-monitor/internal/diagnosis"
	"agrismart-monitor/internal/ingest"
	"agrismart-monitor/internal/models"
	"agrismart-monitor/internal/report"
	"agrismart-monitor/internal/weather"
)

type Ingestor interface {
	Ingest(ctx context.Context, sensorID string, value float64, unit string, measuredAt *time.Time) (*models.Measurement, error)
	IngestBatch(ctx context.Context, items []ingest.RawMeasurement) (*ingest.BatchResult, error)
}

type AlertService interface {
	Get(ctx context.Context, alertID string) (*models.Alert, error)
	Acknowledge(ctx context.Context, alertID, actor string) (*models.Alert, error)
	Resolve(ctx context.Context, alertID, actor string, notes *string) (*models.Alert, error)
	RaiseManual(ctx context.Context, req alerting.ManualAlert) ([]*models.Alert, error)
	SendTest(ctx context.Context, userID string) (*models.Alert, error)
}

type SensorStatusReader interface {
	SensorStatus(ctx context.Context, sensorID string) (*models.SensorSnapshot, error)
}

type Exporter interface {
	Export(ctx context.Context, req report.ExportRequest) ([]byte, error)
}

type WeatherService interface {
	Current(ctx context.Context, lat, lon float64) (*weather.Current, error)
	Forecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error)
	Advisories(ctx context.Context, lat, lon float64) ([]weather.Advisory, error)
}

// Options wires the server. Nil optional services leave their routes unregistered.
type Options struct {
	Ingestor   Ingestor
	Alerts     AlertService
	Sensors    SensorStatusReader
	Exporter   Exporter
	Weather    WeatherService
	Classifier diagnosis.Classifier
	Live       http.Handler
	// Health reports dependency readiness; nil means always healthy.
	Health func(ctx context.Context) error
	Logger *zap.Logger
}

type Server struct {
	opts   Options
	logger *zap.Logger
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{opts: opts, logger: opts.Logger}
}

// SetHealth installs the readiness check used by /healthz.
func (s *Server) SetHealth(fn func(ctx context.Context) error) {
	s.opts.Health = fn
}

// Router returns the bare route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if s.opts.Live != nil {
		r.Handle("/ws", s.opts.Live).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	if s.opts.Ingestor != nil {
		v1.HandleFunc("/measurements", s.postMeasurement).Methods(http.MethodPost)
		v1.HandleFunc("/measurements/batch", s.postMeasurementBatch).Methods(http.MethodPost)
	}
	if s.opts.Sensors != nil {
		v1.HandleFunc("/sensors/{id}/status", s.getSensorStatus).Methods(http.MethodGet)
	}
	if s.opts.Exporter != nil {
		v1.HandleFunc("/measurements/export", s.exportMeasurements).Methods(http.MethodGet)
	}
	if s.opts.Alerts != nil {
		v1.HandleFunc("/alerts", s.postManualAlert).Methods(http.MethodPost)
		v1.HandleFunc("/alerts/test", s.postTestAlert).Methods(http.MethodPost)
		v1.HandleFunc("/alerts/{id}", s.getAlert).Methods(http.MethodGet)
		v1.HandleFunc("/alerts/{id}/acknowledge", s.acknowledgeAlert).Methods(http.MethodPost)
		v1.HandleFunc("/alerts/{id}/resolve", s.resolveAlert).Methods(http.MethodPost)
	}
	if s.opts.Weather != nil {
		v1.HandleFunc("/weather/current", s.weatherCurrent).Methods(http.MethodGet)
		v1.HandleFunc("/weather/forecast", s.weatherForecast).Methods(http.MethodGet)
		v1.HandleFunc("/weather/advisories", s.weatherAdvisories).Methods(http.MethodGet)
	}
	if s.opts.Classifier != nil {
		v1.HandleFunc("/diagnosis", s.postDiagnosis).Methods(http.MethodPost)
	}
	return r
}

// Handler wraps the router with recovery, CORS and access logging.
func (s *Server) Handler() http.Handler {
	accessLog := zap.NewStdLog(s.logger.Named("access")).Writer()
	h := http.Handler(s.Router())
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", actorHeader}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.logger)),
		handlers.PrintRecoveryStack(false),
	)(h)
	return handlers.LoggingHandler(accessLog, h)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, Fail("Unavailable", err.Error()))
			return
		}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
}
