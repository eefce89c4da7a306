package httpapi

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"agrismart-monitor/internal/diagnosis"
	"agrismart-monitor/internal/models"
)

func (s *Server) coordinates(w http.ResponseWriter, r *http.Request) (lat, lon float64, ok bool) {
	lat, err := parseFloatParam(r, "lat")
	if err != nil || lat < -90 || lat > 90 {
		badRequest(w, "lat must be a number in [-90, 90]")
		return 0, 0, false
	}
	lon, err = parseFloatParam(r, "lon")
	if err != nil || lon < -180 || lon > 180 {
		badRequest(w, "lon must be a number in [-180, 180]")
		return 0, 0, false
	}
	return lat, lon, true
}

// upstreamError maps failures of an external provider to 502.
func (s *Server) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, models.ErrInvalidInput) || errors.Is(err, models.ErrNotFound) {
		s.writeError(w, err)
		return
	}
	s.logger.Warn("Upstream provider failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusBadGateway, Fail("UpstreamFailure", err.Error()))
}

func (s *Server) weatherCurrent(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.coordinates(w, r)
	if !ok {
		return
	}
	cur, err := s.opts.Weather.Current(r.Context(), lat, lon)
	if err != nil {
		s.upstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(cur))
}

func (s *Server) weatherForecast(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.coordinates(w, r)
	if !ok {
		return
	}
	fc, err := s.opts.Weather.Forecast(r.Context(), lat, lon)
	if err != nil {
		s.upstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(fc))
}

func (s *Server) weatherAdvisories(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.coordinates(w, r)
	if !ok {
		return
	}
	adv, err := s.opts.Weather.Advisories(r.Context(), lat, lon)
	if err != nil {
		s.upstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(adv))
}

func (s *Server) postDiagnosis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, diagnosis.MaxImageBytes+(1<<16))
	file, header, err := r.FormFile("image")
	if err != nil {
		badRequest(w, "multipart field image is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(w, "failed to read image")
		return
	}
	res, err := s.opts.Classifier.Classify(r.Context(), data, header.Filename)
	if err != nil {
		s.upstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}
