// Package diagnosis classifies crop images for disease through a remote model service.
package diagnosis

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

const (
	// MaxImageBytes caps uploads accepted for classification.
	MaxImageBytes = 10 << 20
	// DefaultMinConfidence is the score under which a plant is reported healthy.
	DefaultMinConfidence = 0.5
)

// Prediction is one candidate disease with its confidence in [0,1].
type Prediction struct {
	DiseaseID   string  `json:"disease_id"`
	DiseaseName string  `json:"disease_name"`
	Confidence  float64 `json:"confidence"`
}

// Result is the outcome of classifying one image. Healthy results have no DiseaseID.
type Result struct {
	DiseaseID   *string      `json:"disease_id,omitempty"`
	DiseaseName string       `json:"disease_name,omitempty"`
	Confidence  float64      `json:"confidence"`
	Healthy     bool         `json:"healthy"`
	Model       string       `json:"model"`
	Predictions []Prediction `json:"predictions,omitempty"`
}

// Classifier identifies crop diseases in an image.
type Classifier interface {
	Classify(ctx context.Context, image []byte, filename string) (*Result, error)
}

type remoteResponse struct {
	Model       string       `json:"model"`
	Predictions []Prediction `json:"predictions"`
}

// RemoteClassifier posts images to an HTTP inference service.
type RemoteClassifier struct {
	httpClient *resty.Client
	minScore   float64
	logger     *zap.Logger
}

// NewRemoteClassifier creates a classifier for baseURL. Predictions under
// minScore are treated as a healthy plant.
func NewRemoteClassifier(baseURL, apiKey string, minScore float64, logger *zap.Logger) *RemoteClassifier {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &RemoteClassifier{httpClient: c, minScore: minScore, logger: logger}
}

func (r *RemoteClassifier) Classify(ctx context.Context, image []byte, filename string) (*Result, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image: %w", models.ErrInvalidInput)
	}
	if len(image) > MaxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes: %w", MaxImageBytes, models.ErrInvalidInput)
	}
	if filename == "" {
		filename = "image.jpg"
	}

	var out remoteResponse
	resp, err := r.httpClient.R().
		SetContext(ctx).
		SetFileReader("image", filename, bytes.NewReader(image)).
		SetResult(&out).
		Post("/classify")
	if err != nil {
		return nil, fmt.Errorf("failed to call classifier: %w", err)
	}
	if resp.IsError() {
		r.logger.Warn("Classifier returned error",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, fmt.Errorf("classifier error: status %d", resp.StatusCode())
	}

	return r.interpret(out), nil
}

func (r *RemoteClassifier) interpret(out remoteResponse) *Result {
	res := &Result{Model: out.Model, Predictions: out.Predictions, Healthy: true}
	var best *Prediction
	for i := range out.Predictions {
		p := &out.Predictions[i]
		if best == nil || p.Confidence > best.Confidence {
			best = p
		}
	}
	if best == nil || best.Confidence < r.minScore || best.DiseaseID == "" {
		return res
	}
	id := best.DiseaseID
	res.DiseaseID = &id
	res.DiseaseName = best.DiseaseName
	res.Confidence = best.Confidence
	res.Healthy = false
	return res
}
