package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"TelegramWarehouse/internal/domain"
	"TelegramWarehouse/internal/ports"
)

const (
	defaultThreshold        = 0.15
	defaultTimeout          = 30 * time.Second
	defaultFailureThreshold = 5
	defaultOpenTimeout      = time.Minute
)

// Options configures the inference client.
type Options struct {
	Endpoint         string
	APIKey           string
	Threshold        float64
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Detector talks to an external object-detection service.
type Detector struct {
	endpoint  string
	apiKey    string
	threshold float64
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
}

var _ ports.Detector = (*Detector)(nil)

type detectRequest struct {
	ImagePath string `json:"image_path"`
}

type detectResponse struct {
	Detections []domain.ObjectDetection `json:"detections"`
}

// NewDetector creates a reusable HTTP client guarded by a circuit breaker.
func NewDetector(opts Options) *Detector {
	if opts.Threshold <= 0 {
		opts.Threshold = defaultThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaultOpenTimeout
	}

	failures := opts.FailureThreshold
	return &Detector{
		endpoint:  opts.Endpoint,
		apiKey:    opts.APIKey,
		threshold: opts.Threshold,
		http:      &http.Client{Timeout: opts.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "detector",
			Timeout: opts.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
		}),
	}
}

// Detect asks the service for labels on one image. An open circuit or a
// service that cannot be reached yields an Unavailable outcome instead of an
// error.
func (d *Detector) Detect(ctx context.Context, imagePath string) (domain.DetectionOutcome, error) {
	out, err := d.breaker.Execute(func() (interface{}, error) {
		var resp detectResponse
		if err := d.post(ctx, "/detect", detectRequest{ImagePath: imagePath}, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.DetectionOutcome{Unavailable: true, Reason: "detector circuit open"}, nil
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && ctx.Err() == nil {
		return domain.DetectionOutcome{Unavailable: true, Reason: "detector unreachable: " + urlErr.Err.Error()}, nil
	}
	if err != nil {
		return domain.DetectionOutcome{}, fmt.Errorf("detect %s: %w", imagePath, err)
	}

	resp, _ := out.(detectResponse)
	return domain.DetectionOutcome{Detections: filter(resp.Detections, d.threshold)}, nil
}

// filter clamps confidences to [0,1], drops labels below threshold and
// orders the rest by confidence.
func filter(in []domain.ObjectDetection, threshold float64) []domain.ObjectDetection {
	out := make([]domain.ObjectDetection, 0, len(in))
	for _, det := range in {
		if det.Label == "" {
			continue
		}
		det.Confidence = min(max(det.Confidence, 0), 1)
		if det.Confidence < threshold {
			continue
		}
		out = append(out, det)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func (d *Detector) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
