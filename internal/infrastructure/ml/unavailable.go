// Package ml adapts the external object-detection service.
package ml

import (
	"context"

	"TelegramWarehouse/internal/domain"
	"TelegramWarehouse/internal/ports"
)

// Unavailable is the detector used when no inference service is configured.
// Every call reports an Unavailable outcome so enrichment is skipped.
type Unavailable struct {
	Reason string
}

var _ ports.Detector = Unavailable{}

func (u Unavailable) Detect(context.Context, string) (domain.DetectionOutcome, error) {
	reason := u.Reason
	if reason == "" {
		reason = "detector not configured"
	}
	return domain.DetectionOutcome{Unavailable: true, Reason: reason}, nil
}

// New picks the HTTP detector when an endpoint is set and Unavailable otherwise.
func New(opts Options) ports.Detector {
	if opts.Endpoint == "" {
		return Unavailable{}
	}
	return NewDetector(opts)
}
