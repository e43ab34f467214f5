package usecase

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"TelegramWarehouse/internal/domain"
	"TelegramWarehouse/internal/ports"
)

const imagesNotFound = "images directory not found"

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

type storedImage struct {
	path      string
	channel   string
	messageID int64
}

func skippedEnrich(reason string) EnrichSummary {
	return EnrichSummary{
		Status:         domain.SummarySkipped,
		CategoryCounts: map[string]int{},
		Error:          reason,
	}
}

// enrich runs the detector over every stored image, persists the detections
// and re-runs the detection model of the transform job.
func (p *Pipeline) enrich(ctx context.Context, log *slog.Logger) (EnrichSummary, error) {
	if p.detector == nil {
		return skippedEnrich("detector not configured"), nil
	}
	if p.partitions == nil {
		return skippedEnrich(imagesNotFound), nil
	}
	root := p.partitions.ImageRoot()
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		log.Warn("images directory missing, skipping enrichment", "dir", root)
		return skippedEnrich(imagesNotFound), nil
	}

	images, err := collectImages(root)
	if err != nil {
		return EnrichSummary{}, err
	}

	counts := map[string]int{}
	var detections []domain.Detection
	for _, img := range images {
		outcome, err := p.detector.Detect(ctx, img.path)
		if err != nil {
			return EnrichSummary{}, err
		}
		if outcome.Unavailable {
			log.Warn("detector unavailable, skipping enrichment", "reason", outcome.Reason)
			return skippedEnrich(outcome.Reason), nil
		}
		detectedAt := p.now().UTC()
		for _, d := range outcome.Detections {
			detections = append(detections, domain.Detection{
				MessageID:       img.messageID,
				ChannelUsername: img.channel,
				ImagePath:       img.path,
				DetectedObject:  d.Label,
				Confidence:      d.Confidence,
				DetectedAt:      detectedAt,
			})
			counts[d.Label]++
		}
	}

	summary := EnrichSummary{
		Status:         domain.SummarySuccess,
		DetectedImages: len(images),
		Detections:     len(detections),
		CategoryCounts: counts,
	}

	if len(detections) > 0 {
		if err := p.storeDetections(ctx, log, detections); err != nil {
			return summary, err
		}
	}
	p.refreshDetectionModel(ctx, log)

	log.Info("enrichment finished", "images", len(images), "detections", len(detections), "categories", counts)
	return summary, nil
}

func (p *Pipeline) storeDetections(ctx context.Context, log *slog.Logger, detections []domain.Detection) error {
	if p.warehouse == nil {
		log.Warn("warehouse not configured, detections not stored", "detections", len(detections))
		return nil
	}
	wh, err := p.warehouse.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect warehouse: %w", err)
	}
	defer closeWarehouse(log, wh)

	res, err := wh.LoadDetections(ctx, detections)
	p.metrics.Loaded("detections", res.Inserted, res.Duplicates, res.FailedPages)
	p.metrics.Detected(res.Inserted)
	if err != nil {
		return fmt.Errorf("load detections: %w", err)
	}
	return nil
}

// refreshDetectionModel failures are logged only.
func (p *Pipeline) refreshDetectionModel(ctx context.Context, log *slog.Logger) {
	if p.transformer == nil || p.opts.DetectionModel == "" {
		return
	}
	res, err := p.transformer.Run(ctx, ports.TransformRun, p.opts.DetectionModel)
	switch {
	case err != nil:
		log.Error("detection model run failed", "model", p.opts.DetectionModel, "error", err)
	case !res.Succeeded():
		log.Error("detection model run failed", "model", p.opts.DetectionModel, "exit_code", res.ExitCode, "output", lastLine(res))
	}
}

// collectImages finds <root>/<channel>/<message_id>.<jpg|jpeg|png> files in
// lexical order. Files whose stem is not a message id are ignored. The channel
// is reported without its "@" so it joins the messages table.
func collectImages(root string) ([]storedImage, error) {
	var images []storedImage
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !imageExtensions[ext] {
			return nil
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())), 10, 64)
		if err != nil {
			return nil
		}

		channel := ""
		if rel, err := filepath.Rel(root, filepath.Dir(path)); err == nil && rel != "." {
			channel = strings.TrimPrefix(strings.Split(filepath.ToSlash(rel), "/")[0], "@")
		}
		images = append(images, storedImage{path: path, channel: channel, messageID: id})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan images: %w", err)
	}
	return images, nil
}
