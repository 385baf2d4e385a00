// Package detector wraps the external object detector behind a small
// capability interface, normalizing its output to (class, bbox, center,
// confidence) regardless of which concrete implementation backs it.
package detector

import (
	"context"
	"errors"

	"github.com/airfield/birdstrike/internal/model"
)

// ErrUnavailable is returned when the configured detector backend cannot be
// reached or initialized (spec §7, DetectorUnavailable — fatal at startup).
var ErrUnavailable = errors.New("detector unavailable")

// DefaultConfidenceThreshold is applied when a detector is constructed
// without an explicit threshold (spec §4.B).
const DefaultConfidenceThreshold = 0.40

// Detector is the capability interface every adapter implements: a
// per-camera Detect and a batched DetectBatch over several cameras at once.
type Detector interface {
	// Detect returns detections for one camera's image, already filtered to
	// confidence >= threshold.
	Detect(ctx context.Context, camera string, frameID int64, image []byte) ([]model.Detection, error)

	// DetectBatch runs Detect across every camera in images, keyed by
	// camera ID.
	DetectBatch(ctx context.Context, frameID int64, images map[string][]byte) (map[string][]model.Detection, error)
}

// filterConfidence drops detections below threshold, preserving order.
func filterConfidence(dets []model.Detection, threshold float64) []model.Detection {
	out := dets[:0:0]
	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// batchOverDetect is a shared DetectBatch implementation for adapters whose
// Detect method does all the real work; it simply fans Detect out over each
// camera's image.
func batchOverDetect(ctx context.Context, d Detector, frameID int64, images map[string][]byte) (map[string][]model.Detection, error) {
	out := make(map[string][]model.Detection, len(images))
	for cam, img := range images {
		dets, err := d.Detect(ctx, cam, frameID, img)
		if err != nil {
			return nil, err
		}
		if len(dets) > 0 {
			out[cam] = dets
		}
	}
	return out, nil
}
