package detector

import (
	"context"

	"github.com/airfield/birdstrike/internal/model"
)

// MockFunc produces detections for one camera/frame; used by tests that
// need deterministic, programmable detector output.
type MockFunc func(camera string, frameID int64) []model.Detection

// Mock is a Detector that calls a user-supplied function instead of running
// a real model — the variant the spec calls for under "provide a mock
// variant for tests" (spec §9).
type Mock struct {
	Fn        MockFunc
	Threshold float64
}

// NewMock builds a Mock detector with the default confidence threshold.
func NewMock(fn MockFunc) *Mock {
	return &Mock{Fn: fn, Threshold: DefaultConfidenceThreshold}
}

// Detect returns fn's detections for one camera, filtered by threshold.
func (m *Mock) Detect(_ context.Context, camera string, frameID int64, _ []byte) ([]model.Detection, error) {
	if m.Fn == nil {
		return nil, nil
	}
	return filterConfidence(m.Fn(camera, frameID), m.Threshold), nil
}

// DetectBatch fans Detect out across every camera in images.
func (m *Mock) DetectBatch(ctx context.Context, frameID int64, images map[string][]byte) (map[string][]model.Detection, error) {
	return batchOverDetect(ctx, m, frameID, images)
}
