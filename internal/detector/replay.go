package detector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/airfield/birdstrike/internal/fsutil"
	"github.com/airfield/birdstrike/internal/model"
)

// replayRecord is the on-disk shape of one precomputed detection.
type replayRecord struct {
	Class      string  `json:"class"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
}

// Replay is a Detector that reads precomputed detections from disk, keyed
// by (camera, frame_id) — the variant that makes end-to-end tests
// deterministic without a GPU (spec §9).
type Replay struct {
	fs        fsutil.FileSystem
	dir       string
	Threshold float64
}

// NewReplay builds a Replay detector reading JSON detection files from
// <dir>/<camera>/frame_<N>.json, mirroring the frame directory layout.
func NewReplay(fs fsutil.FileSystem, dir string) *Replay {
	return &Replay{fs: fs, dir: dir, Threshold: DefaultConfidenceThreshold}
}

// Detect loads and filters the precomputed detections for one camera/frame.
// A missing file is treated as "no detections" rather than an error, since
// not every camera sees every class on every frame.
func (r *Replay) Detect(_ context.Context, camera string, frameID int64, _ []byte) ([]model.Detection, error) {
	path := fmt.Sprintf("%s/%s/frame_%d.json", r.dir, camera, frameID)
	if !r.fs.Exists(path) {
		return nil, nil
	}

	data, err := r.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay detector: reading %q: %w", path, err)
	}

	var records []replayRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("replay detector: parsing %q: %w", path, err)
	}

	dets := make([]model.Detection, 0, len(records))
	for _, rec := range records {
		bbox := model.BBox{X1: rec.X1, Y1: rec.Y1, X2: rec.X2, Y2: rec.Y2}
		cx, cy := bbox.Center()
		dets = append(dets, model.Detection{
			Camera:     camera,
			FrameID:    frameID,
			Class:      model.ObjectClass(rec.Class),
			BBox:       bbox,
			CenterX:    cx,
			CenterY:    cy,
			Confidence: rec.Confidence,
		})
	}

	return filterConfidence(dets, r.Threshold), nil
}

// DetectBatch fans Detect out across every camera in images.
func (r *Replay) DetectBatch(ctx context.Context, frameID int64, images map[string][]byte) (map[string][]model.Detection, error) {
	return batchOverDetect(ctx, r, frameID, images)
}
