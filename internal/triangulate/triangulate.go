// Package triangulate matches detections across camera pairs, reconstructs
// 3D points by the Direct Linear Transform, rejects numerically degenerate
// results, and merges near-duplicate flocks (spec §4.D).
package triangulate

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/airfield/birdstrike/internal/camera"
	"github.com/airfield/birdstrike/internal/model"
)

// ErrRejected marks a candidate point dropped for numerical degeneracy
// (spec §7, TriangulationRejected — silently dropped, never propagated).
var ErrRejected = errors.New("triangulation rejected")

// Config holds the merge/threshold parameters from spec §6.
type Config struct {
	// FlockPixelMergeDistance is the max pixel-center distance, within one
	// camera's image, for two Flock detections to be merged before matching.
	FlockPixelMergeDistance float64
	// FlockWorldMergeDistance is the max XZ distance, in world meters,
	// for two triangulated Flock points in the same frame to be merged.
	FlockWorldMergeDistance float64
}

// DefaultConfig matches spec §4.D/§6 defaults.
func DefaultConfig() Config {
	return Config{
		FlockPixelMergeDistance: 100,
		FlockWorldMergeDistance: 100,
	}
}

// Triangulator reconstructs 3D points from per-camera detections.
type Triangulator struct {
	cameras map[string]*camera.Camera
	cfg     Config
}

// New builds a Triangulator over the given (immutable, shared) camera set.
func New(cameras map[string]*camera.Camera, cfg Config) *Triangulator {
	return &Triangulator{cameras: cameras, cfg: cfg}
}

// Triangulate reconstructs TriangulatedPoints for one frame given the
// detections already attached to each camera. The empty slice is a valid
// result (spec §4.D, "Empty list is valid").
func (t *Triangulator) Triangulate(frameID int64, detections map[string][]model.Detection) []model.TriangulatedPoint {
	matched := t.matchByClass(detections)

	var candidates []model.TriangulatedPoint
	cams := t.orderedCameraIDs(detections)

	for class, perCamera := range matched {
		for i := 0; i < len(cams); i++ {
			for j := i + 1; j < len(cams); j++ {
				camA, camB := cams[i], cams[j]
				detA, okA := perCamera[camA]
				detB, okB := perCamera[camB]
				if !okA || !okB {
					continue
				}
				p, ok := t.triangulatePair(frameID, class, camA, detA, camB, detB)
				if ok {
					candidates = append(candidates, p)
				}
			}
		}
	}

	return t.postProcess(candidates)
}

// matchByClass picks, per camera, the detections to use for matching: the
// single highest-confidence detection for Airplane, or the pixel-merged
// composite for Flock (spec §4.D clarification on "first"). Detections of
// any other class are ignored and never triangulated.
func (t *Triangulator) matchByClass(detections map[string][]model.Detection) map[model.ObjectClass]map[string]model.Detection {
	out := map[model.ObjectClass]map[string]model.Detection{
		model.ClassAirplane: {},
		model.ClassFlock:    {},
	}

	for cam, dets := range detections {
		var airplanes, flocks []model.Detection
		for _, d := range dets {
			switch d.Class {
			case model.ClassAirplane:
				airplanes = append(airplanes, d)
			case model.ClassFlock:
				flocks = append(flocks, d)
			}
		}

		if best, ok := highestConfidence(airplanes); ok {
			out[model.ClassAirplane][cam] = best
		}
		if merged, ok := mergeFlocksInCamera(flocks, t.cfg.FlockPixelMergeDistance); ok {
			out[model.ClassFlock][cam] = merged
		}
	}

	return out
}

func highestConfidence(dets []model.Detection) (model.Detection, bool) {
	if len(dets) == 0 {
		return model.Detection{}, false
	}
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}

// mergeFlocksInCamera merges detections whose pixel centers are within
// mergeDist of each other into one composite, by weighted center (weights =
// confidence), max-dimension box, and mean confidence. When several
// clusters remain after merging (no intra-camera ambiguity resolution
// beyond pairwise proximity), the composite whose members have the greatest
// summed confidence is returned, since each
// camera contributes at most one Flock detection to cross-camera matching.
func mergeFlocksInCamera(dets []model.Detection, mergeDist float64) (model.Detection, bool) {
	if len(dets) == 0 {
		return model.Detection{}, false
	}
	if len(dets) == 1 {
		return dets[0], true
	}

	groups := groupByProximity(dets, mergeDist)

	var best model.Detection
	bestWeight := -1.0
	for _, g := range groups {
		composite := compositeOf(g)
		weight := 0.0
		for _, d := range g {
			weight += d.Confidence
		}
		if weight > bestWeight {
			bestWeight = weight
			best = composite
		}
	}
	return best, true
}

// groupByProximity clusters detections transitively: any two within
// mergeDist of each other end up in the same group.
func groupByProximity(dets []model.Detection, mergeDist float64) [][]model.Detection {
	n := len(dets)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := dets[i].CenterX - dets[j].CenterX
			dy := dets[i].CenterY - dets[j].CenterY
			if math.Hypot(dx, dy) < mergeDist {
				union(i, j)
			}
		}
	}

	byRoot := map[int][]model.Detection{}
	for i, d := range dets {
		r := find(i)
		byRoot[r] = append(byRoot[r], d)
	}

	groups := make([][]model.Detection, 0, len(byRoot))
	for _, g := range byRoot {
		groups = append(groups, g)
	}
	return groups
}

func compositeOf(dets []model.Detection) model.Detection {
	var sumW, sumCX, sumCY, sumConf float64
	var maxW, maxH float64
	for _, d := range dets {
		w := d.Confidence
		if w <= 0 {
			w = 1e-6
		}
		sumW += w
		sumCX += d.CenterX * w
		sumCY += d.CenterY * w
		sumConf += d.Confidence
		if bw := d.BBox.Width(); bw > maxW {
			maxW = bw
		}
		if bh := d.BBox.Height(); bh > maxH {
			maxH = bh
		}
	}
	cx, cy := sumCX/sumW, sumCY/sumW
	first := dets[0]
	return model.Detection{
		Camera:     first.Camera,
		FrameID:    first.FrameID,
		Class:      model.ClassFlock,
		BBox:       model.BBox{X1: cx - maxW/2, Y1: cy - maxH/2, X2: cx + maxW/2, Y2: cy + maxH/2},
		CenterX:    cx,
		CenterY:    cy,
		Confidence: sumConf / float64(len(dets)),
	}
}

func (t *Triangulator) orderedCameraIDs(detections map[string][]model.Detection) []string {
	ids := make([]string, 0, len(detections))
	for cam := range detections {
		if _, ok := t.cameras[cam]; ok {
			ids = append(ids, cam)
		}
	}
	sort.Strings(ids)
	return ids
}

// triangulatePair solves the DLT system for one camera pair and one class.
func (t *Triangulator) triangulatePair(frameID int64, class model.ObjectClass, camA string, detA model.Detection, camB string, detB model.Detection) (model.TriangulatedPoint, bool) {
	a := t.cameras[camA]
	b := t.cameras[camB]

	x, y, z, w, ok := solveDLT(a.P, detA.CenterX, detA.CenterY, b.P, detB.CenterX, detB.CenterY)
	if !ok || math.Abs(w) < 1e-9 {
		return model.TriangulatedPoint{}, false
	}
	x, y, z = x/w, y/w, z/w

	if math.Abs(x) > model.MaxCoordinateMagnitude || math.Abs(y) > model.MaxCoordinateMagnitude || math.Abs(z) > model.MaxCoordinateMagnitude {
		return model.TriangulatedPoint{}, false
	}

	return model.TriangulatedPoint{
		FrameID:    frameID,
		Class:      class,
		X:          x,
		Y:          y,
		Z:          z,
		Confidence: (detA.Confidence + detB.Confidence) / 2,
		CameraA:    camA,
		CameraB:    camB,
	}, true
}

// solveDLT builds the 4x4 homogeneous system from two projection equations
// and solves it via SVD, taking the right singular vector associated with
// the smallest singular value — the direct analogue of
// cv2.triangulatePoints' internal solve (spec §4.D, §9).
func solveDLT(pA *mat.Dense, uA, vA float64, pB *mat.Dense, uB, vB float64) (x, y, z, w float64, ok bool) {
	rowsOf := func(p *mat.Dense, u, v float64) (r0, r1 []float64) {
		r0 = make([]float64, 4)
		r1 = make([]float64, 4)
		for c := 0; c < 4; c++ {
			r0[c] = u*p.At(2, c) - p.At(0, c)
			r1[c] = v*p.At(2, c) - p.At(1, c)
		}
		return
	}

	a0, a1 := rowsOf(pA, uA, vA)
	b0, b1 := rowsOf(pB, uB, vB)

	data := make([]float64, 0, 16)
	data = append(data, a0...)
	data = append(data, a1...)
	data = append(data, b0...)
	data = append(data, b1...)
	A := mat.NewDense(4, 4, data)

	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDFull) {
		return 0, 0, 0, 0, false
	}
	var v mat.Dense
	svd.VTo(&v)

	// The smallest singular value's right singular vector is the last
	// column of V (gonum.SVD sorts singular values in descending order).
	sol := []float64{v.At(0, 3), v.At(1, 3), v.At(2, 3), v.At(3, 3)}
	return sol[0], sol[1], sol[2], sol[3], true
}

// postProcess averages multiple candidate positions per (frame, class) and
// merges Flock clusters that lie within the configured 3D merge distance.
func (t *Triangulator) postProcess(candidates []model.TriangulatedPoint) []model.TriangulatedPoint {
	if len(candidates) == 0 {
		return nil
	}

	byClass := map[model.ObjectClass][]model.TriangulatedPoint{}
	for _, c := range candidates {
		byClass[c.Class] = append(byClass[c.Class], c)
	}

	var out []model.TriangulatedPoint
	for class, pts := range byClass {
		if class != model.ClassFlock {
			out = append(out, averagePoints(pts))
			continue
		}
		out = append(out, mergeFlockClusters(pts, t.cfg.FlockWorldMergeDistance)...)
	}
	return out
}

func averagePoints(pts []model.TriangulatedPoint) model.TriangulatedPoint {
	if len(pts) == 1 {
		return pts[0]
	}
	var sx, sy, sz, sc float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
		sz += p.Z
		sc += p.Confidence
	}
	n := float64(len(pts))
	first := pts[0]
	return model.TriangulatedPoint{
		FrameID:    first.FrameID,
		Class:      first.Class,
		X:          sx / n,
		Y:          sy / n,
		Z:          sz / n,
		Confidence: sc / n,
		CameraA:    first.CameraA,
		CameraB:    first.CameraB,
	}
}

// mergeFlockClusters merges flock candidates that lie within mergeDist of
// each other in the XZ plane, transitively, by averaging.
func mergeFlockClusters(pts []model.TriangulatedPoint, mergeDist float64) []model.TriangulatedPoint {
	n := len(pts)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := pts[i].X - pts[j].X
			dz := pts[i].Z - pts[j].Z
			if math.Hypot(dx, dz) < mergeDist {
				union(i, j)
			}
		}
	}

	byRoot := map[int][]model.TriangulatedPoint{}
	for i, p := range pts {
		r := find(i)
		byRoot[r] = append(byRoot[r], p)
	}

	merged := make([]model.TriangulatedPoint, 0, len(byRoot))
	for _, g := range byRoot {
		merged = append(merged, averagePoints(g))
	}
	return merged
}
