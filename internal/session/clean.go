package session

import "github.com/airfield/birdstrike/internal/model"

// Clean produces the downstream-consumption view of a completed session:
// drop per-frame speed outliers (keeping the first/last points), smooth the
// remainder with a centered moving average, then recompute velocities from
// the smoothed positions (spec §4.E, "Cleaning").
func Clean(s Session, cfg Config) Session {
	out := s
	out.AirplanePositions, out.AirplaneVelocities = cleanSeries(s.AirplanePositions, cfg)
	out.FlockPositions, out.FlockVelocities = cleanSeries(s.FlockPositions, cfg)
	return out
}

func cleanSeries(points []model.TrackPoint, cfg Config) ([]model.TrackPoint, []model.TrackVelocity) {
	filtered := dropSpeedOutliers(points, cfg.CleaningSpeedThreshold)
	smoothed := smooth(filtered, cfg.SmoothingWindow)
	velocities := recomputeVelocities(smoothed)
	return smoothed, velocities
}

// dropSpeedOutliers removes points whose per-frame speed (distance to the
// previous *kept* point, divided by frame gap) exceeds threshold, always
// keeping the first and last points of the series.
func dropSpeedOutliers(points []model.TrackPoint, threshold float64) []model.TrackPoint {
	if len(points) <= 2 {
		return append([]model.TrackPoint(nil), points...)
	}

	kept := []model.TrackPoint{points[0]}
	for i := 1; i < len(points)-1; i++ {
		prev := kept[len(kept)-1]
		cur := points[i]
		dt := float64(cur.Frame - prev.Frame)
		if dt <= 0 {
			dt = 1
		}
		speed := xzDistance(prev.X, prev.Z, cur.X, cur.Z) / dt
		if speed <= threshold {
			kept = append(kept, cur)
		}
	}
	kept = append(kept, points[len(points)-1])
	return kept
}

// smooth applies a centered moving average of the given odd window size.
// Points too close to either edge for a full window average only the
// neighbors that exist, so the window is cut short on the edge side and is
// not centered there.
func smooth(points []model.TrackPoint, window int) []model.TrackPoint {
	if window < 2 || len(points) < 3 {
		return points
	}
	half := window / 2
	out := make([]model.TrackPoint, len(points))
	for i := range points {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo = 0
		}
		if hi >= len(points) {
			hi = len(points) - 1
		}
		var sx, sz float64
		n := 0
		for j := lo; j <= hi; j++ {
			sx += points[j].X
			sz += points[j].Z
			n++
		}
		out[i] = model.TrackPoint{Frame: points[i].Frame, X: sx / float64(n), Z: sz / float64(n)}
	}
	return out
}

func recomputeVelocities(points []model.TrackPoint) []model.TrackVelocity {
	if len(points) < 2 {
		return nil
	}
	velocities := make([]model.TrackVelocity, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		dt := float64(cur.Frame - prev.Frame)
		if dt <= 0 {
			dt = 1
		}
		velocities = append(velocities, model.TrackVelocity{
			Frame: cur.Frame,
			VX:    (cur.X - prev.X) / dt * NominalFPS,
			VZ:    (cur.Z - prev.Z) / dt * NominalFPS,
		})
	}
	return velocities
}
