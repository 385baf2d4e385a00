package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/airfield/birdstrike/internal/model"
)

func airplanePoint(frame int64, x, z float64) []model.TriangulatedPoint {
	return []model.TriangulatedPoint{{FrameID: frame, Class: model.ClassAirplane, X: x, Y: 50, Z: z, Confidence: 0.9}}
}

func TestTracker_OpensOnFirstAirplane(t *testing.T) {
	tr := New(DefaultConfig())
	_, ok := tr.CurrentSession()
	require.False(t, ok)

	tr.Update(1, airplanePoint(1, 0, 0))

	sess, ok := tr.CurrentSession()
	require.True(t, ok)
	require.Equal(t, int64(1), sess.StartFrame)
	require.Len(t, sess.AirplanePositions, 1)
}

func TestTracker_ClosesOnAbsence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSessionLength = 1
	tr := New(cfg)

	tr.Update(1, airplanePoint(1, 0, 0))
	tr.Update(2, nil) // airplane absent

	_, ok := tr.CurrentSession()
	require.False(t, ok)
	require.Len(t, tr.History(), 1)
}

func TestTracker_DiscardsShortSessions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSessionLength = 10
	tr := New(cfg)

	tr.Update(1, airplanePoint(1, 0, 0))
	tr.Update(2, nil)

	require.Empty(t, tr.History())
}

func TestTracker_ExtendsWithinJumpThreshold(t *testing.T) {
	tr := New(DefaultConfig())
	tr.Update(1, airplanePoint(1, 0, 0))
	tr.Update(2, airplanePoint(2, 10, 0)) // 10m move, under the 50m threshold

	sess, ok := tr.CurrentSession()
	require.True(t, ok)
	require.Len(t, sess.AirplanePositions, 2)
	require.Len(t, sess.AirplaneVelocities, 1)
}

func TestTracker_SplitsSessionOnSustainedJump(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSessionLength = 1
	cfg.JumpDurationThreshold = 3
	tr := New(cfg)

	tr.Update(1, airplanePoint(1, 0, 0))
	tr.Update(2, airplanePoint(2, 5, 0)) // small move, resets jump counter

	// Teleport by 500m and hold it for >= J frames.
	tr.Update(3, airplanePoint(3, 505, 0)) // jumpCounter=1 (<3): noise, still extends
	tr.Update(4, airplanePoint(4, 505, 0)) // jumpCounter=2 (<3): noise, still extends
	tr.Update(5, airplanePoint(5, 505, 0)) // jumpCounter=3 (>=3): close & reopen here

	require.Len(t, tr.History(), 1, "old session should have closed")
	sess, ok := tr.CurrentSession()
	require.True(t, ok)
	require.Equal(t, int64(5), sess.StartFrame, "new session should start at the confirming frame")
	require.Len(t, sess.AirplanePositions, 1)
	require.InDelta(t, 505, sess.AirplanePositions[0].X, 1e-9)
}

func TestTracker_ActiveTracksReflectLatestState(t *testing.T) {
	tr := New(DefaultConfig())
	airplane, flock := tr.ActiveTracks()
	require.False(t, airplane.Valid)
	require.False(t, flock.Valid)

	points := []model.TriangulatedPoint{
		{FrameID: 1, Class: model.ClassAirplane, X: 5, Z: 150},
		{FrameID: 1, Class: model.ClassFlock, X: 5, Z: 100},
	}
	tr.Update(1, points)

	airplane, flock = tr.ActiveTracks()
	require.True(t, airplane.Valid)
	require.True(t, flock.Valid)
	require.Equal(t, 1, airplane.TrackID)
	require.Equal(t, 2, flock.TrackID)
}

func TestClean_DropsOutliersKeepsEndsAndSmooths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CleaningSpeedThreshold = 10
	cfg.SmoothingWindow = 3

	s := Session{
		AirplanePositions: []model.TrackPoint{
			{Frame: 1, X: 0, Z: 0},
			{Frame: 2, X: 500, Z: 0}, // huge outlier
			{Frame: 3, X: 2, Z: 0},
			{Frame: 4, X: 3, Z: 0},
		},
	}

	cleaned := Clean(s, cfg)
	require.Len(t, cleaned.AirplanePositions, 3, "outlier dropped, ends kept")
	require.Equal(t, int64(1), cleaned.AirplanePositions[0].Frame)
	require.Equal(t, int64(4), cleaned.AirplanePositions[len(cleaned.AirplanePositions)-1].Frame)
	require.Len(t, cleaned.AirplaneVelocities, len(cleaned.AirplanePositions)-1)
}
