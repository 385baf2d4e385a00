package triangulate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/airfield/birdstrike/internal/camera"
	"github.com/airfield/birdstrike/internal/model"
)

func mustCamera(t *testing.T, id string, x, y, z float64) *camera.Camera {
	t.Helper()
	cam, err := camera.New(camera.Params{
		ID:          id,
		ImageWidth:  640,
		ImageHeight: 480,
		M00:         600.0 / 320.0,
		M11:         600.0 / 240.0,
		Position:    model.Vec3{X: x, Y: y, Z: z},
		Rotation:    camera.Quaternion{W: 1},
	})
	require.NoError(t, err)
	return cam
}

func TestTriangulate_RoundTripsKnownPoint(t *testing.T) {
	camA := mustCamera(t, "A", 0, 10, 0)
	camB := mustCamera(t, "B", 10, 10, 0)

	cams := map[string]*camera.Camera{"A": camA, "B": camB}
	tri := New(cams, DefaultConfig())

	world := model.Vec3{X: 5, Y: 10, Z: 200}
	uA, vA, wA := camA.Project(world)
	uB, vB, wB := camB.Project(world)

	dets := map[string][]model.Detection{
		"A": {{Camera: "A", Class: model.ClassAirplane, CenterX: uA / wA, CenterY: vA / wA, Confidence: 0.9}},
		"B": {{Camera: "B", Class: model.ClassAirplane, CenterX: uB / wB, CenterY: vB / wB, Confidence: 0.9}},
	}

	points := tri.Triangulate(1, dets)
	require.Len(t, points, 1)
	require.Equal(t, model.ClassAirplane, points[0].Class)
	require.InDelta(t, world.X, points[0].X, 0.5)
	require.InDelta(t, world.Y, points[0].Y, 0.5)
	require.InDelta(t, world.Z, points[0].Z, 0.5)
}

func TestTriangulate_EmptyWhenNoMatches(t *testing.T) {
	camA := mustCamera(t, "A", 0, 10, 0)
	camB := mustCamera(t, "B", 10, 10, 0)
	tri := New(map[string]*camera.Camera{"A": camA, "B": camB}, DefaultConfig())

	points := tri.Triangulate(1, map[string][]model.Detection{})
	require.Empty(t, points)
}

func TestMergeFlocksInCamera_MergesCloseDetections(t *testing.T) {
	dets := []model.Detection{
		{CenterX: 100, CenterY: 100, Confidence: 0.5, BBox: model.BBox{X1: 90, Y1: 90, X2: 110, Y2: 110}},
		{CenterX: 150, CenterY: 100, Confidence: 0.5, BBox: model.BBox{X1: 140, Y1: 90, X2: 160, Y2: 110}},
		{CenterX: 170, CenterY: 100, Confidence: 0.5, BBox: model.BBox{X1: 160, Y1: 90, X2: 180, Y2: 110}},
	}
	composite, ok := mergeFlocksInCamera(dets, 100)
	require.True(t, ok)
	// All three are pairwise within 100px transitively (100-150=50, 150-170=20).
	require.InDelta(t, 0.5, composite.Confidence, 1e-9)
}

func TestTriangulatePoint_RejectsBlownUpCoordinate(t *testing.T) {
	camA := mustCamera(t, "A", 0, 10, 0)
	camB := mustCamera(t, "B", 0.001, 10, 0) // near-parallel rays, ill-conditioned

	tri := New(map[string]*camera.Camera{"A": camA, "B": camB}, DefaultConfig())
	dets := map[string][]model.Detection{
		"A": {{Camera: "A", Class: model.ClassAirplane, CenterX: 320, CenterY: 240, Confidence: 0.9}},
		"B": {{Camera: "B", Class: model.ClassAirplane, CenterX: 320, CenterY: 240, Confidence: 0.9}},
	}

	points := tri.Triangulate(1, dets)
	for _, p := range points {
		require.LessOrEqual(t, absf(p.X), model.MaxCoordinateMagnitude)
		require.LessOrEqual(t, absf(p.Y), model.MaxCoordinateMagnitude)
		require.LessOrEqual(t, absf(p.Z), model.MaxCoordinateMagnitude)
	}
}

func TestTriangulate_MatchesWithinApproxTolerance(t *testing.T) {
	camA := mustCamera(t, "A", 0, 10, 0)
	camB := mustCamera(t, "B", 10, 10, 0)
	tri := New(map[string]*camera.Camera{"A": camA, "B": camB}, DefaultConfig())

	world := model.Vec3{X: -15, Y: 10, Z: 150}
	uA, vA, wA := camA.Project(world)
	uB, vB, wB := camB.Project(world)
	dets := map[string][]model.Detection{
		"A": {{Camera: "A", Class: model.ClassAirplane, CenterX: uA / wA, CenterY: vA / wA, Confidence: 0.9}},
		"B": {{Camera: "B", Class: model.ClassAirplane, CenterX: uB / wB, CenterY: vB / wB, Confidence: 0.9}},
	}

	points := tri.Triangulate(1, dets)
	require.Len(t, points, 1)

	got := model.Vec3{X: points[0].X, Y: points[0].Y, Z: points[0].Z}
	if diff := cmp.Diff(world, got, cmpopts.EquateApprox(0, 0.5)); diff != "" {
		t.Errorf("triangulated point outside tolerance (-want +got):\n%s", diff)
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
