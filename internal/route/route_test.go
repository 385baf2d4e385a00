package route

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/airfield/birdstrike/internal/fsutil"
	"github.com/airfield/birdstrike/internal/model"
)

func writeRoute(t *testing.T, fs fsutil.FileSystem, dir, file string, raw routeFile) {
	t.Helper()
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, fs.WriteFile(dir+"/"+file, data, 0644))
}

func TestLoadDir_PrefersRoutePointsOverWaypoints(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeRoute(t, fs, "routes", "final.json", routeFile{
		PathName:    "final",
		Waypoints:   []model.Vec3{{X: 0, Y: 0, Z: 0}},
		RoutePoints: []model.Vec3{{X: 1, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0}},
	})

	store, errs := LoadDir(fs, "routes")
	require.Empty(t, errs)
	require.Equal(t, []string{"final"}, store.Names())

	r, ok := store.Get("final")
	require.True(t, ok)
	require.Len(t, r.Waypoints, 2)
	require.Equal(t, 1.0, r.Waypoints[0].X)
}

func TestLoadDir_FallsBackToWaypoints(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeRoute(t, fs, "routes", "rwy09.json", routeFile{
		PathName:  "RWY09",
		Waypoints: []model.Vec3{{X: 0, Y: 0, Z: 0}, {X: 10, Y: 0, Z: 0}},
	})

	store, errs := LoadDir(fs, "routes")
	require.Empty(t, errs)
	r, ok := store.Get("RWY09")
	require.True(t, ok)
	require.Len(t, r.Waypoints, 2)
}

func TestLoadDir_SkipsBadFileButKeepsGoodOnes(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("routes/broken.json", []byte("{not json"), 0644))
	writeRoute(t, fs, "routes", "good.json", routeFile{
		PathName:    "good",
		RoutePoints: []model.Vec3{{X: 0, Y: 0, Z: 0}},
	})

	store, errs := LoadDir(fs, "routes")
	require.Len(t, errs, 1)
	require.Len(t, store.Names(), 1)
	_, ok := store.Get("good")
	require.True(t, ok)
}

func TestDistanceAndClosest_UnknownRouteIsInfinite(t *testing.T) {
	store := &Store{routes: map[string]Route{}}

	require.True(t, math.IsInf(store.Distance("nope", model.Vec3{}), 1))
	c := store.Closest("nope", model.Vec3{})
	require.True(t, math.IsInf(c.Distance, 1))

	_, ok := store.SegmentDirection("nope", model.Vec3{}, 4)
	require.False(t, ok)
}

func TestClosest_IsIdempotent(t *testing.T) {
	store := &Store{routes: map[string]Route{
		"taxi": {Name: "taxi", Waypoints: []model.Vec3{
			{X: 0, Y: 0, Z: 0},
			{X: 100, Y: 0, Z: 0},
			{X: 200, Y: 0, Z: 50},
			{X: 300, Y: 0, Z: 200},
		}},
	}}

	p := model.Vec3{X: 130, Y: 0, Z: 10}
	first := store.Closest("taxi", p)
	second := store.Closest("taxi", first.Point)

	require.Equal(t, first.Point, second.Point)
	require.Equal(t, first.Index, second.Index)
}

func TestSegmentDirection_PointsAlongPolyline(t *testing.T) {
	store := &Store{routes: map[string]Route{
		"straight": {Name: "straight", Waypoints: []model.Vec3{
			{X: 0, Y: 0, Z: 0},
			{X: 10, Y: 0, Z: 0},
			{X: 20, Y: 0, Z: 0},
			{X: 30, Y: 0, Z: 0},
			{X: 40, Y: 0, Z: 0},
		}},
	}}

	dir, ok := store.SegmentDirection("straight", model.Vec3{X: 20, Y: 0, Z: 0}, 2)
	require.True(t, ok)
	require.InDelta(t, 1.0, dir.X, 1e-9)
	require.InDelta(t, 0.0, dir.Z, 1e-9)
}

func TestSegmentDirection_TooShortRouteReturnsNull(t *testing.T) {
	store := &Store{routes: map[string]Route{
		"single": {Name: "single", Waypoints: []model.Vec3{{X: 0, Y: 0, Z: 0}}},
	}}

	_, ok := store.SegmentDirection("single", model.Vec3{}, 4)
	require.False(t, ok)
}
