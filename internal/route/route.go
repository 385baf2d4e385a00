// Package route loads named polylines representing canonical flight paths
// and answers closest-point and segment-direction queries (spec §4.F).
package route

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airfield/birdstrike/internal/fsutil"
	"github.com/airfield/birdstrike/internal/model"
)

// ErrParse marks a route file that failed to parse (spec §7,
// RouteParseError — log and skip that route, continue if any remain).
var ErrParse = errors.New("route parse error")

// Route is a named, ordered polyline of world waypoints. Immutable after
// load.
type Route struct {
	Name      string
	Waypoints []model.Vec3
}

// Closest is the result of a closest-point query.
type Closest struct {
	Distance float64
	Point    model.Vec3
	Index    int
}

// Store holds the loaded, immutable set of routes.
type Store struct {
	routes map[string]Route
}

type routeFile struct {
	PathName    string       `json:"pathName"`
	Waypoints   []model.Vec3 `json:"waypoints"`
	RoutePoints []model.Vec3 `json:"routePoints"`
}

// LoadDir loads every `*.json` route file in dir. A route that fails to
// parse is logged by the caller (returned in the errs slice) and skipped;
// loading continues with whatever routes remain.
func LoadDir(fs fsutil.FileSystem, dir string) (*Store, []error) {
	var errs []error
	store := &Store{routes: make(map[string]Route)}

	names, err := fsutil.ReadDir(fs, dir)
	if err != nil {
		return store, []error{fmt.Errorf("%w: listing %q: %v", ErrParse, dir, err)}
	}

	var jsonNames []string
	for _, n := range names {
		if strings.ToLower(filepath.Ext(n)) == ".json" {
			jsonNames = append(jsonNames, n)
		}
	}
	sort.Strings(jsonNames)

	for _, n := range jsonNames {
		full := filepath.Join(dir, n)
		data, err := fs.ReadFile(full)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: reading %q: %v", ErrParse, full, err))
			continue
		}

		var raw routeFile
		if err := json.Unmarshal(data, &raw); err != nil {
			errs = append(errs, fmt.Errorf("%w: parsing %q: %v", ErrParse, full, err))
			continue
		}

		waypoints := raw.RoutePoints
		if len(waypoints) == 0 {
			waypoints = raw.Waypoints
		}
		if len(waypoints) == 0 {
			errs = append(errs, fmt.Errorf("%w: %q has no waypoints", ErrParse, full))
			continue
		}

		name := raw.PathName
		if name == "" {
			name = strings.TrimSuffix(n, filepath.Ext(n))
		}
		store.routes[name] = Route{Name: name, Waypoints: waypoints}
	}

	return store, errs
}

// Names returns the set of loaded route names.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.routes))
	for n := range s.routes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the named route, or false if unknown.
func (s *Store) Get(name string) (Route, bool) {
	r, ok := s.routes[name]
	return r, ok
}

// Distance returns the minimum Euclidean distance from p to any waypoint of
// the named route, or +Inf if the route is unknown.
func (s *Store) Distance(name string, p model.Vec3) float64 {
	r, ok := s.routes[name]
	if !ok {
		return math.Inf(1)
	}
	c := closestOf(r, p)
	return c.Distance
}

// Closest returns the closest waypoint on the named route to p, or +Inf
// distance and a zero point if the route is unknown.
func (s *Store) Closest(name string, p model.Vec3) Closest {
	r, ok := s.routes[name]
	if !ok {
		return Closest{Distance: math.Inf(1), Index: -1}
	}
	return closestOf(r, p)
}

func closestOf(r Route, p model.Vec3) Closest {
	best := Closest{Distance: math.Inf(1), Index: -1}
	for i, wp := range r.Waypoints {
		d := euclid(wp, p)
		if d < best.Distance {
			best = Closest{Distance: d, Point: wp, Index: i}
		}
	}
	return best
}

// SegmentDirection returns the normalized tangent computed from waypoints
// centered on the index closest to nearPoint, spanning ±span/2 neighbors. A
// null (zero) direction is returned when the route is unknown or too short.
func (s *Store) SegmentDirection(name string, nearPoint model.Vec3, span int) (model.Vec3, bool) {
	r, ok := s.routes[name]
	if !ok || len(r.Waypoints) < 2 {
		return model.Vec3{}, false
	}

	c := closestOf(r, nearPoint)
	half := span / 2
	lo := c.Index - half
	hi := c.Index + half
	if lo < 0 {
		lo = 0
	}
	if hi >= len(r.Waypoints) {
		hi = len(r.Waypoints) - 1
	}
	if lo == hi {
		if hi+1 < len(r.Waypoints) {
			hi++
		} else if lo-1 >= 0 {
			lo--
		} else {
			return model.Vec3{}, false
		}
	}

	a, b := r.Waypoints[lo], r.Waypoints[hi]
	dir := model.Vec3{X: b.X - a.X, Y: b.Y - a.Y, Z: b.Z - a.Z}
	n := math.Sqrt(dir.X*dir.X + dir.Y*dir.Y + dir.Z*dir.Z)
	if n == 0 {
		return model.Vec3{}, false
	}
	return model.Vec3{X: dir.X / n, Y: dir.Y / n, Z: dir.Z / n}, true
}

func euclid(a, b model.Vec3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
