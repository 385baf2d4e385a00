// Package risk fuses direct and route-projected distance, relative speed,
// and time-to-collision into a stabilized bird-strike risk level (spec §4.G).
package risk

import (
	"math"

	"github.com/airfield/birdstrike/internal/model"
	"github.com/airfield/birdstrike/internal/route"
)

// Config holds the Risk Engine's tunable parameters (spec §6, §9 Open
// Question (a)).
type Config struct {
	NominalAltitude    float64 // meters, named per spec §9(a) rather than hard-coded
	Epsilon            float64 // risk.epsilon, degeneracy threshold for distance/TTC
	DowngradeThreshold int     // frames, hysteresis
	AssignedRoute      string  // the single fixed route every airplane is assigned to
}

// DefaultConfig matches spec §6/§9 defaults.
func DefaultConfig() Config {
	return Config{
		NominalAltitude:    50,
		Epsilon:            1e-3,
		DowngradeThreshold: 5,
		AssignedRoute:      "Path_A",
	}
}

// Assessment is one frame's risk computation, independent of hysteresis.
type Assessment struct {
	Level          model.Level
	Score          float64
	DirectDistance float64
	RouteDistance  float64
	HybridDistance float64
	RelativeSpeed  float64
	TTC            float64
	HasFlock       bool
}

// Engine owns the hysteresis counter and last-emitted level, the pipeline's
// only other piece of persistent mutable state besides sessions (spec §9).
type Engine struct {
	cfg    Config
	routes *route.Store

	reportedLevel   model.Level
	hasReported     bool
	downgradeStreak int
	downgradeFloor  model.Level
}

// New builds a Risk Engine against the given route store.
func New(cfg Config, routes *route.Store) *Engine {
	return &Engine{cfg: cfg, routes: routes}
}

// Assess computes the raw (pre-hysteresis) assessment for one frame's active
// tracks. The caller passes the Session Tracker's airplane/flock snapshot.
func (e *Engine) Assess(airplane, flock model.ActiveTrack) (Assessment, bool) {
	if !airplane.Valid {
		return Assessment{}, false
	}
	if !flock.Valid {
		return Assessment{Level: model.LevelLow, DirectDistance: math.Inf(1), RouteDistance: math.Inf(1), HybridDistance: math.Inf(1), TTC: math.Inf(1)}, true
	}

	direct := directDistance(airplane, flock, e.cfg.NominalAltitude)

	routeDist := math.Inf(1)
	if e.routes != nil {
		flockPos := model.Vec3{X: flock.X, Y: e.cfg.NominalAltitude, Z: flock.Z}
		routeDist = e.routes.Distance(e.cfg.AssignedRoute, flockPos)
	}

	hybrid := direct
	if !math.IsInf(routeDist, 1) {
		hybrid = 0.7*routeDist + 0.3*direct
	}

	relSpeed, ttc := relativeSpeedAndTTC(airplane, flock, e.cfg.Epsilon)

	level, score := scoreLevel(hybrid, relSpeed, ttc)

	return Assessment{
		Level:          level,
		Score:          score,
		DirectDistance: direct,
		RouteDistance:  routeDist,
		HybridDistance: hybrid,
		RelativeSpeed:  relSpeed,
		TTC:            ttc,
		HasFlock:       true,
	}, true
}

// Update runs Assess, applies hysteresis stabilization, and reports whether
// a level change should be emitted this frame (spec §4.G steps 8-9).
func (e *Engine) Update(airplane, flock model.ActiveTrack) (Assessment, bool, bool) {
	a, ok := e.Assess(airplane, flock)
	if !ok {
		return Assessment{}, false, false
	}

	stabilized := e.stabilize(a.Level)
	a.Level = stabilized

	changed := !e.hasReported || stabilized != e.reportedLevel
	if changed {
		e.reportedLevel = stabilized
		e.hasReported = true
	}
	return a, true, changed
}

// stabilize applies the hysteresis rule: upgrades take effect immediately;
// downgrades require `DowngradeThreshold` consecutive frames strictly lower
// than the currently reported level.
func (e *Engine) stabilize(raw model.Level) model.Level {
	if !e.hasReported {
		e.downgradeStreak = 0
		return raw
	}

	if raw >= e.reportedLevel {
		e.downgradeStreak = 0
		return raw
	}

	// raw < reportedLevel: candidate downgrade.
	if e.downgradeStreak == 0 || raw != e.downgradeFloor {
		e.downgradeStreak = 1
		e.downgradeFloor = raw
	} else {
		e.downgradeStreak++
	}

	if e.downgradeStreak >= e.cfg.DowngradeThreshold {
		e.downgradeStreak = 0
		return raw
	}
	return e.reportedLevel
}

func directDistance(airplane, flock model.ActiveTrack, altitude float64) float64 {
	dx := airplane.X - flock.X
	dz := airplane.Z - flock.Z
	xz := math.Hypot(dx, dz)
	return math.Hypot(xz, altitude)
}

// relativeSpeedAndTTC projects (airplane_velocity - flock_velocity) onto the
// unit vector from Flock to Airplane in the XZ plane (spec §4.G steps 5-6).
func relativeSpeedAndTTC(airplane, flock model.ActiveTrack, epsilon float64) (relSpeed, ttc float64) {
	dx := airplane.X - flock.X
	dz := airplane.Z - flock.Z
	d := math.Hypot(dx, dz)

	if d < epsilon {
		return 0, math.Inf(1)
	}
	ux, uz := dx/d, dz/d

	rvx := airplane.VX - flock.VX
	rvz := airplane.VZ - flock.VZ
	relSpeed = rvx*ux + rvz*uz

	vClose := -relSpeed
	if vClose <= epsilon {
		return relSpeed, math.Inf(1)
	}

	t := d / vClose
	if t < 0.1 {
		t = 0.1
	}
	if t > 300 {
		t = 300
	}
	return relSpeed, t
}

func scoreLevel(distance, relSpeed, ttc float64) (model.Level, float64) {
	if distance < 50 {
		return model.LevelHigh, 100
	}
	if ttc < 5 {
		return model.LevelHigh, 100
	}

	floorMedium := distance < 100 || ttc < 12

	ds := distanceScore(distance)
	ss := speedScore(relSpeed)
	ts := ttcScore(ttc)

	raw := 0.4*ds + 0.3*ss + 0.3*ts
	final := 2 * raw

	level := model.LevelLow
	switch {
	case final >= 80:
		level = model.LevelHigh
	case final >= 60:
		level = model.LevelMedium
	}

	if floorMedium && level == model.LevelLow {
		level = model.LevelMedium
	}

	return level, final
}

// distanceScore is piecewise linear through (50,100)->(100,50)->(200,20)->
// (600,0): 100 at <=50m, 50 at 100m, 20 at 200m, and 0 from 600m on.
func distanceScore(d float64) float64 {
	switch {
	case d <= 50:
		return 100
	case d <= 100:
		return lerp(d, 50, 100, 100, 50)
	case d <= 200:
		return lerp(d, 100, 200, 50, 20)
	case d <= 600:
		return lerp(d, 200, 600, 20, 0)
	default:
		return 0
	}
}

func speedScore(v float64) float64 {
	switch {
	case v <= 0:
		return 0
	case v <= 10:
		return 3 * v
	case v <= 30:
		return 30 + 2.5*(v-10)
	default:
		return 100
	}
}

func ttcScore(ttc float64) float64 {
	if math.IsInf(ttc, 1) {
		return 0
	}
	switch {
	case ttc <= 5:
		return 100
	case ttc <= 15:
		return lerp(ttc, 5, 15, 100, 50)
	case ttc <= 30:
		return lerp(ttc, 15, 30, 50, 20)
	default:
		return 0
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	t := (x - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}
