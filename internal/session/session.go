// Package session accumulates triangulated 3D observations into sessions,
// detects discontinuities (teleports), smooths positions, and derives
// velocities (spec §4.E).
package session

import (
	"math"

	"github.com/google/uuid"

	"github.com/airfield/birdstrike/internal/model"
)

// NominalFPS is the frame rate finite-difference velocities are scaled to,
// regardless of actual wall-clock frame spacing (spec §4.E).
const NominalFPS = 30.0

// Config holds the session parameters from spec §6.
type Config struct {
	PositionJumpThreshold  float64 // meters, session.position_jump_threshold
	JumpDurationThreshold  int     // frames, session.jump_duration_threshold
	MinSessionLength       int     // frames, session.min_session_length
	CleaningSpeedThreshold float64 // meters/frame, speed above which a point is dropped during cleaning
	SmoothingWindow        int     // centered moving-average window, spec default 3
}

// DefaultConfig matches spec §6 defaults.
func DefaultConfig() Config {
	return Config{
		PositionJumpThreshold:  50,
		JumpDurationThreshold:  5,
		MinSessionLength:       50,
		CleaningSpeedThreshold: 120,
		SmoothingWindow:        3,
	}
}

// Session is a contiguous episode during which an Airplane is continuously
// observed, plus any co-observed Flock (spec §3).
type Session struct {
	ID                 string
	StartFrame         int64
	LastFrame          int64
	AirplanePositions  []model.TrackPoint
	AirplaneVelocities []model.TrackVelocity
	FlockPositions     []model.TrackPoint
	FlockVelocities    []model.TrackVelocity
}

// Length is the number of airplane observations in the session.
func (s Session) Length() int { return len(s.AirplanePositions) }

type trackerState int

const (
	stateNotInSession trackerState = iota
	stateInSession
)

// Tracker maintains a single in-progress session plus the history of
// completed sessions (spec §4.E). The history has no size limit: every
// session that meets MinSessionLength is kept for the Tracker's lifetime.
type Tracker struct {
	cfg Config

	state       trackerState
	current     *Session
	jumpCounter int
	anchorX     float64 // last confirmed (non-jump) airplane position, XZ
	anchorZ     float64

	history []Session
}

// New builds a Tracker with the given parameters.
func New(cfg Config) *Tracker {
	return &Tracker{cfg: cfg, state: stateNotInSession}
}

// Update advances the tracker by one frame's triangulated points, following
// the state machine in spec §4.E.
func (t *Tracker) Update(frameID int64, points []model.TriangulatedPoint) {
	airplane, hasAirplane := bestOf(points, model.ClassAirplane)
	flock, hasFlock := bestOf(points, model.ClassFlock)

	switch t.state {
	case stateNotInSession:
		if hasAirplane {
			t.openSession(frameID, airplane, flock, hasFlock)
		}

	case stateInSession:
		if !hasAirplane {
			t.closeSession()
			return
		}

		dist := xzDistance(t.anchorX, t.anchorZ, airplane.X, airplane.Z)

		if dist <= t.cfg.PositionJumpThreshold {
			t.jumpCounter = 0
			t.anchorX, t.anchorZ = airplane.X, airplane.Z
			t.extend(frameID, airplane, flock, hasFlock)
			return
		}

		t.jumpCounter++
		if t.jumpCounter < t.cfg.JumpDurationThreshold {
			// Sustained jump not yet confirmed: treat as noise, still extend,
			// but keep comparing against the pre-jump anchor.
			t.extend(frameID, airplane, flock, hasFlock)
			return
		}

		// Jump confirmed: close the old session, open a new one here.
		t.closeSession()
		t.openSession(frameID, airplane, flock, hasFlock)
	}
}

func bestOf(points []model.TriangulatedPoint, class model.ObjectClass) (model.TriangulatedPoint, bool) {
	var best model.TriangulatedPoint
	found := false
	for _, p := range points {
		if p.Class != class {
			continue
		}
		if !found || p.Confidence > best.Confidence {
			best = p
			found = true
		}
	}
	return best, found
}

func xzDistance(x1, z1, x2, z2 float64) float64 {
	dx, dz := x2-x1, z2-z1
	return math.Hypot(dx, dz)
}

func (t *Tracker) openSession(frameID int64, airplane model.TriangulatedPoint, flock model.TriangulatedPoint, hasFlock bool) {
	s := &Session{
		ID:                uuid.New().String(),
		StartFrame:        frameID,
		LastFrame:         frameID,
		AirplanePositions: []model.TrackPoint{{Frame: frameID, X: airplane.X, Z: airplane.Z}},
	}
	if hasFlock {
		s.FlockPositions = []model.TrackPoint{{Frame: frameID, X: flock.X, Z: flock.Z}}
	}
	t.current = s
	t.jumpCounter = 0
	t.anchorX, t.anchorZ = airplane.X, airplane.Z
	t.state = stateInSession
}

func (t *Tracker) extend(frameID int64, airplane model.TriangulatedPoint, flock model.TriangulatedPoint, hasFlock bool) {
	s := t.current
	s.LastFrame = frameID
	s.AirplanePositions = append(s.AirplanePositions, model.TrackPoint{Frame: frameID, X: airplane.X, Z: airplane.Z})
	s.AirplaneVelocities = appendVelocity(s.AirplaneVelocities, s.AirplanePositions)

	if hasFlock {
		s.FlockPositions = append(s.FlockPositions, model.TrackPoint{Frame: frameID, X: flock.X, Z: flock.Z})
		s.FlockVelocities = appendVelocity(s.FlockVelocities, s.FlockPositions)
	}
}

func appendVelocity(velocities []model.TrackVelocity, positions []model.TrackPoint) []model.TrackVelocity {
	n := len(positions)
	if n < 2 {
		return velocities
	}
	prev, cur := positions[n-2], positions[n-1]
	dt := float64(cur.Frame - prev.Frame)
	if dt <= 0 {
		dt = 1
	}
	vx := (cur.X - prev.X) / dt * NominalFPS
	vz := (cur.Z - prev.Z) / dt * NominalFPS
	return append(velocities, model.TrackVelocity{Frame: cur.Frame, VX: vx, VZ: vz})
}

func (t *Tracker) closeSession() {
	s := t.current
	t.current = nil
	t.jumpCounter = 0
	t.state = stateNotInSession

	if s == nil || s.Length() < t.cfg.MinSessionLength {
		return
	}
	t.history = append(t.history, *s)
}

// CurrentSession returns an immutable snapshot of the in-progress session,
// or false if none is active. The Tracker never lends a reference to its
// internal mutable session object (spec §9).
func (t *Tracker) CurrentSession() (Session, bool) {
	if t.current == nil {
		return Session{}, false
	}
	return cloneSession(*t.current), true
}

// History returns cleaned, completed sessions (each already ≥ MinSessionLength).
func (t *Tracker) History() []Session {
	out := make([]Session, len(t.history))
	for i, s := range t.history {
		out[i] = Clean(s, t.cfg)
	}
	return out
}

// ActiveTracks projects the current in-progress session to the two virtual
// tracks the Risk Engine consumes (spec §4.E): track_id 1 is Airplane, 2 is
// Flock, each carrying the most recent position and velocity.
func (t *Tracker) ActiveTracks() (airplane, flock model.ActiveTrack) {
	if t.current == nil {
		return model.ActiveTrack{TrackID: 1, Class: model.ClassAirplane}, model.ActiveTrack{TrackID: 2, Class: model.ClassFlock}
	}

	airplane = model.ActiveTrack{TrackID: 1, Class: model.ClassAirplane, Valid: true}
	if n := len(t.current.AirplanePositions); n > 0 {
		p := t.current.AirplanePositions[n-1]
		airplane.X, airplane.Z = p.X, p.Z
	}
	if n := len(t.current.AirplaneVelocities); n > 0 {
		v := t.current.AirplaneVelocities[n-1]
		airplane.VX, airplane.VZ = v.VX, v.VZ
	}

	flock = model.ActiveTrack{TrackID: 2, Class: model.ClassFlock}
	if n := len(t.current.FlockPositions); n > 0 {
		flock.Valid = true
		p := t.current.FlockPositions[n-1]
		flock.X, flock.Z = p.X, p.Z
	}
	if n := len(t.current.FlockVelocities); n > 0 {
		v := t.current.FlockVelocities[n-1]
		flock.VX, flock.VZ = v.VX, v.VZ
	}

	return airplane, flock
}

func cloneSession(s Session) Session {
	clone := s
	clone.AirplanePositions = append([]model.TrackPoint(nil), s.AirplanePositions...)
	clone.AirplaneVelocities = append([]model.TrackVelocity(nil), s.AirplaneVelocities...)
	clone.FlockPositions = append([]model.TrackPoint(nil), s.FlockPositions...)
	clone.FlockVelocities = append([]model.TrackVelocity(nil), s.FlockVelocities...)
	return clone
}
