// Package model holds the data types shared across the pipeline's stages,
// mirroring the data model described for the bird-strike risk pipeline:
// cameras, detections, frame bundles, triangulated points and risk levels.
package model

import "time"

// ObjectClass identifies what kind of object a detection or track belongs to.
type ObjectClass string

const (
	ClassAirplane ObjectClass = "Airplane"
	ClassFlock    ObjectClass = "Flock"
)

// BBox is a pixel-space bounding box, x1,y1 top-left and x2,y2 bottom-right.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// Width returns the box width in pixels.
func (b BBox) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Center returns the box's pixel-space center.
func (b BBox) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Detection is one object found in one camera's image for one frame.
type Detection struct {
	Camera     string
	FrameID    int64
	Class      ObjectClass
	BBox       BBox
	CenterX    float64
	CenterY    float64
	Confidence float64
}

// FrameBundle is a set of synchronized per-camera image buffers sharing one
// logical frame ID. Every bundle emitted by the frame source must contain at
// least two cameras.
type FrameBundle struct {
	FrameID   int64
	Timestamp time.Time
	Images    map[string][]byte
}

// TriangulatedPoint is a 3D reconstruction of a matched pair of detections.
type TriangulatedPoint struct {
	FrameID    int64
	Class      ObjectClass
	X, Y, Z    float64
	Confidence float64
	CameraA    string
	CameraB    string
}

// MaxCoordinateMagnitude bounds any triangulated coordinate; larger values
// are rejected as numerical blow-ups (spec §3, TriangulatedPoint invariant).
const MaxCoordinateMagnitude = 10000.0

// Vec3 is a plain 3D point, used for route waypoints and world positions.
type Vec3 struct {
	X, Y, Z float64
}

// Level is a bird-strike risk level.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
)

// String renders the level for logs.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "LOW"
	case LevelMedium:
		return "MEDIUM"
	case LevelHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Wire renders the level using the wire-protocol BR_ prefix (spec §4.H).
func (l Level) Wire() string {
	switch l {
	case LevelLow:
		return "BR_LOW"
	case LevelMedium:
		return "BR_MEDIUM"
	case LevelHigh:
		return "BR_HIGH"
	default:
		return "BR_LOW"
	}
}

// TrackPoint is one (frame, x, z) sample in a session's position history.
type TrackPoint struct {
	Frame int64
	X, Z  float64
}

// TrackVelocity is one (frame, vx, vz) sample in a session's velocity history.
type TrackVelocity struct {
	Frame  int64
	VX, VZ float64
}

// ActiveTrack is an immutable snapshot of a session's most recent state for
// one object kind, handed to the Risk Engine. track_id 1 is Airplane, 2 is
// Flock, matching spec §4.E.
type ActiveTrack struct {
	TrackID int
	Class   ObjectClass
	X, Z    float64
	VX, VZ  float64
	Valid   bool
}
