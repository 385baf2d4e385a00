// Package camera builds immutable camera models (intrinsics, world pose,
// and projection matrix) from the parameter records the capture rig exports.
package camera

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/airfield/birdstrike/internal/model"
)

// ErrInvalidParams is returned when a camera parameter record fails
// validation (spec §7, InvalidCameraParams — fatal at startup).
var ErrInvalidParams = errors.New("invalid camera params")

// Quaternion is a unit rotation quaternion (x, y, z, w).
type Quaternion struct {
	X, Y, Z, W float64
}

// Normalize returns q scaled to unit length. A zero quaternion normalizes to
// the identity rotation.
func (q Quaternion) Normalize() Quaternion {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if n == 0 {
		return Quaternion{W: 1}
	}
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// RotationMatrix returns the 3x3 rotation matrix this (already normalized)
// quaternion represents.
func (q Quaternion) RotationMatrix() *mat.Dense {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	})
}

// Params is the raw input record used to build a Camera: image size, a
// projection-matrix descriptor in the capture coordinate system, a
// world-space position, and a world-space orientation.
type Params struct {
	ID                      string
	ImageWidth, ImageHeight int
	M00, M11                float64
	Position                model.Vec3
	Rotation                Quaternion
}

// Camera holds intrinsics and world pose for one fixed camera. Cameras are
// immutable after construction (spec §3).
type Camera struct {
	ID            string
	Width, Height int
	Fx, Fy        float64
	Cx, Cy        float64
	R             *mat.Dense // world->camera rotation, 3x3
	T             []float64  // world->camera translation, length 3
	P             *mat.Dense // projection matrix K*[R|t], 3x4
}

// New derives a Camera from a parameter record, following the axis
// convention (Y-up, Z-forward, no Y-flip) the capture rig uses.
func New(p Params) (*Camera, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: empty camera id", ErrInvalidParams)
	}
	if p.ImageWidth <= 0 || p.ImageHeight <= 0 {
		return nil, fmt.Errorf("%w: camera %q has non-positive image size %dx%d", ErrInvalidParams, p.ID, p.ImageWidth, p.ImageHeight)
	}
	if p.M00 == 0 || p.M11 == 0 {
		return nil, fmt.Errorf("%w: camera %q has degenerate projection descriptor", ErrInvalidParams, p.ID)
	}

	w, h := float64(p.ImageWidth), float64(p.ImageHeight)
	fx := p.M00 * w / 2
	fy := p.M11 * h / 2
	cx := w / 2
	cy := h / 2

	q := p.Rotation.Normalize()
	rot := q.RotationMatrix() // capture-space rotation
	var worldToCam mat.Dense
	worldToCam.CloneFrom(rot.T()) // R = transpose of the quaternion's rotation matrix

	pos := mat.NewVecDense(3, []float64{p.Position.X, p.Position.Y, p.Position.Z})
	var tVec mat.VecDense
	tVec.MulVec(&worldToCam, pos)
	t := []float64{-tVec.AtVec(0), -tVec.AtVec(1), -tVec.AtVec(2)}

	k := mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})

	rt := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rt.Set(i, j, worldToCam.At(i, j))
		}
		rt.Set(i, 3, t[i])
	}
	var proj mat.Dense
	proj.Mul(k, rt)

	return &Camera{
		ID:     p.ID,
		Width:  p.ImageWidth,
		Height: p.ImageHeight,
		Fx:     fx,
		Fy:     fy,
		Cx:     cx,
		Cy:     cy,
		R:      &worldToCam,
		T:      t,
		P:      &proj,
	}, nil
}

// Project maps a world-space point through the camera's projection matrix,
// returning the homogeneous pixel coordinate (u, v, w). Used by tests that
// exercise the camera-model round-trip property (spec §8).
func (c *Camera) Project(p model.Vec3) (u, v, w float64) {
	hp := mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1})
	var out mat.VecDense
	out.MulVec(c.P, hp)
	return out.AtVec(0), out.AtVec(1), out.AtVec(2)
}
