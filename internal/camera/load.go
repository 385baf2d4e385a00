package camera

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airfield/birdstrike/internal/fsutil"
	"github.com/airfield/birdstrike/internal/model"
)

// paramFile mirrors the on-disk camera parameter record (spec §6). Fields
// outside this shape are ignored by json.Unmarshal.
type paramFile struct {
	ImageWidth       int `json:"imageWidth"`
	ImageHeight      int `json:"imageHeight"`
	ProjectionMatrix struct {
		M00 float64 `json:"m00"`
		M11 float64 `json:"m11"`
	} `json:"projectionMatrix"`
	PositionUnityWorld struct {
		X, Y, Z float64
	} `json:"position_UnityWorld"`
	RotationUnityWorld struct {
		X, Y, Z, W float64
	} `json:"rotation_UnityWorld"`
}

// LoadDir loads every `*.json` camera parameter file in dir, one Camera per
// file, keyed by the filename prefix (minus extension) which must match the
// camera name used in the frame directory layout (spec §6).
func LoadDir(fs fsutil.FileSystem, dir string) (map[string]*Camera, error) {
	entries, err := fsutil.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("listing camera params dir %q: %w", dir, err)
	}

	cameras := make(map[string]*Camera)
	var names []string
	for _, name := range entries {
		if strings.ToLower(filepath.Ext(name)) != ".json" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		full := filepath.Join(dir, name)
		data, err := fs.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %q: %v", ErrInvalidParams, full, err)
		}

		var raw paramFile
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: parsing %q: %v", ErrInvalidParams, full, err)
		}

		id := strings.TrimSuffix(name, filepath.Ext(name))
		params := Params{
			ID:          id,
			ImageWidth:  raw.ImageWidth,
			ImageHeight: raw.ImageHeight,
			M00:         raw.ProjectionMatrix.M00,
			M11:         raw.ProjectionMatrix.M11,
			Position: model.Vec3{
				X: raw.PositionUnityWorld.X,
				Y: raw.PositionUnityWorld.Y,
				Z: raw.PositionUnityWorld.Z,
			},
			Rotation: Quaternion{
				X: raw.RotationUnityWorld.X,
				Y: raw.RotationUnityWorld.Y,
				Z: raw.RotationUnityWorld.Z,
				W: raw.RotationUnityWorld.W,
			},
		}

		cam, err := New(params)
		if err != nil {
			return nil, err
		}
		cameras[id] = cam
	}

	if len(cameras) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 cameras, found %d in %q", ErrInvalidParams, len(cameras), dir)
	}

	return cameras, nil
}
