// Package config loads and validates the pipeline's JSON configuration file
// using the optional-pointer-field pattern: fields omitted from the file
// retain their documented defaults, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PipelineConfig is the root configuration document (spec §6). Every field
// is a pointer so a partial JSON document leaves the rest at their defaults.
type PipelineConfig struct {
	FrameSkip           *int     `json:"frame_skip,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	DistanceThreshold   *float64 `json:"distance_threshold,omitempty"`

	Session sessionConfig `json:"session,omitempty"`
	Risk    riskConfig    `json:"risk,omitempty"`
	TCP     tcpConfig     `json:"tcp,omitempty"`
}

type sessionConfig struct {
	PositionJumpThreshold *float64 `json:"position_jump_threshold,omitempty"`
	JumpDurationThreshold *int     `json:"jump_duration_threshold,omitempty"`
	MinSessionLength      *int     `json:"min_session_length,omitempty"`
}

type riskConfig struct {
	DowngradeThreshold *int     `json:"downgrade_threshold,omitempty"`
	Epsilon            *float64 `json:"epsilon,omitempty"`
	NominalAltitude    *float64 `json:"nominal_altitude,omitempty"`
}

type tcpConfig struct {
	Host            *string  `json:"host,omitempty"`
	Port            *int     `json:"port,omitempty"`
	MinSendInterval *float64 `json:"min_send_interval,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyPipelineConfig returns a config with every field unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// LoadPipelineConfig loads a PipelineConfig from a JSON file. The file must
// have a .json extension and be under the max file size; fields omitted
// from the JSON retain their defaults (see the Get* accessors).
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that any set fields hold structurally sane values.
func (c *PipelineConfig) Validate() error {
	if c.FrameSkip != nil && *c.FrameSkip < 1 {
		return fmt.Errorf("frame_skip must be >= 1, got %d", *c.FrameSkip)
	}
	if c.ConfidenceThreshold != nil && (*c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1) {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %f", *c.ConfidenceThreshold)
	}
	if c.DistanceThreshold != nil && *c.DistanceThreshold <= 0 {
		return fmt.Errorf("distance_threshold must be positive, got %f", *c.DistanceThreshold)
	}
	if c.Session.PositionJumpThreshold != nil && *c.Session.PositionJumpThreshold <= 0 {
		return fmt.Errorf("session.position_jump_threshold must be positive, got %f", *c.Session.PositionJumpThreshold)
	}
	if c.Session.JumpDurationThreshold != nil && *c.Session.JumpDurationThreshold < 1 {
		return fmt.Errorf("session.jump_duration_threshold must be >= 1, got %d", *c.Session.JumpDurationThreshold)
	}
	if c.Session.MinSessionLength != nil && *c.Session.MinSessionLength < 1 {
		return fmt.Errorf("session.min_session_length must be >= 1, got %d", *c.Session.MinSessionLength)
	}
	if c.Risk.DowngradeThreshold != nil && *c.Risk.DowngradeThreshold < 1 {
		return fmt.Errorf("risk.downgrade_threshold must be >= 1, got %d", *c.Risk.DowngradeThreshold)
	}
	if c.TCP.Port != nil && (*c.TCP.Port < 1 || *c.TCP.Port > 65535) {
		return fmt.Errorf("tcp.port must be in [1,65535], got %d", *c.TCP.Port)
	}
	return nil
}

// GetFrameSkip returns frame_skip or its default (spec §6: 2).
func (c *PipelineConfig) GetFrameSkip() int {
	if c.FrameSkip == nil {
		return 2
	}
	return *c.FrameSkip
}

// GetConfidenceThreshold returns confidence_threshold or its default (0.40).
func (c *PipelineConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.40
	}
	return *c.ConfidenceThreshold
}

// GetDistanceThreshold returns distance_threshold or its default (100m).
func (c *PipelineConfig) GetDistanceThreshold() float64 {
	if c.DistanceThreshold == nil {
		return 100
	}
	return *c.DistanceThreshold
}

// GetPositionJumpThreshold returns session.position_jump_threshold or its default (50m).
func (c *PipelineConfig) GetPositionJumpThreshold() float64 {
	if c.Session.PositionJumpThreshold == nil {
		return 50
	}
	return *c.Session.PositionJumpThreshold
}

// GetJumpDurationThreshold returns session.jump_duration_threshold or its default (5 frames).
func (c *PipelineConfig) GetJumpDurationThreshold() int {
	if c.Session.JumpDurationThreshold == nil {
		return 5
	}
	return *c.Session.JumpDurationThreshold
}

// GetMinSessionLength returns session.min_session_length or its default (50 frames).
func (c *PipelineConfig) GetMinSessionLength() int {
	if c.Session.MinSessionLength == nil {
		return 50
	}
	return *c.Session.MinSessionLength
}

// GetDowngradeThreshold returns risk.downgrade_threshold or its default (5 frames).
func (c *PipelineConfig) GetDowngradeThreshold() int {
	if c.Risk.DowngradeThreshold == nil {
		return 5
	}
	return *c.Risk.DowngradeThreshold
}

// GetRiskEpsilon returns risk.epsilon or its default (1e-3), per spec §9(a).
func (c *PipelineConfig) GetRiskEpsilon() float64 {
	if c.Risk.Epsilon == nil {
		return 1e-3
	}
	return *c.Risk.Epsilon
}

// GetNominalAltitude returns risk.nominal_altitude or its default (50m), the
// named constant from spec §9 Open Question (a).
func (c *PipelineConfig) GetNominalAltitude() float64 {
	if c.Risk.NominalAltitude == nil {
		return 50
	}
	return *c.Risk.NominalAltitude
}

// GetTCPHost returns tcp.host or its default.
func (c *PipelineConfig) GetTCPHost() string {
	if c.TCP.Host == nil {
		return "127.0.0.1"
	}
	return *c.TCP.Host
}

// GetTCPPort returns tcp.port or its default.
func (c *PipelineConfig) GetTCPPort() int {
	if c.TCP.Port == nil {
		return 9000
	}
	return *c.TCP.Port
}

// GetMinSendIntervalSeconds returns tcp.min_send_interval or its default (1s).
func (c *PipelineConfig) GetMinSendIntervalSeconds() float64 {
	if c.TCP.MinSendInterval == nil {
		return 1
	}
	return *c.TCP.MinSendInterval
}
