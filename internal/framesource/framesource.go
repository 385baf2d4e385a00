// Package framesource watches a recordings directory and emits synchronized
// multi-camera FrameBundles, offering only the newest unemitted bundle when
// downstream is slow (spec §4.C).
package framesource

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/airfield/birdstrike/internal/fsutil"
	"github.com/airfield/birdstrike/internal/model"
	"github.com/airfield/birdstrike/internal/monitoring"
	"github.com/airfield/birdstrike/internal/timeutil"
)

// ErrStalled indicates no camera has produced a new frame for the configured
// idle timeout (spec §7, FrameSourceStalled — warn, keep polling, not fatal).
var ErrStalled = errors.New("frame source stalled")

var framePattern = regexp.MustCompile(`^frame_(\d+)\.jpg$`)

// Config controls polling cadence and stall detection.
type Config struct {
	PollInterval time.Duration
	IdleTimeout  time.Duration
	OutBuffer    int
}

// DefaultConfig mirrors reasonable defaults for a 30fps capture rig.
func DefaultConfig() Config {
	return Config{
		PollInterval: 100 * time.Millisecond,
		IdleTimeout:  10 * time.Second,
		OutBuffer:    4,
	}
}

// Source polls `<root>/Recording_<timestamp>/<camera>/frame_<N>.jpg` and
// emits a FrameBundle once every monitored camera has a frame past the last
// one emitted.
type Source struct {
	fs      fsutil.FileSystem
	clock   timeutil.Clock
	root    string
	cameras []string
	cfg     Config

	Out chan model.FrameBundle

	produced uint64
	dropped  uint64
	stalled  uint64

	currentSession    string
	lastEmittedFrame  int64
	lastProgressAt    time.Time
	lastStallWarnedAt time.Time
}

// New builds a Source watching root for the given camera names.
func New(fs fsutil.FileSystem, clock timeutil.Clock, root string, cameras []string, cfg Config) *Source {
	if cfg.OutBuffer <= 0 {
		cfg.OutBuffer = 1
	}
	return &Source{
		fs:               fs,
		clock:            clock,
		root:             root,
		cameras:          append([]string(nil), cameras...),
		cfg:              cfg,
		Out:              make(chan model.FrameBundle, cfg.OutBuffer),
		lastEmittedFrame: -1,
		lastProgressAt:   clock.Now(),
	}
}

// Run polls until ctx is cancelled, closing Out on exit.
func (s *Source) Run(ctx context.Context) {
	defer close(s.Out)

	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.poll()
		}
	}
}

// Stats returns (produced, dropped, stalled) counters.
func (s *Source) Stats() (produced, dropped, stalled uint64) {
	return atomic.LoadUint64(&s.produced), atomic.LoadUint64(&s.dropped), atomic.LoadUint64(&s.stalled)
}

func (s *Source) poll() {
	session, err := s.latestSession()
	if err != nil {
		s.noteIdle()
		return
	}

	if session != s.currentSession {
		monitoring.Logf("frame source: recording rollover %q -> %q, resetting", s.currentSession, session)
		s.currentSession = session
		s.lastEmittedFrame = -1
	}

	minMax, ok := s.minMaxFrameAcrossCameras(session)
	if !ok {
		s.noteIdle()
		return
	}

	if minMax <= s.lastEmittedFrame {
		s.noteIdle()
		return
	}

	bundle, err := s.buildBundle(session, minMax)
	if err != nil {
		monitoring.Logf("frame source: building bundle for frame %d: %v", minMax, err)
		return
	}

	s.lastEmittedFrame = minMax
	s.lastProgressAt = s.clock.Now()

	select {
	case s.Out <- bundle:
		atomic.AddUint64(&s.produced, 1)
	default:
		atomic.AddUint64(&s.dropped, 1)
		monitoring.Logf("frame source: dropped frame %d (consumer too slow)", minMax)
	}
}

func (s *Source) noteIdle() {
	if s.clock.Since(s.lastProgressAt) < s.cfg.IdleTimeout {
		return
	}
	atomic.AddUint64(&s.stalled, 1)
	if s.clock.Since(s.lastStallWarnedAt) >= s.cfg.IdleTimeout {
		monitoring.Logf("%v: no new frames for %s", ErrStalled, s.cfg.IdleTimeout)
		s.lastStallWarnedAt = s.clock.Now()
	}
}

// latestSession returns the most recently named Recording_* directory under
// root, by lexicographic order (timestamps sort correctly when fixed-width).
func (s *Source) latestSession() (string, error) {
	names, err := fsutil.ReadDir(s.fs, s.root)
	if err != nil {
		return "", err
	}
	var sessions []string
	for _, n := range names {
		if strings.HasPrefix(n, "Recording_") {
			sessions = append(sessions, n)
		}
	}
	if len(sessions) == 0 {
		return "", fmt.Errorf("no recording sessions found under %q", s.root)
	}
	sort.Strings(sessions)
	return sessions[len(sessions)-1], nil
}

// minMaxFrameAcrossCameras returns the minimum, across all monitored
// cameras, of that camera's maximum available frame number — the newest
// frame id for which every camera has produced a file.
func (s *Source) minMaxFrameAcrossCameras(session string) (int64, bool) {
	var minMax int64 = -1
	for i, cam := range s.cameras {
		dir := path.Join(s.root, session, cam)
		names, err := fsutil.ReadDir(s.fs, dir)
		if err != nil {
			return 0, false
		}
		max := int64(-1)
		for _, n := range names {
			m := framePattern.FindStringSubmatch(n)
			if m == nil {
				continue
			}
			num, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			if num > max {
				max = num
			}
		}
		if max < 0 {
			return 0, false
		}
		if i == 0 || max < minMax {
			minMax = max
		}
	}
	return minMax, minMax >= 0
}

func (s *Source) buildBundle(session string, frameID int64) (model.FrameBundle, error) {
	images := make(map[string][]byte, len(s.cameras))
	for _, cam := range s.cameras {
		p := path.Join(s.root, session, cam, fmt.Sprintf("frame_%d.jpg", frameID))
		data, err := s.fs.ReadFile(p)
		if err != nil {
			return model.FrameBundle{}, fmt.Errorf("reading %q: %w", p, err)
		}
		images[cam] = data
	}

	ts := s.readTimestamp(session, frameID)

	return model.FrameBundle{
		FrameID:   frameID,
		Timestamp: ts,
		Images:    images,
	}, nil
}

// readTimestamp looks up frame_id's wall-clock time from the first camera's
// sibling frame_timestamps.txt ("N,epoch_seconds" per line), falling back to
// the poll-time clock if the file is missing or the frame isn't listed.
func (s *Source) readTimestamp(session string, frameID int64) time.Time {
	if len(s.cameras) == 0 {
		return s.clock.Now()
	}
	p := path.Join(s.root, session, s.cameras[0], "frame_timestamps.txt")
	data, err := s.fs.ReadFile(p)
	if err != nil {
		return s.clock.Now()
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			continue
		}
		num, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil || num != frameID {
			continue
		}
		epoch, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * 1e9)
		return time.Unix(sec, nsec)
	}
	return s.clock.Now()
}
