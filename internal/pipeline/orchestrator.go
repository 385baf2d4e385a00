// Package pipeline wires the Frame Source, Detector Adapter, Triangulator,
// Session Tracker, Risk Engine, and TCP Event Client into the running
// ingest/processing worker pair (spec §4.I).
package pipeline

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/airfield/birdstrike/internal/detector"
	"github.com/airfield/birdstrike/internal/metrics"
	"github.com/airfield/birdstrike/internal/model"
	"github.com/airfield/birdstrike/internal/monitoring"
	"github.com/airfield/birdstrike/internal/risk"
	"github.com/airfield/birdstrike/internal/session"
	"github.com/airfield/birdstrike/internal/tcpclient"
	"github.com/airfield/birdstrike/internal/timeutil"
	"github.com/airfield/birdstrike/internal/triangulate"
)

// gcInterval is how often (in processed frames) the orchestrator forces a
// GC pass, per spec §4.I "periodic maintenance".
const gcInterval = 50

// Config holds orchestrator-level parameters (spec §6 frame_skip, queue
// capacity).
type Config struct {
	FrameSkip          int
	ProcessingQueueCap int
}

// DefaultConfig matches spec §6 defaults.
func DefaultConfig() Config {
	return Config{FrameSkip: 2, ProcessingQueueCap: 10}
}

// Orchestrator owns the ingest/processing worker pair and the components
// they drive.
type Orchestrator struct {
	cfg Config

	Frames   <-chan model.FrameBundle
	Detector detector.Detector
	Tri      *triangulate.Triangulator
	Tracker  *session.Tracker
	Risk     *risk.Engine
	TCP      *tcpclient.Client
	clock    timeutil.Clock

	processingQueue chan model.FrameBundle
	processedCount  int
}

// New builds an Orchestrator from its already-constructed components.
func New(cfg Config, frames <-chan model.FrameBundle, det detector.Detector, tri *triangulate.Triangulator, tracker *session.Tracker, riskEngine *risk.Engine, tcp *tcpclient.Client, clock timeutil.Clock) *Orchestrator {
	return &Orchestrator{
		cfg:             cfg,
		Frames:          frames,
		Detector:        det,
		Tri:             tri,
		Tracker:         tracker,
		Risk:            riskEngine,
		TCP:             tcp,
		clock:           clock,
		processingQueue: make(chan model.FrameBundle, cfg.ProcessingQueueCap),
	}
}

// Run starts the ingest worker, processing worker, and (if set) the TCP
// client's connection loop, and blocks until ctx is cancelled or a worker
// returns a non-cancellation error (spec §5, via errgroup).
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.runIngest(ctx)
		return nil
	})
	g.Go(func() error {
		o.runProcessing(ctx)
		return nil
	})
	if o.TCP != nil {
		g.Go(func() error {
			return o.TCP.Run(ctx)
		})
	}

	return g.Wait()
}

func (o *Orchestrator) runIngest(ctx context.Context) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case bundle, ok := <-o.Frames:
			if !ok {
				return
			}
			n++
			metrics.FramesIngested.Inc()
			if n%o.cfg.FrameSkip != 0 {
				metrics.FramesSkipped.Inc()
				continue
			}

			select {
			case o.processingQueue <- bundle:
				metrics.ProcessingQueueDepth.Set(float64(len(o.processingQueue)))
			default:
				metrics.FramesDropped.Inc()
				monitoring.Logf("pipeline: processing queue full, dropping frame %d", bundle.FrameID)
			}
		}
	}
}

func (o *Orchestrator) runProcessing(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case bundle, ok := <-o.processingQueue:
			if !ok {
				return
			}
			metrics.ProcessingQueueDepth.Set(float64(len(o.processingQueue)))
			o.processBundle(ctx, bundle)
		}
	}
}

func (o *Orchestrator) processBundle(ctx context.Context, bundle model.FrameBundle) {
	start := o.clock.Now()
	detections, err := o.Detector.DetectBatch(ctx, bundle.FrameID, bundle.Images)
	metrics.DetectorLatency.Observe(o.clock.Since(start).Seconds())
	if err != nil {
		monitoring.Logf("pipeline: detector failed on frame %d: %v", bundle.FrameID, err)
		return
	}

	points := o.Tri.Triangulate(bundle.FrameID, detections)
	o.Tracker.Update(bundle.FrameID, points)

	airplane, flock := o.Tracker.ActiveTracks()
	assessment, ok, changed := o.Risk.Update(airplane, flock)
	if ok {
		metrics.SetRiskLevel(assessment.Level.String())
	}
	if ok && changed {
		if o.TCP != nil {
			o.TCP.SendLevelChange(assessment.Level, o.clock.Now())
		} else {
			monitoring.Logf("pipeline: frame %d risk level changed to %s (no TCP client)", bundle.FrameID, assessment.Level.Wire())
		}
	}

	metrics.FramesProcessed.Inc()
	o.processedCount++
	if o.processedCount%gcInterval == 0 {
		runtime.GC()
	}
}
