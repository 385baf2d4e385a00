// Command birdstrike runs the real-time bird-strike risk assessment
// pipeline: it loads camera calibrations and routes, wires up a detector,
// and streams stabilized risk levels to a command server over TCP.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/airfield/birdstrike/internal/camera"
	"github.com/airfield/birdstrike/internal/config"
	"github.com/airfield/birdstrike/internal/detector"
	"github.com/airfield/birdstrike/internal/framesource"
	"github.com/airfield/birdstrike/internal/fsutil"
	"github.com/airfield/birdstrike/internal/monitoring"
	"github.com/airfield/birdstrike/internal/pipeline"
	"github.com/airfield/birdstrike/internal/risk"
	"github.com/airfield/birdstrike/internal/route"
	"github.com/airfield/birdstrike/internal/session"
	"github.com/airfield/birdstrike/internal/tcpclient"
	"github.com/airfield/birdstrike/internal/timeutil"
	"github.com/airfield/birdstrike/internal/triangulate"
)

func main() {
	configPath := flag.String("config", "", "path to pipeline JSON config (optional, partial overrides allowed)")
	detectorDir := flag.String("detector", "", "path to replay detections directory; required unless -dry-run, which defaults it to \"detections\"")
	camerasDir := flag.String("cameras", "cameras", "directory of per-camera parameter JSON files")
	routesDir := flag.String("routes", "routes", "directory of route polyline JSON files")
	recordingsDir := flag.String("recordings", "recordings", "frame recordings root directory")
	logLevel := flag.String("log-level", "info", "log verbosity label (debug, info, warn, error); printed in the startup log line, log output is not filtered by it")
	tcpHost := flag.String("tcp-host", "", "override tcp.host from the config file")
	tcpPort := flag.Int("tcp-port", 0, "override tcp.port from the config file")
	metricsAddr := flag.String("metrics-addr", "", "bind address for the /metrics endpoint; empty disables it")
	dryRun := flag.Bool("dry-run", false, "run against a replay detector and log events instead of opening the TCP connection")
	flag.Parse()

	monitoring.Logf("starting birdstrike pipeline (log-level=%s dry-run=%v)", *logLevel, *dryRun)

	cfg := config.EmptyPipelineConfig()
	if *configPath != "" {
		loaded, err := config.LoadPipelineConfig(*configPath)
		if err != nil {
			log.Fatalf("loading config %q: %v", *configPath, err)
		}
		cfg = loaded
	}

	osfs := fsutil.OSFileSystem{}

	cameras, err := camera.LoadDir(osfs, *camerasDir)
	if err != nil {
		log.Fatalf("loading camera parameters from %q: %v", *camerasDir, err)
	}

	routeStore, loadErrs := route.LoadDir(osfs, *routesDir)
	for _, e := range loadErrs {
		monitoring.Logf("route load warning: %v", e)
	}

	var det detector.Detector
	switch {
	case *dryRun || *detectorDir != "":
		dir := *detectorDir
		if dir == "" {
			dir = "detections"
		}
		replay := detector.NewReplay(osfs, dir)
		replay.Threshold = cfg.GetConfidenceThreshold()
		det = replay
	default:
		log.Fatalf("no detector configured: pass -detector or -dry-run")
	}

	clock := timeutil.RealClock{}

	cameraIDs := make([]string, 0, len(cameras))
	for id := range cameras {
		cameraIDs = append(cameraIDs, id)
	}
	source := framesource.New(osfs, clock, *recordingsDir, cameraIDs, framesource.DefaultConfig())

	tri := triangulate.New(cameras, triangulate.Config{
		FlockPixelMergeDistance: cfg.GetDistanceThreshold(),
		FlockWorldMergeDistance: cfg.GetDistanceThreshold(),
	})

	tracker := session.New(session.Config{
		PositionJumpThreshold:  cfg.GetPositionJumpThreshold(),
		JumpDurationThreshold:  cfg.GetJumpDurationThreshold(),
		MinSessionLength:       cfg.GetMinSessionLength(),
		CleaningSpeedThreshold: 120,
		SmoothingWindow:        3,
	})

	riskEngine := risk.New(risk.Config{
		NominalAltitude:    cfg.GetNominalAltitude(),
		Epsilon:            cfg.GetRiskEpsilon(),
		DowngradeThreshold: cfg.GetDowngradeThreshold(),
		AssignedRoute:      "Path_A",
	}, routeStore)

	var tcp *tcpclient.Client
	if !*dryRun {
		host := cfg.GetTCPHost()
		if *tcpHost != "" {
			host = *tcpHost
		}
		port := cfg.GetTCPPort()
		if *tcpPort != 0 {
			port = *tcpPort
		}
		tcp = tcpclient.New(tcpclient.Config{
			Host:            host,
			Port:            port,
			MinSendInterval: time.Duration(cfg.GetMinSendIntervalSeconds() * float64(time.Second)),
			ConnectTimeout:  5 * time.Second,
			ReconnectDelay:  5 * time.Second,
			HeartbeatPeriod: 30 * time.Second,
			QueueCapacity:   64,
		}, clock)
	}

	orch := pipeline.New(pipeline.Config{
		FrameSkip:          cfg.GetFrameSkip(),
		ProcessingQueueCap: 10,
	}, source.Out, det, tri, tracker, riskEngine, tcp, clock)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	go source.Run(ctx)

	if err := orch.Run(ctx); err != nil {
		log.Fatalf("pipeline terminated with error: %v", err)
	}

	monitoring.Logf("birdstrike pipeline shut down cleanly")
	os.Exit(0)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	monitoring.Logf("serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		monitoring.Logf("metrics server stopped: %v", err)
	}
}
