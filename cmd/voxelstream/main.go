package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/xlab/closer"

	"voxstream/internal/config"
	"voxstream/internal/debugdump"
	"voxstream/internal/logger"
	"voxstream/internal/megatexture/glstore"
	"voxstream/internal/procedural"
	"voxstream/internal/profiling"
	"voxstream/internal/streaming"
	"voxstream/internal/traversal"
)

// Set at build.
var version = "v0.1.0"

var _ = reflect.TypeOf(options{})

type options struct {
	Dataset         string        `cli:""        env:"VOXSTREAM_DATASET"          help:"Dataset descriptor (JSON). Empty runs the built-in procedural dataset."`
	Frames          int           `cli:""        env:"VOXSTREAM_FRAMES"           help:"Number of frames to run; 0 runs until interrupted."`
	FrameDuration   time.Duration `cli:""        env:"VOXSTREAM_FRAME_DURATION"   help:"Target duration of one frame."`
	Workers         int           `cli:""        env:"VOXSTREAM_WORKERS"          help:"Tile fetch goroutines; 0 fetches inline."`
	ViewportHeight  int           `cli:""        env:"VOXSTREAM_VIEWPORT_HEIGHT"  help:"Drawing buffer height in pixels."`
	OrbitRadius     float64       `cli:""        env:"VOXSTREAM_ORBIT_RADIUS"     help:"Camera orbit radius in dataset radii."`
	OrbitPeriod     time.Duration `cli:""        env:"VOXSTREAM_ORBIT_PERIOD"     help:"Time for one camera orbit."`
	KeyframeRate    float64       `cli:""        env:"VOXSTREAM_KEYFRAME_RATE"    help:"Keyframes advanced per second."`
	Spin            bool          `cli:""        env:"VOXSTREAM_SPIN"             help:"Rotate the dataset, recomputing bounds every frame."`
	MaxSSE          float64       `cli:""        env:"VOXSTREAM_MAX_SSE"          help:"Maximum screen-space error in pixels."`
	MaxRequests     int           `cli:""        env:"VOXSTREAM_MAX_REQUESTS"     help:"Tile requests per frame."`
	MaxRetries      int           `cli:""        env:"VOXSTREAM_MAX_RETRIES"      help:"Retries of a failed tile."`
	GL              bool          `cli:""        env:"VOXSTREAM_GL"               help:"Keep megatextures in OpenGL buffers (opens a hidden window)."`
	OccupancyDump   string        `cli:""        env:"VOXSTREAM_OCCUPANCY_DUMP"   help:"Write a BMP of megatexture occupancy here on exit."`
	MetricsAddr     string        `cli:""        env:"VOXSTREAM_METRICS_ADDR"     help:"Serve Prometheus metrics on this address."`
	SlowFrame       time.Duration `cli:",hidden" env:"VOXSTREAM_SLOW_FRAME"       help:"Frames slower than this log a profile."`
	Seed            int           `cli:",hidden" env:"VOXSTREAM_SEED"             help:"Procedural noise seed."`
	ProviderLatency time.Duration `cli:",hidden" env:"VOXSTREAM_PROVIDER_LATENCY" help:"Simulated fetch latency."`
	LogLevel        string        `cli:""        env:"VOXSTREAM_LOG_LEVEL"        help:"Log level (debug|info|warning|error)."`
	Version         bool          `cli:""        env:"-"                          help:"Show version."`
	Help            bool          `cli:""        env:"-"                          help:"Show help."`
}

func init() {
	// GL calls must stay on the main thread.
	runtime.LockOSThread()
}

func main() {
	opts := options{
		FrameDuration:   time.Second / 60,
		Workers:         4,
		ViewportHeight:  1080,
		OrbitRadius:     3,
		OrbitPeriod:     20 * time.Second,
		KeyframeRate:    0.5,
		MaxSSE:          traversal.DefaultTuning.MaximumScreenSpaceError,
		MaxRequests:     traversal.DefaultTuning.MaxRequestsPerFrame,
		MaxRetries:      traversal.DefaultTuning.MaxRetries,
		SlowFrame:       8 * time.Millisecond,
		Seed:            1,
		ProviderLatency: 5 * time.Millisecond,
		LogLevel:        logrus.InfoLevel.String(),
	}

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Streams a voxel dataset into bounded megatextures along an orbiting camera.").
		Options(&opts)
	cli.Load()

	if opts.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	// signals are handled through ctx; closer only runs the cleanups
	closer.Init(closer.Config{
		ExitCodeOK:  0,
		ExitCodeErr: 1,
		ExitSignals: []os.Signal{syscall.SIGABRT},
	})

	if err := logger.SetLevel(opts.LogLevel); err != nil {
		logger.L.WithError(err).Fatal("invalid log level")
	}

	if err := run(ctx, opts); err != nil {
		logger.L.WithError(err).Error("voxelstream stopped")
		closer.Exit(1)
	}
	closer.Close()
}

func loadDataset(opts options) (*config.Dataset, error) {
	if opts.Dataset == "" {
		return config.DefaultDataset(), nil
	}
	return config.LoadDataset(opts.Dataset)
}

func run(ctx context.Context, opts options) error {
	dataset, err := loadDataset(opts)
	if err != nil {
		return err
	}

	config.SetMaximumScreenSpaceError(opts.MaxSSE)
	config.SetMaxRequestsPerFrame(opts.MaxRequests)
	config.SetMaxRetries(opts.MaxRetries)

	box, err := dataset.NewShape()
	if err != nil {
		return errors.Wrap(err, "dataset shape")
	}
	trOpts, err := dataset.TraversalOptions()
	if err != nil {
		return err
	}
	provChannels, err := dataset.ProceduralChannels()
	if err != nil {
		return err
	}

	var window *glWindow
	if opts.GL {
		window, err = openGLWindow()
		if err != nil {
			return errors.Wrap(err, "open gl window")
		}
		trOpts.NewStore = glstore.Factory()
	}

	provider := procedural.New(dataset.Dimensions, provChannels,
		procedural.WithSeed(int64(opts.Seed)),
		procedural.WithLatency(opts.ProviderLatency),
	)
	streamer := streaming.NewStreamer(provider, streaming.Options{
		Workers:    opts.Workers,
		QueueSize:  4 * opts.MaxRequests,
		MaxPending: 2 * opts.MaxRequests,
	})
	closer.Bind(streamer.Close)

	prof := profiling.New()
	trOpts.Profiler = prof
	tr, err := traversal.New(box, streamer, trOpts)
	if err != nil {
		if window != nil {
			window.Close()
		}
		return err
	}
	defer shutdown(tr, window, opts.OccupancyDump)

	if opts.MetricsAddr != "" {
		serveMetrics(opts.MetricsAddr)
	}

	logger.L.WithFields(logrus.Fields{
		"version":   version,
		"engine":    tr.ID(),
		"keyframes": dataset.Keyframes,
		"levels":    dataset.MaximumLevel,
		"capacity":  tr.Megatextures()[0].Capacity(),
		"gl":        opts.GL,
	}).Info("starting voxelstream")

	model := box.ModelMatrix()
	minBounds, maxBounds := boundsOf(dataset)
	radius := opts.OrbitRadius * box.OrientedBoundingBox().HalfExtents().Len()

	limiter := newFrameLimiter(opts.FrameDuration)
	start := time.Now()
	lastSummary := start
	for frame := uint64(1); opts.Frames == 0 || frame <= uint64(opts.Frames); frame++ {
		select {
		case <-ctx.Done():
			logger.L.Info("interrupted")
			return nil
		default:
		}
		if window != nil && window.ShouldClose() {
			return nil
		}

		frameStart := time.Now()
		elapsed := frameStart.Sub(start)
		prof.ResetFrame()

		recompute := false
		if opts.Spin {
			angle := 2 * math.Pi * elapsed.Seconds() / opts.OrbitPeriod.Seconds() / 3
			if err := box.Update(spin(model, angle), minBounds, maxBounds); err != nil {
				return err
			}
			recompute = true
		}

		tr.SetTuning(config.Tuning())
		cam := orbitCamera(box.OrientedBoundingBox(), radius, opts.OrbitPeriod, elapsed, aspectRatio)
		fs := traversal.NewFrameState(cam, opts.ViewportHeight, 1, frame)
		location := math.Mod(elapsed.Seconds()*opts.KeyframeRate, float64(dataset.Keyframes))

		err := tr.Update(fs, location, recompute, false)
		switch {
		case errors.Is(err, traversal.ErrCapacityExhausted):
			logger.L.WithField("frame", frame).Warn(err)
		case err != nil:
			return err
		}

		if total := prof.Total(); total > opts.SlowFrame {
			logger.L.WithFields(logrus.Fields{
				"frame": frame,
				"total": total,
				"top":   prof.TopN(3),
			}).Warn("slow frame")
		}
		if time.Since(lastSummary) >= time.Second {
			lastSummary = time.Now()
			logSummary(tr)
		}

		if window != nil {
			window.SwapAndPoll()
		}
		limiter.Wait()
	}
	logSummary(tr)
	return nil
}

// shutdown releases the traversal and then the window. The megatextures may
// hold GL objects, so it must run on the main thread.
func shutdown(tr *traversal.Traversal, window *glWindow, occupancyDump string) {
	if occupancyDump != "" {
		if err := debugdump.WriteOccupancyFile(occupancyDump, tr, 4); err != nil {
			logger.L.WithError(err).Warn("occupancy dump failed")
		}
	}
	if err := tr.Close(); err != nil {
		logger.L.WithError(err).Warn("close traversal")
	}
	if window != nil {
		window.Close()
	}
}

func logSummary(tr *traversal.Traversal) {
	st := tr.Stats()
	fields := logrus.Fields{
		"frame":      st.FrameNumber,
		"nodes":      tr.NodeCount(),
		"candidates": st.Candidates,
		"resident":   len(tr.ResidentKeyframeNodes()),
		"waiting":    st.Waiting,
	}
	for _, mt := range tr.Megatextures() {
		fields[mt.Channel()] = fmt.Sprintf("%d/%d", mt.OccupiedCount(), mt.Capacity())
	}
	fallbacks := 0
	for _, c := range tr.RenderCandidates() {
		if c.Source == nil || c.Fallback() {
			fallbacks++
		}
	}
	fields["fallbacks"] = fallbacks
	logger.L.WithFields(fields).Info("streaming")
}

func serveMetrics(addr string) {
	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: &admin}
	closer.Bind(func() { _ = srv.Close() })
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.WithError(err).Error("metrics server")
		}
	}()
}
