// Command ckptsim runs the checkpoint/interference simulator described
// in celio.C: for each of several replications it builds one machine,
// then for every enabled interference model draws the workload afresh
// (System.Finalize), runs the model over it and prints one summary line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/config"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/event"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/fault"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/iomodel"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/metrics"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/planner"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/rng"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/sim"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/trace"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

// cieloAppClasses are the four (nb_cores, input_pct, output_pct,
// wall_seconds, io_pct, ckpt_pct, target_share) tuples celio.C bakes in,
// used whenever -config is absent.
var cieloAppClasses = []workload.AppClassSpec{
	{NbCores: 16384, InputPct: 0.03, OutputPct: 1.05, WallSeconds: 262.4 * 3600.0, IOPct: 0.0, CkptPct: 1.6, TargetShare: 0.6},
	{NbCores: 4096, InputPct: 0.05, OutputPct: 2.2, WallSeconds: 64.0 * 3600.0, IOPct: 0.0, CkptPct: 1.85, TargetShare: 0.05},
	{NbCores: 32768, InputPct: 0.7, OutputPct: 0.43, WallSeconds: 128.0 * 3600.0, IOPct: 0.05, CkptPct: 3.5, TargetShare: 0.15},
	{NbCores: 30000, InputPct: 0.1, OutputPct: 2.7, WallSeconds: 157.2 * 3600.0, IOPct: 20.0, CkptPct: 0.85, TargetShare: 0.1},
}

const (
	ignoreStartSeconds = 24.0 * 3600.0
	ignoreEndSeconds   = 24.9 * 3600.0
	segmentSeconds     = 31.0 * 24.0 * 3600.0
)

// options holds every flag celio.C exposes, plus the new ambient ones.
type options struct {
	seed             uint64
	bandwidth        float64
	mtbfSeconds      float64
	replications     uint
	fixedCkpt        float64
	disableCoop      bool
	disableFCFS      bool
	disableBlocking  bool
	disableNoInt     bool
	disableSimple    bool
	disableBaseline  bool
	suppressHeader   bool
	configPath       string
	pngPath          string
	metricsAddr      string
	verifyInvariants bool
}

func defaultSeed() uint64 {
	now := time.Now()
	return uint64(now.UnixMicro())*uint64(os.Getpid()) ^ uint64(now.Unix())
}

func parseFlags(args []string) options {
	fs := flag.NewFlagSet("ckptsim", flag.ExitOnError)
	var o options
	fs.Uint64Var(&o.seed, "s", defaultSeed(), "PRNG seed")
	fs.Float64Var(&o.bandwidth, "b", 1e12, "aggregate bandwidth, bytes/s")
	fs.Float64Var(&o.mtbfSeconds, "m", 86400, "system MTBF, seconds")
	var reps uint
	fs.UintVar(&reps, "n", 1, "number of replications")
	fs.Float64Var(&o.fixedCkpt, "c", -1, "fixed checkpoint interval, seconds (-1 = Daly)")
	fs.BoolVar(&o.disableCoop, "C", false, "disable the Coop run")
	fs.BoolVar(&o.disableFCFS, "F", false, "disable the FCFS run")
	fs.BoolVar(&o.disableBlocking, "BF", false, "disable the Blocking-FCFS run")
	fs.BoolVar(&o.disableNoInt, "N", false, "disable the NoInterference run")
	fs.BoolVar(&o.disableSimple, "S", false, "disable the Simple run")
	fs.BoolVar(&o.disableBaseline, "B", false, "disable the baseline run")
	fs.BoolVar(&o.suppressHeader, "H", false, "suppress the header line")
	fs.StringVar(&o.configPath, "config", "", "TOML machine/workload file (default: baked-in cielo demo)")
	fs.StringVar(&o.pngPath, "png", "", "write a PNG schedule trace of the first replication; every enabled model rewrites this one file, so it keeps the last model's trace")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics at this host:port (default: disabled)")
	fs.BoolVar(&o.verifyInvariants, "verify-invariants", false, "check planner invariants at the end of each model run, stopping at the first violation")
	if err := fs.Parse(args); err != nil {
		panic(errors.Wrap(err, "ckptsim: parsing flags"))
	}
	o.replications = reps
	return o
}

func main() {
	opts := parseFlags(os.Args[1:])

	logCfg := zap.NewProductionConfig()
	logCfg.Encoding = "console"
	logger, err := logCfg.Build()
	if err != nil {
		panic(errors.Wrap(err, "ckptsim: building logger"))
	}
	defer logger.Sync() //nolint:errcheck
	log := logger.Sugar().With("run", randomdata.SillyName())

	var recorder *metrics.Recorder
	if opts.metricsAddr != "" {
		recorder = metrics.New()
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		go func() {
			if err := recorder.Serve(ctx, opts.metricsAddr); err != nil {
				log.Errorw("metrics server stopped", "error", err)
			}
		}()
	}

	if err := run(opts, log, recorder); err != nil {
		log.Fatalw("ckptsim failed", "error", err)
	}
}

// modelRun names one of the six model variants a replication exercises,
// in the order celio.C runs them.
type modelRun struct {
	name     string
	disabled bool
	factory  func(q *event.Queue, mtbfInd simtime.Time) iomodel.Model
	faults   bool
}

func modelRuns(o options) []modelRun {
	return []modelRun{
		{
			name:     "baseline nofaultnoint",
			disabled: o.disableBaseline,
			factory:  func(q *event.Queue, _ simtime.Time) iomodel.Model { return iomodel.NewNoInterference(q) },
			faults:   false,
		},
		{
			name:     "Coop Interference",
			disabled: o.disableCoop,
			factory: func(q *event.Queue, mtbfInd simtime.Time) iomodel.Model {
				return iomodel.NewOrderedIOCoop(q, mtbfInd)
			},
			faults: true,
		},
		{
			name:     "FCFS Interference",
			disabled: o.disableFCFS,
			factory:  func(q *event.Queue, _ simtime.Time) iomodel.Model { return iomodel.NewOrderedIOFCFS(q) },
			faults:   true,
		},
		{
			name:     "BLOCKING_FCFS Interference",
			disabled: o.disableBlocking,
			factory:  func(q *event.Queue, _ simtime.Time) iomodel.Model { return iomodel.NewOrderedIOBlockingFCFS(q) },
			faults:   true,
		},
		{
			name:     "No Interference",
			disabled: o.disableNoInt,
			factory:  func(q *event.Queue, _ simtime.Time) iomodel.Model { return iomodel.NewNoInterference(q) },
			faults:   true,
		},
		{
			name:     "Simple Interference",
			disabled: o.disableSimple,
			factory:  func(q *event.Queue, _ simtime.Time) iomodel.Model { return iomodel.NewSimpleInterference(q) },
			faults:   true,
		},
	}
}

// buildConfig loads the machine/workload either from -config or the
// baked-in cielo demo, then applies -b/-m/-c overrides, which always win
// over either source.
func buildConfig(o options) (config.Config, float64, error) {
	var cfg config.Config
	var err error
	demo := o.configPath == ""
	if demo {
		cfg = config.Defaults()
	} else {
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return config.Config{}, 0, err
		}
	}

	cfg.System.Bandwidth = o.bandwidth
	cfg.System.MTBFSeconds = o.mtbfSeconds
	cfg.System.FixedCkptSeconds = o.fixedCkpt

	minRun := cfg.System.MinDurationSeconds
	if demo {
		minRun = 1.2*segmentSeconds + ignoreEndSeconds + ignoreStartSeconds
		cfg.System.MinDurationSeconds = minRun
		cfg.AppClasses = make([]config.AppClassConfig, len(cieloAppClasses))
		for i, spec := range cieloAppClasses {
			cfg.AppClasses[i] = config.AppClassConfig{
				NbCores:     spec.NbCores,
				InputPct:    spec.InputPct,
				OutputPct:   spec.OutputPct,
				WallSeconds: spec.WallSeconds,
				IOPct:       spec.IOPct,
				CkptPct:     spec.CkptPct,
				TargetShare: spec.TargetShare,
			}
		}
	}
	return cfg, minRun, nil
}

func run(o options, log *zap.SugaredLogger, recorder *metrics.Recorder) error {
	cfg, minRunSeconds, err := buildConfig(o)
	if err != nil {
		return err
	}
	demo := o.configPath == ""

	// Non-cielo configs have no meaningful "first/last 24h is startup
	// noise" window, so StatTrace keeps its own 10%/90% defaults; only
	// the baked-in demo uses celio.C's absolute ignore_start/ignore_end.
	var ignoreStart, ignoreEnd float64
	if demo {
		minRun := minRunSeconds
		ignoreStart = ignoreStartSeconds / minRun
		ignoreEnd = (minRun - ignoreEndSeconds) / minRun
	} else {
		ignoreStart, ignoreEnd = 0.1, 0.9
	}

	safetyCap := simtime.FromSeconds(20 * minRunSeconds)
	segment := simtime.FromSeconds(segmentSeconds)

	if !o.suppressHeader {
		fmt.Printf("## System: %s nodes=%d cores_per_node=%d bandwidth=%g\n", cfg.System.Name, cfg.System.Nodes, cfg.System.CoresPerNode, cfg.System.Bandwidth)
		for _, ac := range cfg.AppClasses {
			fmt.Printf("##  App Class: nb_cores=%d wall_seconds=%g target_share=%g\n", ac.NbCores, ac.WallSeconds, ac.TargetShare)
		}
	}

	seed := o.seed
	for rep := uint(0); rep < o.replications; rep++ {
		repLog := log.With("replication", uuid.NewString())

		sys, err := cfg.BuildSystem()
		if err != nil {
			return err
		}

		streams := rng.NewStreams(seed)
		statStream := rng.New(seed ^ 0xbeef)

		for _, mr := range modelRuns(o) {
			if mr.disabled {
				continue
			}
			if mr.name == "baseline nofaultnoint" {
				sys.SetFixedCheckpointInterval(2 * minRunSeconds)
			} else if o.fixedCkpt >= 0 {
				sys.SetFixedCheckpointInterval(o.fixedCkpt)
			} else {
				sys.SetDalyCheckpointInterval()
			}
			sys.Finalize(streams)

			png := ""
			if o.pngPath != "" && rep == 0 {
				png = o.pngPath
			}
			runStarted := time.Now()
			result, err := runModel(sys, mr, streams, statStream, segment, safetyCap, ignoreStart, ignoreEnd, png, o.verifyInvariants, repLog)
			if err != nil {
				return errors.Wrapf(err, "replication %d model %s", rep, mr.name)
			}

			if recorder != nil {
				recorder.RecordStat(result.stat)
				recorder.RecordReplication(time.Since(runStarted).Seconds(), result.converged)
			}
			printLine(mr.name, result, seed)
		}

		seed++
	}
	return nil
}

type modelResult struct {
	stat      trace.Stat
	converged bool
}

// runModel builds one replication's fresh queue/planner/fault machinery
// for the given model and runs it to completion or to the safety cap.
func runModel(
	sys *workload.System,
	mr modelRun,
	streams rng.Streams,
	statStream *rng.Stream,
	segment, safetyCap simtime.Time,
	ignoreStart, ignoreEnd float64,
	pngPath string,
	verify bool,
	log *zap.SugaredLogger,
) (modelResult, error) {
	q := event.NewQueue()
	p := planner.New(sys)
	model := mr.factory(q, sys.MTBFInd)

	var faults *fault.Generator
	var restarter *fault.Restarter
	if mr.faults {
		faults = fault.NewGenerator(q, streams.Fault, sys.NbNodes, sys.MTBFInd)
		restarter = fault.NewRestarter(q, p, sys)
	}

	st := trace.NewStatTrace()
	st.IgnoreStart = ignoreStart
	st.IgnoreEnd = ignoreEnd

	var tr trace.Trace = st
	var pngTrace *trace.PNGTrace
	var pngFile *os.File
	if pngPath != "" {
		var err error
		pngFile, err = os.Create(pngPath)
		if err != nil {
			return modelResult{}, errors.Wrap(err, "ckptsim: creating png file")
		}
		pngTrace = trace.NewPNGTrace(pngFile, sys.NbNodes, safetyCap, 1024)
		tr = trace.TeeTrace{Sinks: []trace.Trace{st, pngTrace}}
	}

	s := sim.New(sys, p, q, model, faults, restarter, tr, log.With("model", mr.name))
	converged := s.Run(safetyCap)

	if verify {
		if err := s.VerifyInvariants(); err != nil {
			return modelResult{}, err
		}
	}

	if err := tr.Close(); err != nil {
		return modelResult{}, errors.Wrap(err, "ckptsim: closing trace")
	}
	if pngFile != nil {
		if err := pngFile.Close(); err != nil {
			return modelResult{}, errors.Wrap(err, "ckptsim: closing png file")
		}
	}

	stat, err := st.GetStat(segment, statStream)
	if err != nil {
		return modelResult{}, errors.Wrap(err, "ckptsim: computing stat window")
	}
	return modelResult{stat: stat, converged: converged}, nil
}

func printLine(name string, r modelResult, seed uint64) {
	unit := float64(simtime.Unit)
	prefix := ""
	if !r.converged && name == "baseline nofaultnoint" {
		prefix = "#"
	}
	fmt.Printf("%s%s: WORK/IO/CKPT/WASTED/TOTAL (s.node) %g %g %g %g %g Seed: %d Convergence: %d\n",
		prefix, name,
		float64(r.stat.Work)/unit, float64(r.stat.IO)/unit, float64(r.stat.Ckpt)/unit, float64(r.stat.Wasted)/unit, float64(r.stat.Total)/unit,
		seed, boolToInt(r.converged))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
