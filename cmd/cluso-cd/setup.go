package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dd0wney/cluso-cd/pkg/checkpoint"
	"github.com/dd0wney/cluso-cd/pkg/comm"
	"github.com/dd0wney/cluso-cd/pkg/config"
	"github.com/dd0wney/cluso-cd/pkg/logging"
	"github.com/dd0wney/cluso-cd/pkg/metrics"
	"github.com/dd0wney/cluso-cd/pkg/network"
	"github.com/dd0wney/cluso-cd/pkg/process"
	"github.com/dd0wney/cluso-cd/pkg/solver"
)

// runEnv is shared by every partition of one command: the configuration, the
// logger, the metrics registry and the checkpoint store.
type runEnv struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics *metrics.Registry
	store   checkpoint.Store
}

// loadConfig reads the file named by the positional argument or --config,
// falling back to the defaults.
func loadConfig(args []string) (*config.Config, error) {
	path := configPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

func newRunEnv(ctx context.Context, cfg *config.Config, logOut io.Writer) (*runEnv, error) {
	level := cfg.Level()
	if logLevel != "" {
		level = logging.ParseLevel(logLevel)
	}
	env := &runEnv{
		cfg:     cfg,
		logger:  logging.NewJSONLogger(logOut, level),
		metrics: metrics.NewRegistry(),
	}
	store, err := env.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	env.store = store
	return env, nil
}

func (e *runEnv) openStore(ctx context.Context) (checkpoint.Store, error) {
	opts := []checkpoint.Option{checkpoint.WithLogger(e.logger), checkpoint.WithMetrics(e.metrics)}
	c := e.cfg.Checkpoint
	switch c.Driver {
	case "", config.CheckpointNone:
		return nil, nil
	case config.CheckpointMemory:
		return checkpoint.NewMemStore(opts...), nil
	case config.CheckpointFile:
		fs, err := checkpoint.NewFileStore(c.Dir, opts...)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case config.CheckpointS3:
		client, err := checkpoint.NewS3Client(ctx, c.S3)
		if err != nil {
			return nil, err
		}
		s3, err := checkpoint.NewS3Store(client, c.S3.Bucket, c.S3.Prefix, opts...)
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint driver %q", c.Driver)
	}
}

func (e *runEnv) buildNetwork() (*network.Network, error) {
	net, err := network.Build(e.cfg.Properties(), nil,
		network.WithLogger(e.logger),
		network.WithMetrics(e.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build network: %w", err)
	}
	return net, nil
}

// newHandler builds one partition's network and process handlers from the
// configuration. Partitions never share a network.
func (e *runEnv) newHandler(r comm.Reducer) (*solver.Handler1D, error) {
	cfg := e.cfg
	net, err := e.buildNetwork()
	if err != nil {
		return nil, err
	}
	temp, err := cfg.TemperatureHandler()
	if err != nil {
		return nil, err
	}
	profile, err := cfg.FluxProfile()
	if err != nil {
		return nil, err
	}
	flux := process.NewIncidentFlux(cfg.Flux.Amplitude)
	if len(profile) > 0 {
		flux.WithProfile(profile)
	}

	opts := solver.Options{
		Network:      net,
		Temperature:  temp,
		Nx:           cfg.Grid.Nx,
		Hx:           cfg.Grid.Hx,
		Regular:      cfg.Grid.Regular,
		VoidPortion:  cfg.VoidPortion,
		InitialVConc: cfg.InitialVConc,
		Flux:         flux,
		Reactions:    cfg.Enabled(config.ProcessReaction),
		Store:        e.store,
		Reducer:      r,
		Logger:       e.logger,
		Metrics:      e.metrics,
	}
	if cfg.Enabled(config.ProcessDiffusion) {
		opts.Diffusion = process.NewDiffusion()
	}
	if cfg.Enabled(config.ProcessAdvection) {
		opts.Advection = []*process.Advection{process.NewAdvection(0, nil)}
	}
	if cfg.Enabled(config.ProcessTrapMutation) {
		opts.TrapMutation = process.NewTrapMutation(nil, cfg.Enabled(config.ProcessAttenuation))
	}
	if cfg.Enabled(config.ProcessBursting) {
		opts.Bursting = process.NewBursting()
	}
	return solver.NewHandler1D(opts)
}
