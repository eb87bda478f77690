package simulation

import (
	"fmt"
	"io"
	"log"
	"math/rand/v2"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"

	"github.com/sarchlab/flashsim/config"
	"github.com/sarchlab/flashsim/datarecording"
	"github.com/sarchlab/flashsim/metrics"
	"github.com/sarchlab/flashsim/monitoring"
	"github.com/sarchlab/flashsim/sim/hooking"
	"github.com/sarchlab/flashsim/ssd"
	"github.com/sarchlab/flashsim/workload"
)

const seedMix = 0x9e3779b97f4a7c15

// Builder can be used to build a simulation.
type Builder struct {
	cfg          config.Config
	source       workload.Source
	dataRecorder datarecording.DataRecorder
	monitor      *monitoring.Monitor
	registry     prometheus.Registerer
	logger       *log.Logger
	deviceHooks  []hooking.Hook
}

// MakeBuilder creates a new builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg:    *config.Default(),
		logger: log.New(io.Discard, "", 0),
	}
}

// WithConfig sets the configuration of the simulation.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithSource replaces the workload selected by the configuration.
func (b Builder) WithSource(source workload.Source) Builder {
	b.source = source
	return b
}

// WithDataRecorder sets where the repetition reports are recorded.
func (b Builder) WithDataRecorder(r datarecording.DataRecorder) Builder {
	b.dataRecorder = r
	return b
}

// WithMonitor sets the monitor that shows the progress of the simulation.
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

// WithRegistry sets where the metrics of the simulation are registered.
func (b Builder) WithRegistry(r prometheus.Registerer) Builder {
	b.registry = r
	return b
}

// WithLogger sets the logger receiving the repetition reports.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithDeviceHook registers a hook on the simulated device.
func (b Builder) WithDeviceHook(hook hooking.Hook) Builder {
	b.deviceHooks = append(append([]hooking.Hook(nil), b.deviceHooks...), hook)
	return b
}

// Build creates the device, the GC policy and the workload of the
// simulation.
func (b Builder) Build(name string) (*Simulation, error) {
	if err := config.Validate(&b.cfg); err != nil {
		return nil, err
	}

	s := &Simulation{
		id:           xid.New().String(),
		cfg:          b.cfg,
		dataRecorder: b.dataRecorder,
		monitor:      b.monitor,
		logger:       b.logger,
	}

	devBuilder := ssd.MakeBuilder().
		WithCapacity(b.cfg.Device.Capacity.Uint64()).
		WithBlockSize(b.cfg.Device.EraseSize.Uint64()).
		WithPageSize(b.cfg.Device.PageSize.Uint64()).
		WithFillRatio(b.cfg.Device.Fill).
		WithWriteBufferFraction(b.cfg.Device.WriteBuffer)
	for _, h := range b.deviceHooks {
		devBuilder = devBuilder.WithHook(h)
	}

	s.dev = devBuilder.Build(name)
	if s.dev.LogicalPageCount() == 0 {
		return nil, fmt.Errorf("%s exposes no logical page", name)
	}

	seed := b.cfg.Workload.Seed
	s.rng = rand.New(rand.NewPCG(seed, seed^seedMix))

	policy, err := NewPolicy(b.cfg.Policy.Name, s.dev, s.rng)
	if err != nil {
		return nil, err
	}

	s.policy = policy

	s.source = b.source
	if s.source == nil {
		s.source, err = workload.Parse(b.cfg.Workload.Pattern, s.dev.LogicalPageCount())
		if err != nil {
			return nil, err
		}

		s.parsed = true
	}

	s.metrics = metrics.NewMetrics(b.registry, policy.Name())
	s.dev.AcceptHook(s.metrics)
	s.policy.AcceptHook(s.metrics)

	return s, nil
}
