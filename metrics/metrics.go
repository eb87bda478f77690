// Package metrics exports simulation counters as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarchlab/flashsim/gc"
	"github.com/sarchlab/flashsim/sim/hooking"
	"github.com/sarchlab/flashsim/ssd"
)

const namespace = "flashsim"

// Label constants for metrics.
const (
	LabelPolicy = "policy"
	LabelKind   = "kind"
)

// Kinds of block-level events.
const (
	KindCompacted = "compacted"
	KindMoved     = "moved"
)

// Metrics holds the collectors of one simulation. It is also a hook that can
// be attached to a device and to a GC policy.
type Metrics struct {
	policy string

	hostWrites     prometheus.Counter
	physicalWrites prometheus.Counter
	gcInvocations  *prometheus.CounterVec
	relocatedPages *prometheus.CounterVec
	erasedBlocks   prometheus.Counter
	repetitions    prometheus.Counter

	cumulativeWA prometheus.Gauge
	runningWA    prometheus.Gauge
	freeBlocks   prometheus.Gauge
}

// NewMetrics creates the collectors of a simulation running policy and
// registers them. If registry is nil, the metrics are created but not
// registered.
func NewMetrics(registry prometheus.Registerer, policy string) *Metrics {
	m := &Metrics{
		policy: policy,

		hostWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "host_writes_total",
			Help:      "Pages written by the host after the warm-up",
		}),

		physicalWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "physical_writes_total",
			Help:      "Pages programmed into flash after the warm-up",
		}),

		gcInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "invocations_total",
			Help:      "Number of GC invocations",
		}, []string{LabelPolicy}),

		relocatedPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "relocated_pages_total",
			Help:      "Valid pages rewritten by GC",
		}, []string{LabelKind}),

		erasedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "erased_blocks_total",
			Help:      "Number of block erasures",
		}),

		repetitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "repetitions_total",
			Help:      "Number of completed repetitions",
		}),

		cumulativeWA: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "cumulative_write_amplification",
			Help:      "Write amplification since the warm-up ended",
		}),

		runningWA: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "running_write_amplification",
			Help:      "Write amplification of the last repetition",
		}),

		freeBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "free_blocks",
			Help:      "Erased blocks waiting in the free list",
		}),
	}

	if registry != nil {
		registry.MustRegister(
			m.hostWrites,
			m.physicalWrites,
			m.gcInvocations,
			m.relocatedPages,
			m.erasedBlocks,
			m.repetitions,
			m.cumulativeWA,
			m.runningWA,
			m.freeBlocks,
		)
	}

	return m
}

// Func counts device and policy events.
func (m *Metrics) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case ssd.HookPosBlockErased:
		m.erasedBlocks.Inc()
	case ssd.HookPosBlockCompacted:
		moved := ctx.Detail.(ssd.CompactionDetail).Moved
		m.relocatedPages.WithLabelValues(KindCompacted).Add(float64(moved))
	case ssd.HookPosPagesMoved:
		moved := ctx.Detail.(ssd.MoveDetail).Moved
		m.relocatedPages.WithLabelValues(KindMoved).Add(float64(moved))
	case gc.HookPosGCPerformed:
		m.gcInvocations.WithLabelValues(m.policy).Inc()
	}
}

// Repetition summarizes one repetition of a run.
type Repetition struct {
	HostWrites     uint64
	PhysicalWrites uint64
	FreeBlocks     int
	RunningWA      float64
	CumulativeWA   float64
}

// ObserveRepetition records the counters of a finished repetition.
func (m *Metrics) ObserveRepetition(r Repetition) {
	m.hostWrites.Add(float64(r.HostWrites))
	m.physicalWrites.Add(float64(r.PhysicalWrites))
	m.repetitions.Inc()

	m.runningWA.Set(r.RunningWA)
	m.cumulativeWA.Set(r.CumulativeWA)
	m.freeBlocks.Set(float64(r.FreeBlocks))
}
