// Package simulation drives a GC policy with a host workload and reports the
// write amplification it causes.
package simulation

import (
	"context"
	"log"
	"math/rand/v2"
	"time"

	"github.com/sarchlab/flashsim/config"
	"github.com/sarchlab/flashsim/datarecording"
	"github.com/sarchlab/flashsim/gc"
	"github.com/sarchlab/flashsim/metrics"
	"github.com/sarchlab/flashsim/monitoring"
	"github.com/sarchlab/flashsim/ssd"
	"github.com/sarchlab/flashsim/workload"
)

type freeLister interface {
	FreeList() *gc.FreeList
}

// A Simulation runs one benchmark: it fills the device sequentially,
// optionally warms it up with the workload, and then measures the write
// amplification over a number of repetitions.
type Simulation struct {
	id  string
	cfg config.Config

	dev    *ssd.Device
	policy gc.Policy
	source workload.Source
	parsed bool
	rng    *rand.Rand

	dataRecorder datarecording.DataRecorder
	monitor      *monitoring.Monitor
	metrics      *metrics.Metrics
	logger       *log.Logger
}

// ID returns the identifier of the run, used as the hash of its records.
func (s *Simulation) ID() string {
	return s.id
}

// Device returns the simulated device.
func (s *Simulation) Device() *ssd.Device {
	return s.dev
}

// Policy returns the GC policy under test.
func (s *Simulation) Policy() gc.Policy {
	return s.policy
}

// Source returns the workload.
func (s *Simulation) Source() workload.Source {
	return s.source
}

// WritesPerRep returns the number of host writes in a repetition.
func (s *Simulation) WritesPerRep() uint64 {
	n := uint64(float64(s.dev.LogicalPageCount()) / s.cfg.Run.PrintEvery)
	if n == 0 {
		n = 1
	}

	return n
}

// NumReps returns the number of repetitions of the run.
func (s *Simulation) NumReps() uint64 {
	total := uint64(s.cfg.Run.DriveWrites * float64(s.dev.LogicalPageCount()))
	return total / s.WritesPerRep()
}

// Run executes the benchmark. It stops between two repetitions once ctx is
// done and returns the summary of the repetitions that completed.
func (s *Simulation) Run(ctx context.Context) (Summary, error) {
	summary := Summary{WritesPerRep: s.WritesPerRep()}

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	start := time.Now()

	s.fill()
	if s.cfg.Run.InitLoad {
		summary.InitWAF = s.load()
		s.logger.Printf("Init WA: %.6f", summary.InitWAF)
	}

	s.dev.ResetPhysicalWrites()
	s.dev.ResetGCAttribution()
	s.policy.ResetStats()

	if s.dataRecorder != nil {
		s.dataRecorder.CreateTable(RecordTable, Record{})
		defer s.dataRecorder.Flush()
	}

	numReps := s.NumReps()

	var bar *monitoring.ProgressBar
	if s.monitor != nil {
		bar = s.monitor.CreateProgressBar(s.policy.Name(), numReps)
		defer s.monitor.CompleteProgressBar(bar)
	}

	s.logger.Print("sim,hash,prefix,ssdwrites,rep,time,capacity,erase," +
		"pagesize,pattern,ssdFill,gc,freePercent,runningWAF,cumulativeWAF")

	for rep := uint64(0); rep < numReps; rep++ {
		if err := ctx.Err(); err != nil {
			summary.Seconds = time.Since(start).Seconds()
			return summary, err
		}

		if s.cfg.Run.SwitchDist && rep == numReps/2 {
			s.switchSource()
		}

		if bar != nil {
			bar.IncrementInProgress(1)
		}

		s.repeat(rep, start, &summary)

		if bar != nil {
			bar.MoveInProgressToFinished(1)
		}
	}

	if f, ok := s.policy.(gc.Flusher); ok {
		f.Flush()
	}

	summary.Seconds = time.Since(start).Seconds()

	return summary, nil
}

// fill writes every logical page once, in order.
func (s *Simulation) fill() {
	for page := uint64(0); page < s.dev.LogicalPageCount(); page++ {
		s.policy.WritePage(ssd.LogicalPageID(page))
	}
}

// load writes as many pages as the device physically holds and returns the
// write amplification of the fill and the load together, relative to the
// logical capacity.
func (s *Simulation) load() float64 {
	for i := uint64(0); i < s.dev.PhysicalPageCount(); i++ {
		s.policy.WritePage(s.source.Next(s.rng))
	}

	return float64(s.dev.PhysicalWrites()) / float64(s.dev.LogicalPageCount())
}

// switchSource starts the workload over from a random place in the address
// space. A workload built from the pattern is rebuilt first.
func (s *Simulation) switchSource() {
	pages := s.dev.LogicalPageCount()

	src := s.source
	if s.parsed {
		fresh, err := workload.Parse(s.cfg.Workload.Pattern, pages)
		if err != nil {
			panic(err)
		}

		src = fresh
	}

	offset := s.rng.Uint64N(pages)
	s.source = workload.NewShifted(src, pages, offset)
	s.logger.Printf("switch,%s,offset=%d", s.source.Name(), offset)
}

func (s *Simulation) repeat(rep uint64, start time.Time, summary *Summary) {
	writesPerRep := s.WritesPerRep()
	for i := uint64(0); i < writesPerRep; i++ {
		s.policy.WritePage(s.source.Next(s.rng))
	}

	phys := s.dev.PhysicalWrites()
	stats := s.policy.Stats()

	summary.Reps++
	summary.HostWrites += stats.HostWrites
	summary.PhysicalWrites += phys
	summary.GCInvocations += stats.GCInvocations
	summary.PagesRelocated += stats.PagesRelocated
	summary.CumulativeWAF =
		float64(summary.PhysicalWrites) / float64(summary.HostWrites)

	free := 0
	if fl, ok := s.policy.(freeLister); ok {
		free = fl.FreeList().Len()
	}

	record := Record{
		Prefix:        s.cfg.Run.Prefix,
		Hash:          s.id,
		DriveWrites:   float64(rep) / s.cfg.Run.PrintEvery,
		Rep:           rep,
		Time:          time.Since(start).Seconds(),
		Capacity:      s.dev.CapacityBytes(),
		Erase:         s.dev.BlockSizeBytes(),
		PageSize:      s.dev.PageSizeBytes(),
		Pattern:       s.source.Name(),
		Fill:          s.dev.FillRatio(),
		GC:            s.policy.Name(),
		FreePercent:   100 * float64(free) / float64(s.dev.BlockCount()),
		RunningWAF:    float64(phys) / float64(writesPerRep),
		CumulativeWAF: summary.CumulativeWAF,
	}

	s.report(record, stats, free)

	s.dev.ResetPhysicalWrites()
	s.policy.ResetStats()
}

func (s *Simulation) report(r Record, stats gc.Stats, free int) {
	s.logger.Printf("bench,%s,'%s',%.2f,%d,%.2f,%d,%d,%d,'%s',%.4f,%s,%.4f,%.5f,%.5f",
		r.Hash, r.Prefix, r.DriveWrites, r.Rep, r.Time,
		r.Capacity, r.Erase, r.PageSize, r.Pattern, r.Fill, r.GC,
		r.FreePercent, r.RunningWAF, r.CumulativeWAF)
	s.logger.Printf("gc,%s,invocations=%d,freed=%d,relocated=%d",
		r.GC, stats.GCInvocations, stats.BlocksFreed, stats.PagesRelocated)

	if s.dataRecorder != nil {
		s.dataRecorder.InsertData(RecordTable, r)
	}

	s.metrics.ObserveRepetition(metrics.Repetition{
		HostWrites:     stats.HostWrites,
		PhysicalWrites: s.dev.PhysicalWrites(),
		FreeBlocks:     free,
		RunningWA:      r.RunningWAF,
		CumulativeWA:   r.CumulativeWAF,
	})

	if s.monitor != nil {
		s.monitor.ReportDevice(s.dev, r.GC, free)
	}
}
