package gc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/flashsim/ssd"
)

var _ = Describe("Policies under random writes", func() {
	type factory func(dev *ssd.Device) Policy

	pure := func(dev *ssd.Device) Policy {
		return MakeGreedyBuilder().WithDevice(dev).Build("greedy")
	}
	sampled := func(dev *ssd.Device) Policy {
		return MakeGreedyBuilder().
			WithDevice(dev).
			WithSampleSize(4).
			WithRand(newRand(99)).
			Build("greedy-k4")
	}
	accumulator := func(dev *ssd.Device) Policy {
		return MakeGreedyBuilder().
			WithDevice(dev).
			WithAccumulator(true).
			Build("greedy-s2r")
	}
	multiStream := func(dev *ssd.Device) Policy {
		return MakeMultiStreamBuilder().
			WithDevice(dev).
			WithStreams(3).
			Build("multistream-g3")
	}

	DescribeTable("should keep the mapping consistent",
		func(newPolicy factory, bufferFraction float64, seed uint64) {
			dev := ssd.MakeBuilder().
				WithCapacity(1 * ssd.MiB).
				WithBlockSize(4 * ssd.KiB).
				WithPageSize(1 * ssd.KiB).
				WithFillRatio(0.75).
				WithWriteBufferFraction(bufferFraction).
				Build("SSD")
			p := newPolicy(dev)
			rng := newRand(seed)

			fillSequential(p, dev)
			for i := 0; i < 5000; i++ {
				p.WritePage(ssd.LogicalPageID(
					rng.Uint64N(dev.LogicalPageCount())))

				if i%500 == 0 {
					Expect(dev.CheckInvariants()).To(Succeed())
				}
			}

			if f, ok := p.(Flusher); ok {
				f.Flush()
			}

			Expect(dev.CheckInvariants()).To(Succeed())
			Expect(dev.StagedPageCount()).To(BeZero())

			live := uint64(0)
			for _, b := range dev.Blocks() {
				live += b.ValidCount()
			}
			Expect(live).To(Equal(dev.LogicalPageCount()))

			for page := uint64(0); page < dev.LogicalPageCount(); page++ {
				_, ok := dev.Resolve(ssd.LogicalPageID(page))
				Expect(ok).To(BeTrue())
			}

			st := p.Stats()
			Expect(st.GCInvocations).To(BeNumerically(">", 0))
			Expect(st.BlocksFreed).To(Equal(st.GCInvocations))
			Expect(st.HostWrites).To(Equal(dev.LogicalPageCount() + 5000))
		},
		Entry("pure greedy", factory(pure), 0.0, uint64(1)),
		Entry("sampled greedy", factory(sampled), 0.0, uint64(2)),
		Entry("accumulator", factory(accumulator), 0.0, uint64(3)),
		Entry("multi-stream", factory(multiStream), 0.0, uint64(4)),
		Entry("pure greedy with a write buffer", factory(pure), 0.02, uint64(5)),
		Entry("multi-stream with a write buffer",
			factory(multiStream), 0.02, uint64(6)),
	)
})
