package gc

import (
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/flashsim/ssd"
)

// smallDevice has 256 blocks of 4 pages.
func smallDevice(fill float64) *ssd.Device {
	return ssd.MakeBuilder().
		WithCapacity(1 * ssd.MiB).
		WithBlockSize(4 * ssd.KiB).
		WithPageSize(1 * ssd.KiB).
		WithFillRatio(fill).
		Build("SSD")
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

var _ = Describe("Victim selection", func() {
	var (
		dev *ssd.Device
	)

	BeforeEach(func() {
		dev = smallDevice(0.125)

		for p := ssd.LogicalPageID(0); p < 12; p++ {
			dev.WritePage(p, ssd.BlockID(p/4))
		}

		for _, p := range []ssd.LogicalPageID{0, 1, 4, 8} {
			dev.WritePage(p, 3)
		}
		dev.WritePage(9, 4)
	})

	Context("greedy", func() {
		It("should pick the minimum valid count, lowest id first", func() {
			Expect(GreedySelector(dev)()).To(Equal(ssd.BlockID(0)))
		})

		It("should skip excluded blocks", func() {
			Expect(GreedySelector(dev, 0)()).To(Equal(ssd.BlockID(2)))
			Expect(GreedySelector(dev, 0, 2)()).To(Equal(ssd.BlockID(1)))
		})

		It("should see changes made after it was created", func() {
			sel := GreedySelector(dev)

			dev.WritePage(2, 4)
			dev.WritePage(3, 4)

			Expect(sel()).To(Equal(ssd.BlockID(0)))
			Expect(dev.Block(0).ValidCount()).To(BeZero())
		})

		It("should panic when no block is eligible", func() {
			Expect(func() { GreedySelector(dev, 0, 1, 2)() }).To(Panic())
			Expect(func() { GreedySelector(smallDevice(0.125))() }).To(Panic())
		})
	})

	Context("sampled", func() {
		It("should only pick eligible blocks", func() {
			sel := SampledSelector(dev, 1, newRand(1))

			seen := make(map[ssd.BlockID]bool)
			for i := 0; i < 200; i++ {
				id := sel()
				Expect(dev.Block(id).IsGCEligible()).To(BeTrue())
				seen[id] = true
			}

			Expect(seen).To(HaveLen(3))
		})

		It("should converge to the minimum with a large sample", func() {
			sel := SampledSelector(dev, 200, newRand(2))

			for i := 0; i < 20; i++ {
				Expect(sel()).To(BeElementOf(ssd.BlockID(0), ssd.BlockID(2)))
			}
		})

		It("should be reproducible from the seed", func() {
			a := SampledSelector(dev, 2, newRand(42))
			b := SampledSelector(dev, 2, newRand(42))

			for i := 0; i < 50; i++ {
				Expect(a()).To(Equal(b()))
			}
		})

		It("should panic when no block is eligible", func() {
			sel := SampledSelector(smallDevice(0.125), 3, newRand(3))

			Expect(func() { sel() }).To(Panic())
		})

		It("should reject invalid arguments", func() {
			Expect(func() { SampledSelector(dev, 0, newRand(1)) }).To(Panic())
			Expect(func() { SampledSelector(dev, 2, nil) }).To(Panic())
		})
	})
})
