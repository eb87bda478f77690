package gc

import (
	"fmt"
	"math/rand/v2"

	"github.com/sarchlab/flashsim/ssd"
)

// A VictimSelector returns the next block to reclaim. It panics if no block
// is GC-eligible.
type VictimSelector func() ssd.BlockID

// maxRejections bounds the number of uniform draws over all blocks before a
// sampled selector falls back to drawing from the list of eligible blocks.
const maxRejections = 64

// GreedySelector picks the GC-eligible block with the fewest valid pages.
// Ties go to the lowest block id. Blocks listed in exclude are never picked.
func GreedySelector(dev *ssd.Device, exclude ...ssd.BlockID) VictimSelector {
	skip := make(map[ssd.BlockID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	return func() ssd.BlockID {
		id, found := minValid(dev, func(b *ssd.Block) bool {
			return !skip[b.ID()]
		})

		if !found {
			panic(starvation(dev))
		}

		return id
	}
}

// SampledSelector draws k GC-eligible blocks uniformly at random, with
// replacement, and picks the one with the fewest valid pages. Ties go to the
// earliest sample.
func SampledSelector(dev *ssd.Device, k int, rng *rand.Rand) VictimSelector {
	if k <= 0 {
		panic("sample size must be positive")
	}

	if rng == nil {
		panic("sampled selection requires a random source")
	}

	return func() ssd.BlockID {
		var eligible []ssd.BlockID

		best := dev.Block(sampleEligible(dev, rng, &eligible))
		for i := 1; i < k; i++ {
			b := dev.Block(sampleEligible(dev, rng, &eligible))
			if b.ValidCount() < best.ValidCount() {
				best = b
			}
		}

		return best.ID()
	}
}

// sampleEligible draws one GC-eligible block uniformly. It first tries plain
// rejection sampling and, if that keeps missing, collects the eligible blocks
// into *eligible once and draws from them.
func sampleEligible(
	dev *ssd.Device,
	rng *rand.Rand,
	eligible *[]ssd.BlockID,
) ssd.BlockID {
	if *eligible == nil {
		for i := 0; i < maxRejections; i++ {
			id := ssd.BlockID(rng.Uint64N(dev.BlockCount()))
			if dev.Block(id).IsGCEligible() {
				return id
			}
		}

		*eligible = collectEligible(dev)
	}

	if len(*eligible) == 0 {
		panic(starvation(dev))
	}

	return (*eligible)[rng.IntN(len(*eligible))]
}

func collectEligible(dev *ssd.Device) []ssd.BlockID {
	ids := make([]ssd.BlockID, 0)

	for _, b := range dev.Blocks() {
		if b.IsGCEligible() {
			ids = append(ids, b.ID())
		}
	}

	return ids
}

// minValid scans the eligible blocks accepted by filter and returns the one
// with the fewest valid pages, lowest id first.
func minValid(
	dev *ssd.Device,
	filter func(*ssd.Block) bool,
) (ssd.BlockID, bool) {
	var best *ssd.Block

	for _, b := range dev.Blocks() {
		if !b.IsGCEligible() || !filter(b) {
			continue
		}

		if best == nil || b.ValidCount() < best.ValidCount() {
			best = b
		}
	}

	if best == nil {
		return 0, false
	}

	return best.ID(), true
}

func starvation(dev *ssd.Device) string {
	return fmt.Sprintf("%s: no GC-eligible block, the free pool is starved",
		dev.Name())
}
