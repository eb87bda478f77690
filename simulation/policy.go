package simulation

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/sarchlab/flashsim/gc"
	"github.com/sarchlab/flashsim/ssd"
)

// NewPolicy builds the GC policy named name on dev. The random source is used
// by sampled victim selection.
func NewPolicy(name string, dev *ssd.Device, rng *rand.Rand) (gc.Policy, error) {
	switch {
	case name == "greedy":
		return gc.MakeGreedyBuilder().WithDevice(dev).Build(name), nil
	case name == "greedy-s2r":
		return gc.MakeGreedyBuilder().
			WithDevice(dev).
			WithAccumulator(true).
			Build(name), nil
	case strings.HasPrefix(name, "greedy-k"):
		k, err := positiveSuffix(name, "greedy-k")
		if err != nil {
			return nil, err
		}

		return gc.MakeGreedyBuilder().
			WithDevice(dev).
			WithSampleSize(k).
			WithRand(rng).
			Build(name), nil
	case strings.HasPrefix(name, "multistream-g"):
		g, err := positiveSuffix(name, "multistream-g")
		if err != nil {
			return nil, err
		}

		if uint64(2*g) >= dev.BlockCount() {
			return nil, fmt.Errorf("%s needs more than %d blocks, the device has %d",
				name, 2*g, dev.BlockCount())
		}

		return gc.MakeMultiStreamBuilder().
			WithDevice(dev).
			WithStreams(g).
			Build(name), nil
	default:
		return nil, fmt.Errorf("unknown GC policy %q", name)
	}
}

func positiveSuffix(name, prefix string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid GC policy %q: %s must be followed by a "+
			"positive integer", name, prefix)
	}

	return n, nil
}
