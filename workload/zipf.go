package workload

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sarchlab/flashsim/ssd"
)

// Zipf writes page i with a probability proportional to 1/(i+1)^s. Page 0 is
// the hottest. Samples are drawn by rejection-inversion (Hörmann and
// Derflinger, 1996), which works for any positive exponent and needs no
// table.
type Zipf struct {
	pages    uint64
	exponent float64

	hIntegralX1 float64
	hIntegralN  float64
	s           float64
}

// NewZipf creates a Zipf source with the given exponent.
func NewZipf(pages uint64, exponent float64) *Zipf {
	mustHavePages(pages)

	if exponent <= 0 {
		panic("zipf exponent must be positive")
	}

	z := &Zipf{pages: pages, exponent: exponent}
	z.hIntegralX1 = z.hIntegral(1.5) - 1
	z.hIntegralN = z.hIntegral(float64(pages) + 0.5)
	z.s = 2 - z.hIntegralInverse(z.hIntegral(2.5)-z.h(2))

	return z
}

// Next returns a Zipf-distributed page.
func (z *Zipf) Next(rng *rand.Rand) ssd.LogicalPageID {
	for {
		u := z.hIntegralN + rng.Float64()*(z.hIntegralX1-z.hIntegralN)
		x := z.hIntegralInverse(u)

		k := math.Floor(x + 0.5)
		if k < 1 {
			k = 1
		} else if k > float64(z.pages) {
			k = float64(z.pages)
		}

		if k-x <= z.s || u >= z.hIntegral(k+0.5)-z.h(k) {
			return ssd.LogicalPageID(uint64(k) - 1)
		}
	}
}

// Name returns "zipf:<exponent>".
func (z *Zipf) Name() string {
	return fmt.Sprintf("zipf:%.2f", z.exponent)
}

func (z *Zipf) h(x float64) float64 {
	return math.Exp(-z.exponent * math.Log(x))
}

func (z *Zipf) hIntegral(x float64) float64 {
	logX := math.Log(x)
	return expm1Ratio((1-z.exponent)*logX) * logX
}

func (z *Zipf) hIntegralInverse(x float64) float64 {
	t := x * (1 - z.exponent)
	if t < -1 {
		t = -1
	}

	return math.Exp(log1pRatio(t) * x)
}

// log1pRatio returns log(1+x)/x, continuous at 0.
func log1pRatio(x float64) float64 {
	if math.Abs(x) > 1e-8 {
		return math.Log1p(x) / x
	}

	return 1 - x*(0.5-x*(1.0/3.0-0.25*x))
}

// expm1Ratio returns (exp(x)-1)/x, continuous at 0.
func expm1Ratio(x float64) float64 {
	if math.Abs(x) > 1e-8 {
		return math.Expm1(x) / x
	}

	return 1 + x*0.5*(1+x/3*(1+0.25*x))
}
