// Package workload generates the sequence of logical pages written by the
// host.
package workload

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/sarchlab/flashsim/ssd"
)

// A Source decides which logical page the host writes next.
type Source interface {
	// Next returns the next logical page to write.
	Next(rng *rand.Rand) ssd.LogicalPageID

	// Name describes the access pattern, e.g. "zipf:0.90".
	Name() string
}

// Uniform writes every page with the same probability.
type Uniform struct {
	pages uint64
}

// NewUniform creates a Uniform source over pages logical pages.
func NewUniform(pages uint64) *Uniform {
	mustHavePages(pages)
	return &Uniform{pages: pages}
}

// Next returns a uniformly random page.
func (u *Uniform) Next(rng *rand.Rand) ssd.LogicalPageID {
	return ssd.LogicalPageID(rng.Uint64N(u.pages))
}

// Name returns "uniform".
func (u *Uniform) Name() string {
	return "uniform"
}

// Sequential writes the pages in order and wraps around.
type Sequential struct {
	pages uint64
	next  uint64
}

// NewSequential creates a Sequential source starting at page 0.
func NewSequential(pages uint64) *Sequential {
	mustHavePages(pages)
	return &Sequential{pages: pages}
}

// Next returns the page after the previous one.
func (s *Sequential) Next(_ *rand.Rand) ssd.LogicalPageID {
	p := s.next

	s.next++
	if s.next == s.pages {
		s.next = 0
	}

	return ssd.LogicalPageID(p)
}

// Name returns "sequential".
func (s *Sequential) Name() string {
	return "sequential"
}

// HotCold sends a share alpha of the writes to the first beta share of the
// pages and spreads the rest over the remaining pages.
type HotCold struct {
	pages       uint64
	hotPages    uint64
	alpha, beta float64
}

// NewHotCold creates a HotCold source. Both alpha and beta must be in (0, 1).
func NewHotCold(pages uint64, alpha, beta float64) *HotCold {
	mustHavePages(pages)

	if alpha <= 0 || alpha >= 1 || beta <= 0 || beta >= 1 {
		panic("alpha and beta must be in (0, 1)")
	}

	hot := uint64(float64(pages) * beta)
	if hot == 0 || hot == pages {
		panic(fmt.Sprintf("beta %.3f leaves an empty set of %d pages",
			beta, pages))
	}

	return &HotCold{pages: pages, hotPages: hot, alpha: alpha, beta: beta}
}

// Next returns a page from the hot set with probability alpha.
func (h *HotCold) Next(rng *rand.Rand) ssd.LogicalPageID {
	if rng.Float64() < h.alpha {
		return ssd.LogicalPageID(rng.Uint64N(h.hotPages))
	}

	return ssd.LogicalPageID(h.hotPages + rng.Uint64N(h.pages-h.hotPages))
}

// HotPages returns the size of the hot set.
func (h *HotCold) HotPages() uint64 {
	return h.hotPages
}

// Name returns "hotcold:<alpha>:<beta>".
func (h *HotCold) Name() string {
	return fmt.Sprintf("hotcold:%.2f:%.2f", h.alpha, h.beta)
}

// Shifted moves every page of another source by a fixed offset, wrapping
// around the end of the address space. The distribution keeps its shape
// while its hot pages land elsewhere.
type Shifted struct {
	inner  Source
	pages  uint64
	offset uint64
}

// NewShifted wraps inner so that page p becomes (p+offset) mod pages.
func NewShifted(inner Source, pages, offset uint64) *Shifted {
	mustHavePages(pages)
	return &Shifted{inner: inner, pages: pages, offset: offset % pages}
}

// Next returns the shifted page of the wrapped source.
func (s *Shifted) Next(rng *rand.Rand) ssd.LogicalPageID {
	p := uint64(s.inner.Next(rng))
	return ssd.LogicalPageID((p%s.pages + s.offset) % s.pages)
}

// Name returns the name of the wrapped source.
func (s *Shifted) Name() string {
	return s.inner.Name()
}

// Offset returns the distance pages are moved by.
func (s *Shifted) Offset() uint64 {
	return s.offset
}

// Parse creates a Source from a pattern description. Accepted forms are
// "uniform", "sequential", "zipf:<exponent>" and "hotcold:<alpha>:<beta>".
func Parse(pattern string, pages uint64) (Source, error) {
	if pages == 0 {
		return nil, fmt.Errorf("workload %q: no logical pages", pattern)
	}

	fields := strings.Split(strings.TrimSpace(strings.ToLower(pattern)), ":")

	args, err := parseArgs(fields[1:])
	if err != nil {
		return nil, fmt.Errorf("workload %q: %w", pattern, err)
	}

	switch fields[0] {
	case "uniform":
		if len(args) != 0 {
			return nil, fmt.Errorf("workload %q takes no argument", pattern)
		}

		return NewUniform(pages), nil
	case "sequential":
		if len(args) != 0 {
			return nil, fmt.Errorf("workload %q takes no argument", pattern)
		}

		return NewSequential(pages), nil
	case "zipf":
		if len(args) != 1 || args[0] <= 0 {
			return nil, fmt.Errorf(
				"workload %q needs one positive exponent", pattern)
		}

		return NewZipf(pages, args[0]), nil
	case "hotcold":
		if len(args) != 2 || !inOpenUnit(args[0]) || !inOpenUnit(args[1]) {
			return nil, fmt.Errorf(
				"workload %q needs alpha and beta in (0, 1)", pattern)
		}

		if h := uint64(float64(pages) * args[1]); h == 0 || h == pages {
			return nil, fmt.Errorf(
				"workload %q leaves an empty hot or cold set", pattern)
		}

		return NewHotCold(pages, args[0], args[1]), nil
	default:
		return nil, fmt.Errorf("unknown workload %q", pattern)
	}
}

func parseArgs(fields []string) ([]float64, error) {
	args := make([]float64, 0, len(fields))

	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad argument %q: %w", f, err)
		}

		args = append(args, v)
	}

	return args, nil
}

func inOpenUnit(v float64) bool {
	return v > 0 && v < 1
}

func mustHavePages(pages uint64) {
	if pages == 0 {
		panic("workload needs at least one page")
	}
}
