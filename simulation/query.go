package simulation

import (
	"context"

	"github.com/sarchlab/flashsim/datarecording"
)

// RecordQuery selects recorded repetitions. Empty fields match every run.
type RecordQuery struct {
	Hash    string
	Prefix  string
	GC      string
	Pattern string

	// Limit caps the number of records returned. Zero returns all.
	Limit int
}

// ReadRecords reads the repetitions matching q, ordered by run and
// repetition. The count is the number of matching rows before the limit.
func ReadRecords(
	ctx context.Context,
	r *datarecording.Reader,
	q RecordQuery,
) ([]Record, int, error) {
	f := datarecording.Filter{
		Equal:   make(map[string]any),
		OrderBy: []string{"Hash", "Rep"},
		Limit:   q.Limit,
	}

	for column, value := range map[string]string{
		"Hash":    q.Hash,
		"Prefix":  q.Prefix,
		"GC":      q.GC,
		"Pattern": q.Pattern,
	} {
		if value != "" {
			f.Equal[column] = value
		}
	}

	return datarecording.Select[Record](ctx, r, RecordTable, f)
}

// RunSummary condenses the repetitions of one run.
type RunSummary struct {
	Hash    string
	Prefix  string
	GC      string
	Pattern string
	Reps    int

	// FinalWAF is the cumulative write amplification of the last repetition.
	FinalWAF       float64
	MeanRunningWAF float64
}

// SummarizeRuns groups records by run, in the order runs first appear.
func SummarizeRuns(records []Record) []RunSummary {
	var runs []RunSummary
	index := make(map[string]int)
	last := make(map[string]uint64)

	for _, r := range records {
		i, ok := index[r.Hash]
		if !ok {
			i = len(runs)
			index[r.Hash] = i
			runs = append(runs, RunSummary{
				Hash:    r.Hash,
				Prefix:  r.Prefix,
				GC:      r.GC,
				Pattern: r.Pattern,
			})
		}

		run := &runs[i]
		run.Reps++
		run.MeanRunningWAF += r.RunningWAF

		if !ok || r.Rep >= last[r.Hash] {
			last[r.Hash] = r.Rep
			run.FinalWAF = r.CumulativeWAF
		}
	}

	for i := range runs {
		runs[i].MeanRunningWAF /= float64(runs[i].Reps)
	}

	return runs
}
