package simulation

// RecordTable is the table holding one Record per repetition.
const RecordTable = "bench"

// Record is the report of one repetition.
type Record struct {
	Prefix string
	Hash   string

	// DriveWrites is the amount of data written before the repetition, in
	// multiples of the logical capacity.
	DriveWrites float64
	Rep         uint64
	Time        float64

	Capacity uint64
	Erase    uint64
	PageSize uint64
	Pattern  string
	Fill     float64
	GC       string

	// FreePercent is the share of blocks in the free list once the
	// repetition ends.
	FreePercent   float64
	RunningWAF    float64
	CumulativeWAF float64
}

// Summary describes a finished run.
type Summary struct {
	Reps           uint64
	WritesPerRep   uint64
	HostWrites     uint64
	PhysicalWrites uint64
	InitWAF        float64
	CumulativeWAF  float64
	GCInvocations  uint64
	PagesRelocated uint64
	Seconds        float64
}
