package domain

import "time"

// SourceStats holds statistics about one source run within a pass.
type SourceStats struct {
	Source         string
	Results        int
	New            int
	Seen           int
	DeliveryErrors int
	Err            error
	Duration       time.Duration
}

// PassStats holds statistics about a scan pass over all sources.
type PassStats struct {
	ID       string
	Due      int
	Skipped  int
	Failed   int
	New      int
	Sources  []SourceStats
	Saved    bool
	Duration time.Duration
}
