package types

import (
	"fmt"
	"time"
)

// ResultStats tracks outcome counts for a directory run
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	Futures   int
	ByOutcome map[Outcome]int
	StartTime time.Time
	EndTime   time.Time
}

// DirectoryResult captures every record produced by one directory invocation
type DirectoryResult struct {
	RunID    string
	Dir      string
	Records  []OutcomeRecord
	Duration time.Duration
	Stats    ResultStats
}

// Add appends a record and updates the statistics
func (d *DirectoryResult) Add(rec OutcomeRecord) {
	d.Records = append(d.Records, rec)
	if d.Stats.ByOutcome == nil {
		d.Stats.ByOutcome = make(map[Outcome]int)
	}
	d.Stats.ByOutcome[rec.Outcome]++
	d.Stats.Total++
	switch {
	case rec.Outcome == OutcomeSkipped:
		d.Stats.Skipped++
	case rec.IsFuture():
		// futures are tracked but never fail the run
		d.Stats.Futures++
	case rec.Outcome.IsFailure():
		d.Stats.Failed++
	default:
		d.Stats.Passed++
	}
}

// Failed reports whether any non-future record failed
func (d *DirectoryResult) Failed() bool {
	return d.Stats.Failed > 0
}

// String returns a one-line summary of the run
func (d *DirectoryResult) String() string {
	return fmt.Sprintf("Run %s in %s: %d variants, %d passed, %d failed, %d skipped, %d futures (%.1fs)",
		d.RunID, d.Dir, d.Stats.Total, d.Stats.Passed, d.Stats.Failed, d.Stats.Skipped, d.Stats.Futures,
		d.Duration.Seconds())
}
