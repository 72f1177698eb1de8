package engine

import (
	"path/filepath"
	"slices"

	"github.com/bamsammich/ferry/internal/job"
)

// Outcome classifies one line of a final report.
type Outcome int

const (
	OutcomeError Outcome = iota
	OutcomeAborted
	OutcomeSkipped
	OutcomeWarning
	OutcomeDone
)

var outcomeNames = [...]string{
	OutcomeError:   "ERROR",
	OutcomeAborted: "ABORTED",
	OutcomeSkipped: "SKIPPED",
	OutcomeWarning: "WARNING",
	OutcomeDone:    "DONE",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "UNKNOWN"
}

// ReportLine is one entry of a final report.
type ReportLine struct {
	Path    string
	Message string
	Outcome Outcome
}

// Report turns a result into report lines, errors first. Silent successes
// are only listed when the job was aborted, so the report then accounts
// for every entry. Paths are shown relative to cwd.
func Report(res Result, cwd string) []ReportLine {
	var lines []ReportLine
	for _, e := range res.Entries {
		var o Outcome
		switch e.Status {
		case job.ToDo, job.InProgress:
			o = OutcomeAborted
		case job.Error:
			o = OutcomeError
		case job.Skipped:
			o = OutcomeSkipped
		case job.Done:
			switch {
			case e.Message != "":
				o = OutcomeWarning
			case res.Status == job.JobAborted:
				o = OutcomeDone
			default:
				continue
			}
		}
		path := e.Path
		if rel, err := filepath.Rel(cwd, e.Path); err == nil {
			path = rel
		}
		lines = append(lines, ReportLine{Path: path, Message: e.Message, Outcome: o})
	}

	slices.SortStableFunc(lines, func(a, b ReportLine) int {
		if a.Outcome != b.Outcome {
			return int(a.Outcome) - int(b.Outcome)
		}
		return job.ComparePaths(a.Path, b.Path)
	})
	return lines
}
