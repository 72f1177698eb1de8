package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/ferry/internal/job"
)

func TestReport(t *testing.T) {
	entries := []job.Entry{
		{Path: "/w/ok", Status: job.Done},
		{Path: "/w/warn", Status: job.Done, Message: "Overwrite"},
		{Path: "/w/b/err", Status: job.Error, Message: "(copy) boom"},
		{Path: "/w/a/err", Status: job.Error, Message: "(open) denied"},
		{Path: "/w/skip", Status: job.Skipped},
		{Path: "/w/todo", Status: job.ToDo},
		{Path: "/w/busy", Status: job.InProgress},
	}

	t.Run("done job hides silent successes", func(t *testing.T) {
		lines := Report(Result{Entries: entries, Status: job.JobDone}, "/w")
		assert.Equal(t, []ReportLine{
			{Path: "a/err", Message: "(open) denied", Outcome: OutcomeError},
			{Path: "b/err", Message: "(copy) boom", Outcome: OutcomeError},
			{Path: "busy", Outcome: OutcomeAborted},
			{Path: "todo", Outcome: OutcomeAborted},
			{Path: "skip", Outcome: OutcomeSkipped},
			{Path: "warn", Message: "Overwrite", Outcome: OutcomeWarning},
		}, lines)
	})

	t.Run("aborted job lists everything", func(t *testing.T) {
		lines := Report(Result{Entries: entries, Status: job.JobAborted}, "/w")
		assert.Len(t, lines, len(entries))
		assert.Equal(t, ReportLine{Path: "ok", Outcome: OutcomeDone}, lines[len(lines)-1])
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Report(Result{Status: job.JobDone}, "/w"))
	})
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ERROR", OutcomeError.String())
	assert.Equal(t, "DONE", OutcomeDone.String())
	assert.Equal(t, "UNKNOWN", Outcome(42).String())
}
