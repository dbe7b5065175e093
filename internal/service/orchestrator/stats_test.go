package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReporter_Counts(t *testing.T) {
	r := NewReporter()
	r.Record(Outcome{State: StateAccepted})
	r.Record(Outcome{State: StateReplaced, NeedsReplacement: true})
	r.Record(Outcome{State: StateExhausted, NeedsReplacement: true})
	r.Record(Outcome{State: StateFlagged, NeedsReplacement: true})

	stats := r.Snapshot()
	assert.Equal(t, RunStatistics{Checked: 4, NeedingReplacement: 3, Replaced: 1, Failed: 1}, stats)
	assert.InDelta(t, 1.0/3.0, stats.SuccessRate(), 0.0001)
	assert.Len(t, r.Outcomes(), 4)
}

func TestRunStatistics_SuccessRateWithNothingToReplace(t *testing.T) {
	assert.Zero(t, RunStatistics{Checked: 3}.SuccessRate())
}
