package orchestrator

import "time"

// RunStatistics are the batch counters.
type RunStatistics struct {
	Checked            int `json:"checked"`
	NeedingReplacement int `json:"needing_replacement"`
	Replaced           int `json:"replaced"`
	Failed             int `json:"failed"`
}

// SuccessRate is replaced / needing-replacement, or 0 when nothing needed replacement.
func (s RunStatistics) SuccessRate() float64 {
	if s.NeedingReplacement == 0 {
		return 0
	}
	return float64(s.Replaced) / float64(s.NeedingReplacement)
}

// Reporter accumulates outcomes for a single run. It is owned by the
// goroutine driving the batch and is not safe for concurrent use.
type Reporter struct {
	stats    RunStatistics
	outcomes []Outcome
}

func NewReporter() *Reporter {
	return &Reporter{}
}

func (r *Reporter) Record(o Outcome) {
	r.stats.Checked++
	if o.NeedsReplacement {
		r.stats.NeedingReplacement++
	}
	switch o.State {
	case StateReplaced:
		r.stats.Replaced++
	case StateExhausted:
		r.stats.Failed++
	}
	r.outcomes = append(r.outcomes, o)
}

func (r *Reporter) Snapshot() RunStatistics {
	return r.stats
}

func (r *Reporter) Outcomes() []Outcome {
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// RunResult is what a batch returns to its caller.
type RunResult struct {
	RunID      string        `json:"run_id"`
	CheckOnly  bool          `json:"check_only"`
	Stopped    bool          `json:"stopped"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stats      RunStatistics `json:"stats"`
	Outcomes   []Outcome     `json:"outcomes"`
}

func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
