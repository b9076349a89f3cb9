package harness

import (
	"time"

	"github.com/roach88/bumpcheck/internal/canonical"
)

// TraceSnapshot is the deterministic part of a scenario result: where it
// sits in the fixture and the states it moved through.
type TraceSnapshot struct {
	Suite   string       `json:"suite"`
	Ordinal int          `json:"ordinal"`
	State   State        `json:"state"`
	Code    ErrorCode    `json:"code,omitempty"`
	Trace   []Transition `json:"trace"`
}

// Snapshots extracts a TraceSnapshot per scenario, in execution order.
func (r *Report) Snapshots() []TraceSnapshot {
	var out []TraceSnapshot
	for i := range r.Suites {
		for j := range r.Suites[i].Scenarios {
			sc := &r.Suites[i].Scenarios[j]
			snap := TraceSnapshot{
				Suite:   sc.Suite,
				Ordinal: sc.Ordinal,
				State:   sc.State,
				Trace:   sc.Trace,
			}
			if sc.Err != nil {
				snap.Code = CodeOf(sc.Err)
			}
			out = append(out, snap)
		}
	}
	return out
}

// MarshalTraces renders every scenario trace as canonical JSON. Equal
// executions under a fake clock produce identical bytes.
func (r *Report) MarshalTraces() ([]byte, error) {
	return canonical.Marshal(r.Snapshots())
}

// reportDocument is Report with scenario errors rendered as text.
type reportDocument struct {
	ExecutionID string          `json:"execution_id"`
	Scope       string          `json:"scope"`
	Suites      []suiteDocument `json:"suites"`
	Passed      int             `json:"passed"`
	Failed      int             `json:"failed"`
	Skipped     int             `json:"skipped"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

type suiteDocument struct {
	Name      string             `json:"name"`
	Scenarios []scenarioDocument `json:"scenarios"`
}

type scenarioDocument struct {
	*ScenarioResult
	Code  ErrorCode `json:"code,omitempty"`
	Error string    `json:"error,omitempty"`
}

// MarshalCanonical renders the full report, errors included, as canonical
// JSON.
func (r *Report) MarshalCanonical() ([]byte, error) {
	doc := reportDocument{
		ExecutionID: r.ExecutionID,
		Scope:       r.Scope,
		Passed:      r.Passed,
		Failed:      r.Failed,
		Skipped:     r.Skipped,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
	for i := range r.Suites {
		sd := suiteDocument{Name: r.Suites[i].Name}
		for j := range r.Suites[i].Scenarios {
			sc := &r.Suites[i].Scenarios[j]
			d := scenarioDocument{ScenarioResult: sc, Error: sc.ErrorText()}
			if sc.Err != nil {
				d.Code = CodeOf(sc.Err)
			}
			sd.Scenarios = append(sd.Scenarios, d)
		}
		doc.Suites = append(doc.Suites, sd)
	}
	return canonical.Marshal(doc)
}
