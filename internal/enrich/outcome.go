package enrich

// Step names, in the order they run.
const (
	StepIdentity = "identity"
	StepProfile  = "profile"
	StepDevice   = "device"
	StepBalance  = "balance"
	StepCreator  = "creator"
	StepGeo      = "geo"
)

type Status string

const (
	StatusApplied Status = "applied"
	StatusSkipped Status = "skipped"
)

// Outcome records what one enrichment step did to a record. Skips are
// informational only; they never fail the event.
type Outcome struct {
	Step   string
	Field  string
	Status Status
	Reason string
}

// Result is the structured output of enriching one record: the per-step
// outcome list. A fatal condition is returned as an error alongside it, not
// encoded here.
type Result struct {
	Outcomes []Outcome
}

func (r *Result) applied(step, field string) {
	r.Outcomes = append(r.Outcomes, Outcome{Step: step, Field: field, Status: StatusApplied})
}

func (r *Result) skipped(step, reason string) {
	r.Outcomes = append(r.Outcomes, Outcome{Step: step, Status: StatusSkipped, Reason: reason})
}

// Applied reports whether the named step applied at least one field.
func (r *Result) Applied(step string) bool {
	for _, o := range r.Outcomes {
		if o.Step == step && o.Status == StatusApplied {
			return true
		}
	}
	return false
}
