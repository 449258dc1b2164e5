package core

// Op names a coordinator operation.
type Op string

const (
	OpJoin    Op = "join"
	OpMessage Op = "message"
	OpLeave   Op = "leave"
)

// Step names one independent side effect of an operation.
type Step string

const (
	StepRegistry  Step = "registry"
	StepActivity  Step = "activity"
	StepFeed      Step = "feed"
	StepTouch     Step = "touch"
	StepBroadcast Step = "broadcast"
	StepHistory   Step = "history"
	StepPersist   Step = "persist"
)

// StepResult is the result of a single side effect. Err is nil on success.
type StepResult struct {
	Step Step
	Err  error
}

// Outcome collects the step results of one operation. Steps run
// independently: a failed step never prevents the following ones.
type Outcome struct {
	Op       Op
	Room     string
	User     string
	ClientID string
	Steps    []StepResult
	// Dropped counts events not delivered to slow consumers.
	Dropped int
}

func (o *Outcome) record(step Step, err error) {
	o.Steps = append(o.Steps, StepResult{Step: step, Err: err})
}

// Failed reports whether any step failed.
func (o Outcome) Failed() bool {
	for _, s := range o.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Err returns the error recorded for step, or nil.
func (o Outcome) Err(step Step) error {
	for _, s := range o.Steps {
		if s.Step == step {
			return s.Err
		}
	}
	return nil
}

// Ran reports whether step was attempted.
func (o Outcome) Ran(step Step) bool {
	for _, s := range o.Steps {
		if s.Step == step {
			return true
		}
	}
	return false
}
