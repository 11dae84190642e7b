package render

var stepLabels = map[string]string{
	"agent1":    "Input Validation",
	"agent2":    "JD Analysis",
	"agent3":    "Project Packaging",
	"agent4":    "Résumé Optimization",
	"completed": "Completed",
}

var workflowSteps = []string{"agent1", "agent2", "agent3", "agent4"}

// StepLabel names a pipeline step. Unknown steps are returned verbatim.
func StepLabel(step string) string {
	if label, ok := stepLabels[step]; ok {
		return label
	}
	return step
}

type StepState string

const (
	StepDone    StepState = "done"
	StepActive  StepState = "active"
	StepPending StepState = "pending"
)

type Step struct {
	Key   string    `json:"key"`
	Label string    `json:"label"`
	State StepState `json:"state"`
}

// Steps lays out the pipeline relative to the current step.
func Steps(current string) []Step {
	pos := -1
	for i, key := range workflowSteps {
		if key == current {
			pos = i
		}
	}
	if current == "completed" {
		pos = len(workflowSteps)
	}

	out := make([]Step, 0, len(workflowSteps))
	for i, key := range workflowSteps {
		state := StepPending
		switch {
		case i < pos:
			state = StepDone
		case i == pos:
			state = StepActive
		}
		out = append(out, Step{Key: key, Label: StepLabel(key), State: state})
	}
	return out
}
