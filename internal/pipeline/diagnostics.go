package pipeline

import "fmt"

// Stage names where a non-fatal problem was recorded.
type Stage string

const (
	StageTraversal  Stage = "traversal"
	StageExtraction Stage = "extraction"
	StageBudget     Stage = "budget"
	StageCompletion Stage = "completion"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is one non-fatal condition met during a run.
type Diagnostic struct {
	Stage    Stage    `json:"stage"`
	Severity Severity `json:"severity"`
	Path     string   `json:"path,omitempty"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Path == "" {
		return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Stage, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s: %s", d.Severity, d.Stage, d.Path, d.Message)
}

// Count tallies diagnostics of one severity.
func Count(ds []Diagnostic, sev Severity) int {
	n := 0
	for _, d := range ds {
		if d.Severity == sev {
			n++
		}
	}
	return n
}
