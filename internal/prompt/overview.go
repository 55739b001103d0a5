package prompt

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/codeloom-cli/internal/tokens"
)

// ScaffoldTokens is the cost of a request that carries no files: the system
// prompt, instructions, project overview and task. It is measured for the
// last of total batches, whose part label is the longest.
func ScaffoldTokens(p Project, total int, acc tokens.Accountant) int {
	if total < 1 {
		total = 1
	}
	m := BuildMessages(Batch{Index: total - 1}, total, p)
	return acc.Count(m.System) + acc.Count(m.User)
}

// FitOverview trims the project overview until the scaffolding of every
// request fits in reserved tokens. The structure outline is shortened
// first, then dependencies and finally the outline are left out. The
// returned note describes what was trimmed and is empty when nothing was.
// ErrInvalidBudget means even the bare overview does not fit.
func FitOverview(p Project, total, reserved int, acc tokens.Accountant) (Project, string, error) {
	need := ScaffoldTokens(p, total, acc)
	if need <= reserved {
		return p, "", nil
	}
	var trimmed []string

	if p.Structure != "" {
		lines := strings.Split(strings.TrimRight(p.Structure, "\n"), "\n")
		for keep := len(lines) / 2; keep > 0 && need > reserved; keep /= 2 {
			p.Structure = strings.Join(lines[:keep], "\n") +
				fmt.Sprintf("\n... (%d more entries)\n", len(lines)-keep)
			need = ScaffoldTokens(p, total, acc)
		}
		if need <= reserved {
			trimmed = append(trimmed, "directory outline shortened")
		}
	}
	if need > reserved && len(p.Dependencies) > 0 {
		p.Dependencies = nil
		need = ScaffoldTokens(p, total, acc)
		trimmed = append(trimmed, "dependencies omitted")
	}
	if need > reserved && p.Structure != "" {
		p.Structure = ""
		need = ScaffoldTokens(p, total, acc)
		trimmed = append(trimmed, "directory outline omitted")
	}
	if need > reserved {
		return p, "", fmt.Errorf("%w: request scaffolding needs %d tokens but only %d are reserved",
			ErrInvalidBudget, need, reserved)
	}
	return p, fmt.Sprintf("project overview trimmed to fit %d reserved tokens: %s",
		reserved, strings.Join(trimmed, ", ")), nil
}
