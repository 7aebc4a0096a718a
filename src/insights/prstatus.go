package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// externalCallTimeout bounds every git/gh shell-out (spec.md §5, §7's
// "external-tool unavailable" taxonomy entry).
const externalCallTimeout = 5 * time.Second

// PRStatus is the result of polling a repository's pull request / CI
// state via the gh CLI.
type PRStatus struct {
	Number     int    `json:"number"`
	State      string `json:"state"`
	CIStatus   string `json:"ciStatus"`
	URL        string `json:"url"`
	Unavailable bool  `json:"unavailable,omitempty"`
}

// PRStatusFor shells to `gh pr view` for the repo rooted at cwd. Returns
// PRStatus{Unavailable: true} rather than an error when gh is missing, no
// PR exists, or the call times out — this is a cosmetic dashboard
// annotation, never a hard dependency (spec.md §7).
func PRStatusFor(ctx context.Context, cwd string) PRStatus {
	ghPath, err := exec.LookPath("gh")
	if err != nil {
		return PRStatus{Unavailable: true}
	}

	ctx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ghPath, "pr", "view", "--json", "number,state,url,statusCheckRollup")
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		return PRStatus{Unavailable: true}
	}

	var raw struct {
		Number            int    `json:"number"`
		State             string `json:"state"`
		URL               string `json:"url"`
		StatusCheckRollup []struct {
			Conclusion string `json:"conclusion"`
			Status     string `json:"status"`
		} `json:"statusCheckRollup"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return PRStatus{Unavailable: true}
	}

	return PRStatus{
		Number:   raw.Number,
		State:    raw.State,
		CIStatus: rollupStatus(raw.StatusCheckRollup),
		URL:      raw.URL,
	}
}

func rollupStatus(checks []struct {
	Conclusion string `json:"conclusion"`
	Status     string `json:"status"`
}) string {
	if len(checks) == 0 {
		return "none"
	}
	anyFailed, anyPending := false, false
	for _, c := range checks {
		switch {
		case c.Status != "" && c.Status != "COMPLETED":
			anyPending = true
		case c.Conclusion == "FAILURE" || c.Conclusion == "CANCELLED":
			anyFailed = true
		}
	}
	switch {
	case anyFailed:
		return "failing"
	case anyPending:
		return "pending"
	default:
		return "passing"
	}
}

// CurrentBranch shells to `git branch --show-current`, matching the
// 5s-timeout convention. Returns "" when git is unavailable or cwd is not
// a repository.
func CurrentBranch(ctx context.Context, cwd string) string {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, gitPath, "-C", cwd, "branch", "--show-current").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// AvailabilityNotice describes why an external collaborator is disabled,
// for the one-line startup notice spec.md §7 calls for.
func AvailabilityNotice(tool string, available bool) string {
	if available {
		return ""
	}
	return fmt.Sprintf("insights: %s not found on PATH, related features disabled", tool)
}
