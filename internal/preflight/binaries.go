package preflight

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external binary tipflow relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a binary.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Result converts a binary status into a preflight result. Missing optional
// binaries pass.
func (s Status) Result() Result {
	if s.Available {
		return Result{Name: s.Name, Passed: true, Detail: s.Command + " found"}
	}
	detail := s.Detail
	if s.Description != "" {
		detail = fmt.Sprintf("%s (%s)", detail, s.Description)
	}
	return Result{Name: s.Name, Passed: s.Optional, Detail: detail}
}

var lookPath = exec.LookPath

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if _, err := lookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}
