package preflight

import (
	"context"

	"tipflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The model check only runs when an API key is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, st := range CheckBinaries(requirements(cfg)) {
		results = append(results, st.Result())
	}

	results = append(results, CheckDirectoryAccess("Repository directory", cfg.Paths.RepoDir))
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))

	if cfg.Generator.UsesModel() {
		results = append(results, CheckModel(ctx, cfg))
	} else {
		results = append(results, Result{Name: "Text model", Passed: true, Detail: "not configured (fallback pool)"})
	}
	return results
}

// Failed filters results down to failing checks.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

func requirements(_ *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "git",
			Command:     "git",
			Description: "Required for publishing approved tips",
		},
	}
}
