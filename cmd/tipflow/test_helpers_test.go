package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tipflow/internal/approval"
	"tipflow/internal/config"
	"tipflow/internal/daemonrun"
	"tipflow/internal/testsupport"
)

type fakeGit struct {
	mu    sync.Mutex
	calls []string
}

func (g *fakeGit) run(_ context.Context, _ string, _ []string, _ string, args ...string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, strings.Join(args, " "))
	return nil, nil
}

func (g *fakeGit) pushes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if strings.HasPrefix(c, "push ") {
			n++
		}
	}
	return n
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	git        *fakeGit
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	for _, key := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "SMTP_HOST", "RECIPIENT_EMAIL", "NTFY_TOPIC",
		"GITHUB_REPO_URL", "GITHUB_BRANCH", "TIPFLOW_PORT", "PORT", "DAILY_RUN_TIME", "TIPFLOW_DEBUG",
	} {
		t.Setenv(key, "")
	}
	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(homeDir, ".config", "tipflow", "config.toml")
	writeTestConfig(t, configPath, cfg)

	git := &fakeGit{}
	prev := componentOptions
	componentOptions = []daemonrun.Option{
		daemonrun.WithGitRunner(git.run),
		daemonrun.WithClock(testsupport.FixedClock()),
	}
	t.Cleanup(func() { componentOptions = prev })

	return &cliTestEnv{cfg: cfg, configPath: configPath, git: git}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) pendingTokens(t *testing.T) []string {
	t.Helper()
	store, err := approval.Open(e.cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	records, err := store.List(context.Background(), approval.StatusPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	tokens := make([]string, 0, len(records))
	for _, rec := range records {
		tokens = append(tokens, rec.Token)
	}
	return tokens
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
