package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"tipflow/internal/config"
	"tipflow/internal/content"
	"tipflow/internal/fileutil"
	"tipflow/internal/logging"
)

// CommandRunner executes name with args inside dir and returns combined output.
type CommandRunner func(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)

// Git publishes items from a local working tree.
type Git struct {
	repoDir     string
	remoteName  string
	remoteURL   string
	branch      string
	authorName  string
	authorEmail string
	topic       string
	contentPath string
	historyPath string
	pushTimeout time.Duration
	run         CommandRunner
	logger      *slog.Logger
}

// New builds a publisher from repository and path settings.
func New(cfg *config.Config, logger *slog.Logger) *Git {
	return &Git{
		repoDir:     cfg.Paths.RepoDir,
		remoteName:  cfg.Repository.RemoteName,
		remoteURL:   cfg.Repository.RemoteURL,
		branch:      cfg.Repository.Branch,
		authorName:  cfg.Repository.AuthorName,
		authorEmail: cfg.Repository.AuthorEmail,
		topic:       cfg.Generator.Topic,
		contentPath: cfg.ContentURLPath(),
		historyPath: cfg.HistoryFilePath(),
		pushTimeout: time.Duration(cfg.Repository.PushTimeoutSeconds) * time.Second,
		run:         defaultCommandRunner,
		logger:      logging.NewComponentLogger(logger, "publisher"),
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (g *Git) WithCommandRunner(r CommandRunner) {
	if r != nil {
		g.run = r
	}
}

// Branch returns the configured target branch.
func (g *Git) Branch() string { return g.branch }

// Prepare initializes the working tree as a repository when needed and points
// the remote at the configured URL.
func (g *Git) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(g.repoDir, 0o755); err != nil {
		return opError("init", err)
	}
	if _, err := g.git(ctx, nil, "rev-parse", "--git-dir"); err != nil {
		if _, err := g.git(ctx, nil, "init"); err != nil {
			return opError("init", err)
		}
		if _, err := g.git(ctx, nil, "symbolic-ref", "HEAD", "refs/heads/"+g.branch); err != nil {
			return opError("init", err)
		}
		g.logger.Info("initialized git repository", logging.String("path", g.repoDir))
	}

	if g.remoteURL == "" {
		return nil
	}
	current, err := g.git(ctx, nil, "remote", "get-url", g.remoteName)
	switch {
	case err != nil:
		if _, err := g.git(ctx, nil, "remote", "add", g.remoteName, g.remoteURL); err != nil {
			return opError("remote", err)
		}
		g.logger.Info("added git remote", logging.String("remote", g.remoteName), logging.String("url", g.remoteURL))
	case strings.TrimSpace(string(current)) != g.remoteURL:
		if _, err := g.git(ctx, nil, "remote", "set-url", g.remoteName, g.remoteURL); err != nil {
			return opError("remote", err)
		}
		g.logger.Info("updated git remote", logging.String("remote", g.remoteName), logging.String("url", g.remoteURL))
	}
	return nil
}

// Publish stages filePath (and the history file when present), commits, and
// pushes to branch. An empty branch uses the configured one. When the push
// fails the commit made here is undone and its paths unstaged, so nothing
// unpushed stays on the local branch; a retry commits again. When nothing is
// staged the commit step is skipped and only the push runs.
func (g *Git) Publish(ctx context.Context, filePath string, item content.Item, branch string) error {
	if branch == "" {
		branch = g.branch
	}
	if !fileutil.Exists(filePath) {
		return opError("stat", fmt.Errorf("%w: %s", ErrFileNotFound, filePath))
	}
	if _, err := g.git(ctx, nil, "remote", "get-url", g.remoteName); err != nil {
		return opError("remote", fmt.Errorf("%w: %s", ErrNoRemote, g.remoteName))
	}

	paths := []string{filePath}
	if fileutil.Exists(g.historyPath) {
		paths = append(paths, g.historyPath)
	}
	if _, err := g.git(ctx, nil, append([]string{"add", "--"}, paths...)...); err != nil {
		return opError("add", err)
	}

	committed := false
	parent := ""
	if _, err := g.git(ctx, nil, "diff", "--cached", "--quiet"); err == nil {
		g.logger.Info("nothing new to commit; pushing", logging.String("file", item.Filename))
	} else {
		parent = g.head(ctx)
		if _, err := g.git(ctx, nil,
			"-c", "user.name="+g.authorName,
			"-c", "user.email="+g.authorEmail,
			"commit", "-m", CommitMessage(g.topic, item)); err != nil {
			g.unstage(ctx, parent, paths)
			return opError("commit", err)
		}
		committed = true
		g.logger.Info("committed item", logging.String("file", item.Filename))
	}

	pushCtx, cancel := context.WithTimeout(ctx, g.pushTimeout)
	defer cancel()
	if _, err := g.git(pushCtx, []string{"GIT_TERMINAL_PROMPT=0"}, "push", g.remoteName, "HEAD:refs/heads/"+branch); err != nil {
		if errors.Is(pushCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("push timed out after %s: %w", g.pushTimeout, err)
		}
		if committed {
			g.undoCommit(ctx, parent, paths)
		}
		return opError("push", err)
	}
	g.logger.Info("pushed item",
		logging.String("file", item.Filename),
		logging.String("remote", g.remoteName),
		logging.String("branch", branch))
	return nil
}

// head returns the commit HEAD points at, or "" on an unborn branch.
func (g *Git) head(ctx context.Context) string {
	out, err := g.git(ctx, nil, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// undoCommit moves the branch back to parent (deleting it when parent is
// empty) and unstages paths. The working tree is left alone.
func (g *Git) undoCommit(ctx context.Context, parent string, paths []string) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if parent == "" {
		_, err = g.git(ctx, nil, "update-ref", "-d", "HEAD")
	} else {
		_, err = g.git(ctx, nil, "reset", "--soft", parent)
	}
	if err != nil {
		logging.WarnWithHint(g.logger, "could not undo unpushed commit", "publish_rollback_failed",
			"reset the branch to the remote before approving again", logging.Error(err))
		return
	}
	g.unstage(ctx, parent, paths)
	g.logger.Info("undid unpushed commit", logging.String("parent", parent))
}

func (g *Git) unstage(ctx context.Context, parent string, paths []string) {
	args := []string{"reset", "-q", parent, "--"}
	if parent == "" {
		args = []string{"rm", "--cached", "-q", "--ignore-unmatch", "--"}
	}
	if _, err := g.git(context.WithoutCancel(ctx), nil, append(args, paths...)...); err != nil {
		g.logger.Warn("could not unstage paths", logging.Error(err))
	}
}

// Status returns short git status output for the working tree.
func (g *Git) Status(ctx context.Context) (string, error) {
	out, err := g.git(ctx, nil, "status", "--short", "--branch")
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// LastCommit returns the subject of HEAD, or "" when there are no commits.
func (g *Git) LastCommit(ctx context.Context) (string, error) {
	if _, err := g.git(ctx, nil, "rev-parse", "--verify", "--quiet", "HEAD"); err != nil {
		return "", nil
	}
	out, err := g.git(ctx, nil, "log", "-1", "--format=%h %s")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ViewURL returns the browser URL of a published item.
func (g *Git) ViewURL(item content.Item) string {
	return RemoteViewURL(g.remoteURL, g.branch, g.contentPath, item.Filename)
}

// CommitMessage renders the commit message for an item.
func CommitMessage(topic string, item content.Item) string {
	return fmt.Sprintf("Add %s Tip: %s\n\nFilename: %s\nGenerated: %s",
		topic, item.Headline, item.Filename, item.CreatedAt.Format(time.DateOnly))
}

// RemoteViewURL builds {repoURL}/blob/{branch}/{contentPath}/{filename}. A
// trailing slash or .git suffix on repoURL is dropped, and scp-style or ssh://
// remotes are rewritten to https://host/owner/repo. Returns "" when repoURL is
// empty.
func RemoteViewURL(repoURL, branch, contentPath, filename string) string {
	base := browseBase(repoURL)
	if base == "" {
		return ""
	}
	parts := []string{base, "blob", branch}
	if p := strings.Trim(contentPath, "/"); p != "" && p != "." {
		parts = append(parts, p)
	}
	parts = append(parts, filename)
	return strings.Join(parts, "/")
}

func browseBase(repoURL string) string {
	base := strings.TrimRight(strings.TrimSpace(repoURL), "/")
	base = strings.TrimSuffix(base, ".git")
	if base == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(base, "ssh://"); ok {
		host, path, _ := strings.Cut(rest, "/")
		host = host[strings.LastIndex(host, "@")+1:]
		if h, _, found := strings.Cut(host, ":"); found {
			host = h
		}
		return "https://" + host + "/" + path
	}
	if !strings.Contains(base, "://") {
		// user@host:owner/repo
		if host, path, ok := strings.Cut(base, ":"); ok && !strings.HasPrefix(path, "/") {
			host = host[strings.LastIndex(host, "@")+1:]
			return "https://" + host + "/" + path
		}
	}
	return base
}

func (g *Git) git(ctx context.Context, env []string, args ...string) ([]byte, error) {
	return g.run(ctx, g.repoDir, env, "git", args...)
}

func defaultCommandRunner(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(output)); msg != "" {
			return output, fmt.Errorf("%s %s: %w: %s", name, firstArg(args), err, msg)
		}
		return output, fmt.Errorf("%s %s: %w", name, firstArg(args), err)
	}
	return output, nil
}

func firstArg(args []string) string {
	for _, a := range args {
		if !strings.HasPrefix(a, "-") && !strings.Contains(a, "=") {
			return a
		}
	}
	return ""
}
