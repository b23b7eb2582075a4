package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"tipflow/internal/config"
	"tipflow/internal/content/llm"
	"tipflow/internal/fileutil"
	"tipflow/internal/logging"
	"tipflow/internal/services"
	"tipflow/internal/textutil"
)

const notebookExt = ".ipynb"

// Generator drafts new items and persists them into the content directory.
type Generator struct {
	contentDir  string
	historyPath string
	prefix      string
	topic       string
	client      llm.Client
	pool        []PoolEntry
	clock       services.Clock
	logger      *slog.Logger
}

// Option customizes a Generator.
type Option func(*Generator)

// WithClock overrides the time source used for CreatedAt and notebook dates.
func WithClock(clock services.Clock) Option {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithPool replaces the fallback pool.
func WithPool(entries []PoolEntry) Option {
	return func(g *Generator) {
		g.pool = append([]PoolEntry(nil), entries...)
	}
}

// NewGenerator builds a generator from config. A nil client selects the
// fallback pool for every run.
func NewGenerator(cfg *config.Config, client llm.Client, logger *slog.Logger, opts ...Option) (*Generator, error) {
	if cfg == nil {
		return nil, errors.New("generator: config is nil")
	}
	g := &Generator{
		contentDir:  cfg.ContentDirPath(),
		historyPath: cfg.HistoryFilePath(),
		prefix:      cfg.Generator.FilePrefix,
		topic:       cfg.Generator.Topic,
		client:      client,
		pool:        DefaultPool(),
		clock:       services.RealClock{},
		logger:      logging.NewComponentLogger(logger, "generator"),
	}
	if cfg.Generator.PoolFile != "" {
		pool, err := LoadPool(cfg.Generator.PoolFile)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "generator", "load pool", cfg.Generator.PoolFile, err)
		}
		g.pool = pool
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate returns a new item whose shortname is not yet taken. Model failures
// degrade to the pool; ErrNotAvailable means the pool is exhausted too.
func (g *Generator) Generate(ctx context.Context) (Item, error) {
	history, err := LoadHistory(g.historyPath)
	if err != nil {
		return Item{}, err
	}
	logger := logging.WithContext(ctx, g.logger)

	if g.client != nil {
		item, err := g.fromModel(ctx, history)
		if err == nil {
			logger.Info("generated item from model", logging.String(logging.FieldShortname, item.Shortname))
			return item, nil
		}
		logging.WarnWithHint(logger, "model generation failed; using fallback pool", "generator_fallback",
			services.Hint(err), logging.Error(err))
	} else {
		logger.Debug("no model configured; using fallback pool")
	}

	item, err := g.fromPool(history)
	if err != nil {
		return Item{}, err
	}
	logger.Info("selected fallback pool item", logging.String(logging.FieldShortname, item.Shortname))
	return item, nil
}

func (g *Generator) fromModel(ctx context.Context, history HistoryLog) (Item, error) {
	raw, err := g.client.Complete(ctx, g.prompt())
	if err != nil {
		return Item{}, services.Wrap(services.ErrExternalService, "generator", "complete", "", err)
	}
	parsed, err := parseResponse(raw)
	if err != nil {
		return Item{}, services.Wrap(services.ErrExternalService, "generator", "parse", "", err)
	}
	base := textutil.Shortname(parsed.Headline)
	shortname := base
	for n := 1; g.taken(history, shortname); n++ {
		shortname = base + "_" + strconv.Itoa(n)
	}
	return g.build(parsed.Headline, shortname, parsed.Explanation, parsed.Code)
}

func (g *Generator) fromPool(history HistoryLog) (Item, error) {
	for _, entry := range g.pool {
		shortname := textutil.Shortname(entry.Headline)
		if g.taken(history, shortname) {
			continue
		}
		return g.build(entry.Headline, shortname, entry.Explanation, entry.Code)
	}
	return Item{}, ErrNotAvailable
}

func (g *Generator) build(headline, shortname, explanation, code string) (Item, error) {
	now := g.clock.Now()
	body, err := RenderNotebook(g.topic, headline, explanation, code, now)
	if err != nil {
		return Item{}, err
	}
	return Item{
		Headline:    headline,
		Shortname:   shortname,
		Body:        body,
		Filename:    g.Filename(shortname),
		CreatedAt:   now,
		Explanation: explanation,
		Code:        code,
	}, nil
}

func (g *Generator) taken(history HistoryLog, shortname string) bool {
	return history.Contains(shortname) || fileutil.Exists(g.Path(g.Filename(shortname)))
}

func (g *Generator) prompt() llm.Prompt {
	return llm.Prompt{
		System: fmt.Sprintf("You are a %s expert who writes short, practical programming tips.", g.topic),
		User: fmt.Sprintf(`Write one unique, useful %[1]s programming tip with:
1. A clear, concise headline (at most 10 words)
2. A brief explanation (2-3 sentences)
3. A practical code example with comments

Reply in exactly this layout:
HEADLINE: <headline>
EXPLANATION: <explanation>
CODE:
<code>

Prefer intermediate-level %[1]s techniques that working developers find valuable.`, g.topic),
	}
}

// Filename derives the on-disk name for a shortname.
func (g *Generator) Filename(shortname string) string {
	return g.prefix + shortname + notebookExt
}

// Path returns the absolute location of filename inside the content directory.
func (g *Generator) Path(filename string) string {
	return filepath.Join(g.contentDir, filename)
}

// HistoryPath returns the history file location.
func (g *Generator) HistoryPath() string {
	return g.historyPath
}

// Save writes the item body and appends it to the history log. It refuses to
// overwrite an existing file.
func (g *Generator) Save(item Item) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(g.contentDir, 0o755); err != nil {
		return "", fmt.Errorf("create content directory: %w", err)
	}
	path := g.Path(item.Filename)
	if fileutil.Exists(path) {
		return "", fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err := fileutil.WriteFileAtomic(path, []byte(item.Body), 0o644); err != nil {
		return "", fmt.Errorf("write content file: %w", err)
	}

	history, err := LoadHistory(g.historyPath)
	if err != nil {
		return "", err
	}
	if err := history.Append(item).Save(g.historyPath); err != nil {
		return "", fmt.Errorf("update history: %w", err)
	}
	g.logger.Info("saved item",
		logging.String(logging.FieldShortname, item.Shortname),
		logging.String("path", path))
	return path, nil
}

// Remove deletes a saved item file. A missing file is not an error.
func (g *Generator) Remove(filename string) error {
	err := os.Remove(g.Path(filename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// History returns the current history log.
func (g *Generator) History() (HistoryLog, error) {
	return LoadHistory(g.historyPath)
}
