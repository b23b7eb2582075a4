package daemonrun

import (
	"errors"
	"fmt"
	"log/slog"

	"tipflow/internal/approval"
	"tipflow/internal/config"
	"tipflow/internal/content"
	"tipflow/internal/content/llm"
	"tipflow/internal/notifications"
	"tipflow/internal/publish"
	"tipflow/internal/services"
	"tipflow/internal/workflow"
)

// Components is the wired object graph for one process.
type Components struct {
	Config    *config.Config
	Store     approval.Store
	Generator *content.Generator
	Publisher *publish.Git
	Notifier  notifications.Service
	Approver  *workflow.Approver
	Runner    *workflow.Runner
}

type buildOptions struct {
	gitRunner   publish.CommandRunner
	modelClient llm.Client
	clock       services.Clock
}

// Option customizes Build.
type Option func(*buildOptions)

// WithGitRunner replaces the git command runner.
func WithGitRunner(r publish.CommandRunner) Option {
	return func(o *buildOptions) { o.gitRunner = r }
}

// WithModelClient replaces the text model client derived from config.
func WithModelClient(c llm.Client) Option {
	return func(o *buildOptions) { o.modelClient = c }
}

// WithClock sets the time source for the generator and store.
func WithClock(c services.Clock) Option {
	return func(o *buildOptions) { o.clock = c }
}

// Build wires every component from cfg. Callers must Close the result.
func Build(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	client := o.modelClient
	if client == nil {
		var err error
		client, err = llm.FromConfig(cfg)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "bootstrap", "model client", "invalid generator settings", err)
		}
	}

	var genOpts []content.Option
	storeOpts := []approval.Option{approval.WithLogger(logger)}
	if o.clock != nil {
		genOpts = append(genOpts, content.WithClock(o.clock))
		storeOpts = append(storeOpts, approval.WithClock(o.clock))
	}
	gen, err := content.NewGenerator(cfg, client, logger, genOpts...)
	if err != nil {
		return nil, fmt.Errorf("build generator: %w", err)
	}

	store, err := approval.Open(cfg, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("open approval store: %w", err)
	}

	publisher := publish.New(cfg, logger)
	if o.gitRunner != nil {
		publisher.WithCommandRunner(o.gitRunner)
	}
	notifier := notifications.NewService(cfg, logger)

	return &Components{
		Config:    cfg,
		Store:     store,
		Generator: gen,
		Publisher: publisher,
		Notifier:  notifier,
		Approver:  workflow.NewApprover(store, gen, publisher, notifier, logger),
		Runner:    workflow.NewRunner(gen, store, notifier, cfg.Server.PublicURL, logger),
	}, nil
}

// Close releases the store.
func (c *Components) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
