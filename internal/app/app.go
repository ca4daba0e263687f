// Package app wires configuration, logging, storage, the agent and the engine
// together for the CLI commands and the server.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/cmd/version"
	"github.com/klytics/xlengine/internal/agent"
	"github.com/klytics/xlengine/internal/ai"
	"github.com/klytics/xlengine/internal/audit"
	"github.com/klytics/xlengine/internal/config"
	"github.com/klytics/xlengine/internal/engine"
	"github.com/klytics/xlengine/internal/logging"
	"github.com/klytics/xlengine/internal/ops"
	"github.com/klytics/xlengine/internal/storage"
)

// App is everything a command needs.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      *storage.DirStore
	Dispatcher *ops.Dispatcher
	Agent      agent.Agent
	Audit      *audit.Logger
	Service    *engine.Service

	closeLog func()
}

// Overrides are the root command's persistent flags.
type Overrides struct {
	Provider string
	Model    string
	Verbose  bool
}

// FromCommand reads the persistent flags of cmd and builds an App.
func FromCommand(cmd *cobra.Command) (*App, error) {
	provider, _ := cmd.Flags().GetString("provider")
	model, _ := cmd.Flags().GetString("model")
	verbose, _ := cmd.Flags().GetBool("verbose")
	return New(Overrides{Provider: provider, Model: model, Verbose: verbose}, os.Stderr)
}

// New loads configuration and builds an App. Logs go to logOut.
func New(o Overrides, logOut io.Writer) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}
	if o.Provider != "" {
		cfg.Provider = strings.ToLower(o.Provider)
		cfg.Model = config.DefaultModels[cfg.Provider]
	}
	if o.Model != "" {
		cfg.Model = o.Model
	}

	logOpts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, SeqURL: cfg.Log.SeqURL}
	if o.Verbose {
		logOpts.Level = "debug"
	}
	logger, closeLog := logging.Setup(logOpts, logOut)

	store := storage.NewDirStore(cfg.Storage.UploadDir, cfg.Storage.OutputDir)
	store.RestrictPaths = cfg.Storage.RestrictPaths

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Dispatcher: &ops.Dispatcher{StrictAggregate: cfg.Operations.StrictAggregate},
		Agent:      NewAgent(cfg, logger),
		Audit:      audit.NewLogger(cfg.Audit.Path, cfg.Audit.Enabled),
		closeLog:   closeLog,
	}
	a.Service = engine.New(engine.Config{
		Store:      a.Store,
		Dispatcher: a.Dispatcher,
		Agent:      a.Agent,
		Audit:      a.Audit,
		Logger:     logger,
		SampleRows: cfg.Operations.SampleRows,
		Version:    version.Version,
	})
	return a, nil
}

// NewAgent builds the configured agent. When the provider cannot be built, for
// instance because its key is missing, the returned agent reports AgentUnavailable
// on every call and the rest of the service keeps working.
func NewAgent(cfg *config.Config, logger *slog.Logger) agent.Agent {
	key, err := cfg.GetAPIKey(cfg.Provider)
	if err != nil {
		logger.Warn("AI provider not configured", "provider", cfg.Provider, "error", err)
		return agent.Unavailable(cfg.Provider, fmt.Errorf("%w: %v", ai.ErrMissingCredential, err))
	}
	opts := ai.Options{
		APIKey:      key,
		Model:       cfg.Model,
		Temperature: cfg.Agent.Temperature,
	}
	if cfg.Provider == "ollama" {
		opts.BaseURL = cfg.Ollama.Host
	}
	p, err := ai.NewProvider(cfg.Provider, opts)
	if err != nil {
		logger.Warn("AI provider not configured", "provider", cfg.Provider, "error", err)
		return agent.Unavailable(cfg.Provider, err)
	}
	return agent.New(p, cfg.Agent.MaxRows, logger)
}

// Close flushes the log sinks.
func (a *App) Close() {
	if a.closeLog != nil {
		a.closeLog()
	}
}
