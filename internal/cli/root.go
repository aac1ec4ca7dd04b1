// Package cli is the listnote command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/listnote/listnote-core/internal/config"
	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/runtime"
)

// Connector builds a running App from the loaded configuration
type Connector func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime.App, error)

// Options tweak the root command; zero values use the real backends
type Options struct {
	Connect Connector
	// Stderr receives log output
	Stderr io.Writer
}

type app struct {
	configPath string
	projectID  string
	verbose    bool

	connect Connector
	stderr  io.Writer
}

// NewRootCmd builds the listnote command tree
func NewRootCmd(opts Options) *cobra.Command {
	a := &app{connect: opts.Connect, stderr: opts.Stderr}
	if a.connect == nil {
		a.connect = connectRuntime
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}

	cmd := &cobra.Command{
		Use:          "listnote",
		Short:        "ListNote journal and task client",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Open today's journal and pull in open tasks
  listnote journal

  # List open tasks of the configured project
  listnote tasks

  # Follow task and file changes made by other clients
  listnote watch
`),
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a TOML config file (default: $LISTNOTE_CONFIG)")
	cmd.PersistentFlags().StringVar(&a.projectID, "project", "", "Project id (overrides project.id)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output")

	cmd.AddCommand(newJournalCmd(a))
	cmd.AddCommand(newTasksCmd(a))
	cmd.AddCommand(newAddCmd(a))
	cmd.AddCommand(newCompleteCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	return cmd
}

func (a *app) logger() *slog.Logger {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
}

// open loads the config, connects and makes the project current.
// The caller closes the returned App.
func (a *app) open(ctx context.Context) (*runtime.App, *domain.Project, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	if a.projectID != "" {
		cfg.Project.ID = a.projectID
	}
	if cfg.Project.ID == "" {
		return nil, nil, errors.New("no project configured: set project.id, LISTNOTE_PROJECT_ID or --project")
	}

	logger := a.logger()
	rt, err := a.connect(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	project := &domain.Project{ID: cfg.Project.ID, Name: cfg.Project.Name}
	if err := rt.OpenProject(ctx, project); err != nil {
		_ = rt.Close(ctx)
		return nil, nil, err
	}
	return rt, project, nil
}

func connectRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime.App, error) {
	backends, err := runtime.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("backends connected", "backends", backends.Describe)

	rt, err := runtime.New(runtime.Options{
		Backends:       backends,
		Self:           domain.Peer{ID: cfg.User.ID, Name: cfg.User.Name},
		SaveInterval:   cfg.Editor.SaveInterval,
		PromptDuration: cfg.Editor.PromptDuration,
		Logger:         logger,
	})
	if err != nil {
		_ = backends.Close()
		return nil, err
	}
	return rt, nil
}

func closeApp(ctx context.Context, rt *runtime.App, err *error) {
	if cerr := rt.Close(ctx); cerr != nil && *err == nil {
		*err = fmt.Errorf("failed to close: %w", cerr)
	}
}
