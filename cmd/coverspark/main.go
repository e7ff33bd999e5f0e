package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coverspark/coverspark/internal/config"
	"github.com/coverspark/coverspark/internal/gemini"
	"github.com/coverspark/coverspark/internal/history"
	"github.com/coverspark/coverspark/internal/imagegen"
	"github.com/coverspark/coverspark/internal/keys"
	"github.com/coverspark/coverspark/internal/logging"
	"github.com/coverspark/coverspark/internal/orchestrator"
	"github.com/coverspark/coverspark/internal/repl"
	"github.com/coverspark/coverspark/internal/server"
	"github.com/coverspark/coverspark/internal/strategy"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig string
	flagAddr   string
	flagAPIKey string
)

type App struct {
	Out         io.Writer
	Err         io.Writer
	NewKeyStore func() (*keys.Store, error)
}

func DefaultApp() *App {
	return &App{
		Out:         os.Stdout,
		Err:         os.Stderr,
		NewKeyStore: keys.NewStore,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coverspark",
		Short: "AI cover strategist for short-video creators",
		Long: `coverspark turns a video topic into competing cover designs:
it asks a reasoning model for visual strategies, renders each one
with an image model in parallel, and keeps every session in a
browsable local history.

Examples:
  coverspark serve
  coverspark serve --addr :9000 --config coverspark.yaml
  coverspark keys set AIza...`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newReplCmd(app))
	cmd.AddCommand(newKeysCmd(app))
	return cmd
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server for the web front end",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, app)
		},
	}

	cmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "Gemini API key (defaults to stored key or "+keys.EnvGeminiKey+")")
	return cmd
}

func runServe(cmd *cobra.Command, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}

	log, err := logging.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	orch, store, err := buildOrchestrator(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(cfg.Server, orch, log)
	return srv.Run(ctx)
}

func newReplCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Work a session interactively in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRepl(cmd, app)
		},
	}

	cmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "Gemini API key (defaults to stored key or "+keys.EnvGeminiKey+")")
	return cmd
}

func runRepl(cmd *cobra.Command, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	// The console owns the terminal; keep log output quiet.
	log := logging.Nop()

	orch, store, err := buildOrchestrator(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	r := repl.New(&repl.Config{
		In:           os.Stdin,
		Out:          app.Out,
		Err:          app.Err,
		Orchestrator: orch,
	})
	return r.Run(ctx)
}

// buildOrchestrator wires the backend clients, generators, and history
// store shared by the serve and repl commands.
func buildOrchestrator(cfg *config.Config, log *zap.SugaredLogger) (*orchestrator.Orchestrator, *history.Store, error) {
	apiKey, source, err := keys.Resolve(flagAPIKey)
	if err != nil {
		return nil, nil, err
	}
	log.Infow("using api key", "source", source, "key", keys.MaskKey(apiKey))

	strategyClient, err := gemini.NewClient(&gemini.Config{
		APIKey:     apiKey,
		BaseURL:    cfg.Backend.BaseURL,
		TimeoutSec: cfg.Strategy.TimeoutSec,
	})
	if err != nil {
		return nil, nil, err
	}
	imageClient, err := gemini.NewClient(&gemini.Config{
		APIKey:     apiKey,
		BaseURL:    cfg.Backend.BaseURL,
		TimeoutSec: cfg.Image.TimeoutSec,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := history.NewStore(cfg.Store.Path, cfg.Store.MaxBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("opening history store: %w", err)
	}

	strategies := strategy.New(strategyClient, &strategy.Config{
		Model: cfg.Strategy.Model,
		Count: cfg.Strategy.Count,
	}, log)
	images := imagegen.New(imageClient, &imagegen.Config{
		PrimaryModel:  cfg.Image.PrimaryModel,
		FallbackModel: cfg.Image.FallbackModel,
		AspectRatio:   cfg.Image.AspectRatio,
		ImageSize:     cfg.Image.ImageSize,
		MaxAttempts:   cfg.Image.MaxAttempts,
		RatePerSec:    cfg.Image.RatePerSec,
	}, log)

	return orchestrator.New(store, strategies, images, log), store, nil
}

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the stored Gemini API key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key]",
		Short: "Store the Gemini API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			if err := store.Set(keys.ProviderGemini, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Stored key %s in %s\n", keys.MaskKey(args[0]), store.Path())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored key (masked)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			key, err := store.Get(keys.ProviderGemini)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "%s\n", keys.MaskKey(key))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Delete the stored key",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			if err := store.Delete(keys.ProviderGemini); err != nil {
				return err
			}
			fmt.Fprintln(app.Out, "Deleted stored key")
			return nil
		},
	})

	return cmd
}
