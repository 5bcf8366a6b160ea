package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/convolens/internal/app"
	"github.com/tjfontaine/convolens/internal/config"
	"github.com/tjfontaine/convolens/internal/conversation"
)

// globalFlags override the loaded configuration.
type globalFlags struct {
	configPath   string
	apiKey       string
	baseURL      string
	model        string
	preset       string
	registryFile string
	verbose      bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "convolens-analyze",
		Short: "Flag and score conversations from the command line",
		Long: "convolens-analyze flags safety concerns and scores principles for every\n" +
			"message of a USER:/AI: transcript, then exports the results.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	f := root.PersistentFlags()
	f.StringVar(&g.configPath, "config", "", "Path to config.yaml (default: ./config.yaml if present)")
	f.StringVar(&g.apiKey, "api-key", "", "Provider API key; \"test\" runs in demo mode (default: $CONVOLENS_PROVIDER__API_KEY)")
	f.StringVar(&g.baseURL, "base-url", "", "OpenAI-compatible base URL")
	f.StringVar(&g.model, "model", "", "Model used for analysis")
	f.StringVar(&g.preset, "preset", "", "Registry preset: general or mental-health")
	f.StringVar(&g.registryFile, "registry-file", "", "YAML file overriding registry categories or principles")
	f.BoolVarP(&g.verbose, "verbose", "v", false, "Log pipeline activity to stderr")

	root.AddCommand(newAnalyzeCmd(g))
	root.AddCommand(newModelsCmd(g))
	root.AddCommand(newRegistryCmd(g))
	return root
}

// load builds the pipeline for one CLI run. The interaction log is off
// unless the config file asks for sqlite.
func (g *globalFlags) load(cmd *cobra.Command) (*app.App, conversation.AnalysisOptions, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, conversation.AnalysisOptions{}, err
	}
	if g.apiKey != "" {
		cfg.Provider.APIKey = g.apiKey
	}
	if g.baseURL != "" {
		cfg.Provider.BaseURL = g.baseURL
	}
	if g.model != "" {
		cfg.Provider.Model = g.model
	}
	if g.preset != "" {
		cfg.Registry.Preset = g.preset
	}
	if g.registryFile != "" {
		cfg.Registry.File = g.registryFile
	}
	if cfg.Storage.Type == "memory" {
		cfg.Storage.Type = "none"
	}

	a, err := app.New(cfg, g.logger(cmd.ErrOrStderr()))
	if err != nil {
		return nil, conversation.AnalysisOptions{}, err
	}
	return a, a.DefaultAnalysisOptions(), nil
}

func (g *globalFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
