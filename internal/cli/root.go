package cli

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gem-assistant/internal/agents"
	"gem-assistant/internal/config"
	"gem-assistant/internal/logging"
	"gem-assistant/internal/marketdata"
	"gem-assistant/internal/notify"
	"gem-assistant/internal/research"
	"gem-assistant/internal/store"
	"gem-assistant/internal/strategy"
	"gem-assistant/internal/workflow"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Store        store.DataStore
	Momentum     *strategy.Momentum
	Prices       *marketdata.CompositeProvider
	Analyst      *agents.Analyst
	Notifier     notify.Notifier
	Orchestrator *workflow.Orchestrator
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	momentum, err := strategy.New(cfg.Strategy.LookbackMonths, cfg.Strategy.SkipMonths)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid strategy configuration")
	} else {
		app.Momentum = momentum
	}

	dataStore, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, persistence unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Store.DBPath).Msg("SQLite store initialized")
	}

	httpClient := &http.Client{Timeout: cfg.Data.RequestTimeout}
	app.Prices = marketdata.NewCompositeProvider(
		buildPriceSources(cfg, httpClient),
		marketdata.ValidationConfig{
			ToleranceDays: cfg.Data.ToleranceDays,
			MaxGapDays:    cfg.Data.MaxGapDays,
		},
		logger,
	)

	var llm agents.LLMClient
	if cfg.Credentials.OpenAI.APIKey != "" {
		llm = agents.NewOpenAIClient(cfg.Credentials.OpenAI.APIKey, cfg.Credentials.OpenAI.Model)
		logger.Debug().Str("model", cfg.Credentials.OpenAI.Model).Msg("OpenAI LLM client initialized")
	}

	if app.Store != nil {
		search := research.NewCompositeSearchProvider(buildSearchSources(cfg), logger)
		cache := research.NewCache(app.Store, cfg.Research.CacheTTL, logger)
		app.Analyst = agents.NewAnalyst(llm, search, cache, cfg.Research.MaxResults, logger)
	}

	if cfg.Notifications.Enabled {
		app.Notifier = notify.NewMultiNotifier(&cfg.Notifications)
	} else {
		app.Notifier = notify.NewNoOpNotifier()
	}

	if app.Store != nil && app.Momentum != nil {
		deps := workflow.Deps{
			Momentum:        app.Momentum,
			Universe:        cfg.Universe,
			Prices:          app.Prices,
			Signals:         app.Store,
			Checkpoints:     app.Store,
			Notifier:        app.Notifier,
			FetchWorkers:    cfg.Data.FetchWorkers,
			ResearchWorkers: cfg.Research.Workers,
			Logger:          logger,
		}
		if app.Analyst != nil {
			deps.Researcher = app.Analyst
		}
		app.Orchestrator = workflow.NewOrchestrator(deps)
	}

	rootCmd := &cobra.Command{
		Use:   "gem",
		Short: "GEM Assistant - dual momentum ETF signal CLI",
		Long: `GEM Assistant generates monthly BUY/HOLD/SELL rotation signals for a
small ETF universe using the dual momentum strategy.

It fetches price history with provider fallback, ranks the universe by
momentum return, optionally gathers web research, and persists every
run as a resumable checkpoint.

Use 'gem help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/gem-assistant)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newResumeCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newRunsCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newResearchCmd(app))
	rootCmd.AddCommand(newOutlookCmd(app))

	return rootCmd
}

// buildPriceSources instantiates the configured price sources in
// fallback order. Unknown names are skipped with a warning.
func buildPriceSources(cfg *config.Config, client *http.Client) []marketdata.PriceSource {
	sources := make([]marketdata.PriceSource, 0, len(cfg.Data.Providers))
	for _, name := range cfg.Data.Providers {
		switch name {
		case "stooq":
			sources = append(sources, marketdata.NewStooqSource(client))
		case "yahoo":
			sources = append(sources, marketdata.NewYahooSource(client))
		}
	}
	return sources
}

// buildSearchSources instantiates the configured search sources in
// fallback order.
func buildSearchSources(cfg *config.Config) []research.SearchSource {
	sources := make([]research.SearchSource, 0, len(cfg.Research.Sources))
	for _, name := range cfg.Research.Sources {
		switch name {
		case "serper":
			sources = append(sources, research.NewSerperSource(cfg.Credentials.Serper.APIKey, nil))
		case "brave":
			sources = append(sources, research.NewBraveSource(cfg.Credentials.Brave.APIKey, nil))
		}
	}
	return sources
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("GEM Assistant v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Strategy")
	output.Printf("  Lookback:      %d months\n", cfg.Strategy.LookbackMonths)
	output.Printf("  Skip:          %d months\n", cfg.Strategy.SkipMonths)
	output.Println()

	output.Bold("Market Data")
	output.Printf("  Providers:     %v\n", cfg.Data.Providers)
	output.Printf("  Tolerance:     %d days\n", cfg.Data.ToleranceDays)
	output.Printf("  Max Gap:       %d days\n", cfg.Data.MaxGapDays)
	output.Printf("  Workers:       %d\n", cfg.Data.FetchWorkers)
	output.Println()

	output.Bold("Research")
	output.Printf("  Enabled:       %v\n", cfg.Research.Enabled)
	output.Printf("  Sources:       %v\n", cfg.Research.Sources)
	output.Printf("  Max Subjects:  %d\n", cfg.Research.MaxSubjects)
	output.Printf("  Cache TTL:     %s\n", cfg.Research.CacheTTL)
	output.Println()

	output.Bold("Universe")
	for _, inst := range cfg.Universe {
		output.Printf("  %-6s %-32s %s/%s\n", inst.ID, inst.DisplayName, inst.AssetClass, inst.RiskTier)
	}
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:       %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:         %s\n", cfg.Notifications.Level)
	output.Printf("  Pushover:      %v\n", cfg.Notifications.Pushover.Enabled)
	output.Printf("  Webhook:       %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Terminal:      %v\n", cfg.Notifications.Terminal.Enabled)

	return nil
}
