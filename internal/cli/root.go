package cli

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nscan/internal/analysis/patterns"
	"nscan/internal/config"
	"nscan/internal/logging"
	"nscan/internal/store"
	"nscan/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger

	store store.DataStore
}

// Store opens the bar and pattern database on first use.
func (a *App) Store() (store.DataStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.NewSQLiteStore(a.Config.Data.DBPath)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", a.Config.Data.DBPath).Msg("SQLite store initialized")
	a.store = s
	return s, nil
}

// Close releases resources held by the app.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:    cfg,
		ConfigDir: config.DefaultConfigDir(),
		Logger:    logger,
	}

	rootCmd := &cobra.Command{
		Use:   "nscan",
		Short: "N-pattern and consolidation breakout scanner for daily bars",
		Long: `nscan scans daily OHLCV exports for N-shaped swing patterns and
breakouts out of low-volume consolidation zones.

Bars are read from a directory of exported text files or from the local
SQLite store filled by 'nscan import'. Confirmed patterns are printed and
can be written to CSV or JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" && dir != app.ConfigDir {
				loaded, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = loaded
				app.ConfigDir = dir
				app.Logger = logging.NewLoggerWithConfig(loaded.Log)
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/nscan)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(newPatternsCmd(app))
	rootCmd.AddCommand(newZonesCmd(app))
	rootCmd.AddCommand(newChipsCmd(app))
	rootCmd.AddCommand(newScheduleCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("nscan v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the scanner configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := filepath.Join(app.ConfigDir, "config.toml")
			if output.IsJSON() {
				output.JSON(map[string]string{"dir": app.ConfigDir, "file": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
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

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Scan")
	output.Printf("  Modes:           %s\n", cfg.Scan.Modes)
	output.Printf("  Workers:         %d\n", cfg.Scan.Workers)
	output.Printf("  Symbol Timeout:  %s\n", cfg.Scan.SymbolTimeout)
	output.Printf("  Recent Days:     %d\n", cfg.Scan.RecentDays)
	output.Printf("  Chips / Shapes:  %v / %v\n", cfg.Scan.Chips, cfg.Scan.Shapes)
	output.Printf("  Output Dir:      %s\n", cfg.Scan.OutputDir)
	output.Println()

	output.Bold("Data")
	output.Printf("  Directory:       %s\n", cfg.Data.Dir)
	output.Printf("  File Pattern:    %s\n", cfg.Data.Pattern)
	output.Printf("  Database:        %s\n", cfg.Data.DBPath)
	output.Println()

	output.Bold("Standalone Detection")
	showParams(output, cfg.Detection.Standalone)
	output.Println()

	output.Bold("Breakout Detection")
	showParams(output, cfg.Detection.Breakout)
	output.Println()

	output.Bold("Schedule")
	output.Printf("  Cron:            %s\n", cfg.Schedule.Cron)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Log.Level)
	if cfg.Log.File {
		output.Printf("  File:            %s\n", cfg.Log.FilePath)
	}
}

func showParams(output *Output, p patterns.Params) {
	output.Printf("  Retracement:     >= %s within %d days\n", utils.FormatPercent(p.RetracementThreshold), p.MaxRetracementDays)
	output.Printf("  Volume:          surge x%.2f, quiet x%.2f\n", p.VolumeSurgeMultiple, p.VolumeQuietMultiple)
	output.Printf("  Confirmation:    margin %s, verify %d days\n", utils.FormatPercent(p.BreakoutConfirmMargin), p.VerificationDays)
	output.Printf("  Consolidation:   >= %d days, volatility <= %s, merge %v\n",
		p.ConsolidationMinDays, utils.FormatPercent(p.ConsolidationMaxVolatility), p.MergeZones)
	output.Printf("  Levels:          target x%.2f, stop %s, entry %s\n",
		p.TargetMultiple, utils.FormatPercent(p.StopBuffer), utils.FormatPercent(p.EntryBuffer))
	output.Printf("  Lookback:        %d months, extremum window %d\n", p.LookbackMonths, p.ExtremumWindow)
	if p.TargetMonth != 0 {
		output.Printf("  Target Month:    %04d-%02d\n", p.TargetYear, p.TargetMonth)
	}
}
