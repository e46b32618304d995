package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# nscan configuration

[scan]
# Parallel symbol workers
workers = 4
# Per-symbol analysis deadline (e.g. "30s", "2m")
symbol_timeout = "30s"
# Keep confirmations from the last N days up to yesterday; 0 keeps all
recent_days = 0
# Detection modes: standalone, breakout or all
modes = "breakout"
# Attach chip distribution and swing shapes to per-symbol results
chips = false
shapes = false
# Directory for exported reports (default ~/.config/nscan/output)
# output_dir = "/path/to/reports"

[data]
# Directory holding one TDX export per symbol
dir = "data"
# File name pattern inside dir
pattern = "*.txt"
# SQLite database used by "import" and "scan --db" (default ~/.config/nscan/nscan.db)
# db_path = "/path/to/nscan.db"

[schedule]
# Cron spec for "nscan schedule" (seconds field optional)
cron = "0 30 15 * * 1-5"

[notify]
# Send scheduled scan results; level is all, patterns_only or errors_only
enabled = false
level = "all"

[notify.webhook]
enabled = false
url = ""
timeout = "10s"

[log]
level = "info"
console = true
file = true
max_size = 50
max_backups = 5
max_age = 30

# N-shape detection without a consolidation anchor.
[detection.standalone]
retracement_threshold = 0.5
max_retracement_days = 10
volume_surge_multiple = 1.2
volume_quiet_multiple = 0.6
breakout_confirm_margin = 0.02
verification_days = 2
target_multiple = 1.0
stop_buffer = 0.02
entry_buffer = 0.01
# Restrict confirmations to one month; 0 disables
target_year = 0
target_month = 0
lookback_months = 1
extremum_window = 5

# N-shape and direct breakouts out of long consolidations.
[detection.breakout]
retracement_threshold = 0.5
max_retracement_days = 15
volume_surge_multiple = 1.2
volume_quiet_multiple = 0.7
breakout_confirm_margin = 0.02
verification_days = 2
consolidation_min_days = 90
consolidation_max_volatility = 0.25
consolidation_volume_quiet_ratio = 0.8
consolidation_lookahead = 10
merge_zones = true
target_multiple = 1.5
stop_buffer = 0.02
entry_buffer = 0.01
lookback_months = 60
extremum_window = 5
`

const envTemplate = `# Environment overrides for nscan
# NSCAN_DATA_DIR=/path/to/tdx/exports
# NSCAN_DB_PATH=/path/to/nscan.db
# NSCAN_LOG_LEVEL=debug
# NSCAN_WORKERS=8
# NSCAN_WEBHOOK_URL=https://example.com/hooks/nscan
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	envPath := filepath.Join(configDir, ".env.example")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		if err := os.WriteFile(envPath, []byte(envTemplate), 0644); err != nil {
			return fmt.Errorf("writing env template: %w", err)
		}
	}

	return nil
}

// TemplatePath returns where the configuration file lives for configDir.
func TemplatePath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}
