package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# GEM Assistant Configuration

[strategy]
# Momentum window: return measured over lookback_months ending
# skip_months before the evaluation date (12/1 = classic GEM).
lookback_months = 12
skip_months = 1

[data]
# Ordered market data providers, primary first
providers = ["stooq", "yahoo"]
# Trading days the series may fall short of the requested window
tolerance_days = 5
# Largest calendar gap allowed inside a price series (days)
max_gap_days = 90
# Concurrent price fetches
fetch_workers = 4
# Per-request timeout
request_timeout = "30s"

[research]
enabled = true
# How many top-ranked instruments to research
max_subjects = 3
# Ordered search sources, primary first
sources = ["serper", "brave"]
# Results requested per research query
max_results = 6
# Research cache TTL
cache_ttl = "24h"
# Concurrent research fetches
workers = 3

[store]
# SQLite database path (default: <config dir>/gem.db)
db_path = ""

[notifications]
enabled = true
# Notification level: all, signals_only, errors_only
level = "all"

[notifications.terminal]
enabled = true

[notifications.pushover]
enabled = false
api_token = ""
user_key = ""

[notifications.webhook]
enabled = false
url = ""

# Instrument universe. Omit to use the built-in default set
# (EIMI, CNDX, CBU0, IB01).
#
# [[universe]]
# id = "EIMI"
# display_name = "iShares EM IMI (EIMI)"
# asset_class = "equity"   # equity, bond, cash
# risk_tier = "high"       # high, medium, low
# [universe.tickers]
# yahoo = "EIMI.L"
# stooq = "EIMI.UK"
`

const credentialsTemplate = `# GEM Assistant Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[openai]
api_key = ""
model = "gpt-4o-mini"

[serper]
api_key = ""

[brave]
api_key = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	// Built-in defaults keep the app runnable before the template is edited.
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
