package commands

import (
	"log/slog"
	"os"
	"time"

	"fintself/lib/alert"
	"fintself/lib/browser"
	"fintself/lib/configutil"
	"fintself/lib/osutil"
)

// Config is the fintself.json5 schema. Every section is optional; the zero
// value runs headless against the default institution settings.
type Config struct {
	Browser BrowserConfig `json:"browser"`
	Debug   DebugConfig   `json:"debug"`
	Alert   AlertConfig   `json:"alert"`
	Banks   BanksConfig   `json:"banks"`
}

type BrowserConfig struct {
	// Headless defaults to true when absent; a flag on the scrape command
	// overrides it either way.
	Headless        *bool  `json:"headless"`
	SlowMoMs        int    `json:"slow_mo_ms"`
	TimeoutMs       int    `json:"timeout_ms"`
	UserAgent       string `json:"user_agent"`
	ViewportWidth   int    `json:"viewport_width"`
	ViewportHeight  int    `json:"viewport_height"`
	Locale          string `json:"locale"`
	Timezone        string `json:"timezone"`
	Executable      string `json:"executable"`
	UserDataDir     string `json:"user_data_dir"`
	MinHumanDelayMs int    `json:"min_human_delay_ms"`
	MaxHumanDelayMs int    `json:"max_human_delay_ms"`
}

type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

type AlertConfig struct {
	SMTP      alert.SMTPConfig `json:"smtp"`
	Threshold int              `json:"threshold"`
	StatePath string           `json:"state_path"`
}

type BanksConfig struct {
	// SantanderCards limits the Santander scrape to cards ending in these
	// four digit groups, empty means every card.
	SantanderCards []string `json:"santander_cards"`
}

func loadConfig() Config {
	cfg, err := configutil.ReadRecursively[Config]("fintself.json5")
	if os.IsNotExist(err) {
		slog.Debug("no fintself.json5 found, using defaults")
		return Config{}
	}
	if err != nil {
		osutil.Fatal("failed to read config", err)
	}
	return cfg
}

func browserOptions(c BrowserConfig) browser.Options {
	return browser.Options{
		SlowMo:         time.Duration(c.SlowMoMs) * time.Millisecond,
		Timeout:        time.Duration(c.TimeoutMs) * time.Millisecond,
		UserAgent:      c.UserAgent,
		ViewportWidth:  c.ViewportWidth,
		ViewportHeight: c.ViewportHeight,
		Locale:         c.Locale,
		TimezoneID:     c.Timezone,
		ExecPath:       c.Executable,
		UserDataDir:    c.UserDataDir,
		MinHumanDelay:  time.Duration(c.MinHumanDelayMs) * time.Millisecond,
		MaxHumanDelay:  time.Duration(c.MaxHumanDelayMs) * time.Millisecond,
	}
}
