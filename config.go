package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings configures a suite run. Values come from, in increasing
// precedence: built-in defaults, a .env file, environment variables and
// CLI flag overrides.
type Settings struct {
	BaseURL  string `mapstructure:"base_url"`
	Username string `mapstructure:"test_username"`
	Password string `mapstructure:"test_password"`
	PlateNo  string `mapstructure:"plate_no"`

	// TapPay test card
	CardNumber    string `mapstructure:"card_number"`
	CardExpiry    string `mapstructure:"card_expiry"`
	CardCVV       string `mapstructure:"card_cvv"`
	TapPay3DSCode string `mapstructure:"tappay_3ds_code"`

	Driver         string `mapstructure:"driver"`
	Headless       bool   `mapstructure:"headless"`
	SlowMoMs       int    `mapstructure:"slow_mo"`
	TimeoutMs      int    `mapstructure:"timeout"`
	ExecutablePath string `mapstructure:"executable_path"`
	Locale         string `mapstructure:"locale"`
	Timezone       string `mapstructure:"timezone"`
	ViewportWidth  int    `mapstructure:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height"`

	ArtifactsDir      string        `mapstructure:"artifacts_dir"`
	VideoPollAttempts int           `mapstructure:"video_poll_attempts"`
	VideoPollInterval time.Duration `mapstructure:"video_poll_interval"`
}

// initScript keeps the site's main.js from throwing on a missing global,
// which otherwise leaves the first screen blank.
const initScript = "window.unreadCountURL = window.unreadCountURL || '';"

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		BaseURL:           "https://qpktest.qparking.com.tw",
		PlateNo:           "AU-TO",
		CardNumber:        "4242424242424242",
		CardExpiry:        "12/28",
		CardCVV:           "123",
		TapPay3DSCode:     "1234567",
		Driver:            "playwright",
		Headless:          true,
		SlowMoMs:          0,
		TimeoutMs:         30000,
		Locale:            "zh-TW",
		Timezone:          "Asia/Taipei",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		ArtifactsDir:      "artifacts",
		VideoPollAttempts: 10,
		VideoPollInterval: 100 * time.Millisecond,
	}
}

// LoadOptions controls settings loading.
type LoadOptions struct {
	// EnvFile is the dotenv file to read. Defaults to .env in the project root.
	EnvFile string
	// FlagOverrides are highest-priority overrides keyed like the env vars.
	FlagOverrides map[string]any
}

// LoadSettings resolves settings with the documented precedence.
func LoadSettings(opts LoadOptions) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = filepath.Join(GetProjectRoot(), ".env")
	}
	if err := mergeEnvFile(v, envFile); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	for key, val := range opts.FlagOverrides {
		v.Set(strings.ToLower(key), val)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	s.BaseURL = strings.TrimSuffix(s.BaseURL, "/")

	if !filepath.IsAbs(s.ArtifactsDir) {
		s.ArtifactsDir = filepath.Join(GetProjectRoot(), s.ArtifactsDir)
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultSettings()

	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("test_username", def.Username)
	v.SetDefault("test_password", def.Password)
	v.SetDefault("plate_no", def.PlateNo)
	v.SetDefault("card_number", def.CardNumber)
	v.SetDefault("card_expiry", def.CardExpiry)
	v.SetDefault("card_cvv", def.CardCVV)
	v.SetDefault("tappay_3ds_code", def.TapPay3DSCode)

	v.SetDefault("driver", def.Driver)
	v.SetDefault("headless", def.Headless)
	v.SetDefault("slow_mo", def.SlowMoMs)
	v.SetDefault("timeout", def.TimeoutMs)
	v.SetDefault("executable_path", def.ExecutablePath)
	v.SetDefault("locale", def.Locale)
	v.SetDefault("timezone", def.Timezone)
	v.SetDefault("viewport_width", def.ViewportWidth)
	v.SetDefault("viewport_height", def.ViewportHeight)

	v.SetDefault("artifacts_dir", def.ArtifactsDir)
	v.SetDefault("video_poll_attempts", def.VideoPollAttempts)
	v.SetDefault("video_poll_interval", def.VideoPollInterval)
}

// mergeEnvFile merges a dotenv file if it exists.
func mergeEnvFile(v *viper.Viper, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("env file %s is a directory", path)
	}

	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings a suite run cannot do without.
func (s *Settings) Validate() error {
	var missing []string
	if s.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if s.Username == "" {
		missing = append(missing, "TEST_USERNAME")
	}
	if s.Password == "" {
		missing = append(missing, "TEST_PASSWORD")
	}
	if s.PlateNo == "" {
		missing = append(missing, "PLATE_NO")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	switch s.Driver {
	case "playwright", "chromedp":
	default:
		return fmt.Errorf("driver must be playwright or chromedp, got %q", s.Driver)
	}
	if s.TimeoutMs <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", s.TimeoutMs)
	}
	if s.VideoPollAttempts <= 0 {
		return fmt.Errorf("video_poll_attempts must be positive, got %d", s.VideoPollAttempts)
	}
	return nil
}

// Timeout is the default page operation timeout.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// LaunchOptions returns the browser launch options.
func (s *Settings) LaunchOptions() LaunchOptions {
	return LaunchOptions{
		Headless:       s.Headless,
		SlowMo:         time.Duration(s.SlowMoMs) * time.Millisecond,
		ExecutablePath: s.ExecutablePath,
	}
}

// ContextOptions returns the browsing context options. VideoDir is left to
// the caller, which owns the artifact layout.
func (s *Settings) ContextOptions() ContextOptions {
	viewport := Size{Width: s.ViewportWidth, Height: s.ViewportHeight}
	return ContextOptions{
		Viewport:       viewport,
		Locale:         s.Locale,
		TimezoneID:     s.Timezone,
		VideoSize:      viewport,
		InitScript:     initScript,
		DefaultTimeout: s.Timeout(),
	}
}

// findGitRoot finds the git root from a starting directory
func findGitRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// GetProjectRoot returns the project root (git root or cwd)
func GetProjectRoot() string {
	cwd, _ := os.Getwd()
	return findGitRoot(cwd)
}

// isCommandAvailable checks if a command is available in PATH
func isCommandAvailable(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}
