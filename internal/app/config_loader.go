package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// Start with default config
	config := domain.DefaultConfig()

	// Set up viper
	v := viper.New()
	v.SetConfigType("yaml")

	// If config path is provided, use it
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.niagara")
		v.AddConfigPath("/etc/niagara")
	}

	// Read environment variables
	v.SetEnvPrefix("NIAGARA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	// Unmarshal into config struct
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand environment variables in paths
	config = expandPaths(config)

	// Validate config
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.OutputDir = expandPath(config.OutputDir)
	config.History.DatabasePath = expandPath(config.History.DatabasePath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}
	config.Logging.FilePath = expandPath(config.Logging.FilePath)

	for name, district := range config.Districts {
		district.PointList = expandPath(district.PointList)
		district.OutputDir = expandPath(district.OutputDir)
		config.Districts[name] = district
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	// Expand environment variables
	path = os.ExpandEnv(path)

	// Expand home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	// Replace $HOME
	if strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return path
}

// validateConfig validates the configuration. District records are checked
// up front so a bad table fails the run at load time, not mid-batch; a
// district with no base address is allowed to exist but cannot be
// downloaded from.
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Engine.Workers < 1 {
		return fmt.Errorf("engine workers must be at least 1")
	}

	if config.Engine.StateInterval < 1 {
		return fmt.Errorf("state interval must be at least 1")
	}

	if config.Engine.MinContentSize < 0 {
		return fmt.Errorf("min content size cannot be negative")
	}

	if config.OutputDir == "" {
		return fmt.Errorf("output directory not configured")
	}

	if config.History.DatabasePath == "" {
		return fmt.Errorf("history database path not configured")
	}

	for name, district := range config.Districts {
		if !district.HasBaseAddress() {
			continue
		}
		if err := district.Validate(name); err != nil {
			return err
		}
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// DistrictNames returns the configured district names, uppercased and
// sorted for stable display.
func DistrictNames(config *domain.Config) []string {
	names := make([]string, 0, len(config.Districts))
	for name := range config.Districts {
		names = append(names, strings.ToUpper(name))
	}
	sort.Strings(names)
	return names
}
