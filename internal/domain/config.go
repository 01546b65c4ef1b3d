package domain

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Engine    EngineConfig        `mapstructure:"engine"`
	History   HistoryConfig       `mapstructure:"history"`
	Logging   LoggingConfig       `mapstructure:"logging"`
	OutputDir string              `mapstructure:"output_dir"`
	Districts map[string]District `mapstructure:"districts"`
}

// ServerConfig contains status API server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// EngineConfig contains download engine configuration
type EngineConfig struct {
	Workers        int           `mapstructure:"workers"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Throttle       time.Duration `mapstructure:"throttle"`
	MinContentSize int           `mapstructure:"min_content_size"`
	StateInterval  int           `mapstructure:"state_interval"`
	Days           int           `mapstructure:"days"`
}

// HistoryConfig contains run-history persistence configuration
type HistoryConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	FilePath   string `mapstructure:"file_path"`   // optional additional log file
}

// District is the configuration record for one monitored site.
type District struct {
	BaseAddress string `mapstructure:"base_address" json:"base_address"`
	PointList   string `mapstructure:"point_list" json:"point_list"`
	OutputDir   string `mapstructure:"output_dir" json:"output_dir"`
	VPN         string `mapstructure:"vpn" json:"vpn,omitempty"`
}

// HasBaseAddress reports whether a usable controller address is configured.
// Legacy config tables used "na" / "n/a" as placeholders.
func (d District) HasBaseAddress() bool {
	addr := strings.ToLower(strings.TrimSpace(d.BaseAddress))
	return addr != "" && addr != "na" && addr != "n/a"
}

// Validate checks that the record can drive a download run.
func (d District) Validate(name string) error {
	if !d.HasBaseAddress() {
		return fmt.Errorf("district %s: base_address is required", name)
	}
	if !strings.HasPrefix(d.BaseAddress, "http://") && !strings.HasPrefix(d.BaseAddress, "https://") {
		return fmt.Errorf("district %s: base_address must include a scheme", name)
	}
	return nil
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Engine: EngineConfig{
			Workers:        10,
			Timeout:        30 * time.Second,
			Throttle:       0,
			MinContentSize: 50,
			StateInterval:  50,
			Days:           90,
		},
		History: HistoryConfig{
			DatabasePath: "$HOME/.niagara/history.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
		OutputDir: "$HOME/.niagara/output",
		Districts: map[string]District{},
	}
}
