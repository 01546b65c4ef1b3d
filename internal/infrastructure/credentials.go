package infrastructure

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Credentials is a username/password pair for one district.
type Credentials struct {
	Username string
	Password string
}

// IsSet reports whether both fields are present.
func (c Credentials) IsSet() bool {
	return c.Username != "" && c.Password != ""
}

// LoadDotEnv loads a .env file from the working directory or the user's
// home directory, if one exists. Variables already set in the environment
// win. Credentials only ever come from the environment; there is no file
// or database fallback.
func LoadDotEnv(logger *zap.Logger) {
	candidates := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".env"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logger.Warn("Failed to load .env", zap.String("path", path), zap.Error(err))
			continue
		}
		logger.Debug("Loaded .env", zap.String("path", path))
		return
	}
}

// DistrictCredentials looks up credentials for a district, preferring
// {DISTRICT}_USER / {DISTRICT}_PASS over the generic NIAGARA_USER /
// NIAGARA_PASS pair.
func DistrictCredentials(district string) Credentials {
	district = strings.ToUpper(district)

	creds := Credentials{
		Username: os.Getenv(district + "_USER"),
		Password: os.Getenv(district + "_PASS"),
	}
	if creds.IsSet() {
		return creds
	}

	return Credentials{
		Username: os.Getenv("NIAGARA_USER"),
		Password: os.Getenv("NIAGARA_PASS"),
	}
}

// VPNCredentials looks up VPN credentials for a district, preferring
// district-specific variables over the generic VPN_USER / VPN_PASS pair.
func VPNCredentials(district string) Credentials {
	district = strings.ToUpper(district)

	creds := Credentials{
		Username: os.Getenv(district + "_VPN_USER"),
		Password: os.Getenv(district + "_VPN_PASS"),
	}
	if creds.IsSet() {
		return creds
	}

	return Credentials{
		Username: os.Getenv("VPN_USER"),
		Password: os.Getenv("VPN_PASS"),
	}
}

// ConfiguredDistricts lists districts that have both a _USER and _PASS
// variable set in the environment.
func ConfiguredDistricts() []string {
	var configured []string
	seen := make(map[string]bool)

	for _, entry := range os.Environ() {
		key := entry
		if i := strings.IndexByte(entry, '='); i >= 0 {
			key = entry[:i]
		}
		if !strings.HasSuffix(key, "_USER") || strings.HasSuffix(key, "_VPN_USER") {
			continue
		}
		district := strings.TrimSuffix(key, "_USER")
		if district == "" || seen[district] {
			continue
		}
		if os.Getenv(district+"_PASS") != "" {
			seen[district] = true
			configured = append(configured, district)
		}
	}

	sort.Strings(configured)
	return configured
}
