package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches standard locations for
// medigate.yaml/.yml. The search requires an explicit YAML extension so
// the binary itself (same base name, no extension) never matches.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file in any standard location. Set name/type without
		// search paths so ReadInConfig returns ConfigFileNotFoundError,
		// which callers handle gracefully.
		viper.SetConfigName("medigate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: MEDIGATE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("MEDIGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a medigate config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{
		".",
		filepath.Join(home, ".medigate"),
		"/etc/medigate",
	})
}

// findConfigFileInPaths searches the given directories for medigate.yaml
// or .yml and returns the first match.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "medigate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable
// support. Example: MEDIGATE_POLICY_API_KEY overrides policy.api_key.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.transport")
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.stdio_caller")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.policy_timeout")
	_ = viper.BindEnv("server.handler_timeout")

	_ = viper.BindEnv("policy.backend")
	_ = viper.BindEnv("policy.url")
	_ = viper.BindEnv("policy.api_key")
	_ = viper.BindEnv("policy.static_decision")

	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("audit.channel_size")
	_ = viper.BindEnv("audit.batch_size")
	_ = viper.BindEnv("audit.flush_interval")
	_ = viper.BindEnv("audit.send_timeout")
	_ = viper.BindEnv("audit.retention_days")
	_ = viper.BindEnv("audit.max_file_size_mb")

	_ = viper.BindEnv("storage.backend")
	_ = viper.BindEnv("storage.project_id")
	_ = viper.BindEnv("storage.credentials_file")
	_ = viper.BindEnv("storage.storage_bucket")
	_ = viper.BindEnv("storage.sqlite_path")

	_ = viper.BindEnv("llm.api_key")
	_ = viper.BindEnv("llm.base_url")
	_ = viper.BindEnv("llm.model")
	_ = viper.BindEnv("llm.vision_model")

	// auth.identities, auth.api_keys, and guards are nested collections;
	// use the config file for those.

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides
// and defaults, and validates the result.
// Callers that override DevMode from CLI flags should use LoadConfigRaw
// and finish with SetDevDefaults and Validate themselves.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but
// does not apply dev defaults or validate.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found: run on env vars and defaults only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or an
// empty string when running on environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
