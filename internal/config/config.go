package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/privacyd/")
	viper.AddConfigPath("$HOME/.privacyd/")

	// Environment variable overrides
	viper.SetEnvPrefix("PRIVACYD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Use specific config file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Privacy.MinConfidence < 0 || config.Privacy.MinConfidence > 1 {
		return fmt.Errorf("invalid min confidence: %f (must be in [0,1])", config.Privacy.MinConfidence)
	}

	if config.Privacy.MaxRecordDepth <= 0 {
		return fmt.Errorf("invalid max record depth: %d", config.Privacy.MaxRecordDepth)
	}

	if config.Export.Format != "parquet" && config.Export.Format != "json" {
		return fmt.Errorf("invalid export format: %s (must be parquet or json)", config.Export.Format)
	}

	for jurisdiction, days := range config.DSR.SLADays {
		if days <= 0 {
			return fmt.Errorf("invalid SLA days for %s: %d", jurisdiction, days)
		}
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if _, err := config.Crypto.EncryptionKey(); err != nil {
		return err
	}
	if _, err := config.Crypto.PseudonymKey(); err != nil {
		return err
	}

	return nil
}

// EncryptionKey decodes the configured encryption key. Returns nil
// when no key is configured; key-length validation happens in the
// crypto unit.
func (c *CryptoConfig) EncryptionKey() ([]byte, error) {
	return decodeKey(c.EncryptionKeyHex, "encryption")
}

// PseudonymKey decodes the configured pseudonymization key.
func (c *CryptoConfig) PseudonymKey() ([]byte, error) {
	return decodeKey(c.PseudonymKeyHex, "pseudonym")
}

func decodeKey(hexKey, name string) ([]byte, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid %s key: %w", name, err)
	}
	return key, nil
}

// Watch starts watching the configuration file for changes
func Watch(config *Config, callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := &Config{}
		if err := viper.Unmarshal(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		if err := validateConfig(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		callback(newConfig)
	})

	return nil
}
