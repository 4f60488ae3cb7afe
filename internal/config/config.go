package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	dserrors "github.com/systmms/kvemu/internal/errors"
	"github.com/systmms/kvemu/internal/logging"
	"gopkg.in/yaml.v3"
)

// Defaults applied to settings missing from kvemu.yaml.
const (
	DefaultPath            = "kvemu.yaml"
	DefaultVaultURL        = "https://kvemu.vault.azure.net"
	DefaultListenAddr      = "127.0.0.1:8443"
	DefaultPurgeInterval   = time.Minute
	DefaultRecoverableDays = 90

	MinRecoverableDays = 7
	MaxRecoverableDays = 90
)

// Environment variables that override file settings.
const (
	EnvVaultURL   = "KVEMU_VAULT_URL"
	EnvListenAddr = "KVEMU_LISTEN_ADDR"
)

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the kvemu.yaml structure
type Definition struct {
	Version         int               `yaml:"version"`
	VaultURL        string            `yaml:"vault_url"`
	RecoverableDays int               `yaml:"recoverable_days"`
	ListenAddr      string            `yaml:"listen_addr"`
	PurgeInterval   string            `yaml:"purge_interval"`
	SeedFile        string            `yaml:"seed_file,omitempty"`
	Credential      *CredentialConfig `yaml:"credential,omitempty"`
}

// Load reads and parses kvemu.yaml. A missing file is not an error: every
// setting falls back to its default. Environment overrides are applied last.
func (c *Config) Load() error {
	def := Definition{}

	data, err := os.ReadFile(c.Path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &def); err != nil {
			return dserrors.ConfigError{
				Message:    "invalid YAML syntax in configuration file",
				Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
			}
		}
	case os.IsNotExist(err):
		if c.Logger != nil {
			c.Logger.Debug("No configuration file at %s, using defaults", c.Path)
		}
	default:
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	if def.Version != 0 {
		return dserrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your kvemu.yaml file",
		}
	}

	def.applyDefaults()
	def.applyEnv(os.LookupEnv)
	if err := def.Validate(); err != nil {
		return err
	}

	c.Definition = &def
	return nil
}

func (d *Definition) applyDefaults() {
	if d.VaultURL == "" {
		d.VaultURL = DefaultVaultURL
	}
	if d.RecoverableDays == 0 {
		d.RecoverableDays = DefaultRecoverableDays
	}
	if d.ListenAddr == "" {
		d.ListenAddr = DefaultListenAddr
	}
	if d.PurgeInterval == "" {
		d.PurgeInterval = DefaultPurgeInterval.String()
	}
}

func (d *Definition) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvVaultURL); ok && v != "" {
		d.VaultURL = v
	}
	if v, ok := lookup(EnvListenAddr); ok && v != "" {
		d.ListenAddr = v
	}
}

// Validate checks every field and returns the first problem found
func (d *Definition) Validate() error {
	u, err := url.Parse(d.VaultURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return dserrors.ConfigError{
			Field:      "vault_url",
			Value:      d.VaultURL,
			Message:    "Invalid vault_url format",
			Suggestion: "Use format: https://vault-name.vault.azure.net/",
		}
	}

	if d.RecoverableDays < MinRecoverableDays || d.RecoverableDays > MaxRecoverableDays {
		return dserrors.ConfigError{
			Field:      "recoverable_days",
			Value:      d.RecoverableDays,
			Message:    fmt.Sprintf("must be between %d and %d", MinRecoverableDays, MaxRecoverableDays),
			Suggestion: "Key Vault accepts a soft-delete retention of 7 to 90 days",
		}
	}

	interval, err := time.ParseDuration(d.PurgeInterval)
	if err != nil || interval <= 0 {
		return dserrors.ConfigError{
			Field:      "purge_interval",
			Value:      d.PurgeInterval,
			Message:    "must be a positive duration",
			Suggestion: "Use a Go duration such as 30s, 1m or 1h",
		}
	}

	if d.Credential != nil {
		if err := d.Credential.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PurgeEvery returns the parsed purge interval
func (d *Definition) PurgeEvery() time.Duration {
	interval, err := time.ParseDuration(d.PurgeInterval)
	if err != nil || interval <= 0 {
		return DefaultPurgeInterval
	}
	return interval
}
