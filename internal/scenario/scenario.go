// Package scenario loads scripted secret lifecycles from YAML and replays them
// against an emulated vault, checking each step's outcome.
package scenario

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/kvemu/internal/errors"
)

//go:embed schema.json
var schemaJSON string

// Operations understood by the runner.
const (
	OpSet          = "set"
	OpGet          = "get"
	OpDelete       = "delete"
	OpGetDeleted   = "get_deleted"
	OpPurge        = "purge"
	OpRecover      = "recover"
	OpUpdate       = "update"
	OpList         = "list"
	OpListDeleted  = "list_deleted"
	OpListVersions = "list_versions"
	OpPurgeExpired = "purge_expired"
	OpAdvance      = "advance"
)

// Scenario is one scripted run.
type Scenario struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description,omitempty"`
	VaultURL        string `yaml:"vault_url,omitempty"`
	RecoverableDays int    `yaml:"recoverable_days,omitempty"`
	// Seed is a .env file loaded before the first step, relative to the
	// scenario file.
	Seed  string `yaml:"seed,omitempty"`
	Steps []Step `yaml:"steps"`

	// Dir is the directory the scenario was loaded from.
	Dir string `yaml:"-"`
}

// Step is a single operation plus its expected outcome.
//
// Version accepts a literal version id or "#n", the n-th version (1-based)
// this scenario has written for Name.
type Step struct {
	Op          string            `yaml:"op"`
	Name        string            `yaml:"name,omitempty"`
	Value       *string           `yaml:"value,omitempty"`
	Version     string            `yaml:"version,omitempty"`
	ContentType *string           `yaml:"content_type,omitempty"`
	Tags        map[string]string `yaml:"tags,omitempty"`
	Enabled     *bool             `yaml:"enabled,omitempty"`
	Duration    string            `yaml:"duration,omitempty"`
	Expect      *Expectation      `yaml:"expect,omitempty"`
}

// Expectation lists what a step must produce. Unset fields are not checked;
// with no Error set the step must succeed.
type Expectation struct {
	Value       *string           `yaml:"value,omitempty"`
	ContentType *string           `yaml:"content_type,omitempty"`
	Tags        map[string]string `yaml:"tags,omitempty"`
	Enabled     *bool             `yaml:"enabled,omitempty"`
	Error       string            `yaml:"error,omitempty"`
	Message     string            `yaml:"message,omitempty"`
	Count       *int              `yaml:"count,omitempty"`
	Names       []string          `yaml:"names,omitempty"`
}

// Load reads, schema-checks and decodes a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dserrors.UserError{
			Message:    "Failed to read scenario file",
			Details:    err.Error(),
			Suggestion: "Check the scenario path and file permissions",
			Err:        err,
		}
	}

	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.Dir = filepath.Dir(path)
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// Parse validates data against the scenario schema and decodes it.
func Parse(data []byte) (*Scenario, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "invalid YAML syntax in scenario",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	return &sc, nil
}

// Validate checks a decoded YAML document against the embedded schema.
func Validate(doc interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return dserrors.ConfigError{
			Field:      "scenario",
			Message:    "schema validation failed:\n  - " + strings.Join(errorMessages, "\n  - "),
			Suggestion: "Every step needs an 'op'; set, get, delete, purge, recover and update also need a 'name'",
		}
	}
	return nil
}
