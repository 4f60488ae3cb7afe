package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/kvemu/internal/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvemu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestConfig_Load_MissingFileUsesDefaults(t *testing.T) {
	cfg := &Config{
		Path:   filepath.Join(t.TempDir(), "absent.yaml"),
		Logger: logging.Discard(),
	}

	require.NoError(t, cfg.Load())
	def := cfg.Definition
	assert.Equal(t, DefaultVaultURL, def.VaultURL)
	assert.Equal(t, DefaultRecoverableDays, def.RecoverableDays)
	assert.Equal(t, DefaultListenAddr, def.ListenAddr)
	assert.Equal(t, DefaultPurgeInterval, def.PurgeEvery())
	assert.Nil(t, def.Credential)
}

func TestConfig_Load_File(t *testing.T) {
	path := writeConfig(t, `version: 0
vault_url: https://unit.vault.azure.net
recoverable_days: 7
listen_addr: 127.0.0.1:9999
purge_interval: 30s
seed_file: dev.env
credential:
  tenant_id: tenant
  client_id: client
  client_secret: shh
`)

	cfg := &Config{Path: path}
	require.NoError(t, cfg.Load())

	def := cfg.Definition
	assert.Equal(t, "https://unit.vault.azure.net", def.VaultURL)
	assert.Equal(t, 7, def.RecoverableDays)
	assert.Equal(t, "127.0.0.1:9999", def.ListenAddr)
	assert.Equal(t, 30*time.Second, def.PurgeEvery())
	assert.Equal(t, "dev.env", def.SeedFile)
	require.NotNil(t, def.Credential)
	assert.Equal(t, "service principal", def.Credential.Method())
}

func TestConfig_Load_EnvOverrides(t *testing.T) {
	t.Setenv(EnvVaultURL, "https://from-env.vault.azure.net")
	t.Setenv(EnvListenAddr, "0.0.0.0:1234")

	path := writeConfig(t, "vault_url: https://from-file.vault.azure.net\n")
	cfg := &Config{Path: path}
	require.NoError(t, cfg.Load())

	assert.Equal(t, "https://from-env.vault.azure.net", cfg.Definition.VaultURL)
	assert.Equal(t, "0.0.0.0:1234", cfg.Definition.ListenAddr)
}

func TestConfig_Validation_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "vault_url: [unterminated\n")
	cfg := &Config{Path: path}

	err := cfg.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML syntax")
}

func TestConfig_Validation_UnsupportedVersion(t *testing.T) {
	path := writeConfig(t, "version: 2\n")
	cfg := &Config{Path: path}

	err := cfg.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported configuration version")
}

func TestDefinition_Validate(t *testing.T) {
	t.Parallel()

	valid := func() Definition {
		d := Definition{}
		d.applyDefaults()
		return d
	}

	tests := []struct {
		name    string
		mutate  func(*Definition)
		wantErr string
	}{
		{"defaults", func(*Definition) {}, ""},
		{"bad url", func(d *Definition) { d.VaultURL = "vault" }, "vault_url"},
		{"too few days", func(d *Definition) { d.RecoverableDays = 6 }, "recoverable_days"},
		{"too many days", func(d *Definition) { d.RecoverableDays = 91 }, "recoverable_days"},
		{"bad interval", func(d *Definition) { d.PurgeInterval = "soon" }, "purge_interval"},
		{"negative interval", func(d *Definition) { d.PurgeInterval = "-1m" }, "purge_interval"},
		{"service principal without ids", func(d *Definition) {
			d.Credential = &CredentialConfig{ClientSecret: "shh"}
		}, "tenant_id and client_id"},
		{"managed identity", func(d *Definition) {
			d.Credential = &CredentialConfig{UseManagedIdentity: true}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := valid()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCredentialConfig_Method(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "user-assigned managed identity", (&CredentialConfig{UseManagedIdentity: true, UserAssignedID: "id"}).Method())
	assert.Equal(t, "system-assigned managed identity", (&CredentialConfig{UseManagedIdentity: true}).Method())
	assert.Equal(t, "service principal", (&CredentialConfig{ClientSecret: "s"}).Method())
	assert.Equal(t, "default azure credential", (&CredentialConfig{}).Method())
}

func TestDefinition_NewClient(t *testing.T) {
	t.Parallel()

	d := Definition{RecoverableDays: 7}
	d.applyDefaults()

	client, err := d.NewClient(logging.Discard(), nil)
	require.NoError(t, err)
	assert.False(t, client.HasCredential())
	assert.Equal(t, DefaultVaultURL, client.VaultURL())

	d.Credential = &CredentialConfig{TenantID: "00000000-0000-0000-0000-000000000000", ClientID: "client", ClientSecret: "shh"}
	withCred, err := d.NewClient(logging.Discard(), nil)
	require.NoError(t, err)
	assert.True(t, withCred.HasCredential())
}
