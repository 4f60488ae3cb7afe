package config

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/prometheus/client_golang/prometheus"

	dserrors "github.com/systmms/kvemu/internal/errors"
	"github.com/systmms/kvemu/internal/logging"
	"github.com/systmms/kvemu/pkg/keyvault"
)

// CredentialConfig selects the Azure credential handed to the emulated
// client. The emulator never calls GetToken; the block exists so that a
// kvemu.yaml can mirror the settings of a real deployment.
type CredentialConfig struct {
	TenantID           string `yaml:"tenant_id,omitempty"`
	ClientID           string `yaml:"client_id,omitempty"`
	ClientSecret       string `yaml:"client_secret,omitempty"`
	UseManagedIdentity bool   `yaml:"use_managed_identity,omitempty"`
	UserAssignedID     string `yaml:"user_assigned_identity_id,omitempty"`
}

// Validate checks that a service principal has its tenant and client ids
func (c *CredentialConfig) Validate() error {
	if c.UseManagedIdentity || c.ClientSecret == "" {
		return nil
	}
	if c.TenantID == "" || c.ClientID == "" {
		return dserrors.ConfigError{
			Field:      "credential",
			Message:    "tenant_id and client_id are required for service principal authentication",
			Suggestion: "Set credential.tenant_id and credential.client_id, or use_managed_identity: true",
		}
	}
	return nil
}

// Method names the credential type the block resolves to
func (c *CredentialConfig) Method() string {
	switch {
	case c.UseManagedIdentity && c.UserAssignedID != "":
		return "user-assigned managed identity"
	case c.UseManagedIdentity:
		return "system-assigned managed identity"
	case c.ClientSecret != "":
		return "service principal"
	default:
		return "default azure credential"
	}
}

// TokenCredential builds the azidentity credential described by the block
func (c *CredentialConfig) TokenCredential() (azcore.TokenCredential, error) {
	var cred azcore.TokenCredential
	var err error

	switch {
	case c.UseManagedIdentity && c.UserAssignedID != "":
		cred, err = azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(c.UserAssignedID),
		})
	case c.UseManagedIdentity:
		cred, err = azidentity.NewManagedIdentityCredential(nil)
	case c.ClientSecret != "":
		if err := c.Validate(); err != nil {
			return nil, err
		}
		cred, err = azidentity.NewClientSecretCredential(c.TenantID, c.ClientID, c.ClientSecret, nil)
	default:
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return cred, nil
}

// NewClient creates the emulated Key Vault client described by the definition.
// With a credential block the credential-bearing constructor is used; the two
// constructors behave identically.
func (d *Definition) NewClient(logger *logging.Logger, reg prometheus.Registerer) (*keyvault.Client, error) {
	opts := &keyvault.ClientOptions{
		Logger:          logger,
		RecoverableDays: int32(d.RecoverableDays),
		Registerer:      reg,
	}

	if d.Credential == nil {
		return keyvault.NewClientWithoutCredential(d.VaultURL, opts)
	}

	cred, err := d.Credential.TokenCredential()
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Debug("Using %s credential", d.Credential.Method())
	}
	return keyvault.NewClient(d.VaultURL, cred, opts)
}
