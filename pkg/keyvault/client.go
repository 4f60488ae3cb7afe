package keyvault

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/systmms/kvemu/internal/lifecycle"
	"github.com/systmms/kvemu/internal/logging"
	"github.com/systmms/kvemu/internal/store"
)

const (
	// DefaultVaultURL is used when a client is created with an empty vault URL.
	DefaultVaultURL = "https://kvemu.vault.azure.net"

	// DefaultRecoverableDays matches Key Vault's default soft-delete retention.
	DefaultRecoverableDays = 90

	// DefaultPageSize is the number of items per list page.
	DefaultPageSize = 25

	// RecoveryLevel is reported on every secret the emulator returns.
	RecoveryLevel = "Recoverable+Purgeable"
)

// ClientOptions configures a Client. The embedded azsecrets options are
// accepted for signature compatibility and have no effect.
type ClientOptions struct {
	azsecrets.ClientOptions

	// Logger receives debug output. Secret values are never logged.
	Logger *logging.Logger

	// RecoverableDays is how long deleted secrets stay recoverable. Zero
	// selects DefaultRecoverableDays.
	RecoverableDays int32

	// Registerer, when set, receives the operation and partition metrics.
	Registerer prometheus.Registerer

	// Clock replaces time.Now for every timestamp.
	Clock func() time.Time

	// PageSize bounds list pages. Zero selects DefaultPageSize.
	PageSize int
}

// Client is an emulated Key Vault secrets client.
type Client struct {
	vaultURL        string
	credential      azcore.TokenCredential
	store           *store.Store
	logger          *logging.Logger
	recoverableDays int32
	pageSize        int
}

// NewClient creates an emulated client. The credential is retained but never
// used to authenticate; a client built this way behaves exactly like one
// created by NewClientWithoutCredential.
func NewClient(vaultURL string, credential azcore.TokenCredential, options *ClientOptions) (*Client, error) {
	return newClient(vaultURL, credential, options)
}

// NewClientWithoutCredential creates an emulated client with no credential.
func NewClientWithoutCredential(vaultURL string, options *ClientOptions) (*Client, error) {
	return newClient(vaultURL, nil, options)
}

func newClient(vaultURL string, credential azcore.TokenCredential, options *ClientOptions) (*Client, error) {
	if options == nil {
		options = &ClientOptions{}
	}

	vaultURL = strings.TrimRight(strings.TrimSpace(vaultURL), "/")
	if vaultURL == "" {
		vaultURL = DefaultVaultURL
	}
	u, err := url.Parse(vaultURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid vault URL %q: expected https://<vault-name>.vault.azure.net", vaultURL)
	}

	days := options.RecoverableDays
	if days == 0 {
		days = DefaultRecoverableDays
	}
	if days < 0 {
		return nil, fmt.Errorf("recoverable days must be positive, got %d", days)
	}
	pageSize := options.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("vault", vaultURL)

	opts := []store.Option{
		store.WithRecoverableDays(int(days)),
		store.WithLogger(logger),
	}
	if options.Clock != nil {
		clock := options.Clock
		opts = append(opts, store.WithClock(func() time.Time { return clock().UTC() }))
	}
	if options.Registerer != nil {
		opts = append(opts, store.WithMetrics(store.NewMetrics(options.Registerer)))
	}

	return &Client{
		vaultURL:        vaultURL,
		credential:      credential,
		store:           store.New(opts...),
		logger:          logger,
		recoverableDays: days,
		pageSize:        pageSize,
	}, nil
}

// VaultURL returns the base URL used to build secret identifiers.
func (c *Client) VaultURL() string {
	return c.vaultURL
}

// HasCredential reports whether the client was built with a credential.
func (c *Client) HasCredential() bool {
	return c.credential != nil
}

// SetSecret stores a new version of name. Tags, content type and the enabled
// attribute in parameters seed the new version.
func (c *Client) SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, _ *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error) {
	if err := validateName(name); err != nil {
		return azsecrets.SetSecretResponse{}, err
	}

	props := &lifecycle.Properties{
		Name:        name,
		ContentType: parameters.ContentType,
		Tags:        fromTags(parameters.Tags),
	}
	if parameters.SecretAttributes != nil {
		props.Enabled = parameters.SecretAttributes.Enabled
	}
	var value string
	if parameters.Value != nil {
		value = *parameters.Value
	}

	rec, err := c.store.SetSecret(ctx, name, value, props)
	if err != nil {
		return azsecrets.SetSecretResponse{}, translate(err, name, "")
	}
	return azsecrets.SetSecretResponse{Secret: c.toSecret(rec)}, nil
}

// GetSecret returns the current version of name, or a specific version when
// version is not empty.
func (c *Client) GetSecret(ctx context.Context, name string, version string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	if err := validateName(name); err != nil {
		return azsecrets.GetSecretResponse{}, err
	}
	rec, err := c.store.GetSecretVersion(ctx, name, version)
	if err != nil {
		return azsecrets.GetSecretResponse{}, translate(err, name, version)
	}
	return azsecrets.GetSecretResponse{Secret: c.toSecret(rec)}, nil
}

// DeleteSecret soft-deletes name and returns the deleted snapshot.
func (c *Client) DeleteSecret(ctx context.Context, name string, _ *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error) {
	if err := validateName(name); err != nil {
		return azsecrets.DeleteSecretResponse{}, err
	}
	rec, err := c.store.DeleteSecret(ctx, name)
	if err != nil {
		return azsecrets.DeleteSecretResponse{}, translate(err, name, "")
	}
	return azsecrets.DeleteSecretResponse{DeletedSecret: c.toDeletedSecret(rec)}, nil
}

// GetDeletedSecret returns a soft-deleted secret, value included.
func (c *Client) GetDeletedSecret(ctx context.Context, name string, _ *azsecrets.GetDeletedSecretOptions) (azsecrets.GetDeletedSecretResponse, error) {
	if err := validateName(name); err != nil {
		return azsecrets.GetDeletedSecretResponse{}, err
	}
	rec, err := c.store.GetDeletedSecret(ctx, name)
	if err != nil {
		return azsecrets.GetDeletedSecretResponse{}, translate(err, name, "")
	}
	return azsecrets.GetDeletedSecretResponse{DeletedSecret: c.toDeletedSecret(rec)}, nil
}

// PurgeDeletedSecret permanently removes a soft-deleted secret.
func (c *Client) PurgeDeletedSecret(ctx context.Context, name string, _ *azsecrets.PurgeDeletedSecretOptions) (azsecrets.PurgeDeletedSecretResponse, error) {
	if err := validateName(name); err != nil {
		return azsecrets.PurgeDeletedSecretResponse{}, err
	}
	if err := c.store.PurgeDeletedSecret(ctx, name); err != nil {
		return azsecrets.PurgeDeletedSecretResponse{}, translate(err, name, "")
	}
	return azsecrets.PurgeDeletedSecretResponse{}, nil
}

// RecoverDeletedSecret restores a soft-deleted secret.
func (c *Client) RecoverDeletedSecret(ctx context.Context, name string, _ *azsecrets.RecoverDeletedSecretOptions) (azsecrets.RecoverDeletedSecretResponse, error) {
	if err := validateName(name); err != nil {
		return azsecrets.RecoverDeletedSecretResponse{}, err
	}
	rec, err := c.store.RecoverDeletedSecret(ctx, name)
	if err != nil {
		return azsecrets.RecoverDeletedSecretResponse{}, translate(err, name, "")
	}
	return azsecrets.RecoverDeletedSecretResponse{Secret: c.toSecret(rec)}, nil
}

// UpdateSecretProperties changes the content type, tags or enabled flag of the
// current version of name without creating a new version. version must be
// empty or the current version. Omitted fields are left unchanged and a
// non-nil Tags map replaces the tag set.
func (c *Client) UpdateSecretProperties(ctx context.Context, name string, version string, parameters azsecrets.UpdateSecretPropertiesParameters, _ *azsecrets.UpdateSecretPropertiesOptions) (azsecrets.UpdateSecretPropertiesResponse, error) {
	if err := validateName(name); err != nil {
		return azsecrets.UpdateSecretPropertiesResponse{}, err
	}
	props := lifecycle.Properties{
		Name:        name,
		ContentType: parameters.ContentType,
		Tags:        fromTags(parameters.Tags),
	}
	if parameters.SecretAttributes != nil {
		props.Enabled = parameters.SecretAttributes.Enabled
	}

	rec, err := c.store.UpdateSecretVersionProperties(ctx, version, props)
	if err != nil {
		return azsecrets.UpdateSecretPropertiesResponse{}, translate(err, name, version)
	}
	return azsecrets.UpdateSecretPropertiesResponse{Secret: c.toSecret(rec)}, nil
}

// PurgeExpired purges deleted secrets whose scheduled purge date has passed
// and returns their names.
func (c *Client) PurgeExpired(ctx context.Context) ([]string, error) {
	return c.store.PurgeExpired(ctx)
}

// Stats returns the number of active and deleted secrets.
func (c *Client) Stats() (active, deleted int) {
	return c.store.Counts()
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return badParameter(name, "Secret name must not be empty.")
	}
	return nil
}
