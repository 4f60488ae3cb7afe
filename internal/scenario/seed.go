package scenario

import (
	"context"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/joho/godotenv"

	dserrors "github.com/systmms/kvemu/internal/errors"
	"github.com/systmms/kvemu/pkg/keyvault"
)

// SecretName maps an environment variable name onto a Key Vault secret name.
// Key Vault names allow only letters, digits and dashes, so underscores
// become dashes: DB_PASSWORD is stored as DB-PASSWORD.
func SecretName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// Seed stores every entry of a .env file as a secret and returns the secret
// names written, sorted.
func Seed(ctx context.Context, client *keyvault.Client, path string) ([]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, dserrors.UserError{
			Message:    "Failed to read seed file",
			Details:    err.Error(),
			Suggestion: "Seed files use .env syntax: one KEY=value per line",
			Err:        err,
		}
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		name := SecretName(key)
		_, err := client.SetSecret(ctx, name, azsecrets.SetSecretParameters{
			Value: to.Ptr(env[key]),
			Tags:  map[string]*string{"source": to.Ptr("seed")},
		}, nil)
		if err != nil {
			return names, dserrors.VaultError("seed", name, err)
		}
		names = append(names, name)
	}
	return names, nil
}
