// Package keyvault is an in-process emulator of the Azure Key Vault secrets API.
//
// A Client exposes the same method set as azsecrets.Client (set, get, delete,
// recover, purge, update properties and the three list pagers) and returns the
// same azsecrets parameter and response types, so code written against the real
// SDK can be pointed at the emulator with little or no change. All state lives
// in memory and belongs to the Client that created it; two clients never share
// secrets.
//
// # Lifecycle
//
// Every secret name lives in exactly one of two partitions:
//
//	          set                  delete
//	(none) ─────────▶ active ─────────────────▶ deleted
//	                   ▲  │ set (new version)     │  │
//	                   │  └──────┘                │  │ purge
//	                   └──────── recover ─────────┘  ▼
//	                                               (none)
//
// Setting a name that is currently soft-deleted discards the deleted history
// and starts a fresh active timeline. Deleted secrets stay recoverable for the
// configured number of recoverable days; Client.PurgeExpired removes those
// whose scheduled purge date has passed.
//
// # Errors
//
// Failures are returned as *ResponseError values carrying an HTTP-style status
// code, a Key Vault error code and a stable message:
//
//	Secret with name 'S' not found.            404 SecretNotFound
//	Deleted secret with name 'S' not found.    404 DeletedSecretNotFound
//	Secret name must not be empty.             400 BadParameter
//
// Use errors.Is with ErrSecretNotFound, ErrDeletedSecretNotFound and
// ErrInvalidArgument, or the IsSecretNotFound style helpers.
//
// # Concurrency
//
// A Client is safe for concurrent use. Operations on the same secret name
// serialize; operations on different names run in parallel. A context that is
// already done, or that ends while an operation waits for its name, aborts the
// operation before it changes anything. Once an operation has started it always
// completes.
//
// # Using a real azsecrets.Client
//
// NewFakeServer adapts a Client to the azsecrets/fake server shape, which lets
// an unmodified *azsecrets.Client run against the emulator:
//
//	emu, _ := keyvault.NewClientWithoutCredential("https://fake-vault.vault.azure.net", nil)
//	client, _ := azsecrets.NewClient(emu.VaultURL(), &azfake.TokenCredential{}, &azsecrets.ClientOptions{
//		ClientOptions: azcore.ClientOptions{
//			Transport: fake.NewServerTransport(keyvault.NewFakeServer(emu)),
//		},
//	})
package keyvault
