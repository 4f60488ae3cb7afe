package keyvault

import (
	"net/url"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/kvemu/internal/lifecycle"
)

func (c *Client) secretID(name, version string) *azsecrets.ID {
	return to.Ptr(azsecrets.ID(c.vaultURL + "/secrets/" + url.PathEscape(name) + "/" + version))
}

func (c *Client) recoveryID(name string) *string {
	return to.Ptr(c.vaultURL + "/deletedsecrets/" + url.PathEscape(name))
}

func (c *Client) attributes(rec lifecycle.Record) *azsecrets.SecretAttributes {
	return &azsecrets.SecretAttributes{
		Enabled:         to.Ptr(rec.Enabled),
		Created:         timePtr(rec.CreatedOn),
		Updated:         timePtr(rec.UpdatedOn),
		RecoverableDays: to.Ptr(c.recoverableDays),
		RecoveryLevel:   to.Ptr(RecoveryLevel),
	}
}

func (c *Client) toSecret(rec lifecycle.Record) azsecrets.Secret {
	return azsecrets.Secret{
		Attributes:  c.attributes(rec),
		ContentType: optional(rec.ContentType),
		ID:          c.secretID(rec.Name, rec.Version),
		Tags:        toTags(rec.Tags),
		Value:       to.Ptr(rec.Value),
	}
}

func (c *Client) toDeletedSecret(rec lifecycle.Record) azsecrets.DeletedSecret {
	return azsecrets.DeletedSecret{
		Attributes:         c.attributes(rec),
		ContentType:        optional(rec.ContentType),
		ID:                 c.secretID(rec.Name, rec.Version),
		RecoveryID:         c.recoveryID(rec.Name),
		Tags:               toTags(rec.Tags),
		Value:              to.Ptr(rec.Value),
		DeletedDate:        copyTime(rec.DeletedOn),
		ScheduledPurgeDate: copyTime(rec.ScheduledPurgeOn),
	}
}

func (c *Client) toSecretProperties(rec lifecycle.Record) *azsecrets.SecretProperties {
	return &azsecrets.SecretProperties{
		Attributes:  c.attributes(rec),
		ContentType: optional(rec.ContentType),
		ID:          c.secretID(rec.Name, rec.Version),
		Tags:        toTags(rec.Tags),
	}
}

func (c *Client) toDeletedSecretProperties(rec lifecycle.Record) *azsecrets.DeletedSecretProperties {
	return &azsecrets.DeletedSecretProperties{
		Attributes:         c.attributes(rec),
		ContentType:        optional(rec.ContentType),
		ID:                 c.secretID(rec.Name, rec.Version),
		RecoveryID:         c.recoveryID(rec.Name),
		Tags:               toTags(rec.Tags),
		DeletedDate:        copyTime(rec.DeletedOn),
		ScheduledPurgeDate: copyTime(rec.ScheduledPurgeOn),
	}
}

// fromTags keeps the nil/empty distinction: nil means "leave tags alone".
func fromTags(tags map[string]*string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if v != nil {
			out[k] = *v
		} else {
			out[k] = ""
		}
	}
	return out
}

func toTags(tags map[string]string) map[string]*string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]*string, len(tags))
	for k, v := range tags {
		out[k] = to.Ptr(v)
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return to.Ptr(s)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return to.Ptr(t)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return to.Ptr(*t)
}
