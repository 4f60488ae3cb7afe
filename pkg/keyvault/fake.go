package keyvault

import (
	"context"
	"errors"
	"net/http"
	"strings"

	azfake "github.com/Azure/azure-sdk-for-go/sdk/azcore/fake"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets/fake"
)

// NewFakeServer returns an azsecrets fake server whose handlers forward to c.
// Pass it to fake.NewServerTransport and use the transport in the
// azsecrets.ClientOptions of a real client. Backup and restore are not
// emulated.
func NewFakeServer(c *Client) *fake.Server {
	return &fake.Server{
		SetSecret: func(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (resp azfake.Responder[azsecrets.SetSecretResponse], errResp azfake.ErrorResponder) {
			out, err := c.SetSecret(ctx, name, parameters, options)
			if err != nil {
				setError(&errResp, err)
				return
			}
			resp.SetResponse(http.StatusOK, out, nil)
			return
		},
		GetSecret: func(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (resp azfake.Responder[azsecrets.GetSecretResponse], errResp azfake.ErrorResponder) {
			name, version = splitPath(name, version)
			out, err := c.GetSecret(ctx, name, version, options)
			if err != nil {
				setError(&errResp, err)
				return
			}
			resp.SetResponse(http.StatusOK, out, nil)
			return
		},
		DeleteSecret: func(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (resp azfake.Responder[azsecrets.DeleteSecretResponse], errResp azfake.ErrorResponder) {
			out, err := c.DeleteSecret(ctx, name, options)
			if err != nil {
				setError(&errResp, err)
				return
			}
			resp.SetResponse(http.StatusOK, out, nil)
			return
		},
		GetDeletedSecret: func(ctx context.Context, name string, options *azsecrets.GetDeletedSecretOptions) (resp azfake.Responder[azsecrets.GetDeletedSecretResponse], errResp azfake.ErrorResponder) {
			out, err := c.GetDeletedSecret(ctx, name, options)
			if err != nil {
				setError(&errResp, err)
				return
			}
			resp.SetResponse(http.StatusOK, out, nil)
			return
		},
		PurgeDeletedSecret: func(ctx context.Context, name string, options *azsecrets.PurgeDeletedSecretOptions) (resp azfake.Responder[azsecrets.PurgeDeletedSecretResponse], errResp azfake.ErrorResponder) {
			out, err := c.PurgeDeletedSecret(ctx, name, options)
			if err != nil {
				setError(&errResp, err)
				return
			}
			resp.SetResponse(http.StatusNoContent, out, nil)
			return
		},
		RecoverDeletedSecret: func(ctx context.Context, name string, options *azsecrets.RecoverDeletedSecretOptions) (resp azfake.Responder[azsecrets.RecoverDeletedSecretResponse], errResp azfake.ErrorResponder) {
			out, err := c.RecoverDeletedSecret(ctx, name, options)
			if err != nil {
				setError(&errResp, err)
				return
			}
			resp.SetResponse(http.StatusOK, out, nil)
			return
		},
		UpdateSecretProperties: func(ctx context.Context, name string, version string, parameters azsecrets.UpdateSecretPropertiesParameters, options *azsecrets.UpdateSecretPropertiesOptions) (resp azfake.Responder[azsecrets.UpdateSecretPropertiesResponse], errResp azfake.ErrorResponder) {
			name, version = splitPath(name, version)
			out, err := c.UpdateSecretProperties(ctx, name, version, parameters, options)
			if err != nil {
				setError(&errResp, err)
				return
			}
			resp.SetResponse(http.StatusOK, out, nil)
			return
		},
		NewListSecretPropertiesPager: func(_ *azsecrets.ListSecretPropertiesOptions) (resp azfake.PagerResponder[azsecrets.ListSecretPropertiesResponse]) {
			recs, err := c.store.ListSecrets(context.Background())
			if err != nil {
				resp.AddError(err)
				return
			}
			for _, chunk := range c.pages(recs) {
				page := azsecrets.ListSecretPropertiesResponse{}
				page.Value = make([]*azsecrets.SecretProperties, 0, len(chunk))
				for _, rec := range chunk {
					page.Value = append(page.Value, c.toSecretProperties(rec))
				}
				resp.AddPage(http.StatusOK, page, nil)
			}
			return
		},
		NewListDeletedSecretPropertiesPager: func(_ *azsecrets.ListDeletedSecretPropertiesOptions) (resp azfake.PagerResponder[azsecrets.ListDeletedSecretPropertiesResponse]) {
			recs, err := c.store.ListDeletedSecrets(context.Background())
			if err != nil {
				resp.AddError(err)
				return
			}
			for _, chunk := range c.pages(recs) {
				page := azsecrets.ListDeletedSecretPropertiesResponse{}
				page.Value = make([]*azsecrets.DeletedSecretProperties, 0, len(chunk))
				for _, rec := range chunk {
					page.Value = append(page.Value, c.toDeletedSecretProperties(rec))
				}
				resp.AddPage(http.StatusOK, page, nil)
			}
			return
		},
		NewListSecretPropertiesVersionsPager: func(name string, _ *azsecrets.ListSecretPropertiesVersionsOptions) (resp azfake.PagerResponder[azsecrets.ListSecretPropertiesVersionsResponse]) {
			recs, err := c.store.ListVersions(context.Background(), name)
			if err != nil {
				var re *ResponseError
				if errors.As(translate(err, name, ""), &re) {
					resp.AddResponseError(re.StatusCode, re.ErrorCode)
					return
				}
				resp.AddError(err)
				return
			}
			for _, chunk := range c.pages(recs) {
				page := azsecrets.ListSecretPropertiesVersionsResponse{}
				page.Value = make([]*azsecrets.SecretProperties, 0, len(chunk))
				for _, rec := range chunk {
					page.Value = append(page.Value, c.toSecretProperties(rec))
				}
				resp.AddPage(http.StatusOK, page, nil)
			}
			return
		},
	}
}

// setError reports err through the fake transport. ResponseErrors keep their
// status and Key Vault error code so the real client surfaces an
// *azcore.ResponseError with the same ErrorCode.
func setError(errResp *azfake.ErrorResponder, err error) {
	var re *ResponseError
	if errors.As(err, &re) {
		errResp.SetResponseError(re.StatusCode, re.ErrorCode)
		return
	}
	errResp.SetError(err)
}

// splitPath undoes the fake transport's path matching, which hands over
// "name/version" (or "name/") as the name when a version segment is present.
func splitPath(name, version string) (string, string) {
	if version != "" {
		return name, version
	}
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, version
}
