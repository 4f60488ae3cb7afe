package keyvault

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/kvemu/internal/lifecycle"
)

// NewListSecretPropertiesPager lists the current version of every active
// secret, ordered by name. Values are not included.
func (c *Client) NewListSecretPropertiesPager(_ *azsecrets.ListSecretPropertiesOptions) *runtime.Pager[azsecrets.ListSecretPropertiesResponse] {
	return newRecordPager(c, "/secrets",
		func(ctx context.Context) ([]lifecycle.Record, error) {
			return c.store.ListSecrets(ctx)
		},
		func(recs []lifecycle.Record, next *string) azsecrets.ListSecretPropertiesResponse {
			page := azsecrets.ListSecretPropertiesResponse{}
			page.NextLink = next
			page.Value = make([]*azsecrets.SecretProperties, 0, len(recs))
			for _, rec := range recs {
				page.Value = append(page.Value, c.toSecretProperties(rec))
			}
			return page
		},
		func(p azsecrets.ListSecretPropertiesResponse) *string { return p.NextLink },
	)
}

// NewListDeletedSecretPropertiesPager lists every soft-deleted secret, ordered
// by name.
func (c *Client) NewListDeletedSecretPropertiesPager(_ *azsecrets.ListDeletedSecretPropertiesOptions) *runtime.Pager[azsecrets.ListDeletedSecretPropertiesResponse] {
	return newRecordPager(c, "/deletedsecrets",
		func(ctx context.Context) ([]lifecycle.Record, error) {
			return c.store.ListDeletedSecrets(ctx)
		},
		func(recs []lifecycle.Record, next *string) azsecrets.ListDeletedSecretPropertiesResponse {
			page := azsecrets.ListDeletedSecretPropertiesResponse{}
			page.NextLink = next
			page.Value = make([]*azsecrets.DeletedSecretProperties, 0, len(recs))
			for _, rec := range recs {
				page.Value = append(page.Value, c.toDeletedSecretProperties(rec))
			}
			return page
		},
		func(p azsecrets.ListDeletedSecretPropertiesResponse) *string { return p.NextLink },
	)
}

// NewListSecretPropertiesVersionsPager lists every version of an active
// secret, oldest first. The first NextPage fails with a SecretNotFound
// ResponseError when name is not active.
func (c *Client) NewListSecretPropertiesVersionsPager(name string, _ *azsecrets.ListSecretPropertiesVersionsOptions) *runtime.Pager[azsecrets.ListSecretPropertiesVersionsResponse] {
	return newRecordPager(c, "/secrets/"+url.PathEscape(name)+"/versions",
		func(ctx context.Context) ([]lifecycle.Record, error) {
			if err := validateName(name); err != nil {
				return nil, err
			}
			recs, err := c.store.ListVersions(ctx, name)
			return recs, translate(err, name, "")
		},
		func(recs []lifecycle.Record, next *string) azsecrets.ListSecretPropertiesVersionsResponse {
			page := azsecrets.ListSecretPropertiesVersionsResponse{}
			page.NextLink = next
			page.Value = make([]*azsecrets.SecretProperties, 0, len(recs))
			for _, rec := range recs {
				page.Value = append(page.Value, c.toSecretProperties(rec))
			}
			return page
		},
		func(p azsecrets.ListSecretPropertiesVersionsResponse) *string { return p.NextLink },
	)
}

// newRecordPager serves a snapshot taken on the first fetch in pages of
// c.pageSize. Later pages never observe writes made after the snapshot.
func newRecordPager[P any](
	c *Client,
	path string,
	load func(context.Context) ([]lifecycle.Record, error),
	build func([]lifecycle.Record, *string) P,
	nextLink func(P) *string,
) *runtime.Pager[P] {
	var (
		records []lifecycle.Record
		loaded  bool
		offset  int
	)
	return runtime.NewPager(runtime.PagingHandler[P]{
		More: func(page P) bool {
			return nextLink(page) != nil
		},
		Fetcher: func(ctx context.Context, _ *P) (P, error) {
			if !loaded {
				recs, err := load(ctx)
				if err != nil {
					var zero P
					return zero, err
				}
				records, loaded = recs, true
			}
			end := min(offset+c.pageSize, len(records))
			var next *string
			if end < len(records) {
				next = to.Ptr(fmt.Sprintf("%s%s?maxresults=%d&$skiptoken=%d", c.vaultURL, path, c.pageSize, end))
			}
			page := build(records[offset:end], next)
			offset = end
			return page, nil
		},
	})
}

// pages splits recs into page-sized chunks, always returning at least one
// (possibly empty) chunk.
func (c *Client) pages(recs []lifecycle.Record) [][]lifecycle.Record {
	if len(recs) == 0 {
		return [][]lifecycle.Record{nil}
	}
	var out [][]lifecycle.Record
	for start := 0; start < len(recs); start += c.pageSize {
		out = append(out, recs[start:min(start+c.pageSize, len(recs))])
	}
	return out
}
