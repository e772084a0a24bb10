package blockfrost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// MaxPageSize is the largest page Blockfrost serves.
const MaxPageSize = 100

// ListPolicyAssets returns one page (1-based) of the assets minted under
// policyID, oldest first.
func (c *Client) ListPolicyAssets(ctx context.Context, policyID string, page, count int) ([]domain.AssetRef, error) {
	if page < 1 {
		page = 1
	}
	if count <= 0 || count > MaxPageSize {
		count = MaxPageSize
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("count", strconv.Itoa(count))
	params.Set("order", "asc")

	body, err := c.doGet(ctx, "/assets/policy/"+url.PathEscape(policyID)+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("blockfrost: list policy %s page %d: %w", policyID, page, err)
	}
	var rows []APIPolicyAsset
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("blockfrost: decode policy %s page %d: %w", policyID, page, err)
	}

	refs := make([]domain.AssetRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, domain.AssetRef{Asset: r.Asset, Quantity: r.Quantity})
	}
	return refs, nil
}

// FetchAsset returns the full description of one asset.
func (c *Client) FetchAsset(ctx context.Context, asset string) (domain.PolicyAsset, error) {
	body, err := c.doGet(ctx, "/assets/"+url.PathEscape(asset))
	if err != nil {
		return domain.PolicyAsset{}, fmt.Errorf("blockfrost: get asset %s: %w", asset, err)
	}
	var a APIAsset
	if err := json.Unmarshal(body, &a); err != nil {
		return domain.PolicyAsset{}, fmt.Errorf("blockfrost: decode asset %s: %w", asset, err)
	}
	return a.ToDomain(), nil
}

var _ domain.AssetSource = (*Client)(nil)
