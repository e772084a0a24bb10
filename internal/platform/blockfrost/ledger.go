package blockfrost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// FetchTransaction looks up a transaction by hash. An unknown hash returns an
// error wrapping domain.ErrNotFound.
func (c *Client) FetchTransaction(ctx context.Context, hash string) (domain.Transaction, error) {
	body, err := c.doGet(ctx, "/txs/"+url.PathEscape(hash))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("blockfrost: get tx %s: %w", hash, err)
	}
	var tx APITransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return domain.Transaction{}, fmt.Errorf("blockfrost: decode tx %s: %w", hash, err)
	}
	return tx.ToDomain(), nil
}

// FetchBlock looks up a block by hash or height.
func (c *Client) FetchBlock(ctx context.Context, ref string) (domain.Block, error) {
	body, err := c.doGet(ctx, "/blocks/"+url.PathEscape(ref))
	if err != nil {
		return domain.Block{}, fmt.Errorf("blockfrost: get block %s: %w", ref, err)
	}
	var b APIBlock
	if err := json.Unmarshal(body, &b); err != nil {
		return domain.Block{}, fmt.Errorf("blockfrost: decode block %s: %w", ref, err)
	}
	return b.ToDomain(), nil
}

// ConfirmationDepth returns the confirmations of the block holding hash. Any
// failure along the way yields 0 so callers never complete a sale on error.
func (c *Client) ConfirmationDepth(ctx context.Context, hash string) int {
	tx, err := c.FetchTransaction(ctx, hash)
	if err != nil || tx.Block == "" {
		return 0
	}
	block, err := c.FetchBlock(ctx, tx.Block)
	if err != nil {
		return 0
	}
	return block.Confirmations
}

var _ domain.LedgerClient = (*Client)(nil)
