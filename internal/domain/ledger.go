package domain

import (
	"context"
	"time"
)

// Transaction is the ledger view of a submitted transaction.
type Transaction struct {
	Hash        string
	Block       string
	BlockHeight int64
	BlockTime   time.Time
	// ValidContract is false when phase-2 script validation failed and only
	// collateral was consumed.
	ValidContract bool
}

// Block is the ledger view of a block.
type Block struct {
	Hash          string
	Height        int64
	Time          time.Time
	Confirmations int
}

// LedgerClient looks up transactions and their confirmation depth.
type LedgerClient interface {
	FetchTransaction(ctx context.Context, hash string) (Transaction, error)
	FetchBlock(ctx context.Context, ref string) (Block, error)
	// ConfirmationDepth returns the number of blocks on top of the one
	// containing hash, or 0 when the depth cannot be determined.
	ConfirmationDepth(ctx context.Context, hash string) int
}

// AssetSource enumerates and describes policy assets on the ledger.
type AssetSource interface {
	ListPolicyAssets(ctx context.Context, policyID string, page, count int) ([]AssetRef, error)
	FetchAsset(ctx context.Context, asset string) (PolicyAsset, error)
}
