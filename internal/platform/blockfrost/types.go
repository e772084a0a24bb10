package blockfrost

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// apiError is the error body Blockfrost returns with non-2xx responses.
type apiError struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func apiMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

// APITransaction is the subset of GET /txs/{hash} the client reads.
type APITransaction struct {
	Hash          string `json:"hash"`
	Block         string `json:"block"`
	BlockHeight   int64  `json:"block_height"`
	BlockTime     int64  `json:"block_time"`
	ValidContract bool   `json:"valid_contract"`
}

// ToDomain converts the API transaction.
func (t APITransaction) ToDomain() domain.Transaction {
	return domain.Transaction{
		Hash:          t.Hash,
		Block:         t.Block,
		BlockHeight:   t.BlockHeight,
		BlockTime:     time.Unix(t.BlockTime, 0).UTC(),
		ValidContract: t.ValidContract,
	}
}

// APIBlock is the subset of GET /blocks/{hash_or_number} the client reads.
type APIBlock struct {
	Hash          string `json:"hash"`
	Height        int64  `json:"height"`
	Time          int64  `json:"time"`
	Confirmations int    `json:"confirmations"`
}

// ToDomain converts the API block.
func (b APIBlock) ToDomain() domain.Block {
	return domain.Block{
		Hash:          b.Hash,
		Height:        b.Height,
		Time:          time.Unix(b.Time, 0).UTC(),
		Confirmations: b.Confirmations,
	}
}

// APIPolicyAsset is one row of GET /assets/policy/{policy_id}.
type APIPolicyAsset struct {
	Asset    string `json:"asset"`
	Quantity string `json:"quantity"`
}

// APIAsset is GET /assets/{asset}.
type APIAsset struct {
	Asset                   string         `json:"asset"`
	PolicyID                string         `json:"policy_id"`
	AssetName               string         `json:"asset_name"`
	Fingerprint             string         `json:"fingerprint"`
	Quantity                string         `json:"quantity"`
	InitialMintTxHash       string         `json:"initial_mint_tx_hash"`
	MintOrBurnCount         int            `json:"mint_or_burn_count"`
	OnchainMetadata         map[string]any `json:"onchain_metadata"`
	OnchainMetadataStandard string         `json:"onchain_metadata_standard"`
	Metadata                map[string]any `json:"metadata"`
}

// ToDomain converts the API asset, deriving properties from the non-standard
// on-chain metadata keys.
func (a APIAsset) ToDomain() domain.PolicyAsset {
	return domain.PolicyAsset{
		Asset:                   a.Asset,
		PolicyID:                a.PolicyID,
		AssetName:               a.AssetName,
		Fingerprint:             a.Fingerprint,
		Quantity:                a.Quantity,
		InitialMintTxHash:       a.InitialMintTxHash,
		MintOrBurnCount:         a.MintOrBurnCount,
		OnchainMetadata:         domain.NewOnchainMetadata(a.OnchainMetadata),
		OnchainMetadataStandard: a.OnchainMetadataStandard,
		Metadata:                a.Metadata,
		Properties:              domain.PropertiesFromMetadata(a.OnchainMetadata),
	}
}
