package domain

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PolicyAsset is a token minted under a Cardano minting policy, as stored in
// the policy_assets collection.
type PolicyAsset struct {
	ID                      primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Asset                   string             `bson:"asset" json:"asset"`
	PolicyID                string             `bson:"policy_id" json:"policy_id"`
	AssetName               string             `bson:"asset_name,omitempty" json:"asset_name,omitempty"`
	Fingerprint             string             `bson:"fingerprint" json:"fingerprint"`
	Quantity                string             `bson:"quantity" json:"quantity"`
	InitialMintTxHash       string             `bson:"initial_mint_tx_hash" json:"initial_mint_tx_hash"`
	MintOrBurnCount         int                `bson:"mint_or_burn_count" json:"mint_or_burn_count"`
	OnchainMetadata         *OnchainMetadata   `bson:"onchain_metadata,omitempty" json:"onchain_metadata,omitempty"`
	OnchainMetadataStandard string             `bson:"onchain_metadata_standard,omitempty" json:"onchain_metadata_standard,omitempty"`
	Metadata                map[string]any     `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Properties              []any              `bson:"properties,omitempty" json:"properties,omitempty"`
}

// OnchainMetadata is the CIP-25 style metadata attached at mint. Keys outside
// the standard set are kept in Traits.
type OnchainMetadata struct {
	Name            string         `bson:"name,omitempty" json:"name,omitempty"`
	Image           any            `bson:"image,omitempty" json:"image,omitempty"`
	MediaType       string         `bson:"mediaType,omitempty" json:"mediaType,omitempty"`
	Description     any            `bson:"description,omitempty" json:"description,omitempty"`
	Files           []MetadataFile `bson:"files,omitempty" json:"files,omitempty"`
	Characteristics any            `bson:"characteristic(s),omitempty" json:"characteristics,omitempty"`
	Traits          map[string]any `bson:",inline" json:"traits,omitempty"`
}

// MetadataFile is one entry of the metadata "files" array.
type MetadataFile struct {
	Src       any    `bson:"src,omitempty" json:"src,omitempty"`
	Name      string `bson:"name,omitempty" json:"name,omitempty"`
	MediaType string `bson:"mediaType,omitempty" json:"mediaType,omitempty"`
}

// standardMetadataKeys are the metadata keys that never count as traits.
var standardMetadataKeys = map[string]bool{
	"name":        true,
	"files":       true,
	"image":       true,
	"mediaType":   true,
	"description": true,
}

// PropertiesFromMetadata returns the values of every non-standard metadata
// key, ordered by key so repeated ingestion produces identical documents.
func PropertiesFromMetadata(raw map[string]any) []any {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		if !standardMetadataKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, raw[k])
	}
	return out
}

// NewOnchainMetadata splits raw mint metadata into the standard fields and the
// remaining traits. It returns nil for empty metadata.
func NewOnchainMetadata(raw map[string]any) *OnchainMetadata {
	if len(raw) == 0 {
		return nil
	}
	md := &OnchainMetadata{Traits: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case "name":
			md.Name, _ = v.(string)
		case "image":
			md.Image = v
		case "mediaType":
			md.MediaType, _ = v.(string)
		case "description":
			md.Description = v
		case "characteristic(s)":
			md.Characteristics = v
		case "files":
			md.Files = metadataFiles(v)
		default:
			md.Traits[k] = v
		}
	}
	return md
}

func metadataFiles(v any) []MetadataFile {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	files := make([]MetadataFile, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		f := MetadataFile{Src: m["src"]}
		f.Name, _ = m["name"].(string)
		f.MediaType, _ = m["mediaType"].(string)
		files = append(files, f)
	}
	return files
}

// PolicyAssetListing is one row of the listing read model: an asset with its
// most recent activity and its listing extension.
type PolicyAssetListing struct {
	PolicyAsset  `bson:",inline"`
	LastActivity *SaleActivity   `bson:"last_activity,omitempty" json:"last_activity"`
	Extend       []ListingExtend `bson:"extend" json:"extend"`
}

// Page is one page of results together with the unpaginated total.
type Page[T any] struct {
	Results []T   `json:"results"`
	Total   int64 `json:"total"`
}

// AssetRef is the summary row returned when enumerating a policy.
type AssetRef struct {
	Asset    string `json:"asset"`
	Quantity string `json:"quantity"`
}

// MarketplaceConfig is the singleton marketplace settings document.
type MarketplaceConfig struct {
	Name                 string `bson:"name" json:"name"`
	ProtocolOwnerAddress string `bson:"protocol_owner_address" json:"protocol_owner_address"`
	ScriptAddress        string `bson:"script_address" json:"script_address"`
	FeeOracleAddress     string `bson:"fee_oracle_address" json:"fee_oracle_address"`
	FeeOracleAsset       string `bson:"fee_oracle_asset" json:"fee_oracle_asset"`
}

// MarketplaceConfigName is the app_config document holding MarketplaceConfig.
const MarketplaceConfigName = "marketplace-config"
