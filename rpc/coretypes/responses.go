package coretypes

import (
	"time"

	"github.com/glint-chain/glintd/libs/bytes"
	"github.com/glint-chain/glintd/types"
)

// ResultCommit is a commit and whether it is canonical, i.e. committed at
// height+1. /commit
type ResultCommit struct {
	types.SignedHeader `json:"signed_header"`
	CanonicalCommit    bool `json:"canonical"`
}

// NewResultCommit is a helper to initialize the ResultCommit with the commit
// from the header at height+1.
func NewResultCommit(header *types.Header, commit *types.Commit,
	canonical bool) *ResultCommit {

	return &ResultCommit{
		SignedHeader: types.SignedHeader{
			Header: header,
			Commit: commit,
		},
		CanonicalCommit: canonical,
	}
}

// ResultValidators is a page of validators for a height. /validators
type ResultValidators struct {
	BlockHeight int64              `json:"block_height"`
	Validators  []*types.Validator `json:"validators"`
	// Count of actual validators in this result
	Count int `json:"count"`
	// Total number of validators
	Total int `json:"total"`
}

// ResultBroadcastEvidence is the result of broadcasting evidence.
// /broadcast_evidence
type ResultBroadcastEvidence struct {
	Hash []byte `json:"hash"`
}

// SyncInfo describes the sync progress of a node.
type SyncInfo struct {
	LatestBlockHash   bytes.HexBytes `json:"latest_block_hash"`
	LatestBlockHeight int64          `json:"latest_block_height"`
	LatestBlockTime   time.Time      `json:"latest_block_time"`
	CatchingUp        bool           `json:"catching_up"`
}

// NodeInfo identifies a node.
type NodeInfo struct {
	Network string `json:"network"` // the chain ID
	Version string `json:"version"`
	Moniker string `json:"moniker"`
}

// ResultStatus describes node info and sync progress. /status
type ResultStatus struct {
	NodeInfo NodeInfo `json:"node_info"`
	SyncInfo SyncInfo `json:"sync_info"`
}
