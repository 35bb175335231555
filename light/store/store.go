package store

import (
	"time"

	"github.com/glint-chain/glintd/types"
)

// Status labels the degree of trust a stored light block has. A block starts
// out unverified, becomes verified once it passes the verification predicate
// against a trusted block, and trusted once the bisection it was part of
// completes. A block that fails verification against conflicting evidence is
// marked failed.
type Status byte

const (
	StatusUnverified Status = iota
	StatusVerified
	StatusTrusted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUnverified:
		return "unverified"
	case StatusVerified:
		return "verified"
	case StatusTrusted:
		return "trusted"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Store is anything that can persistently store light blocks, each tagged
// with a Status.
type Store interface {
	// SaveLightBlock saves a LightBlock under the given status.
	//
	// height must be > 0.
	//
	// Saving a block as failed when the same height is already stored as
	// trusted (or vice versa) returns an error: a block the client committed
	// to cannot later be declared bad without going through the fork
	// detection path.
	SaveLightBlock(lb *types.LightBlock, status Status) error

	// DeleteLightBlock deletes the LightBlock at the given height.
	//
	// height must be > 0.
	DeleteLightBlock(height int64) error

	// UpdateStatus sets the status of the LightBlock at the given height.
	// It is a no-op if no block is stored at that height. The same
	// trusted/failed conflict rule as for SaveLightBlock applies.
	UpdateStatus(height int64, status Status) error

	// LightBlock returns the LightBlock that corresponds to the given
	// height, along with its status.
	//
	// height must be > 0.
	//
	// If the LightBlock is not found, ErrLightBlockNotFound is returned.
	LightBlock(height int64) (*types.LightBlock, Status, error)

	// HighestLightBlock returns the stored LightBlock with the greatest
	// height among those with the given status, or nil if there is none.
	HighestLightBlock(status Status) (*types.LightBlock, error)

	// LowestLightBlock returns the stored LightBlock with the smallest
	// height among those with the given status, or nil if there is none.
	LowestLightBlock(status Status) (*types.LightBlock, error)

	// LastLightBlockHeight returns the last (newest) LightBlock height
	// regardless of status.
	//
	// If the store is empty, -1 and nil error are returned.
	LastLightBlockHeight() (int64, error)

	// FirstLightBlockHeight returns the first (oldest) LightBlock height
	// regardless of status.
	//
	// If the store is empty, -1 and nil error are returned.
	FirstLightBlockHeight() (int64, error)

	// LightBlockBefore returns the LightBlock before a certain height.
	//
	// height must be > 0 && <= LastLightBlockHeight.
	LightBlockBefore(height int64) (*types.LightBlock, error)

	// Prune removes light blocks that have fallen outside the trusting
	// period relative to now and, beyond that, the oldest blocks until at
	// most keep blocks remain. The newest trusted block is never removed,
	// whatever its age: it is the root the client resumes from.
	Prune(now time.Time, trustingPeriod time.Duration, keep uint16) error

	// Size returns the number of currently stored light blocks.
	Size() uint16
}
