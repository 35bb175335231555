package light

import (
	"errors"
	"fmt"
	"time"

	"github.com/glint-chain/glintd/crypto"
)

// TrustOptions are the trust parameters needed for when a new light client
// connects to the network or when a light client that has been offline for
// longer than the trusting period connects to the network.
//
// The expectation is the user will get this information from a trusted
// source like a validator, a friend, or a secure website.
type TrustOptions struct {
	// Only trust commits up to this old.
	// Should be equal to the unbonding period minus a configurable evidence
	// submission synchrony bound.
	Period time.Duration

	// Height and Hash must both be provided to force the trusting of a
	// particular height and hash.
	Height int64
	Hash   []byte
}

// ValidateBasic performs basic validation.
func (opts TrustOptions) ValidateBasic() error {
	if opts.Period <= 0 {
		return errors.New("negative or zero period")
	}
	if opts.Height <= 0 {
		return errors.New("negative or zero height")
	}
	if len(opts.Hash) != crypto.HashSize {
		return fmt.Errorf("expected hash size to be %d bytes, got %d bytes",
			crypto.HashSize,
			len(opts.Hash),
		)
	}
	return nil
}
