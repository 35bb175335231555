package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	amino "github.com/tendermint/go-amino"

	"github.com/glint-chain/glintd/crypto"
)

// Evidence represents any provable malicious activity attributable to the
// validators of a chain.
type Evidence interface {
	Height() int64        // height of the infraction
	Hash() []byte         // hash of the evidence
	Time() time.Time      // time of the infraction
	ValidateBasic() error // basic consistency check
	String() string       // string format of the evidence
}

// LightClientAttackEvidence is a generalized evidence that captures all forms
// of known attacks on a light client such that a full node can verify, propose
// and commit the evidence on-chain for punishment of the malicious validators.
// There are three forms of attacks: Lunatic, Equivocation and Amnesia. These
// attacks are exhaustive.
type LightClientAttackEvidence struct {
	ConflictingBlock *LightBlock
	CommonHeight     int64

	// abci specific information
	ByzantineValidators []*Validator // validators in the validator set that misbehaved in creating the conflicting block
	TotalVotingPower    int64        // total voting power of the validator set at the common height
	Timestamp           time.Time    // timestamp of the block at the common height
}

var _ Evidence = &LightClientAttackEvidence{}

// Height returns the last height at which the primary provider and witness
// provider had the same header.
func (l *LightClientAttackEvidence) Height() int64 {
	return l.CommonHeight
}

// Hash returns the hash of the header as well as the common height. This is
// designed to prevent duplication of the same evidence.
func (l *LightClientAttackEvidence) Hash() []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutVarint(buf, l.CommonHeight)
	bz := make([]byte, crypto.HashSize+n)
	copy(bz[:crypto.HashSize], l.ConflictingBlock.Hash())
	copy(bz[crypto.HashSize:], buf[:n])
	return crypto.Checksum(bz)
}

// Time returns the time of the common block where the infraction leveraged
// off.
func (l *LightClientAttackEvidence) Time() time.Time {
	return l.Timestamp
}

// ConflictingHeaderIsInvalid takes a trusted header and matches it against a
// conflicting header to determine whether the conflicting header was the
// product of a valid state transition or not. If it is then all the
// deterministic fields of the header should be the same. If not, it is an
// invalid header and constitutes a lunatic attack.
func (l *LightClientAttackEvidence) ConflictingHeaderIsInvalid(trustedHeader *Header) bool {
	return !bytes.Equal(trustedHeader.ValidatorsHash, l.ConflictingBlock.ValidatorsHash) ||
		!bytes.Equal(trustedHeader.NextValidatorsHash, l.ConflictingBlock.NextValidatorsHash) ||
		!bytes.Equal(trustedHeader.ConsensusHash, l.ConflictingBlock.ConsensusHash) ||
		!bytes.Equal(trustedHeader.AppHash, l.ConflictingBlock.AppHash) ||
		!bytes.Equal(trustedHeader.LastResultsHash, l.ConflictingBlock.LastResultsHash)
}

// GetByzantineValidators finds out what style of attack
// LightClientAttackEvidence was and then works out who the malicious
// validators were and returns them. This is used both for forming the
// ByzantineValidators field and for validating that it is correct. Validators
// are ordered based on validator power.
func (l *LightClientAttackEvidence) GetByzantineValidators(commonVals *ValidatorSet,
	trusted *SignedHeader) []*Validator {
	var validators []*Validator

	// First check if the header is invalid. This means that it is a lunatic
	// attack and therefore we take the validators who are in the commonVals
	// and voted for the lunatic header
	if l.ConflictingHeaderIsInvalid(trusted.Header) {
		for _, commitSig := range l.ConflictingBlock.Commit.Signatures {
			if !commitSig.ForBlock() {
				continue
			}

			_, val := commonVals.GetByAddress(commitSig.ValidatorAddress)
			if val == nil {
				// validator wasn't in the common validator set
				continue
			}
			validators = append(validators, val)
		}
		return validators
	} else if trusted.Commit.Round == l.ConflictingBlock.Commit.Round {
		// This is an equivocation attack as both commits are in the same
		// round. We then find the validators from the conflicting light block
		// validator set that voted in both headers.
		// Validator hashes are the same therefore the indexing order of
		// validators are the same and thus we only need a single loop to find
		// the validators that voted twice.
		for i := 0; i < len(l.ConflictingBlock.Commit.Signatures); i++ {
			sigA := l.ConflictingBlock.Commit.Signatures[i]
			if !sigA.ForBlock() {
				continue
			}

			sigB := trusted.Commit.Signatures[i]
			if !sigB.ForBlock() {
				continue
			}

			_, val := l.ConflictingBlock.ValidatorSet.GetByAddress(sigA.ValidatorAddress)
			validators = append(validators, val)
		}
		return validators
	}
	// if the rounds are different then this is an amnesia attack. Unfortunately, given the nature of the attack,
	// we aren't able yet to deduce which are malicious validators and which are not hence we return an
	// empty validator set.
	return validators
}

// ValidateBasic performs basic validation.
func (l *LightClientAttackEvidence) ValidateBasic() error {
	if l.ConflictingBlock == nil {
		return errors.New("conflicting block is nil")
	}

	// this check needs to be done before we can run validate basic
	if l.ConflictingBlock.Header == nil {
		return errors.New("conflicting block missing header")
	}

	if l.TotalVotingPower <= 0 {
		return errors.New("negative or zero total voting power")
	}

	if l.CommonHeight <= 0 {
		return errors.New("negative or zero common height")
	}

	// check that common height isn't ahead of the height of the conflicting block. It
	// is possible that they are the same height if the light node witnesses either an
	// amnesia or a equivocation attack.
	if l.CommonHeight > l.ConflictingBlock.Height {
		return fmt.Errorf("common height is ahead of the conflicting block height (%d > %d)",
			l.CommonHeight, l.ConflictingBlock.Height)
	}

	if err := l.ConflictingBlock.ValidateBasic(l.ConflictingBlock.ChainID); err != nil {
		return fmt.Errorf("invalid conflicting light block: %w", err)
	}

	return nil
}

// String returns a string representation of LightClientAttackEvidence.
func (l *LightClientAttackEvidence) String() string {
	return fmt.Sprintf(`LightClientAttackEvidence{
		ConflictingBlock: %v,
		CommonHeight: %d,
		ByzatineValidators: %v,
		TotalVotingPower: %d,
		Timestamp: %v}#%X`,
		l.ConflictingBlock.String(), l.CommonHeight, l.ByzantineValidators,
		l.TotalVotingPower, l.Timestamp, l.Hash())
}

//-------------------------------------------------------------------------

// RegisterEvidences registers the evidence types with the given codec.
func RegisterEvidences(cdc *amino.Codec) {
	cdc.RegisterInterface((*Evidence)(nil), nil)
	cdc.RegisterConcrete(&LightClientAttackEvidence{}, "glint/LightClientAttackEvidence", nil)
}
