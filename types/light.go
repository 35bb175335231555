package types

import (
	"bytes"
	"errors"
	"fmt"
)

// LightBlock is a SignedHeader and a ValidatorSet.
// It is the basis of the light client, plus the next validator set which is
// required for verifying headers further than one height away.
type LightBlock struct {
	*SignedHeader    `json:"signed_header"`
	ValidatorSet     *ValidatorSet `json:"validator_set"`
	NextValidatorSet *ValidatorSet `json:"next_validator_set"`

	// Provider records which peer supplied the block. Empty for blocks
	// generated locally (e.g. in tests).
	Provider string `json:"provider"`
}

// ValidateBasic checks that the data is correct and consistent
//
// This does no verification of the signatures
func (lb LightBlock) ValidateBasic(chainID string) error {
	if lb.SignedHeader == nil {
		return errors.New("missing signed header")
	}
	if lb.ValidatorSet == nil {
		return errors.New("missing validator set")
	}
	if lb.NextValidatorSet == nil {
		return errors.New("missing next validator set")
	}

	if err := lb.SignedHeader.ValidateBasic(chainID); err != nil {
		return fmt.Errorf("invalid signed header: %w", err)
	}
	if err := lb.ValidatorSet.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid validator set: %w", err)
	}
	if err := lb.NextValidatorSet.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid next validator set: %w", err)
	}

	// make sure the validator sets are consistent with the header
	if valSetHash := lb.ValidatorSet.Hash(); !bytes.Equal(lb.Header.ValidatorsHash, valSetHash) {
		return fmt.Errorf("expected validator hash of header to match validator set hash (%X != %X)",
			lb.Header.ValidatorsHash, valSetHash,
		)
	}
	if nextValSetHash := lb.NextValidatorSet.Hash(); !bytes.Equal(lb.Header.NextValidatorsHash, nextValSetHash) {
		return fmt.Errorf("expected next validator hash of header to match next validator set hash (%X != %X)",
			lb.Header.NextValidatorsHash, nextValSetHash,
		)
	}

	return nil
}

// String returns a string representation of the LightBlock.
func (lb LightBlock) String() string {
	return lb.StringIndented("")
}

// StringIndented returns an indented string representation of the LightBlock.
//
// SignedHeader
// ValidatorSet
// NextValidatorSet
// Provider
func (lb LightBlock) StringIndented(indent string) string {
	return fmt.Sprintf(`LightBlock{
%s  %v
%s  %v
%s  %v
%s  %s
%s}`,
		indent, lb.SignedHeader.StringIndented(indent+"  "),
		indent, lb.ValidatorSet.StringIndented(indent+"  "),
		indent, lb.NextValidatorSet.StringIndented(indent+"  "),
		indent, lb.Provider,
		indent)
}
