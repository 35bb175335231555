package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glint-chain/glintd/crypto"
	glinttime "github.com/glint-chain/glintd/libs/time"
	"github.com/glint-chain/glintd/version"
)

func makeBlockIDForHeader(header *Header) BlockID {
	return BlockID{
		Hash: header.Hash(),
		PartsHeader: PartSetHeader{
			Total: 1,
			Hash:  crypto.Checksum(header.Hash()),
		},
	}
}

func makeTestHeader(chainID string, height int64, valSet, nextValSet *ValidatorSet) *Header {
	return &Header{
		Version:            version.Consensus{Block: version.BlockProtocol},
		ChainID:            chainID,
		Height:             height,
		Time:               glinttime.Now(),
		ValidatorsHash:     valSet.Hash(),
		NextValidatorsHash: nextValSet.Hash(),
		ProposerAddress:    valSet.Validators[0].Address,
	}
}

func TestSignedHeaderValidateBasic(t *testing.T) {
	const chainID = "test"

	valSet, keys := makeValSet(t, 10, 10, 10, 10)
	header := makeTestHeader(chainID, 5, valSet, valSet)
	blockID := makeBlockIDForHeader(header)
	commit := signCommit(t, chainID, 5, blockID, valSet, keys, []bool{true, true, true, true})

	sh := SignedHeader{Header: header, Commit: commit}
	require.NoError(t, sh.ValidateBasic(chainID))

	// missing header / commit
	assert.Error(t, SignedHeader{Header: nil, Commit: commit}.ValidateBasic(chainID))
	assert.Error(t, SignedHeader{Header: header, Commit: nil}.ValidateBasic(chainID))

	// different chain
	assert.Error(t, sh.ValidateBasic("other-chain"))

	// commit height doesn't match the header
	badCommit := signCommit(t, chainID, 6, blockID, valSet, keys, []bool{true, true, true, true})
	assert.Error(t, SignedHeader{Header: header, Commit: badCommit}.ValidateBasic(chainID))

	// commit signs a different block
	otherHeader := makeTestHeader(chainID, 5, valSet, valSet)
	otherHeader.AppHash = crypto.Checksum([]byte("app_hash"))
	badCommit = signCommit(t, chainID, 5, makeBlockIDForHeader(otherHeader), valSet, keys,
		[]bool{true, true, true, true})
	err := SignedHeader{Header: header, Commit: badCommit}.ValidateBasic(chainID)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "commit signs block")
	}
}

func TestLightBlockValidateBasic(t *testing.T) {
	const chainID = "test"

	valSet, keys := makeValSet(t, 10, 10, 10, 10)
	nextValSet, _ := makeValSet(t, 10, 10, 10, 10)
	header := makeTestHeader(chainID, 5, valSet, nextValSet)
	blockID := makeBlockIDForHeader(header)
	commit := signCommit(t, chainID, 5, blockID, valSet, keys, []bool{true, true, true, true})

	sh := &SignedHeader{Header: header, Commit: commit}

	lb := LightBlock{SignedHeader: sh, ValidatorSet: valSet, NextValidatorSet: nextValSet}
	require.NoError(t, lb.ValidateBasic(chainID))

	// missing fields
	assert.Error(t, LightBlock{ValidatorSet: valSet, NextValidatorSet: nextValSet}.ValidateBasic(chainID))
	assert.Error(t, LightBlock{SignedHeader: sh, NextValidatorSet: nextValSet}.ValidateBasic(chainID))
	assert.Error(t, LightBlock{SignedHeader: sh, ValidatorSet: valSet}.ValidateBasic(chainID))

	// validator sets inconsistent with the header
	err := LightBlock{SignedHeader: sh, ValidatorSet: nextValSet, NextValidatorSet: nextValSet}.ValidateBasic(chainID)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "validator hash of header")
	}
	err = LightBlock{SignedHeader: sh, ValidatorSet: valSet, NextValidatorSet: valSet}.ValidateBasic(chainID)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "next validator hash of header")
	}
}
