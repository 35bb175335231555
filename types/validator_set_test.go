package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glint-chain/glintd/crypto"
	"github.com/glint-chain/glintd/crypto/ed25519"
	glintmath "github.com/glint-chain/glintd/libs/math"
	glinttime "github.com/glint-chain/glintd/libs/time"
)

// makeValSet returns a validator set with the given voting powers and the
// private keys ordered to match valSet.Validators.
func makeValSet(t *testing.T, powers ...int64) (*ValidatorSet, []crypto.PrivKey) {
	t.Helper()

	vals := make([]*Validator, len(powers))
	keyByAddr := make(map[string]crypto.PrivKey, len(powers))
	for i, power := range powers {
		key := ed25519.GenPrivKey()
		vals[i] = NewValidator(key.PubKey(), power)
		keyByAddr[string(vals[i].Address)] = key
	}

	valSet := NewValidatorSet(vals)
	keys := make([]crypto.PrivKey, len(powers))
	for i, val := range valSet.Validators {
		keys[i] = keyByAddr[string(val.Address)]
	}
	return valSet, keys
}

// signCommit produces a commit for blockID where signers[i] == true means
// validator i contributed a valid precommit.
func signCommit(
	t *testing.T,
	chainID string,
	height int64,
	blockID BlockID,
	valSet *ValidatorSet,
	keys []crypto.PrivKey,
	signers []bool,
) *Commit {
	t.Helper()

	sigs := make([]CommitSig, len(keys))
	for i := range sigs {
		sigs[i] = NewCommitSigAbsent()
	}

	for i, key := range keys {
		if !signers[i] {
			continue
		}
		vote := &Vote{
			ValidatorAddress: valSet.Validators[i].Address,
			ValidatorIndex:   i,
			Height:           height,
			Round:            1,
			Timestamp:        glinttime.Now(),
			Type:             PrecommitType,
			BlockID:          blockID,
		}
		sig, err := key.Sign(vote.SignBytes(chainID))
		require.NoError(t, err)
		vote.Signature = sig
		sigs[i] = vote.CommitSig()
	}

	return NewCommit(height, 1, blockID, sigs)
}

func TestValidatorSet_VerifyCommitLight(t *testing.T) {
	const (
		chainID = "test"
		height  = int64(5)
	)
	blockID := makeBlockIDRandom()

	valSet, keys := makeValSet(t, 10, 10, 10, 10) // total 40, needed > 26
	all := []bool{true, true, true, true}

	// all validators signed
	commit := signCommit(t, chainID, height, blockID, valSet, keys, all)
	assert.NoError(t, valSet.VerifyCommitLight(chainID, blockID, height, commit))

	// 3 out of 4 signed (30 > 26)
	commit = signCommit(t, chainID, height, blockID, valSet, keys, []bool{true, true, true, false})
	assert.NoError(t, valSet.VerifyCommitLight(chainID, blockID, height, commit))

	// 2 out of 4 signed (20 <= 26)
	commit = signCommit(t, chainID, height, blockID, valSet, keys, []bool{true, true, false, false})
	err := valSet.VerifyCommitLight(chainID, blockID, height, commit)
	if assert.Error(t, err) {
		assert.Equal(t, ErrNotEnoughVotingPowerSigned{Got: 20, Needed: 26}, err)
		assert.True(t, IsErrNotEnoughVotingPowerSigned(err))
	}

	// commit for a different chain
	commit = signCommit(t, "other-chain", height, blockID, valSet, keys, all)
	err = valSet.VerifyCommitLight(chainID, blockID, height, commit)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "wrong signature")
	}

	// commit for a different block
	commit = signCommit(t, chainID, height, makeBlockIDRandom(), valSet, keys, all)
	err = valSet.VerifyCommitLight(chainID, blockID, height, commit)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "wrong block ID")
	}

	// wrong height
	commit = signCommit(t, chainID, height, blockID, valSet, keys, all)
	assert.Error(t, valSet.VerifyCommitLight(chainID, blockID, height+1, commit))

	// signature count doesn't match the validator set size
	commit = signCommit(t, chainID, height, blockID, valSet, keys, all)
	commit.Signatures = commit.Signatures[:3]
	assert.Error(t, valSet.VerifyCommitLight(chainID, blockID, height, commit))
}

// VerifyCommitLight returns as soon as 2/3 of the voting power has been
// tallied, so a corrupted signature past the threshold goes unnoticed.
func TestValidatorSet_VerifyCommitLight_ReturnsAtThreshold(t *testing.T) {
	const (
		chainID = "test"
		height  = int64(5)
	)
	blockID := makeBlockIDRandom()

	valSet, keys := makeValSet(t, 10, 10, 10, 10)
	commit := signCommit(t, chainID, height, blockID, valSet, keys, []bool{true, true, true, true})
	commit.Signatures[3].Signature = []byte("invalid signature")

	assert.NoError(t, valSet.VerifyCommitLight(chainID, blockID, height, commit))
}

func TestValidatorSet_VerifyCommitLightTrusting(t *testing.T) {
	const (
		chainID = "test"
		height  = int64(5)
	)
	blockID := makeBlockIDRandom()

	valSet, keys := makeValSet(t, 10, 10, 10, 10) // total 40
	oneThird := glintmath.Fraction{Numerator: 1, Denominator: 3}

	// 2 out of 4 signed: 20 > 40/3
	commit := signCommit(t, chainID, height, blockID, valSet, keys, []bool{true, true, false, false})
	assert.NoError(t, valSet.VerifyCommitLightTrusting(chainID, commit, oneThird))

	// 1 out of 4 signed: 10 <= 40/3
	commit = signCommit(t, chainID, height, blockID, valSet, keys, []bool{true, false, false, false})
	err := valSet.VerifyCommitLightTrusting(chainID, commit, oneThird)
	if assert.Error(t, err) {
		assert.Equal(t, ErrNotEnoughVotingPowerSigned{Got: 10, Needed: 13}, err)
	}

	// zero denominator is rejected
	commit = signCommit(t, chainID, height, blockID, valSet, keys, []bool{true, true, true, true})
	assert.Error(t, valSet.VerifyCommitLightTrusting(chainID, commit,
		glintmath.Fraction{Numerator: 1, Denominator: 0}))

	// a duplicated vote from the same validator is rejected
	commit = signCommit(t, chainID, height, blockID, valSet, keys, []bool{true, false, false, false})
	commit.Signatures[1] = commit.Signatures[0]
	err = valSet.VerifyCommitLightTrusting(chainID, commit, oneThird)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "double vote")
	}
}

// The commit may come from a different validator set than the one we trust.
// Only the overlapping validators count towards the trust level.
func TestValidatorSet_VerifyCommitLightTrusting_Overlap(t *testing.T) {
	const (
		chainID = "test"
		height  = int64(5)
	)
	blockID := makeBlockIDRandom()

	trustedSet, trustedKeys := makeValSet(t, 10, 10, 10, 10) // total 40

	// the new set keeps 2 of the trusted validators and adds 2 unknown ones
	newVals := make([]*Validator, 0, 4)
	keyByAddr := make(map[string]crypto.PrivKey, 4)
	for i := 2; i < 4; i++ {
		newVals = append(newVals, trustedSet.Validators[i].Copy())
		keyByAddr[string(trustedSet.Validators[i].Address)] = trustedKeys[i]
	}
	for i := 0; i < 2; i++ {
		key := ed25519.GenPrivKey()
		val := NewValidator(key.PubKey(), 10)
		newVals = append(newVals, val)
		keyByAddr[string(val.Address)] = key
	}
	newSet := NewValidatorSet(newVals)
	newKeys := make([]crypto.PrivKey, len(newSet.Validators))
	for i, val := range newSet.Validators {
		newKeys[i] = keyByAddr[string(val.Address)]
	}

	commit := signCommit(t, chainID, height, blockID, newSet, newKeys, []bool{true, true, true, true})

	// 20 of the trusted power signed, which satisfies 1/3 (> 13)...
	assert.NoError(t, valSetVerifyTrusting(trustedSet, chainID, commit, 1, 3))

	// ...but not 2/3 (> 26)
	err := valSetVerifyTrusting(trustedSet, chainID, commit, 2, 3)
	if assert.Error(t, err) {
		assert.Equal(t, ErrNotEnoughVotingPowerSigned{Got: 20, Needed: 26}, err)
	}
}

func valSetVerifyTrusting(vals *ValidatorSet, chainID string, commit *Commit, num, denom int64) error {
	return vals.VerifyCommitLightTrusting(chainID, commit,
		glintmath.Fraction{Numerator: num, Denominator: denom})
}

func makeBlockIDRandom() BlockID {
	return BlockID{
		Hash: crypto.Checksum([]byte("block")),
		PartsHeader: PartSetHeader{
			Total: 1,
			Hash:  crypto.Checksum([]byte("parts")),
		},
	}
}
