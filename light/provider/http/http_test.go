package http

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/glint-chain/glintd/crypto/ed25519"
	"github.com/glint-chain/glintd/types"
)

func TestValidateUniqueValidators(t *testing.T) {
	v1 := types.NewValidator(ed25519.GenPrivKey().PubKey(), 10)
	v2 := types.NewValidator(ed25519.GenPrivKey().PubKey(), 10)

	assert.NoError(t, validateUniqueValidators(nil))
	assert.NoError(t, validateUniqueValidators([]*types.Validator{v1, v2}))

	// a malicious node can repeat a validator across /validators pages
	err := validateUniqueValidators([]*types.Validator{v1, v2, v1})
	assert.Error(t, err)
}
