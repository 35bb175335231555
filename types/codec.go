package types

import (
	amino "github.com/tendermint/go-amino"

	cryptoamino "github.com/glint-chain/glintd/crypto/encoding/amino"
)

var cdc = amino.NewCodec()

func init() {
	RegisterBlockAmino(cdc)
}

// RegisterBlockAmino registers the block-related types (and the crypto types
// they embed) with the given codec.
func RegisterBlockAmino(cdc *amino.Codec) {
	cryptoamino.RegisterAmino(cdc)
	RegisterEvidences(cdc)
}

// GetCodec returns a codec used by the package. For testing purposes only.
func GetCodec() *amino.Codec {
	return cdc
}
