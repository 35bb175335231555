package cryptoamino

import (
	amino "github.com/tendermint/go-amino"

	"github.com/glint-chain/glintd/crypto"
	"github.com/glint-chain/glintd/crypto/ed25519"
	"github.com/glint-chain/glintd/crypto/secp256k1"
)

var cdc = amino.NewCodec()

func init() {
	RegisterAmino(cdc)
}

// RegisterAmino registers all crypto related types in the given (amino)
// codec.
func RegisterAmino(cdc *amino.Codec) {
	cdc.RegisterInterface((*crypto.PubKey)(nil), nil)
	cdc.RegisterConcrete(ed25519.PubKeyEd25519{},
		ed25519.PubKeyName, nil)
	cdc.RegisterConcrete(secp256k1.PubKeySecp256k1{},
		secp256k1.PubKeyName, nil)

	cdc.RegisterInterface((*crypto.PrivKey)(nil), nil)
	cdc.RegisterConcrete(ed25519.PrivKeyEd25519{},
		ed25519.PrivKeyName, nil)
	cdc.RegisterConcrete(secp256k1.PrivKeySecp256k1{},
		secp256k1.PrivKeyName, nil)
}

// PubKeyFromBytes unmarshals public key bytes and returns a PubKey.
func PubKeyFromBytes(pubKeyBytes []byte) (pubKey crypto.PubKey, err error) {
	err = cdc.UnmarshalBinaryBare(pubKeyBytes, &pubKey)
	return
}
