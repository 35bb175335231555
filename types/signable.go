package types

import (
	"github.com/glint-chain/glintd/crypto/ed25519"
)

// MaxSignatureSize is a maximum allowed signature size for the Header
// commits. All of the supported key schemes (ed25519, secp256k1) produce
// signatures of at most this size.
const MaxSignatureSize = ed25519.SignatureSize
