package ed25519

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	voied25519 "github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/glint-chain/glintd/crypto"
)

//-------------------------------------

const (
	PrivKeyName = "glint/PrivKeyEd25519"
	PubKeyName  = "glint/PubKeyEd25519"

	// PubKeySize is the size, in bytes, of public keys as used in this package.
	PubKeySize = 32
	// PrivKeySize is the size, in bytes, of private keys as used in this
	// package. It is the private key seed concatenated with the public key.
	PrivKeySize = 64
	// SignatureSize is the size of an Edwards25519 signature. Namely the size
	// of a compressed Edwards25519 point, and a field element. Both of which
	// are 32 bytes.
	SignatureSize = 64

	KeyType = "ed25519"
)

// PrivKeyEd25519 implements crypto.PrivKey.
type PrivKeyEd25519 [PrivKeySize]byte

var _ crypto.PrivKey = PrivKeyEd25519{}

// Bytes returns the byte representation of the private key.
func (privKey PrivKeyEd25519) Bytes() []byte {
	return privKey[:]
}

// Sign produces a signature on the provided message.
func (privKey PrivKeyEd25519) Sign(msg []byte) ([]byte, error) {
	return voied25519.Sign(voied25519.PrivateKey(privKey[:]), msg), nil
}

// PubKey gets the corresponding public key from the private key.
func (privKey PrivKeyEd25519) PubKey() crypto.PubKey {
	privKeyBytes := [PrivKeySize]byte(privKey)
	initialized := false
	// If the latter 32 bytes of the privkey are all zero, privkey is not
	// initialized.
	for _, v := range privKeyBytes[32:] {
		if v != 0 {
			initialized = true
			break
		}
	}

	if !initialized {
		panic("Expected ed25519 PrivKeyEd25519 to include concatenated pubkey bytes")
	}

	var pubKey PubKeyEd25519
	copy(pubKey[:], privKeyBytes[32:])
	return pubKey
}

// Equals - you probably don't need to use this.
// Runs in constant time based on length of the keys.
func (privKey PrivKeyEd25519) Equals(other crypto.PrivKey) bool {
	if otherEd, ok := other.(PrivKeyEd25519); ok {
		return bytes.Equal(privKey[:], otherEd[:])
	}
	return false
}

func (privKey PrivKeyEd25519) Type() string {
	return KeyType
}

// GenPrivKey generates a new ed25519 private key.
// It uses OS randomness in conjunction with the current global random seed
// in glintd/crypto to generate the private key.
func GenPrivKey() PrivKeyEd25519 {
	return genPrivKey(rand.Reader)
}

// genPrivKey generates a new ed25519 private key using the provided reader.
func genPrivKey(rng io.Reader) PrivKeyEd25519 {
	_, priv, err := voied25519.GenerateKey(rng)
	if err != nil {
		panic(fmt.Sprintf("ed25519 key generation: %v", err))
	}

	var privKey PrivKeyEd25519
	copy(privKey[:], priv)
	return privKey
}

// GenPrivKeyFromSecret hashes the secret with SHA2, and uses
// that 32 byte output to create the private key.
// NOTE: secret should be the output of a KDF like bcrypt,
// if it's derived from user input.
func GenPrivKeyFromSecret(secret []byte) PrivKeyEd25519 {
	seed := crypto.Checksum(secret) // Not Ripemd160 because we want 32 bytes.

	priv := voied25519.NewKeyFromSeed(seed)
	var privKey PrivKeyEd25519
	copy(privKey[:], priv)
	return privKey
}

//-------------------------------------

// PubKeyEd25519 implements crypto.PubKey for the Ed25519 signature scheme.
type PubKeyEd25519 [PubKeySize]byte

var _ crypto.PubKey = PubKeyEd25519{}

// Address is the SHA256-20 of the raw pubkey bytes.
func (pubKey PubKeyEd25519) Address() crypto.Address {
	return crypto.AddressHash(pubKey[:])
}

// Bytes returns the PubKey byte format.
func (pubKey PubKeyEd25519) Bytes() []byte {
	return pubKey[:]
}

// VerifySignature checks sig over msg with this public key.
func (pubKey PubKeyEd25519) VerifySignature(msg []byte, sig []byte) bool {
	// make sure we use the same algorithm to sign
	if len(sig) != SignatureSize {
		return false
	}

	return voied25519.Verify(voied25519.PublicKey(pubKey[:]), msg, sig)
}

func (pubKey PubKeyEd25519) String() string {
	return fmt.Sprintf("PubKeyEd25519{%X}", pubKey[:])
}

func (pubKey PubKeyEd25519) Type() string {
	return KeyType
}

func (pubKey PubKeyEd25519) Equals(other crypto.PubKey) bool {
	if otherEd, ok := other.(PubKeyEd25519); ok {
		return bytes.Equal(pubKey[:], otherEd[:])
	}
	return false
}
