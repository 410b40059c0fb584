package node

import (
	"crypto/ecdsa"

	"github.com/mosaicnetworks/chorus/src/crypto/keys"
)

// Validator wraps the private key controlling a node, and signs its Events.
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	signer *keys.ECDSASigner
	id     uint32
	pubHex string
}

// NewValidator is a factory method for a Validator
func NewValidator(key *ecdsa.PrivateKey, moniker string) *Validator {
	signer := keys.NewECDSASigner(key)
	return &Validator{
		Key:     key,
		Moniker: moniker,
		signer:  signer,
		id:      keys.PublicKeyID(signer.PublicKeyBytes()),
		pubHex:  keys.PublicKeyHex(&key.PublicKey),
	}
}

// ID returns the peer ID derived from the public key.
func (v *Validator) ID() uint32 {
	return v.id
}

// PublicKeyBytes returns the validator's public key as a byte array
func (v *Validator) PublicKeyBytes() []byte {
	return v.signer.PublicKeyBytes()
}

// PublicKeyHex returns the validator's public key as a hex string, in the form
// used to identify Event creators.
func (v *Validator) PublicKeyHex() string {
	return v.pubHex
}

// Sign implements hashgraph.Signer
func (v *Validator) Sign(data []byte) (string, error) {
	return v.signer.Sign(data)
}
