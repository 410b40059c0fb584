package keys

import (
	"crypto/ecdsa"
	"fmt"
)

// ECDSASigner signs event bodies with a secp256k1 private key.
type ECDSASigner struct {
	key      *ecdsa.PrivateKey
	pubBytes []byte
}

// NewECDSASigner ...
func NewECDSASigner(key *ecdsa.PrivateKey) *ECDSASigner {
	return &ECDSASigner{
		key:      key,
		pubBytes: FromPublicKey(&key.PublicKey),
	}
}

// PublicKeyBytes returns the uncompressed public key of the signer.
func (s *ECDSASigner) PublicKeyBytes() []byte {
	return s.pubBytes
}

// Sign signs data, which is expected to be a hash, and returns the encoded
// signature.
func (s *ECDSASigner) Sign(data []byte) (string, error) {
	r, ss, err := Sign(s.key, data)
	if err != nil {
		return "", err
	}
	return EncodeSignature(r, ss), nil
}

// ECDSAVerifier verifies signatures produced by ECDSASigner. It holds no
// state and is safe for concurrent use.
type ECDSAVerifier struct{}

// Verify returns whether sig is a valid signature of data by pub.
func (ECDSAVerifier) Verify(pub []byte, data []byte, sig string) (bool, error) {
	pubKey := ToPublicKey(pub)
	if pubKey == nil {
		return false, fmt.Errorf("invalid public key")
	}

	r, s, err := DecodeSignature(sig)
	if err != nil {
		return false, err
	}

	return Verify(pubKey, data, r, s), nil
}
