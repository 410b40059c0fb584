// Package keys implements the public key cryptography used by chorus nodes.
//
// Every participant owns a key-pair. The private key signs the events that the
// node creates, and the public key, published in the peer set, lets every other
// node verify them. Event hashes and peer IDs are derived from the uncompressed
// form of the public key.
//
// Keys are ECDSA keys on the secp256k1 curve, so Bitcoin and Ethereum keys can
// be used to operate a node.
package keys
