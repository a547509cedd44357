// Package keys implements the public key cryptography used by peers and
// accounts.
//
// Peers sign candidate blocks and votes, accounts sign transactions. Keys are
// ECDSA keys on the secp256k1 curve, stored on disk as a raw hex dump of the
// private scalar.
package keys
