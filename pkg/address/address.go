// Package address implements the Bitcoin P2PKH address codec used by the key search:
// verifying and decoding Base58Check addresses into their 160-bit hash, and deriving
// addresses from public keys in compressed or uncompressed form.
package address

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// MainNetP2PKH is the version byte of mainnet pay-to-pubkey-hash addresses (1...).
const MainNetP2PKH = 0x00

// Hash160 is RIPEMD160(SHA256(pubkey)), the value a P2PKH address encodes.
type Hash160 [20]byte

// String returns the hash as lowercase hex.
func (h Hash160) String() string {
	return hex.EncodeToString(h[:])
}

// Compare orders hashes bytewise, returning -1, 0 or +1.
func (h Hash160) Compare(other Hash160) int {
	return bytes.Compare(h[:], other[:])
}

var (
	// ErrChecksum is returned when the Base58Check checksum does not match.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrLength is returned when the decoded payload is not 25 bytes.
	ErrLength = errors.New("invalid address length")
	// ErrVersion is returned for addresses that are not mainnet P2PKH.
	ErrVersion = errors.New("unsupported address version")
)

// Decode verifies a P2PKH address and returns the hash it encodes.
func Decode(addr string) (Hash160, error) {
	var h Hash160

	payload, err := Base58CheckDecode(addr)
	if err != nil {
		return h, err
	}
	if len(payload) != 21 {
		return h, ErrLength
	}
	if payload[0] != MainNetP2PKH {
		return h, fmt.Errorf("%w: 0x%02x", ErrVersion, payload[0])
	}

	copy(h[:], payload[1:])
	return h, nil
}

// Verify reports whether addr is a well-formed P2PKH address with a valid checksum.
func Verify(addr string) bool {
	_, err := Decode(addr)
	return err == nil
}

// HashPublicKey returns the hash160 of the public key serialised in the requested form.
func HashPublicKey(pubKey *btcec.PublicKey, compressed bool) Hash160 {
	var h Hash160
	if compressed {
		copy(h[:], hash160(pubKey.SerializeCompressed()))
	} else {
		copy(h[:], hash160(pubKey.SerializeUncompressed()))
	}
	return h
}

// FromPublicKey derives the P2PKH address of a public key.
func FromPublicKey(pubKey *btcec.PublicKey, compressed bool) string {
	return FromHash160(HashPublicKey(pubKey, compressed))
}

// FromHash160 encodes a hash as a mainnet P2PKH address.
// Address = Base58Check(0x00 + HASH160(pubkey))
func FromHash160(h Hash160) string {
	data := make([]byte, 21)
	data[0] = MainNetP2PKH
	copy(data[1:], h[:])

	return Base58CheckEncode(data)
}

// hash160 computes RIPEMD160(SHA256(data))
func hash160(data []byte) []byte {
	sha := sha256.Sum256(data)
	ripemd := ripemd160.New()
	ripemd.Write(sha[:])
	return ripemd.Sum(nil)
}

// Base58CheckEncode encodes data with a 4-byte checksum in Base58.
func Base58CheckEncode(data []byte) string {
	full := make([]byte, 0, len(data)+4)
	full = append(full, data...)
	full = append(full, checksum(data)...)

	return base58.Encode(full)
}

// Base58CheckDecode decodes a Base58Check string and returns the payload without
// its checksum.
func Base58CheckDecode(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrLength
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) < 5 {
		return nil, ErrLength
	}

	payload, sum := raw[:len(raw)-4], raw[len(raw)-4:]
	if !bytes.Equal(sum, checksum(payload)) {
		return nil, ErrChecksum
	}

	return payload, nil
}

// checksum returns the first 4 bytes of SHA256(SHA256(data)).
func checksum(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:4]
}
