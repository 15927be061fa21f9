package address

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// PrivateKeyToWIF converts a raw 32-byte private key to Wallet Import Format.
// The compressed flag selects the K/L (compressed) or 5 (uncompressed) form, and must
// match the form of the address the key was found for.
func PrivateKeyToWIF(privKeyBytes [32]byte, compressed bool) (string, error) {
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes[:])

	wif, err := btcutil.NewWIF(privKey, &chaincfg.MainNetParams, compressed)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}
